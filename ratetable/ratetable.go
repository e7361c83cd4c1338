/*
Package ratetable turns rate documents into tax.TaxYearParameters.

PURPOSE:
  Every rate, threshold and cap the withholding formulas use changes each
  January. Instead of compiling them in, each year is a YAML (or JSON)
  document that is parsed, validated and handed to tax.NewCalculator.
  Payroll staff can publish next year's table without a release.

DOCUMENT SCHEMA (YAML shown, JSON uses the same keys):
  year: 2025
  federal:
    lowest_rate: 0.15
    canada_employment_amount: 1471
    brackets:
      - { threshold: 0, rate: 0.15, constant: 0 }
      ...
  basic_personal_amount: { lower_threshold: 177882, ... }
  cpp: { rate: 0.0595, ... }
  ei: { rate: 0.0164, ... }
  provinces:
    ON:
      lowest_rate: 0.0505
      surtax: { ... }
      health_premium: [ ... ]
      tax_reduction: { ... }

  Amounts are decoded straight into decimal.Decimal, never through float64.

USAGE:
  params, err := ratetable.Parse(doc, ratetable.FormatYAML)
  calc := tax.NewCalculator(params)

  // The embedded table for the current year
  params := ratetable.MustDefault()

  // Several years, looked up by the API
  reg := ratetable.NewRegistry()
  reg.Register(params)
  p, err := reg.Table(ctx, 2025)

SEE ALSO:
  - tax/params.go: TaxYearParameters
  - registry.go: in-memory Provider
  - store/sqlite: persistent Provider
*/
package ratetable

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/tax"
)

var (
	// ErrTableNotFound is returned when no table exists for the requested year.
	ErrTableNotFound = errors.New("rate table not found")

	// ErrInvalidDocument is returned when a rate document cannot be decoded.
	ErrInvalidDocument = errors.New("invalid rate table document")
)

// Provider supplies the parameters for a tax year.
type Provider interface {
	Table(ctx context.Context, year int) (*tax.TaxYearParameters, error)
}

// =============================================================================
// DOCUMENT FORMAT
// =============================================================================

// Format is the encoding of a rate document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// FormatFromContentType maps an HTTP Content-Type to a format. Anything that
// is not JSON is read as YAML, which is a superset of it.
func FormatFromContentType(contentType string) Format {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return FormatJSON
	}
	return FormatYAML
}

// =============================================================================
// PARSING
// =============================================================================

// Parse decodes and validates a rate document.
func Parse(doc []byte, format Format) (*tax.TaxYearParameters, error) {
	var p tax.TaxYearParameters

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(doc))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, errors.Wrapf(ErrInvalidDocument, "json: %v", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(doc))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, errors.Wrapf(ErrInvalidDocument, "yaml: %v", err)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidDocument, "unknown format %q", format)
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "rate table %d", p.Year)
	}
	return &p, nil
}

// Marshal encodes p in the given format.
func Marshal(p *tax.TaxYearParameters, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(p, "", "  ")
		return out, errors.Wrap(err, "failed to encode rate table JSON")
	case FormatYAML, "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return nil, errors.Wrap(err, "failed to encode rate table YAML")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to encode rate table YAML")
		}
		return buf.Bytes(), nil
	}
	return nil, errors.Errorf("unknown rate table format %q", format)
}

// =============================================================================
// CHAINED PROVIDERS
// =============================================================================

// Chain asks each provider in turn and returns the first table found.
type Chain []Provider

func (c Chain) Table(ctx context.Context, year int) (*tax.TaxYearParameters, error) {
	for _, p := range c {
		params, err := p.Table(ctx, year)
		if err == nil {
			return params, nil
		}
		if !errors.Is(err, ErrTableNotFound) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrTableNotFound, "year %d", year)
}
