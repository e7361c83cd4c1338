/*
Package tax computes Canadian payroll withholding for a single pay period.

PURPOSE:
  Implements the CRA payroll-deduction formulas: basic personal amount,
  CPP / second-additional CPP / EI contributions, the federal credit chain
  (K1-K4), the provincial credit chain (K1P-K4P) with the Ontario surtax,
  health premium and tax reduction, and the per-period tax to withhold.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: every amount is a decimal.Decimal, never a float64
  - Round: cent rounding, half away from zero, applied at formula outputs
  - SaturateNonNegative / ClampToCap: the only two clamping primitives
  - CalculationMode: Periodic, Graduated (cumulative averaging), YearToDate
  - Jurisdiction: province or territory of employment

DESIGN PRINCIPLES:
  1. Purity: no I/O, no logging, no package-level mutable state
  2. Precision: decimal arithmetic, rounded only where a factor is published
  3. Injection: every formula takes the TaxYearParameters it needs
  4. Saturation: negative taxes, credits and contributions become zero

USAGE:
  params := ratetable.MustDefault()
  calc := tax.NewCalculator(params)
  result, err := calc.Calculate(tax.PayPeriodInputs{
      Jurisdiction: tax.Ontario,
      Mode:         tax.ModePeriodic,
      PayPeriods:   26,
      Gross:        decimal.NewFromInt(2000),
      ...
  })

SEE ALSO:
  - params.go: TaxYearParameters
  - calculator.go: the full pipeline
  - errors.go: DomainError and PreconditionError
*/
package tax

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY HELPERS
// =============================================================================

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	twelve  = decimal.NewFromInt(12)
	centsDP = int32(2)
)

// Round rounds a monetary value to the nearest cent, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(centsDP)
}

// SaturateNonNegative returns d, or zero when d is negative.
func SaturateNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

// ClampToCap bounds d to [0, limit].
func ClampToCap(d, limit decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(limit) {
		d = limit
	}
	return SaturateNonNegative(d)
}

func count(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// monthsFraction prorates by PM/12.
func monthsFraction(pm int) decimal.Decimal {
	return count(pm).Div(twelve)
}

// wholeYears is PM/12 with integer truncation. Credit proration uses it, so
// a partial year contributes no CPP credit.
func wholeYears(pm int) decimal.Decimal {
	return count(pm / 12)
}

// =============================================================================
// CALCULATION MODE
// =============================================================================

// CalculationMode selects which variant of the shared sub-formulas runs.
type CalculationMode string

const (
	// ModePeriodic annualizes the current pay period alone.
	ModePeriodic CalculationMode = "periodic"

	// ModeGraduated uses cumulative averaging: year-to-date income is
	// projected to a full year with the annualizing factor S1.
	ModeGraduated CalculationMode = "graduated"

	// ModeYearToDate is periodic tax with the year-to-date CPP/EI credit.
	ModeYearToDate CalculationMode = "year_to_date"
)

// Valid reports whether m is a known mode.
func (m CalculationMode) Valid() bool {
	switch m {
	case ModePeriodic, ModeGraduated, ModeYearToDate:
		return true
	}
	return false
}

// orDefault treats the zero value as periodic.
func (m CalculationMode) orDefault() CalculationMode {
	if m == "" {
		return ModePeriodic
	}
	return m
}

// =============================================================================
// JURISDICTION
// =============================================================================

// Jurisdiction is a province or territory of employment.
type Jurisdiction string

const (
	Alberta                 Jurisdiction = "AB"
	BritishColumbia         Jurisdiction = "BC"
	Manitoba                Jurisdiction = "MB"
	NewBrunswick            Jurisdiction = "NB"
	NewfoundlandAndLabrador Jurisdiction = "NL"
	NovaScotia              Jurisdiction = "NS"
	NorthwestTerritories    Jurisdiction = "NT"
	Nunavut                 Jurisdiction = "NU"
	Ontario                 Jurisdiction = "ON"
	PrinceEdwardIsland      Jurisdiction = "PE"
	Quebec                  Jurisdiction = "QC"
	Saskatchewan            Jurisdiction = "SK"
	Yukon                   Jurisdiction = "YT"
)

// Supported reports whether withholding can be computed for j. Quebec runs
// its own regime and is not modelled.
func (j Jurisdiction) Supported() bool {
	switch j {
	case Alberta, BritishColumbia, Manitoba, NewBrunswick, NewfoundlandAndLabrador,
		NovaScotia, NorthwestTerritories, Nunavut, Ontario, PrinceEdwardIsland,
		Saskatchewan, Yukon:
		return true
	}
	return false
}
