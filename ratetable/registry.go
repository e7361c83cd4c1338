package ratetable

import (
	"context"
	"embed"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/warp/payroll-engine/tax"
)

// =============================================================================
// REGISTRY - In-memory Provider keyed by year
// =============================================================================

// Registry holds parsed tables by year. Registered tables are never mutated;
// registering a year again replaces the pointer, so callers holding the old
// table keep a consistent view.
type Registry struct {
	mu     sync.RWMutex
	tables map[int]*tax.TaxYearParameters
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[int]*tax.TaxYearParameters)}
}

// Register validates p and makes it available under p.Year.
func (r *Registry) Register(p *tax.TaxYearParameters) error {
	if p == nil {
		return errors.New("nil rate table")
	}
	if err := p.Validate(); err != nil {
		return errors.Wrapf(err, "register rate table %d", p.Year)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[p.Year] = p
	return nil
}

// SaveDocument parses doc and registers the table it declares.
func (r *Registry) SaveDocument(_ context.Context, doc []byte, format Format) (*tax.TaxYearParameters, error) {
	p, err := Parse(doc, format)
	if err != nil {
		return nil, err
	}
	if err := r.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Registry) Table(ctx context.Context, year int) (*tax.TaxYearParameters, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.tables[year]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "year %d", year)
	}
	return p, nil
}

// Years lists the registered years in ascending order.
func (r *Registry) Years() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	years := make([]int, 0, len(r.tables))
	for y := range r.tables {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// LoadDir parses every .yaml, .yml and .json file in dir into the registry.
// Other files are ignored. A file that fails to load is skipped and the
// rest still load; the failures come back combined.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read rate table dir %s", dir)
	}

	var errs error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		format, ok := FormatFromPath(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		errs = multierr.Append(errs, r.loadFile(path, format))
	}
	return errs
}

func (r *Registry) loadFile(path string, format Format) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	p, err := Parse(doc, format)
	if err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	return errors.Wrapf(r.Register(p), "register %s", path)
}

// =============================================================================
// EMBEDDED TABLES
// =============================================================================

// DefaultYear is the year of the table returned by Default.
const DefaultYear = 2025

//go:embed tables/*.yaml
var embedded embed.FS

// Default parses the embedded table for DefaultYear. Each call returns a
// fresh value.
func Default() (*tax.TaxYearParameters, error) {
	return Embedded(DefaultYear)
}

// MustDefault is Default for program start-up and tests.
func MustDefault() *tax.TaxYearParameters {
	p, err := Default()
	if err != nil {
		panic(err)
	}
	return p
}

// Embedded parses the table compiled into the binary for year.
func Embedded(year int) (*tax.TaxYearParameters, error) {
	doc, err := embedded.ReadFile("tables/" + strconv.Itoa(year) + ".yaml")
	if err != nil {
		return nil, errors.Wrapf(ErrTableNotFound, "no embedded table for %d", year)
	}
	return Parse(doc, FormatYAML)
}

// NewDefaultRegistry returns a registry holding every embedded table.
func NewDefaultRegistry() (*Registry, error) {
	reg := NewRegistry()
	entries, err := embedded.ReadDir("tables")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded tables")
	}
	for _, e := range entries {
		doc, err := embedded.ReadFile("tables/" + e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read embedded table %s", e.Name())
		}
		p, err := Parse(doc, FormatYAML)
		if err != nil {
			return nil, errors.Wrapf(err, "embedded table %s", e.Name())
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
