/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists withholding records and published rate tables in one SQLite
  file. The same schema ports to PostgreSQL (see store/postgres) with only
  dialect differences.

INTERFACES IMPLEMENTED:
  records.Store:      Withholding record persistence
  ratetable.Provider: Tax-year parameters from stored rate documents

APPEND-ONLY ENFORCEMENT:
  The Store enforces append-only semantics on records:
  - No UPDATE statements on the records table
  - No DELETE statements on the records table
  - Corrections via reversal records only

  Rate tables are the exception: publishing a year again replaces its
  document (CRA re-issues tables mid-year, e.g. the July edition).

KEY TABLES:
  records:     Immutable history of computed withholdings
  rate_tables: Source documents, one per tax year

MONEY:
  Amounts are stored as TEXT decimal strings. REAL would round through
  float64 and break cent-exact year-to-date sums.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := records.NewLedger(store)
  rates := ratetable.Chain{registry, store}

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - records/store.go: Store interface
  - ratetable/ratetable.go: Provider interface and document parsing
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/records"
	"github.com/warp/payroll-engine/tax"
)

// timeLayout is fixed-width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements records.Store and ratetable.Provider using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// Each connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Withholding records (APPEND-ONLY)
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		jurisdiction TEXT NOT NULL,
		mode TEXT NOT NULL,
		kind TEXT NOT NULL,
		reverses TEXT,
		idempotency_key TEXT UNIQUE,
		gross TEXT NOT NULL,
		pensionable_earnings TEXT NOT NULL,
		insurable_earnings TEXT NOT NULL,
		net_income TEXT NOT NULL DEFAULT '0',
		bonus TEXT NOT NULL DEFAULT '0',
		tax TEXT NOT NULL,
		non_periodic_tax TEXT NOT NULL DEFAULT '0',
		cpp TEXT NOT NULL,
		cpp2 TEXT NOT NULL,
		ei TEXT NOT NULL,
		floor_override BOOLEAN DEFAULT FALSE,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_employee_year
		ON records(employee_id, year, recorded_at);
	-- A record is reversed at most once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_one_reversal
		ON records(reverses) WHERE reverses IS NOT NULL;

	-- Rate table documents, one per tax year
	CREATE TABLE IF NOT EXISTS rate_tables (
		year INTEGER PRIMARY KEY,
		format TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (records.Store interface)
// =============================================================================

// Append adds a record to the history.
func (s *Store) Append(ctx context.Context, r records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendRecord(ctx, s.db, r)
}

func (s *Store) appendRecord(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, r records.Record) error {
	query := `
		INSERT INTO records
		(id, employee_id, year, jurisdiction, mode, kind, reverses, idempotency_key,
		 gross, pensionable_earnings, insurable_earnings, net_income, bonus,
		 tax, non_periodic_tax, cpp, cpp2, ei,
		 floor_override, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		r.ID,
		r.EmployeeID,
		r.Year,
		string(r.Jurisdiction),
		string(r.Mode),
		string(r.Kind),
		nullString(r.Reverses),
		nullString(r.IdempotencyKey),
		r.Gross.String(),
		r.PensionableEarnings.String(),
		r.InsurableEarnings.String(),
		r.NetIncome.String(),
		r.Bonus.String(),
		r.Tax.String(),
		r.NonPeriodicTax.String(),
		r.CPP.String(),
		r.CPP2.String(),
		r.EI.String(),
		r.FloorOverride,
		r.RecordedAt.UTC().Format(timeLayout),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.HasSuffix(err.Error(), "records.id") {
				return errors.Wrapf(records.ErrInvalidRecord, "record %s already stored", r.ID)
			}
			if strings.HasSuffix(err.Error(), "records.reverses") {
				return errors.Wrapf(records.ErrAlreadyReversed, "record %s", r.Reverses)
			}
			return errors.Wrapf(records.ErrDuplicateIdempotencyKey, "key %q", r.IdempotencyKey)
		}
		return errors.Wrap(err, "failed to append record")
	}

	return nil
}

// AppendBatch adds multiple records atomically.
func (s *Store) AppendBatch(ctx context.Context, rs []records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, r := range rs {
		if r.IdempotencyKey != "" {
			if idempotencyKeys[r.IdempotencyKey] {
				return records.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[r.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	for _, r := range rs {
		if err := s.appendRecord(ctx, sqlTx, r); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns an employee's records for a year, oldest first.
func (s *Store) Load(ctx context.Context, employeeID string, year int) ([]records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectRecords + `
		WHERE employee_id = ? AND year = ?
		ORDER BY recorded_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, employeeID, year)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query records")
	}
	defer rows.Close()

	result := []records.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

// Get returns a record by ID.
func (s *Store) Get(ctx context.Context, id string) (records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := scanRecord(s.db.QueryRowContext(ctx, selectRecords+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return records.Record{}, errors.Wrapf(records.ErrRecordNotFound, "id %s", id)
	}
	return r, err
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

const selectRecords = `
	SELECT id, employee_id, year, jurisdiction, mode, kind, reverses, idempotency_key,
	       gross, pensionable_earnings, insurable_earnings, net_income, bonus,
	       tax, non_periodic_tax, cpp, cpp2, ei,
	       floor_override, recorded_at
	FROM records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (records.Record, error) {
	var (
		r              records.Record
		jurisdiction   string
		mode           string
		kind           string
		reverses       sql.NullString
		idempotencyKey sql.NullString
		amounts        [10]string
		recordedAt     string
	)

	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Year, &jurisdiction, &mode, &kind,
		&reverses, &idempotencyKey,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&amounts[5], &amounts[6], &amounts[7], &amounts[8], &amounts[9],
		&r.FloorOverride, &recordedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, errors.Wrap(err, "failed to scan record")
	}

	r.Jurisdiction = tax.Jurisdiction(jurisdiction)
	r.Mode = tax.CalculationMode(mode)
	r.Kind = records.Kind(kind)
	r.Reverses = reverses.String
	r.IdempotencyKey = idempotencyKey.String

	targets := []*decimal.Decimal{
		&r.Gross, &r.PensionableEarnings, &r.InsurableEarnings, &r.NetIncome, &r.Bonus,
		&r.Tax, &r.NonPeriodicTax, &r.CPP, &r.CPP2, &r.EI,
	}
	for i, target := range targets {
		d, err := decimal.NewFromString(amounts[i])
		if err != nil {
			return r, errors.Wrapf(err, "record %s: bad amount %q", r.ID, amounts[i])
		}
		*target = d
	}

	t, err := time.Parse(timeLayout, recordedAt)
	if err != nil {
		return r, errors.Wrapf(err, "record %s: bad recorded_at", r.ID)
	}
	r.RecordedAt = t

	return r, nil
}

// =============================================================================
// RATE TABLES (ratetable.Provider interface)
// =============================================================================

// SaveDocument validates and stores a rate document for the year it
// declares, replacing any earlier document for that year.
func (s *Store) SaveDocument(ctx context.Context, doc []byte, format ratetable.Format) (*tax.TaxYearParameters, error) {
	p, err := ratetable.Parse(doc, format)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rate_tables (year, format, document, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			format = excluded.format,
			document = excluded.document,
			created_at = excluded.created_at
	`
	_, err = s.db.ExecContext(ctx, query,
		p.Year,
		string(format),
		string(doc),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to save rate table %d", p.Year)
	}

	return p, nil
}

// SaveTable stores already-parsed parameters as a YAML document.
func (s *Store) SaveTable(ctx context.Context, p *tax.TaxYearParameters) error {
	doc, err := ratetable.Marshal(p, ratetable.FormatYAML)
	if err != nil {
		return err
	}
	_, err = s.SaveDocument(ctx, doc, ratetable.FormatYAML)
	return err
}

// Table parses the stored document for year.
func (s *Store) Table(ctx context.Context, year int) (*tax.TaxYearParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var format, document string
	err := s.db.QueryRowContext(ctx,
		"SELECT format, document FROM rate_tables WHERE year = ?",
		year,
	).Scan(&format, &document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ratetable.ErrTableNotFound, "year %d", year)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load rate table %d", year)
	}

	return ratetable.Parse([]byte(document), ratetable.Format(format))
}

// Years lists the stored tax years in ascending order.
func (s *Store) Years(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT year FROM rate_tables ORDER BY year")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list rate tables")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, errors.Wrap(err, "failed to scan year")
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
