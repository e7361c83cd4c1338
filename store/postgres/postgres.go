/*
Package postgres provides a PostgreSQL-backed records.Store and
ratetable.Provider on jackc/pgx.

PURPOSE:
  The multi-instance deployment of the sqlite store. Same tables, same
  append-only contract; concurrency is left to the database instead of
  a process-local mutex.

TYPES:
  Amounts are NUMERIC and travel as text in both directions, so no value
  ever passes through float64.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := records.NewLedger(store)
*/
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/records"
	"github.com/warp/payroll-engine/tax"
)

const uniqueViolation = "23505"

// Store implements records.Store and ratetable.Provider on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse database DSN")
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create connection pool")
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return store, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		jurisdiction TEXT NOT NULL,
		mode TEXT NOT NULL,
		kind TEXT NOT NULL,
		reverses TEXT,
		idempotency_key TEXT UNIQUE,
		gross NUMERIC NOT NULL,
		pensionable_earnings NUMERIC NOT NULL,
		insurable_earnings NUMERIC NOT NULL,
		net_income NUMERIC NOT NULL DEFAULT 0,
		bonus NUMERIC NOT NULL DEFAULT 0,
		tax NUMERIC NOT NULL,
		non_periodic_tax NUMERIC NOT NULL DEFAULT 0,
		cpp NUMERIC NOT NULL,
		cpp2 NUMERIC NOT NULL,
		ei NUMERIC NOT NULL,
		floor_override BOOLEAN NOT NULL DEFAULT FALSE,
		recorded_at TIMESTAMPTZ NOT NULL,
		seq BIGSERIAL
	);

	CREATE INDEX IF NOT EXISTS idx_records_employee_year
		ON records(employee_id, year, recorded_at);

	-- A record is reversed at most once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_one_reversal
		ON records(reverses) WHERE reverses IS NOT NULL;

	CREATE TABLE IF NOT EXISTS rate_tables (
		year INTEGER PRIMARY KEY,
		format TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// RECORD STORE (records.Store interface)
// =============================================================================

const insertRecord = `
	INSERT INTO records
	(id, employee_id, year, jurisdiction, mode, kind, reverses, idempotency_key,
	 gross, pensionable_earnings, insurable_earnings, net_income, bonus,
	 tax, non_periodic_tax, cpp, cpp2, ei,
	 floor_override, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
	        $9::text::numeric, $10::text::numeric, $11::text::numeric, $12::text::numeric,
	        $13::text::numeric, $14::text::numeric, $15::text::numeric, $16::text::numeric,
	        $17::text::numeric, $18::text::numeric,
	        $19, $20)
`

func recordArgs(r records.Record) []any {
	return []any{
		r.ID,
		r.EmployeeID,
		r.Year,
		string(r.Jurisdiction),
		string(r.Mode),
		string(r.Kind),
		nullable(r.Reverses),
		nullable(r.IdempotencyKey),
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
		r.RecordedAt.UTC(),
	}
}

// Append adds a record to the history.
func (s *Store) Append(ctx context.Context, r records.Record) error {
	_, err := s.pool.Exec(ctx, insertRecord, recordArgs(r)...)
	return appendError(err, r)
}

// AppendBatch adds multiple records in one transaction.
func (s *Store) AppendBatch(ctx context.Context, rs []records.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	for _, r := range rs {
		if _, err := tx.Exec(ctx, insertRecord, recordArgs(r)...); err != nil {
			return appendError(err, r)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func appendError(err error, r records.Record) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "records_pkey":
			return errors.Wrapf(records.ErrInvalidRecord, "record %s already stored", r.ID)
		case "idx_records_one_reversal":
			return errors.Wrapf(records.ErrAlreadyReversed, "record %s", r.Reverses)
		}
		return errors.Wrapf(records.ErrDuplicateIdempotencyKey, "key %q", r.IdempotencyKey)
	}
	return errors.Wrap(err, "failed to append record")
}

const selectRecords = `
	SELECT id, employee_id, year, jurisdiction, mode, kind,
	       COALESCE(reverses, ''), COALESCE(idempotency_key, ''),
	       gross::text, pensionable_earnings::text, insurable_earnings::text,
	       net_income::text, bonus::text,
	       tax::text, non_periodic_tax::text, cpp::text, cpp2::text, ei::text,
	       floor_override, recorded_at
	FROM records`

// Load returns an employee's records for a year, oldest first.
func (s *Store) Load(ctx context.Context, employeeID string, year int) ([]records.Record, error) {
	rows, err := s.pool.Query(ctx,
		selectRecords+" WHERE employee_id = $1 AND year = $2 ORDER BY recorded_at, seq",
		employeeID, year,
	)
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
	r, err := scanRecord(s.pool.QueryRow(ctx, selectRecords+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return records.Record{}, errors.Wrapf(records.ErrRecordNotFound, "id %s", id)
	}
	return r, err
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM records WHERE idempotency_key = $1)",
		idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check idempotency key")
	}
	return exists, nil
}

func scanRecord(row pgx.Row) (records.Record, error) {
	var (
		r            records.Record
		jurisdiction string
		mode         string
		kind         string
		amounts      [10]string
	)

	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Year, &jurisdiction, &mode, &kind,
		&r.Reverses, &r.IdempotencyKey,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&amounts[5], &amounts[6], &amounts[7], &amounts[8], &amounts[9],
		&r.FloorOverride, &r.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, err
		}
		return r, errors.Wrap(err, "failed to scan record")
	}

	r.Jurisdiction = tax.Jurisdiction(jurisdiction)
	r.Mode = tax.CalculationMode(mode)
	r.Kind = records.Kind(kind)
	r.RecordedAt = r.RecordedAt.UTC()

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
	return r, nil
}

// =============================================================================
// RATE TABLES (ratetable.Provider interface)
// =============================================================================

// SaveDocument validates and stores a rate document, replacing any earlier
// document for the same year.
func (s *Store) SaveDocument(ctx context.Context, doc []byte, format ratetable.Format) (*tax.TaxYearParameters, error) {
	p, err := ratetable.Parse(doc, format)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO rate_tables (year, format, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (year) DO UPDATE SET
			format = EXCLUDED.format,
			document = EXCLUDED.document,
			created_at = now()
	`, p.Year, string(format), string(doc))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to save rate table %d", p.Year)
	}
	return p, nil
}

// Table parses the stored document for year.
func (s *Store) Table(ctx context.Context, year int) (*tax.TaxYearParameters, error) {
	var format, document string
	err := s.pool.QueryRow(ctx,
		"SELECT format, document FROM rate_tables WHERE year = $1", year,
	).Scan(&format, &document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ratetable.ErrTableNotFound, "year %d", year)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load rate table %d", year)
	}
	return ratetable.Parse([]byte(document), ratetable.Format(format))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
