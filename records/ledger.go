package records

import (
	"context"

	"github.com/pkg/errors"
)

// =============================================================================
// LEDGER - Append-only withholding history
// =============================================================================

// Ledger is the source of truth for what was withheld.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Every record is validated before it reaches the Store.
//   - A record is reversed at most once; reversals are never reversed.
type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// Append adds a record. Fails if its idempotency key exists.
func (l *Ledger) Append(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := l.checkKey(ctx, r.IdempotencyKey); err != nil {
		return err
	}
	return l.Store.Append(ctx, r)
}

// AppendBatch adds multiple records atomically.
func (l *Ledger) AppendBatch(ctx context.Context, rs []Record) error {
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.IdempotencyKey == "" {
			continue
		}
		if seen[r.IdempotencyKey] {
			return errors.Wrapf(ErrDuplicateIdempotencyKey, "key %q repeated in batch", r.IdempotencyKey)
		}
		seen[r.IdempotencyKey] = true
		if err := l.checkKey(ctx, r.IdempotencyKey); err != nil {
			return err
		}
	}
	return l.Store.AppendBatch(ctx, rs)
}

func (l *Ledger) checkKey(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	exists, err := l.Store.Exists(ctx, key)
	if err != nil {
		return errors.Wrap(err, "check idempotency key")
	}
	if exists {
		return errors.Wrapf(ErrDuplicateIdempotencyKey, "key %q", key)
	}
	return nil
}

// History returns an employee's records for a year, oldest first.
// Read-only.
func (l *Ledger) History(ctx context.Context, employeeID string, year int) ([]Record, error) {
	return l.Store.Load(ctx, employeeID, year)
}

// YearToDate sums the employee's history for the year.
// This is a derived value, computed from records.
func (l *Ledger) YearToDate(ctx context.Context, employeeID string, year int) (Totals, error) {
	recs, err := l.Store.Load(ctx, employeeID, year)
	if err != nil {
		return Totals{}, err
	}
	return Sum(employeeID, year, recs), nil
}

// Reverse appends the reversal of record id and returns it. The history
// scan gives a readable error; the store's own check decides races.
func (l *Ledger) Reverse(ctx context.Context, id, idempotencyKey string) (Record, error) {
	original, err := l.Store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if original.Kind == KindReversal {
		return Record{}, errors.Wrap(ErrInvalidRecord, "a reversal cannot be reversed")
	}

	history, err := l.Store.Load(ctx, original.EmployeeID, original.Year)
	if err != nil {
		return Record{}, err
	}
	for _, r := range history {
		if r.Kind == KindReversal && r.Reverses == id {
			return Record{}, errors.Wrapf(ErrAlreadyReversed, "record %s", id)
		}
	}

	reversal := original.Reversal(idempotencyKey)
	if err := l.Append(ctx, reversal); err != nil {
		return Record{}, err
	}
	return reversal, nil
}
