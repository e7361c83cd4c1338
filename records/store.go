package records

import (
	"context"

	"github.com/pkg/errors"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a record with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrRecordNotFound is returned by Get for an unknown record ID.
	ErrRecordNotFound = errors.New("record not found")

	// ErrAlreadyReversed is returned when reversing a record twice.
	ErrAlreadyReversed = errors.New("record already reversed")

	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("invalid record")
)

func errInvalid(msg string) error {
	return errors.Wrap(ErrInvalidRecord, msg)
}

// =============================================================================
// STORE - Interface for record persistence (append-only)
// =============================================================================

// Store persists records.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via reversal records.
type Store interface {
	// Append persists a record. Returns ErrDuplicateIdempotencyKey if the
	// record's key exists, ErrAlreadyReversed if it is a second reversal
	// of the same record.
	Append(ctx context.Context, r Record) error

	// AppendBatch persists multiple records atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, rs []Record) error

	// Load returns an employee's records for a year, oldest first.
	Load(ctx context.Context, employeeID string, year int) ([]Record, error)

	// Get returns a record by ID or ErrRecordNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
