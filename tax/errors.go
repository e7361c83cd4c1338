/*
errors.go - Centralized error types for the withholding formulas

ERROR CATEGORIES:
  1. Domain errors - a formula has no defined value for its input
     (the basic personal amount at exactly the upper threshold)
  2. Precondition errors - the caller passed inputs a formula cannot
     divide by or prorate with (zero pay periods, PC = 0, PM > 12), or a
     negative amount that would turn a credit or the withholding negative

  Neither is retryable: the same inputs always fail the same way.
  Negative computed taxes, credits and contributions are NOT errors; they are
  saturated to zero by the formulas themselves.

USAGE:
  _, err := tax.BasicPersonalAmount(p, a, hd)
  if errors.Is(err, tax.ErrNoIncomeBracket) { ... }

  var pe *tax.PreconditionError
  if errors.As(err, &pe) { log(pe.Field) }
*/
package tax

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoIncomeBracket is returned when net income matches no branch of
	// the basic personal amount (net income equal to the upper threshold).
	ErrNoIncomeBracket = errors.New("net income falls in no basic personal amount bracket")

	// ErrNonPositivePayPeriods is returned when P <= 0.
	ErrNonPositivePayPeriods = errors.New("pay periods in the year must be positive")

	// ErrNonPositiveRemainingPeriods is returned when PR <= 0.
	ErrNonPositiveRemainingPeriods = errors.New("remaining pay periods must be positive")

	// ErrUndefinedAnnualizingFactor is returned when S1 = P / PC has PC <= 0.
	ErrUndefinedAnnualizingFactor = errors.New("annualizing factor undefined: current pay period must be positive")

	// ErrZeroPensionableEarnings is returned when F5A would divide by PI = 0.
	ErrZeroPensionableEarnings = errors.New("pensionable earnings are zero")

	// ErrContributionMonthsOutOfRange is returned when PM is outside [0, 12].
	ErrContributionMonthsOutOfRange = errors.New("contribution months must be between 0 and 12")

	// ErrUnknownJurisdiction is returned when the parameters carry no table
	// for the requested province or territory.
	ErrUnknownJurisdiction = errors.New("unknown or unsupported jurisdiction")

	// ErrNegativeInput is returned when a money input or a dependant
	// count is below zero.
	ErrNegativeInput = errors.New("input must not be negative")

	// ErrInvalidMode is returned for an unrecognised calculation mode.
	ErrInvalidMode = errors.New("invalid calculation mode")

	// ErrInvalidParameters is returned by TaxYearParameters.Validate.
	ErrInvalidParameters = errors.New("invalid tax year parameters")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DomainError reports a formula evaluated outside its defined domain.
type DomainError struct {
	Formula string
	Value   string
	Err     error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %v (value %s)", e.Formula, e.Err, e.Value)
}

func (e *DomainError) Unwrap() error { return e.Err }

// PreconditionError reports an input that violates a formula precondition.
type PreconditionError struct {
	Field string
	Value string
	Err   error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed on %s=%s: %v", e.Field, e.Value, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func precondition(field string, value any, err error) error {
	return &PreconditionError{Field: field, Value: fmt.Sprint(value), Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDomainError returns true if err is, or wraps, a DomainError.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// IsPreconditionError returns true if err is caused by caller input.
func IsPreconditionError(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrUnknownJurisdiction)
}

// Precondition checks shared by several formulas.

func requirePayPeriods(p int) error {
	if p <= 0 {
		return precondition("P", p, ErrNonPositivePayPeriods)
	}
	return nil
}

func requireRemainingPeriods(pr int) error {
	if pr <= 0 {
		return precondition("PR", pr, ErrNonPositiveRemainingPeriods)
	}
	return nil
}

func requireMonths(pm int) error {
	if pm < 0 || pm > 12 {
		return precondition("PM", pm, ErrContributionMonthsOutOfRange)
	}
	return nil
}
