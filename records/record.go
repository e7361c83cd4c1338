/*
Package records keeps the append-only history of withholding results.

PURPOSE:
  The tax package is pure: it computes a pay period and forgets it. Payroll
  still needs to know what was actually withheld, both for remittance and
  because the next pay period's year-to-date inputs (D, D1, D2, PIYTD,
  IEYTD, B1, YTD net income, YTD periodic and non-periodic tax) are the
  sums of what came before. This package records
  each computed result and replays the history into those totals.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IDEMPOTENT: Same idempotency key = same record (no duplicates)
  3. CORRECTIONS: A wrong record is cancelled by a reversal record that
     carries the negated amounts; both stay in the history
  4. ONE REVERSAL: Stores reject a second reversal of the same record

EXAMPLE FLOW:
  1. Pay period 1 computed: Withholding  tax 268.95, CPP 110.99
  2. Pay period 2 computed: Withholding  tax 268.95, CPP 110.99
  3. Period 2 was a mistake: Reversal    tax -268.95, CPP -110.99

  YearToDate = tax 268.95, CPP 110.99

SEE ALSO:
  - store.go: persistence interface
  - ledger.go: Ledger over a Store
  - store/memory, store/sqlite, store/postgres: implementations
*/
package records

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/tax"
)

// =============================================================================
// RECORD
// =============================================================================

// Kind distinguishes computed withholdings from corrections.
type Kind string

const (
	KindWithholding Kind = "withholding"
	KindReversal    Kind = "reversal"
)

// Record is one stored pay period. Reversals carry negated amounts and
// point at the record they cancel.
type Record struct {
	ID             string              `json:"id"`
	EmployeeID     string              `json:"employee_id"`
	Year           int                 `json:"year"`
	Jurisdiction   tax.Jurisdiction    `json:"jurisdiction"`
	Mode           tax.CalculationMode `json:"mode"`
	Kind           Kind                `json:"kind"`
	Reverses       string              `json:"reverses,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`

	Gross               decimal.Decimal `json:"gross"`
	PensionableEarnings decimal.Decimal `json:"pensionable_earnings"`
	InsurableEarnings   decimal.Decimal `json:"insurable_earnings"`
	NetIncome           decimal.Decimal `json:"net_income"` // I - F - F2 - F5A - U1
	Bonus               decimal.Decimal `json:"bonus"`
	Tax                 decimal.Decimal `json:"tax"`
	NonPeriodicTax      decimal.Decimal `json:"non_periodic_tax"` // part of Tax withheld on the bonus
	CPP                 decimal.Decimal `json:"cpp"`
	CPP2                decimal.Decimal `json:"cpp2"`
	EI                  decimal.Decimal `json:"ei"`
	FloorOverride       bool            `json:"floor_override"`

	RecordedAt time.Time `json:"recorded_at"`
}

// NewRecord builds the record for a computed pay period.
func NewRecord(in tax.PayPeriodInputs, result tax.WithholdingResult, idempotencyKey string) Record {
	return Record{
		ID:                  uuid.NewString(),
		EmployeeID:          in.EmployeeID,
		Year:                result.Year,
		Jurisdiction:        in.Jurisdiction,
		Mode:                result.Mode,
		Kind:                KindWithholding,
		IdempotencyKey:      idempotencyKey,
		Gross:               in.Gross,
		PensionableEarnings: in.PensionableEarnings,
		InsurableEarnings:   in.InsurableEarnings,
		NetIncome:           result.Factors.PeriodicNetIncome,
		Bonus:               in.Bonus,
		Tax:                 result.Tax,
		NonPeriodicTax:      result.NonPeriodicTax,
		CPP:                 result.CPP,
		CPP2:                result.CPP2,
		EI:                  result.EI,
		FloorOverride:       result.FloorOverride,
		RecordedAt:          time.Now().UTC(),
	}
}

// Reversal returns the record that cancels r.
func (r Record) Reversal(idempotencyKey string) Record {
	return Record{
		ID:                  uuid.NewString(),
		EmployeeID:          r.EmployeeID,
		Year:                r.Year,
		Jurisdiction:        r.Jurisdiction,
		Mode:                r.Mode,
		Kind:                KindReversal,
		Reverses:            r.ID,
		IdempotencyKey:      idempotencyKey,
		Gross:               r.Gross.Neg(),
		PensionableEarnings: r.PensionableEarnings.Neg(),
		InsurableEarnings:   r.InsurableEarnings.Neg(),
		NetIncome:           r.NetIncome.Neg(),
		Bonus:               r.Bonus.Neg(),
		Tax:                 r.Tax.Neg(),
		NonPeriodicTax:      r.NonPeriodicTax.Neg(),
		CPP:                 r.CPP.Neg(),
		CPP2:                r.CPP2.Neg(),
		EI:                  r.EI.Neg(),
		RecordedAt:          time.Now().UTC(),
	}
}

// Validate checks the fields every store relies on.
func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return errInvalid("id is required")
	case r.EmployeeID == "":
		return errInvalid("employee_id is required")
	case r.Year <= 0:
		return errInvalid("year must be positive")
	case r.Kind != KindWithholding && r.Kind != KindReversal:
		return errInvalid("unknown kind " + string(r.Kind))
	case r.Kind == KindReversal && r.Reverses == "":
		return errInvalid("reversal must name the record it reverses")
	}
	return nil
}

// =============================================================================
// YEAR-TO-DATE TOTALS
// =============================================================================

// Totals are the year-to-date sums of an employee's records.
type Totals struct {
	EmployeeID          string          `json:"employee_id"`
	Year                int             `json:"year"`
	Periods             int             `json:"periods"`
	Gross               decimal.Decimal `json:"gross"`
	PensionableEarnings decimal.Decimal `json:"pensionable_earnings"`
	InsurableEarnings   decimal.Decimal `json:"insurable_earnings"`
	NetIncome           decimal.Decimal `json:"net_income"`
	Bonus               decimal.Decimal `json:"bonus"`
	Tax                 decimal.Decimal `json:"tax"`
	NonPeriodicTax      decimal.Decimal `json:"non_periodic_tax"`
	CPP                 decimal.Decimal `json:"cpp"`
	CPP2                decimal.Decimal `json:"cpp2"`
	EI                  decimal.Decimal `json:"ei"`
}

// Sum replays records into totals. Periods counts withholdings net of
// reversals.
func Sum(employeeID string, year int, recs []Record) Totals {
	t := Totals{EmployeeID: employeeID, Year: year}
	for _, r := range recs {
		switch r.Kind {
		case KindWithholding:
			t.Periods++
		case KindReversal:
			t.Periods--
		}
		t.Gross = t.Gross.Add(r.Gross)
		t.PensionableEarnings = t.PensionableEarnings.Add(r.PensionableEarnings)
		t.InsurableEarnings = t.InsurableEarnings.Add(r.InsurableEarnings)
		t.NetIncome = t.NetIncome.Add(r.NetIncome)
		t.Bonus = t.Bonus.Add(r.Bonus)
		t.Tax = t.Tax.Add(r.Tax)
		t.NonPeriodicTax = t.NonPeriodicTax.Add(r.NonPeriodicTax)
		t.CPP = t.CPP.Add(r.CPP)
		t.CPP2 = t.CPP2.Add(r.CPP2)
		t.EI = t.EI.Add(r.EI)
	}
	return t
}

// Apply copies the totals into the year-to-date fields of in. YTDTax gets
// the periodic part of the tax only; the bonus part goes to
// YTDNonPeriodicTax.
func (t Totals) Apply(in *tax.PayPeriodInputs) {
	in.YTDPensionableEarnings = t.PensionableEarnings
	in.YTDInsurableEarnings = t.InsurableEarnings
	in.YTDCPP = t.CPP
	in.YTDCPP2 = t.CPP2
	in.YTDEI = t.EI
	in.YTDNetIncome = t.NetIncome
	in.YTDBonus = t.Bonus
	in.YTDTax = t.Tax.Sub(t.NonPeriodicTax)
	in.YTDNonPeriodicTax = t.NonPeriodicTax
}
