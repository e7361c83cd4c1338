/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Pay period inputs and
  results travel as the tax package's own types (they already carry JSON
  tags); the wrappers here add the request options around them.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Every amount is a decimal.Decimal and is written as a JSON string
  ("268.95"). Requests accept strings or bare numbers.

TYPES:
  Withholding:
    WithholdingRequest, WithholdingResponse
    BatchWithholdingRequest, BatchWithholdingResponse, RemittanceDTO

  Formulas:
    BPARequest, CPPRequest, EIRequest, LCFRequest, FormulaResponse

  Rate tables:
    RateTableDTO

  Records:
    RecordsResponse, ReverseRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest, ScenarioRunDTO

VALIDATION:
  Validation is done in handlers and the tax package, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - tax/inputs.go: PayPeriodInputs, WithholdingResult
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/records"
	"github.com/warp/payroll-engine/tax"
)

// =============================================================================
// WITHHOLDING
// =============================================================================

// WithholdingRequest computes one employee's pay period.
// Year zero means the default table year.
type WithholdingRequest struct {
	Year   int                 `json:"year"`
	Inputs tax.PayPeriodInputs `json:"inputs"`

	// UseHistory replaces the inputs' year-to-date fields with the sums of
	// the employee's recorded history.
	UseHistory bool `json:"use_history"`

	// Record appends the result to the employee's history.
	Record         bool   `json:"record"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// WithholdingResponse is the computed pay period.
type WithholdingResponse struct {
	Result     tax.WithholdingResult `json:"result"`
	Deductions decimal.Decimal       `json:"total_deductions"`
	Record     *records.Record       `json:"record,omitempty"`
}

// BatchWithholdingRequest computes a payroll run.
type BatchWithholdingRequest struct {
	Year       int                   `json:"year"`
	Inputs     []tax.PayPeriodInputs `json:"inputs"`
	UseHistory bool                  `json:"use_history"`
	Record     bool                  `json:"record"`

	// RunID makes a recorded run idempotent: each record's key is
	// "<run_id>/<employee_id>".
	RunID string `json:"run_id,omitempty"`
}

// RemittanceDTO totals what a run withheld.
type RemittanceDTO struct {
	Employees int             `json:"employees"`
	Tax       decimal.Decimal `json:"tax"`
	CPP       decimal.Decimal `json:"cpp"`
	CPP2      decimal.Decimal `json:"cpp2"`
	EI        decimal.Decimal `json:"ei"`
	Total     decimal.Decimal `json:"total"`
}

// BatchWithholdingResponse holds results in input order.
type BatchWithholdingResponse struct {
	Results    []tax.WithholdingResult `json:"results"`
	Remittance RemittanceDTO           `json:"remittance"`
	Records    []records.Record        `json:"records,omitempty"`
}

// =============================================================================
// FORMULAS
// =============================================================================

// BPARequest evaluates the federal basic personal amount.
type BPARequest struct {
	Year           int             `json:"year"`
	AnnualIncome   decimal.Decimal `json:"annual_income"`   // A
	PrescribedZone decimal.Decimal `json:"prescribed_zone"` // HD
}

// CPPRequest evaluates C, W and C2 for one pay period.
type CPPRequest struct {
	Year                   int             `json:"year"`
	PayPeriods             int             `json:"pay_periods"`
	ContributionMonths     int             `json:"contribution_months"`
	PensionableEarnings    decimal.Decimal `json:"pensionable_earnings"`
	YTDPensionableEarnings decimal.Decimal `json:"ytd_pensionable_earnings"`
	YTDCPP                 decimal.Decimal `json:"ytd_cpp"`
	YTDCPP2                decimal.Decimal `json:"ytd_cpp2"`
}

// EIRequest evaluates the EI premium for one pay period.
type EIRequest struct {
	Year              int             `json:"year"`
	InsurableEarnings decimal.Decimal `json:"insurable_earnings"`
	YTDEI             decimal.Decimal `json:"ytd_ei"`
}

// LCFRequest evaluates the federal labour-sponsored funds credit.
type LCFRequest struct {
	Year        int             `json:"year"`
	Acquisition decimal.Decimal `json:"acquisition"`
}

// FormulaResponse carries named factor values.
type FormulaResponse struct {
	Year   int                        `json:"year"`
	Values map[string]decimal.Decimal `json:"values"`
}

// =============================================================================
// RATE TABLES
// =============================================================================

// RateTableDTO acknowledges a published table.
type RateTableDTO struct {
	Year      int      `json:"year"`
	Provinces []string `json:"provinces"`
	Brackets  int      `json:"federal_brackets"`
}

// =============================================================================
// RECORDS
// =============================================================================

// RecordsResponse is an employee's history for a year.
type RecordsResponse struct {
	Records    []records.Record `json:"records"`
	YearToDate records.Totals   `json:"year_to_date"`
}

// ReverseRequest is the optional body of a reversal.
type ReverseRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo payroll year.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	EmployeeID  string `json:"employee_id"`
	PayPeriods  int    `json:"pay_periods"`
}

// LoadScenarioRequest is the request to run a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Year       int    `json:"year"`
}

// PeriodDTO is one computed pay period of a scenario.
type PeriodDTO struct {
	Period        int             `json:"period"`
	Tax           decimal.Decimal `json:"tax"`
	CPP           decimal.Decimal `json:"cpp"`
	CPP2          decimal.Decimal `json:"cpp2"`
	EI            decimal.Decimal `json:"ei"`
	FloorOverride bool            `json:"floor_override,omitempty"`
}

// ScenarioRunDTO is the outcome of running a scenario.
type ScenarioRunDTO struct {
	Scenario   ScenarioDTO    `json:"scenario"`
	Periods    []PeriodDTO    `json:"periods"`
	YearToDate records.Totals `json:"year_to_date"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
