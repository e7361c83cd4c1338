/*
scenarios.go - Demo payroll years for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that run a whole year of pay periods for a
	demo employee and record every period in the ledger. Each period feeds
	the previous periods' totals back in as year-to-date inputs, so the
	CPP, CPP2 and EI ceilings show up exactly where payroll would hit them.

AVAILABLE SCENARIOS:

	biweekly-ontario: 26 pays of 2000, the everyday case
	high-earner:      26 pays of 10000, CPP/CPP2/EI maximums reached mid-year
	additional-tax:   52 weekly pays where deductions exceed income and the
	                  requested additional tax is withheld instead

HOW SCENARIOS WORK:
 1. Look up the tax year's parameters
 2. For each pay period: sum the history, fill year-to-date inputs
 3. Calculate the period
 4. Append the record under "scenario/<id>/<year>/<period>"

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "high-earner"}

	Loading a scenario twice is rejected with 409: the history is
	append-only and the first period's key already exists.

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and inputs

SEE ALSO:
  - handlers.go: withholding handlers
  - records/ledger.go: YearToDate
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/records"
	"github.com/warp/payroll-engine/tax"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	inputs func() tax.PayPeriodInputs
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "biweekly-ontario",
			Name:        "Bi-weekly Ontario",
			Description: "26 pays of 2000 with default TD1 claims",
			EmployeeID:  "demo-biweekly",
			PayPeriods:  26,
		},
		inputs: func() tax.PayPeriodInputs {
			return ontarioPay("demo-biweekly", 26, "2000")
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "high-earner",
			Name:        "High Earner",
			Description: "26 pays of 10000; CPP, CPP2 and EI stop once their annual maximums are reached",
			EmployeeID:  "demo-high",
			PayPeriods:  26,
		},
		inputs: func() tax.PayPeriodInputs {
			return ontarioPay("demo-high", 26, "10000")
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "additional-tax",
			Name:        "Additional Tax",
			Description: "52 weekly pays of 500 with a 600 RRSP deduction; the requested 20 of additional tax is withheld",
			EmployeeID:  "demo-additional",
			PayPeriods:  52,
		},
		inputs: func() tax.PayPeriodInputs {
			in := ontarioPay("demo-additional", 52, "500")
			in.RegisteredPlanDeduction = decimal.NewFromInt(600)
			in.AdditionalTax = decimal.NewFromInt(20)
			return in
		},
	},
}

func ontarioPay(employeeID string, periods int, gross string) tax.PayPeriodInputs {
	amount := decimal.RequireFromString(gross)
	return tax.PayPeriodInputs{
		EmployeeID:          employeeID,
		Jurisdiction:        tax.Ontario,
		Mode:                tax.ModePeriodic,
		PayPeriods:          periods,
		ContributionMonths:  12,
		Gross:               amount,
		PensionableEarnings: amount,
		InsurableEarnings:   amount,
	}
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario runs a scenario's year and records it.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Unknown scenario",
			Code:    "scenario_not_found",
			Details: req.ScenarioID,
		})
		return
	}

	run, err := h.runScenario(r.Context(), s, req.Year)
	if err != nil {
		h.writeError(w, r, "Failed to load scenario", err)
		return
	}

	h.Log.Info("scenario loaded",
		zap.String("scenario", s.ID),
		zap.Int("periods", len(run.Periods)),
		zap.Stringer("tax", run.YearToDate.Tax),
	)
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) runScenario(ctx context.Context, s scenario, year int) (ScenarioRunDTO, error) {
	calc, err := h.calculator(ctx, year)
	if err != nil {
		return ScenarioRunDTO{}, err
	}
	year = calc.Params.Year

	run := ScenarioRunDTO{Scenario: s.ScenarioDTO}
	start := time.Date(year, time.January, 1, 12, 0, 0, 0, time.UTC)
	spacing := (365 * 24 * time.Hour) / time.Duration(s.PayPeriods)

	for pc := 1; pc <= s.PayPeriods; pc++ {
		in := s.inputs()
		in.CurrentPayPeriod = pc
		in.PayPeriodsRemaining = s.PayPeriods - pc + 1

		if err := h.withHistory(ctx, year, &in); err != nil {
			return ScenarioRunDTO{}, err
		}

		result, err := calc.Calculate(in)
		if err != nil {
			return ScenarioRunDTO{}, errors.Wrapf(err, "period %d", pc)
		}

		rec := records.NewRecord(in, result, fmt.Sprintf("scenario/%s/%d/%d", s.ID, year, pc))
		rec.RecordedAt = start.Add(time.Duration(pc-1) * spacing)
		if err := h.Ledger.Append(ctx, rec); err != nil {
			return ScenarioRunDTO{}, errors.Wrapf(err, "period %d", pc)
		}

		run.Periods = append(run.Periods, PeriodDTO{
			Period:        pc,
			Tax:           result.Tax,
			CPP:           result.CPP,
			CPP2:          result.CPP2,
			EI:            result.EI,
			FloorOverride: result.FloorOverride,
		})
	}

	totals, err := h.Ledger.YearToDate(ctx, s.EmployeeID, year)
	if err != nil {
		return ScenarioRunDTO{}, err
	}
	run.YearToDate = totals
	return run, nil
}
