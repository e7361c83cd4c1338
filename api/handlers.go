/*
handlers.go - HTTP API handlers for the payroll withholding engine

PURPOSE:
  Exposes the withholding calculator, the individual formulas, rate-table
  publishing and the withholding history via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to the tax,
  ratetable and records packages.

ENDPOINTS:
  Withholding:
    POST   /api/withholding            Compute one pay period
    POST   /api/withholding/batch      Compute a payroll run

  Formulas:
    POST   /api/formulas/bpa           Federal basic personal amount
    POST   /api/formulas/cpp           C, W and C2
    POST   /api/formulas/ei            EI premium
    POST   /api/formulas/lcf           Labour-sponsored funds credit

  Rate tables:
    GET    /api/rates/{year}           Table as JSON (or YAML, ?format=yaml)
    POST   /api/rates                  Publish a YAML or JSON document

  Records:
    GET    /api/records?employee=&year= History and year-to-date totals
    POST   /api/records/{id}/reverse     Append a reversal

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Rates:     Provider of tax-year parameters
  - Publisher: Destination for uploaded rate documents
  - Ledger:    Withholding history
  - Log:       Request-scoped logging

REQUEST FLOW:
  1. Parse HTTP request
  2. Look up the tax year's parameters
  3. Optionally replay history into the year-to-date inputs
  4. Calculate (pure)
  5. Optionally record, serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, precondition violated, invalid document/record
  - 404: Rate table or record not found
  - 409: Duplicate idempotency key, record already reversed
  - 422: Income falls outside every bracket of a formula
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo payroll years
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/records"
	"github.com/warp/payroll-engine/tax"
)

// maxDocumentBytes bounds uploaded rate documents.
const maxDocumentBytes = 1 << 20

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// TablePublisher accepts rate documents. ratetable.Registry and both SQL
// stores implement it.
type TablePublisher interface {
	SaveDocument(ctx context.Context, doc []byte, format ratetable.Format) (*tax.TaxYearParameters, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Rates     ratetable.Provider
	Publisher TablePublisher
	Ledger    *records.Ledger
	Log       *zap.Logger
}

// NewHandler creates a new handler. A nil logger discards output.
func NewHandler(rates ratetable.Provider, publisher TablePublisher, ledger *records.Ledger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Rates:     rates,
		Publisher: publisher,
		Ledger:    ledger,
		Log:       log,
	}
}

func (h *Handler) params(ctx context.Context, year int) (*tax.TaxYearParameters, error) {
	if year == 0 {
		year = ratetable.DefaultYear
	}
	return h.Rates.Table(ctx, year)
}

func (h *Handler) calculator(ctx context.Context, year int) (*tax.Calculator, error) {
	p, err := h.params(ctx, year)
	if err != nil {
		return nil, err
	}
	return tax.NewCalculator(p), nil
}

// withHistory fills the year-to-date fields of in from the ledger.
func (h *Handler) withHistory(ctx context.Context, year int, in *tax.PayPeriodInputs) error {
	if in.EmployeeID == "" {
		return errors.Wrap(errBadRequest, "use_history requires inputs.employee_id")
	}
	totals, err := h.Ledger.YearToDate(ctx, in.EmployeeID, year)
	if err != nil {
		return errors.Wrapf(err, "load history for %s", in.EmployeeID)
	}
	totals.Apply(in)
	return nil
}

// =============================================================================
// WITHHOLDING HANDLERS
// =============================================================================

// CalculateWithholding computes one employee's pay period.
// POST /api/withholding
func (h *Handler) CalculateWithholding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req WithholdingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}

	calc, err := h.calculator(ctx, req.Year)
	if err != nil {
		h.writeError(w, r, "Failed to load rate table", err)
		return
	}
	year := calc.Params.Year

	if req.UseHistory {
		if err := h.withHistory(ctx, year, &req.Inputs); err != nil {
			h.writeError(w, r, "Failed to apply history", err)
			return
		}
	}

	result, err := calc.Calculate(req.Inputs)
	if err != nil {
		h.writeError(w, r, "Failed to calculate withholding", err)
		return
	}

	resp := WithholdingResponse{Result: result, Deductions: result.TotalDeductions()}

	if req.Record {
		rec := records.NewRecord(req.Inputs, result, req.IdempotencyKey)
		if err := h.Ledger.Append(ctx, rec); err != nil {
			h.writeError(w, r, "Failed to record withholding", err)
			return
		}
		resp.Record = &rec
		h.Log.Info("withholding recorded",
			zap.String("record_id", rec.ID),
			zap.String("employee_id", rec.EmployeeID),
			zap.Int("year", rec.Year),
			zap.Stringer("tax", rec.Tax),
		)
	}

	writeJSON(w, http.StatusOK, resp)
}

// CalculateBatch computes a payroll run. Results are in input order.
// POST /api/withholding/batch
func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchWithholdingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}

	calc, err := h.calculator(ctx, req.Year)
	if err != nil {
		h.writeError(w, r, "Failed to load rate table", err)
		return
	}
	year := calc.Params.Year

	if req.UseHistory {
		for i := range req.Inputs {
			if err := h.withHistory(ctx, year, &req.Inputs[i]); err != nil {
				h.writeError(w, r, "Failed to apply history", &tax.BatchError{
					Index: i, EmployeeID: req.Inputs[i].EmployeeID, Err: err,
				})
				return
			}
		}
	}

	results, err := calc.CalculateBatch(ctx, req.Inputs)
	if err != nil {
		h.writeError(w, r, "Failed to calculate batch", err)
		return
	}

	resp := BatchWithholdingResponse{Results: results, Remittance: remittance(results)}

	if req.Record {
		recs := make([]records.Record, len(results))
		for i, result := range results {
			key := ""
			if req.RunID != "" {
				key = req.RunID + "/" + req.Inputs[i].EmployeeID
			}
			recs[i] = records.NewRecord(req.Inputs[i], result, key)
		}
		if err := h.Ledger.AppendBatch(ctx, recs); err != nil {
			h.writeError(w, r, "Failed to record batch", err)
			return
		}
		resp.Records = recs
		h.Log.Info("payroll run recorded",
			zap.String("run_id", req.RunID),
			zap.Int("employees", len(recs)),
			zap.Stringer("total", resp.Remittance.Total),
		)
	}

	writeJSON(w, http.StatusOK, resp)
}

func remittance(results []tax.WithholdingResult) RemittanceDTO {
	out := RemittanceDTO{Employees: len(results)}
	for _, r := range results {
		out.Tax = out.Tax.Add(r.Tax)
		out.CPP = out.CPP.Add(r.CPP)
		out.CPP2 = out.CPP2.Add(r.CPP2)
		out.EI = out.EI.Add(r.EI)
		out.Total = out.Total.Add(r.TotalDeductions())
	}
	return out
}

// =============================================================================
// FORMULA HANDLERS
// =============================================================================

// BasicPersonalAmount evaluates BPAF.
// POST /api/formulas/bpa
func (h *Handler) BasicPersonalAmount(w http.ResponseWriter, r *http.Request) {
	var req BPARequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}
	p, err := h.params(r.Context(), req.Year)
	if err != nil {
		h.writeError(w, r, "Failed to load rate table", err)
		return
	}

	bpaf, err := tax.BasicPersonalAmount(p, req.AnnualIncome, req.PrescribedZone)
	if err != nil {
		h.writeError(w, r, "Failed to evaluate BPAF", err)
		return
	}
	writeJSON(w, http.StatusOK, FormulaResponse{
		Year:   p.Year,
		Values: map[string]decimal.Decimal{"bpaf": bpaf},
	})
}

// Contributions evaluates C, W and C2.
// POST /api/formulas/cpp
func (h *Handler) Contributions(w http.ResponseWriter, r *http.Request) {
	var req CPPRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}
	p, err := h.params(r.Context(), req.Year)
	if err != nil {
		h.writeError(w, r, "Failed to load rate table", err)
		return
	}

	c, err := tax.CPPContribution(p, req.ContributionMonths, req.YTDCPP, req.PensionableEarnings, req.PayPeriods)
	if err != nil {
		h.writeError(w, r, "Failed to evaluate C", err)
		return
	}
	baseline, err := tax.PensionableBaseline(p, req.YTDPensionableEarnings, req.ContributionMonths)
	if err != nil {
		h.writeError(w, r, "Failed to evaluate W", err)
		return
	}
	c2, err := tax.SecondCPPContribution(p, req.ContributionMonths, req.YTDCPP2,
		req.YTDPensionableEarnings, req.PensionableEarnings, baseline)
	if err != nil {
		h.writeError(w, r, "Failed to evaluate C2", err)
		return
	}

	writeJSON(w, http.StatusOK, FormulaResponse{
		Year: p.Year,
		Values: map[string]decimal.Decimal{
			"c":  c,
			"w":  baseline,
			"c2": c2,
			"f5": tax.EnhancedCPPDeduction(p, c, c2),
		},
	})
}

// EmploymentInsurance evaluates the EI premium.
// POST /api/formulas/ei
func (h *Handler) EmploymentInsurance(w http.ResponseWriter, r *http.Request) {
	var req EIRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}
	p, err := h.params(r.Context(), req.Year)
	if err != nil {
		h.writeError(w, r, "Failed to load rate table", err)
		return
	}
	writeJSON(w, http.StatusOK, FormulaResponse{
		Year:   p.Year,
		Values: map[string]decimal.Decimal{"ei": tax.EIPremium(p, req.YTDEI, req.InsurableEarnings)},
	})
}

// LabourCredit evaluates LCF.
// POST /api/formulas/lcf
func (h *Handler) LabourCredit(w http.ResponseWriter, r *http.Request) {
	var req LCFRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "Invalid request body", err)
		return
	}
	p, err := h.params(r.Context(), req.Year)
	if err != nil {
		h.writeError(w, r, "Failed to load rate table", err)
		return
	}
	writeJSON(w, http.StatusOK, FormulaResponse{
		Year:   p.Year,
		Values: map[string]decimal.Decimal{"lcf": tax.NewFederalEngine(p).LCF(req.Acquisition)},
	})
}

// =============================================================================
// RATE TABLE HANDLERS
// =============================================================================

// GetRateTable returns a tax year's parameters.
// GET /api/rates/{year}?format=yaml
func (h *Handler) GetRateTable(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, "Invalid year", errors.Wrap(errBadRequest, err.Error()))
		return
	}

	p, err := h.Rates.Table(r.Context(), year)
	if err != nil {
		h.writeError(w, r, "Failed to load rate table", err)
		return
	}

	format := ratetable.Format(r.URL.Query().Get("format"))
	if format == "" && strings.Contains(r.Header.Get("Accept"), "yaml") {
		format = ratetable.FormatYAML
	}
	if format != ratetable.FormatYAML {
		writeJSON(w, http.StatusOK, p)
		return
	}

	doc, err := ratetable.Marshal(p, ratetable.FormatYAML)
	if err != nil {
		h.writeError(w, r, "Failed to encode rate table", err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// PublishRateTable stores a rate document. The format comes from the
// Content-Type header; anything but JSON is read as YAML.
// POST /api/rates
func (h *Handler) PublishRateTable(w http.ResponseWriter, r *http.Request) {
	if h.Publisher == nil {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Rate publishing is disabled"})
		return
	}

	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		h.writeError(w, r, "Failed to read document", errors.Wrap(errBadRequest, err.Error()))
		return
	}

	format := ratetable.FormatFromContentType(r.Header.Get("Content-Type"))
	p, err := h.Publisher.SaveDocument(r.Context(), doc, format)
	if err != nil {
		h.writeError(w, r, "Failed to publish rate table", err)
		return
	}

	provinces := make([]string, 0, len(p.Provinces))
	for j := range p.Provinces {
		provinces = append(provinces, string(j))
	}
	sort.Strings(provinces)

	h.Log.Info("rate table published", zap.Int("year", p.Year), zap.Strings("provinces", provinces))
	writeJSON(w, http.StatusCreated, RateTableDTO{
		Year:      p.Year,
		Provinces: provinces,
		Brackets:  len(p.Federal.Brackets),
	})
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// ListRecords returns an employee's history and totals for a year.
// GET /api/records?employee=emp-1&year=2025
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee")
	if employeeID == "" {
		h.writeError(w, r, "employee is required", errBadRequest)
		return
	}

	year := ratetable.DefaultYear
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			h.writeError(w, r, "Invalid year", errors.Wrap(errBadRequest, err.Error()))
			return
		}
		year = y
	}

	history, err := h.Ledger.History(r.Context(), employeeID, year)
	if err != nil {
		h.writeError(w, r, "Failed to load records", err)
		return
	}

	writeJSON(w, http.StatusOK, RecordsResponse{
		Records:    history,
		YearToDate: records.Sum(employeeID, year, history),
	})
}

// ReverseRecord appends the reversal of a record.
// POST /api/records/{id}/reverse
func (h *Handler) ReverseRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReverseRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, r, "Invalid request body", err)
			return
		}
	}

	reversal, err := h.Ledger.Reverse(r.Context(), id, req.IdempotencyKey)
	if err != nil {
		h.writeError(w, r, "Failed to reverse record", err)
		return
	}

	h.Log.Info("record reversed", zap.String("record_id", id), zap.String("reversal_id", reversal.ID))
	writeJSON(w, http.StatusCreated, reversal)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps an error to its HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case tax.IsDomainError(err):
		return http.StatusUnprocessableEntity, "no_income_bracket"
	case tax.IsPreconditionError(err):
		return http.StatusBadRequest, "precondition"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ratetable.ErrInvalidDocument), errors.Is(err, tax.ErrInvalidParameters):
		return http.StatusBadRequest, "invalid_rate_table"
	case errors.Is(err, records.ErrInvalidRecord):
		return http.StatusBadRequest, "invalid_record"
	case errors.Is(err, ratetable.ErrTableNotFound):
		return http.StatusNotFound, "rate_table_not_found"
	case errors.Is(err, records.ErrRecordNotFound):
		return http.StatusNotFound, "record_not_found"
	case errors.Is(err, records.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, "duplicate_idempotency_key"
	case errors.Is(err, records.ErrAlreadyReversed):
		return http.StatusConflict, "already_reversed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := statusFor(err)

	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}

	var batchErr *tax.BatchError
	if errors.As(err, &batchErr) {
		resp.Details = map[string]any{
			"index":       batchErr.Index,
			"employee_id": batchErr.EmployeeID,
			"error":       batchErr.Err.Error(),
		}
	}

	if status >= http.StatusInternalServerError {
		h.Log.Error(message, zap.Error(err), zap.String("path", r.URL.Path))
	} else {
		h.Log.Debug(message, zap.Error(err), zap.Int("status", status))
	}

	writeJSON(w, status, resp)
}
