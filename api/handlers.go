/*
handlers.go - HTTP API handlers for the loan servicing engine

PURPOSE:
  Exposes the modification engine and payment waterfall via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Loans:
    GET    /api/loans                    List all loans
    POST   /api/loans                    Originate a loan
    GET    /api/loans/{id}               Get loan details
    GET    /api/loans/{id}/schedule      Full amortization schedule

  Modifications:
    GET    /api/modifications/types              Catalog listing
    GET    /api/modifications/types/{type}/schema Field schema for one type
    GET    /api/loans/{id}/modifications         Audit history
    POST   /api/loans/{id}/modifications/validate Validate one modification
    POST   /api/loans/{id}/modifications/impact   Impact projection (cached)

  Restructure:
    POST   /api/loans/{id}/restructure/preview   Project a package
    POST   /api/loans/{id}/restructure/commit    Commit a package

  Waterfall:
    POST   /api/waterfall/apply          Allocate a payment
    GET    /api/waterfall/config         Active allocation sequence

  Scenarios:
    GET    /api/scenarios                Demo scenario catalog
    POST   /api/scenarios/load           Load a demo scenario (dev only)

  Admin:
    POST   /api/admin/reset              Database reset (dev only)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (loans + append-only audit log)
  - Factory: JSON to modification request conversion
  - Allocator: Default payment waterfall
  - validator/calculator/pipeline: The modification engine
  - cache: Memoized impact projections (optional)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (validator, calculator, pipeline, allocator)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with the status the error class maps to:
  - 400: Validation errors, unknown modification types, invalid input
  - 404: Loan or record not found
  - 422: Calculation cannot proceed (degenerate amortization inputs)
  - 502: Commit persistence failures
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Automatic reversion processing
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian/loan-engine/amort"
	"github.com/meridian/loan-engine/cache"
	"github.com/meridian/loan-engine/factory"
	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/metrics"
	"github.com/meridian/loan-engine/modification"
	"github.com/meridian/loan-engine/store/sqlite"
	"github.com/meridian/loan-engine/waterfall"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Factory   *factory.RequestFactory
	Products  *factory.ProductFactory
	Allocator *waterfall.Allocator

	amortizer  loan.Amortizer
	validator  *modification.Validator
	calculator *modification.ImpactCalculator
	pipeline   *modification.RestructurePipeline
	cache      cache.Cache
}

// NewHandler creates a new handler with the given store and waterfall.
// The cache may be nil, which disables impact memoization.
func NewHandler(store *sqlite.Store, alloc *waterfall.Allocator, c cache.Cache) *Handler {
	amortizer := amort.NewStandard()
	return &Handler{
		Store:      store,
		Factory:    factory.NewRequestFactory(),
		Products:   factory.NewProductFactory(),
		Allocator:  alloc,
		amortizer:  amortizer,
		validator:  modification.NewValidator(),
		calculator: modification.NewImpactCalculator(amortizer),
		pipeline:   modification.NewRestructurePipeline(amortizer, store),
		cache:      c,
	}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns every servicing record.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Store.ListLoans(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loans", err)
		return
	}

	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetLoan returns a single servicing record.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toLoanDTO(l))
}

// CreateLoan originates a new loan.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(req.Borrower) == "" {
		writeDomainError(w, "Invalid loan", &loan.FieldError{Field: "borrower", Code: "required", Message: "borrower is required"})
		return
	}

	terms, err := h.Products.FromJSON(req.ProductJSON)
	if err != nil {
		writeDomainError(w, "Invalid loan terms", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	l := &loan.Loan{
		ID:             loan.LoanID(id),
		Borrower:       req.Borrower,
		Terms:          terms,
		CurrentBalance: terms.Principal,
		CurrentTerm:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.Store.SaveLoan(r.Context(), l); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create loan", err)
		return
	}

	writeJSON(w, http.StatusCreated, toLoanDTO(l))
}

// GetSchedule returns the full amortization table for the loan's
// contract terms.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	payment, err := h.amortizer.ComputePayment(l.Terms)
	if err != nil {
		writeDomainError(w, "Schedule computation failed", err)
		return
	}
	entries, err := h.amortizer.Schedule(l.Terms)
	if err != nil {
		writeDomainError(w, "Schedule computation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ScheduleResponse{
		LoanID:        string(l.ID),
		Payment:       payment,
		TotalInterest: loan.TotalInterest(entries),
		TotalPaid:     loan.TotalPaid(entries),
		Entries:       entries,
	})
}

// =============================================================================
// MODIFICATION CATALOG HANDLERS
// =============================================================================

// ListModificationTypes returns the full catalog with field schemas.
func (h *Handler) ListModificationTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modification.Descriptors())
}

// GetModificationSchema returns the descriptor for one modification type.
func (h *Handler) GetModificationSchema(w http.ResponseWriter, r *http.Request) {
	t := modification.Type(chi.URLParam(r, "type"))

	for _, d := range modification.Descriptors() {
		if d.Type == t {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}

	writeDomainError(w, "Unknown modification type", &loan.UnknownTypeError{Type: string(t)})
}

// =============================================================================
// VALIDATION AND IMPACT HANDLERS
// =============================================================================

// ValidateModification runs catalog validation for one modification
// against the loan's current state. Validation outcomes are data, not
// errors: an invalid modification still returns 200 with isValid=false.
func (h *Handler) ValidateModification(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	req, err := h.Factory.ParseRequest(l.ID, body)
	if err != nil {
		writeDomainError(w, "Invalid modification request", err)
		return
	}

	asOf, err := parseAsOf(r)
	if err != nil {
		writeDomainError(w, "Invalid asOf date", err)
		return
	}

	result, err := h.validator.Validate(l.Terms, req, modification.ParamsForLoan(l, asOf))
	if err != nil {
		writeDomainError(w, "Validation failed", err)
		return
	}
	if !result.IsValid {
		metrics.IncValidationFailure(string(req.Type))
	}

	writeJSON(w, http.StatusOK, result)
}

// CalculateImpact projects the before/after effect of one modification.
// Results are memoized per loan version; any write to the loan changes
// UpdatedAt and naturally invalidates its cache entries.
func (h *Handler) CalculateImpact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	req, err := h.Factory.ParseRequest(l.ID, body)
	if err != nil {
		writeDomainError(w, "Invalid modification request", err)
		return
	}

	asOf, err := parseAsOf(r)
	if err != nil {
		writeDomainError(w, "Invalid asOf date", err)
		return
	}
	params := modification.ParamsForLoan(l, asOf)

	validation, err := h.validator.Validate(l.Terms, req, params)
	if err != nil {
		metrics.ObserveImpact(string(req.Type), metrics.ResultError, time.Since(start))
		writeDomainError(w, "Validation failed", err)
		return
	}
	if !validation.IsValid {
		metrics.IncValidationFailure(string(req.Type))
		metrics.ObserveImpact(string(req.Type), metrics.ResultRejected, time.Since(start))
		first := validation.FirstError()
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Modification failed validation",
			Code:    first.Code,
			Details: validation.Errors,
		})
		return
	}

	key := cache.Key(string(l.ID), l.UpdatedAt, string(req.Type), string(body), asOf.Format("2006-01-02"))
	if h.cache != nil {
		if raw, hit := h.cache.Get(r.Context(), key); hit {
			var dto ImpactDTO
			if err := json.Unmarshal([]byte(raw), &dto); err == nil {
				metrics.IncCacheHit()
				metrics.ObserveImpact(string(req.Type), metrics.ResultSuccess, time.Since(start))
				writeJSON(w, http.StatusOK, dto)
				return
			}
		}
		metrics.IncCacheMiss()
	}

	result, err := h.calculator.CalculateImpact(l.Terms, req, params)
	if err != nil {
		metrics.ObserveImpact(string(req.Type), metrics.ResultError, time.Since(start))
		writeDomainError(w, "Impact calculation failed", err)
		return
	}

	dto := toImpactDTO(result)
	if h.cache != nil {
		if raw, err := json.Marshal(dto); err == nil {
			h.cache.Set(r.Context(), key, string(raw))
		}
	}

	metrics.ObserveImpact(string(req.Type), metrics.ResultSuccess, time.Since(start))
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// RESTRUCTURE HANDLERS
// =============================================================================

// PreviewRestructure folds a modification package over the loan and
// returns the projected outcome without persisting anything.
func (h *Handler) PreviewRestructure(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	var req RestructureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	mods, err := h.parseModifications(l.ID, req.Modifications)
	if err != nil {
		writeDomainError(w, "Invalid modification package", err)
		return
	}

	projected, err := h.pipeline.Project(l, mods)
	if err != nil {
		metrics.ObserveProjection(metrics.ResultError, time.Since(start))
		writeDomainError(w, "Projection failed", err)
		return
	}

	metrics.ObserveProjection(metrics.ResultSuccess, time.Since(start))
	writeJSON(w, http.StatusOK, projected)
}

// CommitRestructure validates, projects, and durably commits a
// modification package: one audit record plus the updated servicing
// record, written atomically.
func (h *Handler) CommitRestructure(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	var req RestructureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	mods, err := h.parseModifications(l.ID, req.Modifications)
	if err != nil {
		writeDomainError(w, "Invalid modification package", err)
		return
	}

	asOf, err := parseAsOf(r)
	if err != nil {
		writeDomainError(w, "Invalid asOf date", err)
		return
	}
	params := modification.ParamsForLoan(l, asOf)

	for _, m := range mods {
		validation, err := h.validator.Validate(l.Terms, m, params)
		if err != nil {
			metrics.IncCommit(metrics.ResultError)
			writeDomainError(w, "Validation failed", err)
			return
		}
		if !validation.IsValid {
			metrics.IncValidationFailure(string(m.Type))
			metrics.IncCommit(metrics.ResultRejected)
			first := validation.FirstError()
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Modification failed validation",
				Code:    first.Code,
				Details: validation.Errors,
			})
			return
		}
	}

	projected, err := h.pipeline.Project(l, mods)
	if err != nil {
		metrics.IncCommit(metrics.ResultError)
		writeDomainError(w, "Projection failed", err)
		return
	}

	record, err := h.pipeline.CommitModifications(r.Context(), l, mods, req.Reason, req.ApprovedBy)
	if err != nil {
		metrics.IncCommit(metrics.ResultError)
		writeDomainError(w, "Commit failed", err)
		return
	}

	modification.ApplyProjection(l, projected, mods, time.Now().UTC())
	if err := h.Store.SaveLoan(r.Context(), l); err != nil {
		metrics.IncCommit(metrics.ResultError)
		writeError(w, http.StatusBadGateway, "Failed to persist restructured loan", err)
		return
	}

	metrics.IncCommit(metrics.ResultSuccess)
	writeJSON(w, http.StatusCreated, CommitResponse{
		Record:    toRecordDTO(record),
		Projected: projected,
		Loan:      toLoanDTO(l),
	})
}

// ListModifications returns the loan's audit history, oldest first.
func (h *Handler) ListModifications(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLoan(w, r)
	if !ok {
		return
	}

	records, err := h.Store.History(r.Context(), l.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load modification history", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// =============================================================================
// WATERFALL HANDLERS
// =============================================================================

// ApplyWaterfall allocates a payment across outstanding categories.
// The request may carry its own step sequence; the server default
// applies otherwise.
func (h *Handler) ApplyWaterfall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req WaterfallApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	alloc := h.Allocator
	if len(req.WaterfallConfig) > 0 {
		steps := make([]waterfall.Step, len(req.WaterfallConfig))
		for i, s := range req.WaterfallConfig {
			steps[i] = waterfall.Step{
				Category:      waterfall.Category(s.Category),
				PercentageCap: s.PercentageCap,
			}
		}
		var err error
		alloc, err = waterfall.NewAllocator(steps)
		if err != nil {
			metrics.ObserveWaterfall(metrics.ResultError, 0, time.Since(start))
			writeDomainError(w, "Invalid waterfall configuration", err)
			return
		}
	}

	outstanding := make(waterfall.Outstanding, len(req.Outstanding))
	for k, v := range req.Outstanding {
		c := waterfall.Category(k)
		if !waterfall.ValidCategory(c) {
			metrics.ObserveWaterfall(metrics.ResultError, 0, time.Since(start))
			writeDomainError(w, "Invalid outstanding amounts", &loan.FieldError{Field: "outstandingAmounts." + k, Code: "unknown_category", Message: "unknown outstanding category " + k})
			return
		}
		outstanding[c] = v
	}

	result, err := alloc.Apply(req.Payment, outstanding)
	if err != nil {
		metrics.ObserveWaterfall(metrics.ResultError, 0, time.Since(start))
		writeDomainError(w, "Allocation failed", err)
		return
	}

	surplus, _ := result.RemainingPayment.Float64()
	metrics.ObserveWaterfall(metrics.ResultSuccess, surplus, time.Since(start))
	writeJSON(w, http.StatusOK, WaterfallApplyResponse{
		AppliedAmounts:   result.Applied,
		TotalApplied:     result.TotalApplied(),
		RemainingPayment: result.RemainingPayment,
	})
}

// GetWaterfallConfig returns the server's active allocation sequence.
func (h *Handler) GetWaterfallConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WaterfallConfigResponse{Steps: toStepDTOs(h.Allocator.Steps())})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears all data. Used by tests and local development.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// loadLoan fetches the loan named in the URL, writing the error
// response itself when the loan cannot be served.
func (h *Handler) loadLoan(w http.ResponseWriter, r *http.Request) (*loan.Loan, bool) {
	l, err := h.Store.GetLoan(r.Context(), loan.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		if loan.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Loan not found", err)
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to load loan", err)
		}
		return nil, false
	}
	return l, true
}

// parseModifications converts wire modifications into domain requests.
func (h *Handler) parseModifications(loanID loan.LoanID, in []factory.RequestJSON) ([]*modification.Request, error) {
	mods := make([]*modification.Request, 0, len(in))
	for _, rj := range in {
		req, err := h.Factory.FromJSON(loanID, rj)
		if err != nil {
			return nil, err
		}
		mods = append(mods, req)
	}
	return mods, nil
}

// parseAsOf reads the asOf query parameter (YYYY-MM-DD), defaulting to
// the current UTC instant when absent.
func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, &loan.FieldError{Field: "asOf", Code: "invalid_format", Message: "asOf must be formatted YYYY-MM-DD"}
	}
	return t, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loan.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, loan.ErrValidation):
		return http.StatusBadRequest
	case loan.IsNotFound(err):
		return http.StatusNotFound
	case loan.IsCalculation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loan.ErrCommit):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err with the status its class maps to.
// Field errors carry their field/code pair in the details payload.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message}
	var fieldErr *loan.FieldError
	if errors.As(err, &fieldErr) {
		resp.Code = fieldErr.Code
		resp.Details = fieldErr
	} else if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
