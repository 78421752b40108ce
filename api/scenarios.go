/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  servicing data for testing and demos. Each scenario creates loans, and
  where relevant committed modification packages, demonstrating specific
  engine features.

AVAILABLE SCENARIOS:
  servicing-book:       Performing loans across terms and frequencies
  balloon-note:         Commercial-style balloon loan
  hardship-window:      Forbearance committed, relief window still open
  seasoned-restructure: Multi-step package whose window already ended

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Build terms from product JSON via the product factory
 3. Save the servicing records, aged along their schedules
 4. Commit modification packages through the restructure pipeline

USAGE VIA API:
  POST /api/scenarios/load
  {"scenarioId": "hardship-window"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.
  The seasoned-restructure scenario leaves a reversion due in the past,
  so the next scheduler pass closes it - handy for demoing reversions.

SEE ALSO:
  - factory/product.go: product JSON definitions
  - modification/pipeline.go: the commit path scenarios drive
  - scheduler.go: picks up the seeded pending reversion
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "servicing-book",
		Name:        "Servicing Book",
		Description: "Three performing loans: a seasoned 30-year, a fresh auto note, a biweekly personal loan",
		Category:    "loans",
	},
	{
		ID:          "balloon-note",
		Name:        "Balloon Note",
		Description: "Commercial-style loan on 30/360 with a balloon due at maturity",
		Category:    "loans",
	},
	{
		ID:          "hardship-window",
		Name:        "Hardship Window",
		Description: "Full-pause forbearance committed this month, automatic reversion six months out",
		Category:    "modifications",
	},
	{
		ID:          "seasoned-restructure",
		Name:        "Seasoned Restructure",
		Description: "Rate cut plus temporary reduction committed seven months ago; the relief window has ended",
		Category:    "modifications",
	},
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// LoadScenarioResponse reports what the loader created.
type LoadScenarioResponse struct {
	Status     string   `json:"status"`
	ScenarioID string   `json:"scenarioId"`
	Loans      []string `json:"loans"`
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the database and loads the named scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var (
		ids []string
		err error
	)
	switch req.ScenarioID {
	case "servicing-book":
		ids, err = h.loadServicingBook(ctx)
	case "balloon-note":
		ids, err = h.loadBalloonNote(ctx)
	case "hardship-window":
		ids, err = h.loadHardshipWindow(ctx)
	case "seasoned-restructure":
		ids, err = h.loadSeasonedRestructure(ctx)
	default:
		writeDomainError(w, "Unknown scenario", &loan.FieldError{Field: "scenarioId", Code: "unknown", Message: "unknown scenario " + req.ScenarioID})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Status:     "ok",
		ScenarioID: req.ScenarioID,
		Loans:      ids,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadServicingBook(ctx context.Context) ([]string, error) {
	start := monthStart(time.Now().UTC())

	seasoned, err := h.seedLoan(ctx, "LN-1001", "Whitfield, Dana", fmt.Sprintf(`{
		"principal": "100000", "annualRate": "6", "termMonths": 360,
		"startDate": %q
	}`, start.AddDate(0, -24, 0).Format("2006-01-02")))
	if err != nil {
		return nil, err
	}
	if err := h.ageLoan(ctx, seasoned, 24); err != nil {
		return nil, err
	}

	if _, err := h.seedLoan(ctx, "LN-1002", "Raman, Priya", fmt.Sprintf(`{
		"principal": "28000", "annualRate": "7.9", "termMonths": 60,
		"startDate": %q
	}`, start.Format("2006-01-02"))); err != nil {
		return nil, err
	}

	if _, err := h.seedLoan(ctx, "LN-1003", "Okafor, Chidi", fmt.Sprintf(`{
		"principal": "15000", "annualRate": "5", "termMonths": 12,
		"startDate": %q, "frequency": "BIWEEKLY"
	}`, start.Format("2006-01-02"))); err != nil {
		return nil, err
	}

	return []string{"LN-1001", "LN-1002", "LN-1003"}, nil
}

func (h *Handler) loadBalloonNote(ctx context.Context) ([]string, error) {
	start := monthStart(time.Now().UTC()).AddDate(0, -6, 0)

	note, err := h.seedLoan(ctx, "LN-2001", "Marsh Holdings LLC", fmt.Sprintf(`{
		"principal": "250000", "annualRate": "6.5", "termMonths": 84,
		"startDate": %q, "dayCount": "30/360",
		"balloonAmount": "150000", "balloonDueDate": %q
	}`, start.Format("2006-01-02"), start.AddDate(0, 84, 0).Format("2006-01-02")))
	if err != nil {
		return nil, err
	}
	if err := h.ageLoan(ctx, note, 6); err != nil {
		return nil, err
	}

	return []string{"LN-2001"}, nil
}

func (h *Handler) loadHardshipWindow(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	effective := monthStart(now)

	l, err := h.seedLoan(ctx, "LN-3001", "Delgado, Rosa", fmt.Sprintf(`{
		"principal": "180000", "annualRate": "5.5", "termMonths": 360,
		"startDate": %q
	}`, effective.AddDate(0, -36, 0).Format("2006-01-02")))
	if err != nil {
		return nil, err
	}
	if err := h.ageLoan(ctx, l, 36); err != nil {
		return nil, err
	}

	pause := modification.NewRequest(l.ID, &modification.Forbearance{
		DurationMonths: 6,
		Type:           modification.FullPause,
	}, effective, "hardship assistance", "servicer-demo")

	if err := h.seedCommit(ctx, l, []*modification.Request{pause}, "hardship assistance", "supervisor-demo"); err != nil {
		return nil, err
	}

	return []string{"LN-3001"}, nil
}

func (h *Handler) loadSeasonedRestructure(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	effective := monthStart(now).AddDate(0, -7, 0)

	l, err := h.seedLoan(ctx, "LN-4001", "Nakamura, Kenji", fmt.Sprintf(`{
		"principal": "220000", "annualRate": "7.25", "termMonths": 360,
		"startDate": %q
	}`, effective.AddDate(0, -60, 0).Format("2006-01-02")))
	if err != nil {
		return nil, err
	}
	if err := h.ageLoan(ctx, l, 60); err != nil {
		return nil, err
	}

	// Reversion lands four months in the past, so the next scheduler
	// pass has real work to do.
	mods := []*modification.Request{
		modification.NewRequest(l.ID, &modification.RateChange{
			NewAnnualRate: loan.MustRate("5.75"),
		}, effective, "workout agreement", "servicer-demo"),
		modification.NewRequest(l.ID, &modification.TemporaryPaymentReduction{
			ReducedPayment:   loan.MustMoney("900"),
			NumberOfTerms:    3,
			InterestHandling: modification.Defer,
		}, effective, "workout agreement", "servicer-demo"),
	}

	if err := h.seedCommit(ctx, l, mods, "workout agreement", "supervisor-demo"); err != nil {
		return nil, err
	}

	return []string{"LN-4001"}, nil
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// seedLoan builds terms from a product definition and saves a fresh
// servicing record.
func (h *Handler) seedLoan(ctx context.Context, id loan.LoanID, borrower, product string) (*loan.Loan, error) {
	terms, err := h.Products.ParseProduct([]byte(product))
	if err != nil {
		return nil, fmt.Errorf("scenario loan %s: %w", id, err)
	}

	now := time.Now().UTC()
	l := &loan.Loan{
		ID:             id,
		Borrower:       borrower,
		Terms:          terms,
		CurrentBalance: terms.Principal,
		CurrentTerm:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.Store.SaveLoan(ctx, l); err != nil {
		return nil, fmt.Errorf("scenario loan %s: %w", id, err)
	}
	return l, nil
}

// ageLoan advances the record past paymentsMade scheduled payments,
// taking the running balance from the contract schedule.
func (h *Handler) ageLoan(ctx context.Context, l *loan.Loan, paymentsMade int) error {
	entries, err := h.amortizer.Schedule(l.Terms)
	if err != nil {
		return fmt.Errorf("scenario loan %s: %w", l.ID, err)
	}
	if paymentsMade > len(entries) {
		paymentsMade = len(entries)
	}
	if paymentsMade > 0 {
		l.CurrentBalance = entries[paymentsMade-1].Balance
		l.CurrentTerm = paymentsMade + 1
	}
	if err := h.Store.SaveLoan(ctx, l); err != nil {
		return fmt.Errorf("scenario loan %s: %w", l.ID, err)
	}
	return nil
}

// seedCommit commits a modification package and applies the projection
// to the servicing record, the same path the commit endpoint takes.
func (h *Handler) seedCommit(ctx context.Context, l *loan.Loan, mods []*modification.Request, reason, approvedBy string) error {
	projected, err := h.pipeline.Project(l, mods)
	if err != nil {
		return fmt.Errorf("scenario loan %s: %w", l.ID, err)
	}
	if _, err := h.pipeline.CommitModifications(ctx, l, mods, reason, approvedBy); err != nil {
		return fmt.Errorf("scenario loan %s: %w", l.ID, err)
	}
	modification.ApplyProjection(l, projected, mods, time.Now().UTC())
	if err := h.Store.SaveLoan(ctx, l); err != nil {
		return fmt.Errorf("scenario loan %s: %w", l.ID, err)
	}
	return nil
}

// monthStart truncates to the first of the month, keeping demo dates
// aligned with payment periods.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
