package modification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridian/loan-engine/amort"
	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
	"github.com/meridian/loan-engine/modification/store"
)

// =============================================================================
// HELPERS
// =============================================================================

func newPipeline() *modification.RestructurePipeline {
	return modification.NewRestructurePipeline(amort.NewStandard(), store.NewMemory())
}

func benchmarkLoan(t *testing.T) *loan.Loan {
	t.Helper()
	return &loan.Loan{
		ID:             "LN-1001",
		Borrower:       "Dana Whitfield",
		Terms:          terms30(t),
		CurrentBalance: loan.MustMoney("100000"),
		CurrentTerm:    1,
	}
}

func agedLoan(t *testing.T) *loan.Loan {
	t.Helper()
	return &loan.Loan{
		ID:             "LN-1002",
		Borrower:       "Priya Raman",
		Terms:          terms30(t),
		CurrentBalance: loan.MustMoney("80000"),
		CurrentTerm:    61,
	}
}

// failingAudit refuses every write so commit failures can be exercised.
type failingAudit struct{}

func (failingAudit) AddModification(context.Context, *modification.ModificationRecord) error {
	return errors.New("disk full")
}
func (failingAudit) History(context.Context, loan.LoanID) ([]*modification.ModificationRecord, error) {
	return nil, nil
}
func (failingAudit) PendingReversions(context.Context, time.Time) ([]*modification.ModificationRecord, error) {
	return nil, nil
}

// =============================================================================
// PROJECT
// =============================================================================

func TestProject_EmptyPackageProjectsNoChange(t *testing.T) {
	proj, err := newPipeline().Project(benchmarkLoan(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cents(proj.Original.Payment) != "599.55" {
		t.Errorf("expected baseline payment 599.55, got %s", cents(proj.Original.Payment))
	}
	if !proj.Changes.MonthlyPayment.IsZero() || !proj.Changes.TotalInterest.IsZero() || !proj.Changes.TotalPayment.IsZero() {
		t.Errorf("empty package should change nothing: %+v", proj.Changes)
	}
	if !proj.Final.Payment.Equal(proj.Original.Payment) || proj.Final.TermMonths != proj.Original.TermMonths {
		t.Errorf("final snapshot drifted from original: %+v vs %+v", proj.Final, proj.Original)
	}
}

func TestProject_SingleRateChange(t *testing.T) {
	mods := []*modification.Request{
		request(&modification.RateChange{NewAnnualRate: loan.MustRate("4.5")}),
	}
	proj, err := newPipeline().Project(benchmarkLoan(t), mods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !proj.Final.AnnualRate.Equal(loan.MustRate("4.5")) {
		t.Errorf("rate not folded, got %s", proj.Final.AnnualRate)
	}
	if proj.Final.TermMonths != 360 {
		t.Errorf("term should not move, got %d", proj.Final.TermMonths)
	}
	if !proj.Changes.MonthlyPayment.IsNegative() || !proj.Changes.TotalInterest.IsNegative() {
		t.Errorf("a rate drop should reduce both deltas: %+v", proj.Changes)
	}
}

func TestProject_FoldOrderIsAContract(t *testing.T) {
	// GIVEN: A payment fix to 550 over 480 months, and a 60-month extension
	// WHEN: The same two modifications fold in opposite orders
	// THEN: Extension-last lands on 540 months, fix-last on 480
	fix := func() *modification.Request {
		return request(&modification.PermanentPaymentReduction{
			NewPayment:     loan.MustMoney("550"),
			TermAdjustment: modification.AdjustExtendTerm,
			NewTermMonths:  480,
		})
	}
	extend := func() *modification.Request {
		return request(&modification.TermExtension{AdditionalMonths: 60})
	}

	fixFirst, err := newPipeline().Project(benchmarkLoan(t), []*modification.Request{fix(), extend()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	extendFirst, err := newPipeline().Project(benchmarkLoan(t), []*modification.Request{extend(), fix()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fixFirst.Final.TermMonths != 540 {
		t.Errorf("fix-then-extend should land on 540, got %d", fixFirst.Final.TermMonths)
	}
	if extendFirst.Final.TermMonths != 480 {
		t.Errorf("extend-then-fix should land on 480, got %d", extendFirst.Final.TermMonths)
	}
	if fixFirst.Final.Payment.Equal(extendFirst.Final.Payment) {
		t.Error("different final horizons should price differently")
	}
}

func TestProject_FoldEstimatesAreLinear(t *testing.T) {
	t.Run("capitalized reduction shortfall", func(t *testing.T) {
		// Six months of (599.55 - 300) shortfall estimated against the
		// baseline payment: principal grows by exactly 1797.30.
		mods := []*modification.Request{
			request(&modification.TemporaryPaymentReduction{
				ReducedPayment:   loan.MustMoney("300"),
				NumberOfTerms:    6,
				InterestHandling: modification.Capitalize,
			}),
		}
		proj, err := newPipeline().Project(benchmarkLoan(t), mods)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents(proj.Final.Principal) != "101797.30" {
			t.Errorf("expected 101797.30, got %s", cents(proj.Final.Principal))
		}
		if !proj.Final.DeferredInterest.IsZero() {
			t.Errorf("CAPITALIZE tracks no deferral, got %s", cents(proj.Final.DeferredInterest))
		}
	})

	t.Run("deferred reduction shortfall", func(t *testing.T) {
		mods := []*modification.Request{
			request(&modification.TemporaryPaymentReduction{
				ReducedPayment:   loan.MustMoney("300"),
				NumberOfTerms:    6,
				InterestHandling: modification.Defer,
			}),
		}
		proj, err := newPipeline().Project(benchmarkLoan(t), mods)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents(proj.Final.DeferredInterest) != "1797.30" {
			t.Errorf("expected deferred 1797.30, got %s", cents(proj.Final.DeferredInterest))
		}
		if cents(proj.Final.Principal) != "100000.00" {
			t.Errorf("DEFER must not move the principal, got %s", cents(proj.Final.Principal))
		}
	})

	t.Run("forbearance simple-interest estimate", func(t *testing.T) {
		// Six paused months at 0.5% simple on 100000: exactly 3000.
		mods := []*modification.Request{
			request(&modification.Forbearance{
				DurationMonths: 6,
				Type:           modification.FullPause,
			}),
		}
		proj, err := newPipeline().Project(benchmarkLoan(t), mods)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents(proj.Final.Principal) != "103000.00" {
			t.Errorf("expected 103000.00, got %s", cents(proj.Final.Principal))
		}
	})

	t.Run("subsidized deferment folds to a no-op", func(t *testing.T) {
		mods := []*modification.Request{
			request(&modification.Deferment{DurationMonths: 6, InterestSubsidy: true}),
		}
		proj, err := newPipeline().Project(benchmarkLoan(t), mods)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents(proj.Final.Principal) != "100000.00" {
			t.Errorf("subsidy should freeze the principal, got %s", cents(proj.Final.Principal))
		}
	})

	t.Run("balloon assignment and removal toggle the balloon", func(t *testing.T) {
		assign := request(&modification.BalloonAssignment{
			BalloonAmount:       loan.MustMoney("20000"),
			BalloonDueDate:      effective2025().AddDate(5, 0, 0),
			ReamortizationStart: modification.StartCurrentTerm,
		})
		remove := request(&modification.BalloonRemoval{
			Reamortization: modification.RemovalIncreasePayment,
		})

		proj, err := newPipeline().Project(benchmarkLoan(t), []*modification.Request{assign})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cents(proj.Final.Balloon) != "20000.00" {
			t.Errorf("expected balloon 20000.00, got %s", cents(proj.Final.Balloon))
		}

		proj, err = newPipeline().Project(benchmarkLoan(t), []*modification.Request{assign, remove})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !proj.Final.Balloon.IsZero() {
			t.Errorf("removal should clear the balloon, got %s", cents(proj.Final.Balloon))
		}
	})
}

func TestProject_RejectsMalformedSteps(t *testing.T) {
	p := newPipeline()

	_, err := p.Project(benchmarkLoan(t), []*modification.Request{nil})
	if !errors.Is(err, loan.ErrUnknownType) {
		t.Errorf("nil step: expected ErrUnknownType, got %v", err)
	}

	bad := request(&modification.RateChange{NewAnnualRate: loan.MustRate("5")})
	bad.Type = modification.Type("PAYMENT_HOLIDAY")
	_, err = p.Project(benchmarkLoan(t), []*modification.Request{bad})
	if !errors.Is(err, loan.ErrUnknownType) {
		t.Errorf("unknown type: expected ErrUnknownType, got %v", err)
	}

	mismatched := request(&modification.RateChange{NewAnnualRate: loan.MustRate("5")})
	mismatched.Type = modification.TypeDeferment
	_, err = p.Project(benchmarkLoan(t), []*modification.Request{mismatched})
	if !loan.IsCalculation(err) {
		t.Errorf("mismatched params: expected CalculationError, got %v", err)
	}
}

// =============================================================================
// COMMIT
// =============================================================================

func TestCommitModifications_RequiresReasonAndSteps(t *testing.T) {
	p := newPipeline()
	l := benchmarkLoan(t)
	mods := []*modification.Request{
		request(&modification.RateChange{NewAnnualRate: loan.MustRate("4.5")}),
	}

	for _, reason := range []string{"", "   "} {
		_, err := p.CommitModifications(context.Background(), l, mods, reason, "supervisor-2")
		var fe *loan.FieldError
		if !errors.As(err, &fe) || fe.Field != "reason" || fe.Code != "required" {
			t.Errorf("reason %q: expected reason/required, got %v", reason, err)
		}
		if !errors.Is(err, loan.ErrValidation) {
			t.Errorf("reason %q: should belong to the validation family", reason)
		}
	}

	_, err := p.CommitModifications(context.Background(), l, nil, "hardship assistance", "supervisor-2")
	var fe *loan.FieldError
	if !errors.As(err, &fe) || fe.Field != "modifications" || fe.Code != "empty" {
		t.Errorf("empty package: expected modifications/empty, got %v", err)
	}
}

func TestCommitModifications_SingleVariantRecord(t *testing.T) {
	// GIVEN: A single rate change committed with a reason
	// THEN: One audit record typed by the variant, the request marked
	//       APPLIED, and the record readable back from history
	audit := store.NewMemory()
	p := modification.NewRestructurePipeline(amort.NewStandard(), audit)
	l := benchmarkLoan(t)
	mods := []*modification.Request{
		request(&modification.RateChange{NewAnnualRate: loan.MustRate("4.5")}),
	}

	rec, err := p.CommitModifications(context.Background(), l, mods, "rate relief", "supervisor-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Type != string(modification.TypeRateChange) {
		t.Errorf("expected type RATE_CHANGE, got %s", rec.Type)
	}
	if rec.LoanID != l.ID {
		t.Errorf("expected loan %s, got %s", l.ID, rec.LoanID)
	}
	if !rec.Date.Equal(effective2025()) {
		t.Errorf("record date should be the effective date, got %s", rec.Date)
	}
	if !rec.Changes.MonthlyPayment.IsNegative() {
		t.Errorf("a rate drop should carry a negative payment delta, got %s", cents(rec.Changes.MonthlyPayment))
	}
	if len(rec.Changes.Modifications) != 1 {
		t.Fatalf("expected 1 applied change, got %d", len(rec.Changes.Modifications))
	}
	if rec.Changes.Modifications[0].Summary != "annual rate to 4.50%" {
		t.Errorf("unexpected summary %q", rec.Changes.Modifications[0].Summary)
	}
	if !rec.AutomaticReversionDate.IsZero() {
		t.Errorf("rate change has no reversion, got %s", rec.AutomaticReversionDate)
	}
	if mods[0].Status != modification.StatusApplied {
		t.Errorf("request should be APPLIED, got %s", mods[0].Status)
	}

	history, err := audit.History(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].ID != rec.ID {
		t.Errorf("expected the committed record in history, got %d records", len(history))
	}
}

func TestCommitModifications_PackageBecomesRestructure(t *testing.T) {
	p := newPipeline()
	l := benchmarkLoan(t)
	mods := []*modification.Request{
		request(&modification.RateChange{NewAnnualRate: loan.MustRate("4.5")}),
		request(&modification.Forbearance{DurationMonths: 6, Type: modification.FullPause}),
		request(&modification.Deferment{DurationMonths: 3}),
	}

	rec, err := p.CommitModifications(context.Background(), l, mods, "combined hardship package", "supervisor-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Type != modification.RecordRestructure {
		t.Errorf("expected RESTRUCTURE, got %s", rec.Type)
	}
	if len(rec.Changes.Modifications) != 3 {
		t.Errorf("expected 3 applied changes, got %d", len(rec.Changes.Modifications))
	}
	// The deferment's three-month window ends before the forbearance's six.
	want := effective2025().AddDate(0, 3, 0)
	if !rec.AutomaticReversionDate.Equal(want) {
		t.Errorf("expected earliest reversion %s, got %s", want, rec.AutomaticReversionDate)
	}
}

func TestCommitModifications_PersistFailureLeavesPackagePending(t *testing.T) {
	p := modification.NewRestructurePipeline(amort.NewStandard(), failingAudit{})
	l := benchmarkLoan(t)
	mods := []*modification.Request{
		request(&modification.RateChange{NewAnnualRate: loan.MustRate("4.5")}),
	}

	_, err := p.CommitModifications(context.Background(), l, mods, "rate relief", "supervisor-2")
	if !errors.Is(err, loan.ErrCommit) {
		t.Fatalf("expected ErrCommit, got %v", err)
	}
	if mods[0].Status != modification.StatusPending {
		t.Errorf("failed commit must leave the request PENDING, got %s", mods[0].Status)
	}
}

// =============================================================================
// APPLY PROJECTION
// =============================================================================

func TestApplyProjection_UpdatesTheServicingRecord(t *testing.T) {
	// GIVEN: A rate change plus extension projected on a loan 61 payments in
	// WHEN: The projection is applied
	// THEN: Balance, rate and balloon come from the final snapshot, and
	//       the remaining-term arithmetic keeps the payment numbering
	l := agedLoan(t)
	mods := []*modification.Request{
		request(&modification.RateChange{NewAnnualRate: loan.MustRate("4.5")}),
		request(&modification.TermExtension{AdditionalMonths: 60}),
	}
	proj, err := newPipeline().Project(l, mods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	asOf := time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)
	modification.ApplyProjection(l, proj, mods, asOf)

	if !l.Terms.AnnualRate.Equal(loan.MustRate("4.5")) {
		t.Errorf("rate not applied, got %s", l.Terms.AnnualRate)
	}
	if cents(l.CurrentBalance) != "80000.00" {
		t.Errorf("balance should be unchanged by these variants, got %s", cents(l.CurrentBalance))
	}
	if l.TermsRemaining() != proj.Final.TermMonths {
		t.Errorf("remaining terms %d should match the projection's %d", l.TermsRemaining(), proj.Final.TermMonths)
	}
	if l.CurrentTerm != 61 {
		t.Errorf("payment numbering must not reset, got %d", l.CurrentTerm)
	}
	if !l.UpdatedAt.Equal(asOf) {
		t.Errorf("expected UpdatedAt %s, got %s", asOf, l.UpdatedAt)
	}
}

func TestApplyProjection_CarriesBalloonDueDate(t *testing.T) {
	l := benchmarkLoan(t)
	due := effective2025().AddDate(5, 0, 0)
	mods := []*modification.Request{
		request(&modification.BalloonAssignment{
			BalloonAmount:       loan.MustMoney("20000"),
			BalloonDueDate:      due,
			ReamortizationStart: modification.StartCurrentTerm,
		}),
	}
	proj, err := newPipeline().Project(l, mods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	modification.ApplyProjection(l, proj, mods, time.Now().UTC())

	if cents(l.Terms.BalloonAmount) != "20000.00" {
		t.Errorf("balloon not applied, got %s", cents(l.Terms.BalloonAmount))
	}
	if !l.Terms.BalloonDueDate.Equal(due) {
		t.Errorf("expected due date %s, got %s", due, l.Terms.BalloonDueDate)
	}
	if !l.Terms.HasBalloon() {
		t.Error("loan should now carry a balloon")
	}
}

func TestApplyProjection_ClearsRemovedBalloon(t *testing.T) {
	l := benchmarkLoan(t)
	l.Terms = balloon30(t)
	mods := []*modification.Request{
		request(&modification.BalloonRemoval{Reamortization: modification.RemovalIncreasePayment}),
	}
	proj, err := newPipeline().Project(l, mods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	modification.ApplyProjection(l, proj, mods, time.Now().UTC())

	if l.Terms.HasBalloon() {
		t.Errorf("balloon should be gone, amount %s due %s", cents(l.Terms.BalloonAmount), l.Terms.BalloonDueDate)
	}
	if !l.Terms.BalloonDueDate.IsZero() {
		t.Errorf("due date should be cleared, got %s", l.Terms.BalloonDueDate)
	}
}
