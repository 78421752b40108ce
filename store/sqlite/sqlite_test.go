package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
	"github.com/meridian/loan-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newStore opens an in-memory database pinned to a single connection so
// every statement sees the same schema.
func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	s.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

func benchmarkLoan(t *testing.T, id loan.LoanID, borrower string) *loan.Loan {
	t.Helper()
	return &loan.Loan{
		ID:             id,
		Borrower:       borrower,
		Terms:          loan.MustTerms(loan.MustMoney("100000"), loan.MustRate("6"), 360, day(time.January, 1)),
		CurrentBalance: loan.MustMoney("100000"),
		CurrentTerm:    1,
		CreatedAt:      time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func record(id string, loanID loan.LoanID, effective time.Time) *modification.ModificationRecord {
	return &modification.ModificationRecord{
		ID:     id,
		LoanID: loanID,
		Type:   string(modification.TypeRateChange),
		Date:   effective,
		Changes: modification.RecordChanges{
			MonthlyPayment: loan.MustMoney("-92.98"),
			TotalInterest:  loan.MustMoney("-33472.80"),
			TotalPayment:   loan.MustMoney("-33472.80"),
			Modifications: []modification.AppliedChange{
				{ModificationID: id + "-m1", Type: modification.TypeRateChange, Summary: "annual rate to 4.50%"},
			},
		},
		Reason:     "rate relief",
		ApprovedBy: "supervisor-3",
	}
}

func mustAdd(t *testing.T, s *sqlite.Store, rec *modification.ModificationRecord) {
	t.Helper()
	if err := s.AddModification(context.Background(), rec); err != nil {
		t.Fatalf("add record %s: %v", rec.ID, err)
	}
}

// =============================================================================
// LOAN HEAD STATE
// =============================================================================

func TestSaveLoan_RoundTripsHeadState(t *testing.T) {
	// GIVEN: A saved loan
	// WHEN: It is read back by ID
	// THEN: Terms, balances and timestamps survive the string encoding
	ctx := context.Background()
	s := newStore(t)
	l := benchmarkLoan(t, "LN-1001", "Whitfield, Dana")

	if err := s.SaveLoan(ctx, l); err != nil {
		t.Fatalf("SaveLoan: %v", err)
	}

	got, err := s.GetLoan(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("GetLoan: %v", err)
	}

	if got.ID != l.ID || got.Borrower != l.Borrower {
		t.Errorf("identity = %s/%s", got.ID, got.Borrower)
	}
	if !got.Terms.Principal.Equal(l.Terms.Principal) || !got.Terms.AnnualRate.Equal(l.Terms.AnnualRate) {
		t.Errorf("terms drifted: %s @ %s", got.Terms.Principal, got.Terms.AnnualRate)
	}
	if got.Terms.TermMonths != 360 || !got.Terms.StartDate.Equal(day(time.January, 1)) {
		t.Errorf("schedule drifted: %d months from %s", got.Terms.TermMonths, got.Terms.StartDate)
	}
	if got.Terms.Frequency != l.Terms.Frequency || got.Terms.DayCount != l.Terms.DayCount ||
		got.Terms.Timing != l.Terms.Timing || got.Terms.Rounding != l.Terms.Rounding {
		t.Errorf("conventions drifted: %+v", got.Terms)
	}
	if !got.CurrentBalance.Equal(l.CurrentBalance) || got.CurrentTerm != 1 {
		t.Errorf("head state drifted: %s at term %d", got.CurrentBalance, got.CurrentTerm)
	}
	if got.Terms.HasBalloon() || !got.Terms.BalloonDueDate.IsZero() {
		t.Errorf("phantom balloon: %s due %s", got.Terms.BalloonAmount, got.Terms.BalloonDueDate)
	}
	if !got.CreatedAt.Equal(l.CreatedAt) {
		t.Errorf("CreatedAt = %s, want %s", got.CreatedAt, l.CreatedAt)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped on save")
	}
}

func TestSaveLoan_UpsertsHeadState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	l := benchmarkLoan(t, "LN-1001", "Whitfield, Dana")
	if err := s.SaveLoan(ctx, l); err != nil {
		t.Fatalf("SaveLoan: %v", err)
	}

	l.CurrentBalance = loan.MustMoney("98210.44")
	l.CurrentTerm = 13
	if err := s.SaveLoan(ctx, l); err != nil {
		t.Fatalf("second SaveLoan: %v", err)
	}

	got, err := s.GetLoan(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("GetLoan: %v", err)
	}
	if got.CurrentBalance.StringFixed(2) != "98210.44" || got.CurrentTerm != 13 {
		t.Errorf("head state = %s at term %d", got.CurrentBalance, got.CurrentTerm)
	}

	all, err := s.ListLoans(ctx)
	if err != nil {
		t.Fatalf("ListLoans: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("upsert created %d rows", len(all))
	}
}

func TestSaveLoan_KeepsBalloonSchedule(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	due := day(time.December, 31)
	l := benchmarkLoan(t, "LN-2002", "Raman, Priya")
	l.Terms = loan.MustTerms(
		loan.MustMoney("100000"), loan.MustRate("6"), 360, day(time.January, 1),
		loan.WithBalloon(loan.MustMoney("20000"), due),
	)

	if err := s.SaveLoan(ctx, l); err != nil {
		t.Fatalf("SaveLoan: %v", err)
	}

	got, err := s.GetLoan(ctx, "LN-2002")
	if err != nil {
		t.Fatalf("GetLoan: %v", err)
	}
	if !got.Terms.HasBalloon() || got.Terms.BalloonAmount.StringFixed(2) != "20000.00" {
		t.Errorf("balloon amount = %s", got.Terms.BalloonAmount)
	}
	if !got.Terms.BalloonDueDate.Equal(due) {
		t.Errorf("balloon due = %s, want %s", got.Terms.BalloonDueDate, due)
	}
}

func TestGetLoan_MissingLoanIsNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetLoan(context.Background(), "LN-9999")
	if !errors.Is(err, loan.ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
	if !loan.IsNotFound(err) {
		t.Errorf("IsNotFound should report this error: %v", err)
	}
}

func TestListLoans_OrderedByBorrower(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, seed := range []struct {
		id       loan.LoanID
		borrower string
	}{
		{"LN-3", "Chen, Wei"},
		{"LN-1", "Alvarez, Marta"},
		{"LN-2", "Baptiste, Ren"},
	} {
		if err := s.SaveLoan(ctx, benchmarkLoan(t, seed.id, seed.borrower)); err != nil {
			t.Fatalf("SaveLoan %s: %v", seed.id, err)
		}
	}

	all, err := s.ListLoans(ctx)
	if err != nil {
		t.Fatalf("ListLoans: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d loans", len(all))
	}
	for i, want := range []loan.LoanID{"LN-1", "LN-2", "LN-3"} {
		if all[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, all[i].ID, want)
		}
	}
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestAddModification_RoundTripsRecord(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rec := record("r-1", "LN-1001", day(time.March, 1))
	mustAdd(t, s, rec)

	history, err := s.History(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d records", len(history))
	}

	got := history[0]
	if got.ID != "r-1" || got.Type != "RATE_CHANGE" || got.Reason != "rate relief" {
		t.Errorf("envelope = %+v", got)
	}
	if !got.Date.Equal(day(time.March, 1)) {
		t.Errorf("Date = %s", got.Date)
	}
	if got.ApprovedBy != "supervisor-3" {
		t.Errorf("ApprovedBy = %q", got.ApprovedBy)
	}
	if !got.Changes.MonthlyPayment.Equal(loan.MustMoney("-92.98")) {
		t.Errorf("payment delta = %s", got.Changes.MonthlyPayment)
	}
	if len(got.Changes.Modifications) != 1 || got.Changes.Modifications[0].Summary != "annual rate to 4.50%" {
		t.Errorf("applied changes = %+v", got.Changes.Modifications)
	}
	if !got.AutomaticReversionDate.IsZero() || got.RevertsRecordID != "" {
		t.Errorf("stray reversion fields: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped on append")
	}
}

func TestAddModification_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	mustAdd(t, s, record("r-1", "LN-1001", day(time.March, 1)))

	err := s.AddModification(ctx, record("r-1", "LN-1001", day(time.April, 1)))
	if err == nil {
		t.Fatal("duplicate ID should be rejected")
	}

	history, err := s.History(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("log grew to %d records", len(history))
	}
}

func TestHistory_OrderedByEffectiveDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	mustAdd(t, s, record("r-mar", "LN-1001", day(time.March, 1)))
	mustAdd(t, s, record("r-jan", "LN-1001", day(time.January, 15)))
	mustAdd(t, s, record("r-feb", "LN-1001", day(time.February, 10)))
	mustAdd(t, s, record("r-other", "LN-2002", day(time.January, 1)))

	history, err := s.History(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history has %d records", len(history))
	}
	for i, want := range []string{"r-jan", "r-feb", "r-mar"} {
		if history[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, history[i].ID, want)
		}
	}
}

func TestHistory_EmptyForUnknownLoan(t *testing.T) {
	s := newStore(t)

	history, err := s.History(context.Background(), "LN-9999")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected no records, got %d", len(history))
	}
}

func TestPendingReversions_FiltersAndOrders(t *testing.T) {
	// GIVEN: Windowed records due, due later, due in the future, a record
	//        with no window, and an already-closed window
	// WHEN: The sweep runs as of June 15
	// THEN: Only the two open, due windows come back, earliest first
	ctx := context.Background()
	s := newStore(t)

	due := record("r-due", "LN-1001", day(time.January, 1))
	due.AutomaticReversionDate = day(time.June, 1)
	mustAdd(t, s, due)

	later := record("r-later", "LN-1001", day(time.January, 2))
	later.AutomaticReversionDate = day(time.June, 10)
	mustAdd(t, s, later)

	future := record("r-future", "LN-1001", day(time.January, 3))
	future.AutomaticReversionDate = day(time.July, 1)
	mustAdd(t, s, future)

	mustAdd(t, s, record("r-plain", "LN-1001", day(time.January, 4)))

	closed := record("r-closed", "LN-2002", day(time.January, 5))
	closed.AutomaticReversionDate = day(time.May, 1)
	mustAdd(t, s, closed)
	closing := record("rev-1", "LN-2002", day(time.May, 1))
	closing.Type = modification.RecordReversion
	closing.RevertsRecordID = "r-closed"
	closing.AutomaticReversionDate = day(time.May, 15)
	mustAdd(t, s, closing)

	pending, err := s.PendingReversions(ctx, day(time.June, 15))
	if err != nil {
		t.Fatalf("PendingReversions: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending reversions, got %d", len(pending))
	}
	if pending[0].ID != "r-due" || pending[1].ID != "r-later" {
		t.Errorf("pending order = %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestPendingReversions_DueOnTheDotIsPending(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rec := record("r-due", "LN-1001", day(time.January, 1))
	rec.AutomaticReversionDate = day(time.June, 1)
	mustAdd(t, s, rec)

	pending, err := s.PendingReversions(ctx, day(time.June, 1))
	if err != nil {
		t.Fatalf("PendingReversions: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("a window ending exactly now is due, got %d records", len(pending))
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_CommitsLoanAndRecordTogether(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.SaveLoan(ctx, benchmarkLoan(t, "LN-1001", "Whitfield, Dana")); err != nil {
			return err
		}
		return tx.AddModification(ctx, record("r-1", "LN-1001", day(time.March, 1)))
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	if _, err := s.GetLoan(ctx, "LN-1001"); err != nil {
		t.Errorf("loan missing after commit: %v", err)
	}
	history, err := s.History(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("record missing after commit: %d entries", len(history))
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("projection rejected")

	err := s.WithTx(ctx, func(tx *sqlite.Tx) error {
		if err := tx.SaveLoan(ctx, benchmarkLoan(t, "LN-1001", "Whitfield, Dana")); err != nil {
			return err
		}
		if err := tx.AddModification(ctx, record("r-1", "LN-1001", day(time.March, 1))); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error back, got %v", err)
	}

	if _, err := s.GetLoan(ctx, "LN-1001"); !errors.Is(err, loan.ErrLoanNotFound) {
		t.Errorf("loan survived rollback: %v", err)
	}
	history, err := s.History(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("record survived rollback: %d entries", len(history))
	}
}

// =============================================================================
// RESET
// =============================================================================

func TestReset_ClearsAllTables(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.SaveLoan(ctx, benchmarkLoan(t, "LN-1001", "Whitfield, Dana")); err != nil {
		t.Fatalf("SaveLoan: %v", err)
	}
	mustAdd(t, s, record("r-1", "LN-1001", day(time.March, 1)))

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if _, err := s.GetLoan(ctx, "LN-1001"); !errors.Is(err, loan.ErrLoanNotFound) {
		t.Errorf("loan survived reset: %v", err)
	}
	all, err := s.ListLoans(ctx)
	if err != nil {
		t.Fatalf("ListLoans: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("%d loans survived reset", len(all))
	}
	history, err := s.History(ctx, "LN-1001")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("%d records survived reset", len(history))
	}
}
