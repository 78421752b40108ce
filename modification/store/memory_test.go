package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
	"github.com/meridian/loan-engine/modification/store"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func record(id string, loanID loan.LoanID, date time.Time) *modification.ModificationRecord {
	return &modification.ModificationRecord{
		ID:     id,
		LoanID: loanID,
		Type:   string(modification.TypeRateChange),
		Date:   date,
		Changes: modification.RecordChanges{
			Modifications: []modification.AppliedChange{
				{ModificationID: "m-" + id, Type: modification.TypeRateChange, Summary: "annual rate to 4.50%"},
			},
		},
		Reason:     "rate relief",
		ApprovedBy: "supervisor-2",
		CreatedAt:  date,
	}
}

func mustAdd(t *testing.T, m *store.Memory, rec *modification.ModificationRecord) {
	t.Helper()
	if err := m.AddModification(context.Background(), rec); err != nil {
		t.Fatalf("adding %s: %v", rec.ID, err)
	}
}

func TestMemory_HistoryOrderedByEffectiveDate(t *testing.T) {
	// GIVEN: Records inserted March, January, February
	// THEN: History comes back January, February, March
	m := store.NewMemory()
	mustAdd(t, m, record("r-mar", "LN-1001", day(time.March, 1)))
	mustAdd(t, m, record("r-jan", "LN-1001", day(time.January, 1)))
	mustAdd(t, m, record("r-feb", "LN-1001", day(time.February, 1)))

	history, err := m.History(context.Background(), "LN-1001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 records, got %d", len(history))
	}
	for i, want := range []string{"r-jan", "r-feb", "r-mar"} {
		if history[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, history[i].ID)
		}
	}
}

func TestMemory_HistoryIsPerLoan(t *testing.T) {
	m := store.NewMemory()
	mustAdd(t, m, record("r-1", "LN-1001", day(time.January, 1)))
	mustAdd(t, m, record("r-2", "LN-2002", day(time.January, 2)))

	history, err := m.History(context.Background(), "LN-1001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].ID != "r-1" {
		t.Errorf("expected only LN-1001 records, got %d", len(history))
	}

	empty, err := m.History(context.Background(), "LN-9999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown loan should have no history, got %d", len(empty))
	}
}

func TestMemory_DuplicateIDRejected(t *testing.T) {
	m := store.NewMemory()
	mustAdd(t, m, record("r-1", "LN-1001", day(time.January, 1)))

	err := m.AddModification(context.Background(), record("r-1", "LN-1001", day(time.February, 1)))
	if err == nil {
		t.Fatal("expected duplicate ID error, got nil")
	}
}

func TestMemory_HistoryReturnsCopies(t *testing.T) {
	m := store.NewMemory()
	mustAdd(t, m, record("r-1", "LN-1001", day(time.January, 1)))

	history, _ := m.History(context.Background(), "LN-1001")
	history[0].Reason = "tampered"
	history[0].Changes.Modifications[0].Summary = "tampered"

	fresh, _ := m.History(context.Background(), "LN-1001")
	if fresh[0].Reason != "rate relief" {
		t.Errorf("stored record mutated through a returned copy: %q", fresh[0].Reason)
	}
	if fresh[0].Changes.Modifications[0].Summary != "annual rate to 4.50%" {
		t.Errorf("nested slice mutated through a returned copy: %q", fresh[0].Changes.Modifications[0].Summary)
	}
}

func TestMemory_PendingReversions(t *testing.T) {
	// GIVEN: A mixed ledger as of June 15
	//   r-due       reversion June 1  -> due
	//   r-later     reversion June 10 -> due, after r-due
	//   r-future    reversion July 1  -> not yet
	//   r-plain     no reversion date -> never
	//   r-reverted  reversion May 1, already closed by rev-1
	m := store.NewMemory()

	due := record("r-due", "LN-1001", day(time.January, 1))
	due.AutomaticReversionDate = day(time.June, 1)
	mustAdd(t, m, due)

	later := record("r-later", "LN-1001", day(time.January, 2))
	later.AutomaticReversionDate = day(time.June, 10)
	mustAdd(t, m, later)

	future := record("r-future", "LN-1001", day(time.January, 3))
	future.AutomaticReversionDate = day(time.July, 1)
	mustAdd(t, m, future)

	mustAdd(t, m, record("r-plain", "LN-1001", day(time.January, 4)))

	reverted := record("r-reverted", "LN-2002", day(time.January, 5))
	reverted.AutomaticReversionDate = day(time.May, 1)
	mustAdd(t, m, reverted)

	closing := record("rev-1", "LN-2002", day(time.May, 1))
	closing.Type = modification.RecordReversion
	closing.RevertsRecordID = "r-reverted"
	mustAdd(t, m, closing)

	pending, err := m.PendingReversions(context.Background(), day(time.June, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pending) != 2 {
		ids := make([]string, 0, len(pending))
		for _, r := range pending {
			ids = append(ids, r.ID)
		}
		t.Fatalf("expected [r-due r-later], got %v", ids)
	}
	if pending[0].ID != "r-due" || pending[1].ID != "r-later" {
		t.Errorf("expected r-due before r-later, got %s then %s", pending[0].ID, pending[1].ID)
	}
}

func TestMemory_ReversionDueOnTheDotIsPending(t *testing.T) {
	m := store.NewMemory()
	rec := record("r-1", "LN-1001", day(time.January, 1))
	rec.AutomaticReversionDate = day(time.June, 1)
	mustAdd(t, m, rec)

	pending, err := m.PendingReversions(context.Background(), day(time.June, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("a reversion due exactly now is pending, got %d", len(pending))
	}
}
