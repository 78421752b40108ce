/*
amortizer.go - The amortization collaborator contract

PURPOSE:
  Every engine component that needs a payment or a schedule goes through
  this interface. The engine itself never re-implements amortization
  math inline; impact calculation composes payments and schedules from
  whatever Amortizer it was constructed with.

KEY CONCEPTS:
  - ComputePayment: level payment for a terms snapshot
  - Schedule: the full period-by-period amortization table
  - ScheduleEntry: one period (payment, interest, principal, balance)

SEE ALSO:
  - amort/: the standard annuity implementation
  - modification/impact.go: primary consumer
*/
package loan

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMORTIZER - Payment and schedule computation
// =============================================================================

type Amortizer interface {
	// ComputePayment returns the level periodic payment for the terms.
	// For balloon terms the payment amortizes principal minus the
	// balloon's present value.
	ComputePayment(terms LoanTerms) (decimal.Decimal, error)

	// Schedule returns the full amortization table. The final entry's
	// Balance is exactly zero; for balloon terms the final entry's
	// Payment includes the balloon.
	Schedule(terms LoanTerms) ([]ScheduleEntry, error)
}

// ScheduleEntry is one period of an amortization schedule.
// All monetary fields are rounded with the terms' rounding method.
type ScheduleEntry struct {
	Period    int             `json:"period"`
	Payment   decimal.Decimal `json:"payment"`
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
	Balance   decimal.Decimal `json:"balance"`
}

// TotalInterest sums the interest column of a schedule.
func TotalInterest(entries []ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Interest)
	}
	return total
}

// TotalPaid sums the payment column of a schedule.
func TotalPaid(entries []ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Payment)
	}
	return total
}
