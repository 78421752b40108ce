/*
waterfall.go - Priority allocation of a payment across outstanding buckets

PURPOSE:
  A borrower payment is a single number, but a loan owes money in several
  buckets at once: accrued interest, principal, servicing fees, late
  penalties, escrow. This file splits one payment across those buckets in
  a configured order, draining each bucket before moving to the next.

KEY CONCEPTS:
  Category:
    One of five outstanding buckets. The names are part of the wire
    contract and are matched byte for byte by downstream servicers.

  Step:
    One rung of the waterfall: which category to pay, and what percentage
    of the still-unallocated payment it may take (its cap).

  Allocator:
    An ordered list of steps, validated once at construction. Apply runs
    the payment through the steps top to bottom:

      allocated = min(remaining, outstanding[category], remaining * cap/100)

    Every configured step appears in the result, even when it received
    nothing. Whatever survives all steps is returned as surplus.

INVARIANTS:
  - Conservation: sum(applied) + remaining == original payment, exactly.
  - No bucket ever receives more than its outstanding amount.
  - Allocation never goes negative.

EXAMPLE:
  alloc, _ := waterfall.NewAllocator(waterfall.DefaultSteps())
  res, _ := alloc.Apply(loan.MustMoney("1000.00"), waterfall.Outstanding{
      waterfall.CategoryFees:      loan.MustMoney("50.00"),
      waterfall.CategoryInterest:  loan.MustMoney("500.00"),
      waterfall.CategoryPrincipal: loan.MustMoney("425.00"),
  })
  fmt.Println(res.Applied[waterfall.CategoryInterest]) // 500.00

SEE ALSO:
  - config.go: YAML-configurable step ordering
  - api/handlers.go: HTTP surface for one-off allocations
*/
package waterfall

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// =============================================================================
// CATEGORIES - The five outstanding buckets
// =============================================================================

// Category identifies an outstanding bucket on a loan.
// The string values are wire-level identifiers. Do not rename them.
type Category string

const (
	CategoryInterest  Category = "interest"
	CategoryPrincipal Category = "principal"
	CategoryFees      Category = "fees"
	CategoryPenalties Category = "penalties"
	CategoryEscrow    Category = "escrow"
)

// Categories returns all known categories in default waterfall order.
func Categories() []Category {
	return []Category{
		CategoryFees,
		CategoryPenalties,
		CategoryInterest,
		CategoryPrincipal,
		CategoryEscrow,
	}
}

// ValidCategory reports whether c is one of the five known buckets.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryInterest, CategoryPrincipal, CategoryFees, CategoryPenalties, CategoryEscrow:
		return true
	}
	return false
}

// =============================================================================
// STEPS - Ordered waterfall configuration
// =============================================================================

// Step is one rung of the waterfall.
type Step struct {
	Category Category `json:"category"`

	// PercentageCap bounds how much of the remaining payment this step may
	// take, in percent. 100 means "as much as the bucket needs".
	PercentageCap decimal.Decimal `json:"percentageCap"`
}

// DefaultSteps is the standard servicing order: fees and penalties first,
// then interest, then principal, with escrow absorbing any surplus.
func DefaultSteps() []Step {
	hundred := loan.Hundred
	return []Step{
		{Category: CategoryFees, PercentageCap: hundred},
		{Category: CategoryPenalties, PercentageCap: hundred},
		{Category: CategoryInterest, PercentageCap: hundred},
		{Category: CategoryPrincipal, PercentageCap: hundred},
		{Category: CategoryEscrow, PercentageCap: hundred},
	}
}

// =============================================================================
// OUTSTANDING - Per-category amounts owed
// =============================================================================

// Outstanding maps each bucket to the amount currently owed in it.
// Missing categories are treated as zero.
type Outstanding map[Category]decimal.Decimal

// Total sums all outstanding amounts.
func (o Outstanding) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range o {
		total = total.Add(amount)
	}
	return total
}

// =============================================================================
// ALLOCATION RESULT
// =============================================================================

// AllocationResult is the outcome of running one payment through the
// waterfall. Applied contains an entry for every configured step.
type AllocationResult struct {
	Applied          map[Category]decimal.Decimal `json:"applied"`
	RemainingPayment decimal.Decimal              `json:"remainingPayment"`
}

// TotalApplied sums the allocations across all buckets.
func (r *AllocationResult) TotalApplied() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range r.Applied {
		total = total.Add(amount)
	}
	return total
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocator runs payments through a fixed, validated step order.
type Allocator struct {
	steps []Step
}

// NewAllocator validates the step list and returns an allocator for it.
// Steps must be non-empty, name known categories, carry caps in [0, 100],
// and never repeat a category.
func NewAllocator(steps []Step) (*Allocator, error) {
	if len(steps) == 0 {
		return nil, &loan.FieldError{Field: "steps", Code: "empty", Message: "waterfall requires at least one step"}
	}

	seen := make(map[Category]bool, len(steps))
	for i, step := range steps {
		if !ValidCategory(step.Category) {
			return nil, &loan.FieldError{
				Field:   fmt.Sprintf("steps[%d].category", i),
				Code:    "unknown_category",
				Message: fmt.Sprintf("unknown category %q", step.Category),
			}
		}
		if seen[step.Category] {
			return nil, &loan.FieldError{
				Field:   fmt.Sprintf("steps[%d].category", i),
				Code:    "duplicate",
				Message: fmt.Sprintf("category %q appears more than once", step.Category),
			}
		}
		seen[step.Category] = true

		if step.PercentageCap.IsNegative() || step.PercentageCap.GreaterThan(loan.Hundred) {
			return nil, &loan.FieldError{
				Field:   fmt.Sprintf("steps[%d].percentageCap", i),
				Code:    "out_of_range",
				Message: "percentage cap must be between 0 and 100",
			}
		}
	}

	copied := make([]Step, len(steps))
	copy(copied, steps)
	return &Allocator{steps: copied}, nil
}

// Steps returns a copy of the configured step order.
func (a *Allocator) Steps() []Step {
	out := make([]Step, len(a.steps))
	copy(out, a.steps)
	return out
}

// Apply allocates a single payment across the outstanding buckets.
//
// Each step takes min(remaining, outstanding, remaining*cap/100), in
// order. The cap term is rounded down to cents so a step can never
// exceed its percentage. Returns the per-bucket allocations and the
// unallocated surplus.
func (a *Allocator) Apply(payment decimal.Decimal, outstanding Outstanding) (*AllocationResult, error) {
	if payment.IsNegative() {
		return nil, &loan.FieldError{Field: "paymentAmount", Code: "negative", Message: "payment amount cannot be negative"}
	}
	for category, amount := range outstanding {
		if amount.IsNegative() {
			return nil, &loan.FieldError{
				Field:   "outstanding." + string(category),
				Code:    "negative",
				Message: "outstanding amount cannot be negative",
			}
		}
	}

	remaining := payment
	applied := make(map[Category]decimal.Decimal, len(a.steps))

	for _, step := range a.steps {
		due := outstanding[step.Category]
		capped := remaining.Mul(step.PercentageCap).Div(loan.Hundred).RoundDown(loan.MoneyPlaces)

		allocated := decimal.Min(remaining, due, capped)
		if allocated.IsNegative() {
			allocated = decimal.Zero
		}

		applied[step.Category] = allocated
		remaining = remaining.Sub(allocated)
	}

	return &AllocationResult{Applied: applied, RemainingPayment: remaining}, nil
}
