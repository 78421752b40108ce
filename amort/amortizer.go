/*
Package amort implements the standard annuity amortizer.

PURPOSE:
  Implements loan.Amortizer with level-payment (annuity) math in decimal
  arithmetic. This is the engine's only source of payment and schedule
  numbers; impact calculation composes these primitives and never
  re-derives the formulas.

FORMULAS:
  Level payment:
    M = B * r / (1 - (1+r)^-n)          ordinary annuity (in arrears)
    M = 0 => M = B / n                  zero-rate loans divide evenly
    annuity-due divides the ordinary payment by (1+r)

  Balloon:
    M = (B - balloon/(1+r)^n) * r / (1 - (1+r)^-n)
    The payment amortizes only the principal in excess of the balloon's
    present value; the balloon itself is due with the final payment.

ROUNDING:
  Payments and per-period interest are rounded with the terms' rounding
  method. The final schedule entry absorbs the accumulated rounding
  drift so the ending balance is exactly zero.

EXAMPLE:
  a := amort.NewStandard()
  pmt, err := a.ComputePayment(terms)   // 100000 @ 6% / 360 -> 599.55
  sched, err := a.Schedule(terms)       // sched[359].Balance == 0

SEE ALSO:
  - loan/amortizer.go: the interface this package implements
  - modification/impact.go: primary consumer
*/
package amort

import (
	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// StandardAmortizer is the stateless annuity implementation.
type StandardAmortizer struct{}

func NewStandard() *StandardAmortizer { return &StandardAmortizer{} }

// Compile-time check that StandardAmortizer implements loan.Amortizer
var _ loan.Amortizer = (*StandardAmortizer)(nil)

var one = decimal.NewFromInt(1)

// =============================================================================
// PAYMENT
// =============================================================================

func (a *StandardAmortizer) ComputePayment(terms loan.LoanTerms) (decimal.Decimal, error) {
	raw, err := a.rawPayment(terms)
	if err != nil {
		return decimal.Zero, err
	}
	return loan.Round(raw, terms.Rounding), nil
}

// rawPayment returns the unrounded level payment.
func (a *StandardAmortizer) rawPayment(terms loan.LoanTerms) (decimal.Decimal, error) {
	n := periods(terms)
	if n <= 0 {
		return decimal.Zero, &loan.CalculationError{Op: "compute_payment", Detail: "term resolves to zero periods"}
	}
	if !terms.Principal.IsPositive() {
		return decimal.Zero, &loan.CalculationError{Op: "compute_payment", Detail: "principal must be positive"}
	}

	r := terms.PeriodicRate()
	nDec := decimal.NewFromInt(int64(n))

	if r.IsZero() {
		// No interest: principal beyond the balloon divides evenly.
		return terms.Principal.Sub(terms.BalloonAmount).Div(nDec), nil
	}

	// pow = (1+r)^n, computed once with a positive integer exponent.
	pow := one.Add(r).Pow(nDec)

	amortizable := terms.Principal
	if terms.HasBalloon() {
		amortizable = amortizable.Sub(terms.BalloonAmount.Div(pow))
		if !amortizable.IsPositive() {
			return decimal.Zero, &loan.CalculationError{Op: "compute_payment", Detail: "balloon present value consumes entire principal"}
		}
	}

	// M = amortizable * r * pow / (pow - 1)
	payment := amortizable.Mul(r).Mul(pow).Div(pow.Sub(one))

	if terms.Timing == loan.InAdvance {
		payment = payment.Div(one.Add(r))
	}
	return payment, nil
}

// =============================================================================
// SCHEDULE
// =============================================================================

func (a *StandardAmortizer) Schedule(terms loan.LoanTerms) ([]loan.ScheduleEntry, error) {
	payment, err := a.ComputePayment(terms)
	if err != nil {
		return nil, err
	}

	n := periods(terms)
	r := terms.PeriodicRate()
	entries := make([]loan.ScheduleEntry, 0, n)
	balance := terms.Principal

	for period := 1; period <= n; period++ {
		// In-advance payments come off the balance before interest accrues.
		base := balance
		if terms.Timing == loan.InAdvance {
			base = balance.Sub(payment)
		}
		interest := loan.Round(base.Mul(r), terms.Rounding)

		if period == n {
			// Final period clears the remaining balance exactly, balloon
			// included, absorbing accumulated rounding drift.
			principal := balance
			entries = append(entries, loan.ScheduleEntry{
				Period:    period,
				Payment:   principal.Add(interest),
				Interest:  interest,
				Principal: principal,
				Balance:   decimal.Zero,
			})
			break
		}

		principal := payment.Sub(interest)
		balance = balance.Sub(principal)
		if balance.IsNegative() {
			// Payment overshoots before the scheduled maturity (short
			// rounding tails); clamp by shrinking the last real payment.
			principal = principal.Add(balance)
			balance = decimal.Zero
		}
		entries = append(entries, loan.ScheduleEntry{
			Period:    period,
			Payment:   principal.Add(interest),
			Interest:  interest,
			Principal: principal,
			Balance:   balance,
		})
		if balance.IsZero() {
			break
		}
	}
	return entries, nil
}

// periods converts the month-denominated term into payment periods.
// Non-monthly frequencies convert at whole-period resolution.
func periods(terms loan.LoanTerms) int {
	if terms.Frequency == loan.FrequencyMonthly {
		return terms.TermMonths
	}
	return terms.TermMonths * terms.Frequency.PeriodsPerYear() / 12
}
