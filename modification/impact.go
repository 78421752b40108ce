/*
impact.go - Per-variant impact calculation

PURPOSE:
  Computes the before/after projection for a single validated
  modification: payment, term, total interest, and structural schedule
  flags. One pure transform per variant, dispatched through a table
  that init() checks against the catalog.

HOW A CALCULATION RUNS:
  1. Snapshot the remaining horizon: current balance amortized over the
     remaining terms at the contractual rate (the baseline).
  2. Apply the variant's transform to derive the new effective
     parameters and integrate the resulting schedule.
  3. Report deltas relative to the baseline.

  Windowed variants (temporary reduction, forbearance, deferment)
  simulate the window month by month in decimal, then re-level the
  payment over the terms left after the window. Fixed-payment scenarios
  (keep payment, extend term) walk the balance down month by month
  instead of using logarithms; the integer answer is what servicing
  needs and the walk stays in exact decimal arithmetic the whole way.

PRECONDITIONS:
  Inputs are validated before they get here. The cheap arithmetic
  preconditions are re-asserted anyway; a request that bypassed
  validation fails with CalculationError instead of producing a
  nonsense projection. A calculation error aborts only the current
  projection; callers keep showing the last valid result.

SEE ALSO:
  - validator.go: the rules that gate entry to this file
  - pipeline.go: folds many modifications, recomputing once
  - amort/: the amortization primitive behind relevel()
*/
package modification

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// maxWalkMonths caps fixed-payment amortization walks at 100 years.
const maxWalkMonths = 1200

var one = decimal.NewFromInt(1)

// =============================================================================
// IMPACT CALCULATOR
// =============================================================================

type ImpactCalculator struct {
	amortizer loan.Amortizer
}

func NewImpactCalculator(a loan.Amortizer) *ImpactCalculator {
	return &ImpactCalculator{amortizer: a}
}

// calcCtx bundles the baseline every transform starts from.
type calcCtx struct {
	terms        loan.LoanTerms // contractual terms
	working      loan.LoanTerms // current balance over the remaining horizon
	req          *Request
	params       CalculationParams
	basePayment  decimal.Decimal
	baseInterest decimal.Decimal
}

// transforms is the per-variant dispatch table. init() asserts it
// covers every catalog type.
var transforms = map[Type]func(*ImpactCalculator, *calcCtx, *CalculationResult) error{
	TypeRateChange:                transformRateChange,
	TypeTermExtension:             transformTermExtension,
	TypeTemporaryPaymentReduction: transformTemporaryReduction,
	TypePermanentPaymentReduction: transformPermanentReduction,
	TypePrincipalReduction:        transformPrincipalReduction,
	TypeBalloonAssignment:         transformBalloonAssignment,
	TypeBalloonRemoval:            transformBalloonRemoval,
	TypeForbearance:               transformForbearance,
	TypeDeferment:                 transformDeferment,
	TypeReamortization:            transformReamortization,
}

func init() {
	covered := make(map[Type]bool, len(transforms))
	for t := range transforms {
		covered[t] = true
	}
	assertCovers(covered, "impact")
}

// CalculateImpact projects the effect of one modification against the
// loan's current state.
func (ic *ImpactCalculator) CalculateImpact(terms loan.LoanTerms, req *Request, params CalculationParams) (*CalculationResult, error) {
	if req == nil || req.Params == nil {
		return nil, &loan.UnknownTypeError{Type: ""}
	}
	transform, ok := transforms[req.Type]
	if !ok {
		return nil, &loan.UnknownTypeError{Type: string(req.Type)}
	}
	if got := req.Params.ModificationType(); got != req.Type {
		return nil, &loan.CalculationError{Op: "calculate_impact", Detail: "parameters do not match request type"}
	}
	if !params.CurrentBalance.IsPositive() {
		return nil, &loan.CalculationError{Op: "calculate_impact", Detail: "current balance must be positive"}
	}
	if params.CurrentTermsRemaining < 1 {
		return nil, &loan.CalculationError{Op: "calculate_impact", Detail: "loan has no terms remaining"}
	}

	working := terms
	working.Principal = params.CurrentBalance
	working.TermMonths = params.CurrentTermsRemaining

	basePayment, err := ic.amortizer.ComputePayment(working)
	if err != nil {
		return nil, err
	}
	baseSchedule, err := ic.amortizer.Schedule(working)
	if err != nil {
		return nil, err
	}

	c := &calcCtx{
		terms:        terms,
		working:      working,
		req:          req,
		params:       params,
		basePayment:  basePayment,
		baseInterest: loan.TotalInterest(baseSchedule),
	}
	res := &CalculationResult{
		Type:                  req.Type,
		OriginalPayment:       basePayment,
		OriginalTermMonths:    params.CurrentTermsRemaining,
		OriginalTotalInterest: c.baseInterest,
		NewPrincipalBalance:   params.CurrentBalance,
		EffectiveDate:         req.EffectiveDate,
		NextPaymentDate:       req.EffectiveDate.AddDate(0, 1, 0),
	}
	if err := transform(ic, c, res); err != nil {
		return nil, err
	}
	res.MonthlyPaymentChangeAmount = res.NewPayment.Sub(res.OriginalPayment)
	res.TotalInterestChangeAmount = res.NewTotalInterest.Sub(res.OriginalTotalInterest)
	return res, nil
}

// relevel computes payment and total interest for a fresh level schedule.
func (ic *ImpactCalculator) relevel(t loan.LoanTerms) (decimal.Decimal, decimal.Decimal, error) {
	payment, err := ic.amortizer.ComputePayment(t)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	schedule, err := ic.amortizer.Schedule(t)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return payment, loan.TotalInterest(schedule), nil
}

// =============================================================================
// FIXED-PAYMENT WALKS
// =============================================================================

// walkFixedPayment simulates level payments of a fixed amount against a
// balance, rounding interest per period, until the balance clears or
// maxMonths elapse. Returns months used, interest accrued, and the
// balance left standing at the cap.
func walkFixedPayment(balance, monthlyRate, payment decimal.Decimal, rounding loan.RoundingMethod, maxMonths int) (int, decimal.Decimal, decimal.Decimal, error) {
	if !payment.IsPositive() {
		return 0, decimal.Zero, balance, &loan.CalculationError{Op: "fixed_payment_walk", Detail: "payment must be positive"}
	}
	totalInterest := decimal.Zero
	months := 0
	for balance.IsPositive() && months < maxMonths {
		interest := loan.Round(balance.Mul(monthlyRate), rounding)
		if !payment.GreaterThan(interest) {
			return months, totalInterest, balance, &loan.CalculationError{Op: "fixed_payment_walk", Detail: "payment does not cover period interest"}
		}
		totalInterest = totalInterest.Add(interest)
		balance = balance.Add(interest).Sub(payment)
		months++
	}
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	return months, totalInterest, balance, nil
}

// solveFixedPayment walks until the balance fully amortizes.
func solveFixedPayment(balance, monthlyRate, payment decimal.Decimal, rounding loan.RoundingMethod) (int, decimal.Decimal, error) {
	months, totalInterest, left, err := walkFixedPayment(balance, monthlyRate, payment, rounding, maxWalkMonths)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if left.IsPositive() {
		return 0, decimal.Zero, &loan.CalculationError{Op: "fixed_payment_walk", Detail: "balance does not amortize within 100 years"}
	}
	return months, totalInterest, nil
}

// annuityPresentValue returns payment * (1 - (1+r)^-n) / r.
func annuityPresentValue(payment, monthlyRate decimal.Decimal, months int) (decimal.Decimal, error) {
	if months < 1 {
		return decimal.Zero, &loan.CalculationError{Op: "present_value", Detail: "term must be at least one month"}
	}
	n := decimal.NewFromInt(int64(months))
	if monthlyRate.IsZero() {
		return payment.Mul(n), nil
	}
	pow := one.Add(monthlyRate).Pow(n)
	return payment.Mul(pow.Sub(one)).Div(monthlyRate.Mul(pow)), nil
}

// =============================================================================
// REDUCED-PAYMENT WINDOW
// =============================================================================

// windowOutcome is the loan state when a reduced or paused payment
// window ends.
type windowOutcome struct {
	balance  decimal.Decimal // balance at reversion
	accrued  decimal.Decimal // interest accrued through the window
	deferred decimal.Decimal // shortfall tracked for DEFER
	waived   decimal.Decimal // shortfall forgiven for WAIVE
}

// runReducedWindow simulates months of a fixed reduced payment (zero
// for a full pause). Interest short of the payment is handled per the
// chosen mode; payment above interest pays principal down as usual.
func runReducedWindow(balance, monthlyRate, payment decimal.Decimal, months int, handling InterestHandling, rounding loan.RoundingMethod) (windowOutcome, error) {
	out := windowOutcome{
		balance:  balance,
		accrued:  decimal.Zero,
		deferred: decimal.Zero,
		waived:   decimal.Zero,
	}
	for k := 0; k < months; k++ {
		interest := loan.Round(out.balance.Mul(monthlyRate), rounding)
		out.accrued = out.accrued.Add(interest)
		if interest.GreaterThan(payment) {
			short := interest.Sub(payment)
			switch handling {
			case Capitalize:
				out.balance = out.balance.Add(short)
			case Defer:
				out.deferred = out.deferred.Add(short)
			case Waive:
				out.waived = out.waived.Add(short)
			}
			continue
		}
		out.balance = out.balance.Sub(payment.Sub(interest))
		if !out.balance.IsPositive() {
			return out, &loan.CalculationError{Op: "reduced_window", Detail: "reduced payment repays the balance within the window"}
		}
	}
	return out, nil
}

// =============================================================================
// PER-VARIANT TRANSFORMS
// =============================================================================

func transformRateChange(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*RateChange)
	t := c.working
	t.AnnualRate = p.NewAnnualRate
	payment, interest, err := ic.relevel(t)
	if err != nil {
		return err
	}
	res.NewPayment = payment
	res.NewTermMonths = c.working.TermMonths
	res.NewTotalInterest = interest
	return nil
}

func transformTermExtension(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*TermExtension)
	res.NewTermMonths = c.working.TermMonths + p.AdditionalMonths
	if p.KeepSamePayment {
		// Payment is held as a given constant, so the balance keeps
		// amortizing on the original horizon and interest is unchanged.
		res.NewPayment = c.basePayment
		res.NewTotalInterest = c.baseInterest
		return nil
	}
	t := c.working
	t.TermMonths = res.NewTermMonths
	payment, interest, err := ic.relevel(t)
	if err != nil {
		return err
	}
	res.NewPayment = payment
	res.NewTotalInterest = interest
	return nil
}

func transformTemporaryReduction(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*TemporaryPaymentReduction)
	after := c.working.TermMonths - p.NumberOfTerms
	if after < 1 {
		return &loan.CalculationError{Op: "temporary_payment_reduction", Detail: "no terms remain after the reduction window"}
	}
	out, err := runReducedWindow(c.params.CurrentBalance, c.working.PeriodicRate(), p.ReducedPayment, p.NumberOfTerms, p.InterestHandling, c.working.Rounding)
	if err != nil {
		return err
	}
	t := c.working
	t.Principal = out.balance
	t.TermMonths = after
	payment, postInterest, err := ic.relevel(t)
	if err != nil {
		return err
	}
	res.NewPayment = payment
	res.NewTermMonths = c.working.TermMonths
	res.NewTotalInterest = out.accrued.Sub(out.waived).Add(postInterest)
	res.NewPrincipalBalance = out.balance
	res.DeferredInterest = out.deferred
	res.AutomaticReversionDate = c.req.EffectiveDate.AddDate(0, p.NumberOfTerms, 0)
	return nil
}

func transformPermanentReduction(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*PermanentPaymentReduction)
	r := c.working.PeriodicRate()

	switch p.TermAdjustment {
	case AdjustExtendTerm:
		// The fixed payment resolves the term; the supplied
		// newTermMonths is only the pipeline's linear estimate.
		months, interest, err := solveFixedPayment(c.params.CurrentBalance, r, p.NewPayment, c.working.Rounding)
		if err != nil {
			return err
		}
		res.NewPayment = p.NewPayment
		res.NewTermMonths = months
		res.NewTotalInterest = interest

	case AdjustReducePrincipal:
		pv, err := annuityPresentValue(p.NewPayment, r, c.working.TermMonths)
		if err != nil {
			return err
		}
		pv = loan.Round(pv, c.working.Rounding)
		if !pv.IsPositive() || pv.GreaterThanOrEqual(c.params.CurrentBalance) {
			return &loan.CalculationError{Op: "permanent_payment_reduction", Detail: "new payment does not reduce principal over the remaining term"}
		}
		t := c.working
		t.Principal = pv
		t.BalloonAmount = decimal.Zero
		t.BalloonDueDate = time.Time{}
		_, interest, err := ic.relevel(t)
		if err != nil {
			return err
		}
		res.NewPayment = p.NewPayment
		res.NewTermMonths = c.working.TermMonths
		res.NewTotalInterest = interest
		res.NewPrincipalBalance = pv

	case AdjustCombination:
		// Both values are caller-supplied constants, never solved.
		newBalance := c.params.CurrentBalance.Sub(p.PrincipalReduction)
		if !newBalance.IsPositive() {
			return &loan.CalculationError{Op: "permanent_payment_reduction", Detail: "principal reduction consumes the entire balance"}
		}
		_, interest, _, err := walkFixedPayment(newBalance, r, p.NewPayment, c.working.Rounding, p.NewTermMonths)
		if err != nil {
			return err
		}
		res.NewPayment = p.NewPayment
		res.NewTermMonths = p.NewTermMonths
		res.NewTotalInterest = interest
		res.NewPrincipalBalance = newBalance

	default:
		return &loan.CalculationError{Op: "permanent_payment_reduction", Detail: "unknown term adjustment"}
	}
	return nil
}

func transformPrincipalReduction(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*PrincipalReduction)
	newBalance := c.params.CurrentBalance.Sub(p.ReductionAmount)
	if newBalance.IsNegative() {
		return &loan.CalculationError{Op: "principal_reduction", Detail: "reduction exceeds current balance"}
	}
	res.NewPrincipalBalance = newBalance
	if newBalance.IsZero() {
		// The reduction pays the loan off entirely.
		res.NewPayment = decimal.Zero
		res.NewTermMonths = 0
		res.NewTotalInterest = decimal.Zero
		return nil
	}

	switch p.PaymentRecalculation {
	case RecalcKeepTerm:
		t := c.working
		t.Principal = newBalance
		payment, interest, err := ic.relevel(t)
		if err != nil {
			return err
		}
		res.NewPayment = payment
		res.NewTermMonths = c.working.TermMonths
		res.NewTotalInterest = interest

	case RecalcKeepPayment:
		months, interest, err := solveFixedPayment(newBalance, c.working.PeriodicRate(), c.basePayment, c.working.Rounding)
		if err != nil {
			return err
		}
		res.NewPayment = c.basePayment
		res.NewTermMonths = months
		res.NewTotalInterest = interest

	case RecalcCustom:
		_, interest, _, err := walkFixedPayment(newBalance, c.working.PeriodicRate(), p.CustomPayment, c.working.Rounding, p.CustomTermMonths)
		if err != nil {
			return err
		}
		res.NewPayment = p.CustomPayment
		res.NewTermMonths = p.CustomTermMonths
		res.NewTotalInterest = interest

	default:
		return &loan.CalculationError{Op: "principal_reduction", Detail: "unknown payment recalculation"}
	}
	return nil
}

func transformBalloonAssignment(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*BalloonAssignment)

	var months int
	switch p.ReamortizationStart {
	case StartCurrentTerm:
		months = c.working.TermMonths
	case StartNextTerm:
		months = c.working.TermMonths - 1
	case StartBeginning:
		months = c.terms.TermMonths
	case StartCustom:
		months = c.working.TermMonths - (p.CustomStartTerm - 1)
	default:
		return &loan.CalculationError{Op: "balloon_assignment", Detail: "unknown reamortization start"}
	}
	if months < 1 {
		return &loan.CalculationError{Op: "balloon_assignment", Detail: "reamortization window has no terms"}
	}

	t := c.working
	t.TermMonths = months
	t.BalloonAmount = p.BalloonAmount
	t.BalloonDueDate = p.BalloonDueDate
	payment, interest, err := ic.relevel(t)
	if err != nil {
		return err
	}
	res.NewPayment = payment
	res.NewTermMonths = months
	res.NewTotalInterest = interest
	res.ScheduleImpact.BalloonPaymentAdded = !c.terms.HasBalloon()
	res.ScheduleImpact.BalloonAmountChanged = c.terms.HasBalloon() && !c.terms.BalloonAmount.Equal(p.BalloonAmount)
	return nil
}

func transformBalloonRemoval(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*BalloonRemoval)
	t := c.working
	t.BalloonAmount = decimal.Zero
	t.BalloonDueDate = time.Time{}

	switch p.Reamortization {
	case RemovalExtendTerm:
		// Hold the balloon-era payment and let the term grow until the
		// full balance amortizes.
		months, interest, err := solveFixedPayment(c.params.CurrentBalance, c.working.PeriodicRate(), c.basePayment, c.working.Rounding)
		if err != nil {
			return err
		}
		res.NewPayment = c.basePayment
		res.NewTermMonths = months
		res.NewTotalInterest = interest

	case RemovalIncreasePayment:
		payment, interest, err := ic.relevel(t)
		if err != nil {
			return err
		}
		res.NewPayment = payment
		res.NewTermMonths = c.working.TermMonths
		res.NewTotalInterest = interest

	case RemovalCustom:
		_, interest, _, err := walkFixedPayment(c.params.CurrentBalance, c.working.PeriodicRate(), p.CustomPayment, c.working.Rounding, p.CustomTermMonths)
		if err != nil {
			return err
		}
		res.NewPayment = p.CustomPayment
		res.NewTermMonths = p.CustomTermMonths
		res.NewTotalInterest = interest

	default:
		return &loan.CalculationError{Op: "balloon_removal", Detail: "unknown reamortization"}
	}
	res.ScheduleImpact.BalloonPaymentRemoved = true
	return nil
}

func transformForbearance(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*Forbearance)
	after := c.working.TermMonths - p.DurationMonths
	if after < 1 {
		return &loan.CalculationError{Op: "forbearance", Detail: "no terms remain after the forbearance window"}
	}

	// A full pause is a reduced window at payment zero; accrued interest
	// capitalizes either way.
	payment := decimal.Zero
	if p.Type == PartialReduction {
		payment = p.ReducedPayment
	}
	out, err := runReducedWindow(c.params.CurrentBalance, c.working.PeriodicRate(), payment, p.DurationMonths, Capitalize, c.working.Rounding)
	if err != nil {
		return err
	}

	t := c.working
	t.Principal = out.balance
	t.TermMonths = after
	newPayment, postInterest, err := ic.relevel(t)
	if err != nil {
		return err
	}
	res.NewPayment = newPayment
	res.NewTermMonths = c.working.TermMonths
	res.NewTotalInterest = out.accrued.Add(postInterest)
	res.NewPrincipalBalance = out.balance
	res.AutomaticReversionDate = c.req.EffectiveDate.AddDate(0, p.DurationMonths, 0)
	return nil
}

func transformDeferment(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*Deferment)
	after := c.working.TermMonths - p.DurationMonths
	if after < 1 {
		return &loan.CalculationError{Op: "deferment", Detail: "no terms remain after the deferment window"}
	}

	balance := c.params.CurrentBalance
	accrued := decimal.Zero
	if !p.InterestSubsidy {
		out, err := runReducedWindow(balance, c.working.PeriodicRate(), decimal.Zero, p.DurationMonths, Capitalize, c.working.Rounding)
		if err != nil {
			return err
		}
		balance, accrued = out.balance, out.accrued
	}

	t := c.working
	t.Principal = balance
	t.TermMonths = after
	payment, postInterest, err := ic.relevel(t)
	if err != nil {
		return err
	}
	res.NewPayment = payment
	res.NewTermMonths = c.working.TermMonths
	res.NewTotalInterest = accrued.Add(postInterest)
	res.NewPrincipalBalance = balance
	res.AutomaticReversionDate = c.req.EffectiveDate.AddDate(0, p.DurationMonths, 0)
	return nil
}

func transformReamortization(ic *ImpactCalculator, c *calcCtx, res *CalculationResult) error {
	p := c.req.Params.(*Reamortization)

	var t loan.LoanTerms
	switch p.Mode {
	case ModeResetSchedule:
		// Fresh origination over the current balance and full
		// contractual term; no balloon carries over.
		t = c.working
		t.TermMonths = c.terms.TermMonths
		t.BalloonAmount = decimal.Zero
		t.BalloonDueDate = time.Time{}
	case ModeAdjustRemaining:
		t = c.working
	case ModeFullRecalc:
		// Original terms as the template, overrides on top.
		t = c.terms
	default:
		return &loan.CalculationError{Op: "reamortization", Detail: "unknown mode"}
	}
	t = t.WithChanges(p.NewPrincipal, p.NewAnnualRate, p.NewTermMonths)

	payment, interest, err := ic.relevel(t)
	if err != nil {
		return err
	}
	res.NewPayment = payment
	res.NewTermMonths = t.TermMonths
	res.NewTotalInterest = interest
	res.NewPrincipalBalance = t.Principal
	return nil
}
