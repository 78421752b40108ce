/*
validator.go - Per-type and cross-field modification validation

PURPOSE:
  Checks a modification request against loan state and type-specific
  constraints before any calculation runs. Invalid input must never
  reach the calculator: this is an enforced precondition, not a
  best-effort check. The calculator still re-asserts cheap arithmetic
  preconditions and fails with CalculationError when bypassed.

RULES (per type):
  RATE_CHANGE          newAnnualRate in (0, 50]
  TERM_EXTENSION       additionalMonths in [1, 360]
  TEMP_REDUCTION       numberOfTerms in [1, 60], handling enum, window
                       shorter than the remaining term
  PERM_REDUCTION       newTermMonths required for EXTEND_TERM and
                       COMBINATION; principalReduction required for
                       REDUCE_PRINCIPAL and COMBINATION
  PRINCIPAL_REDUCTION  amount in (0, currentBalance]
  BALLOON_ASSIGNMENT   amount in (0, currentBalance], due date strictly
                       after effectiveDate, custom start term in
                       [1, currentTermsRemaining]
  BALLOON_REMOVAL      loan must carry a balloon
  FORBEARANCE          duration in [1, 12], reducedPayment required for
                       PARTIAL_REDUCTION
  DEFERMENT            duration in [1, 24]

  Every error is field-scoped and user-correctable. Unknown types are
  the programmer-error family and return UnknownTypeError instead.

SEE ALSO:
  - catalog.go: the declarative ranges these rules enforce
  - impact.go: consumes only validated requests
*/
package modification

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// =============================================================================
// VALIDATION RESULT
// =============================================================================

type ValidationResult struct {
	IsValid bool               `json:"isValid"`
	Errors  []*loan.FieldError `json:"errors"`
}

func (r *ValidationResult) add(field, code, message string) {
	r.IsValid = false
	r.Errors = append(r.Errors, &loan.FieldError{Field: field, Code: code, Message: message})
}

// FirstError returns the leading field error, or nil when valid.
func (r *ValidationResult) FirstError() *loan.FieldError {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// =============================================================================
// VALIDATOR
// =============================================================================

type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// vctx bundles the inputs a per-type rule function reads.
type vctx struct {
	terms  loan.LoanTerms
	req    *Request
	params CalculationParams
	res    *ValidationResult
}

// validators is the per-type rule dispatch table. init() asserts it
// covers every catalog type.
var validators = map[Type]func(vctx){
	TypeRateChange:                validateRateChange,
	TypeTermExtension:             validateTermExtension,
	TypeTemporaryPaymentReduction: validateTemporaryReduction,
	TypePermanentPaymentReduction: validatePermanentReduction,
	TypePrincipalReduction:        validatePrincipalReduction,
	TypeBalloonAssignment:         validateBalloonAssignment,
	TypeBalloonRemoval:            validateBalloonRemoval,
	TypeForbearance:               validateForbearance,
	TypeDeferment:                 validateDeferment,
	TypeReamortization:            validateReamortization,
}

func init() {
	covered := make(map[Type]bool, len(validators))
	for t := range validators {
		covered[t] = true
	}
	assertCovers(covered, "validator")
}

// Validate checks one request against loan state. Field failures are
// reported in the result; only an unregistered type is returned as an
// error (UnknownTypeError, the programmer-error family).
func (v *Validator) Validate(terms loan.LoanTerms, req *Request, params CalculationParams) (*ValidationResult, error) {
	if req == nil || req.Params == nil {
		return nil, &loan.UnknownTypeError{Type: ""}
	}
	rule, ok := validators[req.Type]
	if !ok {
		return nil, &loan.UnknownTypeError{Type: string(req.Type)}
	}

	res := &ValidationResult{IsValid: true}
	if got := req.Params.ModificationType(); got != req.Type {
		res.add("type", "params_mismatch",
			fmt.Sprintf("request type %s does not match parameters type %s", req.Type, got))
		return res, nil
	}
	if req.EffectiveDate.IsZero() {
		res.add("effectiveDate", "required", "effective date is required")
	}
	if !params.CurrentBalance.IsPositive() {
		res.add("currentBalance", "not_positive", "current balance must be greater than zero")
	}
	if params.CurrentTermsRemaining < 1 {
		res.add("currentTermsRemaining", "not_positive", "loan has no remaining terms")
	}
	if !res.IsValid {
		return res, nil
	}

	rule(vctx{terms: terms, req: req, params: params, res: res})
	return res, nil
}

// =============================================================================
// PER-TYPE RULES
// =============================================================================

var maxRate = decimal.NewFromInt(50)

func validateRateChange(c vctx) {
	p := c.req.Params.(*RateChange)
	if !p.NewAnnualRate.IsPositive() || p.NewAnnualRate.GreaterThan(maxRate) {
		c.res.add("newAnnualRate", "out_of_range", "rate must be greater than 0% and at most 50%")
	}
}

func validateTermExtension(c vctx) {
	p := c.req.Params.(*TermExtension)
	if p.AdditionalMonths < 1 || p.AdditionalMonths > 360 {
		c.res.add("additionalMonths", "out_of_range", "additional months must be between 1 and 360")
	}
}

func validateTemporaryReduction(c vctx) {
	p := c.req.Params.(*TemporaryPaymentReduction)
	if !p.ReducedPayment.IsPositive() {
		c.res.add("reducedPayment", "not_positive", "reduced payment must be greater than zero")
	}
	if p.NumberOfTerms < 1 || p.NumberOfTerms > 60 {
		c.res.add("numberOfTerms", "out_of_range", "number of terms must be between 1 and 60")
	}
	switch p.InterestHandling {
	case Capitalize, Defer, Waive:
	default:
		c.res.add("interestHandling", "invalid_option", "interest handling must be CAPITALIZE, DEFER or WAIVE")
	}
	// The reduced window must leave at least one term to re-level over.
	if p.NumberOfTerms >= 1 && p.NumberOfTerms >= c.params.CurrentTermsRemaining {
		c.res.add("numberOfTerms", "window_exceeds_remaining",
			fmt.Sprintf("reduction window must be shorter than the %d remaining terms", c.params.CurrentTermsRemaining))
	}
}

func validatePermanentReduction(c vctx) {
	p := c.req.Params.(*PermanentPaymentReduction)
	if !p.NewPayment.IsPositive() {
		c.res.add("newPayment", "not_positive", "new payment must be greater than zero")
	}
	switch p.TermAdjustment {
	case AdjustExtendTerm, AdjustCombination:
		if p.NewTermMonths < 1 {
			c.res.add("newTermMonths", "required",
				fmt.Sprintf("new term months is required when term adjustment is %s", p.TermAdjustment))
		}
	case AdjustReducePrincipal:
	default:
		c.res.add("termAdjustment", "invalid_option", "term adjustment must be EXTEND_TERM, REDUCE_PRINCIPAL or COMBINATION")
		return
	}
	if p.TermAdjustment == AdjustReducePrincipal || p.TermAdjustment == AdjustCombination {
		if !p.PrincipalReduction.IsPositive() {
			c.res.add("principalReduction", "required",
				fmt.Sprintf("principal reduction is required when term adjustment is %s", p.TermAdjustment))
		} else if p.PrincipalReduction.GreaterThan(c.params.CurrentBalance) {
			c.res.add("principalReduction", "exceeds_balance", "principal reduction cannot exceed current balance")
		}
	}
}

func validatePrincipalReduction(c vctx) {
	p := c.req.Params.(*PrincipalReduction)
	if !p.ReductionAmount.IsPositive() {
		c.res.add("reductionAmount", "not_positive", "reduction amount must be greater than zero")
	} else if p.ReductionAmount.GreaterThan(c.params.CurrentBalance) {
		c.res.add("reductionAmount", "exceeds_balance", "reduction amount cannot exceed current balance")
	}
	switch p.PaymentRecalculation {
	case RecalcKeepTerm, RecalcKeepPayment:
	case RecalcCustom:
		if !p.CustomPayment.IsPositive() {
			c.res.add("customPayment", "required", "custom payment is required for CUSTOM recalculation")
		}
		if p.CustomTermMonths < 1 {
			c.res.add("customTermMonths", "required", "custom term months is required for CUSTOM recalculation")
		}
	default:
		c.res.add("paymentRecalculation", "invalid_option", "payment recalculation must be KEEP_TERM, KEEP_PAYMENT or CUSTOM")
	}
}

func validateBalloonAssignment(c vctx) {
	p := c.req.Params.(*BalloonAssignment)
	if !p.BalloonAmount.IsPositive() {
		c.res.add("balloonAmount", "not_positive", "balloon amount must be greater than zero")
	} else if p.BalloonAmount.GreaterThan(c.params.CurrentBalance) {
		c.res.add("balloonAmount", "exceeds_balance", "balloon amount cannot exceed current balance")
	}
	if p.BalloonDueDate.IsZero() {
		c.res.add("balloonDueDate", "required", "balloon due date is required")
	} else if !p.BalloonDueDate.After(c.req.EffectiveDate) {
		c.res.add("balloonDueDate", "not_after_effective", "balloon due date must be strictly after the effective date")
	}
	switch p.ReamortizationStart {
	case StartCurrentTerm, StartNextTerm, StartBeginning:
	case StartCustom:
		if p.CustomStartTerm < 1 || p.CustomStartTerm > c.params.CurrentTermsRemaining {
			c.res.add("customStartTerm", "out_of_range",
				fmt.Sprintf("custom start term must be between 1 and %d", c.params.CurrentTermsRemaining))
		}
	default:
		c.res.add("reamortizationStart", "invalid_option", "reamortization start must be CURRENT_TERM, NEXT_TERM, BEGINNING or CUSTOM")
	}
}

func validateBalloonRemoval(c vctx) {
	p := c.req.Params.(*BalloonRemoval)
	if !c.terms.HasBalloon() {
		c.res.add("type", "no_balloon", "loan does not carry a balloon payment")
	}
	switch p.Reamortization {
	case RemovalExtendTerm, RemovalIncreasePayment:
	case RemovalCustom:
		if !p.CustomPayment.IsPositive() {
			c.res.add("customPayment", "required", "custom payment is required for CUSTOM reamortization")
		}
		if p.CustomTermMonths < 1 {
			c.res.add("customTermMonths", "required", "custom term months is required for CUSTOM reamortization")
		}
	default:
		c.res.add("reamortization", "invalid_option", "reamortization must be EXTEND_TERM, INCREASE_PAYMENT or CUSTOM")
	}
}

func validateForbearance(c vctx) {
	p := c.req.Params.(*Forbearance)
	if p.DurationMonths < 1 || p.DurationMonths > 12 {
		c.res.add("durationMonths", "out_of_range", "forbearance duration must be between 1 and 12 months")
	}
	switch p.Type {
	case FullPause:
	case PartialReduction:
		if !p.ReducedPayment.IsPositive() {
			c.res.add("reducedPayment", "required", "reduced payment is required for PARTIAL_REDUCTION")
		}
	default:
		c.res.add("type", "invalid_option", "forbearance type must be FULL_PAUSE or PARTIAL_REDUCTION")
	}
	if p.DurationMonths >= 1 && p.DurationMonths >= c.params.CurrentTermsRemaining {
		c.res.add("durationMonths", "window_exceeds_remaining",
			fmt.Sprintf("forbearance window must be shorter than the %d remaining terms", c.params.CurrentTermsRemaining))
	}
}

func validateDeferment(c vctx) {
	p := c.req.Params.(*Deferment)
	if p.DurationMonths < 1 || p.DurationMonths > 24 {
		c.res.add("durationMonths", "out_of_range", "deferment duration must be between 1 and 24 months")
	}
	if p.DurationMonths >= 1 && p.DurationMonths >= c.params.CurrentTermsRemaining {
		c.res.add("durationMonths", "window_exceeds_remaining",
			fmt.Sprintf("deferment window must be shorter than the %d remaining terms", c.params.CurrentTermsRemaining))
	}
}

func validateReamortization(c vctx) {
	p := c.req.Params.(*Reamortization)
	switch p.Mode {
	case ModeResetSchedule, ModeAdjustRemaining, ModeFullRecalc:
	default:
		c.res.add("mode", "invalid_option", "mode must be RESET_SCHEDULE, ADJUST_REMAINING or FULL_RECALC")
		return
	}
	if p.NewPrincipal.IsNegative() {
		c.res.add("newPrincipal", "negative", "new principal cannot be negative")
	}
	if p.NewAnnualRate.IsNegative() || p.NewAnnualRate.GreaterThan(maxRate) {
		c.res.add("newAnnualRate", "out_of_range", "rate override must be at most 50%")
	}
	if p.NewTermMonths < 0 {
		c.res.add("newTermMonths", "negative", "term override cannot be negative")
	}
}
