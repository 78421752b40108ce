/*
Package modification implements the loan modification impact engine.

PURPOSE:
  This package contains the restructuring core: a closed set of ten
  modification variants, their validation rules, the impact calculator
  that projects before/after payment, term and interest numbers for a
  single modification, and the pipeline that folds an ordered list of
  modifications into one cumulative projection.

KEY CONCEPTS IN THIS FILE (types.go):
  - Type: the closed enum of the ten modification variants
  - Parameters: tagged-union seam; each variant carries one typed struct
  - Request: a modification request moving through its PENDING lifecycle
  - CalculationParams: frozen loan state the engines compute against
  - CalculationResult: the before/after projection for one modification

DESIGN PRINCIPLES:
  1. Closed union: the ten variants are exhaustively dispatched through
     tables that are checked against the catalog at init. Adding a
     variant without its validator and transform panics at startup.
  2. Ephemeral requests: a request is recomputed on every parameter
     change and only becomes durable when committed as an audit record.
  3. Pure engines: validator, calculator and pipeline are side-effect
     free functions over immutable inputs.

USAGE:
  req := modification.NewRequest(loanID, &modification.RateChange{
      NewAnnualRate: loan.MustRate("4.5"),
  }, effectiveDate, "rate relief", "agent-7")

SEE ALSO:
  - catalog.go: variant schemas and category labels
  - validator.go: per-type and cross-field rules
  - impact.go: the per-variant transform dispatch table
  - pipeline.go: multi-step restructuring fold
*/
package modification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// dateLayout is the wire format for date-only fields.
const dateLayout = "2006-01-02"

// =============================================================================
// MODIFICATION TYPE - The closed variant enum
// =============================================================================

type Type string

const (
	TypeRateChange                Type = "RATE_CHANGE"
	TypeTermExtension             Type = "TERM_EXTENSION"
	TypeTemporaryPaymentReduction Type = "TEMPORARY_PAYMENT_REDUCTION"
	TypePermanentPaymentReduction Type = "PERMANENT_PAYMENT_REDUCTION"
	TypePrincipalReduction        Type = "PRINCIPAL_REDUCTION"
	TypeBalloonAssignment         Type = "BALLOON_ASSIGNMENT"
	TypeBalloonRemoval            Type = "BALLOON_REMOVAL"
	TypeForbearance               Type = "FORBEARANCE"
	TypeDeferment                 Type = "DEFERMENT"
	TypeReamortization            Type = "REAMORTIZATION"
)

// =============================================================================
// PARAMETER ENUMS
// =============================================================================

// InterestHandling governs the unpaid-interest shortfall during a
// temporary payment reduction window.
type InterestHandling string

const (
	Capitalize InterestHandling = "CAPITALIZE" // add shortfall to principal
	Defer      InterestHandling = "DEFER"      // track separately, due at reversion
	Waive      InterestHandling = "WAIVE"      // forgive the shortfall
)

// TermAdjustment resolves the free variable of a permanent payment reduction.
type TermAdjustment string

const (
	AdjustExtendTerm      TermAdjustment = "EXTEND_TERM"
	AdjustReducePrincipal TermAdjustment = "REDUCE_PRINCIPAL"
	AdjustCombination     TermAdjustment = "COMBINATION"
)

// PaymentRecalculation selects how a principal reduction reshapes the schedule.
type PaymentRecalculation string

const (
	RecalcKeepTerm    PaymentRecalculation = "KEEP_TERM"
	RecalcKeepPayment PaymentRecalculation = "KEEP_PAYMENT"
	RecalcCustom      PaymentRecalculation = "CUSTOM"
)

// ReamortizationStart selects the payment index balloon reamortization begins at.
type ReamortizationStart string

const (
	StartCurrentTerm ReamortizationStart = "CURRENT_TERM"
	StartNextTerm    ReamortizationStart = "NEXT_TERM"
	StartBeginning   ReamortizationStart = "BEGINNING"
	StartCustom      ReamortizationStart = "CUSTOM"
)

// BalloonReamortization selects how the schedule absorbs a removed balloon.
type BalloonReamortization string

const (
	RemovalExtendTerm      BalloonReamortization = "EXTEND_TERM"
	RemovalIncreasePayment BalloonReamortization = "INCREASE_PAYMENT"
	RemovalCustom          BalloonReamortization = "CUSTOM"
)

type ForbearanceType string

const (
	FullPause        ForbearanceType = "FULL_PAUSE"
	PartialReduction ForbearanceType = "PARTIAL_REDUCTION"
)

type ReamortizationMode string

const (
	ModeResetSchedule   ReamortizationMode = "RESET_SCHEDULE"
	ModeAdjustRemaining ReamortizationMode = "ADJUST_REMAINING"
	ModeFullRecalc      ReamortizationMode = "FULL_RECALC"
)

// =============================================================================
// PARAMETERS - One typed struct per variant
// =============================================================================

// Parameters is the tagged-union seam. Each variant's parameter struct
// reports its own Type; the factory and engines dispatch on it.
type Parameters interface {
	ModificationType() Type
}

type RateChange struct {
	NewAnnualRate decimal.Decimal `json:"newAnnualRate"`
}

type TermExtension struct {
	AdditionalMonths int  `json:"additionalMonths"`
	KeepSamePayment  bool `json:"keepSamePayment"`
}

type TemporaryPaymentReduction struct {
	ReducedPayment   decimal.Decimal  `json:"reducedPayment"`
	NumberOfTerms    int              `json:"numberOfTerms"`
	InterestHandling InterestHandling `json:"interestHandling"`
}

type PermanentPaymentReduction struct {
	NewPayment     decimal.Decimal `json:"newPayment"`
	TermAdjustment TermAdjustment  `json:"termAdjustment"`

	// NewTermMonths is required for EXTEND_TERM and COMBINATION. The
	// single-modification calculator solves the exact term itself; the
	// pipeline's linear fold consumes this supplied value.
	NewTermMonths      int             `json:"newTermMonths"`
	PrincipalReduction decimal.Decimal `json:"principalReduction"` // required for REDUCE_PRINCIPAL and COMBINATION
}

type PrincipalReduction struct {
	ReductionAmount      decimal.Decimal      `json:"reductionAmount"`
	PaymentRecalculation PaymentRecalculation `json:"paymentRecalculation"`
	CustomPayment        decimal.Decimal      `json:"customPayment"`    // CUSTOM only
	CustomTermMonths     int                  `json:"customTermMonths"` // CUSTOM only
}

type BalloonAssignment struct {
	BalloonAmount       decimal.Decimal     `json:"balloonAmount"`
	BalloonDueDate      time.Time           `json:"balloonDueDate"`
	ReamortizationStart ReamortizationStart `json:"reamortizationStart"`
	CustomStartTerm     int                 `json:"customStartTerm"` // CUSTOM only, 1-based payment index
}

type BalloonRemoval struct {
	Reamortization   BalloonReamortization `json:"reamortization"`
	CustomPayment    decimal.Decimal       `json:"customPayment"`    // CUSTOM only
	CustomTermMonths int                   `json:"customTermMonths"` // CUSTOM only
}

type Forbearance struct {
	DurationMonths int             `json:"durationMonths"`
	Type           ForbearanceType `json:"type"`
	ReducedPayment decimal.Decimal `json:"reducedPayment"` // PARTIAL_REDUCTION only
}

type Deferment struct {
	DurationMonths  int  `json:"durationMonths"`
	InterestSubsidy bool `json:"interestSubsidy"` // true freezes accrual during the window
}

type Reamortization struct {
	Mode ReamortizationMode `json:"mode"`

	// Optional overrides; zero values fall back to the working loan state.
	NewPrincipal  decimal.Decimal `json:"newPrincipal"`
	NewAnnualRate decimal.Decimal `json:"newAnnualRate"`
	NewTermMonths int             `json:"newTermMonths"`
}

func (*RateChange) ModificationType() Type                { return TypeRateChange }
func (*TermExtension) ModificationType() Type             { return TypeTermExtension }
func (*TemporaryPaymentReduction) ModificationType() Type { return TypeTemporaryPaymentReduction }
func (*PermanentPaymentReduction) ModificationType() Type { return TypePermanentPaymentReduction }
func (*PrincipalReduction) ModificationType() Type        { return TypePrincipalReduction }
func (*BalloonAssignment) ModificationType() Type         { return TypeBalloonAssignment }
func (*BalloonRemoval) ModificationType() Type            { return TypeBalloonRemoval }
func (*Forbearance) ModificationType() Type               { return TypeForbearance }
func (*Deferment) ModificationType() Type                 { return TypeDeferment }
func (*Reamortization) ModificationType() Type            { return TypeReamortization }

// balloonAssignmentJSON carries balloonDueDate as a date-only string.
type balloonAssignmentJSON struct {
	BalloonAmount       decimal.Decimal     `json:"balloonAmount"`
	BalloonDueDate      string              `json:"balloonDueDate"`
	ReamortizationStart ReamortizationStart `json:"reamortizationStart"`
	CustomStartTerm     int                 `json:"customStartTerm"`
}

// UnmarshalJSON accepts balloonDueDate in 2006-01-02 form, falling back
// to RFC 3339 for callers that send full timestamps.
func (p *BalloonAssignment) UnmarshalJSON(data []byte) error {
	var bj balloonAssignmentJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return err
	}
	p.BalloonAmount = bj.BalloonAmount
	p.ReamortizationStart = bj.ReamortizationStart
	p.CustomStartTerm = bj.CustomStartTerm
	p.BalloonDueDate = time.Time{}
	if bj.BalloonDueDate == "" {
		return nil
	}
	due, err := time.Parse(dateLayout, bj.BalloonDueDate)
	if err != nil {
		due, err = time.Parse(time.RFC3339, bj.BalloonDueDate)
		if err != nil {
			return fmt.Errorf("balloonDueDate: %w", err)
		}
	}
	p.BalloonDueDate = due
	return nil
}

func (p *BalloonAssignment) MarshalJSON() ([]byte, error) {
	bj := balloonAssignmentJSON{
		BalloonAmount:       p.BalloonAmount,
		ReamortizationStart: p.ReamortizationStart,
		CustomStartTerm:     p.CustomStartTerm,
	}
	if !p.BalloonDueDate.IsZero() {
		bj.BalloonDueDate = p.BalloonDueDate.Format(dateLayout)
	}
	return json.Marshal(bj)
}

// =============================================================================
// REQUEST - Lifecycle: constructed -> revalidated on edit -> committed
// =============================================================================

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApplied  Status = "APPLIED"
	StatusRejected Status = "REJECTED"
)

type Request struct {
	ID            string
	LoanID        loan.LoanID
	Type          Type
	Params        Parameters
	EffectiveDate time.Time
	Reason        string
	CreatedBy     string
	CreatedAt     time.Time
	Status        Status
}

// NewRequest builds a PENDING request with the type derived from params.
func NewRequest(loanID loan.LoanID, params Parameters, effective time.Time, reason, createdBy string) *Request {
	return &Request{
		ID:            uuid.NewString(),
		LoanID:        loanID,
		Type:          params.ModificationType(),
		Params:        params,
		EffectiveDate: effective,
		Reason:        reason,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
		Status:        StatusPending,
	}
}

// =============================================================================
// CALCULATION INPUT/OUTPUT
// =============================================================================

// CalculationParams is the frozen loan state a calculation runs against.
type CalculationParams struct {
	CurrentBalance        decimal.Decimal
	CurrentTermsRemaining int
	CurrentPaymentNumber  int // 1-based index of the next payment due
	AsOfDate              time.Time
}

// ParamsForLoan snapshots calculation params from a servicing record.
func ParamsForLoan(l *loan.Loan, asOf time.Time) CalculationParams {
	return CalculationParams{
		CurrentBalance:        l.CurrentBalance,
		CurrentTermsRemaining: l.TermsRemaining(),
		CurrentPaymentNumber:  l.CurrentTerm,
		AsOfDate:              asOf,
	}
}

// ScheduleImpact flags structural schedule changes.
type ScheduleImpact struct {
	BalloonPaymentAdded   bool `json:"balloonPaymentAdded"`
	BalloonPaymentRemoved bool `json:"balloonPaymentRemoved"`
	BalloonAmountChanged  bool `json:"balloonAmountChanged"`
}

// CalculationResult is the before/after projection for one modification.
// All monetary fields are rounded with the loan's rounding method.
type CalculationResult struct {
	Type Type `json:"type"`

	OriginalPayment            decimal.Decimal `json:"originalPayment"`
	NewPayment                 decimal.Decimal `json:"newPayment"`
	MonthlyPaymentChangeAmount decimal.Decimal `json:"monthlyPaymentChangeAmount"`

	OriginalTermMonths int `json:"originalTermMonths"`
	NewTermMonths      int `json:"newTermMonths"`

	OriginalTotalInterest     decimal.Decimal `json:"originalTotalInterest"`
	NewTotalInterest          decimal.Decimal `json:"newTotalInterest"`
	TotalInterestChangeAmount decimal.Decimal `json:"totalInterestChangeAmount"`

	// NewPrincipalBalance is the working balance the new schedule starts
	// from (differs from CurrentBalance for principal-changing variants).
	NewPrincipalBalance decimal.Decimal `json:"newPrincipalBalance"`

	// DeferredInterest is the non-capitalized shortfall due at reversion
	// (DEFER handling only).
	DeferredInterest decimal.Decimal `json:"deferredInterest"`

	EffectiveDate   time.Time `json:"effectiveDate"`
	NextPaymentDate time.Time `json:"nextPaymentDate"`

	// AutomaticReversionDate is set for windowed variants (temporary
	// reduction, forbearance, deferment); standard amortization resumes
	// after it. Zero otherwise.
	AutomaticReversionDate time.Time `json:"automaticReversionDate,omitempty"`

	ScheduleImpact ScheduleImpact `json:"scheduleImpact"`
}
