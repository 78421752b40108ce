/*
terms.go - Immutable loan terms snapshot and the servicing record

PURPOSE:
  LoanTerms is the frozen input every engine component reads: principal,
  rate, term, and the conventions (frequency, day count, accrual timing,
  rounding) that govern how numbers are produced from it. Engines never
  mutate a LoanTerms; restructuring produces a new snapshot.

KEY CONCEPTS:
  - NewTerms validates and applies option defaults (functional options)
  - Balloon terms carry an optional balloon amount and due date
  - Loan is the servicing-book record wrapping terms with identity

SEE ALSO:
  - amortizer.go: consumes LoanTerms to produce payments and schedules
  - modification/: produces modified LoanTerms snapshots
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOAN TERMS - Frozen calculation input
// =============================================================================

type LoanTerms struct {
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal // percentage, 5.5 = 5.5%
	TermMonths int
	StartDate  time.Time

	Frequency PaymentFrequency
	DayCount  DayCount
	Timing    AccrualTiming
	Rounding  RoundingMethod

	// Balloon, when positive, is a lump sum due at maturity. The level
	// payment amortizes only Principal - PV(Balloon).
	BalloonAmount  decimal.Decimal
	BalloonDueDate time.Time
}

// TermOption customizes optional conventions on NewTerms.
type TermOption func(*LoanTerms)

func WithFrequency(f PaymentFrequency) TermOption {
	return func(t *LoanTerms) { t.Frequency = f }
}

func WithDayCount(dc DayCount) TermOption {
	return func(t *LoanTerms) { t.DayCount = dc }
}

func WithTiming(at AccrualTiming) TermOption {
	return func(t *LoanTerms) { t.Timing = at }
}

func WithRounding(rm RoundingMethod) TermOption {
	return func(t *LoanTerms) { t.Rounding = rm }
}

func WithBalloon(amount decimal.Decimal, due time.Time) TermOption {
	return func(t *LoanTerms) {
		t.BalloonAmount = amount
		t.BalloonDueDate = due
	}
}

// NewTerms builds a validated LoanTerms snapshot.
// Defaults: monthly, ACTUAL/365, in arrears, HALF_UP.
func NewTerms(principal, annualRate decimal.Decimal, termMonths int, start time.Time, opts ...TermOption) (LoanTerms, error) {
	t := LoanTerms{
		Principal:  principal,
		AnnualRate: annualRate,
		TermMonths: termMonths,
		StartDate:  start,
		Frequency:  FrequencyMonthly,
		DayCount:   DayCountActual365,
		Timing:     InArrears,
		Rounding:   RoundHalfUp,
	}
	for _, opt := range opts {
		opt(&t)
	}

	switch {
	case !principal.IsPositive():
		return LoanTerms{}, &FieldError{Field: "principal", Code: "not_positive", Message: "principal must be greater than zero"}
	case annualRate.IsNegative():
		return LoanTerms{}, &FieldError{Field: "annualRate", Code: "negative", Message: "annual rate cannot be negative"}
	case termMonths <= 0:
		return LoanTerms{}, &FieldError{Field: "termMonths", Code: "not_positive", Message: "term must be at least one month"}
	case start.IsZero():
		return LoanTerms{}, &FieldError{Field: "startDate", Code: "required", Message: "start date is required"}
	case !ValidFrequency(t.Frequency):
		return LoanTerms{}, &FieldError{Field: "frequency", Code: "unknown", Message: "unknown payment frequency"}
	case !ValidDayCount(t.DayCount):
		return LoanTerms{}, &FieldError{Field: "dayCount", Code: "unknown", Message: "unknown day count convention"}
	case !ValidTiming(t.Timing):
		return LoanTerms{}, &FieldError{Field: "timing", Code: "unknown", Message: "unknown accrual timing"}
	case !ValidRounding(t.Rounding):
		return LoanTerms{}, &FieldError{Field: "rounding", Code: "unknown", Message: "unknown rounding method"}
	case t.BalloonAmount.IsNegative():
		return LoanTerms{}, &FieldError{Field: "balloonAmount", Code: "negative", Message: "balloon amount cannot be negative"}
	case t.BalloonAmount.IsPositive() && t.BalloonAmount.GreaterThan(principal):
		return LoanTerms{}, &FieldError{Field: "balloonAmount", Code: "exceeds_principal", Message: "balloon cannot exceed principal"}
	}
	return t, nil
}

// MustTerms is NewTerms for test fixtures and examples.
func MustTerms(principal, annualRate decimal.Decimal, termMonths int, start time.Time, opts ...TermOption) LoanTerms {
	t, err := NewTerms(principal, annualRate, termMonths, start, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t LoanTerms) HasBalloon() bool { return t.BalloonAmount.IsPositive() }

// PeriodicRate returns the per-period decimal interest fraction.
func (t LoanTerms) PeriodicRate() decimal.Decimal {
	return PeriodicRate(t.AnnualRate, t.Frequency)
}

// MaturityDate is the scheduled final payment date.
func (t LoanTerms) MaturityDate() time.Time {
	return t.StartDate.AddDate(0, t.TermMonths, 0)
}

// WithChanges returns a copy of the terms with the given overrides applied.
// Zero-valued overrides leave the corresponding field untouched.
func (t LoanTerms) WithChanges(principal, rate decimal.Decimal, termMonths int) LoanTerms {
	out := t
	if principal.IsPositive() {
		out.Principal = principal
	}
	if rate.IsPositive() {
		out.AnnualRate = rate
	}
	if termMonths > 0 {
		out.TermMonths = termMonths
	}
	return out
}

// =============================================================================
// LOAN - Servicing-book record
// =============================================================================

type LoanID string

type Loan struct {
	ID       LoanID
	Borrower string
	Terms    LoanTerms

	// CurrentBalance is the outstanding principal as of CurrentTerm.
	// For a freshly originated loan it equals Terms.Principal.
	CurrentBalance decimal.Decimal
	// CurrentTerm is the 1-based index of the next payment due.
	CurrentTerm int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TermsRemaining is how many scheduled payments are left.
func (l *Loan) TermsRemaining() int {
	remaining := l.Terms.TermMonths - (l.CurrentTerm - 1)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NextPaymentDate is the due date of the next scheduled payment.
func (l *Loan) NextPaymentDate() time.Time {
	return l.Terms.StartDate.AddDate(0, l.CurrentTerm, 0)
}
