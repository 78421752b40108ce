/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Loan:
    LoanDTO, CreateLoanRequest, ScheduleResponse

  Modification:
    ImpactDTO, RestructureRequest, CommitResponse,
    ModificationRecordDTO (wraps the audit record)

  Waterfall:
    WaterfallStepDTO, WaterfallApplyRequest, WaterfallApplyResponse

WIRE FORMAT:
  Keys are camelCase throughout, matching the modification catalog field
  names. Monetary values serialize as decimal strings ("599.55"), never
  floats. Dates are "2006-01-02"; timestamps are RFC3339.

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/request.go: RequestJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/factory"
	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
	"github.com/meridian/loan-engine/waterfall"
)

// =============================================================================
// LOAN TYPES
// =============================================================================

// LoanDTO represents a servicing record in API responses.
type LoanDTO struct {
	ID              string `json:"id"`
	Borrower        string `json:"borrower"`
	Principal       string `json:"principal"`
	AnnualRate      string `json:"annualRate"`
	TermMonths      int    `json:"termMonths"`
	StartDate       string `json:"startDate"`
	Frequency       string `json:"frequency"`
	DayCount        string `json:"dayCount"`
	Timing          string `json:"timing"`
	Rounding        string `json:"rounding"`
	BalloonAmount   string `json:"balloonAmount,omitempty"`
	BalloonDueDate  string `json:"balloonDueDate,omitempty"`
	CurrentBalance  string `json:"currentBalance"`
	CurrentTerm     int    `json:"currentTerm"`
	TermsRemaining  int    `json:"termsRemaining"`
	NextPaymentDate string `json:"nextPaymentDate"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// CreateLoanRequest is the request to originate a loan: identity plus
// the product definition the terms are built from.
type CreateLoanRequest struct {
	ID       string `json:"id,omitempty"`
	Borrower string `json:"borrower"`
	factory.ProductJSON
}

// ScheduleResponse wraps a full amortization table.
type ScheduleResponse struct {
	LoanID        string               `json:"loanId"`
	Payment       decimal.Decimal      `json:"payment"`
	TotalInterest decimal.Decimal      `json:"totalInterest"`
	TotalPaid     decimal.Decimal      `json:"totalPaid"`
	Entries       []loan.ScheduleEntry `json:"entries"`
}

// =============================================================================
// MODIFICATION TYPES
// =============================================================================

// ImpactDTO is the before/after projection for one modification.
type ImpactDTO struct {
	Type                       string          `json:"type"`
	OriginalPayment            decimal.Decimal `json:"originalPayment"`
	NewPayment                 decimal.Decimal `json:"newPayment"`
	MonthlyPaymentChangeAmount decimal.Decimal `json:"monthlyPaymentChangeAmount"`
	OriginalTermMonths         int             `json:"originalTermMonths"`
	NewTermMonths              int             `json:"newTermMonths"`
	OriginalTotalInterest      decimal.Decimal `json:"originalTotalInterest"`
	NewTotalInterest           decimal.Decimal `json:"newTotalInterest"`
	TotalInterestChangeAmount  decimal.Decimal `json:"totalInterestChangeAmount"`
	NewPrincipalBalance        decimal.Decimal `json:"newPrincipalBalance"`
	DeferredInterest           decimal.Decimal `json:"deferredInterest"`
	EffectiveDate              string          `json:"effectiveDate"`
	NextPaymentDate            string          `json:"nextPaymentDate"`
	AutomaticReversionDate     string          `json:"automaticReversionDate,omitempty"`

	ScheduleImpact modification.ScheduleImpact `json:"scheduleImpact"`
}

// RestructureRequest carries a modification package for preview or commit.
// Reason and ApprovedBy are ignored on preview.
type RestructureRequest struct {
	Modifications []factory.RequestJSON `json:"modifications"`
	Reason        string                `json:"reason,omitempty"`
	ApprovedBy    string                `json:"approvedBy,omitempty"`
}

// ModificationRecordDTO represents an audit record in API responses.
type ModificationRecordDTO struct {
	ID                     string                     `json:"id"`
	LoanID                 string                     `json:"loanId"`
	Type                   string                     `json:"type"`
	Date                   string                     `json:"date"`
	Changes                modification.RecordChanges `json:"changes"`
	Reason                 string                     `json:"reason"`
	ApprovedBy             string                     `json:"approvedBy,omitempty"`
	CreatedAt              string                     `json:"createdAt,omitempty"`
	AutomaticReversionDate string                     `json:"automaticReversionDate,omitempty"`
	RevertsRecordID        string                     `json:"revertsRecordId,omitempty"`
}

// CommitResponse is returned after a successful restructure commit.
type CommitResponse struct {
	Record    ModificationRecordDTO       `json:"record"`
	Projected *modification.ProjectedLoan `json:"projected"`
	Loan      LoanDTO                     `json:"loan"`
}

// =============================================================================
// WATERFALL TYPES
// =============================================================================

// WaterfallStepDTO is one ordered allocation step.
type WaterfallStepDTO struct {
	Category      string          `json:"category"`
	PercentageCap decimal.Decimal `json:"percentageCap"`
}

// WaterfallApplyRequest is the request to allocate a payment.
// WaterfallConfig is optional; the server's active sequence applies
// when it is omitted.
type WaterfallApplyRequest struct {
	Payment         decimal.Decimal            `json:"payment"`
	Outstanding     map[string]decimal.Decimal `json:"outstandingAmounts"`
	WaterfallConfig []WaterfallStepDTO         `json:"waterfallConfig,omitempty"`
}

// WaterfallApplyResponse is the allocation outcome.
type WaterfallApplyResponse struct {
	AppliedAmounts   map[waterfall.Category]decimal.Decimal `json:"appliedAmounts"`
	TotalApplied     decimal.Decimal                        `json:"totalApplied"`
	RemainingPayment decimal.Decimal                        `json:"remainingPayment"`
}

// WaterfallConfigResponse is the active allocation sequence.
type WaterfallConfigResponse struct {
	Steps []WaterfallStepDTO `json:"steps"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toLoanDTO(l *loan.Loan) LoanDTO {
	dto := LoanDTO{
		ID:              string(l.ID),
		Borrower:        l.Borrower,
		Principal:       loan.FormatMoney(l.Terms.Principal),
		AnnualRate:      l.Terms.AnnualRate.String(),
		TermMonths:      l.Terms.TermMonths,
		StartDate:       l.Terms.StartDate.Format("2006-01-02"),
		Frequency:       string(l.Terms.Frequency),
		DayCount:        string(l.Terms.DayCount),
		Timing:          string(l.Terms.Timing),
		Rounding:        string(l.Terms.Rounding),
		CurrentBalance:  loan.FormatMoney(l.CurrentBalance),
		CurrentTerm:     l.CurrentTerm,
		TermsRemaining:  l.TermsRemaining(),
		NextPaymentDate: l.NextPaymentDate().Format("2006-01-02"),
	}
	if l.Terms.HasBalloon() {
		dto.BalloonAmount = loan.FormatMoney(l.Terms.BalloonAmount)
		dto.BalloonDueDate = l.Terms.BalloonDueDate.Format("2006-01-02")
	}
	if !l.CreatedAt.IsZero() {
		dto.CreatedAt = l.CreatedAt.Format(time.RFC3339)
	}
	if !l.UpdatedAt.IsZero() {
		dto.UpdatedAt = l.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toImpactDTO(res *modification.CalculationResult) ImpactDTO {
	dto := ImpactDTO{
		Type:                       string(res.Type),
		OriginalPayment:            res.OriginalPayment,
		NewPayment:                 res.NewPayment,
		MonthlyPaymentChangeAmount: res.MonthlyPaymentChangeAmount,
		OriginalTermMonths:         res.OriginalTermMonths,
		NewTermMonths:              res.NewTermMonths,
		OriginalTotalInterest:      res.OriginalTotalInterest,
		NewTotalInterest:           res.NewTotalInterest,
		TotalInterestChangeAmount:  res.TotalInterestChangeAmount,
		NewPrincipalBalance:        res.NewPrincipalBalance,
		DeferredInterest:           res.DeferredInterest,
		EffectiveDate:              res.EffectiveDate.Format("2006-01-02"),
		NextPaymentDate:            res.NextPaymentDate.Format("2006-01-02"),
		ScheduleImpact:             res.ScheduleImpact,
	}
	if !res.AutomaticReversionDate.IsZero() {
		dto.AutomaticReversionDate = res.AutomaticReversionDate.Format("2006-01-02")
	}
	return dto
}

func toRecordDTO(rec *modification.ModificationRecord) ModificationRecordDTO {
	dto := ModificationRecordDTO{
		ID:              rec.ID,
		LoanID:          string(rec.LoanID),
		Type:            rec.Type,
		Date:            rec.Date.Format("2006-01-02"),
		Changes:         rec.Changes,
		Reason:          rec.Reason,
		ApprovedBy:      rec.ApprovedBy,
		RevertsRecordID: rec.RevertsRecordID,
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	if !rec.AutomaticReversionDate.IsZero() {
		dto.AutomaticReversionDate = rec.AutomaticReversionDate.Format("2006-01-02")
	}
	return dto
}

func toRecordDTOs(recs []*modification.ModificationRecord) []ModificationRecordDTO {
	dtos := make([]ModificationRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toRecordDTO(rec)
	}
	return dtos
}

func toStepDTOs(steps []waterfall.Step) []WaterfallStepDTO {
	dtos := make([]WaterfallStepDTO, len(steps))
	for i, s := range steps {
		dtos[i] = WaterfallStepDTO{
			Category:      string(s.Category),
			PercentageCap: s.PercentageCap,
		}
	}
	return dtos
}
