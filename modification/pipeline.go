/*
pipeline.go - Multi-step restructuring fold and commit

PURPOSE:
  Folds an ordered list of modifications into one cumulative projection.
  Each step applies its type's linear mutation rule to a working
  snapshot (cheap, incremental); after folding, ONE full recompute of
  payment and interest on the final parameters produces the package
  deltas. This two-phase design keeps an interactive multi-step builder
  responsive: composition is constant-time per step while editing, and
  the expensive amortization runs once at the end.

ORDER SENSITIVITY:
  Fold order is a defined contract, not an artifact. Applying a rate
  change before a term extension differs from the reverse because the
  final recompute amortizes over whatever parameters the fold produced,
  and payment-setting variants overwrite earlier ones.

FOLD ESTIMATES:
  Windowed variants (temporary reduction, forbearance, deferment) add a
  simple-interest capitalization estimate during the fold. The estimate
  uses the working payment and rate at that fold position and is NOT
  the exact window simulation the single-modification calculator runs;
  the final recompute prices the folded parameters exactly.

COMMIT:
  commitModifications persists the whole package as one audit record,
  only when the reason is non-empty and at least one modification
  exists. The record is fully assembled in memory before the single
  AddModification call, so a failed commit leaves no partial state and
  the package stays intact for retry.

SEE ALSO:
  - impact.go: exact single-modification projections
  - audit.go: the append-only record this pipeline writes
*/
package modification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// =============================================================================
// WORKING SNAPSHOT
// =============================================================================

// WorkingLoan is the mutable snapshot the fold runs over.
type WorkingLoan struct {
	Principal  decimal.Decimal `json:"principal"`
	AnnualRate decimal.Decimal `json:"annualRate"`
	TermMonths int             `json:"termMonths"`
	Balloon    decimal.Decimal `json:"balloon"`

	// Payment is the fold's running payment estimate: seeded from the
	// baseline, overwritten by payment-setting variants, and left stale
	// by rate and term changes until the final recompute.
	Payment decimal.Decimal `json:"payment"`

	// DeferredInterest accumulates DEFER shortfall estimates.
	DeferredInterest decimal.Decimal `json:"deferredInterest"`
}

// Changes are the package deltas relative to the unmodified loan.
type Changes struct {
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`
	TotalInterest  decimal.Decimal `json:"totalInterest"`
	TotalPayment   decimal.Decimal `json:"totalPayment"`
}

// ProjectedLoan is the pipeline's output.
type ProjectedLoan struct {
	Original WorkingLoan `json:"original"`
	Final    WorkingLoan `json:"final"`
	Changes  Changes     `json:"changes"`
}

// =============================================================================
// RESTRUCTURE PIPELINE
// =============================================================================

type RestructurePipeline struct {
	amortizer loan.Amortizer
	audit     AuditLog
}

func NewRestructurePipeline(a loan.Amortizer, log AuditLog) *RestructurePipeline {
	return &RestructurePipeline{amortizer: a, audit: log}
}

// folds is the per-variant linear mutation table. init() asserts it
// covers every catalog type.
var folds = map[Type]func(w *WorkingLoan, contract loan.LoanTerms, req *Request){
	TypeRateChange:                foldRateChange,
	TypeTermExtension:             foldTermExtension,
	TypeTemporaryPaymentReduction: foldTemporaryReduction,
	TypePermanentPaymentReduction: foldPermanentReduction,
	TypePrincipalReduction:        foldPrincipalReduction,
	TypeBalloonAssignment:         foldBalloonAssignment,
	TypeBalloonRemoval:            foldBalloonRemoval,
	TypeForbearance:               foldForbearance,
	TypeDeferment:                 foldDeferment,
	TypeReamortization:            foldReamortization,
}

func init() {
	covered := make(map[Type]bool, len(folds))
	for t := range folds {
		covered[t] = true
	}
	assertCovers(covered, "fold")
}

// Project folds the modifications in order and recomputes once.
// An empty list projects zero changes.
func (rp *RestructurePipeline) Project(l *loan.Loan, mods []*Request) (*ProjectedLoan, error) {
	original := snapshotOf(l)
	origPayment, origInterest, origPaid, err := rp.price(l.Terms, original)
	if err != nil {
		return nil, err
	}
	original.Payment = origPayment

	working := original
	for _, req := range mods {
		if req == nil || req.Params == nil {
			return nil, &loan.UnknownTypeError{Type: ""}
		}
		fold, ok := folds[req.Type]
		if !ok {
			return nil, &loan.UnknownTypeError{Type: string(req.Type)}
		}
		if req.Params.ModificationType() != req.Type {
			return nil, &loan.CalculationError{Op: "restructure_fold", Detail: "parameters do not match request type"}
		}
		fold(&working, l.Terms, req)
	}

	newPayment, newInterest, newPaid, err := rp.price(l.Terms, working)
	if err != nil {
		return nil, err
	}
	working.Payment = newPayment

	return &ProjectedLoan{
		Original: original,
		Final:    working,
		Changes: Changes{
			MonthlyPayment: newPayment.Sub(origPayment),
			TotalInterest:  newInterest.Sub(origInterest),
			TotalPayment:   newPaid.Sub(origPaid),
		},
	}, nil
}

// price runs the one expensive recompute for a snapshot.
func (rp *RestructurePipeline) price(contract loan.LoanTerms, w WorkingLoan) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	t := workingTerms(contract, w)
	payment, err := rp.amortizer.ComputePayment(t)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	schedule, err := rp.amortizer.Schedule(t)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	return payment, loan.TotalInterest(schedule), loan.TotalPaid(schedule), nil
}

func snapshotOf(l *loan.Loan) WorkingLoan {
	return WorkingLoan{
		Principal:        l.CurrentBalance,
		AnnualRate:       l.Terms.AnnualRate,
		TermMonths:       l.TermsRemaining(),
		Balloon:          l.Terms.BalloonAmount,
		DeferredInterest: decimal.Zero,
	}
}

func workingTerms(contract loan.LoanTerms, w WorkingLoan) loan.LoanTerms {
	t := contract
	t.Principal = w.Principal
	t.AnnualRate = w.AnnualRate
	t.TermMonths = w.TermMonths
	t.BalloonAmount = w.Balloon
	if w.Balloon.IsZero() {
		t.BalloonDueDate = time.Time{}
	}
	return t
}

// =============================================================================
// LINEAR FOLD RULES
// =============================================================================

func foldRateChange(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*RateChange)
	w.AnnualRate = p.NewAnnualRate
}

func foldTermExtension(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*TermExtension)
	w.TermMonths += p.AdditionalMonths
}

func foldTemporaryReduction(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*TemporaryPaymentReduction)
	// Shortfall estimate against the working payment; exact window
	// simulation belongs to the single-modification calculator.
	short := w.Payment.Sub(p.ReducedPayment).Mul(decimal.NewFromInt(int64(p.NumberOfTerms)))
	if !short.IsPositive() {
		return
	}
	switch p.InterestHandling {
	case Capitalize:
		w.Principal = w.Principal.Add(short)
	case Defer:
		w.DeferredInterest = w.DeferredInterest.Add(short)
	case Waive:
	}
}

func foldPermanentReduction(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*PermanentPaymentReduction)
	w.Payment = p.NewPayment
	switch p.TermAdjustment {
	case AdjustExtendTerm:
		w.TermMonths = p.NewTermMonths
	case AdjustReducePrincipal:
		w.Principal = w.Principal.Sub(p.PrincipalReduction)
	case AdjustCombination:
		w.TermMonths = p.NewTermMonths
		w.Principal = w.Principal.Sub(p.PrincipalReduction)
	}
}

func foldPrincipalReduction(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*PrincipalReduction)
	w.Principal = w.Principal.Sub(p.ReductionAmount)
	if p.PaymentRecalculation == RecalcCustom {
		w.Payment = p.CustomPayment
		w.TermMonths = p.CustomTermMonths
	}
}

func foldBalloonAssignment(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*BalloonAssignment)
	w.Balloon = p.BalloonAmount
}

func foldBalloonRemoval(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*BalloonRemoval)
	w.Balloon = decimal.Zero
	if p.Reamortization == RemovalCustom {
		w.Payment = p.CustomPayment
		w.TermMonths = p.CustomTermMonths
	}
}

func foldForbearance(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*Forbearance)
	months := decimal.NewFromInt(int64(p.DurationMonths))
	accrual := w.Principal.Mul(loan.MonthlyRate(w.AnnualRate)).Mul(months)
	if p.Type == PartialReduction {
		accrual = accrual.Sub(p.ReducedPayment.Mul(months))
	}
	if accrual.IsPositive() {
		w.Principal = w.Principal.Add(accrual)
	}
}

func foldDeferment(w *WorkingLoan, _ loan.LoanTerms, req *Request) {
	p := req.Params.(*Deferment)
	if p.InterestSubsidy {
		return
	}
	months := decimal.NewFromInt(int64(p.DurationMonths))
	w.Principal = w.Principal.Add(w.Principal.Mul(loan.MonthlyRate(w.AnnualRate)).Mul(months))
}

func foldReamortization(w *WorkingLoan, contract loan.LoanTerms, req *Request) {
	p := req.Params.(*Reamortization)
	switch p.Mode {
	case ModeResetSchedule:
		w.TermMonths = contract.TermMonths
		w.Balloon = decimal.Zero
	case ModeAdjustRemaining:
	case ModeFullRecalc:
		w.Principal = contract.Principal
		w.AnnualRate = contract.AnnualRate
		w.TermMonths = contract.TermMonths
		w.Balloon = contract.BalloonAmount
	}
	if p.NewPrincipal.IsPositive() {
		w.Principal = p.NewPrincipal
	}
	if p.NewAnnualRate.IsPositive() {
		w.AnnualRate = p.NewAnnualRate
	}
	if p.NewTermMonths > 0 {
		w.TermMonths = p.NewTermMonths
	}
}

// =============================================================================
// COMMIT
// =============================================================================

// CommitModifications persists the package as one audit record and
// marks the requests APPLIED. A commit with an empty reason or an empty
// package is rejected with a validation error before anything runs. A
// failed persistence call surfaces CommitError and leaves every request
// PENDING so the caller can retry.
func (rp *RestructurePipeline) CommitModifications(ctx context.Context, l *loan.Loan, mods []*Request, reason, approvedBy string) (*ModificationRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &loan.FieldError{Field: "reason", Code: "required", Message: "a commit reason is required"}
	}
	if len(mods) == 0 {
		return nil, &loan.FieldError{Field: "modifications", Code: "empty", Message: "at least one modification is required"}
	}

	projected, err := rp.Project(l, mods)
	if err != nil {
		return nil, err
	}

	record := &ModificationRecord{
		ID:     uuid.NewString(),
		LoanID: l.ID,
		Type:   packageType(mods),
		Date:   mods[0].EffectiveDate,
		Changes: RecordChanges{
			MonthlyPayment: projected.Changes.MonthlyPayment,
			TotalInterest:  projected.Changes.TotalInterest,
			TotalPayment:   projected.Changes.TotalPayment,
			Modifications:  summarize(mods),
		},
		Reason:                 reason,
		ApprovedBy:             approvedBy,
		CreatedAt:              time.Now().UTC(),
		AutomaticReversionDate: earliestReversion(mods),
	}

	if err := rp.audit.AddModification(ctx, record); err != nil {
		return nil, &loan.CommitError{Cause: err}
	}
	for _, m := range mods {
		m.Status = StatusApplied
	}
	return record, nil
}

// ApplyProjection writes a committed projection back to the servicing
// record. The contract keeps its start date and payment numbering; the
// working balance, rate, remaining term count, and balloon change.
func ApplyProjection(l *loan.Loan, projected *ProjectedLoan, mods []*Request, asOf time.Time) {
	l.CurrentBalance = projected.Final.Principal
	l.Terms.AnnualRate = projected.Final.AnnualRate
	l.Terms.TermMonths = (l.CurrentTerm - 1) + projected.Final.TermMonths
	l.Terms.BalloonAmount = projected.Final.Balloon
	if projected.Final.Balloon.IsZero() {
		l.Terms.BalloonDueDate = time.Time{}
	}
	for _, m := range mods {
		if p, ok := m.Params.(*BalloonAssignment); ok {
			l.Terms.BalloonDueDate = p.BalloonDueDate
		}
	}
	l.UpdatedAt = asOf
}

func packageType(mods []*Request) string {
	if len(mods) == 1 {
		return string(mods[0].Type)
	}
	return RecordRestructure
}

// earliestReversion returns the soonest automatic reversion date among
// windowed modifications, or zero when none apply.
func earliestReversion(mods []*Request) time.Time {
	var earliest time.Time
	for _, m := range mods {
		var months int
		switch p := m.Params.(type) {
		case *TemporaryPaymentReduction:
			months = p.NumberOfTerms
		case *Forbearance:
			months = p.DurationMonths
		case *Deferment:
			months = p.DurationMonths
		default:
			continue
		}
		at := m.EffectiveDate.AddDate(0, months, 0)
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest
}

func summarize(mods []*Request) []AppliedChange {
	out := make([]AppliedChange, 0, len(mods))
	for _, m := range mods {
		out = append(out, AppliedChange{
			ModificationID: m.ID,
			Type:           m.Type,
			Summary:        describe(m),
		})
	}
	return out
}

func describe(m *Request) string {
	switch p := m.Params.(type) {
	case *RateChange:
		return fmt.Sprintf("annual rate to %s%%", p.NewAnnualRate.StringFixed(2))
	case *TermExtension:
		return fmt.Sprintf("term extended by %d months", p.AdditionalMonths)
	case *TemporaryPaymentReduction:
		return fmt.Sprintf("payment reduced to %s for %d terms (%s)", loan.FormatMoney(p.ReducedPayment), p.NumberOfTerms, p.InterestHandling)
	case *PermanentPaymentReduction:
		return fmt.Sprintf("payment fixed at %s (%s)", loan.FormatMoney(p.NewPayment), p.TermAdjustment)
	case *PrincipalReduction:
		return fmt.Sprintf("principal reduced by %s (%s)", loan.FormatMoney(p.ReductionAmount), p.PaymentRecalculation)
	case *BalloonAssignment:
		return fmt.Sprintf("balloon of %s due %s", loan.FormatMoney(p.BalloonAmount), p.BalloonDueDate.Format("2006-01-02"))
	case *BalloonRemoval:
		return fmt.Sprintf("balloon removed (%s)", p.Reamortization)
	case *Forbearance:
		return fmt.Sprintf("forbearance for %d months (%s)", p.DurationMonths, p.Type)
	case *Deferment:
		return fmt.Sprintf("deferment for %d months", p.DurationMonths)
	case *Reamortization:
		return fmt.Sprintf("reamortized (%s)", p.Mode)
	default:
		return string(m.Type)
	}
}
