/*
audit.go - Append-only persistence for committed restructurings

PURPOSE:
  Defines the interface between the restructuring pipeline and durable
  storage. A modification package becomes exactly one audit record at
  commit time; records are never updated or deleted.

APPEND-ONLY CONTRACT:
  - AddModification(): the ONLY write operation
  - NO Update() or Delete() methods exist
  - Reversions are recorded as new records referencing the original

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - modification/store/memory.go: in-memory for testing

SEE ALSO:
  - pipeline.go: assembles the record and performs the single commit
  - api/scheduler.go: drives reversions from PendingReversions
*/
package modification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// =============================================================================
// MODIFICATION RECORD - One committed package
// =============================================================================

// RecordType values beyond the ten variant names.
const (
	// RecordRestructure marks a package of more than one modification.
	RecordRestructure = "RESTRUCTURE"
	// RecordReversion marks the automatic end of a relief window.
	RecordReversion = "REVERSION"
)

// AppliedChange summarizes one modification inside a committed package.
type AppliedChange struct {
	ModificationID string `json:"modificationId"`
	Type           Type   `json:"type"`
	Summary        string `json:"summary"`
}

// RecordChanges carries the projected deltas the package was committed with.
type RecordChanges struct {
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`
	TotalInterest  decimal.Decimal `json:"totalInterest"`
	TotalPayment   decimal.Decimal `json:"totalPayment"`
	Modifications  []AppliedChange `json:"modifications"`
}

// ModificationRecord is the immutable audit entry for one commit.
type ModificationRecord struct {
	ID         string        `json:"id"`
	LoanID     loan.LoanID   `json:"loanId"`
	Type       string        `json:"type"` // variant name, RESTRUCTURE, or REVERSION
	Date       time.Time     `json:"date"` // effective date of the package
	Changes    RecordChanges `json:"changes"`
	Reason     string        `json:"reason"`
	ApprovedBy string        `json:"approvedBy"`
	CreatedAt  time.Time     `json:"createdAt"`

	// AutomaticReversionDate is the earliest reversion among windowed
	// modifications in the package; zero when none apply.
	AutomaticReversionDate time.Time `json:"automaticReversionDate,omitempty"`

	// RevertsRecordID links a REVERSION record to the package it closes.
	RevertsRecordID string `json:"revertsRecordId,omitempty"`
}

// =============================================================================
// AUDIT LOG - Interface for record persistence (append-only)
// =============================================================================

// AuditLog persists modification records.
// IMPORTANT: AuditLog is APPEND-ONLY. No Update, No Delete. Ever.
type AuditLog interface {
	// AddModification persists one record. This is the ONLY write.
	AddModification(ctx context.Context, rec *ModificationRecord) error

	// History returns all records for a loan, oldest first.
	History(ctx context.Context, loanID loan.LoanID) ([]*ModificationRecord, error)

	// PendingReversions returns committed records whose reversion date
	// has passed and that no REVERSION record references yet.
	PendingReversions(ctx context.Context, asOf time.Time) ([]*ModificationRecord, error)
}
