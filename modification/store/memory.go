// Package store provides AuditLog implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
)

// =============================================================================
// MEMORY AUDIT LOG - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	records  map[loan.LoanID][]*modification.ModificationRecord
	byID     map[string]bool
	reverted map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[loan.LoanID][]*modification.ModificationRecord),
		byID:     make(map[string]bool),
		reverted: make(map[string]bool),
	}
}

// AddModification appends a single record. Append-only.
func (m *Memory) AddModification(_ context.Context, rec *modification.ModificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byID[rec.ID] {
		return fmt.Errorf("modification record %s already exists", rec.ID)
	}

	cp := cloneRecord(rec)
	recs := m.records[cp.LoanID]

	// Binary search for insertion point, keeping records ordered by
	// effective date.
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].Date.After(cp.Date)
	})
	recs = append(recs, nil)
	copy(recs[i+1:], recs[i:])
	recs[i] = cp
	m.records[cp.LoanID] = recs

	m.byID[cp.ID] = true
	if cp.RevertsRecordID != "" {
		m.reverted[cp.RevertsRecordID] = true
	}
	return nil
}

// History returns all records for a loan, oldest first.
func (m *Memory) History(_ context.Context, loanID loan.LoanID) ([]*modification.ModificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records[loanID]
	result := make([]*modification.ModificationRecord, 0, len(recs))
	for _, rec := range recs {
		result = append(result, cloneRecord(rec))
	}
	return result, nil
}

// PendingReversions returns records whose relief window has ended by asOf
// and that no reversion record references yet.
func (m *Memory) PendingReversions(_ context.Context, asOf time.Time) ([]*modification.ModificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*modification.ModificationRecord
	for _, recs := range m.records {
		for _, rec := range recs {
			if rec.Type == modification.RecordReversion {
				continue
			}
			if rec.AutomaticReversionDate.IsZero() || rec.AutomaticReversionDate.After(asOf) {
				continue
			}
			if m.reverted[rec.ID] {
				continue
			}
			result = append(result, cloneRecord(rec))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AutomaticReversionDate.Before(result[j].AutomaticReversionDate)
	})
	return result, nil
}

// cloneRecord copies a record so callers cannot mutate stored state.
func cloneRecord(rec *modification.ModificationRecord) *modification.ModificationRecord {
	cp := *rec
	if len(rec.Changes.Modifications) > 0 {
		cp.Changes.Modifications = make([]modification.AppliedChange, len(rec.Changes.Modifications))
		copy(cp.Changes.Modifications, rec.Changes.Modifications)
	}
	return &cp
}
