/*
scheduler.go - Automatic reversion scheduler

PURPOSE:
  Windowed modifications (temporary payment reduction, forbearance,
  deferment) carry an automatic reversion date after which standard
  amortization resumes. The scheduler turns that date into an audit
  entry: it periodically scans for committed packages whose window has
  ended and appends a REVERSION record closing each one.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - PendingReversions does the heavy lifting: it already excludes
    packages a REVERSION record references, so reruns are idempotent
  - Writes are append-only; the loan record itself is not touched

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReversionScheduler(store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - modification/audit.go: PendingReversions contract
  - store/sqlite/sqlite.go: Reversion candidate query
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridian/loan-engine/metrics"
	"github.com/meridian/loan-engine/modification"
)

// ReversionScheduler appends REVERSION records for committed packages
// whose relief window has ended.
type ReversionScheduler struct {
	Audit         modification.AuditLog
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReversionScheduler creates a new scheduler.
func NewReversionScheduler(audit modification.AuditLog) *ReversionScheduler {
	return &ReversionScheduler{
		Audit:         audit,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *ReversionScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *ReversionScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *ReversionScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReversionScheduler) checkAndProcess() {
	ctx := context.Background()
	now := time.Now().UTC()

	pending, err := rs.Audit.PendingReversions(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Error listing pending reversions: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	processed := 0
	for _, rec := range pending {
		if err := rs.revert(ctx, rec); err != nil {
			log.Printf("[Scheduler] Error reverting record %s: %v", rec.ID, err)
			metrics.IncReversion(metrics.ResultError)
			continue
		}
		metrics.IncReversion(metrics.ResultSuccess)
		processed++
	}

	log.Printf("[Scheduler] Completed: %d of %d reversions processed", processed, len(pending))
}

// revert appends the REVERSION record closing one relief window. The
// negated deltas restore the pre-package projection in a replay of the
// loan's history.
func (rs *ReversionScheduler) revert(ctx context.Context, rec *modification.ModificationRecord) error {
	reversion := &modification.ModificationRecord{
		ID:     uuid.NewString(),
		LoanID: rec.LoanID,
		Type:   modification.RecordReversion,
		Date:   rec.AutomaticReversionDate,
		Changes: modification.RecordChanges{
			MonthlyPayment: rec.Changes.MonthlyPayment.Neg(),
			TotalInterest:  rec.Changes.TotalInterest.Neg(),
			TotalPayment:   rec.Changes.TotalPayment.Neg(),
		},
		Reason:          "automatic reversion: relief window ended",
		ApprovedBy:      "scheduler",
		CreatedAt:       time.Now().UTC(),
		RevertsRecordID: rec.ID,
	}

	log.Printf("[Scheduler] Reverting %s for loan %s (window ended %s)",
		rec.ID, rec.LoanID, rec.AutomaticReversionDate.Format("2006-01-02"))

	return rs.Audit.AddModification(ctx, reversion)
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *ReversionScheduler) RunNow() {
	rs.checkAndProcess()
}
