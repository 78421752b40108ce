/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements loan head-state persistence and the append-only modification
  audit log using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  loan.Store:            Mutable loan head state
  modification.AuditLog: Append-only modification records

APPEND-ONLY ENFORCEMENT:
  The audit log enforces append-only semantics:
  - No UPDATE statements on modification_records
  - No DELETE statements on modification_records
  - Reversions are new records referencing the original via reverts_record_id

KEY TABLES:
  loans:                Current balance, current term and contract terms
  modification_records: Immutable log of committed modification packages

INDEXES:
  - idx_records_loan_date: History queries per loan (hot path)
  - idx_records_reversion: Reversion sweep by due date
  - idx_records_reverts:   "Already reverted?" lookups

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  pipeline := modification.NewRestructurePipeline(amort.NewStandard(), store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - loan/store.go: Loan store interface
  - modification/audit.go: Audit log interface
  - modification/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
)

// Store implements loan.Store and modification.AuditLog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ loan.Store            = (*Store)(nil)
	_ modification.AuditLog = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for metric gauges.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Loans (mutable head state)
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		borrower TEXT NOT NULL,
		principal TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		frequency TEXT NOT NULL,
		day_count TEXT NOT NULL,
		timing TEXT NOT NULL,
		rounding TEXT NOT NULL,
		balloon_amount TEXT NOT NULL DEFAULT '0',
		balloon_due_date TEXT,
		current_balance TEXT NOT NULL,
		current_term INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_borrower
		ON loans(borrower);

	-- Modification records (append-only audit log)
	CREATE TABLE IF NOT EXISTS modification_records (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		type TEXT NOT NULL,
		date TEXT NOT NULL,
		changes_json TEXT NOT NULL,
		reason TEXT NOT NULL,
		approved_by TEXT,
		automatic_reversion_date TEXT,
		reverts_record_id TEXT,
		created_at TEXT NOT NULL
	);

	-- History queries per loan (hot path)
	CREATE INDEX IF NOT EXISTS idx_records_loan_date
		ON modification_records(loan_id, date);

	-- Reversion sweep by due date
	CREATE INDEX IF NOT EXISTS idx_records_reversion
		ON modification_records(automatic_reversion_date)
		WHERE automatic_reversion_date IS NOT NULL;

	-- "Already reverted?" lookups
	CREATE INDEX IF NOT EXISTS idx_records_reverts
		ON modification_records(reverts_record_id)
		WHERE reverts_record_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOAN STORE (loan.Store interface)
// =============================================================================

// SaveLoan inserts or updates a loan's head state.
func (s *Store) SaveLoan(ctx context.Context, l *loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLoan(ctx, s.db, l)
}

func (s *Store) saveLoan(ctx context.Context, db execer, l *loan.Loan) error {
	query := `
		INSERT INTO loans
		(id, borrower, principal, annual_rate, term_months, start_date, frequency,
		 day_count, timing, rounding, balloon_amount, balloon_due_date,
		 current_balance, current_term, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			borrower = excluded.borrower,
			principal = excluded.principal,
			annual_rate = excluded.annual_rate,
			term_months = excluded.term_months,
			start_date = excluded.start_date,
			frequency = excluded.frequency,
			day_count = excluded.day_count,
			timing = excluded.timing,
			rounding = excluded.rounding,
			balloon_amount = excluded.balloon_amount,
			balloon_due_date = excluded.balloon_due_date,
			current_balance = excluded.current_balance,
			current_term = excluded.current_term,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var balloonDue *string
	if !l.Terms.BalloonDueDate.IsZero() {
		d := l.Terms.BalloonDueDate.Format(time.RFC3339)
		balloonDue = &d
	}

	_, err := db.ExecContext(ctx, query,
		l.ID,
		l.Borrower,
		l.Terms.Principal.String(),
		l.Terms.AnnualRate.String(),
		l.Terms.TermMonths,
		l.Terms.StartDate.Format(time.RFC3339),
		l.Terms.Frequency,
		l.Terms.DayCount,
		l.Terms.Timing,
		l.Terms.Rounding,
		l.Terms.BalloonAmount.String(),
		balloonDue,
		l.CurrentBalance.String(),
		l.CurrentTerm,
		createdAt.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by ID.
func (s *Store) GetLoan(ctx context.Context, id loan.LoanID) (*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, borrower, principal, annual_rate, term_months, start_date, frequency,
		       day_count, timing, rounding, balloon_amount, balloon_due_date,
		       current_balance, current_term, created_at, updated_at
		FROM loans WHERE id = ?
	`, id)

	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("loan %s: %w", id, loan.ErrLoanNotFound)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ListLoans returns all loans ordered by borrower.
func (s *Store) ListLoans(ctx context.Context) ([]*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, borrower, principal, annual_rate, term_months, start_date, frequency,
		       day_count, timing, rounding, balloon_amount, balloon_due_date,
		       current_balance, current_term, created_at, updated_at
		FROM loans ORDER BY borrower, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*loan.Loan, error) {
	var (
		l          loan.Loan
		principal  string
		rate       string
		startDate  string
		balloon    string
		balloonDue sql.NullString
		balance    string
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(
		&l.ID, &l.Borrower, &principal, &rate, &l.Terms.TermMonths, &startDate,
		&l.Terms.Frequency, &l.Terms.DayCount, &l.Terms.Timing, &l.Terms.Rounding,
		&balloon, &balloonDue, &balance, &l.CurrentTerm, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if l.Terms.Principal, err = decimal.NewFromString(principal); err != nil {
		return nil, fmt.Errorf("loan %s: bad principal: %w", l.ID, err)
	}
	if l.Terms.AnnualRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("loan %s: bad annual rate: %w", l.ID, err)
	}
	if l.Terms.BalloonAmount, err = decimal.NewFromString(balloon); err != nil {
		return nil, fmt.Errorf("loan %s: bad balloon amount: %w", l.ID, err)
	}
	if l.CurrentBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("loan %s: bad current balance: %w", l.ID, err)
	}

	l.Terms.StartDate, _ = time.Parse(time.RFC3339, startDate)
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if balloonDue.Valid {
		l.Terms.BalloonDueDate, _ = time.Parse(time.RFC3339, balloonDue.String)
	}

	return &l, nil
}

// =============================================================================
// AUDIT LOG (modification.AuditLog interface)
// =============================================================================

// AddModification appends a record. This is the ONLY write to the log.
func (s *Store) AddModification(ctx context.Context, rec *modification.ModificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addRecord(ctx, s.db, rec)
}

func (s *Store) addRecord(ctx context.Context, db execer, rec *modification.ModificationRecord) error {
	changesJSON, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode record changes: %w", err)
	}

	var reversionDate *string
	if !rec.AutomaticReversionDate.IsZero() {
		d := rec.AutomaticReversionDate.Format(time.RFC3339)
		reversionDate = &d
	}

	query := `
		INSERT INTO modification_records
		(id, loan_id, type, date, changes_json, reason, approved_by,
		 automatic_reversion_date, reverts_record_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.ExecContext(ctx, query,
		rec.ID,
		rec.LoanID,
		rec.Type,
		rec.Date.Format(time.RFC3339),
		string(changesJSON),
		rec.Reason,
		nullString(rec.ApprovedBy),
		reversionDate,
		nullString(rec.RevertsRecordID),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("modification record %s already exists", rec.ID)
		}
		return fmt.Errorf("failed to append modification record: %w", err)
	}
	return nil
}

// History returns all records for a loan, oldest first.
func (s *Store) History(ctx context.Context, loanID loan.LoanID) ([]*modification.ModificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, loan_id, type, date, changes_json, reason, approved_by,
		       automatic_reversion_date, reverts_record_id, created_at
		FROM modification_records
		WHERE loan_id = ?
		ORDER BY date ASC, created_at ASC
	`

	return s.queryRecords(ctx, query, loanID)
}

// PendingReversions returns records whose relief window has ended by asOf
// and that no reversion record references yet.
func (s *Store) PendingReversions(ctx context.Context, asOf time.Time) ([]*modification.ModificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT r.id, r.loan_id, r.type, r.date, r.changes_json, r.reason, r.approved_by,
		       r.automatic_reversion_date, r.reverts_record_id, r.created_at
		FROM modification_records r
		WHERE r.automatic_reversion_date IS NOT NULL
		  AND r.automatic_reversion_date <= ?
		  AND r.type != 'REVERSION'
		  AND NOT EXISTS (
			SELECT 1 FROM modification_records x WHERE x.reverts_record_id = r.id
		  )
		ORDER BY r.automatic_reversion_date ASC
	`

	return s.queryRecords(ctx, query, asOf.Format(time.RFC3339))
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*modification.ModificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query modification records: %w", err)
	}
	defer rows.Close()

	var records []*modification.ModificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*modification.ModificationRecord, error) {
	var (
		rec           modification.ModificationRecord
		date          string
		changesJSON   string
		approvedBy    sql.NullString
		reversionDate sql.NullString
		revertsID     sql.NullString
		createdAt     string
	)

	err := rows.Scan(
		&rec.ID, &rec.LoanID, &rec.Type, &date, &changesJSON, &rec.Reason,
		&approvedBy, &reversionDate, &revertsID, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan modification record: %w", err)
	}

	if err := json.Unmarshal([]byte(changesJSON), &rec.Changes); err != nil {
		return nil, fmt.Errorf("record %s: bad changes payload: %w", rec.ID, err)
	}

	rec.Date, _ = time.Parse(time.RFC3339, date)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.ApprovedBy = approvedBy.String
	rec.RevertsRecordID = revertsID.String
	if reversionDate.Valid {
		rec.AutomaticReversionDate, _ = time.Parse(time.RFC3339, reversionDate.String)
	}

	return &rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// Tx groups loan updates and record appends into one database transaction.
// Committing a modification package writes the new loan head and the audit
// record atomically.
type Tx struct {
	tx     *sql.Tx
	parent *Store
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (t *Tx) SaveLoan(ctx context.Context, l *loan.Loan) error {
	return t.parent.saveLoan(ctx, t.tx, l)
}

func (t *Tx) AddModification(ctx context.Context, rec *modification.ModificationRecord) error {
	return t.parent.addRecord(ctx, t.tx, rec)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"modification_records", "loans"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
