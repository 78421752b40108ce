package loan

import "context"

// Store persists loan head state.
//
// A Loan row is the mutable present: balance and current term move as
// payments post and modifications commit. The immutable past lives in
// the modification audit log, never here.
type Store interface {
	// SaveLoan inserts or updates a loan.
	SaveLoan(ctx context.Context, l *Loan) error

	// GetLoan returns the loan or an error wrapping ErrLoanNotFound.
	GetLoan(ctx context.Context, id LoanID) (*Loan, error)

	// ListLoans returns all loans ordered by borrower.
	ListLoans(ctx context.Context) ([]*Loan, error)
}
