/*
errors.go - Centralized error taxonomy for the servicing engine

PURPOSE:
  All engine error types in one place. Components return exactly one of
  the four families; callers branch with errors.Is/errors.As instead of
  string matching.

ERROR FAMILIES:
  1. Validation errors  - input violates a field or cross-field rule
  2. Unknown type       - a modification type not in the catalog
  3. Calculation errors - math precondition failed mid-computation
  4. Commit errors      - audit persistence failed; state not advanced

USAGE:
  Boundary code maps families to transport status:

    if loan.IsClientError(err) { ... 400 ... }
    var fe *loan.FieldError
    if errors.As(err, &fe) { ... fe.Field ... }

SEE ALSO:
  - modification/validator.go: produces FieldError
  - modification/pipeline.go: produces CommitError
  - api/handlers.go: maps families to HTTP status codes
*/
package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownType is returned for modification types not in the catalog.
	ErrUnknownType = errors.New("unknown modification type")

	// ErrCalculation is returned when amortization math cannot proceed
	// (non-positive derived balance, payment below first-period interest).
	ErrCalculation = errors.New("calculation failed")

	// ErrCommit is returned when persisting a committed restructuring fails.
	// The in-memory modification package is left intact for retry.
	ErrCommit = errors.New("commit failed")

	// ErrLoanNotFound is returned when a referenced loan doesn't exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrRecordNotFound is returned when a referenced audit record doesn't exist.
	ErrRecordNotFound = errors.New("modification record not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError reports a single-field validation failure.
type FieldError struct {
	Field   string `json:"field"`   // request field, e.g. "newAnnualRate"
	Code    string `json:"code"`    // machine code, e.g. "out_of_range"
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// UnknownTypeError reports a modification type the catalog doesn't know.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown modification type %q", e.Type)
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// CalculationError reports a failed precondition inside amortization or
// impact math. Op names the computation, Detail the violated condition.
type CalculationError struct {
	Op     string
	Detail string
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *CalculationError) Unwrap() error { return ErrCalculation }

// CommitError wraps an audit persistence failure.
type CommitError struct {
	Cause error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed: %v", e.Cause)
}

func (e *CommitError) Unwrap() error { return ErrCommit }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownType)
}

// IsCalculation returns true for failed math preconditions.
func IsCalculation(err error) bool {
	return errors.Is(err, ErrCalculation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
