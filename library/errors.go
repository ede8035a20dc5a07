/*
errors.go - Centralized error types for the lending engine

PURPOSE:
  Every expected failure of Catalog, Membership and the ledger lives here.
  None of them are fatal: the shell reports them and carries on.

ERROR CATEGORIES:
  1. Conflicts    - duplicate ISBN/email, duplicate loan, book still on loan
  2. Not found    - book, member, transaction lookups
  3. Rule denials - borrow not permitted, book unavailable, no active loan
  4. Input        - invalid enum selection, invalid amounts/fields

USAGE:
  Use errors.Is against the sentinels and errors.As for the structured
  errors when the caller needs the reason:

    var denied *library.BorrowNotPermittedError
    if errors.As(err, &denied) && denied.Reason == library.ReasonFinesTooHigh {
        ...
    }

SEE ALSO:
  - api/handlers.go: maps these to HTTP status codes
*/
package library

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateKey is the parent of every uniqueness violation.
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrDuplicateISBN  = fmt.Errorf("%w: isbn already in catalog", ErrDuplicateKey)
	ErrDuplicateEmail = fmt.Errorf("%w: email already registered", ErrDuplicateKey)

	// ErrNotFound is the parent of every lookup miss.
	ErrNotFound            = errors.New("not found")
	ErrBookNotFound        = fmt.Errorf("book %w", ErrNotFound)
	ErrMemberNotFound      = fmt.Errorf("member %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	ErrBorrowNotPermitted  = errors.New("borrow not permitted")
	ErrBookUnavailable     = errors.New("book unavailable")
	ErrNoActiveLoan        = errors.New("no active loan for member and book")
	ErrDuplicateLoan       = errors.New("member already has this book on loan")
	ErrBorrowLimitExceeded = errors.New("borrow limit exceeded")
	ErrBookHasActiveLoans  = errors.New("book has active loans")

	// ErrTransactionImmutable is returned by stores asked to rewrite a
	// transaction that already reached a terminal status.
	ErrTransactionImmutable = errors.New("transaction is immutable")

	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidInput     = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DenialReason explains why a member may not borrow.
type DenialReason string

const (
	ReasonMembershipExpired DenialReason = "membership_expired"
	ReasonLimitReached      DenialReason = "limit_reached"
	ReasonFinesTooHigh      DenialReason = "fines_too_high"
)

// BorrowNotPermittedError reports the first failing eligibility check.
type BorrowNotPermittedError struct {
	MemberID MemberID
	Reason   DenialReason
}

func (e *BorrowNotPermittedError) Error() string {
	return fmt.Sprintf("borrow not permitted for %s: %s", e.MemberID, e.Reason)
}

func (e *BorrowNotPermittedError) Unwrap() error { return ErrBorrowNotPermitted }

// BookUnavailableError carries the status that blocked the loan.
type BookUnavailableError struct {
	ISBN   string
	Status BookStatus
}

func (e *BookUnavailableError) Error() string {
	return fmt.Sprintf("book %s unavailable: %s", e.ISBN, e.Status)
}

func (e *BookUnavailableError) Unwrap() error { return ErrBookUnavailable }

// InvalidSelectionError is an out-of-range enumerated choice.
type InvalidSelectionError struct {
	Field string
	Value string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

func (e *InvalidSelectionError) Unwrap() error { return ErrInvalidSelection }

// FieldError is a malformed input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

func (e *FieldError) Unwrap() error { return ErrInvalidInput }

// ActiveLoansError lists the loans blocking a catalog deletion.
type ActiveLoansError struct {
	ISBN  string
	Loans []TransactionID
}

func (e *ActiveLoansError) Error() string {
	return fmt.Sprintf("book %s has %d active loan(s)", e.ISBN, len(e.Loans))
}

func (e *ActiveLoansError) Unwrap() error { return ErrBookHasActiveLoans }

func invalidAmount(field string, amount decimal.Decimal) error {
	return &FieldError{Field: field, Message: fmt.Sprintf("must not be negative, got %s", amount)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is a uniqueness or state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrDuplicateLoan) ||
		errors.Is(err, ErrBookHasActiveLoans) ||
		errors.Is(err, ErrTransactionImmutable)
}

// IsRuleViolation returns true if a lending rule denied the operation.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrBorrowNotPermitted) ||
		errors.Is(err, ErrBookUnavailable) ||
		errors.Is(err, ErrNoActiveLoan) ||
		errors.Is(err, ErrBorrowLimitExceeded)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSelection) || errors.Is(err, ErrInvalidInput)
}
