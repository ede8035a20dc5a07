/*
Package library is the lending rules engine of a library system.

PURPOSE:
  Decides whether a borrow is permitted, mutates book availability and
  member borrowing counts together with each loan and return, and computes
  overdue fines at return time.

KEY CONCEPTS IN THIS FILE (types.go):
  - Book: catalog record keyed by ISBN, tracks per-copy availability
  - Member: registered borrower, tracks borrowed count and fines owed
  - Transaction: ledger entry for a loan, completed exactly once

DESIGN PRINCIPLES:
  1. Explicit state: all records live behind a Store handed to New()
  2. Precision: fines use decimal.Decimal, never float64
  3. Closed enums: every tag has a lookup table (enums.go)
  4. Audit trail: transactions are never deleted, and never change again
     once they reach a terminal status

SEE ALSO:
  - catalog.go, membership.go, ledger.go: the three components
  - store.go: persistence contract
*/
package library

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type TransactionID string

const (
	memberIDPrefix      = "MEM"
	transactionIDPrefix = "TXN"
)

// Sequence names handed to Store.NextSequence.
const (
	SequenceMembers      = "members"
	SequenceTransactions = "transactions"
)

func FormatMemberID(seq int64) MemberID {
	return MemberID(fmt.Sprintf("%s%06d", memberIDPrefix, seq))
}

func FormatTransactionID(seq int64) TransactionID {
	return TransactionID(fmt.Sprintf("%s%06d", transactionIDPrefix, seq))
}

// =============================================================================
// BOOK
// =============================================================================

type Book struct {
	ISBN            string
	Title           string
	Author          string
	Category        Category
	Publisher       string
	Year            int // 0 when unknown
	Description     string
	TotalCopies     int
	AvailableCopies int
	Status          BookStatus
	AddedAt         time.Time
	UpdatedAt       time.Time
}

// IsAvailable reports whether a copy can be lent right now.
func (b Book) IsAvailable() bool {
	return b.Status.CanBeBorrowed() && b.AvailableCopies > 0
}

// borrowCopy takes one copy off the shelf. No-op when unavailable.
func (b *Book) borrowCopy(now time.Time) bool {
	if !b.IsAvailable() {
		return false
	}
	b.AvailableCopies--
	if b.AvailableCopies == 0 {
		b.Status = BookBorrowed
	}
	b.UpdatedAt = now
	return true
}

// returnCopy puts one copy back. No-op when every copy is already in.
func (b *Book) returnCopy(now time.Time) bool {
	if b.AvailableCopies >= b.TotalCopies {
		return false
	}
	b.AvailableCopies++
	b.Status = BookAvailable
	b.UpdatedAt = now
	return true
}

// circulationStatus is the status implied by copy counts alone.
func (b Book) circulationStatus() BookStatus {
	if b.AvailableCopies > 0 {
		return BookAvailable
	}
	return BookBorrowed
}

func (b Book) matches(term string) bool {
	return strings.Contains(strings.ToLower(b.Title), term) ||
		strings.Contains(strings.ToLower(b.Author), term) ||
		strings.Contains(strings.ToLower(b.ISBN), term)
}

// =============================================================================
// MEMBER
// =============================================================================

type Member struct {
	ID              MemberID
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Address         string
	Type            MemberType
	Status          MemberStatus
	MembershipStart Date
	MembershipEnd   Date
	FinesOwed       decimal.Decimal
	BorrowedCount   int
}

func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// IsActive reports an Active status with a membership ending after today.
func (m Member) IsActive(today Date) bool {
	return m.Status.CanBorrow() && m.MembershipEnd.After(today)
}

// BorrowDenial returns the first failing eligibility check, or "" when the
// member may borrow. Order: membership, limit, fines.
func (m Member) BorrowDenial(today Date, p Policy) DenialReason {
	switch {
	case !m.IsActive(today):
		return ReasonMembershipExpired
	case m.BorrowedCount >= m.Type.MaxBooks():
		return ReasonLimitReached
	case !m.FinesOwed.LessThan(p.FineThreshold):
		return ReasonFinesTooHigh
	}
	return ""
}

// CanBorrow is BorrowDenial(...) == "".
func (m Member) CanBorrow(today Date, p Policy) bool {
	return m.BorrowDenial(today, p) == ""
}

func (m Member) matches(term string) bool {
	return strings.Contains(strings.ToLower(m.FullName()), term) ||
		strings.Contains(strings.ToLower(m.Email), term) ||
		strings.Contains(strings.ToLower(string(m.ID)), term)
}

// =============================================================================
// TRANSACTION
// =============================================================================

type Transaction struct {
	ID         TransactionID
	MemberID   MemberID
	ISBN       string
	Type       TransactionType
	CreatedAt  time.Time
	DueDate    Date // Borrow only
	ReturnDate Date // set on completion
	Fine       decimal.Decimal
	Status     TransactionStatus
	Notes      string
}

// IsActiveLoan reports a Borrow that has not been returned.
func (t Transaction) IsActiveLoan() bool {
	return t.Type == TxBorrow && t.Status.IsActiveLoan()
}

// IsOverdue reports an active loan whose due date has passed.
func (t Transaction) IsOverdue(today Date) bool {
	return t.IsActiveLoan() && !t.DueDate.IsZero() && today.After(t.DueDate)
}
