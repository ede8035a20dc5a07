/*
ledger.go - Borrow/return orchestration and the transaction ledger

PURPOSE:
  LedgerEngine is the only component that touches Catalog and Membership
  together. It decides whether a loan may happen, records it, and settles it
  on return with any overdue fine.

TRANSACTION LIFECYCLE:
  Pending -> Active -> {Completed | Cancelled | Failed}

  Only Borrow transactions are created here. A return completes the
  matching Borrow in place; it is not a second record.

BORROW CHECK ORDER:
  1. member exists          (ErrMemberNotFound)
  2. member eligible        (*BorrowNotPermittedError, first failing reason)
  3. book exists            (ErrBookNotFound)
  4. no open loan for pair  (ErrDuplicateLoan)
  5. book available         (*BookUnavailableError)

  Member checks run before book checks: an ineligible member asking for an
  unavailable book is reported as ineligible.

ATOMICITY:
  Borrow and Return run in one Store.WithTx. A failure anywhere rolls back
  the book, the member, the ledger and the sequence draw together.

SEE ALSO:
  - catalog.go, membership.go: the mutations composed here
  - policy.go: loan period and fine rate
*/
package library

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEngine struct {
	*env
	store   Store
	catalog *Catalog
	members *Membership
}

// ReturnReceipt is what a completed return reports back.
type ReturnReceipt struct {
	Transaction Transaction
	Fine        decimal.Decimal
	DaysOverdue int
}

// =============================================================================
// BORROW
// =============================================================================

// Borrow lends one copy of isbn to memberID and returns the new Active
// transaction.
func (l *LedgerEngine) Borrow(ctx context.Context, memberID MemberID, isbn string) (tx *Transaction, err error) {
	defer func(started time.Time) { l.observe("borrow", started, err) }(time.Now())

	err = l.store.WithTx(ctx, func(s Store) error {
		today := l.today()

		member, err := s.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if reason := member.BorrowDenial(today, l.policy); reason != "" {
			return &BorrowNotPermittedError{MemberID: memberID, Reason: reason}
		}

		book, err := s.GetBook(ctx, isbn)
		if err != nil {
			return err
		}
		open, err := s.ListTransactions(ctx, TransactionFilter{MemberID: memberID, ISBN: isbn, Type: TxBorrow})
		if err != nil {
			return err
		}
		for _, t := range open {
			if t.IsActiveLoan() {
				return fmt.Errorf("%w: %s", ErrDuplicateLoan, t.ID)
			}
		}
		if !l.catalog.IsAvailable(*book) {
			return &BookUnavailableError{ISBN: isbn, Status: book.Status}
		}

		seq, err := s.NextSequence(ctx, SequenceTransactions)
		if err != nil {
			return err
		}
		loan := Transaction{
			ID:        FormatTransactionID(seq),
			MemberID:  memberID,
			ISBN:      isbn,
			Type:      TxBorrow,
			CreatedAt: l.now(),
			DueDate:   today.AddDays(l.policy.LoanPeriodDays),
			Fine:      decimal.Zero,
			Status:    TxActive,
		}
		if err := l.catalog.in(s).MarkBorrowed(ctx, isbn); err != nil {
			return err
		}
		if _, err := l.members.in(s).IncrementBorrowed(ctx, memberID); err != nil {
			return err
		}
		if err := s.AppendTransaction(ctx, loan); err != nil {
			return err
		}
		tx = &loan
		return nil
	})
	if err != nil {
		l.logger.Warn("borrow rejected", "member", memberID, "isbn", isbn, "error", err)
		return nil, fmt.Errorf("borrow %s by %s: %w", isbn, memberID, err)
	}

	l.metrics.IncrementCounter(MetricBorrows, nil)
	l.logger.Info("book borrowed", "transaction", tx.ID, "member", memberID, "isbn", isbn, "due", tx.DueDate)
	return tx, nil
}

// =============================================================================
// RETURN
// =============================================================================

// Return settles the earliest active loan of isbn to memberID. The fine is
// DailyFine for each whole day past the due date and is added to the
// member's balance. Unknown members and books are reported before a missing
// loan.
func (l *LedgerEngine) Return(ctx context.Context, memberID MemberID, isbn string) (receipt *ReturnReceipt, err error) {
	defer func(started time.Time) { l.observe("return", started, err) }(time.Now())

	err = l.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetMember(ctx, memberID); err != nil {
			return err
		}
		if _, err := s.GetBook(ctx, isbn); err != nil {
			return err
		}
		loan, err := l.activeLoan(ctx, s, memberID, isbn)
		if err != nil {
			return err
		}

		today := l.today()
		fine, days := l.policy.OverdueFine(loan.DueDate, today)
		loan.ReturnDate = today
		loan.Fine = fine
		loan.Status = TxCompleted
		if err := s.UpdateTransaction(ctx, *loan); err != nil {
			return err
		}

		if err := l.catalog.in(s).MarkReturned(ctx, isbn); err != nil {
			return err
		}
		members := l.members.in(s)
		if _, err := members.DecrementBorrowed(ctx, memberID); err != nil {
			return err
		}
		if fine.IsPositive() {
			if _, err := members.AddFine(ctx, memberID, fine); err != nil {
				return err
			}
		}
		receipt = &ReturnReceipt{Transaction: *loan, Fine: fine, DaysOverdue: days}
		return nil
	})
	if err != nil {
		l.logger.Warn("return rejected", "member", memberID, "isbn", isbn, "error", err)
		return nil, fmt.Errorf("return %s by %s: %w", isbn, memberID, err)
	}

	l.metrics.IncrementCounter(MetricReturns, nil)
	if receipt.Fine.IsPositive() {
		l.metrics.RecordValue(MetricFinesAssessed, receipt.Fine.InexactFloat64(), nil)
		l.logger.Info("overdue fine assessed", "member", memberID, "isbn", isbn,
			"days_overdue", receipt.DaysOverdue, "fine", receipt.Fine)
	}
	l.logger.Info("book returned", "transaction", receipt.Transaction.ID, "member", memberID, "isbn", isbn)
	return receipt, nil
}

// activeLoan scans the ledger forward and returns the first active Borrow
// for the pair.
func (l *LedgerEngine) activeLoan(ctx context.Context, s Store, memberID MemberID, isbn string) (*Transaction, error) {
	loans, err := s.ListTransactions(ctx, TransactionFilter{MemberID: memberID, ISBN: isbn, Type: TxBorrow})
	if err != nil {
		return nil, err
	}
	for _, t := range loans {
		if t.IsActiveLoan() {
			return &t, nil
		}
	}
	return nil, ErrNoActiveLoan
}

// =============================================================================
// QUERIES
// =============================================================================

// TransactionsFor lists memberID's transactions in ledger order. An empty
// memberID lists every transaction.
func (l *LedgerEngine) TransactionsFor(ctx context.Context, memberID MemberID) ([]Transaction, error) {
	txs, err := l.store.ListTransactions(ctx, TransactionFilter{MemberID: memberID})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Overdue lists the active loans whose due date is before today. It is
// computed on each call.
func (l *LedgerEngine) Overdue(ctx context.Context) ([]Transaction, error) {
	loans, err := l.store.ListTransactions(ctx, TransactionFilter{Type: TxBorrow})
	if err != nil {
		return nil, fmt.Errorf("list overdue: %w", err)
	}
	today := l.today()
	result := []Transaction{}
	for _, t := range loans {
		if t.IsOverdue(today) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (l *LedgerEngine) Get(ctx context.Context, id TransactionID) (*Transaction, error) {
	tx, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}
