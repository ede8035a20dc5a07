package library_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/library"
	"github.com/warp/lending-engine/library/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	ctx   context.Context
	clock *library.ManualClock
	store *store.Memory
	lib   *library.Library
}

func newFixture(t *testing.T, opts ...library.Option) *fixture {
	t.Helper()
	clock := library.NewManualClock(time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC))
	s := store.NewMemory()
	lib, err := library.New(s, append([]library.Option{library.WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return &fixture{ctx: context.Background(), clock: clock, store: s, lib: lib}
}

func (f *fixture) addBook(t *testing.T, isbn string, copies int) *library.Book {
	t.Helper()
	b, err := f.lib.Catalog.Insert(f.ctx, library.Book{
		ISBN:        isbn,
		Title:       "Title " + isbn,
		Author:      "Author " + isbn,
		Category:    library.CategoryComputerProgramming,
		TotalCopies: copies,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) register(t *testing.T, email string, typ library.MemberType) *library.Member {
	t.Helper()
	m, err := f.lib.Members.Register(f.ctx, library.Registration{
		FirstName: "Test",
		LastName:  "Member",
		Email:     email,
		Type:      typ,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) book(t *testing.T, isbn string) library.Book {
	t.Helper()
	b, err := f.lib.Catalog.FindByISBN(f.ctx, isbn)
	require.NoError(t, err)
	return *b
}

func (f *fixture) member(t *testing.T, id library.MemberID) library.Member {
	t.Helper()
	m, err := f.lib.Members.FindByID(f.ctx, id)
	require.NoError(t, err)
	return *m
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// BORROW
// =============================================================================

func TestBorrow_CreatesActiveLoanAndMovesCounts(t *testing.T) {
	// GIVEN: A student and a book with two copies
	// WHEN: The student borrows it
	// THEN: An Active Borrow due in 14 days exists and both counters moved

	f := newFixture(t)
	f.addBook(t, "978-0134685991", 2)
	m := f.register(t, "john.doe@email.com", library.MemberStudent)

	tx, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "978-0134685991")
	require.NoError(t, err)

	assert.Equal(t, library.TransactionID("TXN000001"), tx.ID)
	assert.Equal(t, library.TxBorrow, tx.Type)
	assert.Equal(t, library.TxActive, tx.Status)
	assert.Equal(t, "2025-03-17", tx.DueDate.String())
	assert.True(t, tx.ReturnDate.IsZero())
	assert.True(t, tx.Fine.IsZero())

	book := f.book(t, "978-0134685991")
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, library.BookAvailable, book.Status)
	assert.Equal(t, 1, f.member(t, m.ID).BorrowedCount)
}

func TestBorrow_LastCopyFlipsStatusToBorrowed(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "a@example.com", library.MemberFaculty)

	_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	book := f.book(t, "isbn-1")
	assert.Equal(t, 0, book.AvailableCopies)
	assert.Equal(t, library.BookBorrowed, book.Status)
}

func TestBorrow_StudentSixthBookHitsLimit(t *testing.T) {
	// GIVEN: A student (max 5 books) and six available titles
	// WHEN: The student borrows five, then tries a sixth
	// THEN: The sixth fails with BorrowNotPermitted{LimitReached}

	f := newFixture(t)
	m := f.register(t, "student@example.com", library.MemberStudent)
	for i := 1; i <= 6; i++ {
		f.addBook(t, fmt.Sprintf("isbn-%d", i), 1)
	}
	for i := 1; i <= 5; i++ {
		_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, fmt.Sprintf("isbn-%d", i))
		require.NoError(t, err)
	}

	_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-6")

	var denied *library.BorrowNotPermittedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, library.ReasonLimitReached, denied.Reason)
	assert.ErrorIs(t, err, library.ErrBorrowNotPermitted)
	assert.Equal(t, 5, f.member(t, m.ID).BorrowedCount)
	assert.Equal(t, 1, f.book(t, "isbn-6").AvailableCopies)
}

func TestBorrow_UnknownISBNLeavesStateUnchanged(t *testing.T) {
	// GIVEN: A member and a catalog without the requested ISBN
	// WHEN: The member tries to borrow it
	// THEN: BookNotFound, no transaction, no counter moved

	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "a@example.com", library.MemberPublic)

	_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "missing")

	require.ErrorIs(t, err, library.ErrBookNotFound)
	assert.True(t, library.IsNotFound(err))
	assert.Equal(t, 0, f.member(t, m.ID).BorrowedCount)
	assert.Equal(t, 1, f.book(t, "isbn-1").AvailableCopies)
	txs, err := f.lib.Ledger.TransactionsFor(f.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestBorrow_UnknownMember(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)

	_, err := f.lib.Ledger.Borrow(f.ctx, "MEM999999", "isbn-1")

	assert.ErrorIs(t, err, library.ErrMemberNotFound)
}

func TestBorrow_MemberCheckWinsOverBookCheck(t *testing.T) {
	// GIVEN: A suspended member and a book that is out of stock
	// WHEN: The member asks for the book
	// THEN: The member's ineligibility is reported, not the book

	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	holder := f.register(t, "holder@example.com", library.MemberStaff)
	_, err := f.lib.Ledger.Borrow(f.ctx, holder.ID, "isbn-1")
	require.NoError(t, err)

	m := f.register(t, "late@example.com", library.MemberStaff)
	_, err = f.lib.Members.SetStatus(f.ctx, m.ID, library.MemberSuspended)
	require.NoError(t, err)

	_, err = f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")

	var denied *library.BorrowNotPermittedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, library.ReasonMembershipExpired, denied.Reason)
	assert.NotErrorIs(t, err, library.ErrBookUnavailable)
}

func TestBorrow_ExpiredMembership(t *testing.T) {
	// GIVEN: A Public member (6 months) whose membership lapsed
	// WHEN: Borrowing on the end date itself
	// THEN: MembershipExpired, since membershipEnd must be after today

	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "p@example.com", library.MemberPublic)
	f.clock.Set(m.MembershipEnd.Time())

	_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")

	var denied *library.BorrowNotPermittedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, library.ReasonMembershipExpired, denied.Reason)
}

func TestBorrow_FinesAtThresholdBlock(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "f@example.com", library.MemberFaculty)
	_, err := f.lib.Members.AddFine(f.ctx, m.ID, money("50.00"))
	require.NoError(t, err)

	_, err = f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")

	var denied *library.BorrowNotPermittedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, library.ReasonFinesTooHigh, denied.Reason)

	// Just under the threshold is fine.
	_, err = f.lib.Members.PayFine(f.ctx, m.ID, money("0.01"))
	require.NoError(t, err)
	_, err = f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	assert.NoError(t, err)
}

func TestBorrow_UnavailableReportsStatus(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 3)
	_, err := f.lib.Catalog.SetStatus(f.ctx, "isbn-1", library.BookMaintenance)
	require.NoError(t, err)
	m := f.register(t, "a@example.com", library.MemberStudent)

	_, err = f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")

	var unavailable *library.BookUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, library.BookMaintenance, unavailable.Status)
	assert.True(t, library.IsRuleViolation(err))
}

func TestBorrow_SecondLoanOfSameTitleRejected(t *testing.T) {
	// GIVEN: A member already holding one of two copies
	// WHEN: The member borrows the same ISBN again
	// THEN: DuplicateLoan, and nothing changes

	f := newFixture(t)
	f.addBook(t, "isbn-1", 2)
	m := f.register(t, "a@example.com", library.MemberResearcher)
	_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	_, err = f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")

	require.ErrorIs(t, err, library.ErrDuplicateLoan)
	assert.True(t, library.IsConflict(err))
	assert.Equal(t, 1, f.book(t, "isbn-1").AvailableCopies)
	assert.Equal(t, 1, f.member(t, m.ID).BorrowedCount)
}

func TestBorrow_RejectedBorrowDoesNotConsumeID(t *testing.T) {
	// GIVEN: A rejected borrow between two successful ones
	// WHEN: Looking at the transaction IDs
	// THEN: They are consecutive

	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	f.addBook(t, "isbn-2", 1)
	a := f.register(t, "a@example.com", library.MemberStudent)
	b := f.register(t, "b@example.com", library.MemberStudent)

	first, err := f.lib.Ledger.Borrow(f.ctx, a.ID, "isbn-1")
	require.NoError(t, err)
	_, err = f.lib.Ledger.Borrow(f.ctx, b.ID, "isbn-1")
	require.Error(t, err)
	second, err := f.lib.Ledger.Borrow(f.ctx, b.ID, "isbn-2")
	require.NoError(t, err)

	assert.Equal(t, library.TransactionID("TXN000001"), first.ID)
	assert.Equal(t, library.TransactionID("TXN000002"), second.ID)
}

// =============================================================================
// RETURN
// =============================================================================

func TestReturn_OnTimeHasNoFine(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "a@example.com", library.MemberStudent)
	tx, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	f.clock.Set(tx.DueDate.Time())
	receipt, err := f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	assert.True(t, receipt.Fine.IsZero())
	assert.Equal(t, 0, receipt.DaysOverdue)
	assert.Equal(t, library.TxCompleted, receipt.Transaction.Status)
	assert.Equal(t, tx.DueDate, receipt.Transaction.ReturnDate)
	assert.True(t, f.member(t, m.ID).FinesOwed.IsZero())
}

func TestReturn_TenDaysLateChargesFiveUnits(t *testing.T) {
	// GIVEN: A loan due today
	// WHEN: It comes back ten days later
	// THEN: Fine is 5.00, daysOverdue is 10 and the member owes it

	f := newFixture(t, library.WithPolicy(library.Policy{
		LoanPeriodDays: 1,
		DailyFine:      money("0.50"),
		FineThreshold:  money("50.00"),
	}))
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "a@example.com", library.MemberStudent)
	tx, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	f.clock.Set(tx.DueDate.Time())
	f.clock.AdvanceDays(10)
	receipt, err := f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	assert.True(t, money("5.00").Equal(receipt.Fine), "fine %s", receipt.Fine)
	assert.Equal(t, 10, receipt.DaysOverdue)
	assert.True(t, money("5.00").Equal(receipt.Transaction.Fine))
	assert.True(t, money("5.00").Equal(f.member(t, m.ID).FinesOwed))
}

func TestReturn_FineMatchesDaysLate(t *testing.T) {
	for _, late := range []int{-3, 0, 1, 7, 40} {
		t.Run(fmt.Sprintf("late_%d", late), func(t *testing.T) {
			f := newFixture(t)
			f.addBook(t, "isbn-1", 1)
			m := f.register(t, "a@example.com", library.MemberFaculty)
			tx, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
			require.NoError(t, err)

			f.clock.Set(tx.DueDate.Time())
			f.clock.AdvanceDays(late)
			receipt, err := f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
			require.NoError(t, err)

			want := decimal.Zero
			if late > 0 {
				want = money("0.50").Mul(decimal.NewFromInt(int64(late)))
			}
			assert.True(t, want.Equal(receipt.Fine), "want %s got %s", want, receipt.Fine)
		})
	}
}

func TestReturn_NoActiveLoanMutatesNothing(t *testing.T) {
	// GIVEN: A member and a book with no loan between them
	// WHEN: Returning the pair
	// THEN: NoActiveLoan and state unchanged

	f := newFixture(t)
	f.addBook(t, "isbn-1", 2)
	m := f.register(t, "a@example.com", library.MemberStudent)
	other := f.register(t, "b@example.com", library.MemberStudent)
	_, err := f.lib.Ledger.Borrow(f.ctx, other.ID, "isbn-1")
	require.NoError(t, err)

	_, err = f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")

	require.ErrorIs(t, err, library.ErrNoActiveLoan)
	assert.Equal(t, 1, f.book(t, "isbn-1").AvailableCopies)
	assert.Equal(t, 0, f.member(t, m.ID).BorrowedCount)
	assert.Equal(t, 1, f.member(t, other.ID).BorrowedCount)
}

func TestReturn_UnknownMemberOrBook(t *testing.T) {
	// GIVEN: One book lent to one member
	// WHEN: Returning with an unknown member ID or an unknown ISBN
	// THEN: The lookup failure is reported, not a missing loan

	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "a@example.com", library.MemberStudent)
	_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	_, err = f.lib.Ledger.Return(f.ctx, "MEM999999", "isbn-1")
	assert.ErrorIs(t, err, library.ErrMemberNotFound)
	assert.True(t, library.IsNotFound(err))

	_, err = f.lib.Ledger.Return(f.ctx, m.ID, "isbn-404")
	assert.ErrorIs(t, err, library.ErrBookNotFound)

	assert.Equal(t, 0, f.book(t, "isbn-1").AvailableCopies)
	assert.Equal(t, 1, f.member(t, m.ID).BorrowedCount)
}

func TestReturn_RoundTripRestoresCounts(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 3)
	m := f.register(t, "a@example.com", library.MemberStaff)
	beforeBook := f.book(t, "isbn-1")
	beforeMember := f.member(t, m.ID)

	_, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)
	_, err = f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	afterBook := f.book(t, "isbn-1")
	assert.Equal(t, beforeBook.AvailableCopies, afterBook.AvailableCopies)
	assert.Equal(t, beforeBook.Status, afterBook.Status)
	assert.Equal(t, beforeMember.BorrowedCount, f.member(t, m.ID).BorrowedCount)
}

func TestReturn_CompletedTransactionIsFinal(t *testing.T) {
	// GIVEN: A loan that has been returned
	// WHEN: Returning again, and later rewriting it in the store
	// THEN: NoActiveLoan, ErrTransactionImmutable, and the record is unchanged

	f := newFixture(t, library.WithPolicy(library.Policy{
		LoanPeriodDays: 1,
		DailyFine:      money("0.50"),
		FineThreshold:  money("50.00"),
	}))
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "a@example.com", library.MemberStudent)
	tx, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)
	f.clock.AdvanceDays(3)
	receipt, err := f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	f.clock.AdvanceDays(5)
	_, err = f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
	assert.ErrorIs(t, err, library.ErrNoActiveLoan)

	tampered := receipt.Transaction
	tampered.Fine = decimal.Zero
	tampered.Status = library.TxActive
	err = f.store.UpdateTransaction(f.ctx, tampered)
	assert.ErrorIs(t, err, library.ErrTransactionImmutable)

	stored, err := f.lib.Ledger.Get(f.ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, library.TxCompleted, stored.Status)
	assert.Equal(t, receipt.Transaction.ReturnDate, stored.ReturnDate)
	assert.True(t, receipt.Fine.Equal(stored.Fine))
}

func TestReturn_AfterTitleReborrowedUsesOpenLoan(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	m := f.register(t, "a@example.com", library.MemberStudent)

	first, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)
	_, err = f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)
	second, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	receipt, err := f.lib.Ledger.Return(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, receipt.Transaction.ID)
	assert.Equal(t, second.ID, receipt.Transaction.ID)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestTransactionsFor_FiltersByMemberInLedgerOrder(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "isbn-1", 2)
	f.addBook(t, "isbn-2", 2)
	a := f.register(t, "a@example.com", library.MemberStudent)
	b := f.register(t, "b@example.com", library.MemberStudent)

	for _, step := range []struct {
		member library.MemberID
		isbn   string
	}{{a.ID, "isbn-1"}, {b.ID, "isbn-1"}, {a.ID, "isbn-2"}} {
		_, err := f.lib.Ledger.Borrow(f.ctx, step.member, step.isbn)
		require.NoError(t, err)
	}

	all, err := f.lib.Ledger.TransactionsFor(f.ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, library.TransactionID("TXN000003"), all[2].ID)

	mine, err := f.lib.Ledger.TransactionsFor(f.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "isbn-1", mine[0].ISBN)
	assert.Equal(t, "isbn-2", mine[1].ISBN)
}

func TestOverdue_ComputedAgainstToday(t *testing.T) {
	// GIVEN: Two loans, one returned
	// WHEN: Listing overdue on the due date and the day after
	// THEN: Nothing on the due date; only the open loan the day after

	f := newFixture(t)
	f.addBook(t, "isbn-1", 1)
	f.addBook(t, "isbn-2", 1)
	m := f.register(t, "a@example.com", library.MemberStudent)
	tx, err := f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-1")
	require.NoError(t, err)
	_, err = f.lib.Ledger.Borrow(f.ctx, m.ID, "isbn-2")
	require.NoError(t, err)
	_, err = f.lib.Ledger.Return(f.ctx, m.ID, "isbn-2")
	require.NoError(t, err)

	f.clock.Set(tx.DueDate.Time())
	overdue, err := f.lib.Ledger.Overdue(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.clock.AdvanceDays(1)
	overdue, err = f.lib.Ledger.Overdue(f.ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, tx.ID, overdue[0].ID)
}

func TestGet_UnknownTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.lib.Ledger.Get(f.ctx, "TXN000042")
	assert.True(t, errors.Is(err, library.ErrTransactionNotFound))
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestInvariants_HoldAcrossMixedActivity(t *testing.T) {
	// GIVEN: Several members and books
	// WHEN: A long sequence of borrows and returns, some rejected
	// THEN: Copy counts and borrowed counts stay within bounds throughout

	f := newFixture(t)
	isbns := []string{"isbn-1", "isbn-2", "isbn-3"}
	for i, isbn := range isbns {
		f.addBook(t, isbn, i+1)
	}
	members := []*library.Member{
		f.register(t, "s@example.com", library.MemberPublic),
		f.register(t, "t@example.com", library.MemberStudent),
		f.register(t, "u@example.com", library.MemberStaff),
	}

	check := func() {
		books, err := f.lib.Catalog.List(f.ctx)
		require.NoError(t, err)
		for _, b := range books {
			assert.GreaterOrEqual(t, b.AvailableCopies, 0)
			assert.LessOrEqual(t, b.AvailableCopies, b.TotalCopies)
			assert.Equal(t, b.AvailableCopies > 0, b.Status == library.BookAvailable, b.ISBN)
		}
		all, err := f.lib.Members.List(f.ctx)
		require.NoError(t, err)
		for _, m := range all {
			assert.GreaterOrEqual(t, m.BorrowedCount, 0)
			assert.LessOrEqual(t, m.BorrowedCount, m.Type.MaxBooks())
		}
	}

	for round := 0; round < 4; round++ {
		for _, m := range members {
			for _, isbn := range isbns {
				_, _ = f.lib.Ledger.Borrow(f.ctx, m.ID, isbn)
				check()
			}
		}
		f.clock.AdvanceDays(9)
		for _, m := range members {
			_, _ = f.lib.Ledger.Return(f.ctx, m.ID, isbns[round%len(isbns)])
			check()
		}
	}
}
