package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/library"
	"github.com/warp/lending-engine/library/store"
)

func TestMemory_WithTxRollsBackEveryWrite(t *testing.T) {
	// GIVEN: A store with one book
	// WHEN: A unit of work writes to every collection and then fails
	// THEN: None of the writes are visible and the sequence is unchanged

	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.InsertBook(ctx, library.Book{ISBN: "isbn-1", TotalCopies: 1, AvailableCopies: 1}))
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx library.Store) error {
		b, err := tx.GetBook(ctx, "isbn-1")
		require.NoError(t, err)
		b.AvailableCopies = 0
		require.NoError(t, tx.UpdateBook(ctx, *b))
		require.NoError(t, tx.InsertMember(ctx, library.Member{ID: "MEM000001", Email: "a@b.c"}))
		require.NoError(t, tx.AppendTransaction(ctx, library.Transaction{ID: "TXN000001"}))
		_, err = tx.NextSequence(ctx, library.SequenceTransactions)
		require.NoError(t, err)
		require.NoError(t, tx.DeleteBook(ctx, "isbn-1"))
		return boom
	})

	require.ErrorIs(t, err, boom)
	b, err := s.GetBook(ctx, "isbn-1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)
	members, _ := s.ListMembers(ctx)
	assert.Empty(t, members)
	txs, _ := s.ListTransactions(ctx, library.TransactionFilter{})
	assert.Empty(t, txs)
	seq, _ := s.NextSequence(ctx, library.SequenceTransactions)
	assert.Equal(t, int64(1), seq)
}

func TestMemory_NestedWithTxJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	err := s.WithTx(ctx, func(outer library.Store) error {
		require.NoError(t, outer.WithTx(ctx, func(inner library.Store) error {
			return inner.InsertBook(ctx, library.Book{ISBN: "isbn-1"})
		}))
		return errors.New("outer fails")
	})

	require.Error(t, err)
	_, err = s.GetBook(ctx, "isbn-1")
	assert.ErrorIs(t, err, library.ErrBookNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.InsertBook(ctx, library.Book{ISBN: "isbn-1", Title: "Original"}))

	b, err := s.GetBook(ctx, "isbn-1")
	require.NoError(t, err)
	b.Title = "Changed"

	again, err := s.GetBook(ctx, "isbn-1")
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Title)
}

func TestMemory_Uniqueness(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.InsertBook(ctx, library.Book{ISBN: "isbn-1"}))
	require.NoError(t, s.InsertMember(ctx, library.Member{ID: "MEM000001", Email: "A@B.C"}))

	assert.ErrorIs(t, s.InsertBook(ctx, library.Book{ISBN: "isbn-1"}), library.ErrDuplicateISBN)
	assert.ErrorIs(t, s.InsertMember(ctx, library.Member{ID: "MEM000002", Email: "a@b.c"}), library.ErrDuplicateEmail)
	assert.ErrorIs(t, s.InsertMember(ctx, library.Member{ID: "MEM000001", Email: "x@y.z"}), library.ErrDuplicateKey)

	m, err := s.FindMemberByEmail(ctx, "a@B.c")
	require.NoError(t, err)
	assert.Equal(t, library.MemberID("MEM000001"), m.ID)

	require.NoError(t, s.InsertMember(ctx, library.Member{ID: "MEM000003", Email: "émile@x.org"}))
	assert.ErrorIs(t, s.InsertMember(ctx, library.Member{ID: "MEM000004", Email: "ÉMILE@x.org"}), library.ErrDuplicateEmail)
	assert.ErrorIs(t, s.UpdateMember(ctx, library.Member{ID: "MEM000003", Email: "a@b.c"}), library.ErrDuplicateEmail)
	assert.NoError(t, s.UpdateMember(ctx, library.Member{ID: "MEM000003", Email: "Émile@X.org"}))
}

func TestMemory_WithTxRollsBackOnPanic(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: A unit of work inserts a book and then panics
	// THEN: The panic propagates and the insert is undone

	ctx := context.Background()
	s := store.NewMemory()

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.WithTx(ctx, func(tx library.Store) error {
			require.NoError(t, tx.InsertBook(ctx, library.Book{ISBN: "isbn-1"}))
			panic("boom")
		})
	})

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.NoError(t, s.InsertBook(ctx, library.Book{ISBN: "isbn-1"}))
}

func TestMemory_DeleteKeepsOrderAndIndex(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	for _, isbn := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.InsertBook(ctx, library.Book{ISBN: isbn}))
	}

	require.NoError(t, s.DeleteBook(ctx, "b"))

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	var isbns []string
	for _, b := range books {
		isbns = append(isbns, b.ISBN)
	}
	assert.Equal(t, []string{"a", "c", "d"}, isbns)

	d, err := s.GetBook(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "d", d.ISBN)
	assert.ErrorIs(t, s.DeleteBook(ctx, "b"), library.ErrBookNotFound)
}

func TestMemory_TerminalTransactionsAreImmutable(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tx := library.Transaction{ID: "TXN000001", Type: library.TxBorrow, Status: library.TxActive}
	require.NoError(t, s.AppendTransaction(ctx, tx))

	tx.Status = library.TxCompleted
	require.NoError(t, s.UpdateTransaction(ctx, tx))

	tx.Status = library.TxActive
	assert.ErrorIs(t, s.UpdateTransaction(ctx, tx), library.ErrTransactionImmutable)
	assert.ErrorIs(t, s.UpdateTransaction(ctx, library.Transaction{ID: "TXN000404"}), library.ErrTransactionNotFound)
}

func TestMemory_SequencesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, library.SequenceMembers)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := s.NextSequence(ctx, library.SequenceTransactions)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemory_ListTransactionsFilter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	for _, tx := range []library.Transaction{
		{ID: "TXN000001", MemberID: "MEM000001", ISBN: "a", Type: library.TxBorrow, Status: library.TxActive},
		{ID: "TXN000002", MemberID: "MEM000002", ISBN: "a", Type: library.TxBorrow, Status: library.TxCompleted},
		{ID: "TXN000003", MemberID: "MEM000001", ISBN: "b", Type: library.TxBorrow, Status: library.TxActive},
	} {
		require.NoError(t, s.AppendTransaction(ctx, tx))
	}

	got, err := s.ListTransactions(ctx, library.TransactionFilter{MemberID: "MEM000001"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, library.TransactionID("TXN000003"), got[1].ID)

	got, err = s.ListTransactions(ctx, library.TransactionFilter{ISBN: "a", Status: library.TxCompleted})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, library.MemberID("MEM000002"), got[0].MemberID)

	got, err = s.ListTransactions(ctx, library.TransactionFilter{ISBN: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
