/*
store.go - Persistence contract for the lending engine

PURPOSE:
  The Store is the explicit application state: books, members, the
  transaction ledger and the monotonic ID sequences. Catalog, Membership and
  LedgerEngine receive it through New() instead of reaching for globals.

KEY INTERFACES:
  BookStore:        catalog records keyed by ISBN
  MemberStore:      member records keyed by MemberID
  TransactionStore: the ledger (append + one completion per record)
  SequenceStore:    MEM/TXN counters, monotonic for the store's lifetime
  Store:            all of the above plus WithTx

ORDERING:
  Every List* method returns records in insertion order.

UNIT OF WORK:
  WithTx runs fn against a Store view under a single store-wide lock. If fn
  returns an error every write made through the view is rolled back. Calling
  WithTx on the view runs the nested fn inline, so components can always
  wrap their own writes without caring whether a caller already did.

IMPLEMENTATIONS:
  - library/store/memory.go: in-memory (default)
  - store/sqlite/sqlite.go:  SQLite, ":memory:" unless given a path

SEE ALSO:
  - ledger.go: Borrow/Return are the main WithTx users
*/
package library

import "context"

type BookStore interface {
	// GetBook returns ErrBookNotFound when the ISBN is unknown.
	GetBook(ctx context.Context, isbn string) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	// InsertBook returns ErrDuplicateISBN on collision.
	InsertBook(ctx context.Context, b Book) error
	UpdateBook(ctx context.Context, b Book) error
	DeleteBook(ctx context.Context, isbn string) error
}

type MemberStore interface {
	GetMember(ctx context.Context, id MemberID) (*Member, error)
	// FindMemberByEmail matches case-insensitively; ErrMemberNotFound on miss.
	FindMemberByEmail(ctx context.Context, email string) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	// InsertMember returns ErrDuplicateEmail when the email is taken.
	InsertMember(ctx context.Context, m Member) error
	UpdateMember(ctx context.Context, m Member) error
}

// TransactionFilter narrows ListTransactions. Zero fields match anything.
type TransactionFilter struct {
	MemberID MemberID
	ISBN     string
	Type     TransactionType
	Status   TransactionStatus
}

// Match reports whether tx passes the filter.
func (f TransactionFilter) Match(tx Transaction) bool {
	return (f.MemberID == "" || tx.MemberID == f.MemberID) &&
		(f.ISBN == "" || tx.ISBN == f.ISBN) &&
		(f.Type == "" || tx.Type == f.Type) &&
		(f.Status == "" || tx.Status == f.Status)
}

type TransactionStore interface {
	AppendTransaction(ctx context.Context, tx Transaction) error
	// UpdateTransaction returns ErrTransactionImmutable when the stored
	// record is already terminal.
	UpdateTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
}

type SequenceStore interface {
	// NextSequence returns 1, 2, 3... per name.
	NextSequence(ctx context.Context, name string) (int64, error)
}

type Store interface {
	BookStore
	MemberStore
	TransactionStore
	SequenceStore

	// WithTx executes fn within a unit of work.
	// If fn returns error, every write is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
