/*
Package sqlite provides a SQLite-backed implementation of library.Store.

PURPOSE:
  Runs the lending engine on mattn/go-sqlite3 with the same contract as the
  in-memory store. The default DSN is ":memory:", so state still lives and
  dies with the process; pass a file path to keep it between runs.

KEY TABLES:
  books:        catalog records, seq gives insertion order
  members:      member records, email_key (lower-cased email) is unique
  transactions: the ledger, seq gives insertion order
  sequences:    MEM/TXN counters

IMMUTABILITY:
  UpdateTransaction reads the stored status first and refuses to rewrite a
  record that is already Returned, Completed or Cancelled. Transactions are
  never deleted.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole SQL transaction, which is the store-wide ordering boundary the
  engine relies on. The pool is capped at one connection so ":memory:" is a
  single database.

USAGE:
  store, err := sqlite.New(":memory:")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  lib, err := library.New(store)

SEE ALSO:
  - library/store.go: interface definitions
  - library/store/memory.go: in-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/library"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Store implements library.Store using SQLite.
type Store struct {
	db *sql.DB
	q  queries
	mu sync.RWMutex
}

var _ library.Store = (*Store)(nil)

// New opens (and migrates) the database at dsn. An empty dsn means
// MemoryDSN.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	source := dsn
	if dsn != MemoryDSN {
		source += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		isbn TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		category TEXT NOT NULL,
		publisher TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		total_copies INTEGER NOT NULL CHECK (total_copies >= 0),
		available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies),
		status TEXT NOT NULL,
		added_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		email_key TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		member_type TEXT NOT NULL,
		status TEXT NOT NULL,
		membership_start TEXT NOT NULL,
		membership_end TEXT NOT NULL,
		fines_owed TEXT NOT NULL,
		borrowed_count INTEGER NOT NULL CHECK (borrowed_count >= 0)
	);

	-- NOCASE only folds ASCII, so uniqueness is on the Unicode-lowered key
	CREATE UNIQUE INDEX IF NOT EXISTS idx_members_email_key
		ON members(email_key);

	-- Ledger: appended by borrow, completed once by return, never deleted
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		member_id TEXT NOT NULL,
		isbn TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		due_date TEXT NOT NULL DEFAULT '',
		return_date TEXT NOT NULL DEFAULT '',
		fine TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	);

	-- Hot path: open loan lookup for a (member, book) pair
	CREATE INDEX IF NOT EXISTS idx_transactions_member_isbn
		ON transactions(member_id, isbn, tx_type);
	CREATE INDEX IF NOT EXISTS idx_transactions_isbn
		ON transactions(isbn);

	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BOOK STORE
// =============================================================================

func (s *Store) GetBook(ctx context.Context, isbn string) (*library.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getBook(ctx, isbn)
}

func (s *Store) ListBooks(ctx context.Context) ([]library.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listBooks(ctx)
}

func (s *Store) InsertBook(ctx context.Context, b library.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.insertBook(ctx, b)
}

func (s *Store) UpdateBook(ctx context.Context, b library.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateBook(ctx, b)
}

func (s *Store) DeleteBook(ctx context.Context, isbn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteBook(ctx, isbn)
}

// =============================================================================
// MEMBER STORE
// =============================================================================

func (s *Store) GetMember(ctx context.Context, id library.MemberID) (*library.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getMember(ctx, id)
}

func (s *Store) FindMemberByEmail(ctx context.Context, email string) (*library.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.findMemberByEmail(ctx, email)
}

func (s *Store) ListMembers(ctx context.Context) ([]library.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listMembers(ctx)
}

func (s *Store) InsertMember(ctx context.Context, m library.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.insertMember(ctx, m)
}

func (s *Store) UpdateMember(ctx context.Context, m library.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateMember(ctx, m)
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx library.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.appendTransaction(ctx, tx)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx library.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateTransaction(ctx, tx)
}

func (s *Store) GetTransaction(ctx context.Context, id library.TransactionID) (*library.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, f library.TransactionFilter) ([]library.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listTransactions(ctx, f)
}

func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.nextSequence(ctx, name)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store library.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every call on the open *sql.Tx. The parent lock is held.
type txStore struct {
	q queries
}

func (ts *txStore) GetBook(ctx context.Context, isbn string) (*library.Book, error) {
	return ts.q.getBook(ctx, isbn)
}
func (ts *txStore) ListBooks(ctx context.Context) ([]library.Book, error) {
	return ts.q.listBooks(ctx)
}
func (ts *txStore) InsertBook(ctx context.Context, b library.Book) error {
	return ts.q.insertBook(ctx, b)
}
func (ts *txStore) UpdateBook(ctx context.Context, b library.Book) error {
	return ts.q.updateBook(ctx, b)
}
func (ts *txStore) DeleteBook(ctx context.Context, isbn string) error {
	return ts.q.deleteBook(ctx, isbn)
}

func (ts *txStore) GetMember(ctx context.Context, id library.MemberID) (*library.Member, error) {
	return ts.q.getMember(ctx, id)
}
func (ts *txStore) FindMemberByEmail(ctx context.Context, email string) (*library.Member, error) {
	return ts.q.findMemberByEmail(ctx, email)
}
func (ts *txStore) ListMembers(ctx context.Context) ([]library.Member, error) {
	return ts.q.listMembers(ctx)
}
func (ts *txStore) InsertMember(ctx context.Context, m library.Member) error {
	return ts.q.insertMember(ctx, m)
}
func (ts *txStore) UpdateMember(ctx context.Context, m library.Member) error {
	return ts.q.updateMember(ctx, m)
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx library.Transaction) error {
	return ts.q.appendTransaction(ctx, tx)
}
func (ts *txStore) UpdateTransaction(ctx context.Context, tx library.Transaction) error {
	return ts.q.updateTransaction(ctx, tx)
}
func (ts *txStore) GetTransaction(ctx context.Context, id library.TransactionID) (*library.Transaction, error) {
	return ts.q.getTransaction(ctx, id)
}
func (ts *txStore) ListTransactions(ctx context.Context, f library.TransactionFilter) ([]library.Transaction, error) {
	return ts.q.listTransactions(ctx, f)
}

func (ts *txStore) NextSequence(ctx context.Context, name string) (int64, error) {
	return ts.q.nextSequence(ctx, name)
}

// WithTx joins the open transaction.
func (ts *txStore) WithTx(_ context.Context, fn func(store library.Store) error) error {
	return fn(ts)
}

// =============================================================================
// QUERIES (shared by Store and txStore)
// =============================================================================

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db runner
}

type scanner interface {
	Scan(dest ...any) error
}

const bookColumns = `isbn, title, author, category, publisher, year, description,
	total_copies, available_copies, status, added_at, updated_at`

func (q queries) getBook(ctx context.Context, isbn string) (*library.Book, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = ?`, isbn)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, library.ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (q queries) listBooks(ctx context.Context) ([]library.Book, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	books := []library.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (q queries) insertBook(ctx context.Context, b library.Book) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ISBN, b.Title, b.Author, b.Category, b.Publisher, b.Year, b.Description,
		b.TotalCopies, b.AvailableCopies, b.Status,
		formatTime(b.AddedAt), formatTime(b.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return library.ErrDuplicateISBN
	}
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}
	return nil
}

func (q queries) updateBook(ctx context.Context, b library.Book) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE books SET title = ?, author = ?, category = ?, publisher = ?, year = ?,
			description = ?, total_copies = ?, available_copies = ?, status = ?, updated_at = ?
		WHERE isbn = ?`,
		b.Title, b.Author, b.Category, b.Publisher, b.Year,
		b.Description, b.TotalCopies, b.AvailableCopies, b.Status, formatTime(b.UpdatedAt),
		b.ISBN,
	)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	return requireRow(res, library.ErrBookNotFound)
}

func (q queries) deleteBook(ctx context.Context, isbn string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM books WHERE isbn = ?`, isbn)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return requireRow(res, library.ErrBookNotFound)
}

func scanBook(row scanner) (library.Book, error) {
	var (
		b                  library.Book
		addedAt, updatedAt string
	)
	err := row.Scan(
		&b.ISBN, &b.Title, &b.Author, &b.Category, &b.Publisher, &b.Year, &b.Description,
		&b.TotalCopies, &b.AvailableCopies, &b.Status, &addedAt, &updatedAt,
	)
	if err != nil {
		return b, err
	}
	b.AddedAt = parseTime(addedAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

const memberColumns = `id, first_name, last_name, email, phone, address, member_type, status,
	membership_start, membership_end, fines_owed, borrowed_count`

func (q queries) getMember(ctx context.Context, id library.MemberID) (*library.Member, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	return oneMember(row)
}

func (q queries) findMemberByEmail(ctx context.Context, email string) (*library.Member, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email_key = ?`, emailKey(email))
	return oneMember(row)
}

func oneMember(row *sql.Row) (*library.Member, error) {
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, library.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (q queries) listMembers(ctx context.Context) ([]library.Member, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := []library.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (q queries) insertMember(ctx context.Context, m library.Member) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO members (`+memberColumns+`, email_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FirstName, m.LastName, m.Email, m.Phone, m.Address, m.Type, m.Status,
		m.MembershipStart.String(), m.MembershipEnd.String(), m.FinesOwed.String(), m.BorrowedCount,
		emailKey(m.Email),
	)
	if isUniqueConstraintError(err) {
		if strings.Contains(err.Error(), "email") {
			return library.ErrDuplicateEmail
		}
		return library.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (q queries) updateMember(ctx context.Context, m library.Member) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE members SET first_name = ?, last_name = ?, email = ?, email_key = ?, phone = ?,
			address = ?, member_type = ?, status = ?, membership_start = ?, membership_end = ?,
			fines_owed = ?, borrowed_count = ?
		WHERE id = ?`,
		m.FirstName, m.LastName, m.Email, emailKey(m.Email), m.Phone, m.Address,
		m.Type, m.Status, m.MembershipStart.String(), m.MembershipEnd.String(),
		m.FinesOwed.String(), m.BorrowedCount,
		m.ID,
	)
	if isUniqueConstraintError(err) {
		return library.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return requireRow(res, library.ErrMemberNotFound)
}

func scanMember(row scanner) (library.Member, error) {
	var (
		m          library.Member
		start, end string
		fines      string
	)
	err := row.Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.Address, &m.Type, &m.Status,
		&start, &end, &fines, &m.BorrowedCount,
	)
	if err != nil {
		return m, err
	}
	if m.MembershipStart, err = parseDate(start); err != nil {
		return m, err
	}
	if m.MembershipEnd, err = parseDate(end); err != nil {
		return m, err
	}
	if m.FinesOwed, err = decimal.NewFromString(fines); err != nil {
		return m, fmt.Errorf("member %s fines: %w", m.ID, err)
	}
	return m, nil
}

const transactionColumns = `id, member_id, isbn, tx_type, created_at, due_date, return_date,
	fine, status, notes`

func (q queries) appendTransaction(ctx context.Context, tx library.Transaction) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.MemberID, tx.ISBN, tx.Type, formatTime(tx.CreatedAt),
		tx.DueDate.String(), tx.ReturnDate.String(), tx.Fine.String(), tx.Status, tx.Notes,
	)
	if isUniqueConstraintError(err) {
		return library.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (q queries) updateTransaction(ctx context.Context, tx library.Transaction) error {
	var status library.TransactionStatus
	err := q.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = ?`, tx.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return library.ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read transaction: %w", err)
	}
	if status.IsTerminal() {
		return library.ErrTransactionImmutable
	}

	_, err = q.db.ExecContext(ctx, `
		UPDATE transactions SET due_date = ?, return_date = ?, fine = ?, status = ?, notes = ?
		WHERE id = ?`,
		tx.DueDate.String(), tx.ReturnDate.String(), tx.Fine.String(), tx.Status, tx.Notes,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (q queries) getTransaction(ctx context.Context, id library.TransactionID) (*library.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, library.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (q queries) listTransactions(ctx context.Context, f library.TransactionFilter) ([]library.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.MemberID != "" {
		where, args = append(where, "member_id = ?"), append(args, f.MemberID)
	}
	if f.ISBN != "" {
		where, args = append(where, "isbn = ?"), append(args, f.ISBN)
	}
	if f.Type != "" {
		where, args = append(where, "tx_type = ?"), append(args, f.Type)
	}
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, f.Status)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []library.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row scanner) (library.Transaction, error) {
	var (
		tx                  library.Transaction
		createdAt           string
		dueDate, returnDate string
		fine                string
	)
	err := row.Scan(
		&tx.ID, &tx.MemberID, &tx.ISBN, &tx.Type, &createdAt,
		&dueDate, &returnDate, &fine, &tx.Status, &tx.Notes,
	)
	if err != nil {
		return tx, err
	}
	tx.CreatedAt = parseTime(createdAt)
	if tx.DueDate, err = parseDate(dueDate); err != nil {
		return tx, err
	}
	if tx.ReturnDate, err = parseDate(returnDate); err != nil {
		return tx, err
	}
	if tx.Fine, err = decimal.NewFromString(fine); err != nil {
		return tx, fmt.Errorf("transaction %s fine: %w", tx.ID, err)
	}
	return tx, nil
}

func (q queries) nextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return value, nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// emailKey is the form emails are compared in.
func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseDate maps the empty column back to the zero Date.
func parseDate(s string) (library.Date, error) {
	if s == "" {
		return library.Date{}, nil
	}
	return library.ParseDate(s)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
