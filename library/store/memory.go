// Package store provides the in-memory library.Store implementation.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/warp/lending-engine/library"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (default backend)
// =============================================================================

// Memory keeps every collection in insertion-ordered slices with a key index.
type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	books     []library.Book
	bookIdx   map[string]int
	members   []library.Member
	memberIdx map[library.MemberID]int
	txs       []library.Transaction
	txIdx     map[library.TransactionID]int
	seqs      map[string]int64
}

var _ library.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func newState() state {
	return state{
		bookIdx:   make(map[string]int),
		memberIdx: make(map[library.MemberID]int),
		txIdx:     make(map[library.TransactionID]int),
		seqs:      make(map[string]int64),
	}
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) GetBook(_ context.Context, isbn string) (*library.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBook(isbn)
}

func (m *Memory) ListBooks(_ context.Context) ([]library.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]library.Book{}, m.books...), nil
}

func (m *Memory) InsertBook(_ context.Context, b library.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertBook(b)
}

func (m *Memory) UpdateBook(_ context.Context, b library.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBook(b)
}

func (m *Memory) DeleteBook(_ context.Context, isbn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteBook(isbn)
}

func (m *Memory) GetMember(_ context.Context, id library.MemberID) (*library.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMember(id)
}

func (m *Memory) FindMemberByEmail(_ context.Context, email string) (*library.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findMemberByEmail(email)
}

func (m *Memory) ListMembers(_ context.Context) ([]library.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]library.Member{}, m.members...), nil
}

func (m *Memory) InsertMember(_ context.Context, mem library.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertMember(mem)
}

func (m *Memory) UpdateMember(_ context.Context, mem library.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMember(mem)
}

func (m *Memory) AppendTransaction(_ context.Context, tx library.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTransaction(tx)
}

func (m *Memory) UpdateTransaction(_ context.Context, tx library.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTransaction(tx)
}

func (m *Memory) GetTransaction(_ context.Context, id library.TransactionID) (*library.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransaction(id)
}

func (m *Memory) ListTransactions(_ context.Context, f library.TransactionFilter) ([]library.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactions(f), nil
}

func (m *Memory) NextSequence(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSequence(name), nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx executes fn while holding the write lock.
// For memory store, rollback is a snapshot restore, on error or panic.
func (m *Memory) WithTx(ctx context.Context, fn func(library.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	defer func() {
		if r := recover(); r != nil {
			m.state = snapshot
			panic(r)
		}
	}()

	if err := fn(&view{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *state) clone() state {
	c := state{
		books:     append([]library.Book(nil), s.books...),
		bookIdx:   make(map[string]int, len(s.bookIdx)),
		members:   append([]library.Member(nil), s.members...),
		memberIdx: make(map[library.MemberID]int, len(s.memberIdx)),
		txs:       append([]library.Transaction(nil), s.txs...),
		txIdx:     make(map[library.TransactionID]int, len(s.txIdx)),
		seqs:      make(map[string]int64, len(s.seqs)),
	}
	for k, v := range s.bookIdx {
		c.bookIdx[k] = v
	}
	for k, v := range s.memberIdx {
		c.memberIdx[k] = v
	}
	for k, v := range s.txIdx {
		c.txIdx[k] = v
	}
	for k, v := range s.seqs {
		c.seqs[k] = v
	}
	return c
}

// view is the Store handed to WithTx callbacks. The lock is already held.
type view struct {
	s *state
}

func (v *view) GetBook(_ context.Context, isbn string) (*library.Book, error) {
	return v.s.getBook(isbn)
}
func (v *view) ListBooks(_ context.Context) ([]library.Book, error) {
	return append([]library.Book{}, v.s.books...), nil
}
func (v *view) InsertBook(_ context.Context, b library.Book) error { return v.s.insertBook(b) }
func (v *view) UpdateBook(_ context.Context, b library.Book) error { return v.s.updateBook(b) }
func (v *view) DeleteBook(_ context.Context, isbn string) error    { return v.s.deleteBook(isbn) }

func (v *view) GetMember(_ context.Context, id library.MemberID) (*library.Member, error) {
	return v.s.getMember(id)
}
func (v *view) FindMemberByEmail(_ context.Context, email string) (*library.Member, error) {
	return v.s.findMemberByEmail(email)
}
func (v *view) ListMembers(_ context.Context) ([]library.Member, error) {
	return append([]library.Member{}, v.s.members...), nil
}
func (v *view) InsertMember(_ context.Context, m library.Member) error { return v.s.insertMember(m) }
func (v *view) UpdateMember(_ context.Context, m library.Member) error { return v.s.updateMember(m) }

func (v *view) AppendTransaction(_ context.Context, tx library.Transaction) error {
	return v.s.appendTransaction(tx)
}
func (v *view) UpdateTransaction(_ context.Context, tx library.Transaction) error {
	return v.s.updateTransaction(tx)
}
func (v *view) GetTransaction(_ context.Context, id library.TransactionID) (*library.Transaction, error) {
	return v.s.getTransaction(id)
}
func (v *view) ListTransactions(_ context.Context, f library.TransactionFilter) ([]library.Transaction, error) {
	return v.s.listTransactions(f), nil
}

func (v *view) NextSequence(_ context.Context, name string) (int64, error) {
	return v.s.nextSequence(name), nil
}

// WithTx on a view joins the enclosing unit of work.
func (v *view) WithTx(_ context.Context, fn func(library.Store) error) error {
	return fn(v)
}

// =============================================================================
// STATE (caller holds the lock)
// =============================================================================

func (s *state) getBook(isbn string) (*library.Book, error) {
	i, ok := s.bookIdx[isbn]
	if !ok {
		return nil, library.ErrBookNotFound
	}
	b := s.books[i]
	return &b, nil
}

func (s *state) insertBook(b library.Book) error {
	if _, ok := s.bookIdx[b.ISBN]; ok {
		return library.ErrDuplicateISBN
	}
	s.bookIdx[b.ISBN] = len(s.books)
	s.books = append(s.books, b)
	return nil
}

func (s *state) updateBook(b library.Book) error {
	i, ok := s.bookIdx[b.ISBN]
	if !ok {
		return library.ErrBookNotFound
	}
	s.books[i] = b
	return nil
}

func (s *state) deleteBook(isbn string) error {
	i, ok := s.bookIdx[isbn]
	if !ok {
		return library.ErrBookNotFound
	}
	books := make([]library.Book, 0, len(s.books)-1)
	books = append(books, s.books[:i]...)
	books = append(books, s.books[i+1:]...)
	s.books = books
	delete(s.bookIdx, isbn)
	for j := i; j < len(s.books); j++ {
		s.bookIdx[s.books[j].ISBN] = j
	}
	return nil
}

func (s *state) getMember(id library.MemberID) (*library.Member, error) {
	i, ok := s.memberIdx[id]
	if !ok {
		return nil, library.ErrMemberNotFound
	}
	m := s.members[i]
	return &m, nil
}

func (s *state) findMemberByEmail(email string) (*library.Member, error) {
	for _, m := range s.members {
		if strings.EqualFold(m.Email, email) {
			found := m
			return &found, nil
		}
	}
	return nil, library.ErrMemberNotFound
}

func (s *state) insertMember(m library.Member) error {
	if _, ok := s.memberIdx[m.ID]; ok {
		return library.ErrDuplicateKey
	}
	if _, err := s.findMemberByEmail(m.Email); err == nil {
		return library.ErrDuplicateEmail
	}
	s.memberIdx[m.ID] = len(s.members)
	s.members = append(s.members, m)
	return nil
}

func (s *state) updateMember(m library.Member) error {
	i, ok := s.memberIdx[m.ID]
	if !ok {
		return library.ErrMemberNotFound
	}
	if other, err := s.findMemberByEmail(m.Email); err == nil && other.ID != m.ID {
		return library.ErrDuplicateEmail
	}
	s.members[i] = m
	return nil
}

func (s *state) appendTransaction(tx library.Transaction) error {
	if _, ok := s.txIdx[tx.ID]; ok {
		return library.ErrDuplicateKey
	}
	s.txIdx[tx.ID] = len(s.txs)
	s.txs = append(s.txs, tx)
	return nil
}

func (s *state) updateTransaction(tx library.Transaction) error {
	i, ok := s.txIdx[tx.ID]
	if !ok {
		return library.ErrTransactionNotFound
	}
	if s.txs[i].Status.IsTerminal() {
		return library.ErrTransactionImmutable
	}
	s.txs[i] = tx
	return nil
}

func (s *state) getTransaction(id library.TransactionID) (*library.Transaction, error) {
	i, ok := s.txIdx[id]
	if !ok {
		return nil, library.ErrTransactionNotFound
	}
	tx := s.txs[i]
	return &tx, nil
}

func (s *state) listTransactions(f library.TransactionFilter) []library.Transaction {
	result := []library.Transaction{}
	for _, tx := range s.txs {
		if f.Match(tx) {
			result = append(result, tx)
		}
	}
	return result
}

func (s *state) nextSequence(name string) int64 {
	s.seqs[name]++
	return s.seqs[name]
}
