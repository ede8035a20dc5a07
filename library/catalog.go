/*
catalog.go - Book records and per-copy availability

PURPOSE:
  Catalog owns the book records. It resolves lookups, keeps
  0 <= AvailableCopies <= TotalCopies, and flips the status between
  Available and Borrowed as copies leave and come back.

CONTRACT WITH THE LEDGER:
  MarkBorrowed and MarkReturned are silent no-ops when their precondition
  fails. The ledger checks IsAvailable before it lends; Catalog never
  reports that as an error.

DELETION:
  Delete refuses while any Borrow transaction for the ISBN is still active
  (ActiveLoansError), so the ledger never references a missing book through
  an open loan.

SEE ALSO:
  - ledger.go: the only caller of MarkBorrowed/MarkReturned
*/
package library

import (
	"context"
	"fmt"
	"strings"
)

type Catalog struct {
	*env
	store Store
}

// in binds the catalog to a store view inside a unit of work.
func (c *Catalog) in(s Store) *Catalog { return &Catalog{env: c.env, store: s} }

// BookEdit carries the optional field-level edits. Nil means unchanged.
type BookEdit struct {
	Title     *string
	Author    *string
	Publisher *string
}

// Insert adds b to the catalog. Every copy starts on the shelf.
func (c *Catalog) Insert(ctx context.Context, b Book) (*Book, error) {
	b.ISBN = strings.TrimSpace(b.ISBN)
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	if err := validateBook(&b); err != nil {
		return nil, err
	}

	now := c.now()
	b.AvailableCopies = b.TotalCopies
	b.Status = BookAvailable
	b.AddedAt = now
	b.UpdatedAt = now

	if err := c.store.InsertBook(ctx, b); err != nil {
		return nil, fmt.Errorf("insert book %s: %w", b.ISBN, err)
	}
	c.logger.Info("book added", "isbn", b.ISBN, "title", b.Title, "copies", b.TotalCopies)
	return &b, nil
}

func validateBook(b *Book) error {
	switch {
	case b.ISBN == "":
		return &FieldError{Field: "isbn", Message: "is required"}
	case b.Title == "":
		return &FieldError{Field: "title", Message: "is required"}
	case b.Author == "":
		return &FieldError{Field: "author", Message: "is required"}
	case b.TotalCopies < 0:
		return &FieldError{Field: "total_copies", Message: "must not be negative"}
	case b.Year < 0:
		return &FieldError{Field: "year", Message: "must not be negative"}
	}
	if b.TotalCopies == 0 {
		b.TotalCopies = 1
	}
	if b.Category == "" {
		b.Category = CategoryOther
	}
	if !b.Category.Valid() {
		return &InvalidSelectionError{Field: "category", Value: string(b.Category)}
	}
	return nil
}

// FindByISBN is an exact-match lookup.
func (c *Catalog) FindByISBN(ctx context.Context, isbn string) (*Book, error) {
	b, err := c.store.GetBook(ctx, isbn)
	if err != nil {
		return nil, fmt.Errorf("find book %s: %w", isbn, err)
	}
	return b, nil
}

func (c *Catalog) List(ctx context.Context) ([]Book, error) {
	return c.store.ListBooks(ctx)
}

// Search matches term case-insensitively against title, author and ISBN.
// Results keep catalog insertion order.
func (c *Catalog) Search(ctx context.Context, term string) ([]Book, error) {
	books, err := c.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	result := []Book{}
	for _, b := range books {
		if b.matches(needle) {
			result = append(result, b)
		}
	}
	return result, nil
}

// IsAvailable reports whether a copy of b can be lent.
func (c *Catalog) IsAvailable(b Book) bool { return b.IsAvailable() }

// MarkBorrowed takes one copy of isbn off the shelf.
func (c *Catalog) MarkBorrowed(ctx context.Context, isbn string) error {
	_, err := c.mutate(ctx, isbn, func(b *Book) error {
		b.borrowCopy(c.now())
		return nil
	})
	return err
}

// MarkReturned puts one copy of isbn back on the shelf.
func (c *Catalog) MarkReturned(ctx context.Context, isbn string) error {
	_, err := c.mutate(ctx, isbn, func(b *Book) error {
		b.returnCopy(c.now())
		return nil
	})
	return err
}

// Edit applies field-level changes that never touch lending state.
func (c *Catalog) Edit(ctx context.Context, isbn string, e BookEdit) (*Book, error) {
	return c.mutate(ctx, isbn, func(b *Book) error {
		if e.Title != nil {
			if strings.TrimSpace(*e.Title) == "" {
				return &FieldError{Field: "title", Message: "must not be empty"}
			}
			b.Title = strings.TrimSpace(*e.Title)
		}
		if e.Author != nil {
			if strings.TrimSpace(*e.Author) == "" {
				return &FieldError{Field: "author", Message: "must not be empty"}
			}
			b.Author = strings.TrimSpace(*e.Author)
		}
		if e.Publisher != nil {
			b.Publisher = strings.TrimSpace(*e.Publisher)
		}
		b.UpdatedAt = c.now()
		return nil
	})
}

// SetStatus applies an administrative status. Borrowed is derived from
// copy counts and cannot be set; Available restores the derived status.
func (c *Catalog) SetStatus(ctx context.Context, isbn string, status BookStatus) (*Book, error) {
	if !status.Valid() {
		return nil, &InvalidSelectionError{Field: "book_status", Value: string(status)}
	}
	if status == BookBorrowed {
		return nil, &FieldError{Field: "status", Message: "borrowed is set by lending only"}
	}
	b, err := c.mutate(ctx, isbn, func(b *Book) error {
		if status == BookAvailable {
			b.Status = b.circulationStatus()
		} else {
			b.Status = status
		}
		b.UpdatedAt = c.now()
		return nil
	})
	if err == nil {
		c.logger.Info("book status changed", "isbn", isbn, "status", b.Status)
	}
	return b, err
}

// Delete removes isbn unless an active loan still references it.
func (c *Catalog) Delete(ctx context.Context, isbn string) error {
	err := c.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetBook(ctx, isbn); err != nil {
			return err
		}
		loans, err := s.ListTransactions(ctx, TransactionFilter{ISBN: isbn, Type: TxBorrow})
		if err != nil {
			return err
		}
		var active []TransactionID
		for _, tx := range loans {
			if tx.IsActiveLoan() {
				active = append(active, tx.ID)
			}
		}
		if len(active) > 0 {
			return &ActiveLoansError{ISBN: isbn, Loans: active}
		}
		return s.DeleteBook(ctx, isbn)
	})
	if err != nil {
		return fmt.Errorf("delete book %s: %w", isbn, err)
	}
	c.logger.Info("book deleted", "isbn", isbn)
	return nil
}

// mutate loads, changes and saves one book in a single unit of work.
func (c *Catalog) mutate(ctx context.Context, isbn string, fn func(*Book) error) (*Book, error) {
	var out *Book
	err := c.store.WithTx(ctx, func(s Store) error {
		b, err := s.GetBook(ctx, isbn)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		out = b
		return s.UpdateBook(ctx, *b)
	})
	if err != nil {
		return nil, fmt.Errorf("update book %s: %w", isbn, err)
	}
	return out, nil
}
