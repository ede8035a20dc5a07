package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Membership owns member records: registration, eligibility, borrowed-book
// counts and fines.
type Membership struct {
	*env
	store Store
}

func (m *Membership) in(s Store) *Membership { return &Membership{env: m.env, store: s} }

// Registration is the input to Register.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	Type      MemberType
}

// ContactEdit carries optional contact changes. Nil means unchanged.
type ContactEdit struct {
	Phone   *string
	Address *string
}

// Eligibility is the outcome of CanBorrow with its reason.
type Eligibility struct {
	Allowed bool
	Reason  DenialReason
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (m *Membership) FindByID(ctx context.Context, id MemberID) (*Member, error) {
	mem, err := m.store.GetMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find member %s: %w", id, err)
	}
	return mem, nil
}

func (m *Membership) List(ctx context.Context) ([]Member, error) {
	return m.store.ListMembers(ctx)
}

// Search matches term case-insensitively against full name, email and ID.
func (m *Membership) Search(ctx context.Context, term string) ([]Member, error) {
	members, err := m.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	result := []Member{}
	for _, mem := range members {
		if mem.matches(needle) {
			result = append(result, mem)
		}
	}
	return result, nil
}

// CanBorrow reports whether mem may take another book today.
func (m *Membership) CanBorrow(mem Member) bool {
	return mem.CanBorrow(m.today(), m.policy)
}

// Eligibility is CanBorrow with the first failing reason.
func (m *Membership) Eligibility(mem Member) Eligibility {
	reason := mem.BorrowDenial(m.today(), m.policy)
	return Eligibility{Allowed: reason == "", Reason: reason}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register creates an Active member whose membership runs for the type's
// duration starting today.
func (m *Membership) Register(ctx context.Context, r Registration) (*Member, error) {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	if err := validateRegistration(r); err != nil {
		return nil, err
	}

	var out *Member
	err := m.store.WithTx(ctx, func(s Store) error {
		if _, err := s.FindMemberByEmail(ctx, r.Email); err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		seq, err := s.NextSequence(ctx, SequenceMembers)
		if err != nil {
			return err
		}
		today := m.today()
		mem := Member{
			ID:              FormatMemberID(seq),
			FirstName:       r.FirstName,
			LastName:        r.LastName,
			Email:           r.Email,
			Phone:           strings.TrimSpace(r.Phone),
			Address:         strings.TrimSpace(r.Address),
			Type:            r.Type,
			Status:          MemberActive,
			MembershipStart: today,
			MembershipEnd:   today.AddMonths(r.Type.DurationMonths()),
			FinesOwed:       decimal.Zero,
		}
		if err := s.InsertMember(ctx, mem); err != nil {
			return err
		}
		out = &mem
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", r.Email, err)
	}
	m.logger.Info("member registered", "member", out.ID, "type", out.Type, "until", out.MembershipEnd)
	return out, nil
}

func validateRegistration(r Registration) error {
	switch {
	case r.FirstName == "":
		return &FieldError{Field: "first_name", Message: "is required"}
	case r.LastName == "":
		return &FieldError{Field: "last_name", Message: "is required"}
	case r.Email == "":
		return &FieldError{Field: "email", Message: "is required"}
	case !strings.Contains(r.Email, "@"):
		return &FieldError{Field: "email", Message: "must contain @"}
	case !r.Type.Valid():
		return &InvalidSelectionError{Field: "member_type", Value: string(r.Type)}
	}
	return nil
}

// =============================================================================
// LENDING COUNTERS AND FINES
// =============================================================================

// IncrementBorrowed counts one more book against id. It re-checks
// eligibility and fails with ErrBorrowLimitExceeded when the member may not
// borrow.
func (m *Membership) IncrementBorrowed(ctx context.Context, id MemberID) (*Member, error) {
	return m.mutate(ctx, id, func(mem *Member) error {
		if reason := mem.BorrowDenial(m.today(), m.policy); reason != "" {
			return fmt.Errorf("%w: %s", ErrBorrowLimitExceeded, reason)
		}
		mem.BorrowedCount++
		return nil
	})
}

// DecrementBorrowed never takes the count below zero.
func (m *Membership) DecrementBorrowed(ctx context.Context, id MemberID) (*Member, error) {
	return m.mutate(ctx, id, func(mem *Member) error {
		if mem.BorrowedCount > 0 {
			mem.BorrowedCount--
		}
		return nil
	})
}

func (m *Membership) AddFine(ctx context.Context, id MemberID, amount decimal.Decimal) (*Member, error) {
	if amount.IsNegative() {
		return nil, invalidAmount("amount", amount)
	}
	return m.mutate(ctx, id, func(mem *Member) error {
		mem.FinesOwed = mem.FinesOwed.Add(amount)
		return nil
	})
}

// PayFine reduces the fines owed, never below zero.
func (m *Membership) PayFine(ctx context.Context, id MemberID, amount decimal.Decimal) (*Member, error) {
	if amount.IsNegative() {
		return nil, invalidAmount("amount", amount)
	}
	var paid decimal.Decimal
	mem, err := m.mutate(ctx, id, func(mem *Member) error {
		paid = decimal.Min(amount, mem.FinesOwed)
		mem.FinesOwed = mem.FinesOwed.Sub(paid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordValue(MetricFinesPaid, paid.InexactFloat64(), nil)
	m.logger.Info("fine paid", "member", id, "paid", paid, "owed", mem.FinesOwed)
	return mem, nil
}

// =============================================================================
// MEMBERSHIP LIFECYCLE
// =============================================================================

// Renew extends the membership by months. An Expired member becomes Active.
func (m *Membership) Renew(ctx context.Context, id MemberID, months int) (*Member, error) {
	if months < 1 {
		return nil, &FieldError{Field: "months", Message: "must be at least 1"}
	}
	mem, err := m.mutate(ctx, id, func(mem *Member) error {
		mem.MembershipEnd = mem.MembershipEnd.AddMonths(months)
		if mem.Status == MemberExpired {
			mem.Status = MemberActive
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("membership renewed", "member", id, "until", mem.MembershipEnd, "status", mem.Status)
	return mem, nil
}

func (m *Membership) EditContact(ctx context.Context, id MemberID, e ContactEdit) (*Member, error) {
	return m.mutate(ctx, id, func(mem *Member) error {
		if e.Phone != nil {
			mem.Phone = strings.TrimSpace(*e.Phone)
		}
		if e.Address != nil {
			mem.Address = strings.TrimSpace(*e.Address)
		}
		return nil
	})
}

// SetStatus applies an administrative status such as Suspended or Blocked.
func (m *Membership) SetStatus(ctx context.Context, id MemberID, status MemberStatus) (*Member, error) {
	if !status.Valid() {
		return nil, &InvalidSelectionError{Field: "member_status", Value: string(status)}
	}
	mem, err := m.mutate(ctx, id, func(mem *Member) error {
		mem.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("member status changed", "member", id, "status", status)
	return mem, nil
}

func (m *Membership) mutate(ctx context.Context, id MemberID, fn func(*Member) error) (*Member, error) {
	var out *Member
	err := m.store.WithTx(ctx, func(s Store) error {
		mem, err := s.GetMember(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(mem); err != nil {
			return err
		}
		out = mem
		return s.UpdateMember(ctx, *mem)
	})
	if err != nil {
		return nil, fmt.Errorf("update member %s: %w", id, err)
	}
	return out, nil
}
