/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the lending engine's records from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Books:        BookDTO, CreateBookRequest, EditBookRequest
  Members:      MemberDTO, RegisterMemberRequest, EditContactRequest,
                RenewRequest, PaymentRequest
  Lending:      LoanRequest, TransactionDTO, ReturnDTO
  Reference:    ReferenceDTO, TagDTO, MemberTypeDTO
  Scenarios:    ScenarioDTO, LoadScenarioRequest
  Shared:       StatusRequest, ErrorResponse

MONEY:
  Amounts are decimal strings ("12.50") in responses. Requests accept a
  JSON string or number.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/library"
)

// =============================================================================
// BOOKS
// =============================================================================

type BookDTO struct {
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Category        string `json:"category"`
	CategoryName    string `json:"category_name"`
	Publisher       string `json:"publisher,omitempty"`
	Year            int    `json:"year,omitempty"`
	Description     string `json:"description,omitempty"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	Status          string `json:"status"`
	Available       bool   `json:"available"`
	AddedAt         string `json:"added_at"`
	UpdatedAt       string `json:"updated_at"`
}

// CreateBookRequest accepts the category as a tag or display name.
type CreateBookRequest struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	Publisher   string `json:"publisher"`
	Year        int    `json:"year"`
	Description string `json:"description"`
	TotalCopies int    `json:"total_copies"`
}

type EditBookRequest struct {
	Title     *string `json:"title"`
	Author    *string `json:"author"`
	Publisher *string `json:"publisher"`
}

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID              string `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Address         string `json:"address,omitempty"`
	MemberType      string `json:"member_type"`
	Status          string `json:"status"`
	MembershipStart string `json:"membership_start"`
	MembershipEnd   string `json:"membership_end"`
	FinesOwed       string `json:"fines_owed"`
	BorrowedCount   int    `json:"borrowed_count"`
	MaxBooks        int    `json:"max_books"`
	CanBorrow       *bool  `json:"can_borrow,omitempty"`
	DenialReason    string `json:"denial_reason,omitempty"`
}

type RegisterMemberRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	MemberType string `json:"member_type"`
}

type EditContactRequest struct {
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type RenewRequest struct {
	Months int `json:"months"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// StatusRequest sets a book or member status.
type StatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// LENDING
// =============================================================================

type LoanRequest struct {
	MemberID string `json:"member_id"`
	ISBN     string `json:"isbn"`
}

type TransactionDTO struct {
	ID         string `json:"id"`
	MemberID   string `json:"member_id"`
	ISBN       string `json:"isbn"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	DueDate    string `json:"due_date,omitempty"`
	ReturnDate string `json:"return_date,omitempty"`
	Fine       string `json:"fine"`
	Overdue    bool   `json:"overdue"`
	Notes      string `json:"notes,omitempty"`
}

type ReturnDTO struct {
	Transaction TransactionDTO `json:"transaction"`
	Fine        string         `json:"fine"`
	DaysOverdue int            `json:"days_overdue"`
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// TagDTO is one entry of an enumerated choice list.
type TagDTO struct {
	Tag         string `json:"tag"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type MemberTypeDTO struct {
	TagDTO
	MaxBooks       int `json:"max_books"`
	DurationMonths int `json:"duration_months"`
}

// ReferenceDTO is everything a shell needs to render its selection menus.
type ReferenceDTO struct {
	MemberTypes         []MemberTypeDTO    `json:"member_types"`
	Categories          []TagDTO           `json:"categories"`
	BookStatuses        []TagDTO           `json:"book_statuses"`
	MemberStatuses      []TagDTO           `json:"member_statuses"`
	TransactionTypes    []TagDTO           `json:"transaction_types"`
	TransactionStatuses []TagDTO           `json:"transaction_statuses"`
	Policy              factory.PolicyJSON `json:"policy"`
	Today               string             `json:"today"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBookDTO(b library.Book) BookDTO {
	return BookDTO{
		ISBN:            b.ISBN,
		Title:           b.Title,
		Author:          b.Author,
		Category:        string(b.Category),
		CategoryName:    b.Category.String(),
		Publisher:       b.Publisher,
		Year:            b.Year,
		Description:     b.Description,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Status:          string(b.Status),
		Available:       b.IsAvailable(),
		AddedAt:         b.AddedAt.Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBookDTOs(books []library.Book) []BookDTO {
	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	return dtos
}

func toMemberDTO(m library.Member) MemberDTO {
	return MemberDTO{
		ID:              string(m.ID),
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		FullName:        m.FullName(),
		Email:           m.Email,
		Phone:           m.Phone,
		Address:         m.Address,
		MemberType:      string(m.Type),
		Status:          string(m.Status),
		MembershipStart: m.MembershipStart.String(),
		MembershipEnd:   m.MembershipEnd.String(),
		FinesOwed:       m.FinesOwed.StringFixed(2),
		BorrowedCount:   m.BorrowedCount,
		MaxBooks:        m.Type.MaxBooks(),
	}
}

func toMemberDTOs(members []library.Member) []MemberDTO {
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	return dtos
}

func toTransactionDTO(tx library.Transaction, today library.Date) TransactionDTO {
	return TransactionDTO{
		ID:         string(tx.ID),
		MemberID:   string(tx.MemberID),
		ISBN:       tx.ISBN,
		Type:       string(tx.Type),
		Status:     string(tx.Status),
		CreatedAt:  tx.CreatedAt.Format(time.RFC3339),
		DueDate:    tx.DueDate.String(),
		ReturnDate: tx.ReturnDate.String(),
		Fine:       tx.Fine.StringFixed(2),
		Overdue:    tx.IsOverdue(today),
		Notes:      tx.Notes,
	}
}

func toTransactionDTOs(txs []library.Transaction, today library.Date) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx, today)
	}
	return dtos
}

func tagsOf[T ~string](tags []T, info func(T) library.TagInfo) []TagDTO {
	dtos := make([]TagDTO, len(tags))
	for i, t := range tags {
		ti := info(t)
		dtos[i] = TagDTO{Tag: string(t), Name: ti.DisplayName, Description: ti.Description}
	}
	return dtos
}
