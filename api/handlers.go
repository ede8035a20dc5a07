/*
handlers.go - HTTP API handlers for the lending engine

PURPOSE:
  Exposes the catalog, membership and ledger components via REST API.
  Handles HTTP request/response, JSON serialization and enum parsing, and
  delegates every rule to the library package.

ENDPOINTS:
  Books:
    GET    /api/books?q=                    List or search the catalog
    POST   /api/books                       Add a book
    GET    /api/books/{isbn}                Get one book
    PATCH  /api/books/{isbn}                Edit title, author, publisher
    PUT    /api/books/{isbn}/status         Set circulation status
    DELETE /api/books/{isbn}                Remove a book

  Members:
    GET    /api/members?q=                  List or search members
    POST   /api/members                     Register a member
    GET    /api/members/{id}                Member details and eligibility
    PATCH  /api/members/{id}                Edit phone and address
    PUT    /api/members/{id}/status         Set member status
    POST   /api/members/{id}/renew          Extend membership
    POST   /api/members/{id}/fines/payments Pay fines
    GET    /api/members/{id}/transactions   Member history

  Lending:
    POST   /api/loans                       Borrow
    POST   /api/loans/return                Return
    GET    /api/transactions                Full ledger
    GET    /api/transactions/overdue        Overdue loans
    GET    /api/transactions/{id}           One transaction

  Reference:
    GET    /api/reference                   Enum tables and lending policy

REQUEST FLOW:
  1. Decode the JSON body
  2. Parse enum selections (tag or display name)
  3. Call the component
  4. Serialize the record as a DTO

ERROR HANDLING:
  Errors are returned as JSON with a status derived from the error class:
  - 400: Invalid input or selection
  - 404: Book, member or transaction not found
  - 409: Duplicate ISBN/email, duplicate loan, book still on loan
  - 422: Lending rule denied the operation (reason field set)
  - 500: Store failures

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Sample data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/library"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Library       *library.Library
	PolicyFactory *factory.PolicyFactory
	PolicyName    string

	logger *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler serving lib.
func NewHandler(lib *library.Library, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		Library:       lib,
		PolicyFactory: factory.NewPolicyFactory(),
		PolicyName:    "standard",
		logger:        logger,
	}
}

// =============================================================================
// BOOK HANDLERS
// =============================================================================

// ListBooks returns the catalog, filtered by ?q= when present.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	var (
		books []library.Book
		err   error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		books, err = h.Library.Catalog.Search(r.Context(), q)
	} else {
		books, err = h.Library.Catalog.List(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, "Failed to list books", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTOs(books))
}

// CreateBook adds a book to the catalog.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if !decode(w, r, &req) {
		return
	}

	book := library.Book{
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		Year:        req.Year,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	}
	if req.Category != "" {
		category, err := library.ParseCategory(req.Category)
		if err != nil {
			h.writeDomainError(w, "Invalid category", err)
			return
		}
		book.Category = category
	}

	created, err := h.Library.Catalog.Insert(r.Context(), book)
	if err != nil {
		h.writeDomainError(w, "Failed to add book", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookDTO(*created))
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.Library.Catalog.FindByISBN(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		h.writeDomainError(w, "Failed to get book", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

// EditBook changes the fields present in the body.
func (h *Handler) EditBook(w http.ResponseWriter, r *http.Request) {
	var req EditBookRequest
	if !decode(w, r, &req) {
		return
	}

	book, err := h.Library.Catalog.Edit(r.Context(), chi.URLParam(r, "isbn"), library.BookEdit{
		Title:     req.Title,
		Author:    req.Author,
		Publisher: req.Publisher,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to edit book", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

func (h *Handler) SetBookStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := library.ParseBookStatus(req.Status)
	if err != nil {
		h.writeDomainError(w, "Invalid book status", err)
		return
	}

	book, err := h.Library.Catalog.SetStatus(r.Context(), chi.URLParam(r, "isbn"), status)
	if err != nil {
		h.writeDomainError(w, "Failed to set book status", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.Library.Catalog.Delete(r.Context(), chi.URLParam(r, "isbn")); err != nil {
		h.writeDomainError(w, "Failed to delete book", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	var (
		members []library.Member
		err     error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		members, err = h.Library.Members.Search(r.Context(), q)
	} else {
		members, err = h.Library.Members.List(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, "Failed to list members", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTOs(members))
}

// RegisterMember creates a member with a generated MEM id.
func (h *Handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var req RegisterMemberRequest
	if !decode(w, r, &req) {
		return
	}
	memberType, err := library.ParseMemberType(req.MemberType)
	if err != nil {
		h.writeDomainError(w, "Invalid member type", err)
		return
	}

	member, err := h.Library.Members.Register(r.Context(), library.Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		Type:      memberType,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to register member", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.memberWithEligibility(*member))
}

// GetMember returns the member along with whether they may borrow today.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.Library.Members.FindByID(r.Context(), memberID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, h.memberWithEligibility(*member))
}

func (h *Handler) EditMemberContact(w http.ResponseWriter, r *http.Request) {
	var req EditContactRequest
	if !decode(w, r, &req) {
		return
	}

	member, err := h.Library.Members.EditContact(r.Context(), memberID(r), library.ContactEdit{
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to edit member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

func (h *Handler) SetMemberStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := library.ParseMemberStatus(req.Status)
	if err != nil {
		h.writeDomainError(w, "Invalid member status", err)
		return
	}

	member, err := h.Library.Members.SetStatus(r.Context(), memberID(r), status)
	if err != nil {
		h.writeDomainError(w, "Failed to set member status", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// RenewMember extends the membership. An empty body renews for the member
// type's standard duration.
func (h *Handler) RenewMember(w http.ResponseWriter, r *http.Request) {
	var req RenewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	id := memberID(r)
	months := req.Months
	if months == 0 {
		member, err := h.Library.Members.FindByID(ctx, id)
		if err != nil {
			h.writeDomainError(w, "Failed to renew membership", err)
			return
		}
		months = member.Type.DurationMonths()
	}

	member, err := h.Library.Members.Renew(ctx, id, months)
	if err != nil {
		h.writeDomainError(w, "Failed to renew membership", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// PayFine reduces the member's fines, never below zero.
func (h *Handler) PayFine(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}

	member, err := h.Library.Members.PayFine(r.Context(), memberID(r), req.Amount)
	if err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

func (h *Handler) GetMemberTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := memberID(r)
	if _, err := h.Library.Members.FindByID(ctx, id); err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}

	txs, err := h.Library.Ledger.TransactionsFor(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs, h.Library.Today()))
}

func (h *Handler) memberWithEligibility(m library.Member) MemberDTO {
	dto := toMemberDTO(m)
	e := h.Library.Members.Eligibility(m)
	dto.CanBorrow = &e.Allowed
	dto.DenialReason = string(e.Reason)
	return dto
}

// =============================================================================
// LENDING HANDLERS
// =============================================================================

// Borrow lends a book to a member.
func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if !decode(w, r, &req) {
		return
	}

	tx, err := h.Library.Ledger.Borrow(r.Context(), library.MemberID(strings.TrimSpace(req.MemberID)), strings.TrimSpace(req.ISBN))
	if err != nil {
		h.writeDomainError(w, "Borrow rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx, h.Library.Today()))
}

// Return closes the member's open loan of the book and assesses any fine.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if !decode(w, r, &req) {
		return
	}

	receipt, err := h.Library.Ledger.Return(r.Context(), library.MemberID(strings.TrimSpace(req.MemberID)), strings.TrimSpace(req.ISBN))
	if err != nil {
		h.writeDomainError(w, "Return rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnDTO{
		Transaction: toTransactionDTO(receipt.Transaction, h.Library.Today()),
		Fine:        receipt.Fine.StringFixed(2),
		DaysOverdue: receipt.DaysOverdue,
	})
}

// ListTransactions returns the ledger in insertion order, optionally
// restricted with ?member_id=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := library.MemberID(strings.TrimSpace(r.URL.Query().Get("member_id")))
	txs, err := h.Library.Ledger.TransactionsFor(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs, h.Library.Today()))
}

func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Library.Ledger.Overdue(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list overdue loans", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs, h.Library.Today()))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Library.Ledger.Get(r.Context(), library.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx, h.Library.Today()))
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// GetReference returns the selection tables a shell renders as menus.
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	types := library.MemberTypes()
	memberTypes := make([]MemberTypeDTO, len(types))
	for i, t := range types {
		info := t.Info()
		memberTypes[i] = MemberTypeDTO{
			TagDTO:         TagDTO{Tag: string(t), Name: info.DisplayName, Description: info.Description},
			MaxBooks:       info.MaxBooks,
			DurationMonths: info.DurationMonths,
		}
	}

	writeJSON(w, http.StatusOK, ReferenceDTO{
		MemberTypes:         memberTypes,
		Categories:          tagsOf(library.Categories(), library.Category.Info),
		BookStatuses:        tagsOf(library.BookStatuses(), library.BookStatus.Info),
		MemberStatuses:      tagsOf(library.MemberStatuses(), library.MemberStatus.Info),
		TransactionTypes:    tagsOf(library.TransactionTypes(), library.TransactionType.Info),
		TransactionStatuses: tagsOf(library.TransactionStatuses(), library.TransactionStatus.Info),
		Policy:              h.PolicyFactory.ToJSON(h.PolicyName, h.Library.Policy()),
		Today:               h.Library.Today().String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func memberID(r *http.Request) library.MemberID {
	return library.MemberID(chi.URLParam(r, "id"))
}

// decode reads the JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps a library error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case library.IsNotFound(err):
		return http.StatusNotFound
	case library.IsConflict(err):
		return http.StatusConflict
	case library.IsRuleViolation(err):
		return http.StatusUnprocessableEntity
	case library.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status of its class. Rule violations
// carry a machine-readable reason.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var notPermitted *library.BorrowNotPermittedError
	var unavailable *library.BookUnavailableError
	switch {
	case errors.As(err, &notPermitted):
		resp.Reason = string(notPermitted.Reason)
	case errors.As(err, &unavailable):
		resp.Reason = string(unavailable.Status)
	case errors.Is(err, library.ErrNoActiveLoan):
		resp.Reason = "no_active_loan"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(message, "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
