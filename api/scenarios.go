/*
scenarios.go - Sample data loaders for demos and manual testing

PURPOSE:

	Provides pre-built scenarios that populate the library with realistic
	data. Each scenario goes through the public component operations, so
	every record it creates obeys the same rules as API traffic.

AVAILABLE SCENARIOS:

	sample-library: Two programming books, one student and one faculty member
	busy-branch:    A member of every type, open loans, fines and a book
	                under maintenance

HOW SCENARIOS WORK:
 1. Check no ISBN or email is already taken
 2. Insert books through the catalog
 3. Register members (IDs follow registration order)
 4. Optionally borrow, fine or change statuses

Loading adds to whatever is already there. Every ISBN and email a scenario
would create is checked first, so a scenario that clashes with existing
data (for example, loading the same one twice) fails with 409 before
anything is written.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-branch"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx), seeding through h.seed
 3. Add case to LoadScenarioByID

SEE ALSO:
  - handlers.go: Component handlers
  - cmd/server/main.go: -seed flag
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/library"
)

// ErrUnknownScenario is returned for a scenario ID not in the list.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "sample-library",
		Name:        "Sample Library",
		Description: "Effective Java and Clean Code, a student and a faculty member",
	},
	{
		ID:          "busy-branch",
		Name:        "Busy Branch",
		Description: "A member of every type, open loans, outstanding fines, a book in maintenance",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, ErrUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenarioByID runs the named loader and records it as current.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	var err error
	switch id {
	case "sample-library":
		err = h.loadSampleLibraryScenario(ctx)
	case "busy-branch":
		err = h.loadBusyBranchScenario(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	if err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.logger.Info("scenario loaded", "scenario", id)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadSampleLibraryScenario creates the data the library opens with.
func (h *Handler) loadSampleLibraryScenario(ctx context.Context) error {
	books := []library.Book{
		{
			ISBN: "978-0134685991", Title: "Effective Java", Author: "Joshua Bloch",
			Category: library.CategoryComputerProgramming, Publisher: "Addison-Wesley", Year: 2017,
		},
		{
			ISBN: "978-0321356680", Title: "Clean Code", Author: "Robert Martin",
			Category: library.CategoryComputerProgramming, Publisher: "Prentice Hall", Year: 2008,
		},
	}
	_, err := h.seed(ctx, books, []library.Registration{
		{FirstName: "John", LastName: "Doe", Email: "john.doe@email.com", Phone: "+1-555-0101", Type: library.MemberStudent},
		{FirstName: "Jane", LastName: "Smith", Email: "jane.smith@email.com", Phone: "+1-555-0102", Type: library.MemberFaculty},
	})
	return err
}

// loadBusyBranchScenario creates a branch in mid-flow:
//   - both copies of Dune are out
//   - the researcher owes enough in fines to be blocked
//   - the public member is suspended
//   - The Pragmatic Programmer is under maintenance
func (h *Handler) loadBusyBranchScenario(ctx context.Context) error {
	books := []library.Book{
		{ISBN: "978-0441013593", Title: "Dune", Author: "Frank Herbert", Category: library.CategoryFiction, Publisher: "Ace", Year: 1965, TotalCopies: 2},
		{ISBN: "978-0062316097", Title: "Sapiens", Author: "Yuval Noah Harari", Category: library.CategoryHistoryPolitics, Publisher: "Harper", Year: 2015, TotalCopies: 3},
		{ISBN: "978-0135957059", Title: "The Pragmatic Programmer", Author: "David Thomas", Category: library.CategoryComputerProgramming, Publisher: "Addison-Wesley", Year: 2019},
		{ISBN: "978-1451648539", Title: "Steve Jobs", Author: "Walter Isaacson", Category: library.CategoryBiography, Publisher: "Simon & Schuster", Year: 2011},
		{ISBN: "978-0307887894", Title: "The Lean Startup", Author: "Eric Ries", Category: library.CategoryBusinessEconomics, Publisher: "Crown", Year: 2011, TotalCopies: 2},
		{ISBN: "978-0553380163", Title: "A Brief History of Time", Author: "Stephen Hawking", Category: library.CategoryScienceTechnology, Publisher: "Bantam", Year: 1998},
	}
	members, err := h.seed(ctx, books, []library.Registration{
		{FirstName: "Maya", LastName: "Patel", Email: "maya.patel@campus.edu", Type: library.MemberStudent},
		{FirstName: "Owen", LastName: "Reyes", Email: "owen.reyes@campus.edu", Type: library.MemberFaculty},
		{FirstName: "Lena", LastName: "Fischer", Email: "lena.fischer@campus.edu", Type: library.MemberStaff},
		{FirstName: "Sam", LastName: "Okafor", Email: "sam.okafor@mail.com", Type: library.MemberPublic},
		{FirstName: "Iris", LastName: "Novak", Email: "iris.novak@institute.org", Type: library.MemberResearcher},
		{FirstName: "Walter", LastName: "Green", Email: "walter.green@mail.com", Type: library.MemberSeniorCitizen},
	})
	if err != nil {
		return err
	}
	student, faculty, staff, public, researcher, senior := members[0], members[1], members[2], members[3], members[4], members[5]

	loans := []struct {
		member library.MemberID
		isbn   string
	}{
		{student, "978-0441013593"},
		{faculty, "978-0441013593"},
		{faculty, "978-0062316097"},
		{staff, "978-0307887894"},
		{senior, "978-1451648539"},
	}
	for _, loan := range loans {
		if _, err := h.Library.Ledger.Borrow(ctx, loan.member, loan.isbn); err != nil {
			return err
		}
	}

	if _, err := h.Library.Members.AddFine(ctx, researcher, decimal.RequireFromString("62.50")); err != nil {
		return err
	}
	if _, err := h.Library.Members.AddFine(ctx, staff, decimal.RequireFromString("4.00")); err != nil {
		return err
	}
	if _, err := h.Library.Members.SetStatus(ctx, public, library.MemberSuspended); err != nil {
		return err
	}
	_, err = h.Library.Catalog.SetStatus(ctx, "978-0135957059", library.BookMaintenance)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// seed inserts books and registers members, returning member IDs in
// registration order. Clashes with existing data are reported before the
// first write.
func (h *Handler) seed(ctx context.Context, books []library.Book, regs []library.Registration) ([]library.MemberID, error) {
	if err := h.checkUnused(ctx, books, regs); err != nil {
		return nil, err
	}

	for _, b := range books {
		if _, err := h.Library.Catalog.Insert(ctx, b); err != nil {
			return nil, err
		}
	}

	ids := make([]library.MemberID, 0, len(regs))
	for _, reg := range regs {
		m, err := h.Library.Members.Register(ctx, reg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (h *Handler) checkUnused(ctx context.Context, books []library.Book, regs []library.Registration) error {
	for _, b := range books {
		_, err := h.Library.Catalog.FindByISBN(ctx, b.ISBN)
		if err == nil {
			return fmt.Errorf("%s: %w", b.ISBN, library.ErrDuplicateISBN)
		}
		if !library.IsNotFound(err) {
			return err
		}
	}

	members, err := h.Library.Members.List(ctx)
	if err != nil {
		return err
	}
	for _, reg := range regs {
		for _, m := range members {
			if strings.EqualFold(m.Email, strings.TrimSpace(reg.Email)) {
				return fmt.Errorf("%s: %w", reg.Email, library.ErrDuplicateEmail)
			}
		}
	}
	return nil
}
