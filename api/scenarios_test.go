/*
scenarios_test.go - Unit tests for sample data scenarios

PURPOSE:
	Tests that each scenario sets up the expected state:
	- Books are inserted with the right copies and statuses
	- Members are registered in order
	- Loans, fines and status changes are applied through the components

These tests double as integration tests of the three components on SQLite.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/library"
)

func TestScenario_SampleLibrary(t *testing.T) {
	// GIVEN: An empty library
	// WHEN: Loading the sample-library scenario
	// THEN: Two programming books and two members exist, nothing is on loan

	s := setupTestServer(t)
	lib := s.handler.Library
	ctx := context.Background()

	require.NoError(t, s.handler.LoadScenarioByID(ctx, "sample-library"))

	books, err := lib.Catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Effective Java", books[0].Title)
	assert.Equal(t, "Addison-Wesley", books[0].Publisher)
	assert.Equal(t, 2017, books[0].Year)
	assert.Equal(t, library.CategoryComputerProgramming, books[1].Category)

	members, err := lib.Members.List(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, library.MemberID("MEM000001"), members[0].ID)
	assert.Equal(t, "john.doe@email.com", members[0].Email)
	assert.Equal(t, library.MemberStudent, members[0].Type)
	assert.Equal(t, "+1-555-0101", members[0].Phone)
	assert.Equal(t, library.MemberID("MEM000002"), members[1].ID)
	assert.Equal(t, library.MemberFaculty, members[1].Type)

	txs, err := lib.Ledger.TransactionsFor(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestScenario_BusyBranch(t *testing.T) {
	// GIVEN: An empty library
	// WHEN: Loading the busy-branch scenario
	// THEN: Loans, fines and statuses are consistent with the lending rules

	s := setupTestServer(t)
	lib := s.handler.Library
	ctx := context.Background()

	require.NoError(t, s.handler.LoadScenarioByID(ctx, "busy-branch"))

	dune, err := lib.Catalog.FindByISBN(ctx, "978-0441013593")
	require.NoError(t, err)
	assert.Equal(t, 0, dune.AvailableCopies)
	assert.Equal(t, library.BookBorrowed, dune.Status)

	repair, err := lib.Catalog.FindByISBN(ctx, "978-0135957059")
	require.NoError(t, err)
	assert.Equal(t, library.BookMaintenance, repair.Status)

	txs, err := lib.Ledger.TransactionsFor(ctx, "")
	require.NoError(t, err)
	assert.Len(t, txs, 5)

	members, err := lib.Members.List(ctx)
	require.NoError(t, err)
	require.Len(t, members, 6)

	faculty := members[1]
	assert.Equal(t, 2, faculty.BorrowedCount)

	public := members[3]
	assert.Equal(t, library.MemberSuspended, public.Status)

	researcher := members[4]
	assert.Equal(t, "62.5", researcher.FinesOwed.String())
	assert.Equal(t, library.ReasonFinesTooHigh, lib.Members.Eligibility(researcher).Reason)

	// every borrowed count matches the open loans
	open := map[library.MemberID]int{}
	for _, tx := range txs {
		if tx.IsActiveLoan() {
			open[tx.MemberID]++
		}
	}
	for _, m := range members {
		assert.Equal(t, open[m.ID], m.BorrowedCount, m.ID)
	}
}

func TestScenario_LoadingTwiceConflicts(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.handler.LoadScenarioByID(ctx, "sample-library"))
	err := s.handler.LoadScenarioByID(ctx, "sample-library")
	assert.ErrorIs(t, err, library.ErrDuplicateISBN)
}

func TestScenario_ClashWritesNothing(t *testing.T) {
	// GIVEN: A member already registered with an email busy-branch uses
	// WHEN: Loading busy-branch
	// THEN: It fails with a duplicate email and none of its books exist

	s := setupTestServer(t)
	ctx := context.Background()
	s.register(t, "Maya.Patel@campus.edu", "public")

	err := s.handler.LoadScenarioByID(ctx, "busy-branch")
	require.ErrorIs(t, err, library.ErrDuplicateEmail)

	books, err := s.handler.Library.Catalog.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
	members, err := s.handler.Library.Members.List(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	rec := s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.JSONEq(t, `null`, rec.Body.String())
}

func TestScenario_ScenariosCombine(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.handler.LoadScenarioByID(ctx, "sample-library"))
	require.NoError(t, s.handler.LoadScenarioByID(ctx, "busy-branch"))

	members, err := s.handler.Library.Members.List(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 8)
	assert.Equal(t, library.MemberID("MEM000008"), members[7].ID)
}

func TestScenario_Unknown(t *testing.T) {
	s := setupTestServer(t)

	err := s.handler.LoadScenarioByID(context.Background(), "haunted-stacks")
	assert.ErrorIs(t, err, ErrUnknownScenario)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "haunted-stacks"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_HTTPLoadAndCurrent(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `null`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/scenarios", nil)
	assert.Len(t, decodeAs[[]ScenarioDTO](t, rec), 2)

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "busy-branch"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "busy-branch", decodeAs[ScenarioDTO](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "busy-branch"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
