/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for a browser shell

ROUTE GROUPS:
  /api/books/*          Catalog
  /api/members/*        Membership
  /api/loans/*          Borrow and return
  /api/transactions/*   Ledger queries
  /api/reference        Enum tables for menus
  /api/scenarios/*      Sample data
  /metrics              Prometheus exposition (when a handler is given)
  /                     API index page

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured. metrics is mounted
// at /metrics when non-nil.
func NewRouter(h *Handler, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Post("/", h.CreateBook)
			r.Get("/{isbn}", h.GetBook)
			r.Patch("/{isbn}", h.EditBook)
			r.Put("/{isbn}/status", h.SetBookStatus)
			r.Delete("/{isbn}", h.DeleteBook)
		})

		// Membership routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.RegisterMember)
			r.Get("/{id}", h.GetMember)
			r.Patch("/{id}", h.EditMemberContact)
			r.Put("/{id}/status", h.SetMemberStatus)
			r.Post("/{id}/renew", h.RenewMember)
			r.Post("/{id}/fines/payments", h.PayFine)
			r.Get("/{id}/transactions", h.GetMemberTransactions)
		})

		// Lending routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.Borrow)
			r.Post("/return", h.Return)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/overdue", h.ListOverdue)
			r.Get("/{id}", h.GetTransaction)
		})

		r.Get("/reference", h.GetReference)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Library Lending Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Library Lending Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/books">/api/books</a> - Catalog</li>
<li><a href="/api/members">/api/members</a> - Members</li>
<li><a href="/api/transactions">/api/transactions</a> - Ledger</li>
<li><a href="/api/transactions/overdue">/api/transactions/overdue</a> - Overdue loans</li>
<li><a href="/api/reference">/api/reference</a> - Reference data</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Sample data</li>
</ul>
</body>
</html>`))
	})

	return r
}
