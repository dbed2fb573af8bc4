// Package api exposes the ledger over JSON REST. Handlers translate HTTP
// into store calls and map the error taxonomy back onto status codes; all
// domain logic lives in the store and the calculator.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/divvyup/ledger/internal/ledger"
)

// maxReceiptBytes bounds receipt uploads at 10 MiB.
const maxReceiptBytes = 10 << 20

// Server holds the handlers for the ledger API.
type Server struct {
	store *ledger.Store
}

// NewServer creates an API server backed by the given store.
func NewServer(store *ledger.Store) *Server {
	return &Server{store: store}
}

// Routes mounts every handler on a fresh router. Authentication and logging
// middleware are attached by the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/sync", s.handleSync)

	r.Route("/groups", func(r chi.Router) {
		r.Get("/", s.handleListGroups)
		r.Post("/", s.handleCreateGroup)
		r.Route("/{groupID}", func(r chi.Router) {
			r.Get("/", s.handleGetGroup)
			r.Patch("/", s.handleUpdateGroup)
			r.Delete("/", s.handleDeleteGroup)

			r.Get("/stats", s.handleGroupStats)
			r.Get("/budget", s.handleBudgetStatus)

			r.Route("/expenses", func(r chi.Router) {
				r.Post("/", s.handleAddExpense)
				r.Put("/{expenseID}", s.handleUpdateExpense)
				r.Delete("/{expenseID}", s.handleDeleteExpense)
				r.Post("/{expenseID}/receipt", s.handleAttachReceipt)
			})
		})
	})

	return r
}

// handleSync refreshes the in-memory collection from the store of record.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"groups": len(s.store.ListGroups())})
}
