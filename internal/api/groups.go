package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/divvyup/ledger/internal/calculator"
	"github.com/divvyup/ledger/internal/ledger"
	"github.com/divvyup/ledger/internal/models"
)

type createGroupRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Type        models.GroupType `json:"type"`
	StartDate   *time.Time       `json:"start_date,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
	Budget      decimal.Decimal  `json:"budget"`
	Members     []string         `json:"members"`
}

// updateGroupRequest mirrors ledger.GroupPatch: absent fields stay
// unchanged.
type updateGroupRequest struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Type        *models.GroupType `json:"type,omitempty"`
	StartDate   *time.Time        `json:"start_date,omitempty"`
	EndDate     *time.Time        `json:"end_date,omitempty"`
	Budget      *decimal.Decimal  `json:"budget,omitempty"`
	Members     []string          `json:"members,omitempty"`
}

type budgetResponse struct {
	BudgetSet bool                     `json:"budget_set"`
	Status    *calculator.BudgetStatus `json:"status,omitempty"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListGroups())
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.store.GetGroup(chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := s.store.CreateGroup(r.Context(), ledger.GroupDraft{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Budget:      req.Budget,
		Members:     req.Members,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req updateGroupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := s.store.UpdateGroup(r.Context(), chi.URLParam(r, "groupID"), ledger.GroupPatch{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Budget:      req.Budget,
		Members:     req.Members,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteGroup(r.Context(), chi.URLParam(r, "groupID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGroupStats aggregates the group's expenses. With baseline_from and
// baseline_to (RFC 3339) the response also carries per-category trends
// against the group's spend inside that prior window.
func (s *Server) handleGroupStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "groupID")

	baseline, err := s.baselineStats(id, r.URL.Query().Get("baseline_from"), r.URL.Query().Get("baseline_to"))
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := s.store.GroupStats(id, baseline)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// baselineStats aggregates the group's expenses dated within [from, to).
// Returns nil when no window was requested; trends are never guessed.
func (s *Server) baselineStats(groupID, fromParam, toParam string) (*calculator.Stats, error) {
	if fromParam == "" && toParam == "" {
		return nil, nil
	}
	from, err := time.Parse(time.RFC3339, fromParam)
	if err != nil {
		return nil, models.Errf("malformed-baseline", "parse baseline_from: %v", err)
	}
	to, err := time.Parse(time.RFC3339, toParam)
	if err != nil {
		return nil, models.Errf("malformed-baseline", "parse baseline_to: %v", err)
	}
	if !to.After(from) {
		return nil, models.Errf("malformed-baseline", "baseline_to must follow baseline_from")
	}

	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	var prior []models.Expense
	for _, e := range group.Expenses {
		if !e.Date.Before(from) && e.Date.Before(to) {
			prior = append(prior, e)
		}
	}
	stats := calculator.Aggregate(&group, prior)
	return &stats, nil
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.BudgetStatus(chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetResponse{BudgetSet: status != nil, Status: status})
}
