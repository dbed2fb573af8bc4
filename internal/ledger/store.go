// Package ledger implements the consumer-facing LedgerStore: the in-memory
// collection of groups and expenses, its query surface, and the optimistic
// mutation protocol against the store of record.
//
// All mutation flows through the coordinator; external code never touches
// the store's collections directly. That discipline is what makes rollback
// correctness possible: after any mutation call resolves, the store holds
// either the confirmed new value or exactly the pre-call value, never an
// intermediate.
package ledger

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/divvyup/ledger/internal/calculator"
	"github.com/divvyup/ledger/internal/metrics"
	"github.com/divvyup/ledger/internal/models"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrExpenseNotFound = errors.New("expense not found")
)

// Remote is the store of record, reachable only through request/response
// calls. Implemented by remote.Client.
type Remote interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
	CreateGroup(ctx context.Context, group models.Group) (models.Group, error)
	UpdateGroup(ctx context.Context, group models.Group) (models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	CreateExpense(ctx context.Context, groupID string, expense models.Expense) (models.Expense, error)
	UpdateExpense(ctx context.Context, groupID string, expense models.Expense) (models.Expense, error)
	DeleteExpense(ctx context.Context, groupID, expenseID string) error
}

// Uploader is the receipt upload collaborator. Implemented by
// remote.Uploader.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// Config configures a Store.
type Config struct {
	Remote   Remote
	Uploader Uploader // optional; AttachReceipt fails without one
	Metrics  *metrics.Ledger
	// WarningThreshold is the budget ratio that triggers a warning.
	// Values outside (0, 1) fall back to calculator.DefaultWarningThreshold.
	WarningThreshold float64
}

// Store is the LedgerStore facade.
type Store struct {
	remote        Remote
	uploader      Uploader
	coord         *coordinator
	warnThreshold float64

	mu     sync.RWMutex
	groups map[string]*models.Group
}

// New creates an empty store. Call Refresh to seed it from the store of
// record.
func New(cfg Config) *Store {
	return &Store{
		remote:        cfg.Remote,
		uploader:      cfg.Uploader,
		coord:         newCoordinator(cfg.Metrics),
		warnThreshold: cfg.WarningThreshold,
		groups:        make(map[string]*models.Group),
	}
}

// PendingMutations reports how many mutations are awaiting confirmation.
func (s *Store) PendingMutations() int { return s.coord.PendingCount() }

// Refresh replaces the in-memory collection with the store of record's
// current state. It waits for every in-flight mutation to resolve first, so
// a swap can never interleave with an optimistic apply or a rollback; new
// mutations queue until the refresh completes.
func (s *Store) Refresh(ctx context.Context) error {
	release := s.coord.quiesce()
	defer release()

	groups, err := s.remote.ListGroups(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]*models.Group, len(groups))
	for i := range groups {
		g := groups[i].Clone()
		for j := range g.Expenses {
			g.Expenses[j].GroupID = g.ID
		}
		fresh[g.ID] = g
	}

	s.mu.Lock()
	s.groups = fresh
	s.mu.Unlock()
	return nil
}

// ListGroups returns a copy of every group, newest first.
func (s *Store) ListGroups() []models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, *g.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetGroup returns a copy of one group.
func (s *Store) GetGroup(id string) (models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	return *g.Clone(), nil
}

// GroupStats aggregates the group's expenses. When baseline is non-nil the
// result carries per-category trends against it.
func (s *Store) GroupStats(id string, baseline *calculator.Stats) (calculator.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return calculator.Stats{}, ErrGroupNotFound
	}
	if baseline != nil {
		return calculator.AggregateWithBaseline(g, g.Expenses, *baseline), nil
	}
	return calculator.Aggregate(g, g.Expenses), nil
}

// BudgetStatus evaluates the group's spend against its budget. Returns
// (nil, nil) when the group has no budget.
func (s *Store) BudgetStatus(id string) (*calculator.BudgetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	stats := calculator.Aggregate(g, g.Expenses)
	return calculator.EvaluateBudget(g.Budget, stats, s.warnThreshold), nil
}

// tempID returns a temporary local identifier for an optimistically created
// entity. The store of record assigns the real id on confirmation.
func tempID() string {
	return "local-" + uuid.NewString()
}
