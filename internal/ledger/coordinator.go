package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/divvyup/ledger/internal/metrics"
)

// recordState tracks a mutation record's lifecycle:
// pending -> confirmed, or pending -> rolled back.
type recordState string

const (
	statePending    recordState = "pending"
	stateConfirmed  recordState = "confirmed"
	stateRolledBack recordState = "rolled_back"
)

// record tracks one in-flight mutation. Records are transient: created when
// the optimistic apply succeeds, destroyed on confirmation or rollback. A
// record stuck in pending is a leak and counts as a defect; tests assert
// PendingCount returns to zero.
type record struct {
	entity    string
	operation string
	key       string
	state     recordState
	started   time.Time
}

// mutation describes one create/update/delete against the remote store.
//
// apply performs validation followed by the optimistic local change and
// returns the rollback closure restoring the exact pre-mutation snapshot.
// If apply returns an error, no state was touched. commit issues the remote
// request and returns a confirm closure that finalizes local state (e.g.
// swapping a temporary id for the server-assigned one).
type mutation struct {
	entity    string
	operation string
	key       string
	apply     func() (rollback func(), err error)
	commit    func(ctx context.Context) (confirm func(), err error)
}

// coordinator serializes mutations per entity key and drives each through
// the optimistic-apply, confirm-or-rollback protocol.
type coordinator struct {
	locks   *keyedFIFO
	metrics *metrics.Ledger

	// refreshMu lets a full-collection refresh wait out every in-flight
	// mutation. Mutations hold it shared; a refresh holds it exclusively,
	// so a swap of the collection can never interleave with a mutation's
	// apply/commit/rollback sequence.
	refreshMu sync.RWMutex

	mu      sync.Mutex
	pending map[*record]struct{}
}

func newCoordinator(m *metrics.Ledger) *coordinator {
	return &coordinator{
		locks:   newKeyedFIFO(),
		metrics: m,
		pending: make(map[*record]struct{}),
	}
}

// quiesce blocks new mutations and waits for every in-flight one to
// resolve. The returned release function lets mutations proceed again.
func (c *coordinator) quiesce() (release func()) {
	c.refreshMu.Lock()
	return c.refreshMu.Unlock
}

// PendingCount reports how many mutation records are awaiting resolution.
func (c *coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// run executes one mutation. At most one mutation per key is in flight at a
// time; later arrivals queue in arrival order and see the state left behind
// by their predecessors. run always resolves the mutation record, even when
// the context is canceled mid-request.
func (c *coordinator) run(ctx context.Context, m mutation) error {
	c.refreshMu.RLock()
	defer c.refreshMu.RUnlock()
	c.locks.lock(m.key)
	defer c.locks.unlock(m.key)

	rollback, err := m.apply()
	if err != nil {
		c.metrics.MutationRejected(m.entity, m.operation)
		return err
	}

	rec := &record{
		entity:    m.entity,
		operation: m.operation,
		key:       m.key,
		state:     statePending,
		started:   time.Now(),
	}
	c.track(rec)
	c.metrics.MutationStarted()

	confirm, err := m.commit(ctx)
	if err != nil {
		rollback()
		c.resolve(rec, stateRolledBack)
		c.metrics.MutationResolved(m.entity, m.operation, string(stateRolledBack))
		slog.Warn("mutation rolled back",
			"entity", m.entity,
			"operation", m.operation,
			"key", m.key,
			"duration_ms", time.Since(rec.started).Milliseconds(),
			"error", err,
		)
		return err
	}

	if confirm != nil {
		confirm()
	}
	c.resolve(rec, stateConfirmed)
	c.metrics.MutationResolved(m.entity, m.operation, string(stateConfirmed))
	slog.Debug("mutation confirmed",
		"entity", m.entity,
		"operation", m.operation,
		"key", m.key,
		"duration_ms", time.Since(rec.started).Milliseconds(),
	)
	return nil
}

func (c *coordinator) track(rec *record) {
	c.mu.Lock()
	c.pending[rec] = struct{}{}
	c.mu.Unlock()
}

func (c *coordinator) resolve(rec *record, state recordState) {
	c.mu.Lock()
	rec.state = state
	delete(c.pending, rec)
	c.mu.Unlock()
}
