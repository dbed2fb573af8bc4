// Package metrics exposes Prometheus instrumentation for the ledger core:
// mutation outcomes, in-flight mutation count, and remote store latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger bundles the ledger's metric vectors. All methods are safe on a nil
// receiver so instrumentation stays optional in tests.
type Ledger struct {
	mutations     *prometheus.CounterVec
	pending       prometheus.Gauge
	remoteLatency *prometheus.HistogramVec
}

// New registers the ledger metrics with the given registerer.
func New(reg prometheus.Registerer) *Ledger {
	factory := promauto.With(reg)
	return &Ledger{
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mutations_total",
			Help: "Mutations by entity, operation and outcome (confirmed, rolled_back, rejected).",
		}, []string{"entity", "operation", "outcome"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_mutations_pending",
			Help: "Mutations currently awaiting confirmation from the remote store.",
		}),
		remoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_remote_request_seconds",
			Help:    "Remote store request duration by method and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
	}
}

// MutationStarted marks one mutation entering the Pending state.
func (m *Ledger) MutationStarted() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

// MutationResolved marks one mutation leaving the Pending state with the
// given outcome.
func (m *Ledger) MutationResolved(entity, operation, outcome string) {
	if m == nil {
		return
	}
	m.pending.Dec()
	m.mutations.WithLabelValues(entity, operation, outcome).Inc()
}

// MutationRejected counts a mutation refused by local validation before any
// state was touched.
func (m *Ledger) MutationRejected(entity, operation string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(entity, operation, "rejected").Inc()
}

// ObserveRemote records one request/response cycle against the remote store.
// Paths carry entity ids, so only the method goes into the label set.
func (m *Ledger) ObserveRemote(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.remoteLatency.WithLabelValues(method, outcome).Observe(d.Seconds())
}
