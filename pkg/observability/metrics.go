package observability

import (
	"context"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records trace events as Prometheus counters.
type Metrics struct {
	events      *prometheus.CounterVec
	activations *prometheus.CounterVec
	snapshots   *prometheus.CounterVec
	runs        *prometheus.GaugeVec
	rollbacks   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_events_total",
			Help: "Trace events emitted by the engine, by type.",
		}, []string{"type"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_node_activations_total",
			Help: "Node activations, by flow and node kind.",
		}, []string{"flow", "kind"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flux_snapshots_total",
			Help: "Snapshots taken, by flow.",
		}, []string{"flow"}),
		runs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flux_runs_open",
			Help: "Runs currently open, by session.",
		}, []string{"session"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flux_rollbacks_total",
			Help: "Transactions rolled back after a failure.",
		}),
	}
	for _, c := range []prometheus.Collector{m.events, m.activations, m.snapshots, m.runs, m.rollbacks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Emit implements domain.EventSink.
func (m *Metrics) Emit(_ context.Context, ev domain.Event) {
	m.events.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case domain.EventNodeActivated:
		m.activations.WithLabelValues(ev.Flow, ev.Kind).Inc()
	case domain.EventSnapshotTaken:
		m.snapshots.WithLabelValues(ev.Flow).Inc()
	case domain.EventRunStarted:
		m.runs.WithLabelValues(ev.Session).Inc()
	case domain.EventRunCompleted, domain.EventRunClosed:
		m.runs.WithLabelValues(ev.Session).Dec()
	case domain.EventRolledBack:
		m.rollbacks.Inc()
	}
}

// Forget drops the per-session series of a closed session.
func (m *Metrics) Forget(session string) {
	m.runs.DeleteLabelValues(session)
}
