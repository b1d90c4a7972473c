// Package metrics exports Prometheus collectors fed by artifact events.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HendryAvila/specgate/internal/artifact"
)

const namespace = "specgate"

// Metrics holds the engine collectors. Build one per registry with New.
type Metrics struct {
	// ConflictsDetected counts conflicts by kind, auto-resolved ones included.
	ConflictsDetected *prometheus.CounterVec
	// ConflictsResolved counts closed conflicts by kind and outcome.
	ConflictsResolved *prometheus.CounterVec
	// ConflictsEscalated counts conflicts that reached the cycle cap.
	ConflictsEscalated *prometheus.CounterVec
	// NodesMoved counts nodes moved between partitions, by trigger.
	NodesMoved *prometheus.CounterVec
	// ActiveConflicts is the number of open conflicts.
	ActiveConflicts prometheus.Gauge
	// ResolutionCycles records the attempt count a conflict closed with.
	ResolutionCycles prometheus.Histogram

	mu     sync.Mutex
	active map[string]bool
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ConflictsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Conflicts detected, by kind.",
		}, []string{"kind"}),
		ConflictsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_resolved_total",
			Help:      "Conflicts closed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ConflictsEscalated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_escalated_total",
			Help:      "Conflicts escalated after reaching the cycle cap, by kind.",
		}, []string{"kind"}),
		NodesMoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_moved_total",
			Help:      "Nodes moved between partitions, by trigger.",
		}, []string{"trigger"}),
		ActiveConflicts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conflicts",
			Help:      "Conflicts currently open.",
		}),
		ResolutionCycles: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_cycles",
			Help:      "Failed resolution attempts a conflict had when it closed or escalated.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		active: make(map[string]bool),
	}
}

// Observe updates the collectors for one event. It is an artifact.Subscriber.
func (m *Metrics) Observe(e artifact.Event) {
	switch e.Type {
	case artifact.EventConflictDetected:
		if e.Conflict == nil {
			return
		}
		m.ConflictsDetected.WithLabelValues(string(e.Conflict.Kind)).Inc()
		if e.Conflict.Status == artifact.StatusActive {
			m.track(e.Conflict.ID, true)
		}
	case artifact.EventConflictResolved:
		if e.Conflict == nil {
			return
		}
		m.ConflictsResolved.WithLabelValues(string(e.Conflict.Kind), e.Conflict.Outcome).Inc()
		m.ResolutionCycles.Observe(float64(e.Conflict.Cycles))
		m.track(e.Conflict.ID, false)
	case artifact.EventConflictEscalated:
		if e.Conflict == nil {
			return
		}
		m.ConflictsEscalated.WithLabelValues(string(e.Conflict.Kind)).Inc()
		m.ResolutionCycles.Observe(float64(e.Conflict.Cycles))
		m.track(e.Conflict.ID, false)
	case artifact.EventNodesMoved:
		if e.Movement == nil {
			return
		}
		m.NodesMoved.WithLabelValues(string(e.Movement.Trigger)).Add(float64(len(e.Movement.Nodes)))
	}
}

// track keeps the gauge in step with the set of open conflict IDs. An
// escalated conflict resolved later was already untracked, so it does
// not decrement twice.
func (m *Metrics) track(id string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open == m.active[id] {
		return
	}
	if open {
		m.active[id] = true
		m.ActiveConflicts.Inc()
		return
	}
	delete(m.active, id)
	m.ActiveConflicts.Dec()
}

// Subscriber is anything events can be subscribed on, such as a
// session.Session or an artifact.Manager.
type Subscriber interface {
	Subscribe(fn artifact.Subscriber, types ...artifact.EventType) func()
}

// Attach subscribes m to the events it counts and returns the
// unsubscribe func.
func (m *Metrics) Attach(src Subscriber) func() {
	return src.Subscribe(m.Observe,
		artifact.EventConflictDetected,
		artifact.EventConflictResolved,
		artifact.EventConflictEscalated,
		artifact.EventNodesMoved,
	)
}
