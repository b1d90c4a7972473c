package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/catalogue/catalogtest"
	"github.com/HendryAvila/specgate/internal/session"
)

func newSession(t *testing.T) (*session.Session, *Metrics) {
	t.Helper()
	s, err := session.Build(catalogtest.Load(t), session.Options{})
	require.NoError(t, err)
	m := New(prometheus.NewRegistry())
	t.Cleanup(m.Attach(s))
	return s, m
}

func addConflict(t *testing.T, s *session.Session) artifact.Conflict {
	t.Helper()
	var c artifact.Conflict
	err := s.Do(func(mgr *artifact.Manager) error {
		if _, err := mgr.AddCandidate(artifact.CandidateRequest{NodeID: "P10"}); err != nil {
			return err
		}
		res, err := mgr.AddCandidate(artifact.CandidateRequest{NodeID: "P11"})
		if err != nil {
			return err
		}
		require.Len(t, res.Detection.New, 1)
		c = res.Detection.New[0]
		return nil
	})
	require.NoError(t, err)
	return c
}

func TestMetrics_DetectAndResolve(t *testing.T) {
	s, m := newSession(t)
	c := addConflict(t, s)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsDetected.WithLabelValues("exclusion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConflicts))

	require.NoError(t, s.Do(func(mgr *artifact.Manager) error {
		_, err := mgr.ResolveConflict(c.ID, "keep-P11")
		return err
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsResolved.WithLabelValues("exclusion", artifact.OutcomeChosen)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesMoved.WithLabelValues(string(artifact.TriggerConflictResolved))))
}

func TestMetrics_EscalationThenManualResolve(t *testing.T) {
	s, m := newSession(t)
	c := addConflict(t, s)

	require.NoError(t, s.Do(func(mgr *artifact.Manager) error {
		for range mgr.CycleCap() {
			if _, err := mgr.IncrementCycle(c.ID); err != nil {
				return err
			}
		}
		return nil
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsEscalated.WithLabelValues("exclusion")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConflicts))

	require.NoError(t, s.Do(func(mgr *artifact.Manager) error {
		_, err := mgr.ResolveEscalated(c.ID, "keep-P10")
		return err
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsResolved.WithLabelValues("exclusion", artifact.OutcomeManual)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConflicts), "escalated conflicts are not decremented twice")
}

func TestMetrics_PromotionCountsNodes(t *testing.T) {
	s, m := newSession(t)
	require.NoError(t, s.Do(func(mgr *artifact.Manager) error {
		for _, id := range []catalogue.NodeID{"P1", "P20", "P22"} {
			if _, err := mgr.AddCandidate(artifact.CandidateRequest{NodeID: id}); err != nil {
				return err
			}
		}
		_, err := mgr.PromoteNonConflicting()
		return err
	}))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NodesMoved.WithLabelValues(string(artifact.TriggerValidationPassed))))
}

func TestMetrics_UnsubscribeStopsCounting(t *testing.T) {
	s, err := session.Build(catalogtest.Load(t), session.Options{})
	require.NoError(t, err)
	m := New(prometheus.NewRegistry())
	m.Attach(s)()

	addConflict(t, s)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConflictsDetected.WithLabelValues("exclusion")))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
