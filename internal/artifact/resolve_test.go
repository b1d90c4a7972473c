package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/detector"
	"github.com/HendryAvila/specgate/internal/specerr"
)

func TestExclusionScenario_KeepCandidate(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")

	res := add(t, m, "P11")
	require.Len(t, res.Detection.New, 1)
	c := res.Detection.New[0]
	assert.Equal(t, detector.KindExclusion, c.Kind)
	assert.Equal(t, "incompatible power classes", c.Reason)
	require.Len(t, c.Options, 2)
	assert.Equal(t, "keep-P11", c.Options[0].ID)
	assert.Equal(t, OptionKeepCandidate, c.Options[0].Kind)
	assert.Equal(t, "keep-P10", c.Options[1].ID)
	assert.Equal(t, OptionKeepExisting, c.Options[1].Kind)

	rec := &recorder{}
	m.Subscribe(rec.record)

	r, err := m.ResolveConflict(c.ID, "keep-P11")
	require.NoError(t, err)
	assert.Equal(t, []catalogue.NodeID{"P10"}, r.Removed)
	assert.Equal(t, []catalogue.NodeID{"P11"}, r.Kept)
	assert.Equal(t, StatusResolved, r.Conflict.Status)
	assert.Equal(t, OutcomeChosen, r.Conflict.Outcome)
	assert.Equal(t, "keep-P11", r.Conflict.ChosenOption)
	assert.NotNil(t, r.Conflict.ClosedAt)
	assert.Equal(t, StateProcessing, r.State)

	s := m.State()
	assert.Empty(t, s.Validated)
	require.Len(t, s.Pending, 1)
	assert.Equal(t, catalogue.NodeID("P11"), s.Pending[0].NodeID)
	assert.Empty(t, s.Active)
	require.Len(t, s.Resolved, 1)

	last := s.Movements[len(s.Movements)-1]
	assert.Equal(t, PartitionValidated, last.From)
	assert.Equal(t, PartitionRemoved, last.To)
	assert.Equal(t, TriggerConflictResolved, last.Trigger)
	assert.Equal(t, c.ID, last.ConflictID)

	assert.Equal(t, []EventType{
		EventNodesMoved, EventConflictResolved, EventStateChanged, EventStateChanged,
	}, rec.types())
	assert.Equal(t, StateClearing, rec.events[2].To)
	assert.Equal(t, StateProcessing, rec.events[3].To)
	assertInvariants(t, m)
}

func TestExclusionScenario_KeepExisting(t *testing.T) {
	m := newManager(t)
	add(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]

	r, err := m.ResolveConflict(c.ID, "keep-P10")
	require.NoError(t, err)
	assert.Equal(t, []catalogue.NodeID{"P11"}, r.Removed)

	s := m.State()
	require.Len(t, s.Pending, 1)
	assert.Equal(t, catalogue.NodeID("P10"), s.Pending[0].NodeID)
	assert.Equal(t, PartitionPending, s.Movements[len(s.Movements)-1].From)
}

func TestResolveConflict_UnknownIDs(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]
	before := m.State()

	_, err := m.ResolveConflict("missing", "keep-P11")
	assert.ErrorIs(t, err, specerr.ErrNotFound)

	_, err = m.ResolveConflict(c.ID, "keep-P99")
	assert.ErrorIs(t, err, specerr.ErrNotFound)

	assert.Equal(t, before, m.State())
}

func TestResolveConflict_RollbackOnFailedVerification(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]

	_, err := m.IncrementCycle(c.ID)
	require.NoError(t, err)

	// The losing node survives removal, so verification must fail.
	m.hooks.afterRemoval = func(st *store, losers []catalogue.NodeID) {
		require.Equal(t, []catalogue.NodeID{"P10"}, losers)
		st.pending["P10"] = Entry{NodeID: "P10", Value: "corrupt"}
	}
	rec := &recorder{}
	m.Subscribe(rec.record)
	before := m.State()

	_, err = m.ResolveConflict(c.ID, "keep-P11")
	require.ErrorIs(t, err, specerr.ErrIntegrityViolation)
	assert.Contains(t, err.Error(), "losing node P10 is still present")

	assert.Equal(t, before, m.State())
	assert.Equal(t, "A", m.st.validated["P10"].Value)
	_, pending := m.st.pending["P10"]
	assert.False(t, pending)

	active := m.ActiveConflicts()
	require.Len(t, active, 1)
	assert.Equal(t, c.ID, active[0].ID)
	assert.Equal(t, 1, active[0].Cycles)
	assert.Empty(t, m.ResolvedConflicts())
	assert.Equal(t, StateBlocked, m.EngineState())
	assert.Empty(t, rec.events, "a rolled back resolution publishes nothing")
}

func TestResolveConflict_RollbackWhenWinnerVanishes(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]

	m.hooks.afterRemoval = func(st *store, _ []catalogue.NodeID) {
		delete(st.pending, "P11")
	}

	_, err := m.ResolveConflict(c.ID, "keep-P11")
	require.ErrorIs(t, err, specerr.ErrIntegrityViolation)
	assert.Contains(t, err.Error(), "winning node P11 vanished")

	m.hooks.afterRemoval = nil
	_, tracked := m.st.pending["P11"]
	assert.True(t, tracked)
	_, tracked = m.st.validated["P10"]
	assert.True(t, tracked)

	_, err = m.ResolveConflict(c.ID, "keep-P11")
	require.NoError(t, err, "the conflict is still resolvable after a rollback")
}

func TestIncrementCycle_EscalatesAtCap(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]

	for i := 1; i <= 2; i++ {
		r, err := m.IncrementCycle(c.ID)
		require.NoError(t, err)
		assert.False(t, r.Escalated)
		assert.Equal(t, i, r.Conflict.Cycles)
		assert.Equal(t, StateBlocked, r.State)
	}

	r, err := m.IncrementCycle(c.ID)
	require.NoError(t, err)
	assert.True(t, r.Escalated)
	assert.Equal(t, 3, r.Conflict.Cycles)
	assert.Equal(t, StatusEscalated, r.Conflict.Status)
	assert.Equal(t, StateProcessing, r.State)

	assert.Empty(t, m.ActiveConflicts())
	escalated := m.EscalatedConflicts()
	require.Len(t, escalated, 1)
	assert.Equal(t, c.ID, escalated[0].ID)
	assert.Empty(t, m.BlockingReason())

	_, err = m.IncrementCycle(c.ID)
	assert.ErrorIs(t, err, specerr.ErrNotFound)
}

func TestIncrementCycle_CustomCap(t *testing.T) {
	m := newManager(t, WithCycleCap(1))
	validate(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]

	r, err := m.IncrementCycle(c.ID)
	require.NoError(t, err)
	assert.True(t, r.Escalated)
}

func TestEscalated_NotRedetectedAndResolvableManually(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]
	for range 3 {
		_, err := m.IncrementCycle(c.ID)
		require.NoError(t, err)
	}

	d, err := m.DetectConflicts()
	require.NoError(t, err)
	assert.Empty(t, d.New, "escalated pair is deferred, not re-raised")
	assert.Equal(t, StateProcessing, m.EngineState())

	_, err = m.ResolveConflict(c.ID, "keep-P10")
	assert.ErrorIs(t, err, specerr.ErrNotFound, "escalated conflicts are not active")

	r, err := m.ResolveEscalated(c.ID, "keep-P10")
	require.NoError(t, err)
	assert.Equal(t, OutcomeManual, r.Conflict.Outcome)
	assert.Equal(t, []catalogue.NodeID{"P11"}, r.Removed)
	assert.Empty(t, m.EscalatedConflicts())
	assert.Empty(t, m.State().Pending)
	assertInvariants(t, m)
}

func TestResolveEscalated_StaleWinner(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")
	c := add(t, m, "P11").Detection.New[0]
	for range 3 {
		_, err := m.IncrementCycle(c.ID)
		require.NoError(t, err)
	}
	_, _, err := m.RemoveNode("P10")
	require.NoError(t, err)

	_, err = m.ResolveEscalated(c.ID, "keep-P10")
	assert.ErrorIs(t, err, specerr.ErrInvalid)
	assert.Len(t, m.EscalatedConflicts(), 1)
}

func TestFieldConstraintScenario(t *testing.T) {
	m := newManager(t)
	validate(t, m, "X1")

	options, err := m.Catalogue().ValidOptionsForField("F", m.Selection())
	require.NoError(t, err)
	assert.Empty(t, options)

	res := add(t, m, "P30")
	require.Len(t, res.Detection.New, 2)
	excl, fc := res.Detection.New[0], res.Detection.New[1]
	assert.Equal(t, detector.KindExclusion, excl.Kind)
	assert.Equal(t, detector.KindFieldConstraint, fc.Kind)
	assert.Equal(t, "keep-P30", fc.Options[0].ID)
	assert.Equal(t, []catalogue.NodeID{"X1"}, fc.Options[0].Drop)

	r, err := m.ResolveConflict(excl.ID, "keep-P30")
	require.NoError(t, err)
	require.Len(t, r.Superseded, 1)
	assert.Equal(t, fc.ID, r.Superseded[0].ID)
	assert.Equal(t, OutcomeSuperseded, r.Superseded[0].Outcome)
	assert.Empty(t, m.ActiveConflicts())
	assert.Equal(t, StateProcessing, m.EngineState())
}

func TestFieldConstraint_SurvivesUnrelatedRemoval(t *testing.T) {
	m := newManager(t)
	validate(t, m, "X1", "P1")

	res := add(t, m, "P30")
	require.Len(t, res.Detection.New, 2)
	fc := res.Detection.New[1]
	require.Equal(t, detector.KindFieldConstraint, fc.Kind)
	assert.Equal(t, []catalogue.NodeID{"P1", "X1"}, fc.Opposing)
	assert.Equal(t, []catalogue.NodeID{"P30", "X1"}, fc.Contested())

	for range 2 {
		_, err := m.IncrementCycle(fc.ID)
		require.NoError(t, err)
	}

	_, superseded, err := m.RemoveNode("P1")
	require.NoError(t, err)
	assert.Empty(t, superseded, "P1 only shares the selection with field F")

	got, err := m.Conflict(fc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, 2, got.Cycles)

	d, err := m.DetectConflicts()
	require.NoError(t, err)
	assert.Empty(t, d.New)
	assert.Empty(t, d.Superseded)

	r, err := m.IncrementCycle(fc.ID)
	require.NoError(t, err)
	assert.True(t, r.Escalated, "the cap counts attempts made before the removal")
	for _, c := range m.ResolvedConflicts() {
		assert.NotEqual(t, fc.ID, c.ID)
	}
}

func TestFieldConstraint_SupersededWhenExcluderRemoved(t *testing.T) {
	m := newManager(t)
	validate(t, m, "X1", "P1")
	fc := add(t, m, "P30").Detection.New[1]
	require.Equal(t, detector.KindFieldConstraint, fc.Kind)

	_, superseded, err := m.RemoveNode("X1")
	require.NoError(t, err)
	require.Len(t, superseded, 2)
	ids := []string{superseded[0].ID, superseded[1].ID}
	assert.Contains(t, ids, fc.ID)
	assert.Empty(t, m.ActiveConflicts())
	assert.Equal(t, StateProcessing, m.EngineState())
}

func TestDetect_UnknownKindRollsBack(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P10")
	m.hooks.detected = func(found []detector.Conflict) []detector.Conflict {
		for i := range found {
			found[i].Kind = "bogus"
		}
		return found
	}
	rec := &recorder{}
	m.Subscribe(rec.record)
	before := m.State()

	_, err := m.AddCandidate(CandidateRequest{NodeID: "P11"})
	require.Error(t, err)
	assert.ErrorIs(t, err, specerr.ErrInternal)
	assert.Equal(t, before, m.State())
	assert.Empty(t, rec.events)

	m.hooks.detected = nil
	res := add(t, m, "P11")
	require.Len(t, res.Detection.New, 1)
	assert.Equal(t, detector.KindExclusion, res.Detection.New[0].Kind)
}

func TestCascadeResolution(t *testing.T) {
	m := newManager(t)
	validate(t, m, "P41")

	res := add(t, m, "C1")
	require.Len(t, res.Detection.New, 1)
	c := res.Detection.New[0]
	assert.Equal(t, detector.KindCascade, c.Kind)
	assert.Equal(t, "C1|P41", c.PairKey)

	_, err := m.ResolveConflict(c.ID, "keep-C1")
	require.NoError(t, err)

	auto, err := m.AutoSatisfy("C1")
	require.NoError(t, err)
	assert.Equal(t, []catalogue.NodeID{"P40"}, auto.Fulfillment.AddedIDs())

	p, err := m.PromoteNonConflicting()
	require.NoError(t, err)
	assert.Equal(t, []catalogue.NodeID{"C1", "P40"}, p.Promoted)
	assertInvariants(t, m)
}
