package artifact

import (
	"errors"
	"fmt"
	"slices"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/specerr"
)

// ResolveConflict applies the chosen option to an active conflict. The
// losing nodes are removed from pending and validated, then the result is
// verified: losers gone, winners present. A failed verification restores
// the previous state and returns specerr.ErrIntegrityViolation; the
// conflict stays active with its cycle count unchanged.
func (m *Manager) ResolveConflict(conflictID, optionID string) (Resolution, error) {
	const op = "artifact.resolve_conflict"
	var out Resolution
	err := m.atomically(op, func(tx *txn) error {
		idx := m.st.activeIndex(conflictID)
		if idx < 0 {
			return specerr.NotFound(op, conflictID)
		}
		c := m.st.active[idx]
		removed, kept, err := m.apply(tx, op, c, optionID)
		if err != nil {
			return err
		}
		m.st.active = slices.Delete(m.st.active, idx, idx+1)
		out = m.closeResolved(tx, c, OutcomeChosen, optionID, removed, kept)
		return nil
	})
	return out, err
}

// ResolveEscalated applies an option to an escalated conflict, for the
// manual handling escalation defers to.
func (m *Manager) ResolveEscalated(conflictID, optionID string) (Resolution, error) {
	const op = "artifact.resolve_escalated"
	var out Resolution
	err := m.atomically(op, func(tx *txn) error {
		idx := m.st.escalatedIndex(conflictID)
		if idx < 0 {
			return specerr.NotFound(op, conflictID)
		}
		c := m.st.escalated[idx]
		removed, kept, err := m.apply(tx, op, c, optionID)
		if err != nil {
			return err
		}
		m.st.escalated = slices.Delete(m.st.escalated, idx, idx+1)
		out = m.closeResolved(tx, c, OutcomeManual, optionID, removed, kept)
		return nil
	})
	return out, err
}

func (m *Manager) closeResolved(tx *txn, c Conflict, outcome, optionID string, removed, kept []catalogue.NodeID) Resolution {
	closed := closeConflict(c, StatusResolved, outcome, optionID, tx.now)
	m.st.resolved = append(m.st.resolved, closed)
	m.log.Info("conflict resolved",
		"conflict_id", c.ID, "kind", c.Kind, "pair_key", c.PairKey, "option", optionID, "cycle", c.Cycles)

	cp := closed.clone()
	tx.emit(Event{Type: EventConflictResolved, Node: c.Candidate, Conflict: &cp})

	superseded := m.pruneStale(tx)
	m.settle(tx)
	return Resolution{
		Conflict:   closed.clone(),
		Removed:    removed,
		Kept:       kept,
		Superseded: superseded,
		State:      m.st.state,
	}
}

// apply removes the option's losers and verifies the post-conditions.
func (m *Manager) apply(tx *txn, op string, c Conflict, optionID string) (removed, kept []catalogue.NodeID, err error) {
	opt, ok := c.Option(optionID)
	if !ok {
		return nil, nil, specerr.NotFoundf(op, optionID, "conflict %s has no option %q", c.ID, optionID)
	}
	switch opt.Kind {
	case OptionKeepCandidate, OptionKeepExisting:
	case OptionAcceptValue, OptionRevertValue:
		return nil, nil, specerr.Invalid(op, optionID,
			fmt.Errorf("option kind %q only applies to cross-artifact conflicts, which settle automatically", opt.Kind))
	default:
		return nil, nil, specerr.Internal(op, optionID, fmt.Errorf("unhandled option kind %q", opt.Kind))
	}

	for _, id := range opt.Keep {
		if !m.st.tracked(id) {
			return nil, nil, specerr.Invalid(op, c.ID, fmt.Errorf("winning node %s is no longer tracked", id))
		}
	}

	fromPending := []catalogue.NodeID{}
	fromValidated := []catalogue.NodeID{}
	for _, id := range opt.Drop {
		if _, ok := m.st.pending[id]; ok {
			fromPending = append(fromPending, id)
			delete(m.st.pending, id)
		}
		if _, ok := m.st.validated[id]; ok {
			fromValidated = append(fromValidated, id)
			delete(m.st.validated, id)
		}
	}
	losers := append(slices.Clone(fromPending), fromValidated...)

	if m.hooks.afterRemoval != nil {
		m.hooks.afterRemoval(m.st, losers)
	}

	var violations []error
	for _, id := range opt.Drop {
		if m.st.tracked(id) {
			violations = append(violations, fmt.Errorf("losing node %s is still present", id))
		}
	}
	for _, id := range opt.Keep {
		if !m.st.tracked(id) {
			violations = append(violations, fmt.Errorf("winning node %s vanished", id))
		}
	}
	if len(violations) > 0 {
		err := errors.Join(violations...)
		m.log.Warn("resolution rolled back",
			"conflict_id", c.ID, "kind", c.Kind, "pair_key", c.PairKey, "option", optionID, "cycle", c.Cycles, "error", err)
		return nil, nil, specerr.Integrity(op, c.ID, err)
	}

	if len(fromPending) > 0 {
		m.move(tx, PartitionPending, PartitionRemoved, fromPending, TriggerConflictResolved, c.ID)
	}
	if len(fromValidated) > 0 {
		m.move(tx, PartitionValidated, PartitionRemoved, fromValidated, TriggerConflictResolved, c.ID)
	}
	return losers, slices.Clone(opt.Keep), nil
}

// IncrementCycle records a failed or rejected resolution attempt. When the
// count reaches the cycle cap the conflict moves to the escalated log and
// stops blocking.
func (m *Manager) IncrementCycle(conflictID string) (CycleResult, error) {
	const op = "artifact.increment_cycle"
	var out CycleResult
	err := m.atomically(op, func(tx *txn) error {
		idx := m.st.activeIndex(conflictID)
		if idx < 0 {
			return specerr.NotFound(op, conflictID)
		}
		c := m.st.active[idx]
		c.Cycles++
		c.UpdatedAt = tx.now

		if c.Cycles < m.cycleCap {
			m.st.active[idx] = c
			m.log.Info("conflict resolution attempt rejected",
				"conflict_id", c.ID, "kind", c.Kind, "pair_key", c.PairKey, "cycle", c.Cycles)
			cp := c.clone()
			tx.emit(Event{Type: EventConflictCycled, Node: c.Candidate, Conflict: &cp})
			out = CycleResult{Conflict: c.clone(), State: m.st.state}
			return nil
		}

		m.st.active = slices.Delete(m.st.active, idx, idx+1)
		escalated := closeConflict(c, StatusEscalated, OutcomeEscalated, "", tx.now)
		m.st.escalated = append(m.st.escalated, escalated)
		m.log.Warn("conflict escalated",
			"conflict_id", c.ID, "kind", c.Kind, "pair_key", c.PairKey, "cycle", c.Cycles)
		cp := escalated.clone()
		tx.emit(Event{Type: EventConflictEscalated, Node: c.Candidate, Conflict: &cp})

		m.settle(tx)
		out = CycleResult{Conflict: escalated.clone(), Escalated: true, State: m.st.state}
		return nil
	})
	return out, err
}
