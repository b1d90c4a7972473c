package artifact

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/detector"
	"github.com/HendryAvila/specgate/internal/specerr"
)

// DetectConflicts runs the detector for every pending node against the
// full selection and registers what it finds. Calling it again without an
// intervening mutation registers nothing new.
func (m *Manager) DetectConflicts() (Detection, error) {
	var out Detection
	err := m.atomically("artifact.detect_conflicts", func(tx *txn) error {
		d, err := m.detect(tx)
		out = d
		return err
	})
	return out, err
}

// detect settles values tracked twice, drops stale conflicts, then
// registers every new conflict. Pair keys already active are skipped, as
// are keys of escalated conflicts whose nodes are all still tracked.
func (m *Manager) detect(tx *txn) (Detection, error) {
	var d Detection
	autoResolved, err := m.resolveCrossArtifact(tx)
	if err != nil {
		return Detection{}, err
	}
	d.AutoResolved = autoResolved
	d.Superseded = m.pruneStale(tx)

	selection := m.st.selection()
	known := m.st.activeKeys()
	for key := range m.deferredKeys() {
		known[key] = true
	}

	for _, id := range slices.Sorted(maps.Keys(m.st.pending)) {
		found, err := m.detector.Detect(id, selection)
		if err != nil {
			return Detection{}, err
		}
		if m.hooks.detected != nil {
			found = m.hooks.detected(found)
		}
		for _, fc := range found {
			if known[fc.PairKey] {
				continue
			}
			known[fc.PairKey] = true
			c, err := m.register(tx, fc)
			if err != nil {
				return Detection{}, err
			}
			d.New = append(d.New, c)
		}
	}

	m.settle(tx)
	d.Active = cloneConflicts(m.st.active)
	return d, nil
}

// deferredKeys returns the pair keys of escalated conflicts that still
// apply: every node they contest is tracked.
func (m *Manager) deferredKeys() map[string]bool {
	keys := map[string]bool{}
	for _, c := range m.st.escalated {
		if m.allTracked(c) {
			keys[c.PairKey] = true
		}
	}
	return keys
}

// allTracked reports whether every contested node is still tracked. Nodes
// a field constraint merely affects do not count.
func (m *Manager) allTracked(c Conflict) bool {
	for _, id := range c.Contested() {
		if !m.st.tracked(id) {
			return false
		}
	}
	return true
}

func (m *Manager) register(tx *txn, fc detector.Conflict) (Conflict, error) {
	options, err := buildOptions(fc)
	if err != nil {
		return Conflict{}, err
	}
	c := Conflict{
		ID:        uuid.NewString(),
		Status:    StatusActive,
		Conflict:  fc.Clone(),
		Options:   options,
		CreatedAt: tx.now,
		UpdatedAt: tx.now,
	}
	m.st.active = append(m.st.active, c)
	m.log.Info("conflict detected",
		"conflict_id", c.ID, "kind", c.Kind, "pair_key", c.PairKey, "candidate", c.Candidate)

	cp := c.clone()
	tx.emit(Event{Type: EventConflictDetected, Node: c.Candidate, Conflict: &cp})
	return c.clone(), nil
}

// resolveCrossArtifact settles every node present in both pending and
// validated. The pending value is newer and always wins; the decision is
// logged and recorded as a resolved conflict.
func (m *Manager) resolveCrossArtifact(tx *txn) ([]Conflict, error) {
	var out []Conflict
	for _, id := range slices.Sorted(maps.Keys(m.st.pending)) {
		previous, ok := m.st.validated[id]
		if !ok {
			continue
		}
		current := m.st.pending[id]
		delete(m.st.validated, id)
		if previous.Value == current.Value {
			continue
		}

		fc := detector.Conflict{
			Kind:        detector.KindCrossArtifact,
			Candidate:   id,
			Field:       current.Field,
			Description: fmt.Sprintf("%s changed from %q to %q", id, previous.Value, current.Value),
			PairKey:     detector.PairKey(id),
		}
		options, err := buildOptions(fc)
		if err != nil {
			return nil, err
		}
		closedAt := tx.now
		c := Conflict{
			ID:           uuid.NewString(),
			Status:       StatusResolved,
			Conflict:     fc,
			Options:      options,
			Outcome:      OutcomeAutoLatestWins,
			ChosenOption: acceptValueID,
			CreatedAt:    tx.now,
			UpdatedAt:    tx.now,
			ClosedAt:     &closedAt,
		}
		m.st.resolved = append(m.st.resolved, c)
		m.log.Info("cross-artifact conflict resolved by latest value",
			"conflict_id", c.ID, "node", id, "previous", previous.Value, "current", current.Value)

		detected := c.clone()
		tx.emit(Event{Type: EventConflictDetected, Node: id, Conflict: &detected})
		resolved := c.clone()
		tx.emit(Event{Type: EventConflictResolved, Node: id, Conflict: &resolved})
		m.move(tx, PartitionValidated, PartitionPending, []catalogue.NodeID{id}, TriggerLatestWins, c.ID)
		out = append(out, c.clone())
	}
	return out, nil
}

// pruneStale closes active conflicts that contest a node no longer tracked.
func (m *Manager) pruneStale(tx *txn) []Conflict {
	var out []Conflict
	kept := m.st.active[:0:0]
	for _, c := range m.st.active {
		if m.allTracked(c) {
			kept = append(kept, c)
			continue
		}
		closed := closeConflict(c, StatusResolved, OutcomeSuperseded, "", tx.now)
		m.st.resolved = append(m.st.resolved, closed)
		m.log.Info("conflict superseded",
			"conflict_id", c.ID, "kind", c.Kind, "pair_key", c.PairKey, "cycle", c.Cycles)

		cp := closed.clone()
		tx.emit(Event{Type: EventConflictResolved, Node: c.Candidate, Conflict: &cp})
		out = append(out, closed.clone())
	}
	m.st.active = kept
	return out
}

func closeConflict(c Conflict, status ConflictStatus, outcome, option string, at time.Time) Conflict {
	c = c.clone()
	c.Status = status
	c.Outcome = outcome
	c.ChosenOption = option
	c.UpdatedAt = at
	closedAt := at
	c.ClosedAt = &closedAt
	return c
}

const (
	keepExistingID = "keep-existing"
	acceptValueID  = "accept-value"
	revertValueID  = "revert-value"
)

// buildOptions lists the ways to settle fc: keep the candidate first, then
// keep what was already selected. An unknown kind is an internal error so
// the enclosing operation rolls back.
func buildOptions(fc detector.Conflict) ([]ResolutionOption, error) {
	switch fc.Kind {
	case detector.KindFieldOverwrite, detector.KindExclusion, detector.KindCascade:
		return keepOptions(fc.Candidate, fc.Opposing), nil
	case detector.KindFieldConstraint:
		excluders := slices.DeleteFunc(slices.Clone(fc.Excluders), func(id catalogue.NodeID) bool {
			return id == fc.Candidate
		})
		return keepOptions(fc.Candidate, excluders), nil
	case detector.KindCrossArtifact:
		return []ResolutionOption{
			{
				ID:    acceptValueID,
				Kind:  OptionAcceptValue,
				Label: fmt.Sprintf("Use the new value for %s", fc.Candidate),
				Keep:  []catalogue.NodeID{fc.Candidate},
			},
			{
				ID:    revertValueID,
				Kind:  OptionRevertValue,
				Label: fmt.Sprintf("Keep the previous value for %s", fc.Candidate),
				Keep:  []catalogue.NodeID{fc.Candidate},
			},
		}, nil
	default:
		return nil, specerr.Internal("artifact.build_options", fc.PairKey, fmt.Errorf("unhandled conflict kind %q", fc.Kind))
	}
}

func keepOptions(candidate catalogue.NodeID, opposing []catalogue.NodeID) []ResolutionOption {
	existingID := keepExistingID
	if len(opposing) == 1 {
		existingID = "keep-" + string(opposing[0])
	}
	return []ResolutionOption{
		{
			ID:    "keep-" + string(candidate),
			Kind:  OptionKeepCandidate,
			Label: fmt.Sprintf("Keep %s, drop %s", candidate, joinIDs(opposing)),
			Keep:  []catalogue.NodeID{candidate},
			Drop:  slices.Clone(opposing),
		},
		{
			ID:    existingID,
			Kind:  OptionKeepExisting,
			Label: fmt.Sprintf("Keep %s, drop %s", joinIDs(opposing), candidate),
			Keep:  slices.Clone(opposing),
			Drop:  []catalogue.NodeID{candidate},
		},
	}
}

func joinIDs(ids []catalogue.NodeID) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += string(id)
	}
	return out
}
