package artifact

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/deps"
	"github.com/HendryAvila/specgate/internal/specerr"
)

// AddCandidate places a node in pending and runs conflict detection. An
// unknown node ID fails with specerr.ErrNotFound and changes nothing; use
// RecordUnrecognized to park it. Re-adding a pending node updates its
// value. Re-adding a validated node with a different value puts the new
// value in pending, and detection settles it by latest-wins.
func (m *Manager) AddCandidate(req CandidateRequest) (AddResult, error) {
	const op = "artifact.add_candidate"
	node, err := m.cat.Node(req.NodeID)
	if err != nil {
		return AddResult{}, err
	}
	value, err := m.normalizeValue(op, node, req.Value)
	if err != nil {
		return AddResult{}, err
	}

	var out AddResult
	err = m.atomically(op, func(tx *txn) error {
		entry, changed := m.put(tx, node, value, req.OriginalRequest, req.SubstitutionNote)
		if !changed {
			out = AddResult{Entry: entry, Unchanged: true, Detection: Detection{Active: cloneConflicts(m.st.active)}}
			return nil
		}
		d, err := m.detect(tx)
		if err != nil {
			return err
		}
		out = AddResult{Entry: entry, Detection: d}
		return nil
	})
	return out, err
}

// put stores a pending entry. It reports false, and changes nothing, when
// the node is already validated with the same value.
func (m *Manager) put(tx *txn, node catalogue.Node, value, original, note string) (Entry, bool) {
	if existing, ok := m.st.validated[node.ID]; ok && existing.Value == value {
		if _, pending := m.st.pending[node.ID]; !pending {
			return existing, false
		}
	}

	entry := Entry{
		NodeID:           node.ID,
		Field:            node.Field,
		Value:            value,
		OriginalRequest:  original,
		SubstitutionNote: note,
		AddedAt:          tx.now,
		UpdatedAt:        tx.now,
	}
	if existing, ok := m.st.pending[node.ID]; ok {
		entry.AddedAt = existing.AddedAt
		if original == "" {
			entry.OriginalRequest = existing.OriginalRequest
		}
	}
	m.st.pending[node.ID] = entry

	cp := entry
	tx.emit(Event{Type: EventCandidateAdded, Node: node.ID, Entry: &cp})
	return entry, true
}

// normalizeValue trims value, falls back to the node's default and then
// its name, and enforces the length limit.
func (m *Manager) normalizeValue(op string, node catalogue.Node, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = node.Default
	}
	if value == "" {
		value = node.Name
	}
	if !utf8.ValidString(value) {
		return "", specerr.Invalid(op, string(node.ID), errors.New("value is not valid UTF-8"))
	}
	if n := utf8.RuneCountInString(value); n > m.maxValueLen {
		return "", specerr.Invalid(op, string(node.ID), fmt.Errorf("value is %d characters, maximum is %d", n, m.maxValueLen))
	}
	return value, nil
}

// UnrecognizedRequest is the input to RecordUnrecognized.
type UnrecognizedRequest struct {
	Candidate       string
	Value           string
	OriginalRequest string
	Note            string
}

// RecordUnrecognized parks a candidate that matched no catalogue node.
// Recording the same candidate again replaces the earlier record.
func (m *Manager) RecordUnrecognized(req UnrecognizedRequest) (UnrecognizedEntry, error) {
	const op = "artifact.record_unrecognized"
	candidate := strings.TrimSpace(req.Candidate)
	if candidate == "" {
		return UnrecognizedEntry{}, specerr.Invalid(op, "", errors.New("candidate is required"))
	}
	if _, err := m.cat.Node(catalogue.NodeID(candidate)); err == nil {
		return UnrecognizedEntry{}, specerr.Invalid(op, candidate, errors.New("candidate is a catalogue node; add it as a candidate instead"))
	}

	var out UnrecognizedEntry
	err := m.atomically(op, func(tx *txn) error {
		out = UnrecognizedEntry{
			Candidate:       candidate,
			Value:           strings.TrimSpace(req.Value),
			OriginalRequest: req.OriginalRequest,
			Note:            req.Note,
			RecordedAt:      tx.now,
		}
		m.st.unrecognized[candidate] = out
		tx.emit(Event{Type: EventUnrecognizedRecorded, Node: catalogue.NodeID(candidate)})
		return nil
	})
	return out, err
}

// RetryUnrecognized maps a parked candidate onto a catalogue node, moves
// it to pending and runs detection.
func (m *Manager) RetryUnrecognized(candidate string, nodeID catalogue.NodeID) (AddResult, error) {
	const op = "artifact.retry_unrecognized"
	rec, ok := m.st.unrecognized[candidate]
	if !ok {
		return AddResult{}, specerr.NotFound(op, candidate)
	}
	node, err := m.cat.Node(nodeID)
	if err != nil {
		return AddResult{}, err
	}
	value, err := m.normalizeValue(op, node, rec.Value)
	if err != nil {
		return AddResult{}, err
	}

	note := fmt.Sprintf("resolved from unrecognized candidate %q", candidate)
	if rec.Note != "" {
		note += ": " + rec.Note
	}

	var out AddResult
	err = m.atomically(op, func(tx *txn) error {
		delete(m.st.unrecognized, candidate)
		entry, changed := m.put(tx, node, value, rec.OriginalRequest, note)
		to := PartitionPending
		if !changed {
			to = PartitionValidated
		}
		m.move(tx, PartitionUnrecognized, to, []catalogue.NodeID{node.ID}, TriggerUserAction, "")
		d, err := m.detect(tx)
		if err != nil {
			return err
		}
		out = AddResult{Entry: entry, Detection: d}
		return nil
	})
	return out, err
}

// RemoveNode drops a tracked node at the caller's request. Conflicts that
// named it are closed as superseded.
func (m *Manager) RemoveNode(id catalogue.NodeID) (Movement, []Conflict, error) {
	const op = "artifact.remove_node"
	var (
		mv         Movement
		superseded []Conflict
	)
	err := m.atomically(op, func(tx *txn) error {
		_, partition, ok := m.st.entry(id)
		if !ok {
			return specerr.NotFound(op, string(id))
		}
		delete(m.st.pending, id)
		delete(m.st.validated, id)
		mv = m.move(tx, partition, PartitionRemoved, []catalogue.NodeID{id}, TriggerUserAction, "")
		superseded = m.pruneStale(tx)
		m.settle(tx)
		return nil
	})
	return mv, superseded, err
}

// AutoSatisfyResult is returned by Manager.AutoSatisfy.
type AutoSatisfyResult struct {
	Fulfillment deps.Fulfillment `json:"fulfillment"`
	Detection   Detection        `json:"detection"`
}

// AutoSatisfy fills id's unmet requirement categories from the current
// selection. Every chosen node is added to pending with its default value
// and a substitution note naming the requirement, then detection runs.
// Categories with no conflict-free candidate are reported as unresolved.
func (m *Manager) AutoSatisfy(id catalogue.NodeID) (AutoSatisfyResult, error) {
	const op = "artifact.auto_satisfy"
	if _, err := m.cat.Node(id); err != nil {
		return AutoSatisfyResult{}, err
	}

	var out AutoSatisfyResult
	err := m.atomically(op, func(tx *txn) error {
		f, err := m.resolver.AutoSatisfy(id, m.st.selection())
		if err != nil {
			return err
		}
		for _, add := range f.Added {
			node, err := m.cat.Node(add.Node)
			if err != nil {
				return err
			}
			value, err := m.normalizeValue(op, node, "")
			if err != nil {
				return err
			}
			note := fmt.Sprintf("auto-selected to satisfy %s requirement %q", id, add.Category)
			m.put(tx, node, value, "", note)
		}
		for _, cat := range f.Unresolved {
			m.log.Info("dependency category unsatisfiable", "node", id, "category", cat.Name)
		}
		d, err := m.detect(tx)
		if err != nil {
			return err
		}
		out = AutoSatisfyResult{Fulfillment: f, Detection: d}
		return nil
	})
	return out, err
}
