package artifact

import (
	"maps"
	"slices"

	"github.com/HendryAvila/specgate/internal/catalogue"
)

// store is every piece of mutable manager state. Rollback replaces the
// live store with a clone taken before the mutation began, so nothing
// outside store may hold pointers into it.
type store struct {
	state EngineState

	validated    map[catalogue.NodeID]Entry
	pending      map[catalogue.NodeID]Entry
	unrecognized map[string]UnrecognizedEntry

	// active is kept in registration order.
	active    []Conflict
	resolved  []Conflict
	escalated []Conflict

	movements []Movement
}

func newStore() *store {
	return &store{
		state:        StateProcessing,
		validated:    map[catalogue.NodeID]Entry{},
		pending:      map[catalogue.NodeID]Entry{},
		unrecognized: map[string]UnrecognizedEntry{},
	}
}

// snapshot returns a deep copy.
func (s *store) snapshot() *store {
	return &store{
		state:        s.state,
		validated:    maps.Clone(s.validated),
		pending:      maps.Clone(s.pending),
		unrecognized: maps.Clone(s.unrecognized),
		active:       cloneConflicts(s.active),
		resolved:     cloneConflicts(s.resolved),
		escalated:    cloneConflicts(s.escalated),
		movements:    cloneMovements(s.movements),
	}
}

// selection is validated ∪ pending.
func (s *store) selection() catalogue.Selection {
	sel := make(catalogue.Selection, len(s.validated)+len(s.pending))
	for id := range s.validated {
		sel.Add(id)
	}
	for id := range s.pending {
		sel.Add(id)
	}
	return sel
}

func (s *store) tracked(id catalogue.NodeID) bool {
	_, inValidated := s.validated[id]
	_, inPending := s.pending[id]
	return inValidated || inPending
}

func (s *store) entry(id catalogue.NodeID) (Entry, Partition, bool) {
	if e, ok := s.pending[id]; ok {
		return e, PartitionPending, true
	}
	if e, ok := s.validated[id]; ok {
		return e, PartitionValidated, true
	}
	return Entry{}, "", false
}

func (s *store) activeIndex(id string) int {
	return slices.IndexFunc(s.active, func(c Conflict) bool { return c.ID == id })
}

func (s *store) escalatedIndex(id string) int {
	return slices.IndexFunc(s.escalated, func(c Conflict) bool { return c.ID == id })
}

func (s *store) activeKeys() map[string]bool {
	keys := make(map[string]bool, len(s.active))
	for _, c := range s.active {
		keys[c.PairKey] = true
	}
	return keys
}

func sortedEntries(m map[catalogue.NodeID]Entry) []Entry {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

func cloneConflicts(in []Conflict) []Conflict {
	if in == nil {
		return nil
	}
	out := make([]Conflict, len(in))
	for i, c := range in {
		out[i] = c.clone()
	}
	return out
}

func cloneMovements(in []Movement) []Movement {
	if in == nil {
		return nil
	}
	out := make([]Movement, len(in))
	for i, m := range in {
		out[i] = m.clone()
	}
	return out
}
