package artifact

import (
	"maps"
	"slices"

	"github.com/HendryAvila/specgate/internal/catalogue"
)

// PromoteNonConflicting moves every pending node that no conflict contests
// into validated, as one movement. Nodes contested by an active conflict,
// or by an escalated conflict that still applies, stay pending, as do nodes
// whose requirements validated ∪ pending does not satisfy.
func (m *Manager) PromoteNonConflicting() (Promotion, error) {
	const op = "artifact.promote"
	var out Promotion
	err := m.atomically(op, func(tx *txn) error {
		held := map[catalogue.NodeID]HeldBack{}
		for _, c := range m.st.active {
			for _, id := range c.Contested() {
				if _, seen := held[id]; !seen {
					held[id] = HeldBack{Node: id, Reason: HoldActiveConflict, ConflictID: c.ID}
				}
			}
		}
		for _, c := range m.st.escalated {
			if !m.allTracked(c) {
				continue
			}
			for _, id := range c.Contested() {
				if _, seen := held[id]; !seen {
					held[id] = HeldBack{Node: id, Reason: HoldEscalatedConflict, ConflictID: c.ID}
				}
			}
		}

		selection := m.st.selection()
		var promote []catalogue.NodeID
		out = Promotion{Promoted: []catalogue.NodeID{}}
		for _, id := range slices.Sorted(maps.Keys(m.st.pending)) {
			if h, ok := held[id]; ok {
				out.HeldBack = append(out.HeldBack, h)
				continue
			}
			sat, err := m.resolver.CheckSatisfied(id, selection)
			if err != nil {
				return err
			}
			if !sat.Satisfied {
				out.HeldBack = append(out.HeldBack, HeldBack{
					Node:    id,
					Reason:  HoldUnmetDependency,
					Missing: sat.MissingNames(),
				})
				continue
			}
			promote = append(promote, id)
		}

		for _, id := range promote {
			entry := m.st.pending[id]
			entry.UpdatedAt = tx.now
			m.st.validated[id] = entry
		}
		for _, id := range promote {
			delete(m.st.pending, id)
		}
		if len(promote) > 0 {
			mv := m.move(tx, PartitionPending, PartitionValidated, promote, TriggerValidationPassed, "")
			out.Movement = &mv
			m.log.Info("nodes promoted", "count", len(promote), "held_back", len(out.HeldBack))
		}
		out.Promoted = append(out.Promoted, promote...)
		return nil
	})
	return out, err
}
