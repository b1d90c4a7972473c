// Package detector enumerates the rule violations a candidate node would
// introduce into a selection.
//
// Four checks run in fixed precedence order: field overwrite, exclusion,
// cascade through dependency requirements, and field constraint. Every
// conflict carries a pair key so callers can collapse duplicates found
// through different paths.
package detector

import (
	"fmt"
	"slices"
	"strings"

	"github.com/HendryAvila/specgate/internal/catalogue"
)

// --- Conflict kind enum ---

// Kind classifies a conflict. The set is closed; code that switches on a
// Kind must handle every value.
type Kind string

const (
	KindFieldOverwrite  Kind = "field_overwrite"
	KindExclusion       Kind = "exclusion"
	KindCascade         Kind = "cascade"
	KindFieldConstraint Kind = "field_constraint"
	KindCrossArtifact   Kind = "cross_artifact"
)

// validKinds is the set of allowed conflict kinds.
var validKinds = map[Kind]bool{
	KindFieldOverwrite:  true,
	KindExclusion:       true,
	KindCascade:         true,
	KindFieldConstraint: true,
	KindCrossArtifact:   true,
}

// ValidateKind returns an error if the kind is not recognized.
func ValidateKind(k Kind) error {
	if !validKinds[k] {
		return fmt.Errorf("invalid conflict kind %q: must be one of: field_overwrite, exclusion, cascade, field_constraint, cross_artifact", k)
	}
	return nil
}

// Conflict is one violation the candidate would introduce.
type Conflict struct {
	Kind      Kind             `json:"kind"`
	Candidate catalogue.NodeID `json:"candidate"`
	// Opposing lists the selected nodes the candidate contests. For a
	// field constraint it is the whole selection.
	Opposing    []catalogue.NodeID `json:"opposing"`
	Field       string             `json:"field,omitempty"`
	Description string             `json:"description"`
	Reason      string             `json:"reason,omitempty"`
	// NegotiationTemplate is the exclusion edge's prompt template, if any.
	NegotiationTemplate string `json:"negotiation_template,omitempty"`
	EdgeID              string `json:"edge_id,omitempty"`
	// Path is the dependency chain for cascade conflicts, starting at the
	// candidate and ending at the dependency that collides.
	Path    []catalogue.NodeID `json:"path,omitempty"`
	PairKey string             `json:"pair_key"`
	// Excluders are the selected nodes that remove options from Field.
	// Set only for field constraints.
	Excluders []catalogue.NodeID `json:"excluders,omitempty"`
}

// Nodes returns the candidate and every opposing node, sorted and unique.
func (c Conflict) Nodes() []catalogue.NodeID {
	out := append([]catalogue.NodeID{c.Candidate}, c.Opposing...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Contested returns the nodes whose presence makes the conflict hold,
// sorted and unique. For a field constraint that is the candidate and its
// excluders; the rest of the selection is only affected by it. For every
// other kind it equals Nodes.
func (c Conflict) Contested() []catalogue.NodeID {
	if c.Kind != KindFieldConstraint {
		return c.Nodes()
	}
	out := append([]catalogue.NodeID{c.Candidate}, c.Excluders...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Clone returns a deep copy.
func (c Conflict) Clone() Conflict {
	c.Opposing = slices.Clone(c.Opposing)
	c.Path = slices.Clone(c.Path)
	c.Excluders = slices.Clone(c.Excluders)
	return c
}

// PairKey joins the sorted, de-duplicated IDs with "|". It is the same for
// any ordering of the same IDs.
func PairKey(ids ...catalogue.NodeID) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = string(id)
	}
	return strings.Join(parts, "|")
}

// FieldKey is the pair key of a field constraint. It is scoped by field so
// it never collides with the exclusion between the same nodes.
func FieldKey(field string, ids ...catalogue.NodeID) string {
	return "field:" + field + "|" + PairKey(ids...)
}
