package detector

import (
	"fmt"
	"slices"
	"strings"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/specerr"
)

// DefaultMaxDepth bounds the number of dependency hops a cascade check
// follows before giving up with an internal error.
const DefaultMaxDepth = 6

// Detector runs the conflict checks against a loaded catalogue. It holds
// no mutable state and is safe for concurrent use.
type Detector struct {
	cat      *catalogue.Catalogue
	maxDepth int
}

// Option configures a Detector.
type Option func(*Detector)

// WithMaxDepth sets the cascade depth cap. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(d *Detector) {
		if n >= 1 {
			d.maxDepth = n
		}
	}
}

// New creates a Detector over cat.
func New(cat *catalogue.Catalogue, opts ...Option) *Detector {
	d := &Detector{cat: cat, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxDepth returns the configured cascade depth cap.
func (d *Detector) MaxDepth() int {
	return d.maxDepth
}

// Detect returns every conflict candidate would introduce into selection.
// selection may or may not already contain candidate; a node never
// conflicts with itself.
func (d *Detector) Detect(candidate catalogue.NodeID, selection catalogue.Selection) ([]Conflict, error) {
	const op = "detector.detect"
	if !d.cat.Loaded() {
		return nil, specerr.NotLoaded(op)
	}
	return d.detect(op, candidate, selection, []catalogue.NodeID{candidate})
}

// WouldConflict reports whether adding candidate to selection raises any
// conflict.
func (d *Detector) WouldConflict(candidate catalogue.NodeID, selection catalogue.Selection) (bool, error) {
	conflicts, err := d.Detect(candidate, selection)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

func (d *Detector) detect(op string, candidate catalogue.NodeID, selection catalogue.Selection, path []catalogue.NodeID) ([]Conflict, error) {
	node, err := d.cat.Node(candidate)
	if err != nil {
		return nil, err
	}

	var out []Conflict

	overwrites, err := d.fieldOverwrites(node, selection)
	if err != nil {
		return nil, err
	}
	out = append(out, overwrites...)

	exclusions, err := d.exclusions(node, selection)
	if err != nil {
		return nil, err
	}
	out = append(out, exclusions...)

	cascades, err := d.cascade(op, node, selection, path)
	if err != nil {
		return nil, err
	}
	out = append(out, cascades...)

	constraint, ok, err := d.fieldConstraint(node, selection)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, constraint)
	}
	return out, nil
}

// fieldOverwrites reports selected peers on the same field. A peer that
// also shares an exclusion edge with the candidate is left to the
// exclusion check, which carries the edge's reason.
func (d *Detector) fieldOverwrites(node catalogue.Node, selection catalogue.Selection) ([]Conflict, error) {
	peers, err := d.cat.NodesForField(node.Field)
	if err != nil {
		return nil, err
	}
	var out []Conflict
	for _, peer := range peers {
		if peer == node.ID || !selection.Has(peer) {
			continue
		}
		excluded, err := d.cat.HasExclusionBetween(node.ID, peer)
		if err != nil {
			return nil, err
		}
		if excluded {
			continue
		}
		out = append(out, Conflict{
			Kind:        KindFieldOverwrite,
			Candidate:   node.ID,
			Opposing:    []catalogue.NodeID{peer},
			Field:       node.Field,
			Description: fmt.Sprintf("%s would overwrite %s on field %q", node.ID, peer, node.Field),
			PairKey:     PairKey(node.ID, peer),
		})
	}
	return out, nil
}

func (d *Detector) exclusions(node catalogue.Node, selection catalogue.Selection) ([]Conflict, error) {
	excluders, err := d.cat.Excluders(node.ID, selection)
	if err != nil {
		return nil, err
	}
	out := make([]Conflict, 0, len(excluders))
	for _, other := range excluders {
		edge, ok, err := d.cat.ExclusionBetween(node.ID, other)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, Conflict{
			Kind:                KindExclusion,
			Candidate:           node.ID,
			Opposing:            []catalogue.NodeID{other},
			Field:               node.Field,
			Description:         fmt.Sprintf("%s cannot coexist with %s: %s", node.ID, other, edge.Reason),
			Reason:              edge.Reason,
			NegotiationTemplate: edge.NegotiationTemplate,
			EdgeID:              edge.ID,
			PairKey:             PairKey(node.ID, other),
		})
	}
	return out, nil
}

// cascade checks every unmet requirement category. A category raises
// conflicts only when none of its alternatives can be added cleanly; the
// conflicts of every alternative are then reported on behalf of node.
func (d *Detector) cascade(op string, node catalogue.Node, selection catalogue.Selection, path []catalogue.NodeID) ([]Conflict, error) {
	var out []Conflict
	seen := map[string]bool{}
	for _, category := range node.Requires {
		if slices.ContainsFunc(category.Candidates, selection.Has) {
			continue
		}

		var wrapped []Conflict
		clean := false
		for _, alt := range category.Candidates {
			if slices.Contains(path, alt) {
				return nil, specerr.Internal(op, string(node.ID),
					fmt.Errorf("dependency cycle: %s", joinPath(append(slices.Clone(path), alt))))
			}
			if len(path) > d.maxDepth {
				return nil, specerr.Internal(op, string(node.ID),
					fmt.Errorf("cascade depth %d exceeded at %s", d.maxDepth, joinPath(append(slices.Clone(path), alt))))
			}
			inner, err := d.detect(op, alt, selection, append(slices.Clone(path), alt))
			if err != nil {
				return nil, err
			}
			if len(inner) == 0 {
				clean = true
				break
			}
			wrapped = append(wrapped, wrapCascade(node, inner)...)
		}
		if clean {
			continue
		}
		for _, c := range wrapped {
			if seen[c.PairKey] {
				continue
			}
			seen[c.PairKey] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func wrapCascade(node catalogue.Node, inner []Conflict) []Conflict {
	out := make([]Conflict, 0, len(inner))
	for _, c := range inner {
		opposing := slices.DeleteFunc(slices.Clone(c.Opposing), func(id catalogue.NodeID) bool {
			return id == node.ID
		})
		if len(opposing) == 0 {
			continue
		}
		path := c.Path
		if len(path) == 0 {
			path = []catalogue.NodeID{c.Candidate}
		}
		out = append(out, Conflict{
			Kind:                KindCascade,
			Candidate:           node.ID,
			Opposing:            opposing,
			Field:               node.Field,
			Description:         fmt.Sprintf("required by %s: %s", node.ID, c.Description),
			Reason:              c.Reason,
			NegotiationTemplate: c.NegotiationTemplate,
			EdgeID:              c.EdgeID,
			Path:                append([]catalogue.NodeID{node.ID}, path...),
			PairKey:             PairKey(append([]catalogue.NodeID{node.ID}, opposing...)...),
		})
	}
	return out
}

// fieldConstraint reports a field left with no valid option. The field's
// own nodes are taken out of the selection first: they are alternatives
// for the field, not constraints on it.
func (d *Detector) fieldConstraint(node catalogue.Node, selection catalogue.Selection) (Conflict, bool, error) {
	peers, err := d.cat.NodesForField(node.Field)
	if err != nil {
		return Conflict{}, false, err
	}
	rest := selection.Without(node.ID)
	for _, peer := range peers {
		rest.Remove(peer)
	}
	valid, err := d.cat.ValidOptionsForField(node.Field, rest)
	if err != nil {
		return Conflict{}, false, err
	}
	if len(valid) > 0 {
		return Conflict{}, false, nil
	}

	excluders := catalogue.NewSelection()
	for _, peer := range peers {
		ids, err := d.cat.Excluders(peer, rest)
		if err != nil {
			return Conflict{}, false, err
		}
		excluders.Add(ids...)
	}
	affected := selection.Without(node.ID).IDs()
	return Conflict{
		Kind:        KindFieldConstraint,
		Candidate:   node.ID,
		Opposing:    affected,
		Field:       node.Field,
		Description: fmt.Sprintf("field %q has no valid option left: every option is excluded by %s", node.Field, joinIDs(excluders.IDs(), ", ")),
		Excluders:   excluders.IDs(),
		PairKey:     FieldKey(node.Field, append([]catalogue.NodeID{node.ID}, excluders.IDs()...)...),
	}, true, nil
}

func joinPath(ids []catalogue.NodeID) string {
	return joinIDs(ids, " -> ")
}

func joinIDs(ids []catalogue.NodeID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, sep)
}
