// Package catalogue holds the immutable lookup structure for specification
// nodes, their exclusion edges and their dependency requirements.
//
// A Catalogue is constructed empty with New and populated exactly once with
// Load. Every query made before Load fails with specerr.ErrNotLoaded; there
// is no lazy initialization. After Load the structure is never mutated, so
// a loaded Catalogue is safe to share between goroutines.
package catalogue

import (
	"slices"
	"sort"
)

// NodeID identifies a specification node.
type NodeID string

// Node is one selectable value for a logical field.
type Node struct {
	ID       NodeID      `json:"id"`
	Field    string      `json:"field"`
	Name     string      `json:"name"`
	Default  string      `json:"default,omitempty"`
	Requires Requirement `json:"requires,omitempty"`
}

func (n Node) clone() Node {
	n.Requires = n.Requires.clone()
	return n
}

// Category is one AND-term of a requirement: at least one of Candidates
// must be selected. Candidate order is the declared priority.
type Category struct {
	Name       string   `json:"name"`
	Candidates []NodeID `json:"candidates"`
}

// Requirement lists the categories a node needs, sorted by category name.
// Candidates are OR'd within a category; categories are AND'd.
type Requirement []Category

// Empty reports whether the requirement has no categories.
func (r Requirement) Empty() bool {
	return len(r) == 0
}

// Category returns the named category, if present.
func (r Requirement) Category(name string) (Category, bool) {
	for _, c := range r {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

func (r Requirement) clone() Requirement {
	if r == nil {
		return nil
	}
	out := make(Requirement, len(r))
	for i, c := range r {
		out[i] = Category{Name: c.Name, Candidates: slices.Clone(c.Candidates)}
	}
	return out
}

// ExclusionEdge declares that its nodes cannot coexist in a selection.
// Edges are symmetric; an edge never makes a node exclude itself.
type ExclusionEdge struct {
	ID                  string   `json:"id"`
	Nodes               []NodeID `json:"nodes"`
	Type                string   `json:"type,omitempty"`
	Reason              string   `json:"reason"`
	NegotiationTemplate string   `json:"negotiation_template,omitempty"`
}

// Contains reports whether id is one of the edge's nodes.
func (e ExclusionEdge) Contains(id NodeID) bool {
	return slices.Contains(e.Nodes, id)
}

func (e ExclusionEdge) clone() ExclusionEdge {
	e.Nodes = slices.Clone(e.Nodes)
	return e
}

// Selection is a set of node IDs. The zero value is not usable; build one
// with NewSelection.
type Selection map[NodeID]struct{}

// NewSelection returns a selection holding ids.
func NewSelection(ids ...NodeID) Selection {
	s := make(Selection, len(ids))
	s.Add(ids...)
	return s
}

// Has reports whether id is selected.
func (s Selection) Has(id NodeID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts ids.
func (s Selection) Add(ids ...NodeID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Remove deletes id.
func (s Selection) Remove(id NodeID) {
	delete(s, id)
}

// Len returns the number of selected nodes.
func (s Selection) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Without returns a copy of s lacking id.
func (s Selection) Without(id NodeID) Selection {
	out := s.Clone()
	delete(out, id)
	return out
}

// Union returns a new selection holding the members of s and other.
func (s Selection) Union(other Selection) Selection {
	out := s.Clone()
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the members in ascending order.
func (s Selection) IDs() []NodeID {
	ids := make([]NodeID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
