package catalogue

import (
	"slices"
	"sort"

	"github.com/HendryAvila/specgate/internal/specerr"
)

// Catalogue is the read-only lookup structure for nodes, exclusion edges
// and dependency requirements.
type Catalogue struct {
	loaded bool

	nodes       map[NodeID]Node
	edges       map[string]ExclusionEdge
	edgesByNode map[NodeID][]string
	fields      map[string][]NodeID
	fieldNames  []string
}

// New returns an empty, unloaded catalogue.
func New() *Catalogue {
	return &Catalogue{}
}

// FromDocument builds and loads a catalogue in one step.
func FromDocument(doc *Document) (*Catalogue, error) {
	c := New()
	if err := c.Load(doc); err != nil {
		return nil, err
	}
	return c, nil
}

// Load validates doc and populates the catalogue. It may be called once;
// a second call fails with specerr.ErrAlreadyLoaded and leaves the loaded
// data untouched.
func (c *Catalogue) Load(doc *Document) error {
	const op = "catalogue.load"
	if c.loaded {
		return specerr.AlreadyLoaded(op)
	}
	if err := doc.Validate(); err != nil {
		return specerr.Invalid(op, "", err)
	}

	fieldIndex, err := doc.fieldIndex()
	if err != nil {
		return specerr.Invalid(op, "", err)
	}

	nodes := make(map[NodeID]Node, len(doc.Nodes))
	for field, ids := range fieldIndex {
		for _, id := range ids {
			spec := doc.Nodes[string(id)]
			name := spec.Name
			if name == "" {
				name = string(id)
			}
			nodes[id] = Node{
				ID:       id,
				Field:    field,
				Name:     name,
				Default:  spec.Default,
				Requires: buildRequirement(spec.Requires),
			}
		}
	}

	edges := make(map[string]ExclusionEdge, len(doc.Exclusions))
	edgesByNode := make(map[NodeID][]string)
	for _, edgeID := range sortedKeys(doc.Exclusions) {
		spec := doc.Exclusions[edgeID]
		edge := ExclusionEdge{
			ID:                  edgeID,
			Type:                spec.Type,
			Reason:              spec.Reason,
			NegotiationTemplate: spec.Prompt,
		}
		for _, n := range spec.Nodes {
			id := NodeID(n)
			if edge.Contains(id) {
				continue
			}
			edge.Nodes = append(edge.Nodes, id)
			edgesByNode[id] = append(edgesByNode[id], edgeID)
		}
		edges[edgeID] = edge
	}

	names := make([]string, 0, len(fieldIndex))
	for f := range fieldIndex {
		names = append(names, f)
	}
	sort.Strings(names)

	c.nodes = nodes
	c.edges = edges
	c.edgesByNode = edgesByNode
	c.fields = fieldIndex
	c.fieldNames = names
	c.loaded = true
	return nil
}

func buildRequirement(spec map[string][]string) Requirement {
	if len(spec) == 0 {
		return nil
	}
	req := make(Requirement, 0, len(spec))
	for _, name := range sortedKeys(spec) {
		cands := make([]NodeID, 0, len(spec[name]))
		for _, id := range spec[name] {
			if !slices.Contains(cands, NodeID(id)) {
				cands = append(cands, NodeID(id))
			}
		}
		req = append(req, Category{Name: name, Candidates: cands})
	}
	return req
}

// Loaded reports whether Load has completed.
func (c *Catalogue) Loaded() bool {
	return c.loaded
}

// Len returns the number of nodes, or 0 before Load.
func (c *Catalogue) Len() int {
	return len(c.nodes)
}

// Node returns the node with the given ID.
func (c *Catalogue) Node(id NodeID) (Node, error) {
	const op = "catalogue.node"
	if !c.loaded {
		return Node{}, specerr.NotLoaded(op)
	}
	n, ok := c.nodes[id]
	if !ok {
		return Node{}, specerr.NotFound(op, string(id))
	}
	return n.clone(), nil
}

// ExclusionsFor returns every edge naming id, in edge ID order.
func (c *Catalogue) ExclusionsFor(id NodeID) ([]ExclusionEdge, error) {
	const op = "catalogue.exclusions_for"
	if !c.loaded {
		return nil, specerr.NotLoaded(op)
	}
	if _, ok := c.nodes[id]; !ok {
		return nil, specerr.NotFound(op, string(id))
	}
	ids := c.edgesByNode[id]
	out := make([]ExclusionEdge, 0, len(ids))
	for _, edgeID := range ids {
		out = append(out, c.edges[edgeID].clone())
	}
	return out, nil
}

// HasExclusionBetween reports whether a and b share an exclusion edge.
// It is always false when a == b.
func (c *Catalogue) HasExclusionBetween(a, b NodeID) (bool, error) {
	_, ok, err := c.ExclusionBetween(a, b)
	return ok, err
}

// ExclusionBetween returns the first edge (by edge ID) naming both a and b.
func (c *Catalogue) ExclusionBetween(a, b NodeID) (ExclusionEdge, bool, error) {
	const op = "catalogue.exclusion_between"
	if !c.loaded {
		return ExclusionEdge{}, false, specerr.NotLoaded(op)
	}
	if a == b {
		return ExclusionEdge{}, false, nil
	}
	for _, id := range []NodeID{a, b} {
		if _, ok := c.nodes[id]; !ok {
			return ExclusionEdge{}, false, specerr.NotFound(op, string(id))
		}
	}
	edge, ok := c.edgeBetween(a, b)
	if !ok {
		return ExclusionEdge{}, false, nil
	}
	return edge.clone(), true, nil
}

// edgeBetween assumes the catalogue is loaded and both nodes exist.
func (c *Catalogue) edgeBetween(a, b NodeID) (ExclusionEdge, bool) {
	if a == b {
		return ExclusionEdge{}, false
	}
	for _, edgeID := range c.edgesByNode[a] {
		edge := c.edges[edgeID]
		if edge.Contains(b) {
			return edge, true
		}
	}
	return ExclusionEdge{}, false
}

// DependenciesOf returns the node's requirement, sorted by category name.
func (c *Catalogue) DependenciesOf(id NodeID) (Requirement, error) {
	const op = "catalogue.dependencies_of"
	if !c.loaded {
		return nil, specerr.NotLoaded(op)
	}
	n, ok := c.nodes[id]
	if !ok {
		return nil, specerr.NotFound(op, string(id))
	}
	return n.Requires.clone(), nil
}

// NodesForField returns the nodes mapped to field in declared order.
func (c *Catalogue) NodesForField(field string) ([]NodeID, error) {
	const op = "catalogue.nodes_for_field"
	if !c.loaded {
		return nil, specerr.NotLoaded(op)
	}
	ids, ok := c.fields[field]
	if !ok {
		return nil, specerr.NotFound(op, field)
	}
	return slices.Clone(ids), nil
}

// ValidOptionsForField returns the field's nodes minus any node excluded by
// some member of selection. A selected node never excludes itself.
// Selection members unknown to the catalogue exclude nothing.
func (c *Catalogue) ValidOptionsForField(field string, selection Selection) ([]NodeID, error) {
	const op = "catalogue.valid_options_for_field"
	if !c.loaded {
		return nil, specerr.NotLoaded(op)
	}
	ids, ok := c.fields[field]
	if !ok {
		return nil, specerr.NotFound(op, field)
	}
	valid := make([]NodeID, 0, len(ids))
	for _, option := range ids {
		if !c.excludedBy(option, selection) {
			valid = append(valid, option)
		}
	}
	return valid, nil
}

// Excluders returns the members of selection that share an edge with id.
func (c *Catalogue) Excluders(id NodeID, selection Selection) ([]NodeID, error) {
	const op = "catalogue.excluders"
	if !c.loaded {
		return nil, specerr.NotLoaded(op)
	}
	if _, ok := c.nodes[id]; !ok {
		return nil, specerr.NotFound(op, string(id))
	}
	var out []NodeID
	for _, member := range selection.IDs() {
		if _, known := c.nodes[member]; !known {
			continue
		}
		if _, ok := c.edgeBetween(id, member); ok {
			out = append(out, member)
		}
	}
	return out, nil
}

func (c *Catalogue) excludedBy(id NodeID, selection Selection) bool {
	for _, edgeID := range c.edgesByNode[id] {
		for _, other := range c.edges[edgeID].Nodes {
			if other != id && selection.Has(other) {
				return true
			}
		}
	}
	return false
}

// Fields returns every field name in ascending order.
func (c *Catalogue) Fields() ([]string, error) {
	if !c.loaded {
		return nil, specerr.NotLoaded("catalogue.fields")
	}
	return slices.Clone(c.fieldNames), nil
}

// Edges returns every exclusion edge in edge ID order.
func (c *Catalogue) Edges() ([]ExclusionEdge, error) {
	if !c.loaded {
		return nil, specerr.NotLoaded("catalogue.edges")
	}
	ids := make([]string, 0, len(c.edges))
	for id := range c.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]ExclusionEdge, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.edges[id].clone())
	}
	return out, nil
}
