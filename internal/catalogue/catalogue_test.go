package catalogue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/catalogue/catalogtest"
	"github.com/HendryAvila/specgate/internal/specerr"
)

func TestCatalogue_QueriesBeforeLoad(t *testing.T) {
	c := catalogue.New()
	assert.False(t, c.Loaded())

	_, err := c.Node("P10")
	assert.ErrorIs(t, err, specerr.ErrNotLoaded)

	_, err = c.ExclusionsFor("P10")
	assert.ErrorIs(t, err, specerr.ErrNotLoaded)

	_, err = c.HasExclusionBetween("P10", "P11")
	assert.ErrorIs(t, err, specerr.ErrNotLoaded)

	_, err = c.DependenciesOf("P10")
	assert.ErrorIs(t, err, specerr.ErrNotLoaded)

	_, err = c.NodesForField("power_class")
	assert.ErrorIs(t, err, specerr.ErrNotLoaded)

	_, err = c.ValidOptionsForField("power_class", catalogue.NewSelection())
	assert.ErrorIs(t, err, specerr.ErrNotLoaded)

	_, err = c.Fields()
	assert.ErrorIs(t, err, specerr.ErrNotLoaded)
}

func TestCatalogue_LoadTwice(t *testing.T) {
	c := catalogtest.Load(t)

	doc := &catalogue.Document{
		Nodes: map[string]catalogue.NodeSpec{"Z": {Field: "z"}},
	}
	err := c.Load(doc)
	require.ErrorIs(t, err, specerr.ErrAlreadyLoaded)

	// Original data is untouched.
	_, err = c.Node("Z")
	assert.ErrorIs(t, err, specerr.ErrNotFound)
	n, err := c.Node("P10")
	require.NoError(t, err)
	assert.Equal(t, "power_class", n.Field)
}

func TestCatalogue_Node(t *testing.T) {
	c := catalogtest.Load(t)

	n, err := c.Node("P10")
	require.NoError(t, err)
	assert.Equal(t, catalogue.NodeID("P10"), n.ID)
	assert.Equal(t, "Class A supply", n.Name)
	assert.Equal(t, "A", n.Default)

	_, err = c.Node("nope")
	assert.ErrorIs(t, err, specerr.ErrNotFound)
}

func TestCatalogue_NameDefaultsToID(t *testing.T) {
	c, err := catalogue.FromDocument(&catalogue.Document{
		Nodes: map[string]catalogue.NodeSpec{"Q1": {Field: "q"}},
	})
	require.NoError(t, err)

	n, err := c.Node("Q1")
	require.NoError(t, err)
	assert.Equal(t, "Q1", n.Name)
}

func TestCatalogue_HasExclusionBetween(t *testing.T) {
	c := catalogtest.Load(t)

	tests := []struct {
		name string
		a, b catalogue.NodeID
		want bool
	}{
		{"edge", "P10", "P11", true},
		{"symmetric", "P11", "P10", true},
		{"same field no edge", "P1", "P2", false},
		{"unrelated", "P10", "P20", false},
		{"self", "P10", "P10", false},
		{"self with edges", "X1", "X1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.HasExclusionBetween(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := c.HasExclusionBetween("P10", "ghost")
	assert.ErrorIs(t, err, specerr.ErrNotFound)
}

func TestCatalogue_ExclusionBetweenCarriesEdge(t *testing.T) {
	c := catalogtest.Load(t)

	edge, ok, err := c.ExclusionBetween("P11", "P10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "E1", edge.ID)
	assert.Equal(t, "incompatible power classes", edge.Reason)
	assert.NotEmpty(t, edge.NegotiationTemplate)
}

func TestCatalogue_ExclusionsFor(t *testing.T) {
	c := catalogtest.Load(t)

	edges, err := c.ExclusionsFor("X1")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "E30", edges[0].ID)
	assert.Equal(t, "E31", edges[1].ID)

	edges, err = c.ExclusionsFor("P1")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestCatalogue_DependenciesOf(t *testing.T) {
	c := catalogtest.Load(t)

	req, err := c.DependenciesOf("R1")
	require.NoError(t, err)
	require.Len(t, req, 2)
	assert.Equal(t, "A", req[0].Name)
	assert.Equal(t, []catalogue.NodeID{"P20", "P21"}, req[0].Candidates)
	assert.Equal(t, "B", req[1].Name)
	assert.Equal(t, []catalogue.NodeID{"P22"}, req[1].Candidates)

	cat, ok := req.Category("B")
	assert.True(t, ok)
	assert.Equal(t, []catalogue.NodeID{"P22"}, cat.Candidates)

	req, err = c.DependenciesOf("P1")
	require.NoError(t, err)
	assert.True(t, req.Empty())
}

func TestCatalogue_DependenciesAreCopies(t *testing.T) {
	c := catalogtest.Load(t)

	req, err := c.DependenciesOf("R1")
	require.NoError(t, err)
	req[0].Candidates[0] = "mutated"

	again, err := c.DependenciesOf("R1")
	require.NoError(t, err)
	assert.Equal(t, catalogue.NodeID("P20"), again[0].Candidates[0])
}

func TestCatalogue_NodesForField(t *testing.T) {
	c := catalogtest.Load(t)

	ids, err := c.NodesForField("F1")
	require.NoError(t, err)
	assert.Equal(t, []catalogue.NodeID{"P1", "P2"}, ids)

	_, err = c.NodesForField("nope")
	assert.ErrorIs(t, err, specerr.ErrNotFound)
}

func TestCatalogue_ValidOptionsForField(t *testing.T) {
	c := catalogtest.Load(t)

	tests := []struct {
		name      string
		field     string
		selection catalogue.Selection
		want      []catalogue.NodeID
	}{
		{"empty selection", "F", catalogue.NewSelection(), []catalogue.NodeID{"P30", "P31"}},
		{"all excluded", "F", catalogue.NewSelection("X1"), []catalogue.NodeID{}},
		{"one excluded", "power_class", catalogue.NewSelection("P11"), []catalogue.NodeID{"P11"}},
		{"selected node keeps itself", "power_class", catalogue.NewSelection("P10"), []catalogue.NodeID{"P10"}},
		{"unknown member ignored", "F", catalogue.NewSelection("ghost"), []catalogue.NodeID{"P30", "P31"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ValidOptionsForField(tt.field, tt.selection)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalogue_Excluders(t *testing.T) {
	c := catalogtest.Load(t)

	got, err := c.Excluders("P30", catalogue.NewSelection("X1", "P1", "ghost"))
	require.NoError(t, err)
	assert.Equal(t, []catalogue.NodeID{"X1"}, got)

	got, err = c.Excluders("P1", catalogue.NewSelection("X1"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatalogue_FieldsAndEdges(t *testing.T) {
	c := catalogtest.Load(t)

	fields, err := c.Fields()
	require.NoError(t, err)
	assert.Contains(t, fields, "power_class")
	assert.IsIncreasing(t, fields)

	edges, err := c.Edges()
	require.NoError(t, err)
	require.Len(t, edges, 5)
	assert.Equal(t, "E1", edges[0].ID)
}

func TestCatalogue_DuplicateEdgeNodesCollapse(t *testing.T) {
	c, err := catalogue.FromDocument(&catalogue.Document{
		Nodes: map[string]catalogue.NodeSpec{
			"A": {Field: "f"},
			"B": {Field: "f"},
		},
		Exclusions: map[string]catalogue.ExclusionSpec{
			"E": {Nodes: []string{"A", "A", "B"}, Reason: "r"},
		},
	})
	require.NoError(t, err)

	edges, err := c.ExclusionsFor("A")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, []catalogue.NodeID{"A", "B"}, edges[0].Nodes)
}

func TestSelection(t *testing.T) {
	s := catalogue.NewSelection("b", "a")
	assert.True(t, s.Has("a"))
	assert.Equal(t, []catalogue.NodeID{"a", "b"}, s.IDs())

	w := s.Without("a")
	assert.False(t, w.Has("a"))
	assert.True(t, s.Has("a"), "Without must not mutate the receiver")

	u := w.Union(catalogue.NewSelection("c"))
	assert.Equal(t, 2, u.Len())
	assert.Equal(t, 1, w.Len())
}
