// Package catalogtest provides catalogue fixtures shared by engine tests.
package catalogtest

import (
	"testing"

	"github.com/HendryAvila/specgate/internal/catalogue"
)

// Document returns the reference catalogue used across engine tests:
//
//   - F1: P1, P2 share a field with no edge between them.
//   - power_class: P10, P11 excluded by E1 ("incompatible power classes").
//   - rack: R1 requires A:[P20, P21] and B:[P22].
//   - cooling: P20, P21. fan: P23 excludes P20 (E20, "airflow clash").
//   - F: P30, P31, both excluded by X1 (E30, E31).
//   - controller: C1 requires bus:[P40]. P40 is excluded by P41 (E40, "bus clash").
//   - board: B1 requires ctl:[C1], giving a two-level cascade through C1.
func Document() *catalogue.Document {
	return &catalogue.Document{
		Nodes: map[string]catalogue.NodeSpec{
			"P1":  {Name: "Option one", Default: "one"},
			"P2":  {Name: "Option two", Default: "two"},
			"P10": {Name: "Class A supply", Default: "A"},
			"P11": {Name: "Class B supply", Default: "B"},
			"R1": {Name: "Rack", Requires: map[string][]string{
				"A": {"P20", "P21"},
				"B": {"P22"},
			}},
			"P20": {Name: "Passive cooling", Default: "passive"},
			"P21": {Name: "Active cooling", Default: "active"},
			"P22": {Name: "Standard chassis", Default: "standard"},
			"P23": {Name: "High-flow fan"},
			"P30": {Name: "Mode one"},
			"P31": {Name: "Mode two"},
			"X1":  {Name: "Exclusive mode"},
			"C1": {Name: "Controller", Requires: map[string][]string{
				"bus": {"P40"},
			}},
			"P40": {Name: "Parallel bus"},
			"P41": {Name: "Serial interconnect"},
			"B1": {Name: "Board", Requires: map[string][]string{
				"ctl": {"C1"},
			}},
		},
		Exclusions: map[string]catalogue.ExclusionSpec{
			"E1": {
				Nodes:  []string{"P10", "P11"},
				Type:   "mutual",
				Reason: "incompatible power classes",
				Prompt: "{{.Candidate}} conflicts with {{.Existing}}: {{.Reason}}. Keep which?",
			},
			"E20": {Nodes: []string{"P20", "P23"}, Type: "mutual", Reason: "airflow clash"},
			"E30": {Nodes: []string{"X1", "P30"}, Type: "mutual", Reason: "mode one unavailable"},
			"E31": {Nodes: []string{"X1", "P31"}, Type: "mutual", Reason: "mode two unavailable"},
			"E40": {Nodes: []string{"P40", "P41"}, Type: "mutual", Reason: "bus clash"},
		},
		Fields: map[string][]string{
			"F1":           {"P1", "P2"},
			"power_class":  {"P10", "P11"},
			"rack":         {"R1"},
			"cooling":      {"P20", "P21"},
			"chassis":      {"P22"},
			"fan":          {"P23"},
			"F":            {"P30", "P31"},
			"mode":         {"X1"},
			"controller":   {"C1"},
			"bus":          {"P40"},
			"interconnect": {"P41"},
			"board":        {"B1"},
		},
	}
}

// Load returns the reference catalogue, failing the test if it does not load.
func Load(t testing.TB) *catalogue.Catalogue {
	t.Helper()
	c, err := catalogue.FromDocument(Document())
	if err != nil {
		t.Fatalf("loading fixture catalogue: %v", err)
	}
	return c
}
