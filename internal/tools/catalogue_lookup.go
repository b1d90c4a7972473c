package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HendryAvila/specgate/internal/catalogue"
)

// CatalogueLookupTool handles the spec_catalogue_lookup MCP tool. It only
// reads the immutable catalogue.
type CatalogueLookupTool struct {
	cat *catalogue.Catalogue
}

// NewCatalogueLookupTool creates a CatalogueLookupTool.
func NewCatalogueLookupTool(cat *catalogue.Catalogue) *CatalogueLookupTool {
	return &CatalogueLookupTool{cat: cat}
}

// Definition returns the MCP tool definition for registration.
func (t *CatalogueLookupTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_catalogue_lookup",
		mcp.WithDescription(
			"Look up the catalogue. With node_id: the node, its requirements and exclusions. "+
				"With field: the field's nodes. With neither: every field.",
		),
		mcp.WithString("node_id",
			mcp.Description("Node to describe"),
		),
		mcp.WithString("field",
			mcp.Description("Field whose nodes to list"),
		),
	)
}

// Handle processes the spec_catalogue_lookup tool call.
func (t *CatalogueLookupTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := strings.TrimSpace(req.GetString("node_id", ""))
	field := strings.TrimSpace(req.GetString("field", ""))
	_, span := startSpan(ctx, "spec_catalogue_lookup",
		attribute.String("spec.node_id", nodeID), attribute.String("spec.field", field))

	var (
		res *mcp.CallToolResult
		err error
	)
	switch {
	case nodeID != "":
		res, err = t.describeNode(catalogue.NodeID(nodeID))
	case field != "":
		res, err = t.describeField(field)
	default:
		res, err = t.listFields()
	}
	return finish(span, res, err)
}

func (t *CatalogueLookupTool) describeNode(id catalogue.NodeID) (*mcp.CallToolResult, error) {
	node, err := t.cat.Node(id)
	if err != nil {
		return engineError(err)
	}
	edges, err := t.cat.ExclusionsFor(id)
	if err != nil {
		return engineError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Node `%s`\n\n", node.ID)
	fmt.Fprintf(&b, "- **Name:** %s\n- **Field:** %s\n", node.Name, node.Field)
	if node.Default != "" {
		fmt.Fprintf(&b, "- **Default:** %s\n", node.Default)
	}
	if !node.Requires.Empty() {
		b.WriteString("\n## Requires\n\nOne of each category:\n\n")
		for _, c := range node.Requires {
			fmt.Fprintf(&b, "- **%s:** %s\n", c.Name, formatIDs(c.Candidates))
		}
	}
	if len(edges) > 0 {
		b.WriteString("\n## Exclusions\n\n")
		for _, e := range edges {
			var others []catalogue.NodeID
			for _, n := range e.Nodes {
				if n != id {
					others = append(others, n)
				}
			}
			fmt.Fprintf(&b, "- `%s` with %s: %s\n", e.ID, formatIDs(others), e.Reason)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *CatalogueLookupTool) describeField(field string) (*mcp.CallToolResult, error) {
	ids, err := t.cat.NodesForField(field)
	if err != nil {
		return engineError(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Field %s\n\n| Node | Name | Default |\n|------|------|---------|\n", field)
	for _, id := range ids {
		node, err := t.cat.Node(id)
		if err != nil {
			return nil, fmt.Errorf("catalogue lookup %s: %w", id, err)
		}
		def := node.Default
		if def == "" {
			def = "—"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", id, node.Name, def)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *CatalogueLookupTool) listFields() (*mcp.CallToolResult, error) {
	fields, err := t.cat.Fields()
	if err != nil {
		return engineError(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Catalogue\n\n%d nodes in %d fields.\n\n", t.cat.Len(), len(fields))
	for _, f := range fields {
		ids, err := t.cat.NodesForField(f)
		if err != nil {
			return nil, fmt.Errorf("catalogue field %s: %w", f, err)
		}
		fmt.Fprintf(&b, "- **%s:** %s\n", f, formatIDs(ids))
	}
	return mcp.NewToolResultText(b.String()), nil
}
