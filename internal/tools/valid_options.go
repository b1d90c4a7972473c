package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/session"
)

// ValidOptionsTool handles the spec_valid_options MCP tool.
type ValidOptionsTool struct {
	sess *session.Session
}

// NewValidOptionsTool creates a ValidOptionsTool.
func NewValidOptionsTool(sess *session.Session) *ValidOptionsTool {
	return &ValidOptionsTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *ValidOptionsTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_valid_options",
		mcp.WithDescription(
			"List the options of a field that nothing currently selected excludes. "+
				"Use it before offering choices to the user.",
		),
		mcp.WithString("field",
			mcp.Required(),
			mcp.Description("Field name"),
		),
	)
}

// Handle processes the spec_valid_options tool call.
func (t *ValidOptionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_valid_options", attribute.String("spec.field", req.GetString("field", "")))
	res, err := t.handle(req)
	return finish(span, res, err)
}

func (t *ValidOptionsTool) handle(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	field, errRes := requireArg(req, "field")
	if errRes != nil {
		return errRes, nil
	}

	var selection catalogue.Selection
	_ = t.sess.Do(func(m *artifact.Manager) error {
		selection = m.Selection()
		return nil
	})

	cat := t.sess.Catalogue()
	all, err := cat.NodesForField(field)
	if err != nil {
		return engineError(err)
	}
	valid, err := cat.ValidOptionsForField(field, selection)
	if err != nil {
		return engineError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Options for %s\n\n", field)
	b.WriteString("| Node | Name | Available | Excluded by |\n|------|------|-----------|-------------|\n")
	for _, id := range all {
		node, err := cat.Node(id)
		if err != nil {
			return nil, fmt.Errorf("catalogue lookup %s: %w", id, err)
		}
		excluders, err := cat.Excluders(id, selection.Without(id))
		if err != nil {
			return nil, fmt.Errorf("catalogue excluders %s: %w", id, err)
		}
		available := "no"
		for _, v := range valid {
			if v == id {
				available = "yes"
				break
			}
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", id, node.Name, available, formatIDs(excluders))
	}
	if len(valid) == 0 {
		b.WriteString("\nEvery option is excluded by the current selection.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
