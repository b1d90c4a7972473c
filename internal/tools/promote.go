package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/session"
)

// PromoteTool handles the spec_promote MCP tool.
type PromoteTool struct {
	sess *session.Session
}

// NewPromoteTool creates a PromoteTool.
func NewPromoteTool(sess *session.Session) *PromoteTool {
	return &PromoteTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *PromoteTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_promote",
		mcp.WithDescription(
			"Validate every pending node that no conflict names and whose requirements are met. "+
				"The rest stay pending and are listed with the reason they were held back.",
		),
	)
}

// Handle processes the spec_promote tool call.
func (t *PromoteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_promote")

	var p artifact.Promotion
	err := t.sess.Do(func(m *artifact.Manager) error {
		var err error
		p, err = m.PromoteNonConflicting()
		return err
	})
	if err != nil {
		res, err := engineError(err)
		return finish(span, res, err)
	}

	var b strings.Builder
	b.WriteString("# Promotion\n\n")
	fmt.Fprintf(&b, "**Validated:** %s\n", formatIDs(p.Promoted))
	if len(p.HeldBack) > 0 {
		b.WriteString("\n## Held Back\n\n| Node | Reason | Detail |\n|------|--------|--------|\n")
		for _, h := range p.HeldBack {
			detail := h.ConflictID
			if len(h.Missing) > 0 {
				detail = "missing " + strings.Join(h.Missing, ", ")
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", h.Node, h.Reason, detail)
		}
		b.WriteString("\nUnmet requirements can be filled with `spec_auto_satisfy`.\n")
	}
	return finish(span, mcp.NewToolResultText(b.String()), nil)
}
