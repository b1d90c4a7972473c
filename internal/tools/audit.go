package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/audit"
)

// AuditReader is the part of the audit journal the tool reads.
type AuditReader interface {
	Movements(limit int) ([]audit.MovementRecord, error)
	Conflicts(status artifact.ConflictStatus, limit int) ([]audit.ConflictRecord, error)
}

// AuditTool handles the spec_audit MCP tool. It is only registered when
// the journal opened.
type AuditTool struct {
	journal AuditReader
}

// NewAuditTool creates an AuditTool.
func NewAuditTool(journal AuditReader) *AuditTool {
	return &AuditTool{journal: journal}
}

// Definition returns the MCP tool definition for registration.
func (t *AuditTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_audit",
		mcp.WithDescription(
			"Read the persistent audit journal: node movements or conflict history, "+
				"newest first. Survives server restarts.",
		),
		mcp.WithString("view",
			mcp.Description("What to list (default: movements)"),
			mcp.Enum("movements", "conflicts"),
		),
		mcp.WithString("status",
			mcp.Description("Conflict status filter for view=conflicts"),
			mcp.Enum("active", "escalated", "resolved"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows (default: 20)"),
		),
	)
}

// Handle processes the spec_audit tool call.
func (t *AuditTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view := req.GetString("view", "movements")
	_, span := startSpan(ctx, "spec_audit", attribute.String("spec.view", view))
	res, err := t.handle(req, view)
	return finish(span, res, err)
}

func (t *AuditTool) handle(req mcp.CallToolRequest, view string) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 20))
	if limit <= 0 {
		limit = 20
	}

	var b strings.Builder
	switch view {
	case "movements":
		moves, err := t.journal.Movements(limit)
		if err != nil {
			return nil, fmt.Errorf("reading movements: %w", err)
		}
		fmt.Fprintf(&b, "# Movements (%d)\n\n", len(moves))
		if len(moves) == 0 {
			b.WriteString("None recorded.\n")
			break
		}
		b.WriteString("| At | From | To | Nodes | Trigger |\n|----|------|----|-------|---------|\n")
		for _, m := range moves {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", m.At, m.From, m.To, formatIDs(m.Nodes), m.Trigger)
		}
	case "conflicts":
		status := artifact.ConflictStatus(req.GetString("status", ""))
		conflicts, err := t.journal.Conflicts(status, limit)
		if err != nil {
			return nil, fmt.Errorf("reading conflicts: %w", err)
		}
		fmt.Fprintf(&b, "# Conflict History (%d)\n\n", len(conflicts))
		if len(conflicts) == 0 {
			b.WriteString("None recorded.\n")
			break
		}
		b.WriteString("| Updated | ID | Kind | Status | Cycles | Outcome |\n|---------|----|------|--------|--------|---------|\n")
		for _, c := range conflicts {
			outcome := c.Outcome
			if outcome == "" {
				outcome = "—"
			}
			fmt.Fprintf(&b, "| %s | `%s` | %s | %s | %d | %s |\n", c.UpdatedAt, c.ID, c.Kind, c.Status, c.Cycles, outcome)
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Invalid view %q: must be movements or conflicts", view)), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}
