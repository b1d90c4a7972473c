package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/session"
)

// ResolveConflictTool handles the spec_resolve_conflict MCP tool.
type ResolveConflictTool struct {
	sess *session.Session
}

// NewResolveConflictTool creates a ResolveConflictTool.
func NewResolveConflictTool(sess *session.Session) *ResolveConflictTool {
	return &ResolveConflictTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *ResolveConflictTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_resolve_conflict",
		mcp.WithDescription(
			"Apply the resolution option the user chose for a conflict. The losing nodes "+
				"are removed and the result is verified; if verification fails everything "+
				"is rolled back. Works for active and escalated conflicts.",
		),
		mcp.WithString("conflict_id",
			mcp.Required(),
			mcp.Description("Conflict ID from spec_conflicts or spec_add_candidate"),
		),
		mcp.WithString("option_id",
			mcp.Required(),
			mcp.Description("Option ID, e.g. 'keep-P11' or 'keep-existing'"),
		),
	)
}

// Handle processes the spec_resolve_conflict tool call.
func (t *ResolveConflictTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_resolve_conflict",
		attribute.String("spec.conflict_id", req.GetString("conflict_id", "")),
		attribute.String("spec.option_id", req.GetString("option_id", "")))
	res, err := t.handle(req)
	return finish(span, res, err)
}

func (t *ResolveConflictTool) handle(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conflictID, errRes := requireArg(req, "conflict_id")
	if errRes != nil {
		return errRes, nil
	}
	optionID, errRes := requireArg(req, "option_id")
	if errRes != nil {
		return errRes, nil
	}

	var res artifact.Resolution
	err := t.sess.Do(func(m *artifact.Manager) error {
		c, err := m.Conflict(conflictID)
		if err != nil {
			return err
		}
		switch c.Status {
		case artifact.StatusEscalated:
			res, err = m.ResolveEscalated(conflictID, optionID)
		default:
			res, err = m.ResolveConflict(conflictID, optionID)
		}
		return err
	})
	if err != nil {
		return engineError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Conflict Resolved\n\n")
	fmt.Fprintf(&b, "- **Conflict:** `%s` (%s)\n", res.Conflict.ID, res.Conflict.Kind)
	fmt.Fprintf(&b, "- **Option:** `%s`\n", res.Conflict.ChosenOption)
	fmt.Fprintf(&b, "- **Kept:** %s\n", formatIDs(res.Kept))
	fmt.Fprintf(&b, "- **Removed:** %s\n", formatIDs(res.Removed))
	fmt.Fprintf(&b, "- **Engine state:** %s\n", res.State)
	for _, c := range res.Superseded {
		fmt.Fprintf(&b, "- Superseded: `%s` %s\n", c.ID, c.Description)
	}
	if res.State == artifact.StateBlocked {
		b.WriteString("\nOther conflicts remain. Call `spec_conflicts` to continue.\n")
	} else {
		b.WriteString("\nNo active conflicts remain. Call `spec_promote` to validate pending nodes.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
