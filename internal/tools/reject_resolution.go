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

// RejectResolutionTool handles the spec_reject_resolution MCP tool. It
// counts one failed attempt at settling a conflict.
type RejectResolutionTool struct {
	sess *session.Session
}

// NewRejectResolutionTool creates a RejectResolutionTool.
func NewRejectResolutionTool(sess *session.Session) *RejectResolutionTool {
	return &RejectResolutionTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *RejectResolutionTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_reject_resolution",
		mcp.WithDescription(
			"Record that the user rejected every option for a conflict this round. "+
				"After the cycle cap the conflict is escalated: it stops blocking, its nodes "+
				"stay pending, and it can still be settled later with spec_resolve_conflict.",
		),
		mcp.WithString("conflict_id",
			mcp.Required(),
			mcp.Description("Active conflict ID"),
		),
	)
}

// Handle processes the spec_reject_resolution tool call.
func (t *RejectResolutionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_reject_resolution",
		attribute.String("spec.conflict_id", req.GetString("conflict_id", "")))
	res, err := t.handle(req)
	return finish(span, res, err)
}

func (t *RejectResolutionTool) handle(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conflictID, errRes := requireArg(req, "conflict_id")
	if errRes != nil {
		return errRes, nil
	}

	var (
		res      artifact.CycleResult
		cycleCap int
	)
	err := t.sess.Do(func(m *artifact.Manager) error {
		cycleCap = m.CycleCap()
		var err error
		res, err = m.IncrementCycle(conflictID)
		return err
	})
	if err != nil {
		return engineError(err)
	}

	var b strings.Builder
	if res.Escalated {
		fmt.Fprintf(&b, "# Conflict Escalated\n\n")
		fmt.Fprintf(&b, "`%s` reached %d of %d attempts and no longer blocks the engine.\n", res.Conflict.ID, res.Conflict.Cycles, cycleCap)
		fmt.Fprintf(&b, "Its nodes stay pending. Flag it for manual review; it can be settled later with `spec_resolve_conflict`.\n\n")
	} else {
		fmt.Fprintf(&b, "# Resolution Rejected\n\n")
		fmt.Fprintf(&b, "`%s` is at attempt %d of %d.\n\n", res.Conflict.ID, res.Conflict.Cycles, cycleCap)
	}
	fmt.Fprintf(&b, "**Engine state:** %s\n", res.State)
	return mcp.NewToolResultText(b.String()), nil
}
