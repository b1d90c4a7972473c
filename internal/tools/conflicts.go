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

// ConflictsTool handles the spec_conflicts MCP tool.
type ConflictsTool struct {
	sess *session.Session
}

// NewConflictsTool creates a ConflictsTool.
func NewConflictsTool(sess *session.Session) *ConflictsTool {
	return &ConflictsTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *ConflictsTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_conflicts",
		mcp.WithDescription(
			"List conflicts with their resolution options. Defaults to active conflicts.",
		),
		mcp.WithString("status",
			mcp.Description("Which log to list"),
			mcp.Enum("active", "escalated", "resolved", "all"),
		),
		mcp.WithString("conflict_id",
			mcp.Description("Show a single conflict by ID"),
		),
	)
}

// Handle processes the spec_conflicts tool call.
func (t *ConflictsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "active")
	_, span := startSpan(ctx, "spec_conflicts", attribute.String("spec.status", status))
	res, err := t.handle(req, status)
	return finish(span, res, err)
}

func (t *ConflictsTool) handle(req mcp.CallToolRequest, status string) (*mcp.CallToolResult, error) {
	conflictID := strings.TrimSpace(req.GetString("conflict_id", ""))
	if conflictID == "" && !validStatusFilter(status) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Invalid status %q: must be one of active, escalated, resolved, all", status)), nil
	}

	var (
		list     []artifact.Conflict
		cycleCap int
	)
	err := t.sess.Do(func(m *artifact.Manager) error {
		cycleCap = m.CycleCap()
		if conflictID != "" {
			c, err := m.Conflict(conflictID)
			if err != nil {
				return err
			}
			list = []artifact.Conflict{c}
			return nil
		}
		switch status {
		case "active":
			list = m.ActiveConflicts()
		case "escalated":
			list = m.EscalatedConflicts()
		case "resolved":
			list = m.ResolvedConflicts()
		case "all":
			list = append(m.ActiveConflicts(), m.EscalatedConflicts()...)
			list = append(list, m.ResolvedConflicts()...)
		}
		return nil
	})
	if err != nil {
		return engineError(err)
	}
	var b strings.Builder
	if conflictID != "" {
		b.WriteString("# Conflict\n\n")
	} else {
		fmt.Fprintf(&b, "# Conflicts (%s): %d\n\n", status, len(list))
	}
	if len(list) == 0 {
		b.WriteString("None.\n")
	}
	for _, c := range list {
		writeConflict(&b, c, cycleCap)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func validStatusFilter(s string) bool {
	switch s {
	case "active", "escalated", "resolved", "all":
		return true
	}
	return false
}
