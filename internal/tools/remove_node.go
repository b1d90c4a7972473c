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

// RemoveNodeTool handles the spec_remove_node MCP tool.
type RemoveNodeTool struct {
	sess *session.Session
}

// NewRemoveNodeTool creates a RemoveNodeTool.
func NewRemoveNodeTool(sess *session.Session) *RemoveNodeTool {
	return &RemoveNodeTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *RemoveNodeTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_remove_node",
		mcp.WithDescription(
			"Remove a pending or validated node because the user withdrew it. "+
				"Conflicts naming the node are closed as superseded.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Node to remove"),
		),
	)
}

// Handle processes the spec_remove_node tool call.
func (t *RemoveNodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_remove_node", attribute.String("spec.node_id", req.GetString("node_id", "")))
	res, err := t.handle(req)
	return finish(span, res, err)
}

func (t *RemoveNodeTool) handle(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, errRes := requireArg(req, "node_id")
	if errRes != nil {
		return errRes, nil
	}

	var (
		mv         artifact.Movement
		superseded []artifact.Conflict
		state      artifact.EngineState
	)
	err := t.sess.Do(func(m *artifact.Manager) error {
		var err error
		mv, superseded, err = m.RemoveNode(catalogue.NodeID(nodeID))
		state = m.EngineState()
		return err
	})
	if err != nil {
		return engineError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Node Removed\n\n`%s` removed from %s.\n\n", nodeID, mv.From)
	for _, c := range superseded {
		fmt.Fprintf(&b, "- Superseded: `%s` %s\n", c.ID, c.Description)
	}
	fmt.Fprintf(&b, "**Engine state:** %s\n", state)
	return mcp.NewToolResultText(b.String()), nil
}
