package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/session"
)

// BlockingReasonTool handles the spec_blocking_reason MCP tool.
type BlockingReasonTool struct {
	sess *session.Session
}

// NewBlockingReasonTool creates a BlockingReasonTool.
func NewBlockingReasonTool(sess *session.Session) *BlockingReasonTool {
	return &BlockingReasonTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *BlockingReasonTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_blocking_reason",
		mcp.WithDescription(
			"Explain why the engine is blocked: every active conflict with its attempt count. "+
				"Returns a short note when nothing blocks.",
		),
	)
}

// Handle processes the spec_blocking_reason tool call.
func (t *BlockingReasonTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_blocking_reason")

	var (
		reason string
		state  artifact.EngineState
	)
	_ = t.sess.Do(func(m *artifact.Manager) error {
		reason = m.BlockingReason()
		state = m.EngineState()
		return nil
	})
	if reason == "" {
		return finish(span, mcp.NewToolResultText("Not blocked. Engine state: "+string(state)+"."), nil)
	}
	return finish(span, mcp.NewToolResultText(reason), nil)
}
