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

// RetryUnrecognizedTool handles the spec_retry_unrecognized MCP tool.
type RetryUnrecognizedTool struct {
	sess *session.Session
}

// NewRetryUnrecognizedTool creates a RetryUnrecognizedTool.
func NewRetryUnrecognizedTool(sess *session.Session) *RetryUnrecognizedTool {
	return &RetryUnrecognizedTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *RetryUnrecognizedTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_retry_unrecognized",
		mcp.WithDescription(
			"Map a parked unrecognized candidate onto a catalogue node. The node enters "+
				"pending with the parked value and conflict detection runs.",
		),
		mcp.WithString("candidate",
			mcp.Required(),
			mcp.Description("The unrecognized candidate as it was recorded"),
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Catalogue node ID it corresponds to"),
		),
	)
}

// Handle processes the spec_retry_unrecognized tool call.
func (t *RetryUnrecognizedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_retry_unrecognized",
		attribute.String("spec.candidate", req.GetString("candidate", "")),
		attribute.String("spec.node_id", req.GetString("node_id", "")))
	res, err := t.handle(req)
	return finish(span, res, err)
}

func (t *RetryUnrecognizedTool) handle(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	candidate, errRes := requireArg(req, "candidate")
	if errRes != nil {
		return errRes, nil
	}
	nodeID, errRes := requireArg(req, "node_id")
	if errRes != nil {
		return errRes, nil
	}

	var (
		result   artifact.AddResult
		cycleCap int
	)
	err := t.sess.Do(func(m *artifact.Manager) error {
		cycleCap = m.CycleCap()
		var err error
		result, err = m.RetryUnrecognized(candidate, catalogue.NodeID(nodeID))
		return err
	})
	if err != nil {
		return engineError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Unrecognized Candidate Mapped\n\n%q is now `%s` (value %q).\n",
		candidate, result.Entry.NodeID, result.Entry.Value)
	writeDetection(&b, result.Detection, cycleCap)
	return mcp.NewToolResultText(b.String()), nil
}
