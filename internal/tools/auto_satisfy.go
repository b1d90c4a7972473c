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

// AutoSatisfyTool handles the spec_auto_satisfy MCP tool.
type AutoSatisfyTool struct {
	sess *session.Session
}

// NewAutoSatisfyTool creates an AutoSatisfyTool.
func NewAutoSatisfyTool(sess *session.Session) *AutoSatisfyTool {
	return &AutoSatisfyTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *AutoSatisfyTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_auto_satisfy",
		mcp.WithDescription(
			"Fill a node's unmet requirement categories with the first candidate of each "+
				"category that conflicts with nothing already selected. Chosen nodes are added "+
				"to pending with a note. Categories with no usable candidate are reported; "+
				"ask the user about those.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Node whose requirements to satisfy"),
		),
	)
}

// Handle processes the spec_auto_satisfy tool call.
func (t *AutoSatisfyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := startSpan(ctx, "spec_auto_satisfy", attribute.String("spec.node_id", req.GetString("node_id", "")))
	res, err := t.handle(req)
	return finish(span, res, err)
}

func (t *AutoSatisfyTool) handle(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, errRes := requireArg(req, "node_id")
	if errRes != nil {
		return errRes, nil
	}

	var (
		out      artifact.AutoSatisfyResult
		cycleCap int
	)
	err := t.sess.Do(func(m *artifact.Manager) error {
		cycleCap = m.CycleCap()
		var err error
		out, err = m.AutoSatisfy(catalogue.NodeID(nodeID))
		return err
	})
	if err != nil {
		return engineError(err)
	}

	f := out.Fulfillment
	var b strings.Builder
	fmt.Fprintf(&b, "# Requirements of `%s`\n\n", nodeID)
	if len(f.Added) == 0 && len(f.Unresolved) == 0 {
		b.WriteString("Already satisfied. Nothing added.\n")
	}
	if len(f.Added) > 0 {
		b.WriteString("| Category | Added |\n|----------|-------|\n")
		for _, a := range f.Added {
			fmt.Fprintf(&b, "| %s | `%s` |\n", a.Category, a.Node)
		}
	}
	if len(f.Unresolved) > 0 {
		b.WriteString("\n## Unresolved\n\nNo candidate fits without a conflict:\n\n")
		for _, c := range f.Unresolved {
			fmt.Fprintf(&b, "- **%s:** %s\n", c.Name, formatIDs(c.Candidates))
		}
	}
	writeDetection(&b, out.Detection, cycleCap)
	return mcp.NewToolResultText(b.String()), nil
}
