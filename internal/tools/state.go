package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/session"
)

// StateTool handles the spec_state MCP tool.
type StateTool struct {
	sess *session.Session
}

// NewStateTool creates a StateTool.
func NewStateTool(sess *session.Session) *StateTool {
	return &StateTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *StateTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_state",
		mcp.WithDescription(
			"Show the working state: validated and pending nodes, unrecognized candidates "+
				"and conflict counts. 'debug' gives the full text dump, 'json' the raw snapshot.",
		),
		mcp.WithString("format",
			mcp.Description("Output format (default: summary)"),
			mcp.Enum("summary", "debug", "json"),
		),
	)
}

// Handle processes the spec_state tool call.
func (t *StateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := req.GetString("format", "summary")
	_, span := startSpan(ctx, "spec_state", attribute.String("spec.format", format))
	res, err := t.handle(format)
	return finish(span, res, err)
}

func (t *StateTool) handle(format string) (*mcp.CallToolResult, error) {
	var (
		snap artifact.Snapshot
		dump string
	)
	_ = t.sess.Do(func(m *artifact.Manager) error {
		snap = m.State()
		dump = m.DebugDump()
		return nil
	})

	switch format {
	case "debug":
		return mcp.NewToolResultText(dump), nil
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding state: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	case "summary", "":
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Invalid format %q: must be summary, debug or json", format)), nil
	}

	var b strings.Builder
	b.WriteString("# Specification State\n\n")
	fmt.Fprintf(&b, "**Engine state:** %s\n\n", snap.State)
	writeEntries(&b, "Validated", snap.Validated)
	writeEntries(&b, "Pending", snap.Pending)
	if len(snap.Unrecognized) > 0 {
		fmt.Fprintf(&b, "## Unrecognized (%d)\n\n", len(snap.Unrecognized))
		for _, u := range snap.Unrecognized {
			fmt.Fprintf(&b, "- %q", u.Candidate)
			if u.Value != "" {
				fmt.Fprintf(&b, " = %q", u.Value)
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("## Conflicts\n\n")
	fmt.Fprintf(&b, "- Active: %d\n- Escalated: %d\n- Resolved: %d\n",
		len(snap.Active), len(snap.Escalated), len(snap.Resolved))
	fmt.Fprintf(&b, "\n**Movements recorded:** %d\n", len(snap.Movements))
	return mcp.NewToolResultText(b.String()), nil
}

func writeEntries(b *strings.Builder, title string, entries []artifact.Entry) {
	fmt.Fprintf(b, "## %s (%d)\n\n", title, len(entries))
	if len(entries) == 0 {
		b.WriteString("None.\n\n")
		return
	}
	b.WriteString("| Node | Field | Value | Note |\n|------|-------|-------|------|\n")
	for _, e := range entries {
		note := e.SubstitutionNote
		if note == "" {
			note = "—"
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n", e.NodeID, e.Field, e.Value, note)
	}
	b.WriteByte('\n')
}
