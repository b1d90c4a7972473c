// Package tools implements the MCP tool handlers that drive the
// specification engine.
//
// Each tool is a struct holding its dependencies, with a Definition for
// registration and a Handle for calls. Mistakes the caller can fix (an
// unknown node, a stale conflict ID) come back as tool errors; anything
// else is returned as a Go error.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/specerr"
)

var tracer = otel.Tracer("specgate/tools")

// startSpan opens the span for one tool call.
func startSpan(ctx context.Context, tool string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String("mcp.tool", tool)}, attrs...)
	return tracer.Start(ctx, "tools."+tool, trace.WithAttributes(attrs...))
}

// finish records the call outcome on span and ends it.
func finish(span trace.Span, res *mcp.CallToolResult, err error) (*mcp.CallToolResult, error) {
	defer span.End()
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res != nil && res.IsError:
		span.SetAttributes(attribute.Bool("mcp.tool_error", true))
		span.SetStatus(codes.Error, "tool error")
	default:
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

// engineError turns an engine failure into a tool result. Internal
// failures stay Go errors.
func engineError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, specerr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("Not found: %v", err)), nil
	case errors.Is(err, specerr.ErrInvalid):
		return mcp.NewToolResultError(fmt.Sprintf("Invalid request: %v", err)), nil
	case errors.Is(err, specerr.ErrNotLoaded):
		return mcp.NewToolResultError("The catalogue is not loaded. Start the server with a catalogue file."), nil
	case errors.Is(err, specerr.ErrIntegrityViolation):
		return mcp.NewToolResultError(fmt.Sprintf(
			"The resolution was rolled back because its result failed verification: %v\n\n"+
				"Nothing changed. Pick another option or reject this resolution with `spec_reject_resolution`.", err)), nil
	default:
		return nil, err
	}
}

func requireArg(req mcp.CallToolRequest, name string) (string, *mcp.CallToolResult) {
	v := strings.TrimSpace(req.GetString(name, ""))
	if v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s is required", name))
	}
	return v, nil
}

// --- Formatting ---

func formatIDs(ids []catalogue.NodeID) string {
	if len(ids) == 0 {
		return "—"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "`" + string(id) + "`"
	}
	return strings.Join(parts, ", ")
}

// writeConflict renders one conflict with its options.
func writeConflict(b *strings.Builder, c artifact.Conflict, cycleCap int) {
	fmt.Fprintf(b, "### %s `%s`\n\n", c.Kind, c.ID)
	fmt.Fprintf(b, "%s\n\n", c.Description)
	fmt.Fprintf(b, "- **Status:** %s\n", c.Status)
	fmt.Fprintf(b, "- **Candidate:** `%s`\n", c.Candidate)
	fmt.Fprintf(b, "- **Opposing:** %s\n", formatIDs(c.Opposing))
	if c.Field != "" {
		fmt.Fprintf(b, "- **Field:** %s\n", c.Field)
	}
	if c.Reason != "" {
		fmt.Fprintf(b, "- **Reason:** %s\n", c.Reason)
	}
	if len(c.Path) > 1 {
		fmt.Fprintf(b, "- **Dependency path:** %s\n", formatIDs(c.Path))
	}
	if c.Status == artifact.StatusActive {
		fmt.Fprintf(b, "- **Attempts:** %d of %d\n", c.Cycles, cycleCap)
	} else if c.Outcome != "" {
		fmt.Fprintf(b, "- **Outcome:** %s", c.Outcome)
		if c.ChosenOption != "" {
			fmt.Fprintf(b, " (`%s`)", c.ChosenOption)
		}
		b.WriteByte('\n')
	}
	if len(c.Options) > 0 && c.Status != artifact.StatusResolved {
		b.WriteString("\n| Option | Keeps | Drops |\n|--------|-------|-------|\n")
		for _, o := range c.Options {
			fmt.Fprintf(b, "| `%s` %s | %s | %s |\n", o.ID, o.Label, formatIDs(o.Keep), formatIDs(o.Drop))
		}
	}
	b.WriteByte('\n')
}

// writeDetection summarizes a detection pass.
func writeDetection(b *strings.Builder, d artifact.Detection, cycleCap int) {
	for _, c := range d.AutoResolved {
		fmt.Fprintf(b, "- Auto-resolved (latest value wins): %s\n", c.Description)
	}
	for _, c := range d.Superseded {
		fmt.Fprintf(b, "- Superseded: `%s` %s\n", c.ID, c.Description)
	}
	if len(d.New) == 0 {
		if len(d.Active) > 0 {
			fmt.Fprintf(b, "\nNo new conflicts. %d conflict(s) still active.\n", len(d.Active))
		} else {
			b.WriteString("\nNo conflicts.\n")
		}
		return
	}
	fmt.Fprintf(b, "\n## New Conflicts (%d)\n\n", len(d.New))
	for _, c := range d.New {
		writeConflict(b, c, cycleCap)
	}
	b.WriteString("Resolve each with `spec_resolve_conflict`, or use the `spec-negotiate` prompt to ask the user.\n")
}
