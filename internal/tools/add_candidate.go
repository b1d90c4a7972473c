package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/session"
	"github.com/HendryAvila/specgate/internal/specerr"
)

// AddCandidateTool handles the spec_add_candidate MCP tool.
type AddCandidateTool struct {
	sess *session.Session
}

// NewAddCandidateTool creates an AddCandidateTool.
func NewAddCandidateTool(sess *session.Session) *AddCandidateTool {
	return &AddCandidateTool{sess: sess}
}

// Definition returns the MCP tool definition for registration.
func (t *AddCandidateTool) Definition() mcp.Tool {
	return mcp.NewTool("spec_add_candidate",
		mcp.WithDescription(
			"Add a specification node the user asked for. The node lands in pending "+
				"and conflict detection runs immediately against everything selected so far. "+
				"If the node ID is not in the catalogue the request is parked as an "+
				"unrecognized candidate; map it later with `spec_retry_unrecognized`.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Catalogue node ID, e.g. 'P10'"),
		),
		mcp.WithString("value",
			mcp.Description("Value for the node's field. Defaults to the node's default, then its name."),
		),
		mcp.WithString("original_request",
			mcp.Description("The user's words that led to this candidate"),
		),
		mcp.WithString("substitution_note",
			mcp.Description("Why this node stands in for what the user literally asked, if it does"),
		),
	)
}

// Handle processes the spec_add_candidate tool call.
func (t *AddCandidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := strings.TrimSpace(req.GetString("node_id", ""))
	_, span := startSpan(ctx, "spec_add_candidate", attribute.String("spec.node_id", nodeID))
	res, err := t.handle(req, nodeID)
	return finish(span, res, err)
}

func (t *AddCandidateTool) handle(req mcp.CallToolRequest, nodeID string) (*mcp.CallToolResult, error) {
	if nodeID == "" {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	value := req.GetString("value", "")
	original := req.GetString("original_request", "")

	var (
		result   artifact.AddResult
		cycleCap int
		parked   bool
	)
	err := t.sess.Do(func(m *artifact.Manager) error {
		cycleCap = m.CycleCap()
		var err error
		result, err = m.AddCandidate(artifact.CandidateRequest{
			NodeID:           catalogue.NodeID(nodeID),
			Value:            value,
			OriginalRequest:  original,
			SubstitutionNote: req.GetString("substitution_note", ""),
		})
		if errors.Is(err, specerr.ErrNotFound) {
			_, err = m.RecordUnrecognized(artifact.UnrecognizedRequest{
				Candidate:       nodeID,
				Value:           value,
				OriginalRequest: original,
			})
			parked = err == nil
		}
		return err
	})
	if err != nil {
		return engineError(err)
	}
	if parked {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Node %q is not in the catalogue. It was recorded as an unrecognized candidate.\n\n"+
				"Find the matching node with `spec_catalogue_lookup`, then call "+
				"`spec_retry_unrecognized` with candidate %q.", nodeID, nodeID)), nil
	}

	var b strings.Builder
	if result.Unchanged {
		fmt.Fprintf(&b, "# Candidate Unchanged\n\n`%s` is already validated with value %q.\n", nodeID, result.Entry.Value)
		return mcp.NewToolResultText(b.String()), nil
	}
	fmt.Fprintf(&b, "# Candidate Added\n\n")
	fmt.Fprintf(&b, "- **Node:** `%s`\n- **Field:** %s\n- **Value:** %q\n",
		result.Entry.NodeID, result.Entry.Field, result.Entry.Value)
	if result.Entry.SubstitutionNote != "" {
		fmt.Fprintf(&b, "- **Substitution:** %s\n", result.Entry.SubstitutionNote)
	}
	writeDetection(&b, result.Detection, cycleCap)
	return mcp.NewToolResultText(b.String()), nil
}
