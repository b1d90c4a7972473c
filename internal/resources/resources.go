// Package resources implements the MCP resources of the specification
// engine.
//
// Resources are read-only JSON views the host can pull into context,
// addressed as specgate://...
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/session"
)

const (
	StateURI     = "specgate://state"
	ConflictsURI = "specgate://conflicts"
)

// Handler serves the engine resources.
type Handler struct {
	sess *session.Session
}

// NewHandler creates a resource Handler.
func NewHandler(sess *session.Session) *Handler {
	return &Handler{sess: sess}
}

// StateResource returns the MCP resource definition for the working state.
func (h *Handler) StateResource() mcp.Resource {
	return mcp.NewResource(
		StateURI,
		"Specification State",
		mcp.WithResourceDescription("Validated, pending and unrecognized nodes, conflict logs and movements"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleState returns the full snapshot as JSON.
func (h *Handler) HandleState(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.sess.Snapshot())
}

// ConflictsView is the body of the conflicts resource.
type ConflictsView struct {
	State          artifact.EngineState `json:"state"`
	BlockingReason string               `json:"blocking_reason,omitempty"`
	Active         []artifact.Conflict  `json:"active"`
	Escalated      []artifact.Conflict  `json:"escalated"`
}

// ConflictsResource returns the MCP resource definition for open conflicts.
func (h *Handler) ConflictsResource() mcp.Resource {
	return mcp.NewResource(
		ConflictsURI,
		"Open Conflicts",
		mcp.WithResourceDescription("Active and escalated conflicts with their resolution options"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleConflicts returns the open conflicts as JSON.
func (h *Handler) HandleConflicts(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var view ConflictsView
	_ = h.sess.Do(func(m *artifact.Manager) error {
		view = ConflictsView{
			State:          m.EngineState(),
			BlockingReason: m.BlockingReason(),
			Active:         m.ActiveConflicts(),
			Escalated:      m.EscalatedConflicts(),
		}
		return nil
	})
	return jsonResource(req.Params.URI, view)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
