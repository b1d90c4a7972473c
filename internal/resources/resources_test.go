package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/catalogue/catalogtest"
	"github.com/HendryAvila/specgate/internal/session"
)

func newHandler(t *testing.T, ids ...catalogue.NodeID) *Handler {
	t.Helper()
	sess, err := session.Build(catalogtest.Load(t), session.Options{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	err = sess.Do(func(m *artifact.Manager) error {
		for _, id := range ids {
			if _, err := m.AddCandidate(artifact.CandidateRequest{NodeID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return NewHandler(sess)
}

func readText(t *testing.T, contents []mcp.ResourceContents, uri string) string {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != uri {
		t.Errorf("URI = %q, want %q", tc.URI, uri)
	}
	if tc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", tc.MIMEType)
	}
	return tc.Text
}

func TestHandleState(t *testing.T) {
	h := newHandler(t, "P1", "P20")
	if h.StateResource().URI != StateURI {
		t.Errorf("resource URI = %q", h.StateResource().URI)
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = StateURI
	contents, err := h.HandleState(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleState: %v", err)
	}

	var snap artifact.Snapshot
	if err := json.Unmarshal([]byte(readText(t, contents, StateURI)), &snap); err != nil {
		t.Fatalf("state is not JSON: %v", err)
	}
	if snap.State != artifact.StateProcessing {
		t.Errorf("state = %q", snap.State)
	}
	if len(snap.Pending) != 2 {
		t.Errorf("pending = %d, want 2", len(snap.Pending))
	}
}

func TestHandleConflicts(t *testing.T) {
	h := newHandler(t, "P10", "P11")

	req := mcp.ReadResourceRequest{}
	req.Params.URI = ConflictsURI
	contents, err := h.HandleConflicts(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleConflicts: %v", err)
	}

	var view ConflictsView
	if err := json.Unmarshal([]byte(readText(t, contents, ConflictsURI)), &view); err != nil {
		t.Fatalf("conflicts is not JSON: %v", err)
	}
	if view.State != artifact.StateBlocked {
		t.Errorf("state = %q, want blocked", view.State)
	}
	if len(view.Active) != 1 || len(view.Active[0].Options) != 2 {
		t.Errorf("active = %+v", view.Active)
	}
	if view.BlockingReason == "" {
		t.Error("blocking reason should be set while blocked")
	}
}
