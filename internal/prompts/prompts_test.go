package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/catalogue/catalogtest"
	"github.com/HendryAvila/specgate/internal/session"
)

func conflictBetween(t *testing.T, a, b catalogue.NodeID) (*session.Session, artifact.Conflict) {
	t.Helper()
	sess, err := session.Build(catalogtest.Load(t), session.Options{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	var c artifact.Conflict
	err = sess.Do(func(m *artifact.Manager) error {
		for _, id := range []catalogue.NodeID{a, b} {
			if _, err := m.AddCandidate(artifact.CandidateRequest{NodeID: id}); err != nil {
				return err
			}
		}
		c = m.ActiveConflicts()[0]
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return sess, c
}

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	if len(res.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(res.Messages))
	}
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Messages[0].Content)
	}
	return tc.Text
}

func TestNegotiatePrompt_UsesEdgeTemplate(t *testing.T) {
	sess, c := conflictBetween(t, "P10", "P11")
	p := NewNegotiatePrompt(sess)

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"conflict_id": c.ID}
	res, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	text := promptText(t, res)
	want := "Class A supply (P10) conflicts with Class B supply (P11): incompatible power classes. Keep which?"
	if !strings.Contains(text, want) {
		t.Errorf("expected rendered template %q in:\n%s", want, text)
	}
	if !strings.Contains(text, "`keep-P10`") || !strings.Contains(text, "`keep-P11`") {
		t.Error("prompt should list option IDs")
	}
	if !strings.Contains(text, c.ID) {
		t.Error("prompt should carry the conflict ID")
	}
}

func TestNegotiatePrompt_DefaultQuestion(t *testing.T) {
	sess, c := conflictBetween(t, "P20", "P23")
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"conflict_id": c.ID}

	res, err := NewNegotiatePrompt(sess).Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := promptText(t, res)
	if !strings.Contains(text, "airflow clash. Which one should the specification keep?") {
		t.Errorf("expected default question, got:\n%s", text)
	}
}

func TestNegotiatePrompt_Errors(t *testing.T) {
	sess, _ := conflictBetween(t, "P10", "P11")
	p := NewNegotiatePrompt(sess)

	for _, args := range []map[string]string{nil, {"conflict_id": "missing"}} {
		req := mcp.GetPromptRequest{}
		req.Params.Arguments = args
		if _, err := p.Handle(context.Background(), req); err == nil {
			t.Errorf("args %v: expected error", args)
		}
	}
}

func TestRender(t *testing.T) {
	data := NegotiationData{Candidate: "A", Existing: "B", Reason: "clash", Description: "A vs B"}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"custom", "Keep {{.Candidate}} or {{.Existing}}?", "Keep A or B?"},
		{"empty falls back", "", "A conflicts with B: clash. Which one should the specification keep?"},
		{"parse error falls back", "{{.Candidate", "A conflicts with B: clash. Which one should the specification keep?"},
		{"unknown field falls back", "{{.Nope}}", "A conflicts with B: clash. Which one should the specification keep?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tmpl, data); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusPrompt(t *testing.T) {
	p := NewStatusPrompt()
	if p.Definition().Name != "spec-status" {
		t.Errorf("name = %q", p.Definition().Name)
	}
	res, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(promptText(t, res), "spec_state") {
		t.Error("status prompt should direct the model to spec_state")
	}
}
