package prompts

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specgate/internal/artifact"
	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/session"
)

// defaultNegotiation is used when the exclusion edge carries no template
// or its template does not render.
const defaultNegotiation = `{{.Candidate}} conflicts with {{.Existing}}{{if .Reason}}: {{.Reason}}{{end}}. Which one should the specification keep?`

// NegotiationData is what a negotiation template can reference.
type NegotiationData struct {
	Candidate   string
	Existing    string
	Reason      string
	Field       string
	Description string
	Options     []artifact.ResolutionOption
}

// NegotiatePrompt handles the spec-negotiate MCP prompt. It turns one
// conflict into the question to put to the user.
type NegotiatePrompt struct {
	sess *session.Session
}

// NewNegotiatePrompt creates a NegotiatePrompt.
func NewNegotiatePrompt(sess *session.Session) *NegotiatePrompt {
	return &NegotiatePrompt{sess: sess}
}

// Definition returns the MCP prompt definition for registration.
func (p *NegotiatePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("spec-negotiate",
		mcp.WithPromptDescription(
			"Ask the user to settle a conflict. Renders the catalogue's negotiation "+
				"question for the conflict and lists the options to choose from.",
		),
		mcp.WithArgument("conflict_id",
			mcp.ArgumentDescription("Conflict to negotiate"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the spec-negotiate prompt request.
func (p *NegotiatePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	conflictID := strings.TrimSpace(req.Params.Arguments["conflict_id"])
	if conflictID == "" {
		return nil, fmt.Errorf("conflict_id is required")
	}

	var c artifact.Conflict
	err := p.sess.Do(func(m *artifact.Manager) error {
		var err error
		c, err = m.Conflict(conflictID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading conflict: %w", err)
	}

	question := Render(c.NegotiationTemplate, p.data(c))

	var b strings.Builder
	fmt.Fprintf(&b, "A conflict in my specification needs my decision.\n\n")
	fmt.Fprintf(&b, "**Question:** %s\n\n", question)
	b.WriteString("Options:\n")
	for _, o := range c.Options {
		fmt.Fprintf(&b, "- `%s`: %s\n", o.ID, o.Label)
	}
	fmt.Fprintf(&b, "\nAsk me the question in plain words and wait for my answer. "+
		"Then call `spec_resolve_conflict` with conflict_id `%s` and the option I picked. "+
		"If I reject every option, call `spec_reject_resolution` instead.", c.ID)

	return &mcp.GetPromptResult{
		Description: "Negotiate conflict " + c.ID,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(b.String()),
			},
		},
	}, nil
}

func (p *NegotiatePrompt) data(c artifact.Conflict) NegotiationData {
	cat := p.sess.Catalogue()
	existing := make([]string, 0, len(c.Opposing))
	for _, id := range c.Opposing {
		existing = append(existing, displayName(cat, id))
	}
	return NegotiationData{
		Candidate:   displayName(cat, c.Candidate),
		Existing:    strings.Join(existing, ", "),
		Reason:      c.Reason,
		Field:       c.Field,
		Description: c.Description,
		Options:     c.Options,
	}
}

// Render executes tmpl over data, falling back to the default question
// when tmpl is empty or fails.
func Render(tmpl string, data NegotiationData) string {
	if strings.TrimSpace(tmpl) != "" {
		if out, err := execute(tmpl, data); err == nil {
			return out
		}
	}
	out, err := execute(defaultNegotiation, data)
	if err != nil {
		return data.Description
	}
	return out
}

func execute(tmpl string, data NegotiationData) (string, error) {
	t, err := template.New("negotiation").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func displayName(cat *catalogue.Catalogue, id catalogue.NodeID) string {
	n, err := cat.Node(id)
	if err != nil || n.Name == string(id) {
		return string(id)
	}
	return fmt.Sprintf("%s (%s)", n.Name, id)
}
