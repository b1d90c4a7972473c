// Package prompts implements the MCP prompts of the specification engine.
//
// Prompts are user-triggered workflows: the user picks one and the host
// sends its messages to the model, which then drives the engine through
// the spec_* tools.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the spec-status MCP prompt.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("spec-status",
		mcp.WithPromptDescription(
			"Summarize the specification being assembled: what is validated, what is "+
				"pending, and which conflicts need a decision.",
		),
	)
}

// Handle processes the spec-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Specification Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `spec_state` and `spec_blocking_reason` to check where my specification stands.\n\n" +
						"Then:\n" +
						"1. List the validated choices, then the pending ones, in plain language\n" +
						"2. If anything blocks progress, explain each conflict and the options I have\n" +
						"3. Mention escalated conflicts that still need manual review\n" +
						"4. Tell me the single next step: resolve a conflict, fill missing requirements, or promote",
				),
			},
		},
	}, nil
}
