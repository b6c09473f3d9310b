// Package agent implements the three LLM-backed roles of the research
// engine: the Analyst (transcript → analysis proposals), the Designer
// (knowledge base → interview script) and the Synthesizer (knowledge base →
// research report). Agents are stateless: each call builds a prompt from the
// snapshot it is given, invokes its oracle once (with the provider-level
// retry budget handled inside pkg/llm) and coerces the response into typed
// models. Malformed records are dropped, not repaired; deriving
// authoritative state from the surviving proposals is the reconciler's job.
package agent

import (
	"context"

	"github.com/eidetic-ai/eidetic/pkg/config"
	"github.com/eidetic-ai/eidetic/pkg/llm"
)

// roleRequest assembles the chat request for one agent call from the role's
// resolved configuration.
func roleRequest(cfg *config.AgentRoleConfig, system, user string) llm.ChatRequest {
	return llm.ChatRequest{
		System:      system,
		User:        user,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
}

// withRoleTimeout bounds an agent call by the role's configured timeout.
// The returned cancel func must always be called.
func withRoleTimeout(ctx context.Context, cfg *config.AgentRoleConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Timeout)
	}
	return context.WithCancel(ctx)
}
