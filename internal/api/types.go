// Package api defines shared HTTP response shapes and constants used across
// the dispatch gateway's handlers.
package api

import "strings"

// Agent kinds identify which headless coding-agent CLI a dispatch targets.
const (
	AgentKindCodex  = "codex"
	AgentKindClaude = "claude"
	AgentKindGemini = "gemini"
)

// IsValidAgentKind reports whether kind names a supported agent.
func IsValidAgentKind(kind string) bool {
	switch kind {
	case AgentKindCodex, AgentKindClaude, AgentKindGemini:
		return true
	default:
		return false
	}
}

// AgentLabel returns the human-friendly label used in prompt transcripts for
// the given agent kind, titlecasing anything unrecognized.
func AgentLabel(kind string) string {
	switch kind {
	case AgentKindCodex:
		return "Codex"
	case AgentKindClaude:
		return "Claude"
	case AgentKindGemini:
		return "Gemini"
	default:
		if kind == "" {
			return kind
		}
		return strings.ToUpper(kind[:1]) + kind[1:]
	}
}

// Error codes for consistent JSON error responses.
const (
	ErrorValidation   = "validation_error"
	ErrorUnauthorized = "unauthorized"
	ErrorNotFound     = "not_found"
	ErrorTooLarge     = "too_large"
	ErrorUpstream     = "upstream_error"
	ErrorTimeout      = "timeout"
	ErrorUnavailable  = "unavailable"
	ErrorThreadMixed  = "thread_mixed_agents"
	ErrorThreadBound  = "thread_bound_to_other_agent"
	ErrorInternal     = "internal_error"
)
