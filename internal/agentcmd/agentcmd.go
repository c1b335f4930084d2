// Package agentcmd translates an agent kind, a prompt, and a working
// directory into the concrete argv invocation for one of the three supported
// headless coding-agent CLIs.
package agentcmd

import (
	"fmt"

	"github.com/edi-link/dispatch-gateway/internal/api"
)

// Build returns the argv vector (argv[0] is the executable name, resolved
// against PATH by the caller) for agentKind, running prompt against workdir.
// Each variant is configured for non-interactive, non-colored,
// permission-bypassing operation, matching the upstream gateway's own
// command construction.
func Build(agentKind, prompt, workdir string) ([]string, error) {
	switch agentKind {
	case api.AgentKindCodex:
		return []string{
			"codex", "exec",
			"--dangerously-bypass-approvals-and-sandbox",
			"--color", "never",
			"--skip-git-repo-check",
			"-C", workdir,
			prompt,
		}, nil

	case api.AgentKindClaude:
		return []string{
			"claude",
			"-p",
			"--output-format", "text",
			"--permission-mode", "bypassPermissions",
			"--allow-dangerously-skip-permissions",
			"--dangerously-skip-permissions",
			"--no-session-persistence",
			prompt,
		}, nil

	case api.AgentKindGemini:
		return []string{
			"gemini",
			"-p", prompt,
			"--output-format", "text",
			"--approval-mode", "yolo",
		}, nil

	default:
		return nil, fmt.Errorf("unsupported agent: %s", agentKind)
	}
}
