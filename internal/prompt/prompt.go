// Package prompt assembles the text prompt handed to a headless coding-agent
// CLI from a thread's recent turns and a new user message.
package prompt

import (
	"strings"

	"github.com/edi-link/dispatch-gateway/internal/api"
	"github.com/edi-link/dispatch-gateway/internal/threadstore"
)

// BuildDispatchPrompt composes the continuation prompt for a dispatch task:
// a fixed framing header, the filtered recent transcript tagged by role
// label, and the new message under the "EDI" label.
func BuildDispatchPrompt(entries []threadstore.Entry, newMessage, agentKind string) string {
	var b strings.Builder

	b.WriteString("You are continuing a task. Here is the conversation so far:\n\n")
	b.WriteString("---\n")
	for _, e := range entries {
		label := "EDI"
		if e.Role != "edi" {
			label = api.AgentLabel(e.Role)
		}
		b.WriteString("[" + label + "] " + e.Content + "\n")
	}
	b.WriteString("---\n\n")
	b.WriteString("Now continue:\n")
	b.WriteString("[EDI] " + newMessage)

	return b.String()
}
