package agent

import (
	"fmt"
	"strings"

	"codeassist/internal/domain"
)

const basePrompt = `You are a helpful AI coding agent.

When a user asks a question or makes a request, make a function call plan. You can perform the following operations:

%s
All paths you provide should be relative to the working directory. You do not need to specify the working directory in your function calls as it is automatically injected for security reasons.`

// BuildSystemPrompt renders the system instruction for the given capabilities.
// extra, when set, is appended as custom instructions.
func BuildSystemPrompt(caps []domain.ToolCapability, extra string) string {
	var ops strings.Builder
	for _, c := range caps {
		fmt.Fprintf(&ops, "- %s: %s\n", c.Name, c.Description)
	}
	prompt := fmt.Sprintf(basePrompt, ops.String())
	if extra = strings.TrimSpace(extra); extra != "" {
		prompt += "\n\n## Custom Instructions\n" + extra
	}
	return prompt
}
