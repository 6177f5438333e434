// Package provider implements domain.Model over hosted LLM APIs.
package provider

import (
	"errors"
	"fmt"

	"codeassist/internal/domain"
)

// ErrNoCandidates is returned when a model response carries nothing to act on.
var ErrNoCandidates = errors.New("model returned no candidates")

// StatusError reports a non-2xx answer from an HTTP transport.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Provider, e.Code, e.Body)
}

// reply builds the sum-type reply: any tool calls make it a ToolRequests.
func reply(text string, calls []domain.ToolCall) domain.Reply {
	if len(calls) > 0 {
		return domain.ToolRequests{Text: text, Calls: calls}
	}
	return domain.FinalText{Text: text}
}

func toolNames(caps []domain.ToolCapability) map[string]bool {
	names := make(map[string]bool, len(caps))
	for _, c := range caps {
		names[c.Name] = true
	}
	return names
}
