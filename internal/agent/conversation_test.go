package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeassist/internal/domain"
)

func TestConversation_AppendOnly(t *testing.T) {
	conv := NewConversation("fix the bug")
	require.Equal(t, 1, conv.Len())

	call := domain.ToolCall{ID: "1", Name: "get_files_info", Arguments: map[string]any{"directory": "pkg"}}
	conv.Append(domain.RequestTurn("", []domain.ToolCall{call}))
	conv.Append(domain.ResultTurn([]domain.ToolResult{domain.Succeeded(call, "- a.go")}))
	conv.Append(domain.ModelTurn("fixed"))

	turns := conv.Turns()
	require.Len(t, turns, 4)
	kinds := make([]domain.TurnKind, len(turns))
	for i, turn := range turns {
		kinds[i] = turn.Kind
	}
	assert.Equal(t, []domain.TurnKind{
		domain.TurnUserText,
		domain.TurnModelToolRequests,
		domain.TurnToolResults,
		domain.TurnModelText,
	}, kinds)
}

func TestConversation_TurnsAreCopies(t *testing.T) {
	conv := NewConversation("hi")
	args := map[string]any{"file_path": "a.txt"}
	calls := []domain.ToolCall{{ID: "1", Name: "get_file_content", Arguments: args}}
	conv.Append(domain.RequestTurn("", calls))

	// Mutating the caller's values must not reach the log.
	args["file_path"] = "b.txt"
	calls[0].Name = "write_file"

	first := conv.Turns()
	first[0].Text = "changed"
	first[1].Calls[0].Arguments["file_path"] = "c.txt"

	again := conv.Turns()
	assert.Equal(t, "hi", again[0].Text)
	assert.Equal(t, "get_file_content", again[1].Calls[0].Name)
	assert.Equal(t, "a.txt", again[1].Calls[0].Arguments["file_path"])
}

func TestBuildSystemPrompt(t *testing.T) {
	caps := []domain.ToolCapability{
		{Name: "get_files_info", Description: "Lists files."},
		{Name: "run_script", Description: "Runs a script."},
	}

	prompt := BuildSystemPrompt(caps, "")
	assert.Contains(t, prompt, "- get_files_info: Lists files.\n- run_script: Runs a script.\n")
	assert.Contains(t, prompt, "automatically injected")
	assert.NotContains(t, prompt, "Custom Instructions")
	assert.True(t, strings.Index(prompt, "get_files_info") < strings.Index(prompt, "run_script"))

	withExtra := BuildSystemPrompt(caps, "  Prefer small diffs.\n")
	assert.True(t, strings.HasSuffix(withExtra, "## Custom Instructions\nPrefer small diffs."))
}
