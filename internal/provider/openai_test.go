package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeassist/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var writeCap = domain.ToolCapability{
	Name:        "write_file",
	Description: "Writes a file.",
	Parameters: []domain.ParamSpec{
		{Name: "file_path", Type: domain.TypeString, Required: true},
		{Name: "content", Type: domain.TypeString, Required: true},
	},
}

// chatServer answers /chat/completions with body and captures the request.
func chatServer(t *testing.T, status int, body string, captured *oaiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(srv *httptest.Server) *OpenAI {
	return NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL + "/", Model: "test-model", Client: srv.Client(), Logger: quietLogger()})
}

func TestOpenAI_FinalText(t *testing.T) {
	var got oaiRequest
	srv := chatServer(t, http.StatusOK, `{
		"choices": [{"message": {"role": "assistant", "content": "All tests pass."}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
	}`, &got)

	resp, err := newTestOpenAI(srv).Generate(context.Background(), domain.ModelRequest{
		System: "be helpful",
		Turns:  []domain.Turn{domain.UserTurn("run the tests")},
		Tools:  []domain.ToolCapability{writeCap},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.FinalText{Text: "All tests pass."}, resp.Reply)
	assert.Equal(t, domain.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}, resp.Usage)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "write_file", got.Tools[0].Function.Name)
	assert.Equal(t, false, got.Tools[0].Function.Parameters["additionalProperties"])
}

func TestOpenAI_ToolCalls(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{
		"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [
			{"id": "call_1", "type": "function", "function": {"name": "write_file", "arguments": "{\"file_path\":\"a.txt\",\"content\":\"x\"}"}},
			{"id": "call_2", "type": "function", "function": {"name": "get_files_info", "arguments": ""}}
		]}, "finish_reason": "tool_calls"}]
	}`, nil)

	resp, err := newTestOpenAI(srv).Generate(context.Background(), domain.ModelRequest{Turns: []domain.Turn{domain.UserTurn("go")}})
	require.NoError(t, err)

	req, ok := resp.Reply.(domain.ToolRequests)
	require.True(t, ok, "expected ToolRequests, got %T", resp.Reply)
	require.Len(t, req.Calls, 2)
	assert.Equal(t, "call_1", req.Calls[0].ID)
	assert.Equal(t, map[string]any{"file_path": "a.txt", "content": "x"}, req.Calls[0].Arguments)
	assert.NotNil(t, req.Calls[1].Arguments)
	assert.Empty(t, req.Calls[1].Arguments)
}

func TestOpenAI_HistoryMapping(t *testing.T) {
	var got oaiRequest
	srv := chatServer(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "done"}}]}`, &got)

	calls := []domain.ToolCall{
		{ID: "c1", Name: "get_files_info", Arguments: map[string]any{}},
		{ID: "c2", Name: "get_file_content", Arguments: map[string]any{"file_path": "main.py"}},
	}
	turns := []domain.Turn{
		domain.UserTurn("look around"),
		domain.RequestTurn("checking", calls),
		domain.ResultTurn([]domain.ToolResult{
			domain.Succeeded(calls[0], "- main.py: file_size=10 bytes, is_dir=false"),
			domain.Failed(calls[1], "Error: boom"),
		}),
	}
	_, err := newTestOpenAI(srv).Generate(context.Background(), domain.ModelRequest{Turns: turns})
	require.NoError(t, err)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	require.Len(t, got.Messages[1].ToolCalls, 2)
	assert.Equal(t, `{"file_path":"main.py"}`, got.Messages[1].ToolCalls[1].Function.Arguments)
	assert.Equal(t, "tool", got.Messages[2].Role)
	assert.Equal(t, "c1", got.Messages[2].ToolCallID)
	assert.Equal(t, "c2", got.Messages[3].ToolCallID)
	assert.Equal(t, "Error: boom", got.Messages[3].Content)
}

func TestOpenAI_StatusError(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, `{"error": "slow down"}`, nil)

	_, err := newTestOpenAI(srv).Generate(context.Background(), domain.ModelRequest{Turns: []domain.Turn{domain.UserTurn("hi")}})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Contains(t, se.Body, "slow down")
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"choices": []}`, nil)

	_, err := newTestOpenAI(srv).Generate(context.Background(), domain.ModelRequest{Turns: []domain.Turn{domain.UserTurn("hi")}})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestOpenAI_RecoversToolCallFromContent(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant",
		"content": "{\"name\": \"write_file\", \"arguments\": {\"file_path\": \"a.txt\", \"content\": \"x\"}}"}}]}`, nil)

	resp, err := newTestOpenAI(srv).Generate(context.Background(), domain.ModelRequest{
		Turns: []domain.Turn{domain.UserTurn("write it")},
		Tools: []domain.ToolCapability{writeCap},
	})
	require.NoError(t, err)
	req, ok := resp.Reply.(domain.ToolRequests)
	require.True(t, ok)
	require.Len(t, req.Calls, 1)
	assert.Equal(t, "write_file", req.Calls[0].Name)
}

func TestOpenAI_EmptyMessage(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": ""}}]}`, nil)

	_, err := newTestOpenAI(srv).Generate(context.Background(), domain.ModelRequest{Turns: []domain.Turn{domain.UserTurn("hi")}})
	assert.ErrorIs(t, err, ErrNoCandidates)
}
