package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"codeassist/internal/domain"
)

const (
	openAIDefaultBase  = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAI implements domain.Model for OpenAI-compatible chat completion APIs.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Timeout time.Duration
	Client  *http.Client // overrides Timeout when set
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = openAIDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return o.model }

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Tools    []oaiTool    `json:"tools,omitempty"`
	Stream   bool         `json:"stream"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaiToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function oaiToolCallFn `json:"function"`
}

type oaiToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// toOAIMessages flattens the turn log into chat messages. Each tool result
// becomes its own "tool" message keyed by call id.
func toOAIMessages(system string, turns []domain.Turn) []oaiMessage {
	msgs := make([]oaiMessage, 0, len(turns)+1)
	if system != "" {
		msgs = append(msgs, oaiMessage{Role: "system", Content: system})
	}
	for _, t := range turns {
		switch t.Kind {
		case domain.TurnUserText:
			msgs = append(msgs, oaiMessage{Role: "user", Content: t.Text})
		case domain.TurnModelText:
			msgs = append(msgs, oaiMessage{Role: "assistant", Content: t.Text})
		case domain.TurnModelToolRequests:
			om := oaiMessage{Role: "assistant", Content: t.Text}
			for _, tc := range t.Calls {
				args, _ := json.Marshal(tc.Arguments)
				om.ToolCalls = append(om.ToolCalls, oaiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: oaiToolCallFn{Name: tc.Name, Arguments: string(args)},
				})
			}
			msgs = append(msgs, om)
		case domain.TurnToolResults:
			for _, r := range t.Results {
				msgs = append(msgs, oaiMessage{Role: "tool", Content: r.Output, ToolCallID: r.CallID, Name: r.Name})
			}
		}
	}
	return msgs
}

func toOAITools(caps []domain.ToolCapability) []oaiTool {
	tools := make([]oaiTool, 0, len(caps))
	for _, c := range caps {
		tools = append(tools, oaiTool{
			Type:     "function",
			Function: oaiFunction{Name: c.Name, Description: c.Description, Parameters: c.Schema()},
		})
	}
	return tools
}

func (o *OpenAI) Generate(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	body := oaiRequest{
		Model:    o.model,
		Messages: toOAIMessages(req.System, req.Turns),
		Tools:    toOAITools(req.Tools),
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: "openai", Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, ErrNoCandidates
	}

	choice := oaiResp.Choices[0]
	calls := make([]domain.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = nil
			o.logger.Warn("unparseable tool arguments", "tool", tc.Function.Name, "error", err)
		}
		if args == nil {
			args = make(map[string]any)
		}
		calls = append(calls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	content := choice.Message.Content
	if len(calls) == 0 && len(req.Tools) > 0 {
		if extracted := extractToolCallsFromContent(content, toolNames(req.Tools)); len(extracted) > 0 {
			o.logger.Debug("recovered tool calls from content", "count", len(extracted))
			calls, content = extracted, ""
		}
	}
	if content == "" && len(calls) == 0 {
		return nil, ErrNoCandidates
	}

	return &domain.ModelResponse{
		Reply: reply(content, calls),
		Usage: domain.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

var _ domain.Model = (*OpenAI)(nil)
