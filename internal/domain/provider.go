package domain

import "context"

// Model is the transport to a hosted language model.
type Model interface {
	Name() string
	Generate(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// ModelRequest carries the full conversation on every call.
type ModelRequest struct {
	System string
	Turns  []Turn
	Tools  []ToolCapability
}

type ModelResponse struct {
	Reply Reply
	Usage Usage
}

// Reply is either FinalText or ToolRequests.
type Reply interface {
	isReply()
}

// FinalText ends the loop with an answer.
type FinalText struct {
	Text string
}

// ToolRequests asks for one or more tool invocations.
type ToolRequests struct {
	Text  string
	Calls []ToolCall
}

func (FinalText) isReply()    {}
func (ToolRequests) isReply() {}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another call's usage.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}
