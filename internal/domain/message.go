package domain

// TurnKind tags an entry in the conversation log.
type TurnKind string

const (
	TurnUserText          TurnKind = "user_text"
	TurnModelText         TurnKind = "model_text"
	TurnModelToolRequests TurnKind = "model_tool_requests"
	TurnToolResults       TurnKind = "tool_results"
)

// Turn is one unit of conversation history. Only the fields matching Kind are set.
type Turn struct {
	Kind    TurnKind     `json:"kind"`
	Text    string       `json:"text,omitempty"`
	Calls   []ToolCall   `json:"calls,omitempty"`
	Results []ToolResult `json:"results,omitempty"`
}

func UserTurn(text string) Turn  { return Turn{Kind: TurnUserText, Text: text} }
func ModelTurn(text string) Turn { return Turn{Kind: TurnModelText, Text: text} }

// RequestTurn records the model's tool requests. Text is any prose the model
// emitted alongside the calls.
func RequestTurn(text string, calls []ToolCall) Turn {
	return Turn{Kind: TurnModelToolRequests, Text: text, Calls: append([]ToolCall(nil), calls...)}
}

func ResultTurn(results []ToolResult) Turn {
	return Turn{Kind: TurnToolResults, Results: append([]ToolResult(nil), results...)}
}

// Clone returns a deep copy so callers cannot mutate logged state.
func (t Turn) Clone() Turn {
	out := t
	if t.Calls != nil {
		out.Calls = make([]ToolCall, len(t.Calls))
		for i, c := range t.Calls {
			out.Calls[i] = c
			if c.Arguments != nil {
				args := make(map[string]any, len(c.Arguments))
				for k, v := range c.Arguments {
					args[k] = v
				}
				out.Calls[i].Arguments = args
			}
		}
	}
	if t.Results != nil {
		out.Results = append([]ToolResult(nil), t.Results...)
	}
	return out
}
