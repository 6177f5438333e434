package domain

import "context"

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// ParamSpec declares a single named, typed tool parameter.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// ToolCapability is the declaration shown to the model so it can pick an action.
type ToolCapability struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamSpec `json:"parameters"`
}

// Schema returns the capability's parameters as a JSON Schema object.
// Undeclared properties are rejected.
func (c ToolCapability) Schema() map[string]any {
	props := make(map[string]any, len(c.Parameters))
	required := make([]string, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		props[p.Name] = map[string]any{"type": string(p.Type), "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Tool is a local action the model may invoke. The working directory is always
// supplied by the dispatcher, never by the model.
type Tool interface {
	Capability() ToolCapability
	Execute(ctx context.Context, workDir string, args Args) (string, error)
}

// ToolCall is a model-issued request to run a tool. Arguments are untrusted.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the immutable outcome of one dispatched ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Succeeded wraps tool output as a success outcome.
func Succeeded(call ToolCall, output string) ToolResult {
	return ToolResult{CallID: call.ID, Name: call.Name, Success: true, Output: output}
}

// Failed wraps an error description as a failure outcome.
func Failed(call ToolCall, text string) ToolResult {
	return ToolResult{CallID: call.ID, Name: call.Name, Success: false, Output: text}
}
