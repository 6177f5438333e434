package provider

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"codeassist/internal/domain"
)

// extractToolCallsFromContent recovers tool calls that a model wrote into its
// text instead of the structured tool_calls field. Smaller OpenAI-compatible
// models do this. Handled shapes:
//   - Pure JSON: `{"name":"write_file","arguments":{...}}`
//   - Code-fenced: ```json\n{...}\n```
//   - Prefixed or suffixed text: `assistant\n{"name":...}\nI'll run that.`
//
// Only calls naming a known tool are returned, so ordinary JSON in an answer
// is not mistaken for a request.
func extractToolCallsFromContent(content string, known map[string]bool) []domain.ToolCall {
	content = strings.TrimSpace(stripRolePrefix(content))

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	calls := tryParseToolJSON(content)
	if len(calls) == 0 {
		if start, end := findJSONBounds(content); start >= 0 && end > start {
			calls = tryParseToolJSON(content[start:end])
		}
	}

	for _, c := range calls {
		if !known[c.Name] {
			return nil
		}
	}
	return calls
}

// findJSONBounds locates the first top-level JSON object or array in s and
// returns its start and end+1 offsets, or (-1, -1).
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type textCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

func (tc textCall) toolCall() domain.ToolCall {
	return domain.ToolCall{
		ID:        "call_" + uuid.NewString(),
		Name:      normalizeToolName(tc.Name),
		Arguments: coalesce(tc.Parameters, tc.Arguments),
	}
}

// tryParseToolJSON parses raw as one tool call object or an array of them.
func tryParseToolJSON(raw string) []domain.ToolCall {
	text := raw
	var single textCall
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(text)
		_ = json.Unmarshal([]byte(text), &single)
	}
	if single.Name != "" {
		return []domain.ToolCall{single.toolCall()}
	}

	var multi []textCall
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		return nil
	}
	var calls []domain.ToolCall
	for _, tc := range multi {
		if tc.Name == "" {
			continue
		}
		calls = append(calls, tc.toolCall())
	}
	return calls
}

var toolAliases = map[string]string{
	"list_files":      "get_files_info",
	"list-files":      "get_files_info",
	"listfiles":       "get_files_info",
	"list_dir":        "get_files_info",
	"listdir":         "get_files_info",
	"read_file":       "get_file_content",
	"read-file":       "get_file_content",
	"readfile":        "get_file_content",
	"writefile":       "write_file",
	"write-file":      "write_file",
	"runscript":       "run_script",
	"run-script":      "run_script",
	"run_python_file": "run_script",
}

// normalizeToolName maps common misspellings of the registered tool names.
func normalizeToolName(name string) string {
	if mapped, ok := toolAliases[strings.ToLower(name)]; ok {
		return mapped
	}
	return name
}

// stripRolePrefix removes role names some models leak into their content,
// e.g. "assistant\nHello" or "Assistant: Hello".
func stripRolePrefix(content string) string {
	for _, p := range []string{"assistant\n", "Assistant\n", "assistant:\n", "Assistant:\n", "assistant: ", "Assistant: "} {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

// coalesce returns the first non-nil map, or an empty map if both are nil.
func coalesce(a, b map[string]any) map[string]any {
	if a != nil {
		return a
	}
	if b != nil {
		return b
	}
	return make(map[string]any)
}

// sanitizeJSONEscapes drops the backslash from escape sequences JSON does not
// allow (e.g. \% or \Y) inside string literals. Valid pairs are copied whole,
// so a quote reached here is never escaped.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				buf.WriteByte(s[i+1])
				i++
			}
			continue
		}
		buf.WriteByte(ch)
	}
	return buf.String()
}
