package tool

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"codeassist/internal/domain"
)

// ValidationError lists why model-supplied arguments were rejected.
type ValidationError struct {
	Tool    string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Details, "; "))
}

// SchemaValidator checks tool arguments against a capability's JSON Schema
// and decodes them into typed values.
type SchemaValidator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{cache: make(map[string]*gojsonschema.Schema)}
}

// Decode validates raw and converts it to domain.Args. Unknown or mistyped
// fields and missing required fields are errors.
func (sv *SchemaValidator) Decode(c domain.ToolCapability, raw map[string]any) (domain.Args, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	schema, err := sv.schema(c)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for tool %s: %w", c.Name, err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate arguments for %s: %w", c.Name, err)
	}
	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			details[i] = desc.String()
		}
		return nil, &ValidationError{Tool: c.Name, Details: details}
	}

	args := make(domain.Args, len(raw))
	for _, p := range c.Parameters {
		v, ok := raw[p.Name]
		if !ok {
			continue
		}
		val, err := domain.ValueOf(p.Type, v)
		if err != nil {
			return nil, &ValidationError{Tool: c.Name, Details: []string{p.Name + ": " + err.Error()}}
		}
		args[p.Name] = val
	}
	return args, nil
}

func (sv *SchemaValidator) schema(c domain.ToolCapability) (*gojsonschema.Schema, error) {
	doc, err := json.Marshal(c.Schema())
	if err != nil {
		return nil, err
	}
	key := string(doc)

	sv.mu.Lock()
	defer sv.mu.Unlock()
	if s, ok := sv.cache[key]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, err
	}
	sv.cache[key] = s
	return s, nil
}
