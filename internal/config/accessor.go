package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tree renders cfg as nested maps keyed by the JSON field names, which are
// the names used in dot paths.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a config value by dot path (e.g. "general.workDir").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var node any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
		if node, ok = obj[key]; !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return node, nil
}

// SetByPath sets a config value by dot path. Strings that read as a bool or
// a number are stored as one. Missing sections are created, so a new
// provider can be added with "providers.<name>.apiBase"; a path that does
// not land on a config field is rejected.
func SetByPath(cfg *Config, path string, value any) error {
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("invalid path %q", path)
		}
	}
	m, err := tree(cfg)
	if err != nil {
		return err
	}

	section := m
	for _, key := range keys[:len(keys)-1] {
		switch next := section[key].(type) {
		case map[string]any:
			section = next
		case nil:
			created := make(map[string]any)
			section[key] = created
			section = created
		default:
			return fmt.Errorf("%s: %q is a value, not a section", path, key)
		}
	}
	section[keys[len(keys)-1]] = coerce(value)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var updated Config
	if err := dec.Decode(&updated); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = updated
	return nil
}

// coerce turns "true"/"false" and numeric strings into typed values.
func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of cfg with resolved API keys masked. Unresolved
// ${VAR} references are not secrets and stay readable.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Providers = make(map[string]ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.ResolvedAPIKey() != "" {
			pc.APIKey = maskSecret(pc.APIKey)
		}
		out.Providers[name] = pc
	}
	return &out
}

// maskSecret keeps the first and last four characters of long secrets.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf config path with its current value.
func ListPaths(cfg *Config) map[string]any {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	leaves := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(k, sub)
				continue
			}
			leaves[k] = v
		}
	}
	walk("", m)
	return leaves
}
