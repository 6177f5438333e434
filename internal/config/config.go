package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for codeassist.
type Config struct {
	General   GeneralConfig             `json:"general" yaml:"general"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Tools     ToolsConfig               `json:"tools" yaml:"tools"`
	Audit     AuditConfig               `json:"audit" yaml:"audit"`
}

type GeneralConfig struct {
	WorkDir            string `json:"workDir" yaml:"workDir"`
	LogLevel           string `json:"logLevel" yaml:"logLevel"`
	MaxIterations      int    `json:"maxIterations" yaml:"maxIterations"`
	MaxParallelTools   int    `json:"maxParallelTools" yaml:"maxParallelTools"`
	Provider           string `json:"provider" yaml:"provider"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute,omitempty" yaml:"rateLimitPerMinute,omitempty"` // 0 = unlimited
	SystemPromptExtra  string `json:"systemPromptExtra,omitempty" yaml:"systemPromptExtra,omitempty"`  // appended to the system prompt
}

type ProviderConfig struct {
	APIBase        string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

type ToolsConfig struct {
	Script ScriptToolConfig `json:"script" yaml:"script"`
}

type ScriptToolConfig struct {
	TimeoutSeconds int                 `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	Interpreters   map[string][]string `json:"interpreters" yaml:"interpreters"` // ".py" -> ["python3"]
}

type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

// DefaultConfigDir returns the default config directory (~/.codeassist).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codeassist"
	}
	return filepath.Join(home, ".codeassist")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// isYAML reports whether path should be encoded as YAML rather than JSON.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg, err := decode(path, data)
	if err != nil {
		return nil, err
	}

	finalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadRaw reads path as written on disk: ${VAR} references and ~/ paths are
// kept, and nothing is validated. Use it when the config will be saved back.
func LoadRaw(path string) (*Config, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	return decode(path, data)
}

// Resolve returns a copy of a raw config with environment references and
// ~/ paths expanded, as Load would have produced it.
func Resolve(raw *Config) (*Config, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal([]byte(ExpandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("cannot expand config: %w", err)
	}
	finalize(&cfg)
	return &cfg, nil
}

// decode layers the file over Defaults. Maps named in the file replace the
// default map instead of merging into it, so a file can narrow the
// interpreter allow-list or the provider set.
func decode(path string, data []byte) (*Config, error) {
	cfg := Defaults()
	var file Config
	for _, dst := range []*Config{cfg, &file} {
		var err error
		if isYAML(path) {
			err = yaml.Unmarshal(data, dst)
		} else {
			err = json.Unmarshal(data, dst)
		}
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}
	if file.Providers != nil {
		cfg.Providers = file.Providers
	}
	if file.Tools.Script.Interpreters != nil {
		cfg.Tools.Script.Interpreters = file.Tools.Script.Interpreters
	}
	return cfg, nil
}

// LoadOrDefaults loads path, falling back to Defaults when the file does not
// exist. Any other read, parse or validation failure is returned.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Defaults()
		finalize(cfg)
		return cfg, nil
	}
	return cfg, err
}

// finalize expands ~/ paths and resolves environment references left in
// provider settings (defaults carry them unexpanded).
func finalize(cfg *Config) {
	cfg.General.WorkDir = ExpandPath(cfg.General.WorkDir)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	for name, pc := range cfg.Providers {
		pc.APIKey = ExpandEnvVars(pc.APIKey)
		pc.APIBase = ExpandEnvVars(pc.APIBase)
		cfg.Providers[name] = pc
	}
}

// ResolvedAPIKey returns the API key, or "" when it is still an unresolved
// ${VAR} reference.
func (pc ProviderConfig) ResolvedAPIKey() string {
	if envVarPattern.MatchString(pc.APIKey) {
		return ""
	}
	return pc.APIKey
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg to path, as YAML for .yaml/.yml paths and JSON otherwise.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxIterations < 1 || cfg.General.MaxIterations > 200 {
		errs = append(errs, "general.maxIterations must be between 1 and 200")
	}
	if cfg.General.MaxParallelTools < 1 || cfg.General.MaxParallelTools > 64 {
		errs = append(errs, "general.maxParallelTools must be between 1 and 64")
	}
	if !validLogLevels[strings.ToLower(cfg.General.LogLevel)] {
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.RateLimitPerMinute < 0 {
		errs = append(errs, "general.rateLimitPerMinute must be >= 0")
	}
	if cfg.General.WorkDir == "" {
		errs = append(errs, "general.workDir is required")
	}
	if _, ok := cfg.Providers[cfg.General.Provider]; !ok {
		errs = append(errs, fmt.Sprintf("general.provider references unknown provider: %s", cfg.General.Provider))
	}
	for name, pc := range cfg.Providers {
		if pc.TimeoutSeconds < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.timeoutSeconds must be >= 0", name))
		}
	}

	if cfg.Tools.Script.TimeoutSeconds < 1 {
		errs = append(errs, "tools.script.timeoutSeconds must be >= 1")
	}
	if len(cfg.Tools.Script.Interpreters) == 0 {
		errs = append(errs, "tools.script.interpreters must not be empty")
	}
	for ext, argv := range cfg.Tools.Script.Interpreters {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("tools.script.interpreters: extension %q must start with a dot", ext))
		}
		if len(argv) == 0 || argv[0] == "" {
			errs = append(errs, fmt.Sprintf("tools.script.interpreters.%s: command is required", ext))
		}
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
