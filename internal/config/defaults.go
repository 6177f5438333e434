package config

const (
	DefaultProvider    = "gemini"
	DefaultGeminiModel = "gemini-2.0-flash-001"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			WorkDir:          ".",
			LogLevel:         "info",
			MaxIterations:    20,
			MaxParallelTools: 4,
			Provider:         DefaultProvider,
		},
		Providers: map[string]ProviderConfig{
			"gemini": {
				APIKey: "${GEMINI_API_KEY}",
				Model:  DefaultGeminiModel,
			},
			"openai": {
				APIBase: "https://api.openai.com/v1",
				APIKey:  "${OPENAI_API_KEY}",
				Model:   "gpt-4o-mini",
			},
		},
		Tools: ToolsConfig{
			Script: ScriptToolConfig{
				TimeoutSeconds: 30,
				Interpreters: map[string][]string{
					".py": {"python3"},
				},
			},
		},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  "~/.codeassist/audit.db",
		},
	}
}
