package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeassist/internal/agent"
	"codeassist/internal/audit"
	"codeassist/internal/config"
	"codeassist/internal/domain"
	"codeassist/internal/provider"
	"codeassist/internal/tool"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	version = "0.1.0"
	logger  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Persistent flags.
	configPath   string
	verbose      bool
	workDirFlag  string
	providerFlag string
	modelFlag    string
)

// errNoPrompt is returned after usage has already been printed.
var errNoPrompt = errors.New("no prompt given")

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	root := rootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errNoPrompt) && !errors.Is(err, agent.ErrBudgetExhausted) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps run errors onto process exit codes: 2 for an exhausted
// iteration budget, 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, agent.ErrBudgetExhausted) {
		return 2
	}
	return 1
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   `codeassist "your prompt here"`,
		Short: "codeassist: an AI coding agent confined to one working directory",
		Long: `codeassist sends your prompt to a language model that can list, read and
write files and run scripts inside the working directory, looping until it
produces a final answer or runs out of iterations.`,
		Example:       `  codeassist "How do I fix the calculator?" --verbose`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPrompt,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.codeassist/config.json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "print the prompt, token usage and debug logs")
	pf.StringVarP(&workDirFlag, "workdir", "w", "", "working directory the tools are confined to")
	pf.StringVarP(&providerFlag, "provider", "p", "", "model provider to use (e.g. gemini, openai)")
	pf.StringVarP(&modelFlag, "model", "m", "", "model name override for the selected provider")

	root.AddCommand(initCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(doctorCmd())
	return root
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file (or defaults), applies command-line
// overrides and sets up the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if workDirFlag != "" {
		cfg.General.WorkDir = config.ExpandPath(workDirFlag)
	}
	if providerFlag != "" {
		cfg.General.Provider = providerFlag
	}
	if modelFlag != "" {
		if pc, ok := cfg.Providers[cfg.General.Provider]; ok {
			pc.Model = modelFlag
			cfg.Providers[cfg.General.Provider] = pc
		}
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	logger = newLogger(cfg.General.LogLevel)
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runPrompt(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "codeassist: AI coding agent")
		fmt.Fprintln(cmd.OutOrStdout())
		_ = cmd.Usage()
		return errNoPrompt
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openAuditStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	reg, err := registerTools(cfg, store)
	if err != nil {
		return err
	}

	model, err := provider.NewFactory(cfg, logger).Get(ctx, cfg.General.Provider)
	if err != nil {
		return err
	}

	loop := agent.NewLoop(agent.LoopConfig{
		Model:         model,
		Tools:         reg,
		Logger:        logger,
		SystemPrompt:  agent.BuildSystemPrompt(reg.Capabilities(), cfg.General.SystemPromptExtra),
		MaxIterations: cfg.General.MaxIterations,
		Parallelism:   cfg.General.MaxParallelTools,
		Limiter:       newLimiter(cfg.General.RateLimitPerMinute),
	})

	out := cmd.OutOrStdout()
	if verbose {
		fmt.Fprintf(out, "User prompt: %s\n\n", prompt)
	}

	res, runErr := loop.Run(ctx, prompt)
	if store != nil {
		recordRun(store, model.Name(), prompt, res, runErr)
	}
	if verbose && res != nil {
		fmt.Fprintf(out, "Prompt tokens: %d\n", res.Usage.PromptTokens)
		fmt.Fprintf(out, "Response tokens: %d\n", res.Usage.CompletionTokens)
	}
	if errors.Is(runErr, agent.ErrBudgetExhausted) {
		fmt.Fprintf(os.Stderr, "No final answer after %d iterations; giving up.\n", res.Iterations)
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(out, "Final response:")
	fmt.Fprintln(out, res.Final)
	return nil
}

// openAuditStore returns nil when auditing is disabled.
func openAuditStore(cfg *config.Config) (*audit.SQLiteStore, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	return store, nil
}

// registerTools creates the jail and registers the four sandboxed tools.
func registerTools(cfg *config.Config, store *audit.SQLiteStore) (*tool.Registry, error) {
	jail, err := tool.NewJail(cfg.General.WorkDir)
	if err != nil {
		return nil, err
	}
	var auditLogger domain.AuditLogger
	if store != nil {
		auditLogger = store
	}

	reg := tool.NewRegistry(tool.RegistryConfig{Jail: jail, Audit: auditLogger, Logger: logger})
	reg.Register(tool.NewListFilesTool())
	reg.Register(tool.NewReadFileTool())
	reg.Register(tool.NewWriteFileTool())
	reg.Register(tool.NewRunScriptTool(tool.ScriptConfig{
		Timeout:      time.Duration(cfg.Tools.Script.TimeoutSeconds) * time.Second,
		Interpreters: cfg.Tools.Script.Interpreters,
	}))
	logger.Debug("tools registered", "workdir", reg.WorkDir(), "tools", reg.Names())
	return reg, nil
}

// newLimiter paces model calls; nil means unlimited.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func recordRun(store *audit.SQLiteStore, model, prompt string, res *agent.Result, runErr error) {
	run := audit.RunRecord{Model: model, Prompt: prompt}
	if res != nil {
		run.State = res.State.String()
		run.Iterations = res.Iterations
		run.PromptTokens = res.Usage.PromptTokens
		run.CompletionTokens = res.Usage.CompletionTokens
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := store.RecordRun(context.Background(), run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nSet GEMINI_API_KEY (or add it to a .env file) to get started.\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the model can call",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := registerTools(cfg, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Working directory: %s\n\n", reg.WorkDir())
			for _, c := range reg.Capabilities() {
				fmt.Fprintf(out, "%s\n  %s\n", c.Name, c.Description)
				for _, p := range c.Parameters {
					req := ""
					if p.Required {
						req = ", required"
					}
					fmt.Fprintf(out, "    - %s (%s%s)\n", p.Name, p.Type, req)
				}
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.maxIterations)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.provider openai)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			// Edit the file as written so ${VAR} secrets and ~/ paths survive.
			raw, err := config.LoadRaw(cfgPath)
			if errors.Is(err, fs.ErrNotExist) {
				raw, err = config.Defaults(), nil
			}
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(raw, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			resolved, err := config.Resolve(raw)
			if err != nil {
				return err
			}
			if err := config.Validate(resolved); err != nil {
				return err
			}
			if err := config.Save(cfgPath, raw); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", args[0], args[1], cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.ListPaths(config.Sanitize(cfg)), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
