package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

// checkReport tallies doctor results.
type checkReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *checkReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (r *checkReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your codeassist setup",
		Long: `Verifies that the configuration, provider credentials, script interpreters,
working directory and audit database are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &checkReport{out: cmd.OutOrStdout()}
			fmt.Fprintf(r.out, "codeassist doctor v%s\n\n", version)

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			if info, err := os.Stat(cfg.General.WorkDir); err != nil {
				r.fail("Working directory", fmt.Sprintf("not found: %s", cfg.General.WorkDir))
			} else if !info.IsDir() {
				r.fail("Working directory", fmt.Sprintf("not a directory: %s", cfg.General.WorkDir))
			} else {
				abs, _ := filepath.Abs(cfg.General.WorkDir)
				r.pass("Working directory", abs)
			}

			name := cfg.General.Provider
			pc := cfg.Providers[name]
			switch {
			case pc.ResolvedAPIKey() != "":
				r.pass("Provider: "+name, fmt.Sprintf("API key set, model %s", pc.Model))
			case pc.APIBase != "" && name != "gemini":
				r.warn("Provider: "+name, "no API key; fine for local OpenAI-compatible servers")
			default:
				r.fail("Provider: "+name, "no API key configured (check your .env or providers."+name+".apiKey)")
			}

			exts := make([]string, 0, len(cfg.Tools.Script.Interpreters))
			for ext := range cfg.Tools.Script.Interpreters {
				exts = append(exts, ext)
			}
			sort.Strings(exts)
			for _, ext := range exts {
				argv := cfg.Tools.Script.Interpreters[ext]
				if path, err := exec.LookPath(argv[0]); err != nil {
					r.warn("Interpreter "+ext, fmt.Sprintf("%s not found on PATH; run_script will fail for %s files", argv[0], ext))
				} else {
					r.pass("Interpreter "+ext, path)
				}
			}

			if cfg.Audit.Enabled {
				if err := checkDatabase(cfg.Audit.DBPath); err != nil {
					r.fail("Audit database", err.Error())
				} else {
					r.pass("Audit database", cfg.Audit.DBPath)
				}
			}

			return r.summary()
		},
	}
}

func (r *checkReport) summary() error {
	fmt.Fprintf(r.out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}
