package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"codeassist/internal/audit"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

func auditCmd() *cobra.Command {
	var (
		limit  int
		runs   bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent tool calls (or runs) from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Audit.DBPath); err != nil {
				return fmt.Errorf("no audit log at %s (enable it with: codeassist config set audit.enabled true)", cfg.Audit.DBPath)
			}
			store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if runs {
				records, err := store.RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, records)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tMODEL\tSTATE\tITER\tTOKENS\tPROMPT")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%s\n",
						localTime(r.CreatedAt), r.Model, r.State, r.Iterations,
						r.PromptTokens, r.CompletionTokens, oneLine(r.Prompt, 60))
				}
				return tw.Flush()
			}

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, entries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTOOL\tRESULT\tMS\tARGS\tDETAILS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					localTime(e.CreatedAt), e.ToolName, e.Result, e.DurationMs,
					oneLine(e.Arguments, 40), oneLine(e.Details, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows to show")
	cmd.Flags().BoolVar(&runs, "runs", false, "show agent runs instead of tool calls")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func localTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

// oneLine flattens s and cuts it to n characters.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
