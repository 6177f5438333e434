// Package audit persists tool dispatches and run summaries in SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"codeassist/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 50

// RunRecord summarizes one agent run. Conversation content is not stored.
type RunRecord struct {
	ID               int64     `json:"id"`
	Model            string    `json:"model"`
	Prompt           string    `json:"prompt"`
	State            string    `json:"state"`
	Iterations       int       `json:"iterations"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// SQLiteStore implements domain.AuditLogger using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Tool calls in a batch log concurrently; SQLite takes one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (call_id, tool_name, arguments, result, details, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.CallID, entry.ToolName, entry.Arguments, entry.Result, entry.Details, entry.DurationMs, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit audit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, call_id, tool_name, arguments, result, details, duration_ms, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e            domain.AuditEntry
			callID, args sql.NullString
			details      sql.NullString
		)
		if err := rows.Scan(&e.ID, &callID, &e.ToolName, &args, &e.Result, &details, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CallID, e.Arguments, e.Details = callID.String, args.String, details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordRun stores the summary of a finished run.
func (s *SQLiteStore) RecordRun(ctx context.Context, run RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (model, prompt, state, iterations, prompt_tokens, completion_tokens, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Model, run.Prompt, run.State, run.Iterations, run.PromptTokens, run.CompletionTokens, run.Error, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit run summaries, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, prompt, state, iterations, prompt_tokens, completion_tokens, error, created_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r               RunRecord
			prompt, errText sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Model, &prompt, &r.State, &r.Iterations, &r.PromptTokens, &r.CompletionTokens, &errText, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Prompt, r.Error = prompt.String, errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ domain.AuditLogger = (*SQLiteStore)(nil)
