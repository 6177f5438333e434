package domain

import (
	"context"
	"time"
)

// AuditEntry records one tool dispatch.
type AuditEntry struct {
	ID         int64     `json:"id"`
	CallID     string    `json:"call_id"`
	ToolName   string    `json:"tool_name"`
	Arguments  string    `json:"arguments"` // JSON
	Result     string    `json:"result"`    // success | failure
	Details    string    `json:"details"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditLogger persists audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry AuditEntry) error
}
