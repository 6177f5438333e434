package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"codeassist/internal/domain"
)

// Registry holds the available tools and dispatches model requests to them.
// The working directory is fixed at construction and injected into every call.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]domain.Tool
	order     []string
	jail      Jail
	validator *SchemaValidator
	audit     domain.AuditLogger
	logger    *slog.Logger
}

// RegistryConfig holds the dependencies of a Registry.
type RegistryConfig struct {
	Jail   Jail
	Audit  domain.AuditLogger // optional
	Logger *slog.Logger
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		tools:     make(map[string]domain.Tool),
		jail:      cfg.Jail,
		validator: NewSchemaValidator(),
		audit:     cfg.Audit,
		logger:    cfg.Logger,
	}
}

// Register adds t. Registering the same name again replaces the implementation
// but keeps its original position in Capabilities.
func (r *Registry) Register(t domain.Tool) {
	name := t.Capability().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
	r.logger.Debug("registered tool", "name", name)
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Capabilities returns the declarations of all tools in registration order.
func (r *Registry) Capabilities() []domain.ToolCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]domain.ToolCapability, 0, len(r.order))
	for _, name := range r.order {
		caps = append(caps, r.tools[name].Capability())
	}
	return caps
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// WorkDir returns the root every tool is confined to.
func (r *Registry) WorkDir() string { return r.jail.Root() }

// Dispatch runs a single tool call. It never returns an error: unknown tools,
// invalid arguments and tool failures all come back as failure outcomes.
func (r *Registry) Dispatch(ctx context.Context, call domain.ToolCall) (result domain.ToolResult) {
	start := time.Now()
	r.logger.Info("calling tool", "tool", call.Name)
	if r.logger.Enabled(ctx, slog.LevelDebug) {
		if argsJSON, err := json.Marshal(call.Arguments); err == nil {
			r.logger.Debug("tool arguments", "tool", call.Name, "args", string(argsJSON))
		}
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", call.Name, "panic", p)
			result = domain.Failed(call, fmt.Sprintf("Error: tool %s crashed: %v", call.Name, p))
		}
		r.record(ctx, call, result, time.Since(start))
	}()

	t := r.Get(call.Name)
	if t == nil {
		return domain.Failed(call, fmt.Sprintf("Error: Unknown function: %s (available: %s)", call.Name, strings.Join(r.Names(), ", ")))
	}

	capability := t.Capability()
	args, err := r.validator.Decode(capability, call.Arguments)
	if err != nil {
		return domain.Failed(call, "Error: "+err.Error())
	}

	out, err := t.Execute(ctx, r.jail.Root(), args)
	if err != nil {
		r.logger.Debug("tool failed", "tool", call.Name, "error", err)
		return domain.Failed(call, "Error: "+err.Error())
	}
	r.logger.Debug("tool completed", "tool", call.Name, "result_len", len(out))
	return domain.Succeeded(call, out)
}

func (r *Registry) record(ctx context.Context, call domain.ToolCall, result domain.ToolResult, elapsed time.Duration) {
	if r.audit == nil {
		return
	}
	argsJSON, _ := json.Marshal(call.Arguments)
	status := "success"
	if !result.Success {
		status = "failure"
	}
	entry := domain.AuditEntry{
		CallID:     call.ID,
		ToolName:   call.Name,
		Arguments:  string(argsJSON),
		Result:     status,
		Details:    truncate(result.Output, 500),
		DurationMs: elapsed.Milliseconds(),
	}
	// The record outlives a cancelled run.
	if err := r.audit.LogAudit(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("failed to write audit entry", "tool", call.Name, "error", err)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
