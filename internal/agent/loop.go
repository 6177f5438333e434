package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"codeassist/internal/domain"
)

const (
	defaultMaxIterations    = 20
	defaultMaxParallelTools = 4
)

// ErrBudgetExhausted is returned when the model has not produced a final
// answer within the iteration budget.
var ErrBudgetExhausted = errors.New("iteration budget exhausted without a final answer")

// Dispatcher resolves tool calls. *tool.Registry implements it.
type Dispatcher interface {
	Capabilities() []domain.ToolCapability
	Dispatch(ctx context.Context, call domain.ToolCall) domain.ToolResult
}

// State is the loop's position in a cycle.
type State int

const (
	AwaitingModel State = iota
	Dispatching
	Done
	// Exhausted means the budget ran out before a final answer.
	Exhausted
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case Dispatching:
		return "dispatching"
	case Done:
		return "done"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Loop drives the model through bounded request/response cycles, executing
// the tools it asks for between cycles.
type Loop struct {
	model         domain.Model
	tools         Dispatcher
	logger        *slog.Logger
	system        string
	maxIterations int
	parallelism   int
	limiter       *rate.Limiter
}

// LoopConfig holds all dependencies and tuning parameters for the agent loop.
type LoopConfig struct {
	Model         domain.Model
	Tools         Dispatcher
	Logger        *slog.Logger
	SystemPrompt  string
	MaxIterations int
	Parallelism   int           // max concurrent tool calls per batch
	Limiter       *rate.Limiter // optional pacing of model calls
}

// NewLoop creates a new agent loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultMaxParallelTools
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		model:         cfg.Model,
		tools:         cfg.Tools,
		logger:        cfg.Logger,
		system:        cfg.SystemPrompt,
		maxIterations: cfg.MaxIterations,
		parallelism:   cfg.Parallelism,
		limiter:       cfg.Limiter,
	}
}

// Result describes a finished run. Final is only meaningful when Run returned
// a nil error.
type Result struct {
	Final      string
	State      State
	Iterations int
	Usage      domain.Usage
	Turns      []domain.Turn
}

// Run converses with the model starting from prompt. It returns
// ErrBudgetExhausted (with a populated Result) when no final answer arrives
// within the budget, and a wrapped transport error when a model call fails.
func (l *Loop) Run(ctx context.Context, prompt string) (*Result, error) {
	conv := NewConversation(prompt)
	caps := l.tools.Capabilities()
	res := &Result{State: AwaitingModel}

	finish := func(state State) *Result {
		res.State = state
		res.Turns = conv.Turns()
		return res
	}

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		l.logger.Debug("agent iteration", "iteration", iteration+1, "turns", conv.Len())

		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return finish(AwaitingModel), fmt.Errorf("rate limit: %w", err)
			}
		}

		start := time.Now()
		resp, err := l.model.Generate(ctx, domain.ModelRequest{
			System: l.system,
			Turns:  conv.Turns(),
			Tools:  caps,
		})
		res.Iterations++
		if err != nil {
			return finish(AwaitingModel), fmt.Errorf("model call: %w", err)
		}
		res.Usage.Add(resp.Usage)
		l.logger.Debug("model replied",
			"model", l.model.Name(),
			"prompt_tokens", resp.Usage.PromptTokens,
			"response_tokens", resp.Usage.CompletionTokens,
			"latency_ms", time.Since(start).Milliseconds(),
		)

		switch reply := resp.Reply.(type) {
		case domain.FinalText:
			conv.Append(domain.ModelTurn(reply.Text))
			res.Final = reply.Text
			return finish(Done), nil

		case domain.ToolRequests:
			if len(reply.Calls) == 0 {
				return finish(AwaitingModel), fmt.Errorf("model call: tool request without calls")
			}
			calls := withIDs(reply.Calls)
			results := l.dispatchAll(ctx, calls)
			// The request turn must precede its results.
			conv.Append(domain.RequestTurn(reply.Text, calls))
			conv.Append(domain.ResultTurn(results))

		default:
			return finish(AwaitingModel), fmt.Errorf("model call: unexpected reply %T", resp.Reply)
		}
	}

	l.logger.Warn("iteration budget exhausted", "max_iterations", l.maxIterations)
	return finish(Exhausted), ErrBudgetExhausted
}

// dispatchAll runs every call concurrently and returns results in call order.
func (l *Loop) dispatchAll(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))
	var g errgroup.Group
	g.SetLimit(l.parallelism)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = l.tools.Dispatch(ctx, call)
			return nil
		})
	}
	// Dispatch never fails; Wait only joins.
	_ = g.Wait()
	return results
}

// withIDs copies calls, assigning an id to any the model left blank so
// results can be correlated with requests.
func withIDs(calls []domain.ToolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		out[i] = c
	}
	return out
}
