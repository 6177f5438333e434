package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codeassist/internal/config"
	"codeassist/internal/domain"
)

// Constructor builds a model transport from a provider config entry.
type Constructor func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Model, error)

// Factory creates and caches model transports from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Model
	mu           sync.Mutex
}

// NewFactory creates a factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Model),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a constructor by provider name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func timeout(pc config.ProviderConfig) time.Duration {
	return time.Duration(pc.TimeoutSeconds) * time.Second
}

func (f *Factory) registerDefaults() {
	f.constructors["gemini"] = func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Model, error) {
		return NewGemini(ctx, GeminiConfig{
			APIKey:  pc.ResolvedAPIKey(),
			APIBase: pc.APIBase,
			Model:   pc.Model,
			Timeout: timeout(pc),
			Logger:  logger,
		})
	}
	f.constructors["openai"] = func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Model, error) {
		return NewOpenAI(OpenAIConfig{
			APIKey:  pc.ResolvedAPIKey(),
			APIBase: pc.APIBase,
			Model:   pc.Model,
			Timeout: timeout(pc),
			Logger:  logger,
		}), nil
	}
}

// Get returns the transport for the named provider, or the configured default
// when name is empty. Providers without a registered constructor are treated
// as OpenAI-compatible when they declare an apiBase.
func (f *Factory) Get(ctx context.Context, name string) (domain.Model, error) {
	if name == "" {
		name = f.cfg.General.Provider
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	var (
		m   domain.Model
		err error
	)
	if ctor, found := f.constructors[name]; found {
		m, err = ctor(ctx, pc, f.logger)
	} else if pc.APIBase != "" {
		m = NewOpenAI(OpenAIConfig{APIKey: pc.ResolvedAPIKey(), APIBase: pc.APIBase, Model: pc.Model, Timeout: timeout(pc), Logger: f.logger})
	} else {
		err = fmt.Errorf("no constructor registered and no apiBase configured")
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}

	f.cache[name] = m
	return m, nil
}
