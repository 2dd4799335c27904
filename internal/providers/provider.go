// Package providers implements the chat backends behind the relay gateway.
//
// A backend is anything that can turn a conversation into an assistant
// answer: a hosted model API (OpenAI, Anthropic, Gemini) or a local agent
// CLI driven as a subprocess (codex, opencode, cursor). Every backend
// satisfies the Provider interface and normalizes its output to the shared
// chat-completion shape, so the gateway and the job worker treat them
// uniformly.
//
// Backends are registered once at startup into a Registry keyed by the
// identifier clients pass in the request's model field. Hosted backends
// without an API key are skipped at registration, never at request time.
//
// Failures use the structured *Error type with a Kind per failure class;
// errors.Is against the package sentinels works across wrapping:
//
//	resp, err := provider.Execute(ctx, req)
//	if errors.Is(err, providers.ErrTimeout) {
//	    // deadline exceeded, subprocess already reaped
//	}
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/runner"
	"github.com/haasonsaas/relay/pkg/models"
)

// Provider is one chat backend.
type Provider interface {
	// Execute runs the conversation to completion and returns the full
	// answer. Expected failures come back as *Error.
	Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)

	// Name returns the backend identifier clients put in the model field.
	Name() string

	// Model returns the underlying model label for metrics and logs. CLI
	// backends without a configured model return their Name.
	Model() string
}

// Runner abstracts subprocess execution so tests can substitute fakes for
// the real process runner.
type Runner interface {
	Run(ctx context.Context, spec runner.Spec) *runner.Result
}

// Options carries shared dependencies into the backend constructors. Zero
// values are usable: a nil Runner gets a default runner, a nil Logger the
// process default, and nil Metrics/Tracer disable collection.
type Options struct {
	Runner  Runner
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Runner == nil {
		o.Runner = runner.New(runner.Config{Logger: o.Logger.With("component", "runner")})
	}
	return o
}

// Registry holds the configured backends keyed by identifier. It is built
// once at startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	byName      map[string]Provider
	names       []string
	defaultName string
}

// NewRegistry builds every configured backend. Hosted-only backends with no
// API key are skipped with a warning; the configured default must survive
// the skips or construction fails.
func NewRegistry(cfg config.ProvidersConfig, opts Options) (*Registry, error) {
	opts = opts.withDefaults()

	byName := make(map[string]Provider, len(cfg.Backends))
	for name, bc := range cfg.Backends {
		switch name {
		case config.BackendOpenAI, config.BackendAnthropic:
			if bc.APIKey == "" {
				opts.Logger.Warn("skipping hosted backend, no API key configured", "backend", name)
				continue
			}
		}
		p, err := newBackend(name, bc, opts)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		byName[name] = p
	}

	if len(byName) == 0 {
		return nil, fmt.Errorf("no backends available")
	}
	if _, ok := byName[cfg.Default]; !ok {
		return nil, fmt.Errorf("default backend %q is not available", cfg.Default)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{byName: byName, names: names, defaultName: cfg.Default}, nil
}

func newBackend(name string, bc config.BackendConfig, opts Options) (Provider, error) {
	switch name {
	case config.BackendCodex:
		return newCodexBackend(bc, opts), nil
	case config.BackendOpenCode:
		return newOpenCodeBackend(bc, opts), nil
	case config.BackendCursor:
		return newCursorBackend(bc, opts), nil
	case config.BackendGemini:
		return newGeminiBackend(bc, opts)
	case config.BackendOpenAI:
		return newOpenAIBackend(bc, opts), nil
	case config.BackendAnthropic:
		return newAnthropicBackend(bc, opts), nil
	}
	return nil, fmt.Errorf("unsupported backend %q", name)
}

// Get resolves a backend by identifier. The empty string resolves to the
// default backend. Unknown identifiers return a client error before any
// backend work happens.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.byName[name]
	if !ok {
		return nil, NewUnknownBackend(name, r.names)
	}
	return p, nil
}

// Names returns the registered backend identifiers in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Default returns the default backend identifier.
func (r *Registry) Default() string {
	return r.defaultName
}

// ModelList describes the registered backends in OpenAI model-list shape.
func (r *Registry) ModelList() *models.ModelList {
	return models.NewModelList(r.names)
}
