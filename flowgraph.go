// Package flowgraph provides a top-level convenience entry point for
// running workflow definitions with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/flowgraph"
//
//	svc, err := flowgraph.New(flowgraph.WithOpenAI("gpt-4o-mini"))
//	svc, err := flowgraph.New(flowgraph.WithProvider(myProvider))
//
// The returned [workflow.Service] accepts declarative definitions and
// executes them; see package workflow for the full API.
package flowgraph

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/agent"
	"github.com/BaSui01/flowgraph/llm"
	"github.com/BaSui01/flowgraph/llm/openaicompat"
	"github.com/BaSui01/flowgraph/ratelimit"
	"github.com/BaSui01/flowgraph/tools"
	"github.com/BaSui01/flowgraph/workflow"
)

// Option configures the service created by [New].
type Option func(*options)

type options struct {
	provider    llm.Provider
	model       string
	apiKey      string
	baseURL     string
	minInterval time.Duration
	registry    *tools.Registry
	logger      *zap.Logger
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI creates an OpenAI provider for the given model. The API
// key comes from OPENAI_API_KEY unless overridden with [WithAPIKey].
func WithOpenAI(model string) Option {
	return func(o *options) { o.model = model }
}

// WithAPIKey overrides the API key used by provider shortcuts.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points provider shortcuts at a different service root,
// such as a local gateway. Defaults to the official OpenAI endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithRateInterval sets the minimum spacing between agent calls.
// Defaults to one second.
func WithRateInterval(d time.Duration) Option {
	return func(o *options) { o.minInterval = d }
}

// WithTools sets the tool registry available to agents. Defaults to
// the built-in registry.
func WithTools(registry *tools.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New assembles the full workflow stack: provider, tool registry,
// agent invoker, shared rate limiter, builder, and engine. A provider
// must be supplied via [WithProvider] or [WithOpenAI].
func New(opts ...Option) (*workflow.Service, error) {
	o := &options{
		minInterval: time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.provider == nil {
		if o.model == "" {
			return nil, fmt.Errorf("flowgraph: a provider is required (use WithProvider or WithOpenAI)")
		}
		apiKey := o.apiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("flowgraph: OPENAI_API_KEY is not set")
		}
		o.provider = openaicompat.New(openaicompat.Config{
			ProviderName: "openai",
			APIKey:       apiKey,
			BaseURL:      o.baseURL,
			DefaultModel: o.model,
		}, o.logger)
	}

	if o.registry == nil {
		o.registry = tools.DefaultRegistry(o.logger)
	}

	limiter := ratelimit.New(o.minInterval, ratelimit.WithLogger(o.logger))
	invoker := agent.NewInvoker(o.provider, o.registry, limiter, o.logger,
		agent.WithModel(o.model))

	builder := workflow.NewBuilder(invoker, o.registry,
		workflow.WithLogger(o.logger),
		workflow.WithRateLimiter(limiter),
	)
	return workflow.NewService(builder, workflow.NewEngine(o.logger), o.logger), nil
}
