// Package agent implements the agent-invocation capability consumed
// by workflow agent executors: it turns an AgentSpec into a handle
// that drives a chat-completion provider, executing requested tool
// calls through the registry in a bounded loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/llm"
	"github.com/BaSui01/flowgraph/ratelimit"
	"github.com/BaSui01/flowgraph/tools"
	"github.com/BaSui01/flowgraph/workflow"
)

// defaultMaxToolRounds bounds the completion/tool-execution loop for
// one Run call.
const defaultMaxToolRounds = 5

// Invoker creates agents backed by one llm.Provider. It implements
// workflow.AgentClient. Handles are cached per agent name so repeated
// executor builds reuse the same configuration.
type Invoker struct {
	provider llm.Provider
	registry *tools.Registry
	limiter  *ratelimit.Limiter
	logger   *zap.Logger

	model         string
	maxToolRounds int

	mu      sync.Mutex
	handles map[string]*Handle
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithModel sets the model requested from the provider.
func WithModel(model string) Option {
	return func(iv *Invoker) {
		iv.model = model
	}
}

// WithMaxToolRounds bounds the tool-execution loop per Run call.
func WithMaxToolRounds(n int) Option {
	return func(iv *Invoker) {
		if n > 0 {
			iv.maxToolRounds = n
		}
	}
}

// NewInvoker creates an agent invoker.
func NewInvoker(provider llm.Provider, registry *tools.Registry, limiter *ratelimit.Limiter, logger *zap.Logger, opts ...Option) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	iv := &Invoker{
		provider:      provider,
		registry:      registry,
		limiter:       limiter,
		logger:        logger.With(zap.String("component", "agent_invoker")),
		maxToolRounds: defaultMaxToolRounds,
		handles:       make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

// CreateAgent returns a handle for the spec, reusing a cached handle
// when one exists for the same agent name.
func (iv *Invoker) CreateAgent(_ context.Context, spec workflow.AgentSpec) (workflow.AgentHandle, error) {
	if iv.provider == nil {
		return nil, fmt.Errorf("no llm provider configured")
	}

	iv.mu.Lock()
	defer iv.mu.Unlock()
	if h, ok := iv.handles[spec.Name]; ok {
		return h, nil
	}

	// Nil tool list means every registered tool; unresolvable names
	// are dropped by the registry with a warning.
	var schemas []llm.ToolSchema
	if iv.registry != nil {
		schemas = iv.registry.Schemas(spec.Tools)
	}

	iv.logger.Info("agent created",
		zap.String("agent", spec.Name),
		zap.Int("tools", len(schemas)),
	)

	h := &Handle{
		invoker: iv,
		spec:    spec,
		schemas: schemas,
		logger:  iv.logger.With(zap.String("agent", spec.Name)),
	}
	iv.handles[spec.Name] = h
	return h, nil
}

// Handle is one configured agent. Run drives the provider until the
// model answers with text instead of tool calls.
type Handle struct {
	invoker *Invoker
	spec    workflow.AgentSpec
	schemas []llm.ToolSchema
	logger  *zap.Logger
}

// Run sends the message through the provider, executing any requested
// tool calls, and returns the final text. A provider rate-limit
// rejection is recorded with the shared limiter before the error is
// returned.
func (h *Handle) Run(ctx context.Context, message string) (string, error) {
	iv := h.invoker
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: h.spec.Instructions},
		{Role: llm.RoleUser, Content: message},
	}

	for round := 0; round < iv.maxToolRounds; round++ {
		resp, err := iv.provider.Completion(ctx, &llm.ChatRequest{
			Model:    iv.model,
			Messages: messages,
			Tools:    h.schemas,
		})
		if err != nil {
			if llm.IsRateLimited(err) && iv.limiter != nil {
				iv.limiter.RecordError()
				h.logger.Warn("provider rate limited, recorded for adaptive throttling")
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}

		reply := resp.Choices[0].Message
		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    h.executeToolCall(ctx, call),
			})
		}
	}

	return "", fmt.Errorf("agent %q exceeded %d tool rounds", h.spec.Name, iv.maxToolRounds)
}

// executeToolCall runs one requested tool and renders the result as
// text. Tool failures are reported back to the model in-band.
func (h *Handle) executeToolCall(ctx context.Context, call llm.ToolCall) string {
	iv := h.invoker

	var fn workflow.Function
	ok := false
	if iv.registry != nil {
		fn, ok = iv.registry.Resolve(call.Name)
	}
	if !ok {
		h.logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
		return fmt.Sprintf("Error: Function '%s' not found", call.Name)
	}

	params := make(map[string]any)
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &params); err != nil {
			h.logger.Warn("tool arguments are not valid JSON",
				zap.String("tool", call.Name),
				zap.Error(err),
			)
			return fmt.Sprintf("Error: invalid arguments for '%s': %v", call.Name, err)
		}
	}

	h.logger.Info("executing tool call",
		zap.String("tool", call.Name),
		zap.String("call_id", call.ID),
	)
	out, err := fn(ctx, params)
	if err != nil {
		return fmt.Sprintf("Error: Error executing function '%s': %v", call.Name, err)
	}
	return out
}
