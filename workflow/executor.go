package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/ratelimit"
)

// AgentSpec describes the conversational agent an executor needs from
// the external agent capability.
type AgentSpec struct {
	// Name is the agent identity used in logs and spans.
	Name string
	// Instructions is the system prompt.
	Instructions string
	// Tools lists tool names to enable. Unresolvable names are
	// dropped by the capability with a warning.
	Tools []string
}

// AgentHandle is a configured agent ready to process messages.
type AgentHandle interface {
	Run(ctx context.Context, message string) (string, error)
}

// AgentClient is the external agent-invocation capability consumed by
// agent executors. Implementations live outside the engine core.
type AgentClient interface {
	CreateAgent(ctx context.Context, spec AgentSpec) (AgentHandle, error)
}

// Function is a named unit of work in the external function registry.
// The current message is passed under the reserved "input" key.
type Function func(ctx context.Context, params map[string]any) (string, error)

// FunctionRegistry resolves function names to callables.
type FunctionRegistry interface {
	Resolve(name string) (Function, bool)
}

// Executor is a named unit of work in the compiled graph. Invoke
// processes one input message and returns one output message.
type Executor interface {
	Name() string
	Type() ExecutorType
	Invoke(ctx context.Context, message string) (string, error)
}

// =============================================================================
// Agent executor
// =============================================================================

// AgentExecutor invokes an external conversational agent. The agent
// handle is created lazily on first use and cached for the executor's
// lifetime. Every invocation passes the shared rate-limit gate before
// calling out. Failures are fatal to the run and surface as
// *AgentInvocationError; retries, if any, are the external
// capability's responsibility.
type AgentExecutor struct {
	name         string
	agentName    string
	instructions string
	tools        []string

	client  AgentClient
	limiter *ratelimit.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	handle AgentHandle
}

// NewAgentExecutor creates an agent executor from its config.
func NewAgentExecutor(cfg ExecutorConfig, client AgentClient, limiter *ratelimit.Limiter, logger *zap.Logger) *AgentExecutor {
	agentName := cfg.AgentName
	if agentName == "" {
		agentName = cfg.Name
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentExecutor{
		name:         cfg.Name,
		agentName:    agentName,
		instructions: instructions,
		tools:        cfg.Tools,
		client:       client,
		limiter:      limiter,
		logger:       logger.With(zap.String("executor", cfg.Name)),
	}
}

func (e *AgentExecutor) Name() string       { return e.name }
func (e *AgentExecutor) Type() ExecutorType { return ExecutorAgent }

// AgentName returns the display identity used in logs and spans.
func (e *AgentExecutor) AgentName() string { return e.agentName }

// Invoke waits at the rate-limit gate, then runs the agent with the
// message. An empty agent response becomes the literal "OK".
func (e *AgentExecutor) Invoke(ctx context.Context, message string) (string, error) {
	handle, err := e.getAgent(ctx)
	if err != nil {
		return "", &AgentInvocationError{Agent: e.agentName, Err: err}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", &AgentInvocationError{Agent: e.agentName, Err: err}
		}
	}

	e.logger.Info("agent executor invoking",
		zap.String("agent", e.agentName),
		zap.Int("input_length", len(message)),
	)

	out, err := handle.Run(ctx, message)
	if err != nil {
		e.logger.Error("agent executor failed",
			zap.String("agent", e.agentName),
			zap.Error(err),
		)
		return "", &AgentInvocationError{Agent: e.agentName, Err: err}
	}
	if out == "" {
		out = "OK"
	}

	e.logger.Info("agent executor completed",
		zap.String("agent", e.agentName),
		zap.Int("output_length", len(out)),
	)
	return out, nil
}

// getAgent returns the cached agent handle, creating it on first use.
func (e *AgentExecutor) getAgent(ctx context.Context) (AgentHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != nil {
		return e.handle, nil
	}
	handle, err := e.client.CreateAgent(ctx, AgentSpec{
		Name:         e.agentName,
		Instructions: e.instructions,
		Tools:        e.tools,
	})
	if err != nil {
		return nil, err
	}
	e.handle = handle
	return handle, nil
}

// =============================================================================
// Function executor
// =============================================================================

// FunctionExecutor calls a named function from the external registry.
// Function failures never abort the workflow: a missing function, a
// returned error, or a panic all become an in-band "Error: ..." output
// message, asymmetric with agent executors.
type FunctionExecutor struct {
	name         string
	functionName string
	parameters   map[string]any

	registry FunctionRegistry
	logger   *zap.Logger
}

// NewFunctionExecutor creates a function executor from its config.
func NewFunctionExecutor(cfg ExecutorConfig, registry FunctionRegistry, logger *zap.Logger) *FunctionExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FunctionExecutor{
		name:         cfg.Name,
		functionName: cfg.FunctionName,
		parameters:   cfg.Parameters,
		registry:     registry,
		logger:       logger.With(zap.String("executor", cfg.Name)),
	}
}

func (e *FunctionExecutor) Name() string       { return e.name }
func (e *FunctionExecutor) Type() ExecutorType { return ExecutorFunction }

// Invoke merges the configured parameters with the message (under the
// reserved "input" key) and calls the function.
func (e *FunctionExecutor) Invoke(ctx context.Context, message string) (out string, err error) {
	fn, ok := e.registry.Resolve(e.functionName)
	if !ok {
		e.logger.Error("function not found", zap.String("function", e.functionName))
		return fmt.Sprintf("Error: Function '%s' not found", e.functionName), nil
	}

	params := make(map[string]any, len(e.parameters)+1)
	for k, v := range e.parameters {
		params[k] = v
	}
	params["input"] = message

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("function panicked",
				zap.String("function", e.functionName),
				zap.Any("panic", r),
			)
			out = fmt.Sprintf("Error: Error executing function '%s': %v", e.functionName, r)
			err = nil
		}
	}()

	result, callErr := fn(ctx, params)
	if callErr != nil {
		e.logger.Error("function failed",
			zap.String("function", e.functionName),
			zap.Error(callErr),
		)
		return fmt.Sprintf("Error: Error executing function '%s': %v", e.functionName, callErr), nil
	}
	return result, nil
}
