package workflow

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/ratelimit"
)

// Builder validates a workflow definition, instantiates executors, and
// compiles the directed graph of nodes and typed edges. Build fails
// only on an empty executor list or an unknown start executor; edges
// and executor configs with unresolvable references are dropped with a
// warning and the build proceeds with a smaller graph.
type Builder struct {
	client    AgentClient
	functions FunctionRegistry
	limiter   *ratelimit.Limiter
	logger    *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger.With(zap.String("component", "workflow_builder"))
	}
}

// WithRateLimiter sets the shared rate limiter passed to every agent
// executor. Defaults to a process-wide limiter with a 1s interval.
func WithRateLimiter(limiter *ratelimit.Limiter) BuilderOption {
	return func(b *Builder) {
		b.limiter = limiter
	}
}

// NewBuilder creates a Builder backed by the given agent capability
// and function registry.
func NewBuilder(client AgentClient, functions FunctionRegistry, opts ...BuilderOption) *Builder {
	b := &Builder{
		client:    client,
		functions: functions,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.limiter == nil {
		b.limiter = ratelimit.New(time.Second)
	}
	return b
}

// RateLimiter returns the shared limiter used by agent executors, so
// the boundary layer can record upstream rate-limit rejections on it.
func (b *Builder) RateLimiter() *ratelimit.Limiter { return b.limiter }

// Build compiles a definition into an executable Graph. The returned
// graph carries the executor_created, edge_added, and workflow_built
// trace steps recorded while building.
func (b *Builder) Build(def *Definition) (*Graph, error) {
	if def == nil {
		return nil, &ValidationError{Reason: "workflow definition is nil"}
	}
	if len(def.Executors) == 0 {
		return nil, &ValidationError{Reason: "workflow has no executors"}
	}

	g := &Graph{
		name:        def.Name,
		description: def.Description,
		executors:   make(map[string]Executor, len(def.Executors)),
		outgoing:    make(map[string][]*Edge),
		incoming:    make(map[string][]*Edge),
	}

	for _, cfg := range def.Executors {
		var exec Executor
		switch cfg.Type {
		case ExecutorAgent:
			exec = NewAgentExecutor(cfg, b.client, b.limiter, b.logger)
		case ExecutorFunction:
			exec = NewFunctionExecutor(cfg, b.functions, b.logger)
		default:
			b.logger.Error("unknown executor type, skipping",
				zap.String("executor", cfg.Name),
				zap.String("type", string(cfg.Type)),
			)
			continue
		}

		if _, exists := g.executors[cfg.Name]; !exists {
			g.order = append(g.order, cfg.Name)
		}
		g.executors[cfg.Name] = exec
		g.buildSteps = append(g.buildSteps, ExecutionStep{
			Step:     StepExecutorCreated,
			Executor: cfg.Name,
			Type:     string(cfg.Type),
		})
		b.logger.Info("executor created",
			zap.String("executor", cfg.Name),
			zap.String("type", string(cfg.Type)),
		)
	}

	if _, ok := g.executors[def.StartExecutor]; !ok {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("start executor %q not found", def.StartExecutor),
		}
	}
	g.start = def.StartExecutor

	edgesAdded := 0
	for _, cfg := range def.Edges {
		if _, ok := g.executors[cfg.FromExecutor]; !ok {
			b.logger.Warn("edge skipped, source executor not found",
				zap.String("from", cfg.FromExecutor),
				zap.String("to", cfg.ToExecutor),
			)
			continue
		}
		if _, ok := g.executors[cfg.ToExecutor]; !ok {
			b.logger.Warn("edge skipped, target executor not found",
				zap.String("from", cfg.FromExecutor),
				zap.String("to", cfg.ToExecutor),
			)
			continue
		}

		edgeType := cfg.EdgeType
		if edgeType == "" {
			edgeType = EdgeDirect
		}
		edge := &Edge{
			From:      cfg.FromExecutor,
			To:        cfg.ToExecutor,
			Type:      edgeType,
			Condition: cfg.Condition,
		}
		g.outgoing[edge.From] = append(g.outgoing[edge.From], edge)
		g.incoming[edge.To] = append(g.incoming[edge.To], edge)
		edgesAdded++

		g.buildSteps = append(g.buildSteps, ExecutionStep{
			Step: StepEdgeAdded,
			From: edge.From,
			To:   edge.To,
			Type: string(edgeType),
		})
		b.logger.Debug("edge added",
			zap.String("from", edge.From),
			zap.String("to", edge.To),
			zap.String("type", string(edgeType)),
		)
	}

	g.buildSteps = append(g.buildSteps, ExecutionStep{
		Step:   StepWorkflowBuilt,
		Status: "success",
	})
	b.logger.Info("workflow built",
		zap.String("workflow", def.Name),
		zap.Int("executors", len(g.executors)),
		zap.Int("edges", edgesAdded),
		zap.String("start", g.start),
	)
	return g, nil
}
