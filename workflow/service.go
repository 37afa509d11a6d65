package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MetricsRecorder receives workflow execution outcomes. Implementations
// live outside the engine core (see internal/metrics).
type MetricsRecorder interface {
	RecordWorkflowExecution(workflow, status string, duration time.Duration)
}

// ExecutionResult is the aggregate returned by Service.Execute: the
// final output, identifiers for correlation, and the ordered trace.
type ExecutionResult struct {
	Output     string          `json:"output"`
	TraceID    string          `json:"trace_id,omitempty"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	Steps      []ExecutionStep `json:"execution_steps"`
}

// Service is the exposed workflow ingestion operation: it accepts a
// definition plus an input message, builds the graph, runs it, and
// returns the output with the complete step trace. Both success and
// failure carry the trace recorded up to that point.
type Service struct {
	builder *Builder
	engine  *Engine
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics MetricsRecorder
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics sets the metrics recorder for execution outcomes.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a workflow service.
func NewService(builder *Builder, engine *Engine, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		builder: builder,
		engine:  engine,
		logger:  logger.With(zap.String("component", "workflow_service")),
		tracer:  otel.Tracer("flowgraph/workflow"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute builds and runs a workflow definition. When streaming is
// true, each engine event is additionally recorded as a workflow_event
// step in completion order. The returned ExecutionResult always
// carries the trace, including on failure.
func (s *Service) Execute(ctx context.Context, def *Definition, input string, streaming bool) (*ExecutionResult, error) {
	if def == nil {
		return &ExecutionResult{}, &ValidationError{Reason: "workflow definition is nil"}
	}

	ctx, span := s.tracer.Start(ctx, "workflow."+def.Name,
		trace.WithAttributes(
			attribute.String("workflow.name", def.Name),
			attribute.String("workflow.type", string(def.WorkflowType)),
			attribute.Int("workflow.executor_count", len(def.Executors)),
			attribute.Int("workflow.edge_count", len(def.Edges)),
			attribute.String("workflow.start_executor", def.StartExecutor),
			attribute.Bool("workflow.streaming", streaming),
		),
	)
	defer span.End()

	res := &ExecutionResult{}
	if sc := span.SpanContext(); sc.HasTraceID() {
		res.TraceID = sc.TraceID().String()
	}

	s.logger.Info("workflow execution requested",
		zap.String("workflow", def.Name),
		zap.String("trace_id", res.TraceID),
		zap.Int("executors", len(def.Executors)),
		zap.Int("edges", len(def.Edges)),
		zap.Bool("streaming", streaming),
	)

	start := time.Now()

	graph, err := s.builder.Build(def)
	if err != nil {
		res.Steps = append(res.Steps, ExecutionStep{
			Step:      StepExecutionFailed,
			Error:     err.Error(),
			ErrorType: ErrorKind(err),
		})
		span.SetStatus(codes.Error, err.Error())
		s.recordOutcome(def.Name, "error", start)
		return res, err
	}

	if cycle := graph.DetectCycle(); cycle != nil {
		s.logger.Warn("workflow graph contains a cycle",
			zap.String("workflow", def.Name),
			zap.String("cycle", strings.Join(cycle, " -> ")),
		)
	}

	// The trace and the streaming emitter share one mutex: events
	// arrive from concurrent branches, and in-flight branches of a
	// failed run may still emit after Run has returned.
	var mu sync.Mutex
	closed := false
	steps := graph.BuildSteps()
	steps = append(steps, ExecutionStep{Step: StepExecutionStarted})

	runCtx := ctx
	if streaming {
		// An emitter already present in ctx (for example an SSE writer)
		// receives each event as well, serialized under the same mutex.
		forward, _ := streamEmitterFromContext(ctx)
		eventNumber := 0
		runCtx = WithStreamEmitter(ctx, func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			eventNumber++
			steps = append(steps, ExecutionStep{
				Step:        StepWorkflowEvent,
				EventType:   string(ev.Type),
				EventNumber: eventNumber,
			})
			if forward != nil {
				forward(ev)
			}
		})
	}

	result, err := s.engine.Run(runCtx, graph, input)

	mu.Lock()
	closed = true
	if err != nil {
		steps = append(steps, ExecutionStep{
			Step:      StepExecutionFailed,
			Error:     err.Error(),
			ErrorType: ErrorKind(err),
		})
	} else {
		steps = append(steps, ExecutionStep{
			Step:         StepExecutionCompleted,
			Status:       "success",
			OutputLength: len(result.Output),
		})
	}
	res.Steps = steps
	mu.Unlock()

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("workflow.error_type", ErrorKind(err)))
		s.recordOutcome(def.Name, "error", start)
		s.logger.Error("workflow execution failed",
			zap.String("workflow", def.Name),
			zap.String("trace_id", res.TraceID),
			zap.Error(err),
		)
		return res, err
	}

	res.Output = result.Output
	res.WorkflowID = result.RunID
	span.SetAttributes(attribute.Int("workflow.output_length", len(result.Output)))
	s.recordOutcome(def.Name, "success", start)
	s.logger.Info("workflow execution completed",
		zap.String("workflow", def.Name),
		zap.String("trace_id", res.TraceID),
		zap.Int("output_length", len(result.Output)),
	)
	return res, nil
}

func (s *Service) recordOutcome(workflow, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordWorkflowExecution(workflow, status, time.Since(start))
	}
}
