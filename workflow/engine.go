package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Streaming events
// =============================================================================

// EventType defines the type of an engine stream event.
type EventType string

const (
	// EventExecutorInvoked is emitted before an executor runs.
	EventExecutorInvoked EventType = "executor_invoked"
	// EventExecutorCompleted is emitted after an executor succeeds.
	EventExecutorCompleted EventType = "executor_completed"
	// EventExecutorFailed is emitted when an executor fails fatally.
	EventExecutorFailed EventType = "executor_failed"
	// EventWorkflowOutput is emitted when a sink node produces output.
	EventWorkflowOutput EventType = "workflow_output"
)

// Event carries information about one execution event. Event ordering
// reflects completion order across concurrent branches, not graph
// declaration order.
type Event struct {
	Type     EventType `json:"type"`
	Executor string    `json:"executor,omitempty"`
	Output   string    `json:"output,omitempty"`
}

// StreamEmitter receives engine events as they occur. Emitters may be
// called from concurrent branches and must be safe for concurrent use.
type StreamEmitter func(Event)

// streamEmitterKey is the context key for StreamEmitter.
type streamEmitterKey struct{}

// WithStreamEmitter stores a StreamEmitter in the context. The engine
// emits step events through it during Run, enabling streaming mode.
func WithStreamEmitter(ctx context.Context, emitter StreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	return context.WithValue(ctx, streamEmitterKey{}, emitter)
}

// streamEmitterFromContext retrieves the StreamEmitter from context.
func streamEmitterFromContext(ctx context.Context) (StreamEmitter, bool) {
	emit, ok := ctx.Value(streamEmitterKey{}).(StreamEmitter)
	return emit, ok && emit != nil
}

// =============================================================================
// Engine
// =============================================================================

// Engine traverses a compiled graph from the start node, dispatching
// messages per edge semantics: sequential chains, concurrent fan-out
// broadcast, condition-routed branches with dead-end pruning, and
// fan-in join barriers. The run terminates when every reachable branch
// reaches a sink or is pruned, or fails fast on the first agent error.
type Engine struct {
	logger *zap.Logger
	tracer trace.Tracer
}

// NewEngine creates an execution engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger.With(zap.String("component", "workflow_engine")),
		tracer: otel.Tracer("flowgraph/workflow"),
	}
}

// Result is the aggregate outcome of one run.
type Result struct {
	// RunID uniquely identifies this run.
	RunID string
	// Output is the final output text: the single sink's output, or
	// multiple sink outputs joined with a single space in branch
	// completion order.
	Output string
}

// Run executes the graph to completion with the given input message.
// On failure it returns immediately with the first error: branches not
// yet started are never launched, in-flight branches are cancelled via
// the group context, and any results they still produce are discarded.
func (e *Engine) Run(ctx context.Context, g *Graph, input string) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))
	emit, _ := streamEmitterFromContext(ctx)

	group, gctx := errgroup.WithContext(ctx)
	r := &run{
		graph:  g,
		logger: logger,
		tracer: e.tracer,
		emit:   emit,
		group:  group,
		ctx:    gctx,
		joins:  make(map[string]*joinState),
		failCh: make(chan error, 1),
	}

	logger.Info("workflow execution started",
		zap.String("workflow", g.Name()),
		zap.String("start", g.Start()),
		zap.Int("input_length", len(input)),
	)

	group.Go(func() error {
		return r.step(g.Start(), input)
	})

	done := make(chan struct{})
	var waitErr error
	go func() {
		// Drain all branches. Fatal errors are surfaced through
		// failCh; Wait additionally catches cancellation of branches
		// that never ran an executor.
		waitErr = group.Wait()
		close(done)
	}()

	select {
	case err := <-r.failCh:
		// Fail fast: the first agent error aborts the run without
		// awaiting in-flight siblings.
		logger.Error("workflow execution failed", zap.Error(err))
		return nil, err
	case <-done:
		select {
		case err := <-r.failCh:
			logger.Error("workflow execution failed", zap.Error(err))
			return nil, err
		default:
		}
		if waitErr != nil {
			logger.Error("workflow execution failed", zap.Error(waitErr))
			return nil, waitErr
		}
		output := strings.Join(r.collected(), " ")
		logger.Info("workflow execution completed",
			zap.Int("output_length", len(output)),
		)
		return &Result{RunID: runID, Output: output}, nil
	}
}

// =============================================================================
// Run state
// =============================================================================

// joinState buffers partial fan-in arrivals for one node. Messages are
// keyed by the position of the arriving edge within the node's
// declared fan-in edges, so the combined message is deterministic and
// independent of arrival order.
type joinState struct {
	arrived map[int]string
	fired   bool
}

// delivery is one pending dispatch of a message to a node.
type delivery struct {
	node string
	msg  string
}

type run struct {
	graph  *Graph
	logger *zap.Logger
	tracer trace.Tracer
	emit   StreamEmitter
	group  *errgroup.Group
	ctx    context.Context

	mu      sync.Mutex
	joins   map[string]*joinState
	outputs []string

	failCh chan error
}

// step invokes one node's executor and routes its output.
func (r *run) step(nodeID string, msg string) error {
	// Branches not yet started are never launched once the run is
	// cancelled by a sibling failure.
	if err := r.ctx.Err(); err != nil {
		return err
	}

	exec, ok := r.graph.Executor(nodeID)
	if !ok {
		err := fmt.Errorf("executor %q not found in graph", nodeID)
		r.fail(err)
		return err
	}

	ctx, span := r.tracer.Start(r.ctx,
		"executor."+string(exec.Type())+"."+nodeID,
		trace.WithAttributes(
			attribute.String("executor.name", nodeID),
			attribute.String("executor.type", string(exec.Type())),
			attribute.Int("executor.input_length", len(msg)),
		),
	)

	r.emitEvent(Event{Type: EventExecutorInvoked, Executor: nodeID})

	out, err := exec.Invoke(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		r.emitEvent(Event{Type: EventExecutorFailed, Executor: nodeID})
		r.fail(err)
		return err
	}
	span.SetAttributes(attribute.Int("executor.output_length", len(out)))
	span.End()

	r.emitEvent(Event{Type: EventExecutorCompleted, Executor: nodeID, Output: out})

	return r.route(nodeID, out)
}

// route applies edge semantics to a node's output. A node with no
// outgoing edges is a sink; its output joins the final result.
func (r *run) route(nodeID string, out string) error {
	edges := r.graph.Outgoing(nodeID)
	if len(edges) == 0 {
		r.collectOutput(out)
		return nil
	}

	var next []delivery
	for _, edge := range edges {
		if edge.Type == EdgeConditional && edge.Condition != nil {
			matched, evalErr := edge.Condition.evaluate(out)
			if evalErr != nil {
				r.logger.Warn("condition evaluation error, treating as false",
					zap.String("from", edge.From),
					zap.String("to", edge.To),
					zap.Error(evalErr),
				)
			}
			if !matched {
				r.logger.Debug("conditional edge not matched",
					zap.String("from", edge.From),
					zap.String("to", edge.To),
				)
				continue
			}
		}

		if edge.Type == EdgeFanIn {
			if ready, combined := r.arrive(edge, out); ready {
				next = append(next, delivery{node: edge.To, msg: combined})
			}
			continue
		}

		next = append(next, delivery{node: edge.To, msg: out})
	}

	switch len(next) {
	case 0:
		// All conditional edges unmatched, or a join still waiting:
		// this branch terminates here. A reachable dead end is not
		// an error.
		return nil
	case 1:
		return r.step(next[0].node, next[0].msg)
	default:
		// Broadcast: each target proceeds as an independent branch.
		for _, d := range next {
			d := d
			r.group.Go(func() error {
				return r.step(d.node, d.msg)
			})
		}
		return nil
	}
}

// arrive records a fan-in arrival and reports whether the join is now
// complete. The combined message canonicalizes arrival order by the
// declared fan-in edge order, newline-joined, so the join result is
// deterministic regardless of branch timing. The join fires exactly
// once; later arrivals along an already-fired join are dropped.
func (r *run) arrive(edge *Edge, msg string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fanIns := r.graph.fanInEdges(edge.To)
	idx := -1
	for i, e := range fanIns {
		if e == edge {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, ""
	}

	js := r.joins[edge.To]
	if js == nil {
		js = &joinState{arrived: make(map[int]string)}
		r.joins[edge.To] = js
	}
	if js.fired {
		return false, ""
	}

	js.arrived[idx] = msg
	if len(js.arrived) < len(fanIns) {
		r.logger.Debug("fan-in arrival buffered",
			zap.String("node", edge.To),
			zap.Int("arrived", len(js.arrived)),
			zap.Int("required", len(fanIns)),
		)
		return false, ""
	}

	js.fired = true
	parts := make([]string, 0, len(fanIns))
	for i := range fanIns {
		parts = append(parts, js.arrived[i])
	}
	return true, strings.Join(parts, "\n")
}

// collectOutput appends a sink output in branch completion order.
func (r *run) collectOutput(out string) {
	r.mu.Lock()
	r.outputs = append(r.outputs, out)
	r.mu.Unlock()
	r.emitEvent(Event{Type: EventWorkflowOutput, Output: out})
}

func (r *run) collected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs
}

// fail records the first fatal error of the run.
func (r *run) fail(err error) {
	select {
	case r.failCh <- err:
	default:
	}
}

func (r *run) emitEvent(ev Event) {
	if r.emit != nil {
		r.emit(ev)
	}
}
