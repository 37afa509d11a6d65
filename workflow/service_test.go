package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *stubMetrics) RecordWorkflowExecution(workflow, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, workflow+"/"+status)
}

func (m *stubMetrics) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}

func testService(client AgentClient, opts ...ServiceOption) *Service {
	return NewService(testBuilder(client, stubRegistry{}), NewEngine(nil), nil, opts...)
}

func stepKinds(steps []ExecutionStep) []StepKind {
	kinds := make([]StepKind, 0, len(steps))
	for _, s := range steps {
		kinds = append(kinds, s.Step)
	}
	return kinds
}

func TestService_Execute(t *testing.T) {
	metrics := &stubMetrics{}
	svc := testService(&stubAgentClient{}, WithMetrics(metrics))

	res, err := svc.Execute(context.Background(), twoAgentDefinition(), "Analyze this data: [1,2,3,4,5]", false)
	require.NoError(t, err)

	assert.Equal(t, "formatter(analyzer(Analyze this data: [1,2,3,4,5]))", res.Output)
	assert.NotEmpty(t, res.WorkflowID)

	assert.Equal(t, []StepKind{
		StepExecutorCreated,
		StepExecutorCreated,
		StepEdgeAdded,
		StepWorkflowBuilt,
		StepExecutionStarted,
		StepExecutionCompleted,
	}, stepKinds(res.Steps))

	last := res.Steps[len(res.Steps)-1]
	assert.Equal(t, "success", last.Status)
	assert.Equal(t, len(res.Output), last.OutputLength)

	assert.Equal(t, []string{"analysis/success"}, metrics.recorded())
}

func TestService_ExecuteStreaming(t *testing.T) {
	svc := testService(&stubAgentClient{})

	res, err := svc.Execute(context.Background(), twoAgentDefinition(), "data", true)
	require.NoError(t, err)

	var events []ExecutionStep
	for _, s := range res.Steps {
		if s.Step == StepWorkflowEvent {
			events = append(events, s)
		}
	}

	// invoked/completed per executor, plus the sink output event,
	// numbered in completion order.
	require.Len(t, events, 5)
	assert.Equal(t, []string{
		string(EventExecutorInvoked),
		string(EventExecutorCompleted),
		string(EventExecutorInvoked),
		string(EventExecutorCompleted),
		string(EventWorkflowOutput),
	}, []string{events[0].EventType, events[1].EventType, events[2].EventType, events[3].EventType, events[4].EventType})
	for i, ev := range events {
		assert.Equal(t, i+1, ev.EventNumber)
	}

	// The event steps sit between the started and completed markers.
	assert.Equal(t, StepExecutionStarted, res.Steps[4].Step)
	assert.Equal(t, StepExecutionCompleted, res.Steps[len(res.Steps)-1].Step)
}

func TestService_ExecuteNonStreamingHasNoEventSteps(t *testing.T) {
	svc := testService(&stubAgentClient{})

	res, err := svc.Execute(context.Background(), twoAgentDefinition(), "data", false)
	require.NoError(t, err)
	for _, s := range res.Steps {
		assert.NotEqual(t, StepWorkflowEvent, s.Step)
	}
}

func TestService_ExecuteBuildFailure(t *testing.T) {
	metrics := &stubMetrics{}
	svc := testService(&stubAgentClient{}, WithMetrics(metrics))

	res, err := svc.Execute(context.Background(), &Definition{Name: "empty", StartExecutor: "x"}, "data", false)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	require.Len(t, res.Steps, 1)
	assert.Equal(t, StepExecutionFailed, res.Steps[0].Step)
	assert.Equal(t, "ValidationError", res.Steps[0].ErrorType)
	assert.NotEmpty(t, res.Steps[0].Error)

	assert.Equal(t, []string{"empty/error"}, metrics.recorded())
}

func TestService_ExecuteAgentFailureKeepsTrace(t *testing.T) {
	client := &stubAgentClient{
		run: func(spec AgentSpec, message string) (string, error) {
			if spec.Name == "formatter" {
				return "", errors.New("provider is down")
			}
			return "ok:" + message, nil
		},
	}
	svc := testService(client)

	res, err := svc.Execute(context.Background(), twoAgentDefinition(), "data", false)
	require.Error(t, err)

	kinds := stepKinds(res.Steps)
	require.NotEmpty(t, kinds)
	assert.Contains(t, kinds, StepExecutionStarted)
	last := res.Steps[len(res.Steps)-1]
	assert.Equal(t, StepExecutionFailed, last.Step)
	assert.Equal(t, "AgentInvocationError", last.ErrorType)
	assert.Contains(t, last.Error, "provider is down")
}

func TestService_ExecuteNilDefinition(t *testing.T) {
	svc := testService(&stubAgentClient{})

	res, err := svc.Execute(context.Background(), nil, "data", false)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.NotNil(t, res)
	assert.Empty(t, res.Steps)
}
