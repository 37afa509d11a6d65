package workflow

// StepKind tags an ExecutionStep with the build or run event it records.
type StepKind string

const (
	// StepExecutorCreated records an executor instantiated during build.
	StepExecutorCreated StepKind = "executor_created"
	// StepEdgeAdded records an edge registered during build.
	StepEdgeAdded StepKind = "edge_added"
	// StepWorkflowBuilt records a successful build.
	StepWorkflowBuilt StepKind = "workflow_built"
	// StepExecutionStarted records the start of a run.
	StepExecutionStarted StepKind = "workflow_execution_started"
	// StepWorkflowEvent records one streamed execution event.
	StepWorkflowEvent StepKind = "workflow_event"
	// StepExecutionCompleted records a successful run.
	StepExecutionCompleted StepKind = "workflow_execution_completed"
	// StepExecutionFailed records a failed run.
	StepExecutionFailed StepKind = "workflow_execution_failed"
)

// ExecutionStep is one immutable record of the build/run audit trail.
// Steps are appended in order and returned to the caller verbatim;
// they are never persisted beyond the single run.
type ExecutionStep struct {
	Step StepKind `json:"step"`

	// Executor and Type are set for executor_created steps.
	Executor string `json:"executor,omitempty"`
	Type     string `json:"type,omitempty"`

	// From and To are set for edge_added steps.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Status is "success" on workflow_built and completion steps.
	Status string `json:"status,omitempty"`

	// OutputLength is set on workflow_execution_completed.
	OutputLength int `json:"output_length,omitempty"`

	// EventType and EventNumber are set on workflow_event steps.
	EventType   string `json:"event_type,omitempty"`
	EventNumber int    `json:"event_number,omitempty"`

	// Error and ErrorType are set on workflow_execution_failed.
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}
