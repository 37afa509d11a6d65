package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// WorkflowType is an advisory tag describing the overall shape of a
// workflow. Actual routing behavior is fully determined by edge types.
type WorkflowType string

const (
	// WorkflowSequential is a linear chain of executors.
	WorkflowSequential WorkflowType = "sequential"
	// WorkflowParallel contains fan-out branches.
	WorkflowParallel WorkflowType = "parallel"
	// WorkflowConditional contains condition-routed edges.
	WorkflowConditional WorkflowType = "conditional"
	// WorkflowDynamic is a free-form graph.
	WorkflowDynamic WorkflowType = "dynamic"
)

// ExecutorType discriminates executor config variants.
type ExecutorType string

const (
	// ExecutorAgent is an executor backed by a conversational agent.
	ExecutorAgent ExecutorType = "agent"
	// ExecutorFunction is an executor backed by a registered function.
	ExecutorFunction ExecutorType = "function"
)

// EdgeType defines how a message is routed along an edge.
type EdgeType string

const (
	// EdgeDirect routes the output to a single target.
	EdgeDirect EdgeType = "direct"
	// EdgeConditional routes only when the edge condition matches.
	EdgeConditional EdgeType = "conditional"
	// EdgeFanOut broadcasts the output to a concurrent branch.
	EdgeFanOut EdgeType = "fan_out"
	// EdgeFanIn feeds a join barrier on the target node.
	EdgeFanIn EdgeType = "fan_in"
)

// DefaultInstructions is the system prompt used when an agent executor
// config carries no instructions.
const DefaultInstructions = "You are a helpful assistant."

// ExecutorConfig declares one executor of a workflow. It is a flat
// struct discriminated by Type: agent executors use AgentName,
// Instructions, and Tools; function executors use FunctionName and
// Parameters.
type ExecutorConfig struct {
	// Type is the executor variant: "agent" or "function".
	Type ExecutorType `json:"type" yaml:"type"`
	// Name uniquely identifies the executor within the workflow.
	Name string `json:"name" yaml:"name"`

	// AgentName is the display identity used in logs and spans.
	// Defaults to Name.
	AgentName string `json:"agent_name,omitempty" yaml:"agent_name,omitempty"`
	// Instructions is the agent system prompt.
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	// Tools lists tool names to enable for the agent. Unresolvable
	// names are dropped with a warning.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`

	// FunctionName names the registered function to call.
	FunctionName string `json:"function_name,omitempty" yaml:"function_name,omitempty"`
	// Parameters is merged into the function call alongside the
	// current message.
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// EdgeConfig declares a directed edge between two executors.
type EdgeConfig struct {
	FromExecutor string `json:"from_executor" yaml:"from_executor"`
	ToExecutor   string `json:"to_executor" yaml:"to_executor"`
	// EdgeType defaults to "direct" when empty.
	EdgeType EdgeType `json:"edge_type,omitempty" yaml:"edge_type,omitempty"`
	// Condition is evaluated for conditional edges.
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Definition is the complete declarative workflow graph.
type Definition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Executors is the ordered list of executor configs. Names must
	// be unique within the workflow.
	Executors []ExecutorConfig `json:"executors" yaml:"executors"`
	// Edges is the ordered list of edges connecting executors.
	Edges []EdgeConfig `json:"edges" yaml:"edges"`
	// StartExecutor names the entry executor.
	StartExecutor string `json:"start_executor" yaml:"start_executor"`
	// WorkflowType is advisory only.
	WorkflowType WorkflowType `json:"workflow_type,omitempty" yaml:"workflow_type,omitempty"`
}

// ParseDefinition decodes a YAML (or JSON) workflow definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	return &def, nil
}

// Marshal encodes the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow definition: %w", err)
	}
	return out, nil
}
