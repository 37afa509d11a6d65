package workflow

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError reports a workflow definition that cannot be built:
// an empty executor list or a start executor that matches no executor
// name. Dangling edge references are not validation errors; they are
// dropped with a warning during build.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "workflow validation failed: " + e.Reason
}

// AgentInvocationError reports a failed call to the external agent
// capability. It is fatal to the run: the engine aborts fan-out
// siblings and surfaces the error to the caller.
type AgentInvocationError struct {
	Agent string
	Err   error
}

func (e *AgentInvocationError) Error() string {
	return fmt.Sprintf("agent %q invocation failed: %v", e.Agent, e.Err)
}

func (e *AgentInvocationError) Unwrap() error {
	return e.Err
}

// ErrorKind maps an error to the error_type tag recorded in
// workflow_execution_failed steps and used by the transport layer to
// choose a response code.
func ErrorKind(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "ValidationError"
	}
	var ae *AgentInvocationError
	if errors.As(err, &ae) {
		return "AgentInvocationError"
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DeadlineExceeded"
	}
	return "Error"
}
