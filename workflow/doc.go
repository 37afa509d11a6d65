// Package workflow implements the dynamic workflow orchestration
// engine: a declarative Definition of agent- and function-backed
// executors connected by typed edges is validated and compiled by the
// Builder into an executable Graph, which the Engine walks applying
// sequential, fan-out, conditional, and fan-in routing while recording
// an ordered ExecutionStep trace.
//
// The package consumes its collaborators through narrow interfaces:
// AgentClient (the external agent-invocation capability) and
// FunctionRegistry (the named-function registry). Concrete
// implementations live in the agent and tools packages.
package workflow
