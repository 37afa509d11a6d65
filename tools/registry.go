// Package tools provides the named-function registry consumed by
// workflow function executors and the tool schemas exposed to agents.
package tools

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/llm"
	"github.com/BaSui01/flowgraph/workflow"
)

// Tool bundles the schema advertised to the model with the callable
// that backs it.
type Tool struct {
	Schema llm.ToolSchema
	Call   workflow.Function
}

// Registry maps tool names to tools. It implements the engine's
// FunctionRegistry contract and additionally serves schemas to the
// agent layer.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger.With(zap.String("component", "tool_registry")),
		tools:  make(map[string]Tool),
	}
}

// DefaultRegistry returns a registry with the built-in tools.
func DefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(ExecuteCommand(logger))
	return r
}

// Register adds or replaces a tool under its schema name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Schema.Name] = t
}

// Resolve returns the callable for name.
func (r *Registry) Resolve(name string) (workflow.Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return t.Call, true
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the schemas for the requested tool names; nil means
// all registered tools. Unresolvable names are dropped with a warning,
// never fatal.
func (r *Registry) Schemas(names []string) []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if names == nil {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	schemas := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			r.logger.Warn("tool not found, skipping", zap.String("tool", name))
			continue
		}
		schemas = append(schemas, t.Schema)
	}
	return schemas
}
