package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/flowgraph/ratelimit"
)

// stubAgentClient is a fake agent-invocation capability for tests.
// The run callback receives the agent spec and the input message.
type stubAgentClient struct {
	mu        sync.Mutex
	created   []AgentSpec
	createErr error
	run       func(spec AgentSpec, message string) (string, error)
}

func (c *stubAgentClient) CreateAgent(_ context.Context, spec AgentSpec) (AgentHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, spec)
	return &stubHandle{client: c, spec: spec}, nil
}

func (c *stubAgentClient) createdSpecs() []AgentSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AgentSpec, len(c.created))
	copy(out, c.created)
	return out
}

type stubHandle struct {
	client *stubAgentClient
	spec   AgentSpec
}

func (h *stubHandle) Run(_ context.Context, message string) (string, error) {
	if h.client.run == nil {
		return "ok:" + message, nil
	}
	return h.client.run(h.spec, message)
}

// stubRegistry is a fake named-function registry.
type stubRegistry map[string]Function

func (r stubRegistry) Resolve(name string) (Function, bool) {
	fn, ok := r[name]
	return fn, ok
}

// testBuilder returns a builder with a fast rate limiter so tests are
// not paced by the default 1s interval.
func testBuilder(client AgentClient, functions FunctionRegistry) *Builder {
	return NewBuilder(client, functions,
		WithRateLimiter(ratelimit.New(time.Millisecond)),
	)
}
