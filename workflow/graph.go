package workflow

// Edge is a compiled directed edge between two executors.
type Edge struct {
	From      string
	To        string
	Type      EdgeType
	Condition *Condition
}

// Graph is the compiled, immutable workflow graph produced by the
// Builder. It owns all executor instances and maintains per-node
// outgoing and incoming edge lists; the incoming lists drive fan-in
// join counting. The engine borrows the graph for one run; a Graph
// must not be shared across concurrent runs because executors cache
// per-run agent handles.
type Graph struct {
	name        string
	description string
	start       string
	executors   map[string]Executor
	order       []string
	outgoing    map[string][]*Edge
	incoming    map[string][]*Edge
	buildSteps  []ExecutionStep
}

// Name returns the workflow name.
func (g *Graph) Name() string { return g.name }

// Description returns the workflow description.
func (g *Graph) Description() string { return g.description }

// Start returns the entry executor name.
func (g *Graph) Start() string { return g.start }

// Executor retrieves an executor by name.
func (g *Graph) Executor(name string) (Executor, bool) {
	e, ok := g.executors[name]
	return e, ok
}

// ExecutorNames returns executor names in declaration order.
func (g *Graph) ExecutorNames() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Outgoing returns the outgoing edges of a node in declaration order.
func (g *Graph) Outgoing(name string) []*Edge { return g.outgoing[name] }

// Incoming returns the incoming edges of a node in declaration order.
func (g *Graph) Incoming(name string) []*Edge { return g.incoming[name] }

// BuildSteps returns the trace steps recorded while building.
func (g *Graph) BuildSteps() []ExecutionStep {
	out := make([]ExecutionStep, len(g.buildSteps))
	copy(out, g.buildSteps)
	return out
}

// fanInEdges returns the incoming edges of type fan_in, in declaration
// order. A node with two or more of these is a join barrier.
func (g *Graph) fanInEdges(name string) []*Edge {
	var edges []*Edge
	for _, e := range g.incoming[name] {
		if e.Type == EdgeFanIn {
			edges = append(edges, e)
		}
	}
	return edges
}

// DetectCycle returns the nodes of one cycle reachable in the graph,
// or nil when the graph is acyclic. The builder does not reject
// cycles; callers may use this to warn before running a definition
// that would otherwise dispatch forever.
func (g *Graph) DetectCycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.executors))
	var stack []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		state[node] = visiting
		stack = append(stack, node)
		for _, e := range g.outgoing[node] {
			switch state[e.To] {
			case visiting:
				// Back edge: slice the current stack from the
				// repeated node to form the cycle.
				for i, n := range stack {
					if n == e.To {
						cycle = append(append([]string{}, stack[i:]...), e.To)
						return true
					}
				}
			case unvisited:
				if visit(e.To) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return false
	}

	for _, node := range g.order {
		if state[node] == unvisited && visit(node) {
			return cycle
		}
	}
	return nil
}
