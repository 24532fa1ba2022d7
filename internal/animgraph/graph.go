package animgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Graph is the shared, read-only-during-evaluation description of an
// animation graph. Instances bind to it to evaluate.
type Graph struct {
	name   string
	root   *StateMachine
	logger *slog.Logger

	params     []ParameterDef
	paramIndex map[string]int

	nodes       []Node
	nodeIndex   map[string]Node
	transitions []*Transition
	conditions  []Condition
	numObjects  int
	initialized bool
	report      *LoadReport

	mu        sync.Mutex
	instances []*Instance
}

// NewGraph creates a graph with the given root state machine.
func NewGraph(name string, root *StateMachine) *Graph {
	return &Graph{
		name:       name,
		root:       root,
		logger:     slog.Default(),
		paramIndex: make(map[string]int),
		nodeIndex:  make(map[string]Node),
	}
}

// SetLogger sets the logger used for load-time diagnostics.
func (g *Graph) SetLogger(l *slog.Logger) {
	if l != nil {
		g.logger = l
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Root returns the root state machine.
func (g *Graph) Root() *StateMachine { return g.root }

// AddParameter declares a control parameter.
func (g *Graph) AddParameter(def ParameterDef) error {
	if def.Name == "" {
		return errors.New("parameter name is required")
	}
	if _, ok := g.paramIndex[def.Name]; ok {
		return &StructuralError{Kind: KindDuplicateName, Msg: fmt.Sprintf("parameter %q declared twice", def.Name)}
	}
	if def.Default.Type == ValueNone {
		def.Default = Value{Type: def.Type}
	}
	g.paramIndex[def.Name] = len(g.params)
	g.params = append(g.params, def)
	return nil
}

// Parameters returns the declared parameters.
func (g *Graph) Parameters() []ParameterDef { return g.params }

// ParameterIndex returns the index of a named parameter.
func (g *Graph) ParameterIndex(name string) (int, bool) {
	i, ok := g.paramIndex[name]
	return i, ok
}

// Nodes returns every node in pre-order, the root first.
func (g *Graph) Nodes() []Node { return g.nodes }

// FindNode returns the node with the given name, or nil.
func (g *Graph) FindNode(name string) Node { return g.nodeIndex[name] }

// Transitions returns every transition of every state machine.
func (g *Graph) Transitions() []*Transition { return g.transitions }

// NumObjects returns the number of indexed objects.
func (g *Graph) NumObjects() int { return g.numObjects }

// Initialized reports whether InitAfterLoading has run.
func (g *Graph) Initialized() bool { return g.initialized }

// Report returns the result of InitAfterLoading, or nil before it ran.
func (g *Graph) Report() *LoadReport { return g.report }

// InitAfterLoading validates the wiring, removes cycles, assigns object
// indices and resolves name references. Structural problems are recovered
// from and recorded in the report rather than failing the graph.
func (g *Graph) InitAfterLoading() *LoadReport {
	report := &LoadReport{}
	g.nodes = g.nodes[:0]
	g.transitions = g.transitions[:0]
	g.conditions = g.conditions[:0]
	g.nodeIndex = make(map[string]Node)

	if g.root != nil {
		g.collect(g.root, nil, report)
	}
	g.removeDanglingConnections(report)
	report.RemovedConnections = removeCycles(g.nodes)
	for _, rc := range report.RemovedConnections {
		report.add(&StructuralError{Kind: KindCycle, Node: rc.Target, Msg: rc.String()})
	}

	index := 0
	for _, n := range g.nodes {
		n.(indexable).setObjectIndex(index)
		index++
	}
	for _, t := range g.transitions {
		t.setObjectIndex(index)
		index++
	}
	for _, c := range g.conditions {
		c.(indexable).setObjectIndex(index)
		index++
	}
	g.numObjects = index

	for _, n := range g.nodes {
		if r, ok := n.(resolver); ok {
			for _, err := range r.resolve(g) {
				report.add(err)
			}
		}
	}
	for _, c := range g.conditions {
		if r, ok := c.(resolver); ok {
			for _, err := range r.resolve(g) {
				report.add(err)
			}
		}
	}

	for _, p := range report.Problems {
		g.logger.Warn("graph structural problem", "graph", g.name, "kind", p.Kind, "node", p.Node, "detail", p.Msg)
	}
	g.report = report
	g.initialized = true
	return report
}

// resolver is implemented by objects that look up other objects by name
// once the graph is assembled.
type resolver interface {
	resolve(g *Graph) []*StructuralError
}

func (g *Graph) collect(n Node, parent Node, report *LoadReport) {
	b := n.Base()
	b.parent = parent
	if b.name == "" {
		b.name = fmt.Sprintf("node%d", len(g.nodes))
	}
	if _, dup := g.nodeIndex[b.name]; dup {
		report.add(&StructuralError{Kind: KindDuplicateName, Node: b.name, Msg: "node name is not unique"})
	} else {
		g.nodeIndex[b.name] = n
	}
	g.nodes = append(g.nodes, n)

	if sm, ok := n.(*StateMachine); ok {
		for _, t := range sm.transitions {
			g.transitions = append(g.transitions, t)
			g.conditions = append(g.conditions, t.conditions...)
		}
	}
	if c, ok := n.(Container); ok {
		for _, child := range c.ChildNodes() {
			g.collect(child, n, report)
		}
	}
}

// removeDanglingConnections drops connections whose source is not a
// sibling of the target.
func (g *Graph) removeDanglingConnections(report *LoadReport) {
	members := make(map[Node]bool, len(g.nodes))
	for _, n := range g.nodes {
		members[n] = true
	}
	for _, n := range g.nodes {
		b := n.Base()
		for i := range b.inputs {
			c := b.inputs[i].Connection
			if c == nil {
				continue
			}
			src := c.Source.Base()
			if members[c.Source] && src.parent == b.parent {
				continue
			}
			b.inputs[i].Connection = nil
			report.add(&StructuralError{
				Kind: KindDanglingConnection,
				Node: b.name,
				Msg:  fmt.Sprintf("input %s connected to %s outside its container", b.inputs[i].Name, src.name),
			})
		}
	}
}

func (g *Graph) addInstance(inst *Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instances = append(g.instances, inst)
}

func (g *Graph) removeInstance(inst *Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, in := range g.instances {
		if in == inst {
			g.instances = append(g.instances[:i], g.instances[i+1:]...)
			return
		}
	}
}

// Instances returns a snapshot of the live instances bound to the graph.
func (g *Graph) Instances() []*Instance {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Instance(nil), g.instances...)
}

// NumInstances returns the number of live instances.
func (g *Graph) NumInstances() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.instances)
}

// Destroy destroys every instance bound to the graph.
func (g *Graph) Destroy() {
	for _, inst := range g.Instances() {
		inst.Destroy()
	}
}

// LoadReport lists what InitAfterLoading had to repair.
type LoadReport struct {
	RemovedConnections []RemovedConnection
	Problems           []*StructuralError
}

func (r *LoadReport) add(err *StructuralError) {
	r.Problems = append(r.Problems, err)
}

// OK reports whether the graph loaded without structural problems.
func (r *LoadReport) OK() bool { return len(r.Problems) == 0 }

// Err joins the problems into one error, or returns nil.
func (r *LoadReport) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Problems))
	for i, p := range r.Problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}

// HasKind reports whether a problem of the given kind was recorded.
func (r *LoadReport) HasKind(kind string) bool {
	for _, p := range r.Problems {
		if p.Kind == kind {
			return true
		}
	}
	return false
}
