package animgraph

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type graphFile struct {
	Version    int             `yaml:"version"`
	Name       string          `yaml:"name"`
	Parameters []parameterSpec `yaml:"parameters"`
	Root       nodeSpec        `yaml:"root"`
}

type parameterSpec struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default string `yaml:"default"`
}

type nodeSpec struct {
	Name     string       `yaml:"name"`
	Type     string       `yaml:"type"`
	Disabled bool         `yaml:"disabled"`
	Actions  []actionSpec `yaml:"actions"`

	// motion
	Motion     string   `yaml:"motion"`
	Speed      *float64 `yaml:"speed"`
	Loop       *bool    `yaml:"loop"`
	Mirror     bool     `yaml:"mirror"`
	EmitEvents *bool    `yaml:"emit_events"`

	// blend2, blend_n
	Sync       string    `yaml:"sync"`
	Events     string    `yaml:"events"`
	Additive   bool      `yaml:"additive"`
	Weight     float64   `yaml:"weight"`
	Thresholds []float64 `yaml:"thresholds"`

	// parameter
	Parameter string `yaml:"parameter"`
	ValueType string `yaml:"value_type"`

	// blend_tree
	Nodes       []nodeSpec       `yaml:"nodes"`
	Connections []connectionSpec `yaml:"connections"`

	// state_machine
	Entry       string           `yaml:"entry"`
	States      []nodeSpec       `yaml:"states"`
	Transitions []transitionSpec `yaml:"transitions"`
}

type connectionSpec struct {
	From     string `yaml:"from"`
	FromPort string `yaml:"from_port"`
	To       string `yaml:"to"`
	Port     string `yaml:"port"`
}

type transitionSpec struct {
	Name                  string          `yaml:"name"`
	From                  string          `yaml:"from"`
	To                    string          `yaml:"to"`
	Duration              float64         `yaml:"duration"`
	Priority              int             `yaml:"priority"`
	Disabled              bool            `yaml:"disabled"`
	CanBeInterrupted      bool            `yaml:"can_be_interrupted"`
	CanInterruptOthers    bool            `yaml:"can_interrupt_others"`
	AllowSelfInterruption bool            `yaml:"allow_self_interruption"`
	Interpolation         string          `yaml:"interpolation"`
	Sync                  string          `yaml:"sync"`
	Events                string          `yaml:"events"`
	AllowedSources        []string        `yaml:"allowed_sources"`
	When                  string          `yaml:"when"`
	Conditions            []conditionSpec `yaml:"conditions"`
	Actions               []actionSpec    `yaml:"actions"`
}

type conditionSpec struct {
	Type         string   `yaml:"type"`
	Parameter    string   `yaml:"parameter"`
	Op           string   `yaml:"op"`
	Value        string   `yaml:"value"`
	Max          float64  `yaml:"max"`
	Component    string   `yaml:"component"`
	Tags         []string `yaml:"tags"`
	Mode         string   `yaml:"mode"`
	Duration     float64  `yaml:"duration"`
	Node         string   `yaml:"node"`
	Time         float64  `yaml:"time"`
	Loops        int      `yaml:"loops"`
	Event        string   `yaml:"event"`
	StateMachine string   `yaml:"state_machine"`
	State        string   `yaml:"state"`
}

type actionSpec struct {
	Parameter string `yaml:"parameter"`
	Value     string `yaml:"value"`
	When      string `yaml:"when"`
}

// loader builds a graph from a decoded document. Fatal problems are
// returned as errors wrapping ErrLoad; recoverable wiring problems are
// collected and appended to the load report.
type loader struct {
	params   map[string]ValueType
	problems []*StructuralError
}

// LoadGraph reads a graph asset from a YAML file.
func LoadGraph(path string) (*Graph, *LoadReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	return ParseGraph(b)
}

// ParseGraph decodes a YAML graph document, builds the graph and runs
// InitAfterLoading on it.
func ParseGraph(b []byte) (*Graph, *LoadReport, error) {
	var f graphFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse graph YAML: %v", ErrLoad, err)
	}
	if f.Version != 1 {
		return nil, nil, fmt.Errorf("%w: unsupported graph version: %d", ErrLoad, f.Version)
	}

	l := &loader{params: make(map[string]ValueType)}
	var defs []ParameterDef
	for _, ps := range f.Parameters {
		def, err := parseParameter(ps)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		l.params[def.Name] = def.Type
		defs = append(defs, def)
	}

	if f.Root.Type == "" {
		f.Root.Type = "state_machine"
	}
	if f.Root.Type != "state_machine" {
		return nil, nil, fmt.Errorf("%w: root must be a state_machine, got %s", ErrLoad, f.Root.Type)
	}
	if f.Root.Name == "" {
		f.Root.Name = "root"
	}
	root, err := l.buildNode(f.Root)
	if err != nil {
		return nil, nil, err
	}

	g := NewGraph(f.Name, root.(*StateMachine))
	for _, def := range defs {
		if err := g.AddParameter(def); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
	}
	report := g.InitAfterLoading()
	for _, p := range l.problems {
		report.add(p)
		g.logger.Warn("graph structural problem", "graph", g.name, "kind", p.Kind, "node", p.Node, "detail", p.Msg)
	}
	return g, report, nil
}

func parseParameter(ps parameterSpec) (ParameterDef, error) {
	t, err := ParseValueType(ps.Type)
	if err != nil {
		return ParameterDef{}, fmt.Errorf("parameter %s: %w", ps.Name, err)
	}
	def := ParameterDef{Name: ps.Name, Type: t, Default: Value{Type: t}}
	if ps.Default != "" {
		v, err := ParseValue(t, ps.Default)
		if err != nil {
			return ParameterDef{}, fmt.Errorf("parameter %s: %w", ps.Name, err)
		}
		def.Default = v
	}
	return def, nil
}

func (l *loader) buildNode(ns nodeSpec) (Node, error) {
	var n Node
	switch ns.Type {
	case "motion":
		mn := NewMotionNode(ns.Name, ns.Motion)
		if ns.Speed != nil {
			mn.Speed = *ns.Speed
		}
		if ns.Loop != nil {
			mn.Loop = *ns.Loop
		}
		if ns.EmitEvents != nil {
			mn.EmitEvents = *ns.EmitEvents
		}
		mn.Mirror = ns.Mirror
		n = mn
	case "blend2":
		bn := NewBlend2Node(ns.Name)
		if err := l.blendSettings(ns, &bn.SyncMode, &bn.EventMode); err != nil {
			return nil, err
		}
		bn.Additive = ns.Additive
		bn.Weight = ns.Weight
		n = bn
	case "blend_n":
		bn := NewBlendNNode(ns.Name, ns.Thresholds...)
		if err := l.blendSettings(ns, &bn.SyncMode, &bn.EventMode); err != nil {
			return nil, err
		}
		bn.Weight = ns.Weight
		n = bn
	case "parameter":
		t, ok := l.params[ns.Parameter]
		if ns.ValueType != "" {
			vt, err := ParseValueType(ns.ValueType)
			if err != nil {
				return nil, fmt.Errorf("%w: node %s: %v", ErrLoad, ns.Name, err)
			}
			t, ok = vt, true
		}
		if !ok {
			t = ValueFloat
		}
		n = NewParameterNode(ns.Name, ns.Parameter, t)
	case "bind_pose":
		n = NewBindPoseNode(ns.Name)
	case "final":
		n = NewFinalNode(ns.Name)
	case "entry":
		n = NewEntryNode(ns.Name)
	case "exit":
		n = NewExitNode(ns.Name)
	case "blend_tree":
		bt, err := l.buildBlendTree(ns)
		if err != nil {
			return nil, err
		}
		n = bt
	case "state_machine":
		sm, err := l.buildStateMachine(ns)
		if err != nil {
			return nil, err
		}
		n = sm
	default:
		return nil, fmt.Errorf("%w: node %s: unknown node type %q", ErrLoad, ns.Name, ns.Type)
	}

	b := n.Base()
	b.SetDisabled(ns.Disabled)
	for _, as := range ns.Actions {
		a, err := l.buildAction(as)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrLoad, ns.Name, err)
		}
		b.AddTriggerAction(a)
	}
	return n, nil
}

func (l *loader) blendSettings(ns nodeSpec, sync *SyncMode, events *EventMode) error {
	var err error
	if *sync, err = ParseSyncMode(ns.Sync); err != nil {
		return fmt.Errorf("%w: node %s: %v", ErrLoad, ns.Name, err)
	}
	if *events, err = ParseEventMode(ns.Events); err != nil {
		return fmt.Errorf("%w: node %s: %v", ErrLoad, ns.Name, err)
	}
	return nil
}

func (l *loader) buildBlendTree(ns nodeSpec) (*BlendTree, error) {
	bt := NewBlendTree(ns.Name)
	byName := make(map[string]Node, len(ns.Nodes))
	for _, cs := range ns.Nodes {
		child, err := l.buildNode(cs)
		if err != nil {
			return nil, err
		}
		bt.AddNode(child)
		byName[cs.Name] = child
	}
	for _, cs := range ns.Connections {
		l.connect(ns.Name, byName, cs)
	}
	return bt, nil
}

func (l *loader) connect(tree string, byName map[string]Node, cs connectionSpec) {
	src, dst := byName[cs.From], byName[cs.To]
	if src == nil || dst == nil {
		l.problems = append(l.problems, &StructuralError{
			Kind: KindDanglingConnection,
			Node: tree,
			Msg:  fmt.Sprintf("connection %s -> %s references a node outside the tree", cs.From, cs.To),
		})
		return
	}
	sourcePort, ok := portIndex(cs.FromPort, src.Base().FindOutputPort)
	if !ok {
		l.problems = append(l.problems, &StructuralError{Kind: KindPortIndex, Node: cs.From, Msg: "unknown output port " + cs.FromPort})
		return
	}
	targetPort, ok := portIndex(cs.Port, dst.Base().FindInputPort)
	if !ok {
		l.problems = append(l.problems, &StructuralError{Kind: KindPortIndex, Node: cs.To, Msg: "unknown input port " + cs.Port})
		return
	}
	if _, err := dst.Base().Connect(src, sourcePort, targetPort); err != nil {
		var se *StructuralError
		if errors.As(err, &se) {
			l.problems = append(l.problems, se)
			return
		}
		l.problems = append(l.problems, &StructuralError{Kind: KindPortType, Node: cs.To, Msg: err.Error()})
	}
}

// portIndex resolves a port by name or decimal index. Empty means port 0.
func portIndex(name string, find func(string) (int, bool)) (int, bool) {
	if name == "" {
		return 0, true
	}
	if i, ok := find(name); ok {
		return i, true
	}
	i, err := strconv.Atoi(name)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func (l *loader) buildStateMachine(ns nodeSpec) (*StateMachine, error) {
	sm := NewStateMachine(ns.Name)
	sm.EntryState = ns.Entry
	for _, ss := range ns.States {
		s, err := l.buildNode(ss)
		if err != nil {
			return nil, err
		}
		sm.AddState(s)
	}
	for _, ts := range ns.Transitions {
		t, err := l.buildTransition(sm, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: state machine %s: %v", ErrLoad, ns.Name, err)
		}
		sm.AddTransition(t)
	}
	return sm, nil
}

func (l *loader) buildTransition(sm *StateMachine, ts transitionSpec) (*Transition, error) {
	target := sm.FindState(ts.To)
	var t *Transition
	if ts.From == "" || ts.From == "*" {
		t = NewWildcardTransition(target, ts.Duration)
	} else {
		t = NewTransition(sm.FindState(ts.From), target, ts.Duration)
	}
	t.Name = ts.Name
	if t.Name == "" {
		from := ts.From
		if from == "" {
			from = "*"
		}
		t.Name = from + "->" + ts.To
	}
	t.Priority = ts.Priority
	t.Disabled = ts.Disabled
	t.CanBeInterrupted = ts.CanBeInterrupted
	t.CanInterruptOthers = ts.CanInterruptOthers
	t.AllowSelfInterruption = ts.AllowSelfInterruption
	t.AllowedSources = ts.AllowedSources

	var err error
	if t.Interpolation, err = ParseInterpolation(ts.Interpolation); err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.Name, err)
	}
	if t.SyncMode, err = ParseSyncMode(ts.Sync); err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.Name, err)
	}
	if t.EventMode, err = ParseEventMode(ts.Events); err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.Name, err)
	}

	conds, err := ParseConditionExpr(ts.When)
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.Name, err)
	}
	for _, c := range conds {
		t.AddCondition(c)
	}
	for _, cs := range ts.Conditions {
		c, err := buildCondition(cs)
		if err != nil {
			return nil, fmt.Errorf("transition %s: %w", t.Name, err)
		}
		t.AddCondition(c)
	}
	for _, as := range ts.Actions {
		a, err := l.buildAction(as)
		if err != nil {
			return nil, fmt.Errorf("transition %s: %w", t.Name, err)
		}
		t.AddAction(a)
	}
	return t, nil
}

func buildCondition(cs conditionSpec) (Condition, error) {
	switch cs.Type {
	case "parameter", "vector2":
		op, err := ParseCompareOp(cs.Op)
		if err != nil {
			return nil, err
		}
		v, err := parseExprNumber(cs.Value)
		if err != nil {
			return nil, err
		}
		if cs.Type == "vector2" {
			comp, err := ParseVector2Component(cs.Component)
			if err != nil {
				return nil, err
			}
			c := NewVector2Condition(cs.Parameter, comp, op, v)
			c.Max = cs.Max
			return c, nil
		}
		c := NewParameterCondition(cs.Parameter, op, v)
		c.Max = cs.Max
		return c, nil
	case "tag":
		mode, err := ParseTagMode(cs.Mode)
		if err != nil {
			return nil, err
		}
		return NewTagCondition(mode, cs.Tags...), nil
	case "time":
		return NewTimeCondition(cs.Duration), nil
	case "play_time":
		mode, err := ParsePlayTimeMode(cs.Mode)
		if err != nil {
			return nil, err
		}
		return NewPlayTimeCondition(cs.Node, mode, cs.Time), nil
	case "motion":
		mode, err := ParseMotionConditionMode(cs.Mode)
		if err != nil {
			return nil, err
		}
		c := NewMotionCondition(cs.Node, mode)
		if cs.Loops > 0 {
			c.Loops = cs.Loops
		}
		c.Event = cs.Event
		return c, nil
	case "state":
		mode, err := ParseStateConditionMode(cs.Mode)
		if err != nil {
			return nil, err
		}
		c := NewStateCondition(cs.StateMachine, cs.State, mode)
		c.Time = cs.Time
		return c, nil
	}
	return nil, fmt.Errorf("unknown condition type %q", cs.Type)
}

func (l *loader) buildAction(as actionSpec) (TriggerAction, error) {
	when, err := ParseTriggerTiming(as.When)
	if err != nil {
		return nil, err
	}
	t, ok := l.params[as.Parameter]
	if !ok {
		return nil, fmt.Errorf("action sets unknown parameter %s", as.Parameter)
	}
	v, err := ParseValue(t, as.Value)
	if err != nil {
		return nil, fmt.Errorf("action on %s: %w", as.Parameter, err)
	}
	return NewParameterAction(as.Parameter, v, when), nil
}
