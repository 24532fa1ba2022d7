package animgraph

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
)

// Condition is one test gating a transition. Conditions may keep per-instance
// state, such as a countdown, which is reset whenever their transition's
// source state is entered.
type Condition interface {
	Object
	Test(inst *Instance) bool
	Reset(inst *Instance)
	Update(inst *Instance, dt float64)
}

type conditionBase struct {
	objectIndex
}

func newConditionBase() conditionBase {
	return conditionBase{objectIndex: objectIndex{index: -1}}
}

type noConditionData struct{}

func (noConditionData) Reset() {}

func (c *conditionBase) NewUniqueData(inst *Instance) UniqueData { return noConditionData{} }

func (c *conditionBase) Reset(inst *Instance) {}

func (c *conditionBase) Update(inst *Instance, dt float64) {}

// CompareOp is a numeric comparison.
type CompareOp int

const (
	CompareGreater CompareOp = iota
	CompareGreaterEqual
	CompareLess
	CompareLessEqual
	CompareEqual
	CompareNotEqual
	CompareInRange
	CompareNotInRange
)

var compareOpNames = map[string]CompareOp{
	">": CompareGreater, "greater": CompareGreater,
	">=": CompareGreaterEqual, "greater_equal": CompareGreaterEqual,
	"<": CompareLess, "less": CompareLess,
	"<=": CompareLessEqual, "less_equal": CompareLessEqual,
	"==": CompareEqual, "equal": CompareEqual,
	"!=": CompareNotEqual, "not_equal": CompareNotEqual,
	"in_range":     CompareInRange,
	"not_in_range": CompareNotInRange,
}

// ParseCompareOp parses an operator symbol or name such as ">=" or
// "in_range".
func ParseCompareOp(s string) (CompareOp, error) {
	if op, ok := compareOpNames[s]; ok {
		return op, nil
	}
	return CompareGreater, fmt.Errorf("unknown comparison %q", s)
}

func (op CompareOp) String() string {
	switch op {
	case CompareGreater:
		return ">"
	case CompareGreaterEqual:
		return ">="
	case CompareLess:
		return "<"
	case CompareLessEqual:
		return "<="
	case CompareEqual:
		return "=="
	case CompareNotEqual:
		return "!="
	case CompareInRange:
		return "in_range"
	default:
		return "not_in_range"
	}
}

// Compare applies op to x. The ranged operators test x against [a, b].
func (op CompareOp) Compare(x, a, b float64) bool {
	switch op {
	case CompareGreater:
		return x > a
	case CompareGreaterEqual:
		return x >= a
	case CompareLess:
		return x < a
	case CompareLessEqual:
		return x <= a
	case CompareEqual:
		return math.Abs(x-a) <= epsilon
	case CompareNotEqual:
		return math.Abs(x-a) > epsilon
	case CompareInRange:
		return x >= a && x <= b
	case CompareNotInRange:
		return x < a || x > b
	}
	return false
}

// ParameterCondition compares a scalar parameter with a constant.
type ParameterCondition struct {
	conditionBase

	Parameter string
	Op        CompareOp
	Value     float64
	// Max is the upper bound of the ranged operators.
	Max float64

	index int
}

// NewParameterCondition creates a condition comparing parameter against value.
func NewParameterCondition(parameter string, op CompareOp, value float64) *ParameterCondition {
	return &ParameterCondition{conditionBase: newConditionBase(), Parameter: parameter, Op: op, Value: value, index: -1}
}

func (c *ParameterCondition) resolve(g *Graph) []*StructuralError {
	c.index = -1
	i, ok := g.ParameterIndex(c.Parameter)
	if !ok {
		return []*StructuralError{{Kind: KindUnresolved, Msg: "condition references unknown parameter " + c.Parameter}}
	}
	if g.params[i].Type == ValueVector2 {
		return []*StructuralError{{Kind: KindUnresolved, Msg: "condition on vector2 parameter " + c.Parameter + " needs a component"}}
	}
	c.index = i
	return nil
}

func (c *ParameterCondition) Test(inst *Instance) bool {
	if c.index < 0 {
		return false
	}
	return c.Op.Compare(inst.Parameter(c.index).AsFloat(), c.Value, c.Max)
}

func (c *ParameterCondition) String() string {
	return fmt.Sprintf("%s %s %g", c.Parameter, c.Op, c.Value)
}

// Vector2Component selects what a Vector2Condition compares.
type Vector2Component int

const (
	Vector2X Vector2Component = iota
	Vector2Y
	Vector2Length
)

// ParseVector2Component parses "x", "y" or "length".
func ParseVector2Component(s string) (Vector2Component, error) {
	switch s {
	case "x":
		return Vector2X, nil
	case "y":
		return Vector2Y, nil
	case "length", "len":
		return Vector2Length, nil
	}
	return Vector2X, fmt.Errorf("unknown vector2 component %q", s)
}

// Vector2Condition compares one component or the length of a vector2
// parameter.
type Vector2Condition struct {
	conditionBase

	Parameter string
	Component Vector2Component
	Op        CompareOp
	Value     float64
	Max       float64

	index int
}

// NewVector2Condition creates a vector2 parameter condition.
func NewVector2Condition(parameter string, comp Vector2Component, op CompareOp, value float64) *Vector2Condition {
	return &Vector2Condition{conditionBase: newConditionBase(), Parameter: parameter, Component: comp, Op: op, Value: value, index: -1}
}

func (c *Vector2Condition) resolve(g *Graph) []*StructuralError {
	c.index = -1
	i, ok := g.ParameterIndex(c.Parameter)
	if !ok || g.params[i].Type != ValueVector2 {
		return []*StructuralError{{Kind: KindUnresolved, Msg: "condition references unknown vector2 parameter " + c.Parameter}}
	}
	c.index = i
	return nil
}

func (c *Vector2Condition) Test(inst *Instance) bool {
	if c.index < 0 {
		return false
	}
	v := inst.Parameter(c.index).Vec2
	var x float64
	switch c.Component {
	case Vector2X:
		x = v.X
	case Vector2Y:
		x = v.Y
	default:
		x = r2.Norm(v)
	}
	return c.Op.Compare(x, c.Value, c.Max)
}

// TagMode combines the tags of a TagCondition.
type TagMode int

const (
	TagAll TagMode = iota
	TagAny
	TagNone
	TagNotAll
)

// ParseTagMode parses "all", "any", "none" or "not_all".
func ParseTagMode(s string) (TagMode, error) {
	switch s {
	case "", "all":
		return TagAll, nil
	case "any", "one_of":
		return TagAny, nil
	case "none", "none_of":
		return TagNone, nil
	case "not_all":
		return TagNotAll, nil
	}
	return TagAll, fmt.Errorf("unknown tag mode %q", s)
}

// TagCondition tests a set of boolean tag parameters.
type TagCondition struct {
	conditionBase

	Tags []string
	Mode TagMode

	indices []int
}

// NewTagCondition creates a tag condition.
func NewTagCondition(mode TagMode, tags ...string) *TagCondition {
	return &TagCondition{conditionBase: newConditionBase(), Tags: tags, Mode: mode}
}

func (c *TagCondition) resolve(g *Graph) []*StructuralError {
	var errs []*StructuralError
	c.indices = c.indices[:0]
	for _, tag := range c.Tags {
		i, ok := g.ParameterIndex(tag)
		if !ok {
			errs = append(errs, &StructuralError{Kind: KindUnresolved, Msg: "condition references unknown tag " + tag})
			continue
		}
		c.indices = append(c.indices, i)
	}
	return errs
}

func (c *TagCondition) Test(inst *Instance) bool {
	set := 0
	for _, i := range c.indices {
		if inst.Parameter(i).AsBool() {
			set++
		}
	}
	n := len(c.Tags)
	switch c.Mode {
	case TagAny:
		return set > 0
	case TagNone:
		return set == 0
	case TagNotAll:
		return set < n
	default:
		return n > 0 && set == n
	}
}

// TimeCondition passes once its countdown has run out. The countdown
// restarts whenever the source state is entered.
type TimeCondition struct {
	conditionBase

	Duration float64
}

type timeConditionData struct {
	elapsed float64
}

func (d *timeConditionData) Reset() { d.elapsed = 0 }

// NewTimeCondition creates a countdown of d seconds.
func NewTimeCondition(d float64) *TimeCondition {
	return &TimeCondition{conditionBase: newConditionBase(), Duration: d}
}

func (c *TimeCondition) NewUniqueData(inst *Instance) UniqueData { return &timeConditionData{} }

func (c *TimeCondition) data(inst *Instance) *timeConditionData {
	return inst.UniqueData(c).(*timeConditionData)
}

func (c *TimeCondition) Reset(inst *Instance) { c.data(inst).Reset() }

func (c *TimeCondition) Update(inst *Instance, dt float64) { c.data(inst).elapsed += dt }

func (c *TimeCondition) Test(inst *Instance) bool {
	return c.data(inst).elapsed >= c.Duration
}

// Elapsed returns the time counted so far in inst.
func (c *TimeCondition) Elapsed(inst *Instance) float64 { return c.data(inst).elapsed }

// PlayTimeMode selects what a PlayTimeCondition tests.
type PlayTimeMode int

const (
	PlayTimeReached PlayTimeMode = iota
	PlayTimeEnd
	PlayTimeRemaining
)

// ParsePlayTimeMode parses "reached", "end" or "remaining".
func ParsePlayTimeMode(s string) (PlayTimeMode, error) {
	switch s {
	case "", "reached":
		return PlayTimeReached, nil
	case "end":
		return PlayTimeEnd, nil
	case "remaining":
		return PlayTimeRemaining, nil
	}
	return PlayTimeReached, fmt.Errorf("unknown play time mode %q", s)
}

// PlayTimeCondition tests the play time of a node.
type PlayTimeCondition struct {
	conditionBase

	Node string
	Mode PlayTimeMode
	Time float64

	node Node
}

// NewPlayTimeCondition creates a play time condition on the named node.
func NewPlayTimeCondition(node string, mode PlayTimeMode, t float64) *PlayTimeCondition {
	return &PlayTimeCondition{conditionBase: newConditionBase(), Node: node, Mode: mode, Time: t}
}

func (c *PlayTimeCondition) resolve(g *Graph) []*StructuralError {
	c.node = g.FindNode(c.Node)
	if c.node == nil {
		return []*StructuralError{{Kind: KindUnresolved, Msg: "condition references unknown node " + c.Node}}
	}
	return nil
}

func (c *PlayTimeCondition) Test(inst *Instance) bool {
	if c.node == nil {
		return false
	}
	d := inst.NodeData(c.node)
	switch c.Mode {
	case PlayTimeEnd:
		return d.Duration > epsilon && d.CurrentTime >= d.Duration-epsilon
	case PlayTimeRemaining:
		return d.Duration-d.CurrentTime <= c.Time
	default:
		return d.CurrentTime >= c.Time
	}
}

// MotionConditionMode selects what a MotionCondition tests.
type MotionConditionMode int

const (
	MotionHasEnded MotionConditionMode = iota
	MotionHasLooped
	MotionEventFired
)

// ParseMotionConditionMode parses "ended", "looped" or "event".
func ParseMotionConditionMode(s string) (MotionConditionMode, error) {
	switch s {
	case "", "ended":
		return MotionHasEnded, nil
	case "looped", "loops":
		return MotionHasLooped, nil
	case "event":
		return MotionEventFired, nil
	}
	return MotionHasEnded, fmt.Errorf("unknown motion condition mode %q", s)
}

// MotionCondition tests the playback of a motion node.
type MotionCondition struct {
	conditionBase

	Node  string
	Mode  MotionConditionMode
	Loops int
	Event string

	node *MotionNode
}

// NewMotionCondition creates a motion condition on the named motion node.
func NewMotionCondition(node string, mode MotionConditionMode) *MotionCondition {
	return &MotionCondition{conditionBase: newConditionBase(), Node: node, Mode: mode, Loops: 1}
}

func (c *MotionCondition) resolve(g *Graph) []*StructuralError {
	c.node = nil
	if mn, ok := g.FindNode(c.Node).(*MotionNode); ok {
		c.node = mn
		return nil
	}
	return []*StructuralError{{Kind: KindUnresolved, Msg: "condition references unknown motion node " + c.Node}}
}

func (c *MotionCondition) Test(inst *Instance) bool {
	if c.node == nil {
		return false
	}
	d := c.node.data(inst)
	switch c.Mode {
	case MotionHasLooped:
		return d.Loops >= c.Loops
	case MotionEventFired:
		return slices.Contains(d.FiredNames, c.Event)
	default:
		return d.Ended
	}
}

// StateConditionMode selects what a StateCondition tests.
type StateConditionMode int

const (
	StateIsActive StateConditionMode = iota
	StateExitReached
	StateTimeReached
)

// ParseStateConditionMode parses "active", "exit_reached" or "time".
func ParseStateConditionMode(s string) (StateConditionMode, error) {
	switch s {
	case "", "active":
		return StateIsActive, nil
	case "exit_reached", "exit":
		return StateExitReached, nil
	case "time", "playtime":
		return StateTimeReached, nil
	}
	return StateIsActive, fmt.Errorf("unknown state condition mode %q", s)
}

// StateCondition tests the state of a state machine, usually a nested one.
type StateCondition struct {
	conditionBase

	// StateMachine names the machine to inspect. Empty means the root.
	StateMachine string
	State        string
	Mode         StateConditionMode
	Time         float64

	sm    *StateMachine
	state Node
}

// NewStateCondition creates a state condition.
func NewStateCondition(stateMachine, state string, mode StateConditionMode) *StateCondition {
	return &StateCondition{conditionBase: newConditionBase(), StateMachine: stateMachine, State: state, Mode: mode}
}

func (c *StateCondition) resolve(g *Graph) []*StructuralError {
	c.sm, c.state = nil, nil
	if c.StateMachine == "" {
		c.sm = g.root
	} else if sm, ok := g.FindNode(c.StateMachine).(*StateMachine); ok {
		c.sm = sm
	}
	if c.sm == nil {
		return []*StructuralError{{Kind: KindUnresolved, Msg: "condition references unknown state machine " + c.StateMachine}}
	}
	if c.Mode == StateExitReached {
		return nil
	}
	c.state = c.sm.FindState(c.State)
	if c.state == nil {
		c.sm = nil
		return []*StructuralError{{Kind: KindUnresolved, Msg: "condition references unknown state " + c.State}}
	}
	return nil
}

func (c *StateCondition) Test(inst *Instance) bool {
	if c.sm == nil {
		return false
	}
	switch c.Mode {
	case StateExitReached:
		return c.sm.IsExitReached(inst)
	case StateTimeReached:
		return c.sm.CurrentState(inst) == c.state && c.sm.TimeInState(inst) >= c.Time
	default:
		return c.sm.IsStateActive(inst, c.state)
	}
}
