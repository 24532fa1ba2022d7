package animgraph

import (
	"fmt"
	"sync/atomic"
)

// Node is a vertex of the animation graph. The evaluator drives every node
// through four phases per frame; see Instance.PerformUpdate and friends.
type Node interface {
	Object
	Base() *NodeBase
	// Update pulls inputs and advances this node's own timing.
	Update(inst *Instance, dt float64)
	// TopDownUpdate pushes weights and sync requirements to the inputs.
	TopDownUpdate(inst *Instance, dt float64)
	// PostUpdate fills the node's events and root motion delta.
	PostUpdate(inst *Instance, dt float64)
	// Output computes the node's pose.
	Output(inst *Instance)
	// HasOutputPose reports whether the node produces a pose buffer.
	HasOutputPose() bool
}

// ValueNode is implemented by nodes with non-pose output ports.
type ValueNode interface {
	Node
	OutputValue(inst *Instance, port int) Value
}

// Rewinder is implemented by nodes that restart their playback on rewind.
type Rewinder interface {
	Rewind(inst *Instance)
}

// Container is implemented by nodes that own child nodes.
type Container interface {
	Node
	ChildNodes() []Node
}

// InputPort is a typed input slot. It holds at most one connection.
type InputPort struct {
	Name       string
	Types      []ValueType
	Connection *Connection
}

// Accepts reports whether a value of type t may be connected.
func (p *InputPort) Accepts(t ValueType) bool {
	for _, pt := range p.Types {
		if pt == t {
			return true
		}
	}
	return false
}

// OutputPort is a typed output slot.
type OutputPort struct {
	Name string
	Type ValueType
}

// Connection is a directed edge feeding a target node's input port. It is
// owned by the target.
type Connection struct {
	ID         uint64
	Source     Node
	SourcePort int
	Target     Node
	TargetPort int
}

var connectionIDs atomic.Uint64

// NodeBase holds the structure shared by all node types and the default
// phase implementations.
type NodeBase struct {
	objectIndex

	self     Node
	name     string
	parent   Node
	disabled bool
	inputs   []InputPort
	outputs  []OutputPort
	actions  []TriggerAction
}

func (b *NodeBase) init(self Node, name string) {
	b.self = self
	b.name = name
	b.index = -1
}

// Base returns b.
func (b *NodeBase) Base() *NodeBase { return b }

// Name returns the node name, unique within its graph.
func (b *NodeBase) Name() string { return b.name }

// Parent returns the owning container, nil for the root.
func (b *NodeBase) Parent() Node { return b.parent }

// Disabled reports whether the node is disabled.
func (b *NodeBase) Disabled() bool { return b.disabled }

// SetDisabled enables or disables the node.
func (b *NodeBase) SetDisabled(d bool) { b.disabled = d }

// InputPorts returns the node's input ports.
func (b *NodeBase) InputPorts() []InputPort { return b.inputs }

// OutputPorts returns the node's output ports.
func (b *NodeBase) OutputPorts() []OutputPort { return b.outputs }

// AddTriggerAction attaches an action fired on state enter or exit.
func (b *NodeBase) AddTriggerAction(a TriggerAction) {
	b.actions = append(b.actions, a)
}

// TriggerActions returns the attached trigger actions.
func (b *NodeBase) TriggerActions() []TriggerAction { return b.actions }

func (b *NodeBase) addInput(name string, types ...ValueType) {
	b.inputs = append(b.inputs, InputPort{Name: name, Types: types})
}

func (b *NodeBase) addOutput(name string, t ValueType) {
	b.outputs = append(b.outputs, OutputPort{Name: name, Type: t})
}

// FindInputPort returns the index of the named input port.
func (b *NodeBase) FindInputPort(name string) (int, bool) {
	for i := range b.inputs {
		if b.inputs[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// FindOutputPort returns the index of the named output port.
func (b *NodeBase) FindOutputPort(name string) (int, bool) {
	for i := range b.outputs {
		if b.outputs[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// Connect wires source's output port into this node's input port.
func (b *NodeBase) Connect(source Node, sourcePort, targetPort int) (*Connection, error) {
	if source == nil {
		return nil, &StructuralError{Kind: KindDanglingConnection, Node: b.name, Msg: "nil source"}
	}
	if targetPort < 0 || targetPort >= len(b.inputs) {
		return nil, &StructuralError{Kind: KindPortIndex, Node: b.name, Msg: fmt.Sprintf("input port %d out of range", targetPort)}
	}
	src := source.Base()
	if sourcePort < 0 || sourcePort >= len(src.outputs) {
		return nil, &StructuralError{Kind: KindPortIndex, Node: src.name, Msg: fmt.Sprintf("output port %d out of range", sourcePort)}
	}
	in := &b.inputs[targetPort]
	if in.Connection != nil {
		return nil, &StructuralError{Kind: KindPortOccupied, Node: b.name, Msg: fmt.Sprintf("input %s already connected", in.Name)}
	}
	if t := src.outputs[sourcePort].Type; !in.Accepts(t) {
		return nil, &StructuralError{Kind: KindPortType, Node: b.name, Msg: fmt.Sprintf("input %s does not accept %s", in.Name, t)}
	}
	c := &Connection{
		ID:         connectionIDs.Add(1),
		Source:     source,
		SourcePort: sourcePort,
		Target:     b.self,
		TargetPort: targetPort,
	}
	in.Connection = c
	return c, nil
}

// Disconnect removes the connection attached to an input port.
func (b *NodeBase) Disconnect(targetPort int) *Connection {
	if targetPort < 0 || targetPort >= len(b.inputs) {
		return nil
	}
	c := b.inputs[targetPort].Connection
	b.inputs[targetPort].Connection = nil
	return c
}

// Connections returns the node's incoming connections in port order.
func (b *NodeBase) Connections() []*Connection {
	var out []*Connection
	for i := range b.inputs {
		if c := b.inputs[i].Connection; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// InputNode returns the node connected to an input port, or nil.
func (b *NodeBase) InputNode(port int) Node {
	if port < 0 || port >= len(b.inputs) || b.inputs[port].Connection == nil {
		return nil
	}
	return b.inputs[port].Connection.Source
}

// InputValue reads the value arriving on an input port. ok is false when the
// port is unconnected or its source has no value outputs.
func (b *NodeBase) InputValue(inst *Instance, port int) (Value, bool) {
	if port < 0 || port >= len(b.inputs) || b.inputs[port].Connection == nil {
		return Value{}, false
	}
	c := b.inputs[port].Connection
	vn, ok := c.Source.(ValueNode)
	if !ok {
		return Value{}, false
	}
	return vn.OutputValue(inst, c.SourcePort), true
}

// NewUniqueData returns plain node data.
func (b *NodeBase) NewUniqueData(inst *Instance) UniqueData {
	return NewNodeData()
}

// HasOutputPose reports whether the node declares a pose output.
func (b *NodeBase) HasOutputPose() bool {
	for _, o := range b.outputs {
		if o.Type == ValuePose {
			return true
		}
	}
	return false
}

// Update updates all inputs and takes over the sync basis of the primary
// input.
func (b *NodeBase) Update(inst *Instance, dt float64) {
	b.UpdateIncomingNodes(inst, dt)
	d := inst.NodeData(b.self)
	if src := b.syncBasisSource(); src != nil {
		d.Init(inst.NodeData(src))
	} else {
		d.Clear()
	}
}

// UpdateIncomingNodes runs the Update phase on every connected input.
func (b *NodeBase) UpdateIncomingNodes(inst *Instance, dt float64) {
	for _, c := range b.Connections() {
		inst.PerformUpdate(c.Source, dt)
	}
}

// syncBasisSource picks the pose input on port 0, else the first connection.
func (b *NodeBase) syncBasisSource() Node {
	conns := b.Connections()
	for _, c := range conns {
		if c.TargetPort == 0 && c.Source.HasOutputPose() {
			return c.Source
		}
	}
	if len(conns) > 0 {
		return conns[0].Source
	}
	return nil
}

// TopDownUpdate passes this node's timing and weight down to its inputs.
func (b *NodeBase) TopDownUpdate(inst *Instance, dt float64) {
	for _, c := range b.Connections() {
		inst.hierarchicalSyncInputNode(c.Source, b.self)
		inst.PerformTopDownUpdate(c.Source, dt)
	}
}

// PostUpdate copies the events and root motion of the primary pose input.
func (b *NodeBase) PostUpdate(inst *Instance, dt float64) {
	for _, c := range b.Connections() {
		inst.PerformPostUpdate(c.Source, dt)
	}
	inst.RequestRefDatas(b.self)
	out := inst.NodeData(b.self).RefData

	src := b.primaryPoseInput()
	if src == nil {
		if conns := b.Connections(); len(conns) > 0 {
			src = conns[0].Source
		}
	}
	if src == nil {
		out.Reset()
		return
	}
	if in := inst.NodeData(src).RefData; in != nil {
		out.CopyFrom(in)
	} else {
		out.Reset()
	}
}

// primaryPoseInput returns the pose input on the lowest connected port.
func (b *NodeBase) primaryPoseInput() Node {
	for i := range b.inputs {
		c := b.inputs[i].Connection
		if c != nil && c.Source.HasOutputPose() {
			return c.Source
		}
	}
	return nil
}

// Output outputs every input and copies the primary input pose, or the bind
// pose when there is none.
func (b *NodeBase) Output(inst *Instance) {
	for _, c := range b.Connections() {
		inst.PerformOutput(c.Source)
	}
	if !b.self.HasOutputPose() {
		return
	}
	if b.disabled {
		inst.outputBindPose(b.self)
		return
	}
	inst.RequestPoses(b.self)
	out := inst.NodeData(b.self).Pose
	if src := b.primaryPoseInput(); src != nil {
		if in := inst.NodeData(src).Pose; in != nil {
			out.CopyFrom(in)
			return
		}
	}
	out.InitFromBindPose(inst.Skeleton())
}

// OnStateEnter fires enter actions unless the state is re-entered from
// itself.
func (b *NodeBase) OnStateEnter(inst *Instance, previous Node) {
	if previous == b.self {
		return
	}
	for _, a := range b.actions {
		if a.Timing() == TriggerOnEnter {
			a.Trigger(inst)
		}
	}
}

// OnStateEnd fires exit actions unless the state transitions into itself.
func (b *NodeBase) OnStateEnd(inst *Instance, next Node) {
	if next == b.self {
		return
	}
	for _, a := range b.actions {
		if a.Timing() == TriggerOnExit {
			a.Trigger(inst)
		}
	}
}

// SetHasError sets the diagnostic error flag and propagates it to the
// ancestors. Clearing only clears a parent when none of its children are in
// error.
func (b *NodeBase) SetHasError(inst *Instance, hasError bool) {
	d := inst.NodeData(b.self)
	if d.HasError == hasError {
		return
	}
	d.HasError = hasError
	if b.parent == nil {
		return
	}
	if hasError {
		b.parent.Base().SetHasError(inst, true)
		return
	}
	if c, ok := b.parent.(Container); ok {
		for _, child := range c.ChildNodes() {
			if inst.NodeData(child).HasError {
				return
			}
		}
	}
	b.parent.Base().SetHasError(inst, false)
}
