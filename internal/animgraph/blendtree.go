package animgraph

// BlendTree is a container whose output is whatever reaches its final node.
type BlendTree struct {
	NodeBase

	nodes []Node
	final *FinalNode
}

// NewBlendTree creates an empty blend tree.
func NewBlendTree(name string) *BlendTree {
	n := &BlendTree{}
	n.init(n, name)
	n.addOutput("pose", ValuePose)
	return n
}

// AddNode adds a child node. The first FinalNode added becomes the tree's
// output.
func (n *BlendTree) AddNode(child Node) {
	n.nodes = append(n.nodes, child)
	if f, ok := child.(*FinalNode); ok && n.final == nil {
		n.final = f
	}
}

// ChildNodes returns the tree's nodes.
func (n *BlendTree) ChildNodes() []Node { return n.nodes }

// FinalNode returns the output node, or nil.
func (n *BlendTree) FinalNode() *FinalNode { return n.final }

func (n *BlendTree) resolve(g *Graph) []*StructuralError {
	if n.final == nil {
		return []*StructuralError{{Kind: KindMissingFinalNode, Node: n.name, Msg: "blend tree has no final node, outputting bind pose"}}
	}
	return nil
}

func (n *BlendTree) active() bool {
	return n.final != nil && !n.disabled
}

func (n *BlendTree) Update(inst *Instance, dt float64) {
	d := inst.NodeData(n)
	if !n.active() {
		d.Clear()
		return
	}
	inst.IncreasePoseRef(n.final)
	inst.IncreaseRefDataRef(n.final)
	inst.PerformUpdate(n.final, dt)
	d.Init(inst.NodeData(n.final))
}

func (n *BlendTree) heldRefs(inst *Instance, poses bool) []Node {
	if !n.active() {
		return nil
	}
	return []Node{n.final}
}

func (n *BlendTree) TopDownUpdate(inst *Instance, dt float64) {
	if !n.active() {
		return
	}
	inst.hierarchicalSyncInputNode(n.final, n)
	inst.PerformTopDownUpdate(n.final, dt)
}

func (n *BlendTree) PostUpdate(inst *Instance, dt float64) {
	if n.active() {
		inst.PerformPostUpdate(n.final, dt)
	}
	inst.RequestRefDatas(n)
	out := inst.NodeData(n).RefData
	out.Reset()
	if !n.active() {
		return
	}
	if src := inst.NodeData(n.final).RefData; src != nil {
		out.CopyFrom(src)
	}
	inst.DecreaseRefDataRef(n.final)
}

func (n *BlendTree) Output(inst *Instance) {
	if !n.active() {
		inst.outputBindPose(n)
		return
	}
	inst.PerformOutput(n.final)
	inst.RequestPoses(n)
	copyOrBind(inst, inst.NodeData(n).Pose, inst.NodeData(n.final))
	inst.DecreasePoseRef(n.final)
}

// FinalNode marks the output of a blend tree. Its single input is the
// tree's pose; an unconnected input yields the bind pose.
type FinalNode struct {
	NodeBase
}

// NewFinalNode creates a final node.
func NewFinalNode(name string) *FinalNode {
	n := &FinalNode{}
	n.init(n, name)
	n.addInput("pose", ValuePose)
	n.addOutput("pose", ValuePose)
	return n
}

// BindPoseNode outputs the skeleton's bind pose.
type BindPoseNode struct {
	NodeBase
}

// NewBindPoseNode creates a bind pose node.
func NewBindPoseNode(name string) *BindPoseNode {
	n := &BindPoseNode{}
	n.init(n, name)
	n.addOutput("pose", ValuePose)
	return n
}

// ParameterNode exposes one graph parameter as a value output.
type ParameterNode struct {
	NodeBase

	Parameter string
	index     int
}

// NewParameterNode creates a node reading the named parameter of type t.
func NewParameterNode(name, parameter string, t ValueType) *ParameterNode {
	n := &ParameterNode{Parameter: parameter, index: -1}
	n.init(n, name)
	n.addOutput("value", t)
	return n
}

func (n *ParameterNode) resolve(g *Graph) []*StructuralError {
	i, ok := g.ParameterIndex(n.Parameter)
	if !ok {
		n.index = -1
		return []*StructuralError{{Kind: KindUnresolved, Node: n.name, Msg: "unknown parameter " + n.Parameter}}
	}
	n.index = i
	return nil
}

// OutputValue returns the parameter's current value converted to the port
// type.
func (n *ParameterNode) OutputValue(inst *Instance, port int) Value {
	t := n.outputs[0].Type
	if n.index < 0 {
		return Value{Type: t}
	}
	return inst.Parameter(n.index).Convert(t)
}

// ExitNode is a state that signals its state machine's parent that the
// machine has finished. It outputs the bind pose.
type ExitNode struct {
	NodeBase
}

// NewExitNode creates an exit state.
func NewExitNode(name string) *ExitNode {
	n := &ExitNode{}
	n.init(n, name)
	n.addOutput("pose", ValuePose)
	return n
}

// EntryNode is a placeholder state a nested state machine can start in. It
// outputs the bind pose.
type EntryNode struct {
	NodeBase
}

// NewEntryNode creates an entry state.
func NewEntryNode(name string) *EntryNode {
	n := &EntryNode{}
	n.init(n, name)
	n.addOutput("pose", ValuePose)
	return n
}
