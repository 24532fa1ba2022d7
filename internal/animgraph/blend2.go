package animgraph

// Blend2Node ports.
const (
	Blend2InputA      = 0
	Blend2InputB      = 1
	Blend2InputWeight = 2
)

// Blend2Node blends two poses by a weight, or layers B additively on A.
type Blend2Node struct {
	NodeBase

	SyncMode  SyncMode
	EventMode EventMode
	Additive  bool
	// Weight is used when the weight port is not connected.
	Weight float64
}

type blend2Data struct {
	NodeData
	pair blendPair
}

// NewBlend2Node creates a blend node without sync.
func NewBlend2Node(name string) *Blend2Node {
	n := &Blend2Node{}
	n.init(n, name)
	n.addInput("pose_a", ValuePose)
	n.addInput("pose_b", ValuePose)
	n.addInput("weight", ValueFloat, ValueInt, ValueBool)
	n.addOutput("pose", ValuePose)
	return n
}

func (n *Blend2Node) NewUniqueData(inst *Instance) UniqueData {
	return &blend2Data{NodeData: *NewNodeData()}
}

func (n *Blend2Node) data(inst *Instance) *blend2Data {
	return inst.UniqueData(n).(*blend2Data)
}

func (n *Blend2Node) settings() blendSettings {
	return blendSettings{sync: n.SyncMode, events: n.EventMode, additive: n.Additive}
}

// Update reads the weight and updates the inputs that contribute to it.
func (n *Blend2Node) Update(inst *Instance, dt float64) {
	d := n.data(inst)
	d.pair.clear()
	if n.disabled {
		d.Clear()
		return
	}
	if src := n.InputNode(Blend2InputWeight); src != nil {
		inst.PerformUpdate(src, dt)
	}
	w := n.Weight
	if v, ok := n.InputValue(inst, Blend2InputWeight); ok {
		w = v.AsFloat()
	}
	d.pair.set(n.InputNode(Blend2InputA), n.InputNode(Blend2InputB), w, n.Additive)
	inst.updatePair(&d.pair, n.settings(), &d.NodeData, dt)
}

// TopDownUpdate assigns weights and, with sync enabled, aligns B to A.
func (n *Blend2Node) TopDownUpdate(inst *Instance, dt float64) {
	d := n.data(inst)
	if src := n.InputNode(Blend2InputWeight); src != nil {
		inst.PerformTopDownUpdate(src, dt)
	}
	inst.topDownPair(n, &d.pair, n.settings(), &d.NodeData, dt)
}

// PostUpdate filters the events of both inputs and blends their deltas.
func (n *Blend2Node) PostUpdate(inst *Instance, dt float64) {
	d := n.data(inst)
	if src := n.InputNode(Blend2InputWeight); src != nil {
		inst.PerformPostUpdate(src, dt)
	}
	inst.postUpdatePair(n, &d.pair, n.settings(), &d.NodeData, dt)
}

// Output blends the input poses. A disabled node outputs the bind pose.
func (n *Blend2Node) Output(inst *Instance) {
	d := n.data(inst)
	if n.disabled {
		inst.outputBindPose(n)
		return
	}
	if src := n.InputNode(Blend2InputWeight); src != nil {
		inst.PerformOutput(src)
	}
	inst.outputPair(n, &d.pair, n.settings(), &d.NodeData)
}

// BlendWeight returns the weight used in the current frame.
func (n *Blend2Node) BlendWeight(inst *Instance) float64 {
	return n.data(inst).pair.weight
}
