package animgraph

import (
	"fmt"
	"sort"
)

// BlendNNode blends between the two inputs whose thresholds bracket the
// weight. The weight port is the last input port.
type BlendNNode struct {
	NodeBase

	SyncMode   SyncMode
	EventMode  EventMode
	Thresholds []float64
	Weight     float64
}

type blendNData struct {
	NodeData
	pair blendPair
}

// NewBlendNNode creates a node with one pose input per threshold.
// Thresholds should be ascending; they are sorted by input port otherwise.
func NewBlendNNode(name string, thresholds ...float64) *BlendNNode {
	n := &BlendNNode{Thresholds: append([]float64(nil), thresholds...)}
	n.init(n, name)
	for i := range thresholds {
		n.addInput(fmt.Sprintf("pose_%d", i), ValuePose)
	}
	n.addInput("weight", ValueFloat, ValueInt)
	n.addOutput("pose", ValuePose)
	return n
}

func (n *BlendNNode) weightPort() int { return len(n.inputs) - 1 }

func (n *BlendNNode) NewUniqueData(inst *Instance) UniqueData {
	return &blendNData{NodeData: *NewNodeData()}
}

func (n *BlendNNode) data(inst *Instance) *blendNData {
	return inst.UniqueData(n).(*blendNData)
}

func (n *BlendNNode) settings() blendSettings {
	return blendSettings{sync: n.SyncMode, events: n.EventMode}
}

type thresholdInput struct {
	node      Node
	threshold float64
}

// FindBlendPair returns the connected inputs bracketing w and the local
// weight between them. b is nil when w lies outside the threshold range.
func (n *BlendNNode) FindBlendPair(w float64) (a, b Node, local float64) {
	var inputs []thresholdInput
	for i, t := range n.Thresholds {
		if i >= n.weightPort() {
			break
		}
		if src := n.InputNode(i); src != nil {
			inputs = append(inputs, thresholdInput{node: src, threshold: t})
		}
	}
	if len(inputs) == 0 {
		return nil, nil, 0
	}
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].threshold < inputs[j].threshold })

	if w <= inputs[0].threshold {
		return inputs[0].node, nil, 0
	}
	last := inputs[len(inputs)-1]
	if w >= last.threshold {
		return last.node, nil, 0
	}
	for i := 0; i < len(inputs)-1; i++ {
		lo, hi := inputs[i], inputs[i+1]
		if w >= lo.threshold && w < hi.threshold {
			span := hi.threshold - lo.threshold
			if span <= epsilon {
				return hi.node, nil, 0
			}
			return lo.node, hi.node, (w - lo.threshold) / span
		}
	}
	return last.node, nil, 0
}

// Update picks the bracketing pair and updates only those two inputs.
func (n *BlendNNode) Update(inst *Instance, dt float64) {
	d := n.data(inst)
	d.pair.clear()
	if n.disabled {
		d.Clear()
		return
	}
	if src := n.InputNode(n.weightPort()); src != nil {
		inst.PerformUpdate(src, dt)
	}
	w := n.Weight
	if v, ok := n.InputValue(inst, n.weightPort()); ok {
		w = v.AsFloat()
	}
	a, b, local := n.FindBlendPair(w)
	d.pair.set(a, b, local, false)
	inst.updatePair(&d.pair, n.settings(), &d.NodeData, dt)
}

func (n *BlendNNode) TopDownUpdate(inst *Instance, dt float64) {
	d := n.data(inst)
	if src := n.InputNode(n.weightPort()); src != nil {
		inst.PerformTopDownUpdate(src, dt)
	}
	inst.topDownPair(n, &d.pair, n.settings(), &d.NodeData, dt)
}

func (n *BlendNNode) PostUpdate(inst *Instance, dt float64) {
	d := n.data(inst)
	if src := n.InputNode(n.weightPort()); src != nil {
		inst.PerformPostUpdate(src, dt)
	}
	inst.postUpdatePair(n, &d.pair, n.settings(), &d.NodeData, dt)
}

func (n *BlendNNode) Output(inst *Instance) {
	d := n.data(inst)
	if n.disabled {
		inst.outputBindPose(n)
		return
	}
	if src := n.InputNode(n.weightPort()); src != nil {
		inst.PerformOutput(src)
	}
	inst.outputPair(n, &d.pair, n.settings(), &d.NodeData)
}
