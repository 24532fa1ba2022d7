package animgraph

import (
	"math"

	"github.com/AaronLay10/animgraph/internal/motion"
)

// MotionNode ports.
const (
	MotionInputSpeed = 0
	MotionOutputPose = 0
)

// MotionNode plays one motion of the instance's motion set.
type MotionNode struct {
	NodeBase

	MotionID   string
	Speed      float64
	Loop       bool
	Mirror     bool
	EmitEvents bool
}

// MotionNodeData is the per-instance playback state of a MotionNode.
type MotionNodeData struct {
	NodeData

	motion     motion.Motion
	resolved   bool
	Loops      int
	Ended      bool
	Looped     bool
	FiredNames []string
}

// Reset rewinds playback.
func (d *MotionNodeData) Reset() {
	d.NodeData.Reset()
	d.Loops = 0
	d.Ended = false
	d.Looped = false
	d.FiredNames = d.FiredNames[:0]
}

// NewMotionNode creates a looping motion node at normal speed.
func NewMotionNode(name, motionID string) *MotionNode {
	n := &MotionNode{MotionID: motionID, Speed: 1, Loop: true, EmitEvents: true}
	n.init(n, name)
	n.addInput("speed", ValueFloat, ValueInt)
	n.addOutput("pose", ValuePose)
	return n
}

// NewUniqueData creates playback state starting at the configured speed.
func (n *MotionNode) NewUniqueData(inst *Instance) UniqueData {
	d := &MotionNodeData{NodeData: *NewNodeData()}
	d.PlaySpeed = n.Speed
	return d
}

func (n *MotionNode) data(inst *Instance) *MotionNodeData {
	return inst.UniqueData(n).(*MotionNodeData)
}

func (n *MotionNode) resolveMotion(inst *Instance, d *MotionNodeData) motion.Motion {
	if !d.resolved {
		d.motion = inst.MotionSet().Find(n.MotionID)
		d.resolved = true
	}
	return d.motion
}

func (n *MotionNode) baseSpeed(inst *Instance) float64 {
	if v, ok := n.InputValue(inst, MotionInputSpeed); ok {
		return v.AsFloat()
	}
	return n.Speed
}

// Update advances the play time by the speed assigned in the previous
// TopDownUpdate and publishes the motion as sync basis.
func (n *MotionNode) Update(inst *Instance, dt float64) {
	n.UpdateIncomingNodes(inst, dt)
	d := n.data(inst)
	m := n.resolveMotion(inst, d)
	if m == nil || n.disabled {
		if m == nil {
			n.SetHasError(inst, true)
		}
		d.Clear()
		d.PlaySpeed = n.baseSpeed(inst)
		return
	}
	n.SetHasError(inst, false)

	duration := m.Duration()
	d.PreSyncTime = d.CurrentTime
	d.Looped = false
	d.Backward = d.PlaySpeed < 0

	t := d.CurrentTime + d.PlaySpeed*dt
	switch {
	case duration <= epsilon:
		t = 0
	case t >= duration:
		if n.Loop {
			d.Loops += int(t / duration)
			t = math.Mod(t, duration)
			d.Looped = true
		} else {
			t = duration
			d.Ended = true
		}
	case t < 0:
		if n.Loop {
			d.Loops += int(-t/duration) + 1
			t = math.Mod(t, duration) + duration
			if t >= duration {
				t = 0
			}
			d.Looped = true
		} else {
			t = 0
			d.Ended = true
		}
	}
	d.CurrentTime = t
	d.Duration = duration
	d.SyncTrack = m.SyncTrack()
	d.Mirror = n.Mirror

	if first, _, ok := d.SyncTrack.FindEventIndices(t); ok && first != d.SyncIndex {
		d.SyncIndex = first
		inst.EnableFlags(n.ObjectIndex(), FlagSyncIndexChanged)
	}
	d.PlaySpeed = n.baseSpeed(inst)
}

// TopDownUpdate only forwards weights to the speed input.
func (n *MotionNode) TopDownUpdate(inst *Instance, dt float64) {
	for _, c := range n.Connections() {
		inst.PerformTopDownUpdate(c.Source, dt)
	}
}

// PostUpdate extracts the events passed this frame and the root motion.
func (n *MotionNode) PostUpdate(inst *Instance, dt float64) {
	for _, c := range n.Connections() {
		inst.PerformPostUpdate(c.Source, dt)
	}
	inst.RequestRefDatas(n)
	d := n.data(inst)
	rd := d.RefData
	rd.Reset()
	d.FiredNames = d.FiredNames[:0]

	m := n.resolveMotion(inst, d)
	if m == nil || n.disabled {
		return
	}

	forward := !d.Backward
	wrapped := false
	if n.Loop {
		if forward {
			wrapped = d.CurrentTime < d.PreSyncTime
		} else {
			wrapped = d.CurrentTime > d.PreSyncTime
		}
	}
	if n.EmitEvents {
		motion.ExtractEvents(m, d.PreSyncTime, d.CurrentTime, wrapped, forward, n.Mirror, n.name, d.GlobalWeight, &rd.Events)
		for _, e := range rd.Events.Events() {
			d.FiredNames = append(d.FiredNames, e.Name)
		}
	}
	delta := m.RootDelta(d.PreSyncTime, d.CurrentTime, wrapped)
	rd.Delta = delta
	rd.DeltaMirrored = delta.Mirror()
	if n.Mirror {
		rd.Delta, rd.DeltaMirrored = rd.DeltaMirrored, rd.Delta
	}
}

// Output samples the motion at the current play time.
func (n *MotionNode) Output(inst *Instance) {
	for _, c := range n.Connections() {
		inst.PerformOutput(c.Source)
	}
	d := n.data(inst)
	m := n.resolveMotion(inst, d)
	if m == nil || n.disabled {
		inst.outputBindPose(n)
		return
	}
	inst.RequestPoses(n)
	m.SamplePose(d.CurrentTime, inst.Skeleton(), d.Pose, n.Mirror)
}

// Rewind restarts playback from the beginning.
func (n *MotionNode) Rewind(inst *Instance) {
	d := n.data(inst)
	d.Reset()
	d.PlaySpeed = n.baseSpeed(inst)
}

// PlayTime returns the current play time and the motion duration.
func (n *MotionNode) PlayTime(inst *Instance) (current, duration float64) {
	d := n.data(inst)
	return d.CurrentTime, d.Duration
}
