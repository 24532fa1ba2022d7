package animgraph

import "github.com/AaronLay10/animgraph/internal/pose"

// blendPair is the per-frame selection of a two-way blend: the inputs, the
// weight towards b, and which of the two contribute this frame.
type blendPair struct {
	a, b   Node
	weight float64
	useA   bool
	useB   bool
}

type blendSettings struct {
	sync     SyncMode
	events   EventMode
	additive bool
}

func (p *blendPair) set(a, b Node, w float64, additive bool) {
	p.a, p.b = a, b
	p.weight = clamp01(w)
	p.useA = a != nil && (b == nil || additive || p.weight < 1-epsilon)
	p.useB = b != nil && (a == nil || p.weight > epsilon)
}

func (p *blendPair) clear() {
	*p = blendPair{}
}

func (p *blendPair) synced(s blendSettings) bool {
	return p.useA && p.useB && s.sync != SyncDisabled && !s.additive
}

func clamp01(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// updatePair updates the contributing inputs and initializes d from the
// leader, applying the sync speed when both sides play.
func (inst *Instance) updatePair(p *blendPair, s blendSettings, d *NodeData, dt float64) {
	if p.useA {
		inst.PerformUpdate(p.a, dt)
	}
	if p.useB {
		inst.PerformUpdate(p.b, dt)
	}
	switch {
	case p.useA:
		d.Init(inst.NodeData(p.a))
	case p.useB:
		d.Init(inst.NodeData(p.b))
	default:
		d.Clear()
		return
	}
	if p.synced(s) {
		leaderFactor, _, speed := CalcSyncFactors(inst.NodeData(p.a), inst.NodeData(p.b), s.sync, p.weight)
		d.PlaySpeed = divideSpeed(speed, leaderFactor)
	}
}

// topDownPair assigns weights to the pair and, when synced, makes b follow a.
func (inst *Instance) topDownPair(owner Node, p *blendPair, s blendSettings, d *NodeData, dt float64) {
	if !p.useA && !p.useB {
		return
	}
	if p.synced(s) {
		_, _, speed := CalcSyncFactors(inst.NodeData(p.a), inst.NodeData(p.b), s.sync, p.weight)
		inst.EnableFlags(p.a.ObjectIndex(), FlagIsSyncLeader)
		inst.setFlagRecursive(p.b, FlagSynced)

		inst.hierarchicalSyncInputNode(p.a, owner)
		inst.NodeData(p.a).PlaySpeed = d.PlaySpeed

		idx := p.b.ObjectIndex()
		inst.syncFollower(p.b, p.a, p.weight, s.sync, inst.HasFlags(idx, FlagResync), speed)
		inst.DisableFlags(idx, FlagResync)
	} else {
		for _, in := range []Node{p.a, p.b} {
			if in == nil {
				continue
			}
			idx := in.ObjectIndex()
			if inst.HasFlags(idx, FlagSynced) {
				inst.AutoSync(in, owner, 0, SyncTrack, inst.HasFlags(idx, FlagResync))
				inst.DisableFlags(idx, FlagResync)
			}
		}
	}

	wa, wb := 1-p.weight, p.weight
	switch {
	case s.additive:
		wa = 1
	case !p.useB:
		wa = 1
	case !p.useA:
		wb = 1
	}
	if p.useA {
		ad := inst.NodeData(p.a)
		ad.GlobalWeight = d.GlobalWeight * wa
		ad.LocalWeight = wa
		inst.PerformTopDownUpdate(p.a, dt)
	}
	if p.useB {
		bd := inst.NodeData(p.b)
		bd.GlobalWeight = d.GlobalWeight * wb
		bd.LocalWeight = wb
		inst.PerformTopDownUpdate(p.b, dt)
	}
}

// postUpdatePair filters the events of the pair into d's ref data and
// blends their root motion.
func (inst *Instance) postUpdatePair(owner Node, p *blendPair, s blendSettings, d *NodeData, dt float64) {
	if p.useA {
		inst.PerformPostUpdate(p.a, dt)
	}
	if p.useB {
		inst.PerformPostUpdate(p.b, dt)
	}
	inst.RequestRefDatas(owner)
	out := d.RefData
	out.Reset()

	switch {
	case p.useA && p.useB:
		ra := inst.NodeData(p.a).RefData
		rb := inst.NodeData(p.b).RefData
		FilterEvents(s.events, ra, rb, p.weight, out)
		switch {
		case ra != nil && rb != nil && !s.additive:
			out.BlendDeltas(ra, rb, p.weight)
		case ra != nil:
			out.Delta, out.DeltaMirrored = ra.Delta, ra.DeltaMirrored
		case rb != nil:
			out.Delta, out.DeltaMirrored = rb.Delta, rb.DeltaMirrored
		}
	case p.useA:
		if ra := inst.NodeData(p.a).RefData; ra != nil {
			out.CopyFrom(ra)
		}
	case p.useB:
		if rb := inst.NodeData(p.b).RefData; rb != nil {
			out.CopyFrom(rb)
		}
	}
}

// outputPair outputs the pair and blends the result into owner's pose.
func (inst *Instance) outputPair(owner Node, p *blendPair, s blendSettings, d *NodeData) {
	if p.useA {
		inst.PerformOutput(p.a)
	}
	if p.useB {
		inst.PerformOutput(p.b)
	}
	inst.RequestPoses(owner)
	out := d.Pose
	switch {
	case p.useA && p.useB:
		copyOrBind(inst, out, inst.NodeData(p.a))
		pb := inst.NodeData(p.b).Pose
		if s.additive {
			out.ApplyAdditive(pb, inst.Skeleton().BindPose(), p.weight)
		} else {
			out.Blend(pb, p.weight)
		}
	case p.useA:
		copyOrBind(inst, out, inst.NodeData(p.a))
	case p.useB:
		copyOrBind(inst, out, inst.NodeData(p.b))
	default:
		out.InitFromBindPose(inst.Skeleton())
	}
}

func copyOrBind(inst *Instance, out *pose.Pose, src *NodeData) {
	if src.Pose != nil {
		out.CopyFrom(src.Pose)
		return
	}
	out.InitFromBindPose(inst.Skeleton())
}
