package animgraph

// FrameStats counts phase executions and pool traffic for the last frame.
type FrameStats struct {
	Updates        int
	TopDownUpdates int
	PostUpdates    int
	Outputs        int
	PoseRequests   int
	PoseFrees      int
	DataRequests   int
	DataFrees      int
}

// PerformUpdate runs n's Update phase once per frame. The pose and data
// references on every input are taken here, before the inputs themselves are
// updated, and released by PerformOutput and PerformPostUpdate.
func (inst *Instance) PerformUpdate(n Node, dt float64) {
	idx := n.ObjectIndex()
	if inst.HasFlags(idx, FlagUpdateReady) {
		return
	}
	inst.EnableFlags(idx, FlagUpdateReady)

	for _, c := range n.Base().Connections() {
		inst.IncreasePoseRef(c.Source)
		inst.IncreaseRefDataRef(c.Source)
	}
	inst.stats.Updates++
	n.Update(inst, dt)
}

// PerformTopDownUpdate runs n's TopDownUpdate phase once per frame.
func (inst *Instance) PerformTopDownUpdate(n Node, dt float64) {
	idx := n.ObjectIndex()
	if inst.HasFlags(idx, FlagTopDownUpdateReady) {
		return
	}
	inst.EnableFlags(idx, FlagTopDownUpdateReady)
	inst.stats.TopDownUpdates++
	n.TopDownUpdate(inst, dt)
}

// PerformPostUpdate runs n's PostUpdate phase once per frame and releases
// the data references n holds on its inputs.
func (inst *Instance) PerformPostUpdate(n Node, dt float64) {
	idx := n.ObjectIndex()
	if inst.HasFlags(idx, FlagPostUpdateReady) {
		return
	}
	inst.EnableFlags(idx, FlagPostUpdateReady)
	inst.stats.PostUpdates++
	n.PostUpdate(inst, dt)
	inst.freeIncomingRefDatas(n)
}

// PerformOutput runs n's Output phase once per frame and releases the pose
// references n holds on its inputs.
func (inst *Instance) PerformOutput(n Node) {
	idx := n.ObjectIndex()
	if inst.HasFlags(idx, FlagOutputReady) {
		return
	}
	inst.EnableFlags(idx, FlagOutputReady)
	inst.stats.Outputs++
	n.Output(inst)
	inst.freeIncomingPoses(n)
}

func (inst *Instance) freeIncomingPoses(n Node) {
	for _, c := range n.Base().Connections() {
		inst.DecreasePoseRef(c.Source)
	}
}

func (inst *Instance) freeIncomingRefDatas(n Node) {
	for _, c := range n.Base().Connections() {
		inst.DecreaseRefDataRef(c.Source)
	}
}

// refHolder is implemented by containers whose Update takes references on
// child nodes that are not input connections. heldRefs returns those nodes
// and forgets them.
type refHolder interface {
	heldRefs(inst *Instance, poses bool) []Node
}

func (inst *Instance) heldInputs(n Node, poses bool) []Node {
	var out []Node
	for _, c := range n.Base().Connections() {
		out = append(out, c.Source)
	}
	if h, ok := n.(refHolder); ok {
		out = append(out, h.heldRefs(inst, poses)...)
	}
	return out
}

// releaseDroppedPoseRefs releases the pose references n's Update took when n
// left the frame before its Output ran. Inputs left without a consumer are
// released in turn.
func (inst *Instance) releaseDroppedPoseRefs(n Node) {
	idx := n.ObjectIndex()
	if !inst.HasFlags(idx, FlagUpdateReady) || inst.HasFlags(idx, FlagOutputReady) || inst.NodeData(n).PoseRefCount > 0 {
		return
	}
	inst.EnableFlags(idx, FlagOutputReady)
	for _, in := range inst.heldInputs(n, true) {
		inst.DecreasePoseRef(in)
		inst.releaseDroppedPoseRefs(in)
	}
}

// releaseDroppedRefDataRefs is releaseDroppedPoseRefs for ref data, covering
// nodes whose PostUpdate did not run.
func (inst *Instance) releaseDroppedRefDataRefs(n Node) {
	idx := n.ObjectIndex()
	if !inst.HasFlags(idx, FlagUpdateReady) || inst.HasFlags(idx, FlagPostUpdateReady) || inst.NodeData(n).RefDataRefCount > 0 {
		return
	}
	inst.EnableFlags(idx, FlagPostUpdateReady)
	for _, in := range inst.heldInputs(n, false) {
		inst.DecreaseRefDataRef(in)
		inst.releaseDroppedRefDataRefs(in)
	}
}

// IncreasePoseRef registers one more consumer of n's pose this frame.
func (inst *Instance) IncreasePoseRef(n Node) {
	inst.NodeData(n).PoseRefCount++
}

// DecreasePoseRef releases one consumer of n's pose. The pose returns to the
// pool when the last consumer is done.
func (inst *Instance) DecreasePoseRef(n Node) {
	d := inst.NodeData(n)
	if d.PoseRefCount == 0 {
		return
	}
	d.PoseRefCount--
	if d.PoseRefCount > 0 || !n.HasOutputPose() {
		return
	}
	inst.freePose(d)
}

// IncreaseRefDataRef registers one more consumer of n's events and deltas.
func (inst *Instance) IncreaseRefDataRef(n Node) {
	inst.NodeData(n).RefDataRefCount++
}

// DecreaseRefDataRef releases one consumer of n's ref data.
func (inst *Instance) DecreaseRefDataRef(n Node) {
	d := inst.NodeData(n)
	if d.RefDataRefCount == 0 {
		return
	}
	d.RefDataRefCount--
	if d.RefDataRefCount > 0 {
		return
	}
	inst.freeRefData(d)
}

// RequestPoses gives n a fresh pose buffer from the thread pool.
func (inst *Instance) RequestPoses(n Node) {
	d := inst.NodeData(n)
	inst.freePose(d)
	d.Pose = inst.pools.Poses.Request(inst.skeleton.NumJoints())
	inst.stats.PoseRequests++
}

// RequestRefDatas gives n a cleared ref data payload from the thread pool.
func (inst *Instance) RequestRefDatas(n Node) {
	d := inst.NodeData(n)
	inst.freeRefData(d)
	d.RefData = inst.pools.RefData.Request()
	inst.stats.DataRequests++
}

func (inst *Instance) freePose(d *NodeData) {
	if d.Pose == nil {
		return
	}
	inst.pools.Poses.Free(d.Pose)
	d.Pose = nil
	inst.stats.PoseFrees++
}

func (inst *Instance) freeRefData(d *NodeData) {
	if d.RefData == nil {
		return
	}
	inst.pools.RefData.Free(d.RefData)
	d.RefData = nil
	inst.stats.DataFrees++
}

// outputBindPose requests a pose for n and fills it with the bind pose.
func (inst *Instance) outputBindPose(n Node) {
	inst.RequestPoses(n)
	inst.NodeData(n).Pose.InitFromBindPose(inst.skeleton)
}

// releaseFrameResources returns every pose and payload still held from the
// previous frame and zeroes the reference counts.
func (inst *Instance) releaseFrameResources() {
	for _, d := range inst.data {
		nd, ok := d.(NodeUniqueData)
		if !ok {
			continue
		}
		b := nd.Base()
		b.PoseRefCount = 0
		b.RefDataRefCount = 0
		inst.freePose(b)
		inst.freeRefData(b)
	}
}
