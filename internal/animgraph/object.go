package animgraph

import (
	"github.com/AaronLay10/animgraph/internal/motion"
	"github.com/AaronLay10/animgraph/internal/pool"
	"github.com/AaronLay10/animgraph/internal/pose"
)

// Object is anything in a graph that owns per-instance state: nodes,
// transitions and conditions. The graph assigns every object a dense index
// used to address that state inside an Instance.
type Object interface {
	ObjectIndex() int
	NewUniqueData(inst *Instance) UniqueData
}

// UniqueData is the per-(object, instance) mutable state.
type UniqueData interface {
	Reset()
}

// NodeUniqueData is unique data carrying the shared node timing block.
type NodeUniqueData interface {
	UniqueData
	Base() *NodeData
}

type objectIndex struct {
	index int
}

// ObjectIndex returns the index assigned by Graph.InitAfterLoading, or -1.
func (o *objectIndex) ObjectIndex() int { return o.index }

func (o *objectIndex) setObjectIndex(i int) { o.index = i }

type indexable interface {
	setObjectIndex(int)
}

// NodeData is the per-instance state every node shares.
type NodeData struct {
	PlaySpeed    float64
	CurrentTime  float64
	PreSyncTime  float64
	Duration     float64
	SyncIndex    int
	SyncTrack    *motion.SyncTrack
	GlobalWeight float64
	LocalWeight  float64
	Mirror       bool
	Backward     bool
	HasError     bool

	Pose            *pose.Pose
	RefData         *pool.RefData
	PoseRefCount    int
	RefDataRefCount int
}

// NewNodeData returns node data at rest: speed 1, full weight, no sync cursor.
func NewNodeData() *NodeData {
	return &NodeData{
		PlaySpeed:    1,
		SyncIndex:    motion.InvalidIndex,
		GlobalWeight: 1,
		LocalWeight:  1,
	}
}

// Base returns d itself so node-specific data types embedding NodeData
// satisfy NodeUniqueData.
func (d *NodeData) Base() *NodeData { return d }

// Reset rewinds the timing state. Pool handles and reference counts are
// owned by the evaluator and left alone.
func (d *NodeData) Reset() {
	d.CurrentTime = 0
	d.PreSyncTime = 0
	d.SyncIndex = motion.InvalidIndex
	d.HasError = false
}

// Clear zeroes the sync basis.
func (d *NodeData) Clear() {
	d.Duration = 0
	d.CurrentTime = 0
	d.PreSyncTime = 0
	d.SyncTrack = nil
	d.SyncIndex = motion.InvalidIndex
}

// Init copies the sync basis of src.
func (d *NodeData) Init(src *NodeData) {
	d.Duration = src.Duration
	d.CurrentTime = src.CurrentTime
	d.PreSyncTime = src.PreSyncTime
	d.PlaySpeed = src.PlaySpeed
	d.SyncTrack = src.SyncTrack
	d.SyncIndex = src.SyncIndex
	d.Mirror = src.Mirror
	d.Backward = src.Backward
}

// NormalizedTime returns the play time as a fraction of the duration.
func (d *NodeData) NormalizedTime() float64 {
	if d.Duration <= epsilon {
		return 0
	}
	return d.CurrentTime / d.Duration
}

// SetNormalizedTime sets the play time from a fraction of the duration.
func (d *NodeData) SetNormalizedTime(t float64) {
	d.CurrentTime = t * d.Duration
}
