package animgraph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AaronLay10/animgraph/internal/motion"
	"github.com/AaronLay10/animgraph/internal/pool"
	"github.com/AaronLay10/animgraph/internal/pose"
)

const defaultMaxTransitionPasses = 10

// Instance is one evaluation context of a graph: the parameter values, the
// unique data and flags of every object, and the frame output.
//
// An instance is evaluated by one goroutine at a time. Only
// QueueParameterUpdate may be called concurrently with Update.
type Instance struct {
	id          string
	graph       *Graph
	skeleton    *pose.Skeleton
	motionSet   *motion.MotionSet
	threadIndex int
	pools       *pool.ThreadPools
	logger      *slog.Logger
	maxPasses   int
	handlers    []EventHandler

	params []Value
	data   []UniqueData
	flags  []Flags

	outputPose    *pose.Pose
	events        pose.EventBuffer
	delta         pose.Transform
	deltaMirrored pose.Transform
	stats         FrameStats

	leader    *Instance
	followers []*Instance

	pendingMu sync.Mutex
	pending   []parameterUpdate

	destroyed bool
}

type parameterUpdate struct {
	name  string
	value Value
}

// Option configures an Instance.
type Option func(*Instance)

// WithID sets the instance identifier. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(inst *Instance) { inst.id = id }
}

// WithThreadIndex records the worker thread that evaluates the instance.
func WithThreadIndex(i int) Option {
	return func(inst *Instance) { inst.threadIndex = i }
}

// WithPools sets the pose and ref data pools of the evaluating thread.
func WithPools(p *pool.ThreadPools) Option {
	return func(inst *Instance) { inst.pools = p }
}

// WithEventHandler registers a notification handler.
func WithEventHandler(h EventHandler) Option {
	return func(inst *Instance) { inst.handlers = append(inst.handlers, h) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(inst *Instance) { inst.logger = l }
}

// WithMaxTransitionPasses bounds the number of transitions a state machine
// may complete within one frame.
func WithMaxTransitionPasses(n int) Option {
	return func(inst *Instance) {
		if n > 0 {
			inst.maxPasses = n
		}
	}
}

// NewInstance binds a new evaluation context to g. The graph is initialized
// first if that has not happened yet.
func NewInstance(g *Graph, skel *pose.Skeleton, motions *motion.MotionSet, opts ...Option) *Instance {
	if !g.Initialized() {
		g.InitAfterLoading()
	}
	inst := &Instance{
		id:            uuid.NewString(),
		graph:         g,
		skeleton:      skel,
		motionSet:     motions,
		logger:        slog.Default(),
		maxPasses:     defaultMaxTransitionPasses,
		data:          make([]UniqueData, g.NumObjects()),
		flags:         make([]Flags, g.NumObjects()),
		delta:         pose.Identity(),
		deltaMirrored: pose.Identity(),
	}
	for _, opt := range opts {
		opt(inst)
	}
	if inst.pools == nil {
		inst.pools = pool.NewThreadPools(16, skel.NumJoints())
	}
	inst.outputPose = pose.New(skel.NumJoints())
	inst.outputPose.InitFromBindPose(skel)
	inst.ResetParameters()
	g.addInstance(inst)
	return inst
}

// ID returns the instance identifier.
func (inst *Instance) ID() string { return inst.id }

// Graph returns the graph the instance evaluates.
func (inst *Instance) Graph() *Graph { return inst.graph }

// Skeleton returns the skeleton poses are produced for.
func (inst *Instance) Skeleton() *pose.Skeleton { return inst.skeleton }

// MotionSet returns the motions motion nodes sample from.
func (inst *Instance) MotionSet() *motion.MotionSet { return inst.motionSet }

// ThreadIndex returns the worker thread index.
func (inst *Instance) ThreadIndex() int { return inst.threadIndex }

// Pools returns the thread pools poses are borrowed from.
func (inst *Instance) Pools() *pool.ThreadPools { return inst.pools }

// Logger returns the instance logger.
func (inst *Instance) Logger() *slog.Logger { return inst.logger }

// AddEventHandler registers a notification handler.
func (inst *Instance) AddEventHandler(h EventHandler) {
	inst.handlers = append(inst.handlers, h)
}

// Stats returns the counters of the last frame.
func (inst *Instance) Stats() FrameStats { return inst.stats }

// UniqueData returns obj's state in this instance, creating it on first use.
func (inst *Instance) UniqueData(obj Object) UniqueData {
	idx := obj.ObjectIndex()
	d := inst.data[idx]
	if d == nil {
		d = obj.NewUniqueData(inst)
		inst.data[idx] = d
	}
	return d
}

// NodeData returns the shared timing block of n's unique data.
func (inst *Instance) NodeData(n Node) *NodeData {
	return inst.UniqueData(n).(NodeUniqueData).Base()
}

// ParameterIndex returns the index of a named parameter.
func (inst *Instance) ParameterIndex(name string) (int, bool) {
	return inst.graph.ParameterIndex(name)
}

// NumParameters returns the number of parameters.
func (inst *Instance) NumParameters() int { return len(inst.params) }

// Parameter returns the value of parameter i.
func (inst *Instance) Parameter(i int) Value {
	if i < 0 || i >= len(inst.params) {
		return Value{}
	}
	return inst.params[i]
}

// ParameterByName returns the value of a named parameter.
func (inst *Instance) ParameterByName(name string) (Value, error) {
	i, ok := inst.graph.ParameterIndex(name)
	if !ok {
		return Value{}, fmt.Errorf("parameter %q: %w", name, ErrNotFound)
	}
	return inst.params[i], nil
}

// SetParameter sets parameter i. Numeric and bool values are converted to
// the declared type; other mismatches are rejected.
func (inst *Instance) SetParameter(i int, v Value) error {
	if i < 0 || i >= len(inst.params) {
		return fmt.Errorf("parameter index %d: %w", i, ErrNotFound)
	}
	def := inst.graph.params[i]
	if v.Type != def.Type {
		if !convertible(v.Type, def.Type) {
			return &ParameterError{Name: def.Name, Expected: def.Type, Got: v.Type}
		}
		v = v.Convert(def.Type)
	}
	inst.params[i] = v
	return nil
}

// SetParameterByName sets a named parameter.
func (inst *Instance) SetParameterByName(name string, v Value) error {
	i, ok := inst.graph.ParameterIndex(name)
	if !ok {
		return fmt.Errorf("parameter %q: %w", name, ErrNotFound)
	}
	return inst.SetParameter(i, v)
}

// QueueParameterUpdate stores a parameter change to be applied at the start
// of the next Update. It is safe for concurrent use.
func (inst *Instance) QueueParameterUpdate(name string, v Value) error {
	i, ok := inst.graph.ParameterIndex(name)
	if !ok {
		return fmt.Errorf("parameter %q: %w", name, ErrNotFound)
	}
	if def := inst.graph.params[i]; !convertible(v.Type, def.Type) {
		return &ParameterError{Name: def.Name, Expected: def.Type, Got: v.Type}
	}
	inst.pendingMu.Lock()
	inst.pending = append(inst.pending, parameterUpdate{name: name, value: v})
	inst.pendingMu.Unlock()
	return nil
}

func (inst *Instance) applyPendingParameters() {
	inst.pendingMu.Lock()
	pending := inst.pending
	inst.pending = nil
	inst.pendingMu.Unlock()

	for _, p := range pending {
		if err := inst.SetParameterByName(p.name, p.value); err != nil {
			inst.logger.Warn("dropping queued parameter update", "instance", inst.id, "parameter", p.name, "error", err)
		}
	}
}

// ResetParameters restores every parameter to its default.
func (inst *Instance) ResetParameters() {
	inst.params = make([]Value, len(inst.graph.params))
	for i, def := range inst.graph.params {
		inst.params[i] = def.Default.Convert(def.Type)
	}
}

// Update runs the Update, TopDownUpdate and PostUpdate phases of one frame.
// Output must follow to obtain the pose.
func (inst *Instance) Update(dt float64) {
	if inst.destroyed {
		return
	}
	inst.applyPendingParameters()

	inst.releaseFrameResources()
	inst.ResetFlags()
	inst.stats = FrameStats{}

	root := inst.graph.root
	if root == nil {
		inst.events.Clear()
		inst.delta = pose.Identity()
		inst.deltaMirrored = pose.Identity()
		return
	}

	inst.IncreasePoseRef(root)
	inst.IncreaseRefDataRef(root)
	inst.PerformUpdate(root, dt)

	if inst.leader != nil {
		inst.syncToLeader()
	}

	rd := inst.NodeData(root)
	rd.GlobalWeight = 1
	rd.LocalWeight = 1
	inst.PerformTopDownUpdate(root, dt)
	inst.PerformPostUpdate(root, dt)

	if ref := rd.RefData; ref != nil {
		inst.events.CopyFrom(&ref.Events)
		inst.delta = ref.Delta
		inst.deltaMirrored = ref.DeltaMirrored
	} else {
		inst.events.Clear()
		inst.delta = pose.Identity()
		inst.deltaMirrored = pose.Identity()
	}
	inst.DecreaseRefDataRef(root)
}

// Output runs the Output phase and copies the result into out, which is
// resized to the skeleton. Calling it again in the same frame copies the
// cached result.
func (inst *Instance) Output(out *pose.Pose) {
	root := inst.graph.root
	if root != nil && !inst.destroyed && !inst.HasFlags(root.ObjectIndex(), FlagOutputReady) {
		inst.PerformOutput(root)
		if p := inst.NodeData(root).Pose; p != nil {
			inst.outputPose.CopyFrom(p)
		} else {
			inst.outputPose.InitFromBindPose(inst.skeleton)
		}
		inst.DecreasePoseRef(root)
	}
	if out != nil && out != inst.outputPose {
		out.CopyFrom(inst.outputPose)
	}
}

// Evaluate runs Update followed by Output into the instance's own pose.
func (inst *Instance) Evaluate(dt float64) {
	inst.Update(dt)
	inst.Output(nil)
}

// Pose returns the pose produced by the last Output.
func (inst *Instance) Pose() *pose.Pose { return inst.outputPose }

// Events returns the events fired during the last Update.
func (inst *Instance) Events() []pose.FiredEvent { return inst.events.Events() }

// RootDelta returns the root motion of the last Update.
func (inst *Instance) RootDelta() pose.Transform { return inst.delta }

// RootDeltaMirrored returns the mirrored root motion of the last Update.
func (inst *Instance) RootDeltaMirrored() pose.Transform { return inst.deltaMirrored }

// RootStateMachine returns the graph's root state machine.
func (inst *Instance) RootStateMachine() *StateMachine { return inst.graph.root }

// SwitchToState makes the named state of the root state machine current
// without blending.
func (inst *Instance) SwitchToState(name string) error {
	sm, state, err := inst.findRootState(name)
	if err != nil {
		return err
	}
	sm.SwitchToState(inst, state)
	return nil
}

// TransitionToState starts the transition from the current state of the
// root state machine to the named state, or switches when none exists.
func (inst *Instance) TransitionToState(name string) error {
	sm, state, err := inst.findRootState(name)
	if err != nil {
		return err
	}
	sm.TransitionToState(inst, state)
	return nil
}

func (inst *Instance) findRootState(name string) (*StateMachine, Node, error) {
	sm := inst.graph.root
	if sm == nil {
		return nil, nil, fmt.Errorf("state %q: %w", name, ErrNotFound)
	}
	state := sm.FindState(name)
	if state == nil {
		return nil, nil, fmt.Errorf("state %q: %w", name, ErrNotFound)
	}
	return sm, state, nil
}

// IsTransitioning reports whether the root state machine is blending.
func (inst *Instance) IsTransitioning() bool {
	if inst.graph.root == nil {
		return false
	}
	return inst.graph.root.IsTransitioning(inst)
}

// CurrentState returns the current state of the root state machine.
func (inst *Instance) CurrentState() Node {
	if inst.graph.root == nil {
		return nil
	}
	return inst.graph.root.CurrentState(inst)
}

// Rewind resets every node's timing and returns state machines to their
// entry states.
func (inst *Instance) Rewind() {
	for _, n := range inst.graph.nodes {
		if r, ok := n.(Rewinder); ok {
			r.Rewind(inst)
			continue
		}
		if d := inst.data[n.ObjectIndex()]; d != nil {
			d.Reset()
		}
	}
	for _, t := range inst.graph.transitions {
		if d := inst.data[t.ObjectIndex()]; d != nil {
			d.Reset()
		}
	}
	for _, c := range inst.graph.conditions {
		if d := inst.data[c.ObjectIndex()]; d != nil {
			d.Reset()
		}
	}
}

// rewindNode rewinds n and everything feeding it. Nested state machines
// rewind their own states.
func (inst *Instance) rewindNode(n Node) {
	if r, ok := n.(Rewinder); ok {
		r.Rewind(inst)
	} else {
		inst.UniqueData(n).Reset()
	}
	if _, ok := n.(*StateMachine); ok {
		return
	}
	for _, c := range n.Base().Connections() {
		inst.rewindNode(c.Source)
	}
	if c, ok := n.(Container); ok {
		for _, child := range c.ChildNodes() {
			inst.rewindNode(child)
		}
	}
}

// AddFollower makes other follow this instance's root timing.
func (inst *Instance) AddFollower(other *Instance) {
	if other == nil || other == inst {
		return
	}
	if other.leader != nil {
		other.leader.RemoveFollower(other)
	}
	other.leader = inst
	inst.followers = append(inst.followers, other)
}

// RemoveFollower detaches other from this instance.
func (inst *Instance) RemoveFollower(other *Instance) {
	for i, f := range inst.followers {
		if f == other {
			inst.followers = append(inst.followers[:i], inst.followers[i+1:]...)
			other.leader = nil
			return
		}
	}
}

// Leader returns the instance this one follows, or nil.
func (inst *Instance) Leader() *Instance { return inst.leader }

// Followers returns the instances following this one.
func (inst *Instance) Followers() []*Instance { return inst.followers }

// syncToLeader aligns the root's play time to the leader's root by full clip
// sync. It runs after the root Update of the follower and reads the leader's
// state from its last frame.
func (inst *Instance) syncToLeader() {
	lr := inst.leader.graph.root
	if lr == nil || inst.leader.destroyed {
		return
	}
	ld := inst.leader.NodeData(lr)
	fd := inst.NodeData(inst.graph.root)
	_, _, factor := SyncPlaySpeeds(ld.PlaySpeed, ld.Duration, fd.PlaySpeed, fd.Duration, 0)
	fd.PlaySpeed = divideSpeed(ld.PlaySpeed, factor)
	fd.SetNormalizedTime(ld.NormalizedTime())
	inst.setFlagRecursive(inst.graph.root, FlagSynced)
}

// Destroy releases pooled resources and detaches the instance from its
// graph and from leader/follower links.
func (inst *Instance) Destroy() {
	if inst.destroyed {
		return
	}
	inst.releaseFrameResources()
	if inst.leader != nil {
		inst.leader.RemoveFollower(inst)
	}
	for _, f := range append([]*Instance(nil), inst.followers...) {
		inst.RemoveFollower(f)
	}
	inst.graph.removeInstance(inst)
	inst.destroyed = true
}

// Destroyed reports whether Destroy was called.
func (inst *Instance) Destroyed() bool { return inst.destroyed }
