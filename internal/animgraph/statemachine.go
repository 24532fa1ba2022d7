package animgraph

import (
	"math"

	"github.com/AaronLay10/animgraph/internal/pool"
)

// StateMachine is a node whose children are mutually exclusive states
// connected by conditional transitions. Several transitions may blend at
// once; the most recently started one dominates.
type StateMachine struct {
	NodeBase

	// EntryState names the initial state when none was set directly.
	EntryState string

	states      []Node
	transitions []*Transition
	entry       Node
}

type stateMachineData struct {
	NodeData

	active        []*Transition
	current       Node
	previous      Node
	reachedExit   bool
	switchToEntry bool
	timeInState   float64

	poseRefNodes []Node
	dataRefNodes []Node
	activeStates []Node
	prevData     pool.RefData
}

func (d *stateMachineData) Reset() {
	d.NodeData.Reset()
	d.active = nil
	d.current = nil
	d.previous = nil
	d.reachedExit = false
	d.switchToEntry = true
	d.timeInState = 0
}

func (d *stateMachineData) latest() *Transition {
	if len(d.active) == 0 {
		return nil
	}
	return d.active[0]
}

func (d *stateMachineData) isActive(t *Transition) bool {
	for _, a := range d.active {
		if a == t {
			return true
		}
	}
	return false
}

func (d *stateMachineData) removeTransition(t *Transition) {
	for i, a := range d.active {
		if a == t {
			d.active = append(d.active[:i], d.active[i+1:]...)
			return
		}
	}
}

// states returns the current state followed by the targets of the active
// transitions, without duplicates.
func (d *stateMachineData) states() []Node {
	d.activeStates = d.activeStates[:0]
	if d.current != nil {
		d.activeStates = append(d.activeStates, d.current)
	}
	for _, t := range d.active {
		if !containsNode(d.activeStates, t.target) {
			d.activeStates = append(d.activeStates, t.target)
		}
	}
	return d.activeStates
}

func containsNode(nodes []Node, n Node) bool {
	for _, x := range nodes {
		if x == n {
			return true
		}
	}
	return false
}

// NewStateMachine creates an empty state machine.
func NewStateMachine(name string) *StateMachine {
	n := &StateMachine{}
	n.init(n, name)
	n.addOutput("pose", ValuePose)
	return n
}

func (sm *StateMachine) NewUniqueData(inst *Instance) UniqueData {
	return &stateMachineData{NodeData: *NewNodeData(), switchToEntry: true}
}

func (sm *StateMachine) data(inst *Instance) *stateMachineData {
	return inst.UniqueData(sm).(*stateMachineData)
}

// AddState adds a child state. The first state becomes the entry state
// unless another is set.
func (sm *StateMachine) AddState(n Node) {
	sm.states = append(sm.states, n)
}

// States returns the child states.
func (sm *StateMachine) States() []Node { return sm.states }

// ChildNodes returns the child states.
func (sm *StateMachine) ChildNodes() []Node { return sm.states }

// FindState returns the child state with the given name, or nil.
func (sm *StateMachine) FindState(name string) Node {
	for _, s := range sm.states {
		if s.Base().Name() == name {
			return s
		}
	}
	return nil
}

// AddTransition adds a transition between two of the machine's states.
func (sm *StateMachine) AddTransition(t *Transition) {
	sm.transitions = append(sm.transitions, t)
}

// Transitions returns the machine's transitions.
func (sm *StateMachine) Transitions() []*Transition { return sm.transitions }

// SetEntryState sets the initial state.
func (sm *StateMachine) SetEntryState(n Node) { sm.entry = n }

// Entry returns the initial state.
func (sm *StateMachine) Entry() Node { return sm.entry }

func (sm *StateMachine) resolve(g *Graph) []*StructuralError {
	var errs []*StructuralError
	if sm.entry == nil && sm.EntryState != "" {
		sm.entry = sm.FindState(sm.EntryState)
	}
	if sm.entry != nil && !containsNode(sm.states, sm.entry) {
		sm.entry = nil
	}
	switch {
	case len(sm.states) == 0:
		errs = append(errs, &StructuralError{Kind: KindMissingEntryState, Node: sm.name, Msg: "state machine has no states, outputting bind pose"})
	case sm.entry == nil && sm.EntryState != "":
		sm.entry = sm.states[0]
		errs = append(errs, &StructuralError{Kind: KindMissingEntryState, Node: sm.name, Msg: "unknown entry state " + sm.EntryState + ", using " + sm.entry.Base().Name()})
	case sm.entry == nil:
		sm.entry = sm.states[0]
	}

	for _, t := range sm.transitions {
		if t.target == nil || !containsNode(sm.states, t.target) {
			t.Disabled = true
			errs = append(errs, &StructuralError{Kind: KindUnresolved, Node: sm.name, Msg: "transition " + t.String() + " has no valid target, disabled"})
			continue
		}
		if !t.wildcard && (t.source == nil || !containsNode(sm.states, t.source)) {
			t.Disabled = true
			errs = append(errs, &StructuralError{Kind: KindUnresolved, Node: sm.name, Msg: "transition " + t.String() + " has no valid source, disabled"})
			continue
		}
		t.allowed = t.allowed[:0]
		for _, name := range t.AllowedSources {
			s := sm.FindState(name)
			if s == nil {
				errs = append(errs, &StructuralError{Kind: KindUnresolved, Node: sm.name, Msg: "transition " + t.String() + " allows unknown state " + name})
				continue
			}
			t.allowed = append(t.allowed, s)
		}
	}
	return errs
}

// CurrentState returns the state the machine is in. Before the first
// update this is the entry state.
func (sm *StateMachine) CurrentState(inst *Instance) Node {
	d := sm.data(inst)
	if d.current == nil && d.switchToEntry {
		return sm.entry
	}
	return d.current
}

// PreviousState returns the state that was current before the last switch.
func (sm *StateMachine) PreviousState(inst *Instance) Node { return sm.data(inst).previous }

// IsTransitioning reports whether any transition is blending.
func (sm *StateMachine) IsTransitioning(inst *Instance) bool {
	return len(sm.data(inst).active) > 0
}

// ActiveTransitions returns the blending transitions, newest first.
func (sm *StateMachine) ActiveTransitions(inst *Instance) []*Transition {
	return append([]*Transition(nil), sm.data(inst).active...)
}

// LatestActiveTransition returns the dominant transition, or nil.
func (sm *StateMachine) LatestActiveTransition(inst *Instance) *Transition {
	return sm.data(inst).latest()
}

// ActiveStates returns the current state and every transition target.
func (sm *StateMachine) ActiveStates(inst *Instance) []Node {
	return append([]Node(nil), sm.data(inst).states()...)
}

// IsStateActive reports whether state is current or being blended in.
func (sm *StateMachine) IsStateActive(inst *Instance, state Node) bool {
	return containsNode(sm.data(inst).states(), state)
}

// IsExitReached reports whether an exit state is active.
func (sm *StateMachine) IsExitReached(inst *Instance) bool { return sm.data(inst).reachedExit }

// TimeInState returns the time since the current state became current.
func (sm *StateMachine) TimeInState(inst *Instance) float64 { return sm.data(inst).timeInState }

func (sm *StateMachine) trackRefs(inst *Instance, d *stateMachineData, n Node) {
	if !containsNode(d.poseRefNodes, n) {
		inst.IncreasePoseRef(n)
		d.poseRefNodes = append(d.poseRefNodes, n)
	}
	if !containsNode(d.dataRefNodes, n) {
		inst.IncreaseRefDataRef(n)
		d.dataRefNodes = append(d.dataRefNodes, n)
	}
}

func (sm *StateMachine) updateExitReached(d *stateMachineData) {
	d.reachedExit = false
	for _, s := range d.states() {
		if _, ok := s.(*ExitNode); ok {
			d.reachedExit = true
			return
		}
	}
}

// Update advances transitions, updates every active state, evaluates the
// conditions and computes the machine's sync basis.
func (sm *StateMachine) Update(inst *Instance, dt float64) {
	d := sm.data(inst)
	d.poseRefNodes = d.poseRefNodes[:0]
	d.dataRefNodes = d.dataRefNodes[:0]
	if sm.disabled {
		d.Clear()
		return
	}

	if d.switchToEntry {
		if sm.entry != nil {
			sm.SwitchToState(inst, sm.entry)
		}
		d.switchToEntry = false
	}

	for _, t := range d.active {
		t.update(inst, dt)
	}
	d.timeInState += dt

	for _, s := range d.states() {
		sm.trackRefs(inst, d, s)
		inst.PerformUpdate(s, dt)
	}

	sm.updateConditions(inst, d, d.current, dt)
	sm.checkConditions(inst, d, d.current)

	passes := 0
	for latest := d.latest(); latest != nil && latest.IsDone(inst); latest = d.latest() {
		sm.endAllActiveTransitions(inst, d)
		sm.updateConditions(inst, d, d.current, 0)
		sm.checkConditions(inst, d, d.current)
		if passes >= inst.maxPasses {
			inst.Logger().Warn("too many state switches within one frame",
				"instance", inst.ID(), "state_machine", sm.name, "passes", passes)
			break
		}
		passes++
	}
	sm.updateExitReached(d)

	if d.current == nil {
		d.Clear()
		return
	}
	d.Init(inst.NodeData(d.current))
	if len(d.active) == 0 {
		return
	}

	speed, factor := 1.0, 1.0
	for i := len(d.active) - 1; i >= 0; i-- {
		t := d.active[i]
		src := t.ActualSource(inst)
		if src == nil {
			continue
		}
		w := t.BlendWeight(inst)
		td := inst.NodeData(t.target)
		leaderFactor, _, s := CalcSyncFactors(inst.NodeData(src), td, t.SyncMode, w)
		if i == len(d.active)-1 {
			speed, factor = s, leaderFactor
			continue
		}
		factor = lerp(factor, leaderFactor, w)
		speed = lerp(speed, td.PlaySpeed, w)
	}
	d.PlaySpeed = divideSpeed(speed, factor)
}

func (sm *StateMachine) updateConditions(inst *Instance, d *stateMachineData, state Node, dt float64) {
	if state == nil {
		return
	}
	transitioning := len(d.active) > 0
	for _, t := range sm.transitions {
		if t.Disabled {
			continue
		}
		if !t.wildcard && t.source != state {
			continue
		}
		if transitioning && !t.CanInterruptOthers {
			continue
		}
		t.updateConditions(inst, dt)
	}
}

func (sm *StateMachine) hasDirectTransition(from, to Node) bool {
	for _, t := range sm.transitions {
		if !t.Disabled && !t.wildcard && t.source == from && t.target == to {
			return true
		}
	}
	return false
}

// checkConditions starts the highest priority ready transition leaving
// source, honoring the interruption rules while already transitioning.
func (sm *StateMachine) checkConditions(inst *Instance, d *stateMachineData, source Node) {
	if source == nil {
		return
	}
	highest := math.MinInt
	var chosen *Transition
	interrupt := false
	latest := d.latest()
	transitioning := latest != nil

	for _, t := range sm.transitions {
		if t.Disabled || t.target == nil {
			continue
		}
		if !t.wildcard && t.source != source {
			continue
		}
		if t.wildcard && (!t.CanWildcardFrom(source) || sm.hasDirectTransition(source, t.target)) {
			continue
		}
		if t.Priority <= highest || !t.IsReady(inst) {
			continue
		}
		if transitioning {
			allow := t.CanInterruptOthers && latest.CanBeInterrupted && !d.isActive(t)
			if latest == t && t.AllowSelfInterruption {
				allow = true
			}
			if allow {
				highest = t.Priority
				chosen = t
				interrupt = true
			}
			continue
		}
		if t.target != source {
			highest = t.Priority
			chosen = t
		}
	}

	if chosen == nil {
		return
	}
	if interrupt && chosen == latest {
		// Restart the dominant transition in place.
		target := chosen.target
		sm.fireExit(inst, target, source)
		sm.fireEnd(inst, target, source)
		chosen.onEnd(inst)
		d.removeTransition(chosen)
	}
	sm.startTransition(inst, d, chosen, true)
}

func (sm *StateMachine) resetOutgoingConditions(inst *Instance, state Node) {
	for _, t := range sm.transitions {
		if t.wildcard || t.source == state {
			t.ResetConditions(inst)
		}
	}
}

func (sm *StateMachine) fireEntering(inst *Instance, state, from Node) {
	if state == nil {
		return
	}
	inst.notifyStateEntering(state)
}

func (sm *StateMachine) fireEnter(inst *Instance, state, from Node) {
	if state == nil {
		return
	}
	state.Base().OnStateEnter(inst, from)
	inst.notifyStateEnter(state)
}

func (sm *StateMachine) fireExit(inst *Instance, state, to Node) {
	if state == nil {
		return
	}
	inst.notifyStateExit(state)
}

func (sm *StateMachine) fireEnd(inst *Instance, state, to Node) {
	if state == nil {
		return
	}
	state.Base().OnStateEnd(inst, to)
	inst.notifyStateEnd(state)
}

func (sm *StateMachine) startTransition(inst *Instance, d *stateMachineData, t *Transition, fromUpdate bool) {
	target := t.target
	needsUpdate := !containsNode(d.states(), target)

	source := t.source
	if t.wildcard {
		source = d.current
	}
	td := t.data(inst)
	td.source = source

	if target != source {
		inst.rewindNode(target)
		sm.resetOutgoingConditions(inst, target)
		sm.fireEntering(inst, target, source)
	}

	td.Reset()
	t.onStart(inst)

	if target != source {
		sm.fireExit(inst, source, target)
	}

	d.active = append([]*Transition{t}, d.active...)
	if t.SyncMode != SyncDisabled {
		inst.setFlagRecursive(target, FlagResync)
	}
	t.update(inst, 0)

	if fromUpdate && needsUpdate {
		sm.trackRefs(inst, d, target)
		inst.PerformUpdate(target, 0)
	}
	sm.updateExitReached(d)
}

func (sm *StateMachine) endTransition(inst *Instance, d *stateMachineData, t *Transition) {
	target := t.target
	isLatest := d.latest() == t

	t.onEnd(inst)
	t.ResetConditions(inst)
	sm.fireEnter(inst, target, d.current)

	if isLatest {
		sm.fireEnd(inst, d.current, target)
		d.previous = d.current
		d.current = target
		d.timeInState = 0
	} else if t.IsDone(inst) {
		sm.fireEnd(inst, target, target)
	}
	d.removeTransition(t)
}

func (sm *StateMachine) endAllActiveTransitions(inst *Instance, d *stateMachineData) {
	for len(d.active) > 0 {
		sm.endTransition(inst, d, d.active[len(d.active)-1])
	}
}

// SwitchToState makes target current at once, dropping every active
// transition.
func (sm *StateMachine) SwitchToState(inst *Instance, target Node) {
	d := sm.data(inst)
	d.switchToEntry = false
	if target != nil {
		inst.rewindNode(target)
		sm.resetOutgoingConditions(inst, target)
	}
	cur := d.current
	sm.fireExit(inst, cur, target)
	sm.fireEnd(inst, cur, target)
	sm.fireEntering(inst, target, cur)
	sm.fireEnter(inst, target, cur)

	d.previous = cur
	d.current = target
	d.active = nil
	d.timeInState = 0
	sm.updateExitReached(d)
}

// TransitionToState starts the best transition from the current state to
// target, or switches directly when there is none.
func (sm *StateMachine) TransitionToState(inst *Instance, target Node) {
	d := sm.data(inst)
	if d.current == nil && d.switchToEntry && sm.entry != nil {
		sm.SwitchToState(inst, sm.entry)
	}
	cur := d.current
	if t := sm.FindTransition(cur, target); t != nil && cur != nil {
		sm.startTransition(inst, d, t, false)
		return
	}
	sm.SwitchToState(inst, target)
}

// FindTransition returns the highest priority direct transition from
// current to target, or else a wildcard into target.
func (sm *StateMachine) FindTransition(current, target Node) *Transition {
	if target == nil || current == target {
		return nil
	}
	var best *Transition
	for _, t := range sm.transitions {
		if t.Disabled || t.wildcard || t.source != current || t.target != target {
			continue
		}
		if best == nil || t.Priority > best.Priority {
			best = t
		}
	}
	if best != nil {
		return best
	}
	for _, t := range sm.transitions {
		if !t.Disabled && t.wildcard && t.target == target && t.CanWildcardFrom(current) {
			return t
		}
	}
	return nil
}

// TopDownUpdate hands weights to the active states and, for synced
// transitions, makes each target follow the shared source.
func (sm *StateMachine) TopDownUpdate(inst *Instance, dt float64) {
	d := sm.data(inst)
	if sm.disabled {
		return
	}
	if len(d.active) == 0 {
		if d.current != nil {
			inst.hierarchicalSyncInputNode(d.current, sm)
			inst.PerformTopDownUpdate(d.current, dt)
		}
		return
	}

	speeds := make([]float64, len(d.active))
	for i, t := range d.active {
		if src := t.ActualSource(inst); src != nil {
			_, _, speeds[i] = CalcSyncFactors(inst.NodeData(src), inst.NodeData(t.target), t.SyncMode, t.BlendWeight(inst))
		}
	}

	for i := len(d.active) - 1; i >= 0; i-- {
		t := d.active[i]
		src := t.ActualSource(inst)
		if src == nil {
			continue
		}
		target := t.target
		w := t.BlendWeight(inst)
		sd := inst.NodeData(src)
		td := inst.NodeData(target)

		if t.SyncMode != SyncDisabled {
			if !inst.HasFlags(sm.ObjectIndex(), FlagSynced) {
				inst.setFlagRecursive(src, FlagSynced)
				inst.EnableFlags(src.ObjectIndex(), FlagIsSyncLeader)
				inst.setFlagRecursive(target, FlagSynced)
			}
			inst.hierarchicalSyncInputNode(src, sm)
			sd.PlaySpeed = d.PlaySpeed

			idx := target.ObjectIndex()
			inst.syncFollower(target, src, w, t.SyncMode, inst.HasFlags(idx, FlagResync), speeds[i])
			inst.DisableFlags(idx, FlagResync)
		}

		sd.GlobalWeight = d.GlobalWeight * (1 - w)
		sd.LocalWeight = 1 - w
		inst.PerformTopDownUpdate(src, dt)

		td.GlobalWeight = d.GlobalWeight * w
		td.LocalWeight = w
		inst.PerformTopDownUpdate(target, dt)
	}
}

// PostUpdate merges the events and root motion of the active states along
// the transition stack, oldest first.
func (sm *StateMachine) PostUpdate(inst *Instance, dt float64) {
	d := sm.data(inst)
	inst.RequestRefDatas(sm)
	out := d.RefData
	out.Reset()

	if !sm.disabled {
		for _, s := range d.states() {
			inst.PerformPostUpdate(s, dt)
		}
		sm.mergeRefData(inst, d, out)
	}

	for _, n := range d.dataRefNodes {
		inst.DecreaseRefDataRef(n)
		inst.releaseDroppedRefDataRefs(n)
	}
	d.dataRefNodes = d.dataRefNodes[:0]
}

func (sm *StateMachine) mergeRefData(inst *Instance, d *stateMachineData, out *pool.RefData) {
	if len(d.active) == 0 {
		if d.current != nil {
			if src := inst.NodeData(d.current).RefData; src != nil {
				out.CopyFrom(src)
			}
		}
		return
	}
	start := d.active[len(d.active)-1].ActualSource(inst)
	if start == nil {
		return
	}
	if src := inst.NodeData(start).RefData; src != nil {
		out.CopyFrom(src)
	}
	for i := len(d.active) - 1; i >= 0; i-- {
		t := d.active[i]
		w := t.BlendWeight(inst)
		d.prevData.CopyFrom(out)
		target := inst.NodeData(t.target).RefData
		FilterEvents(t.EventMode, &d.prevData, target, w, out)
		if target != nil {
			out.BlendDeltas(&d.prevData, target, w)
		}
	}
}

// Output blends the oldest source through every transition target, oldest
// to newest.
func (sm *StateMachine) Output(inst *Instance) {
	d := sm.data(inst)
	defer sm.releasePoseRefs(inst, d)

	if sm.disabled {
		inst.outputBindPose(sm)
		return
	}
	for _, s := range d.states() {
		inst.PerformOutput(s)
	}
	inst.RequestPoses(sm)
	out := d.Pose

	if len(d.active) == 0 {
		if d.current == nil {
			out.InitFromBindPose(inst.Skeleton())
			return
		}
		copyOrBind(inst, out, inst.NodeData(d.current))
		return
	}

	start := d.active[len(d.active)-1].ActualSource(inst)
	if start == nil || inst.NodeData(start).Pose == nil {
		out.InitFromBindPose(inst.Skeleton())
		return
	}
	out.CopyFrom(inst.NodeData(start).Pose)
	for i := len(d.active) - 1; i >= 0; i-- {
		t := d.active[i]
		if p := inst.NodeData(t.target).Pose; p != nil {
			out.Blend(p, t.BlendWeight(inst))
		}
	}
}

func (sm *StateMachine) releasePoseRefs(inst *Instance, d *stateMachineData) {
	for _, n := range d.poseRefNodes {
		inst.DecreasePoseRef(n)
		inst.releaseDroppedPoseRefs(n)
	}
	d.poseRefNodes = d.poseRefNodes[:0]
}

// heldRefs returns the states that took references in Update. A state
// that ended its transition during Update is among them without being
// active.
func (sm *StateMachine) heldRefs(inst *Instance, poses bool) []Node {
	d := sm.data(inst)
	var out []Node
	if poses {
		out = append(out, d.poseRefNodes...)
		d.poseRefNodes = d.poseRefNodes[:0]
	} else {
		out = append(out, d.dataRefNodes...)
		d.dataRefNodes = d.dataRefNodes[:0]
	}
	return out
}

// Rewind returns the machine to its entry state.
func (sm *StateMachine) Rewind(inst *Instance) {
	d := sm.data(inst)
	entry := sm.entry
	cur := d.current
	d.NodeData.Reset()
	if entry == nil {
		d.Reset()
		return
	}
	sm.fireExit(inst, cur, entry)
	sm.fireEnd(inst, cur, entry)
	inst.rewindNode(entry)
	sm.resetOutgoingConditions(inst, entry)
	sm.fireEntering(inst, entry, cur)
	sm.fireEnter(inst, entry, cur)

	d.Reset()
	d.current = entry
	d.switchToEntry = false
	sm.updateExitReached(d)
}
