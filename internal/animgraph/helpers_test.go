package animgraph

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/AaronLay10/animgraph/internal/motion"
	"github.com/AaronLay10/animgraph/internal/pool"
	"github.com/AaronLay10/animgraph/internal/pose"
)

func testSkeleton() *pose.Skeleton {
	return pose.NewSkeleton("test", []pose.Joint{
		{Name: "root", Parent: -1},
		{Name: "spine", Parent: 0},
	}, nil)
}

func translated(z float64) pose.Transform {
	t := pose.Identity()
	t.Position = r3.Vec{Z: z}
	return t
}

// testMotions returns walk (1s), run (0.5s) and idle (2s). walk and run
// carry LeftFoot/RightFoot sync events.
func testMotions() *motion.MotionSet {
	set := motion.NewMotionSet("test")

	walk := motion.NewKeyframeMotion("walk", 1, "root")
	walk.AddKey("root", motion.Key{Time: 0, Transform: translated(0)})
	walk.AddKey("root", motion.Key{Time: 1, Transform: translated(1)})
	walk.AddEvent(motion.NewEvent("LeftFoot", "RightFoot", 0, 0), true)
	walk.AddEvent(motion.NewEvent("RightFoot", "LeftFoot", 0.5, 0.5), true)
	walk.AddEvent(motion.NewEvent("Step", "", 0.25, 0.25), false)
	set.Add(walk)

	run := motion.NewKeyframeMotion("run", 0.5, "root")
	run.AddKey("root", motion.Key{Time: 0, Transform: translated(0)})
	run.AddKey("root", motion.Key{Time: 0.5, Transform: translated(2)})
	run.AddEvent(motion.NewEvent("LeftFoot", "RightFoot", 0, 0), true)
	run.AddEvent(motion.NewEvent("RightFoot", "LeftFoot", 0.25, 0.25), true)
	set.Add(run)

	idle := motion.NewKeyframeMotion("idle", 2, "root")
	idle.AddKey("root", motion.Key{Time: 0, Transform: translated(5)})
	set.Add(idle)
	return set
}

// countingNode records how often each phase ran.
type countingNode struct {
	NodeBase
	updates, topDowns, postUpdates, outputs int
}

func newCountingNode(name string) *countingNode {
	n := &countingNode{}
	n.init(n, name)
	n.addOutput("pose", ValuePose)
	return n
}

func (n *countingNode) Update(inst *Instance, dt float64) {
	n.updates++
	n.NodeBase.Update(inst, dt)
}

func (n *countingNode) TopDownUpdate(inst *Instance, dt float64) {
	n.topDowns++
	n.NodeBase.TopDownUpdate(inst, dt)
}

func (n *countingNode) PostUpdate(inst *Instance, dt float64) {
	n.postUpdates++
	n.NodeBase.PostUpdate(inst, dt)
}

func (n *countingNode) Output(inst *Instance) {
	n.outputs++
	n.NodeBase.Output(inst)
}

// recordingHandler logs notifications as "kind:name".
type recordingHandler struct {
	log []string
}

func (h *recordingHandler) OnStateEntering(_ *Instance, s Node) {
	h.log = append(h.log, "entering:"+s.Base().Name())
}

func (h *recordingHandler) OnStateEnter(_ *Instance, s Node) {
	h.log = append(h.log, "enter:"+s.Base().Name())
}

func (h *recordingHandler) OnStateExit(_ *Instance, s Node) {
	h.log = append(h.log, "exit:"+s.Base().Name())
}

func (h *recordingHandler) OnStateEnd(_ *Instance, s Node) {
	h.log = append(h.log, "end:"+s.Base().Name())
}

func (h *recordingHandler) OnStartTransition(_ *Instance, t *Transition) {
	h.log = append(h.log, "start:"+t.String())
}

func (h *recordingHandler) OnEndTransition(_ *Instance, t *Transition) {
	h.log = append(h.log, "finish:"+t.String())
}

// twoStateGraph builds A(walk) -> B(run) over 0.3s gated by the bool
// parameter "go".
func twoStateGraph() (*Graph, *MotionNode, *MotionNode, *Transition) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddState(b)
	t := NewTransition(a, b, 0.3)
	t.AddCondition(NewParameterCondition("go", CompareNotEqual, 0))
	sm.AddTransition(t)

	g := NewGraph("two_state", sm)
	g.AddParameter(ParameterDef{Name: "go", Type: ValueBool, Default: BoolValue(false)})
	return g, a, b, t
}

func assertPoolsDrained(t testing.TB, inst *Instance) {
	t.Helper()
	if n := inst.Pools().Poses.NumUsed(); n != 0 {
		t.Errorf("expected 0 poses in use, got %d", n)
	}
	if n := inst.Pools().RefData.NumUsed(); n != 0 {
		t.Errorf("expected 0 ref datas in use, got %d", n)
	}
}

func newRefDataWith(names ...string) *pool.RefData {
	d := &pool.RefData{}
	d.Reset()
	for _, n := range names {
		d.Events.Add(pose.FiredEvent{Name: n, LocalWeight: 1})
	}
	return d
}

// assertRefsBalanced checks that every consumer released what it took by
// the end of Output.
func assertRefsBalanced(t testing.TB, g *Graph, inst *Instance) {
	t.Helper()
	for _, n := range g.Nodes() {
		d := inst.NodeData(n)
		if d.PoseRefCount != 0 || d.RefDataRefCount != 0 {
			t.Errorf("expected no refs left on %s, got pose=%d data=%d",
				n.Base().Name(), d.PoseRefCount, d.RefDataRefCount)
		}
	}
}
