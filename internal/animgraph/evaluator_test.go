package animgraph

import (
	"testing"

	"github.com/AaronLay10/animgraph/internal/pool"
	"github.com/AaronLay10/animgraph/internal/pose"
)

// singleTreeGraph wraps a blend tree in a one-state root machine.
func singleTreeGraph(tree *BlendTree) *Graph {
	sm := NewStateMachine("root")
	sm.AddState(tree)
	return NewGraph("tree", sm)
}

func mustConnect(t *testing.T, target Node, source Node, port int) {
	t.Helper()
	if _, err := target.Base().Connect(source, 0, port); err != nil {
		t.Fatalf("failed to connect %s -> %s: %v", source.Base().Name(), target.Base().Name(), err)
	}
}

func TestPhasesRunOncePerFrame(t *testing.T) {
	c := newCountingNode("shared")
	blend := NewBlend2Node("blend")
	blend.Weight = 0.5
	final := NewFinalNode("final")
	tree := NewBlendTree("tree")
	tree.AddNode(final)
	tree.AddNode(blend)
	tree.AddNode(c)
	mustConnect(t, blend, c, Blend2InputA)
	mustConnect(t, blend, c, Blend2InputB)
	mustConnect(t, final, blend, 0)

	inst := NewInstance(singleTreeGraph(tree), testSkeleton(), testMotions())
	for i := 0; i < 3; i++ {
		inst.Evaluate(0.1)
		assertPoolsDrained(t, inst)
	}
	inst.Output(nil)

	if c.updates != 3 || c.topDowns != 3 || c.postUpdates != 3 || c.outputs != 3 {
		t.Errorf("expected 3 runs of every phase, got update=%d topdown=%d post=%d output=%d",
			c.updates, c.topDowns, c.postUpdates, c.outputs)
	}
}

func TestDisabledBlendOutputsBindPose(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	blend := NewBlend2Node("blend")
	final := NewFinalNode("final")
	tree := NewBlendTree("tree")
	for _, n := range []Node{final, blend, a, b} {
		tree.AddNode(n)
	}
	mustConnect(t, blend, a, Blend2InputA)
	mustConnect(t, blend, b, Blend2InputB)
	mustConnect(t, final, blend, 0)

	skel := testSkeleton()
	inst := NewInstance(singleTreeGraph(tree), skel, testMotions())
	inst.Evaluate(0.5)
	if inst.Pose().Equal(skel.BindPose(), 1e-9) {
		t.Fatal("expected the walk pose to differ from the bind pose")
	}

	blend.SetDisabled(true)
	inst.Evaluate(0.1)
	if !inst.Pose().Equal(skel.BindPose(), 1e-9) {
		t.Error("expected bind pose from disabled blend")
	}
	assertPoolsDrained(t, inst)
}

func TestBlendWeightFromParameter(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	p := NewParameterNode("w", "blend", ValueFloat)
	blend := NewBlend2Node("blend")
	final := NewFinalNode("final")
	tree := NewBlendTree("tree")
	for _, n := range []Node{final, blend, a, b, p} {
		tree.AddNode(n)
	}
	mustConnect(t, blend, a, Blend2InputA)
	mustConnect(t, blend, b, Blend2InputB)
	mustConnect(t, blend, p, Blend2InputWeight)
	mustConnect(t, final, blend, 0)

	g := singleTreeGraph(tree)
	g.AddParameter(ParameterDef{Name: "blend", Type: ValueFloat, Default: FloatValue(0.25)})
	inst := NewInstance(g, testSkeleton(), testMotions())
	inst.Evaluate(0.1)
	if w := blend.BlendWeight(inst); w != 0.25 {
		t.Errorf("expected weight 0.25, got %v", w)
	}
	inst.SetParameterByName("blend", FloatValue(3))
	inst.Evaluate(0.1)
	if w := blend.BlendWeight(inst); w != 1 {
		t.Errorf("expected weight clamped to 1, got %v", w)
	}
	assertPoolsDrained(t, inst)
}

func TestMissingMotionSetsErrorAndBindPose(t *testing.T) {
	m := NewMotionNode("ghost", "does_not_exist")
	final := NewFinalNode("final")
	tree := NewBlendTree("tree")
	tree.AddNode(final)
	tree.AddNode(m)
	mustConnect(t, final, m, 0)

	skel := testSkeleton()
	inst := NewInstance(singleTreeGraph(tree), skel, testMotions())
	inst.Evaluate(0.1)
	if !inst.NodeData(m).HasError {
		t.Error("expected has-error on the motion node")
	}
	if !inst.NodeData(tree).HasError {
		t.Error("expected has-error to propagate to the tree")
	}
	if !inst.Pose().Equal(skel.BindPose(), 1e-9) {
		t.Error("expected bind pose")
	}
}

func TestMissingFinalNodeOutputsBindPose(t *testing.T) {
	tree := NewBlendTree("tree")
	tree.AddNode(NewMotionNode("A", "walk"))
	g := singleTreeGraph(tree)
	skel := testSkeleton()
	inst := NewInstance(g, skel, testMotions())
	if !g.Report().HasKind(KindMissingFinalNode) {
		t.Error("expected missing final node problem")
	}
	inst.Evaluate(0.1)
	if !inst.Pose().Equal(skel.BindPose(), 1e-9) {
		t.Error("expected bind pose")
	}
	assertPoolsDrained(t, inst)
}

func TestRootMotionAndEventsReachInstance(t *testing.T) {
	a := NewMotionNode("A", "walk")
	sm := NewStateMachine("root")
	sm.AddState(a)
	inst := NewInstance(NewGraph("events", sm), testSkeleton(), testMotions())

	inst.Evaluate(0.3)
	found := false
	for _, e := range inst.Events() {
		if e.Name == "Step" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Step event, got %v", inst.Events())
	}
	if z := inst.RootDelta().Position.Z; z < 0.29 || z > 0.31 {
		t.Errorf("expected root delta z 0.3, got %v", z)
	}
}

func TestPoolReuseAcrossFrames(t *testing.T) {
	g, _, _, _ := twoStateGraph()
	pools := pool.NewThreadPools(2, 2)
	inst := NewInstance(g, testSkeleton(), testMotions(), WithPools(pools))
	inst.SetParameterByName("go", BoolValue(true))
	for i := 0; i < 10; i++ {
		inst.Evaluate(0.05)
	}
	allocated := pools.Poses.NumAllocated()
	for i := 0; i < 10; i++ {
		inst.Evaluate(0.05)
	}
	if pools.Poses.NumAllocated() != allocated {
		t.Errorf("expected no new pose allocations in steady state, got %d -> %d", allocated, pools.Poses.NumAllocated())
	}
	assertPoolsDrained(t, inst)
}

func TestOutputCopiesIntoCallerPose(t *testing.T) {
	g, _, _, _ := twoStateGraph()
	skel := testSkeleton()
	inst := NewInstance(g, skel, testMotions())
	inst.Update(0.5)
	out := pose.New(0)
	inst.Output(out)
	if out.NumJoints() != skel.NumJoints() {
		t.Fatalf("expected %d joints, got %d", skel.NumJoints(), out.NumJoints())
	}
	if !out.Equal(inst.Pose(), 1e-12) {
		t.Error("expected caller pose to match instance pose")
	}
}
