package animgraph

import (
	"math"
	"slices"
	"testing"
)

func TestTwoStateTransitionCompletesAfterDuration(t *testing.T) {
	g, a, b, tr := twoStateGraph()
	inst := NewInstance(g, testSkeleton(), testMotions())
	if err := inst.SetParameterByName("go", BoolValue(true)); err != nil {
		t.Fatalf("failed to set parameter: %v", err)
	}

	for frame := 1; frame <= 3; frame++ {
		inst.Evaluate(0.1)
		if !inst.IsTransitioning() {
			t.Fatalf("frame %d: expected transition in progress", frame)
		}
		if inst.CurrentState() != a {
			t.Errorf("frame %d: expected current state A, got %s", frame, inst.CurrentState().Base().Name())
		}
		assertPoolsDrained(t, inst)
		assertRefsBalanced(t, g, inst)
	}
	if w := tr.BlendWeight(inst); math.Abs(w-0.2/0.3) > 1e-9 {
		t.Errorf("expected blend weight %v, got %v", 0.2/0.3, w)
	}

	inst.Evaluate(0.1)
	if inst.IsTransitioning() {
		t.Error("expected transition to be finished")
	}
	if inst.CurrentState() != b {
		t.Errorf("expected current state B, got %s", inst.CurrentState().Base().Name())
	}
	if g.Root().PreviousState(inst) != a {
		t.Error("expected previous state A")
	}
	assertPoolsDrained(t, inst)
	assertRefsBalanced(t, g, inst)
}

func TestTransitionNotifications(t *testing.T) {
	g, _, _, _ := twoStateGraph()
	h := &recordingHandler{}
	inst := NewInstance(g, testSkeleton(), testMotions(), WithEventHandler(h))
	inst.SetParameterByName("go", BoolValue(true))

	for i := 0; i < 4; i++ {
		inst.Evaluate(0.1)
	}

	expected := []string{
		"entering:A", "enter:A",
		"entering:B", "start:A->B", "exit:A",
		"finish:A->B", "enter:B", "end:A",
	}
	if !slices.Equal(h.log, expected) {
		t.Errorf("expected %v, got %v", expected, h.log)
	}
}

func TestConditionsBlockTransition(t *testing.T) {
	g, a, _, _ := twoStateGraph()
	inst := NewInstance(g, testSkeleton(), testMotions())
	for i := 0; i < 5; i++ {
		inst.Evaluate(0.1)
	}
	if inst.IsTransitioning() {
		t.Error("expected no transition while condition fails")
	}
	if inst.CurrentState() != a {
		t.Error("expected to stay in A")
	}
}

func TestWildcardWithoutConditionsFiresOnFirstUpdate(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddState(b)
	sm.AddTransition(NewWildcardTransition(b, 0))

	inst := NewInstance(NewGraph("wildcard", sm), testSkeleton(), testMotions())
	inst.Evaluate(0.016)
	if inst.CurrentState() != b {
		t.Errorf("expected current state B, got %s", inst.CurrentState().Base().Name())
	}
	if inst.IsTransitioning() {
		t.Error("expected zero-length transition to be finished")
	}
	assertPoolsDrained(t, inst)
}

func TestWildcardIntoCurrentStateIsSkipped(t *testing.T) {
	a := NewMotionNode("A", "walk")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddTransition(NewWildcardTransition(a, 0.2))

	inst := NewInstance(NewGraph("self", sm), testSkeleton(), testMotions())
	for i := 0; i < 3; i++ {
		inst.Evaluate(0.1)
		if inst.IsTransitioning() {
			t.Fatalf("frame %d: expected no self transition", i)
		}
	}
}

func TestWildcardAllowedSources(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	c := NewMotionNode("C", "idle")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddState(b)
	sm.AddState(c)
	w := NewWildcardTransition(c, 0)
	w.AllowedSources = []string{"B"}
	sm.AddTransition(w)

	inst := NewInstance(NewGraph("filter", sm), testSkeleton(), testMotions())
	inst.Evaluate(0.1)
	if inst.CurrentState() != a {
		t.Fatalf("expected wildcard to be filtered out in A")
	}
	if err := inst.SwitchToState("B"); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	inst.Evaluate(0.1)
	if inst.CurrentState() != c {
		t.Errorf("expected wildcard from B into C, got %s", inst.CurrentState().Base().Name())
	}
}

func TestHighestPriorityTransitionWins(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	c := NewMotionNode("C", "idle")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddState(b)
	sm.AddState(c)
	low := NewTransition(a, b, 0.5)
	low.Priority = 1
	high := NewTransition(a, c, 0.5)
	high.Priority = 5
	sm.AddTransition(low)
	sm.AddTransition(high)

	inst := NewInstance(NewGraph("priority", sm), testSkeleton(), testMotions())
	inst.Evaluate(0.1)
	latest := sm.LatestActiveTransition(inst)
	if latest == nil || latest.Target() != c {
		t.Fatalf("expected transition into C, got %v", latest)
	}
}

func TestInterruption(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	c := NewMotionNode("C", "idle")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddState(b)
	sm.AddState(c)

	toB := NewTransition(a, b, 1)
	toB.CanBeInterrupted = true
	toB.AddCondition(NewParameterCondition("go", CompareNotEqual, 0))
	toC := NewTransition(a, c, 0.15)
	toC.CanInterruptOthers = true
	toC.AddCondition(NewParameterCondition("stop", CompareNotEqual, 0))
	sm.AddTransition(toB)
	sm.AddTransition(toC)

	g := NewGraph("interrupt", sm)
	g.AddParameter(ParameterDef{Name: "go", Type: ValueBool})
	g.AddParameter(ParameterDef{Name: "stop", Type: ValueBool})
	inst := NewInstance(g, testSkeleton(), testMotions())

	inst.SetParameterByName("go", BoolValue(true))
	inst.Evaluate(0.1)
	if n := len(sm.ActiveTransitions(inst)); n != 1 {
		t.Fatalf("expected 1 active transition, got %d", n)
	}

	inst.SetParameterByName("stop", BoolValue(true))
	inst.Evaluate(0.1)
	active := sm.ActiveTransitions(inst)
	if len(active) != 2 {
		t.Fatalf("expected 2 active transitions, got %d", len(active))
	}
	if active[0] != toC {
		t.Errorf("expected newest transition A->C, got %s", active[0])
	}
	if states := sm.ActiveStates(inst); len(states) != 3 {
		t.Errorf("expected 3 active states, got %d", len(states))
	}
	assertPoolsDrained(t, inst)

	inst.Evaluate(0.1)
	if !inst.IsTransitioning() {
		t.Fatal("expected still transitioning")
	}
	inst.Evaluate(0.1)
	if inst.IsTransitioning() {
		t.Error("expected all transitions to be finished")
	}
	if inst.CurrentState() != c {
		t.Errorf("expected current state C, got %s", inst.CurrentState().Base().Name())
	}
	assertPoolsDrained(t, inst)
	assertRefsBalanced(t, g, inst)
}

func TestUninterruptibleTransition(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	c := NewMotionNode("C", "idle")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddState(b)
	sm.AddState(c)
	sm.AddTransition(NewTransition(a, b, 1))
	toC := NewTransition(a, c, 0.1)
	toC.CanInterruptOthers = true
	toC.AddCondition(NewTimeCondition(0.15))
	sm.AddTransition(toC)

	inst := NewInstance(NewGraph("locked", sm), testSkeleton(), testMotions())
	for i := 0; i < 4; i++ {
		inst.Evaluate(0.1)
	}
	if n := len(sm.ActiveTransitions(inst)); n != 1 {
		t.Errorf("expected 1 active transition, got %d", n)
	}
}

func TestSwitchAndTransitionToState(t *testing.T) {
	g, a, _, _ := twoStateGraph()
	inst := NewInstance(g, testSkeleton(), testMotions())

	if err := inst.TransitionToState("missing"); err == nil {
		t.Error("expected error for unknown state")
	}
	if err := inst.TransitionToState("B"); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if !inst.IsTransitioning() {
		t.Fatal("expected transition A->B to start")
	}
	if inst.CurrentState() != a {
		t.Error("expected A to stay current while transitioning")
	}

	if err := inst.SwitchToState("A"); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if inst.IsTransitioning() {
		t.Error("expected switch to drop active transitions")
	}
	if inst.CurrentState() != a {
		t.Error("expected current state A")
	}

	// No transition B->A exists, so this switches.
	inst.SwitchToState("B")
	inst.TransitionToState("A")
	if inst.IsTransitioning() || inst.CurrentState() != a {
		t.Error("expected direct switch to A")
	}
	inst.Evaluate(0.1)
	assertPoolsDrained(t, inst)
}

func TestExitStateReached(t *testing.T) {
	a := NewMotionNode("A", "walk")
	exit := NewExitNode("done")
	inner := NewStateMachine("inner")
	inner.AddState(a)
	inner.AddState(exit)
	inner.AddTransition(NewTransition(a, exit, 0))
	inner.Transitions()[0].AddCondition(NewTimeCondition(0.25))

	after := NewMotionNode("After", "idle")
	root := NewStateMachine("root")
	root.AddState(inner)
	root.AddState(after)
	out := NewTransition(inner, after, 0)
	out.AddCondition(NewStateCondition("inner", "", StateExitReached))
	root.AddTransition(out)

	g := NewGraph("exit", root)
	inst := NewInstance(g, testSkeleton(), testMotions())
	if !g.Report().OK() {
		t.Fatalf("unexpected load problems: %v", g.Report().Err())
	}

	inst.Evaluate(0.1)
	inst.Evaluate(0.1)
	if inner.IsExitReached(inst) {
		t.Fatal("expected exit not yet reached")
	}
	inst.Evaluate(0.1)
	if !inner.IsExitReached(inst) {
		t.Fatal("expected exit reached")
	}
	inst.Evaluate(0.1)
	if inst.CurrentState() != after {
		t.Errorf("expected root to leave the nested machine, got %s", inst.CurrentState().Base().Name())
	}
	assertPoolsDrained(t, inst)
}

func TestStateActionsFireOnEnterAndExit(t *testing.T) {
	g, a, b, _ := twoStateGraph()
	g.AddParameter(ParameterDef{Name: "entered_b", Type: ValueInt})
	g.AddParameter(ParameterDef{Name: "left_a", Type: ValueBool})
	b.AddTriggerAction(NewParameterAction("entered_b", IntValue(7), TriggerOnEnter))
	a.AddTriggerAction(NewParameterAction("left_a", BoolValue(true), TriggerOnExit))

	inst := NewInstance(g, testSkeleton(), testMotions())
	inst.SetParameterByName("go", BoolValue(true))
	for i := 0; i < 4; i++ {
		inst.Evaluate(0.1)
	}
	if v, _ := inst.ParameterByName("entered_b"); v.Int != 7 {
		t.Errorf("expected entered_b 7, got %v", v)
	}
	if v, _ := inst.ParameterByName("left_a"); !v.Bool {
		t.Error("expected left_a true")
	}
}

func TestRewindReturnsToEntry(t *testing.T) {
	g, a, b, _ := twoStateGraph()
	inst := NewInstance(g, testSkeleton(), testMotions())
	inst.SetParameterByName("go", BoolValue(true))
	for i := 0; i < 4; i++ {
		inst.Evaluate(0.1)
	}
	if inst.CurrentState() != b {
		t.Fatal("expected B before rewind")
	}
	inst.SetParameterByName("go", BoolValue(false))
	inst.Rewind()
	if inst.CurrentState() != a {
		t.Errorf("expected entry state A after rewind, got %s", inst.CurrentState().Base().Name())
	}
	if ct := inst.NodeData(a).CurrentTime; ct != 0 {
		t.Errorf("expected A rewound to 0, got %v", ct)
	}
	inst.Evaluate(0.1)
	if inst.CurrentState() != a || inst.IsTransitioning() {
		t.Error("expected to stay in A")
	}
}

func TestMaxTransitionPassesBoundsChains(t *testing.T) {
	a := NewMotionNode("A", "walk")
	b := NewMotionNode("B", "run")
	sm := NewStateMachine("root")
	sm.AddState(a)
	sm.AddState(b)
	sm.AddTransition(NewTransition(a, b, 0))
	sm.AddTransition(NewTransition(b, a, 0))

	g := NewGraph("pingpong", sm)
	inst := NewInstance(g, testSkeleton(), testMotions(), WithMaxTransitionPasses(3))
	inst.Evaluate(0.1)
	assertPoolsDrained(t, inst)
	assertRefsBalanced(t, g, inst)
	inst.Evaluate(0.1)
	assertPoolsDrained(t, inst)
	assertRefsBalanced(t, g, inst)
}

func TestClipSyncedTransitionAlignsTarget(t *testing.T) {
	g, a, b, tr := twoStateGraph()
	tr.SyncMode = SyncClip
	inst := NewInstance(g, testSkeleton(), testMotions())
	inst.Evaluate(0.35)
	inst.SetParameterByName("go", BoolValue(true))
	inst.Evaluate(0.1)
	inst.Evaluate(0.1)

	na := inst.NodeData(a).NormalizedTime()
	nb := inst.NodeData(b).NormalizedTime()
	if math.Abs(na-nb) > 1e-9 {
		t.Errorf("expected follower normalized time %v, got %v", na, nb)
	}
}

// A 2s clip wrapped in a blend tree transitions over 0.3s into a 1s clip,
// triggered before the first frame.
func TestBlendTreeStateTransitionScenario(t *testing.T) {
	clip := NewMotionNode("clip", "idle")
	final := NewFinalNode("final")
	tree := NewBlendTree("A")
	tree.AddNode(final)
	tree.AddNode(clip)
	mustConnect(t, final, clip, 0)

	b := NewMotionNode("B", "walk")
	sm := NewStateMachine("root")
	sm.AddState(tree)
	sm.AddState(b)
	sm.AddTransition(NewTransition(tree, b, 0.3))

	g := NewGraph("scenario", sm)
	inst := NewInstance(g, testSkeleton(), testMotions())
	if err := inst.TransitionToState("B"); err != nil {
		t.Fatalf("failed to start transition: %v", err)
	}

	for frame := 1; frame <= 4; frame++ {
		inst.Evaluate(0.1)
		elapsed := 0.1 * float64(frame)
		if want := elapsed < 0.3-1e-9; inst.IsTransitioning() != want {
			t.Errorf("frame %d: expected transitioning=%v, got %v", frame, want, inst.IsTransitioning())
		}
		assertPoolsDrained(t, inst)
		assertRefsBalanced(t, g, inst)
	}
	if inst.CurrentState() != b {
		t.Errorf("expected current state B, got %s", inst.CurrentState().Base().Name())
	}
}
