package pool

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/AaronLay10/animgraph/internal/pose"
)

func TestPosePoolReuse(t *testing.T) {
	p := NewPosePool(1, 4)
	if p.NumFree() != 1 {
		t.Fatalf("expected 1 preallocated pose, got %d", p.NumFree())
	}

	a := p.Request(4)
	b := p.Request(4)
	if p.NumUsed() != 2 {
		t.Errorf("expected 2 used, got %d", p.NumUsed())
	}
	if p.NumAllocated() != 2 {
		t.Errorf("expected 2 allocated, got %d", p.NumAllocated())
	}

	p.Free(a)
	c := p.Request(4)
	if c != a {
		t.Error("expected freed pose to be reused")
	}

	p.Free(b)
	p.Free(c)
	if p.NumUsed() != 0 {
		t.Errorf("expected 0 used, got %d", p.NumUsed())
	}
	if p.MaxUsed() != 2 {
		t.Errorf("expected high-water mark 2, got %d", p.MaxUsed())
	}
}

func TestPosePoolResizes(t *testing.T) {
	p := NewPosePool(1, 2)
	got := p.Request(5)
	if got.NumJoints() != 5 {
		t.Errorf("expected 5 joints, got %d", got.NumJoints())
	}
}

func TestRefDataPoolResetsOnRequest(t *testing.T) {
	p := NewRefDataPool(0)
	d := p.Request()
	d.Events.Add(pose.FiredEvent{Name: "step"})
	d.Delta.Position = r3.Vec{X: 1}
	p.Free(d)

	again := p.Request()
	if again.Events.Len() != 0 {
		t.Errorf("expected reset events, got %d", again.Events.Len())
	}
	if again.Delta.Position.X != 0 {
		t.Errorf("expected zero delta, got %v", again.Delta.Position)
	}
}

func TestPartitionForThread(t *testing.T) {
	p := NewPartition(2, 0, 1)
	if p.ForThread(0) == p.ForThread(1) {
		t.Error("expected distinct pools per thread")
	}
	if p.ForThread(2) != p.ForThread(0) {
		t.Error("expected thread index to wrap")
	}
	if NewPartition(0, 0, 1).NumThreads() != 1 {
		t.Error("expected at least one thread")
	}
}
