package manager

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AaronLay10/animgraph/internal/animgraph"
)

func TestSchedulerRunsEveryBatch(t *testing.T) {
	s := NewScheduler(3)
	defer s.Stop()

	batches := [][]*animgraph.Instance{
		make([]*animgraph.Instance, 2),
		nil,
		make([]*animgraph.Instance, 3),
	}
	var calls atomic.Int32
	err := s.Run(context.Background(), batches, func(*animgraph.Instance) { calls.Add(1) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 5 {
		t.Errorf("expected 5 calls, got %d", calls.Load())
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := NewScheduler(2)
	defer s.Stop()

	batches := [][]*animgraph.Instance{make([]*animgraph.Instance, 1), make([]*animgraph.Instance, 1)}
	var calls atomic.Int32
	err := s.Run(context.Background(), batches, func(*animgraph.Instance) {
		if calls.Add(1) == 1 {
			panic("bad frame")
		}
	})
	if err == nil || !strings.Contains(err.Error(), "bad frame") {
		t.Errorf("expected recovered panic, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected both batches to run, got %d", calls.Load())
	}
}

func TestSchedulerRejectsAfterStop(t *testing.T) {
	s := NewScheduler(1)
	s.Stop()

	err := s.Run(context.Background(), [][]*animgraph.Instance{make([]*animgraph.Instance, 1)}, func(*animgraph.Instance) {
		t.Error("expected no calls after Stop")
	})
	if !errors.Is(err, ErrSchedulerStopped) {
		t.Errorf("expected ErrSchedulerStopped, got %v", err)
	}
}
