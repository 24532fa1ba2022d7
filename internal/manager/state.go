package manager

import (
	"fmt"

	"github.com/AaronLay10/animgraph/internal/animgraph"
)

// InstanceState is a point in time view of an instance, safe to hand to
// other goroutines.
type InstanceState struct {
	ID            string               `json:"id"`
	Graph         string               `json:"graph"`
	Thread        int                  `json:"thread"`
	State         string               `json:"state,omitempty"`
	Transitioning bool                 `json:"transitioning"`
	Leader        string               `json:"leader,omitempty"`
	Followers     []string             `json:"followers,omitempty"`
	Parameters    map[string]string    `json:"parameters"`
	Events        []FiredEvent         `json:"events,omitempty"`
	Stats         animgraph.FrameStats `json:"stats"`
}

// FiredEvent is a motion event fired during the last frame.
type FiredEvent struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Source string  `json:"source,omitempty"`
}

// Key identifies the externally visible state. It changes when the
// current state or the transitioning flag changes.
func (s InstanceState) Key() string {
	return fmt.Sprintf("%s|%t", s.State, s.Transitioning)
}

func snapshot(e *entry) InstanceState {
	inst := e.inst
	s := InstanceState{
		ID:            inst.ID(),
		Graph:         e.asset.Name,
		Thread:        e.thread,
		Transitioning: inst.IsTransitioning(),
		Parameters:    make(map[string]string, inst.NumParameters()),
		Stats:         inst.Stats(),
	}
	if cur := inst.CurrentState(); cur != nil {
		s.State = cur.Base().Name()
	}
	if l := inst.Leader(); l != nil {
		s.Leader = l.ID()
	}
	for _, f := range inst.Followers() {
		s.Followers = append(s.Followers, f.ID())
	}
	for i, def := range inst.Graph().Parameters() {
		s.Parameters[def.Name] = inst.Parameter(i).String()
	}
	for _, ev := range inst.Events() {
		s.Events = append(s.Events, FiredEvent{Name: ev.Name, Weight: ev.GlobalWeight, Source: ev.Source})
	}
	return s
}

// State returns a snapshot of one instance taken between frames.
func (m *Manager) State(id string) (InstanceState, error) {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.instances[id]
	if !ok {
		return InstanceState{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return snapshot(e), nil
}

// States returns snapshots of every instance in creation order.
func (m *Manager) States() []InstanceState {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]InstanceState, 0, len(m.order))
	for _, e := range m.order {
		out = append(out, snapshot(e))
	}
	return out
}
