package animgraph

import "fmt"

// Interpolation shapes a transition's blend weight over its duration.
type Interpolation int

const (
	InterpolateLinear Interpolation = iota
	InterpolateEaseInOut
)

// ParseInterpolation parses "linear" or "ease_in_out".
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "", "linear":
		return InterpolateLinear, nil
	case "ease_in_out", "ease", "smooth":
		return InterpolateEaseInOut, nil
	}
	return InterpolateLinear, fmt.Errorf("unknown interpolation %q", s)
}

func (ip Interpolation) apply(t float64) float64 {
	t = clamp01(t)
	if ip == InterpolateEaseInOut {
		return t * t * (3 - 2*t)
	}
	return t
}

// Transition is a conditional edge between two states of a state machine.
// A wildcard transition has no fixed source and may start from any state
// allowed by its source filter.
type Transition struct {
	objectIndex

	Name                  string
	Duration              float64
	Priority              int
	Disabled              bool
	CanBeInterrupted      bool
	CanInterruptOthers    bool
	AllowSelfInterruption bool
	Interpolation         Interpolation
	SyncMode              SyncMode
	EventMode             EventMode
	// AllowedSources restricts the states a wildcard transition starts
	// from. Empty allows every state.
	AllowedSources []string

	source     Node
	target     Node
	wildcard   bool
	allowed    []Node
	conditions []Condition
	actions    []TriggerAction
}

type transitionData struct {
	source  Node
	elapsed float64
	weight  float64
	done    bool
}

func (d *transitionData) Reset() {
	d.elapsed = 0
	d.weight = 0
	d.done = false
}

// NewTransition creates a transition from source to target blending over
// duration seconds.
func NewTransition(source, target Node, duration float64) *Transition {
	return &Transition{source: source, target: target, Duration: duration, objectIndex: objectIndex{index: -1}}
}

// NewWildcardTransition creates a transition into target usable from any
// state.
func NewWildcardTransition(target Node, duration float64) *Transition {
	return &Transition{target: target, wildcard: true, Duration: duration, objectIndex: objectIndex{index: -1}}
}

func (t *Transition) NewUniqueData(inst *Instance) UniqueData {
	return &transitionData{source: t.source}
}

func (t *Transition) data(inst *Instance) *transitionData {
	return inst.UniqueData(t).(*transitionData)
}

// Source returns the configured source state, nil for wildcards.
func (t *Transition) Source() Node { return t.source }

// Target returns the target state.
func (t *Transition) Target() Node { return t.target }

// IsWildcard reports whether the transition has no fixed source.
func (t *Transition) IsWildcard() bool { return t.wildcard }

// AddCondition appends a condition. All conditions must pass.
func (t *Transition) AddCondition(c Condition) { t.conditions = append(t.conditions, c) }

// Conditions returns the transition's conditions.
func (t *Transition) Conditions() []Condition { return t.conditions }

// AddAction attaches a trigger action fired on start or end.
func (t *Transition) AddAction(a TriggerAction) { t.actions = append(t.actions, a) }

// String names the transition by its endpoints.
func (t *Transition) String() string {
	if t.Name != "" {
		return t.Name
	}
	src := "*"
	if t.source != nil {
		src = t.source.Base().Name()
	}
	dst := "?"
	if t.target != nil {
		dst = t.target.Base().Name()
	}
	return src + "->" + dst
}

// ActualSource returns the state the transition started from in inst. For
// wildcards this is the state that was current when it started.
func (t *Transition) ActualSource(inst *Instance) Node {
	return t.data(inst).source
}

// CanWildcardFrom reports whether a wildcard transition may leave state.
func (t *Transition) CanWildcardFrom(state Node) bool {
	if len(t.allowed) == 0 {
		return true
	}
	for _, s := range t.allowed {
		if s == state {
			return true
		}
	}
	return false
}

// IsReady reports whether every condition passes. A transition without
// conditions is always ready.
func (t *Transition) IsReady(inst *Instance) bool {
	for _, c := range t.conditions {
		if !c.Test(inst) {
			return false
		}
	}
	return true
}

// ResetConditions resets the per-instance state of every condition.
func (t *Transition) ResetConditions(inst *Instance) {
	for _, c := range t.conditions {
		c.Reset(inst)
	}
}

func (t *Transition) updateConditions(inst *Instance, dt float64) {
	for _, c := range t.conditions {
		c.Update(inst, dt)
	}
}

// update advances the blend. A transition without duration finishes at once.
func (t *Transition) update(inst *Instance, dt float64) {
	d := t.data(inst)
	d.elapsed += dt
	if t.Duration <= 0 || d.elapsed >= t.Duration {
		d.weight = 1
		d.done = true
		return
	}
	d.weight = t.Interpolation.apply(d.elapsed / t.Duration)
}

// BlendWeight returns the blend weight towards the target in inst.
func (t *Transition) BlendWeight(inst *Instance) float64 { return t.data(inst).weight }

// Elapsed returns the time since the transition started in inst.
func (t *Transition) Elapsed(inst *Instance) float64 { return t.data(inst).elapsed }

// IsDone reports whether the blend has completed in inst.
func (t *Transition) IsDone(inst *Instance) bool { return t.data(inst).done }

func (t *Transition) onStart(inst *Instance) {
	for _, a := range t.actions {
		if a.Timing() == TriggerOnStart {
			a.Trigger(inst)
		}
	}
	inst.notifyStartTransition(t)
}

func (t *Transition) onEnd(inst *Instance) {
	for _, a := range t.actions {
		if a.Timing() == TriggerOnEnd {
			a.Trigger(inst)
		}
	}
	inst.notifyEndTransition(t)
}
