package animgraph

import "fmt"

// TriggerTiming selects when a trigger action fires.
type TriggerTiming int

const (
	// TriggerOnEnter fires when a state is entered from a different state.
	TriggerOnEnter TriggerTiming = iota
	// TriggerOnExit fires when a state is left for a different state.
	TriggerOnExit
	// TriggerOnStart fires when a transition starts.
	TriggerOnStart
	// TriggerOnEnd fires when a transition ends.
	TriggerOnEnd
)

// ParseTriggerTiming parses "enter", "exit", "start" or "end".
func ParseTriggerTiming(s string) (TriggerTiming, error) {
	switch s {
	case "enter", "on_enter":
		return TriggerOnEnter, nil
	case "exit", "on_exit":
		return TriggerOnExit, nil
	case "start", "on_start":
		return TriggerOnStart, nil
	case "end", "on_end":
		return TriggerOnEnd, nil
	}
	return TriggerOnEnter, fmt.Errorf("unknown trigger timing %q", s)
}

// TriggerAction is a side effect attached to a state or a transition.
type TriggerAction interface {
	Timing() TriggerTiming
	Trigger(inst *Instance)
}

// ParameterAction sets a parameter when triggered.
type ParameterAction struct {
	Parameter string
	Value     Value
	When      TriggerTiming
}

// NewParameterAction creates an action setting parameter to v.
func NewParameterAction(parameter string, v Value, when TriggerTiming) *ParameterAction {
	return &ParameterAction{Parameter: parameter, Value: v, When: when}
}

func (a *ParameterAction) Timing() TriggerTiming { return a.When }

func (a *ParameterAction) Trigger(inst *Instance) {
	if err := inst.SetParameterByName(a.Parameter, a.Value); err != nil {
		inst.Logger().Warn("trigger action failed", "instance", inst.ID(), "parameter", a.Parameter, "error", err)
	}
}
