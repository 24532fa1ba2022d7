package manager

import (
	"log/slog"

	"github.com/AaronLay10/animgraph/internal/animgraph"
	"github.com/AaronLay10/animgraph/internal/events"
)

// Journal forwards instance notifications to the engine event stream.
type Journal struct {
	// Verbose also records the entering and end notifications.
	Verbose bool
	Logger  *slog.Logger
}

var _ animgraph.EventHandler = (*Journal)(nil)

// NewJournal creates a journal that records enter, exit and transition
// notifications.
func NewJournal(logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{Logger: logger}
}

func (j *Journal) emit(name, msg string, fields map[string]interface{}) {
	if _, err := events.Emit("info", name, msg, fields); err != nil {
		j.Logger.Warn("failed to emit event", "event", name, "error", err)
	}
}

func stateFields(inst *animgraph.Instance, state animgraph.Node) map[string]interface{} {
	f := map[string]interface{}{
		"instance": inst.ID(),
		"graph":    inst.Graph().Name(),
		"state":    state.Base().Name(),
	}
	if p := state.Base().Parent(); p != nil {
		f["state_machine"] = p.Base().Name()
	}
	return f
}

func (j *Journal) OnStateEntering(inst *animgraph.Instance, state animgraph.Node) {
	if j.Verbose {
		j.emit("state.entering", "", stateFields(inst, state))
	}
}

func (j *Journal) OnStateEnter(inst *animgraph.Instance, state animgraph.Node) {
	j.emit("state.entered", "", stateFields(inst, state))
}

func (j *Journal) OnStateExit(inst *animgraph.Instance, state animgraph.Node) {
	j.emit("state.exited", "", stateFields(inst, state))
}

func (j *Journal) OnStateEnd(inst *animgraph.Instance, state animgraph.Node) {
	if j.Verbose {
		j.emit("state.ended", "", stateFields(inst, state))
	}
}

func (j *Journal) OnStartTransition(inst *animgraph.Instance, t *animgraph.Transition) {
	j.emit("transition.started", t.Name, transitionFields(inst, t))
}

func (j *Journal) OnEndTransition(inst *animgraph.Instance, t *animgraph.Transition) {
	j.emit("transition.ended", t.Name, transitionFields(inst, t))
}

func transitionFields(inst *animgraph.Instance, t *animgraph.Transition) map[string]interface{} {
	f := map[string]interface{}{
		"instance":   inst.ID(),
		"graph":      inst.Graph().Name(),
		"transition": t.Name,
		"duration":   t.Duration,
		"wildcard":   t.IsWildcard(),
	}
	if src := t.ActualSource(inst); src != nil {
		f["from"] = src.Base().Name()
	}
	if t.Target() != nil {
		f["to"] = t.Target().Base().Name()
	}
	return f
}
