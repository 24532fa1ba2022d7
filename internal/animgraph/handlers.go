package animgraph

// EventHandler receives state machine notifications from an instance. The
// callbacks run on the evaluating goroutine in the middle of a frame and must
// not call back into the instance.
type EventHandler interface {
	OnStateEntering(inst *Instance, state Node)
	OnStateEnter(inst *Instance, state Node)
	OnStateExit(inst *Instance, state Node)
	OnStateEnd(inst *Instance, state Node)
	OnStartTransition(inst *Instance, t *Transition)
	OnEndTransition(inst *Instance, t *Transition)
}

// NopEventHandler implements EventHandler with no-ops. Embed it to handle a
// subset of the notifications.
type NopEventHandler struct{}

func (NopEventHandler) OnStateEntering(*Instance, Node)          {}
func (NopEventHandler) OnStateEnter(*Instance, Node)             {}
func (NopEventHandler) OnStateExit(*Instance, Node)              {}
func (NopEventHandler) OnStateEnd(*Instance, Node)               {}
func (NopEventHandler) OnStartTransition(*Instance, *Transition) {}
func (NopEventHandler) OnEndTransition(*Instance, *Transition)   {}

func (inst *Instance) notifyStateEntering(state Node) {
	if state == nil {
		return
	}
	for _, h := range inst.handlers {
		h.OnStateEntering(inst, state)
	}
}

func (inst *Instance) notifyStateEnter(state Node) {
	if state == nil {
		return
	}
	for _, h := range inst.handlers {
		h.OnStateEnter(inst, state)
	}
}

func (inst *Instance) notifyStateExit(state Node) {
	if state == nil {
		return
	}
	for _, h := range inst.handlers {
		h.OnStateExit(inst, state)
	}
}

func (inst *Instance) notifyStateEnd(state Node) {
	if state == nil {
		return
	}
	for _, h := range inst.handlers {
		h.OnStateEnd(inst, state)
	}
}

func (inst *Instance) notifyStartTransition(t *Transition) {
	for _, h := range inst.handlers {
		h.OnStartTransition(inst, t)
	}
}

func (inst *Instance) notifyEndTransition(t *Transition) {
	for _, h := range inst.handlers {
		h.OnEndTransition(inst, t)
	}
}
