package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// graph
	"graph.loaded":    {},
	"graph.removed":   {},
	"graph.problem":   {},
	"graph.validated": {},
	// instance
	"instance.created":    {},
	"instance.removed":    {},
	"instance.rewound":    {},
	"instance.followed":   {},
	"instance.unfollowed": {},
	// state
	"state.entering": {},
	"state.entered":  {},
	"state.exited":   {},
	"state.ended":    {},
	// transition
	"transition.started": {},
	"transition.ended":   {},
	// parameter
	"param.set":      {},
	"param.queued":   {},
	"param.rejected": {},
	// loop
	"loop.started": {},
	"loop.overrun": {},
	"loop.stopped": {},
	// operator
	"operator.switch":     {},
	"operator.transition": {},
	"operator.param":      {},
	"operator.rewind":     {},
	// mqtt
	"mqtt.connected":    {},
	"mqtt.disconnected": {},
	"mqtt.message":      {},
	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
