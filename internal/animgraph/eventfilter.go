package animgraph

import (
	"fmt"

	"github.com/AaronLay10/animgraph/internal/pool"
	"github.com/AaronLay10/animgraph/internal/pose"
)

// EventMode selects which side of a blend contributes fired events.
type EventMode int

const (
	EventsBoth EventMode = iota
	EventsNone
	EventsLeaderOnly
	EventsFollowerOnly
	EventsMostActive
)

func (m EventMode) String() string {
	switch m {
	case EventsNone:
		return "none"
	case EventsLeaderOnly:
		return "leader"
	case EventsFollowerOnly:
		return "follower"
	case EventsMostActive:
		return "most_active"
	default:
		return "both"
	}
}

// ParseEventMode parses an event filter mode name. Empty means both.
func ParseEventMode(s string) (EventMode, error) {
	switch s {
	case "", "both":
		return EventsBoth, nil
	case "none":
		return EventsNone, nil
	case "leader", "leader_only":
		return EventsLeaderOnly, nil
	case "follower", "follower_only":
		return EventsFollowerOnly, nil
	case "most_active":
		return EventsMostActive, nil
	}
	return EventsBoth, fmt.Errorf("unknown event mode %q", s)
}

// FilterEvents fills out's event buffer from a leader payload a and a
// follower payload b blended with weight w. Either payload may be nil. Local
// weights of the copied events are set to the side's share of the blend.
func FilterEvents(mode EventMode, a, b *pool.RefData, w float64, out *pool.RefData) {
	var ea, eb pose.EventBuffer
	if a != nil {
		ea.CopyFrom(&a.Events)
	}
	if b != nil {
		eb.CopyFrom(&b.Events)
	}
	ea.SetLocalWeight(1 - w)
	eb.SetLocalWeight(w)

	out.Events.Clear()
	switch mode {
	case EventsNone:
	case EventsLeaderOnly:
		out.Events.Append(&ea)
	case EventsFollowerOnly:
		if b == nil {
			out.Events.Append(&ea)
			return
		}
		out.Events.Append(&eb)
	case EventsMostActive:
		if w <= 0.5 || b == nil {
			out.Events.Append(&ea)
			return
		}
		out.Events.Append(&eb)
	default:
		out.Events.Append(&ea)
		out.Events.Append(&eb)
	}
}
