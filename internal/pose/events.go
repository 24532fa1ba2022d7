package pose

// FiredEvent is a timeline event that triggered during a frame.
type FiredEvent struct {
	Name         string
	Hash         uint64
	StartTime    float64
	EndTime      float64
	Mirrored     bool
	GlobalWeight float64
	LocalWeight  float64
	Source       string
}

// EventBuffer is an ordered list of fired events.
type EventBuffer struct {
	events []FiredEvent
}

// Add appends an event.
func (b *EventBuffer) Add(e FiredEvent) {
	b.events = append(b.events, e)
}

// Len returns the number of events in the buffer.
func (b *EventBuffer) Len() int {
	return len(b.events)
}

// At returns the event at index i.
func (b *EventBuffer) At(i int) FiredEvent {
	return b.events[i]
}

// Events returns the buffered events. The slice is only valid until the next
// mutation of the buffer.
func (b *EventBuffer) Events() []FiredEvent {
	return b.events
}

// Clear empties the buffer while keeping its capacity.
func (b *EventBuffer) Clear() {
	b.events = b.events[:0]
}

// CopyFrom replaces the contents with those of other.
func (b *EventBuffer) CopyFrom(other *EventBuffer) {
	b.events = append(b.events[:0], other.events...)
}

// Append adds all events from other.
func (b *EventBuffer) Append(other *EventBuffer) {
	b.events = append(b.events, other.events...)
}

// SetLocalWeight overwrites the local weight of every buffered event.
func (b *EventBuffer) SetLocalWeight(w float64) {
	for i := range b.events {
		b.events[i].LocalWeight = w
	}
}

// Contains reports whether an event with the given name is buffered.
func (b *EventBuffer) Contains(name string) bool {
	for i := range b.events {
		if b.events[i].Name == name {
			return true
		}
	}
	return false
}
