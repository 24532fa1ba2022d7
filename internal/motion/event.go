package motion

import "github.com/cespare/xxhash/v2"

// Event is a named marker on a motion timeline.
type Event struct {
	Name       string
	MirrorName string
	Start      float64
	End        float64

	hash       uint64
	mirrorHash uint64
}

// NewEvent creates a timeline event. mirrorName is the event that replaces
// this one when the motion plays mirrored; empty means the event mirrors to
// itself.
func NewEvent(name, mirrorName string, start, end float64) Event {
	if mirrorName == "" {
		mirrorName = name
	}
	if end < start {
		end = start
	}
	return Event{
		Name:       name,
		MirrorName: mirrorName,
		Start:      start,
		End:        end,
		hash:       HashName(name),
		mirrorHash: HashName(mirrorName),
	}
}

// HashName returns the hash used to match sync events by name.
func HashName(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Hash returns the hash of the event name.
func (e Event) Hash() uint64 {
	return e.hash
}

// HashForSyncing returns the hash to compare against the other side of a
// sync pair, taking mirroring into account.
func (e Event) HashForSyncing(mirror bool) uint64 {
	if mirror {
		return e.mirrorHash
	}
	return e.hash
}

// IsRanged reports whether the event spans a duration.
func (e Event) IsRanged() bool {
	return e.End > e.Start
}
