package motion

import "sort"

// InvalidIndex marks an unset sync-track cursor.
const InvalidIndex = -1

// SyncTrack is the ordered list of sync events of a motion.
type SyncTrack struct {
	duration float64
	events   []Event
}

// NewSyncTrack creates a sync track sorted by event start time.
func NewSyncTrack(duration float64, events ...Event) *SyncTrack {
	t := &SyncTrack{
		duration: duration,
		events:   append([]Event(nil), events...),
	}
	sort.SliceStable(t.events, func(i, j int) bool {
		return t.events[i].Start < t.events[j].Start
	})
	return t
}

// Duration returns the duration of the motion owning the track.
func (t *SyncTrack) Duration() float64 {
	if t == nil {
		return 0
	}
	return t.duration
}

// NumEvents returns the number of sync events.
func (t *SyncTrack) NumEvents() int {
	if t == nil {
		return 0
	}
	return len(t.events)
}

// Event returns the event at index i.
func (t *SyncTrack) Event(i int) Event {
	return t.events[i]
}

// FindEventIndices locates the pair of consecutive events bracketing
// timeValue. When timeValue lies before the first or at/after the last event,
// the returned pair wraps from the last event to the first.
func (t *SyncTrack) FindEventIndices(timeValue float64) (first, second int, ok bool) {
	n := t.NumEvents()
	if n == 0 {
		return InvalidIndex, InvalidIndex, false
	}
	if n == 1 {
		return 0, 0, true
	}
	if timeValue < t.events[0].Start || timeValue >= t.events[n-1].Start {
		return n - 1, 0, true
	}
	for i := 0; i < n-1; i++ {
		if timeValue >= t.events[i].Start && timeValue < t.events[i+1].Start {
			return i, i + 1, true
		}
	}
	return InvalidIndex, InvalidIndex, false
}

// FindMatchingEvents searches for a consecutive pair whose hashes equal
// hashA and hashB, starting at startIndex and walking forward or backward
// with wrap-around.
func (t *SyncTrack) FindMatchingEvents(startIndex int, hashA, hashB uint64, forward, mirror bool) (first, second int, ok bool) {
	n := t.NumEvents()
	if n == 0 {
		return InvalidIndex, InvalidIndex, false
	}
	if startIndex < 0 || startIndex >= n {
		startIndex = 0
	}
	idx := startIndex
	for i := 0; i < n; i++ {
		next := (idx + 1) % n
		if t.events[idx].HashForSyncing(mirror) == hashA && t.events[next].HashForSyncing(mirror) == hashB {
			return idx, next, true
		}
		if forward {
			idx = (idx + 1) % n
		} else {
			idx = (idx - 1 + n) % n
		}
	}
	return InvalidIndex, InvalidIndex, false
}

// CalcOccurrence returns how many earlier pairs in the track share the hashes
// of the pair (indexA, indexB).
func (t *SyncTrack) CalcOccurrence(indexA, indexB int, mirror bool) int {
	n := t.NumEvents()
	if n == 0 || indexA < 0 || indexB < 0 || indexA >= n || indexB >= n {
		return 0
	}
	hashA := t.events[indexA].HashForSyncing(mirror)
	hashB := t.events[indexB].HashForSyncing(mirror)
	occurrence := 0
	for i := 0; i < indexA; i++ {
		next := (i + 1) % n
		if t.events[i].HashForSyncing(mirror) == hashA && t.events[next].HashForSyncing(mirror) == hashB {
			occurrence++
		}
	}
	return occurrence
}

// ExtractOccurrence finds the occurrence-th pair matching hashA and hashB.
// When the track holds fewer matches than requested, the occurrence wraps
// around the number of matches.
func (t *SyncTrack) ExtractOccurrence(occurrence int, hashA, hashB uint64, mirror bool) (first, second int, ok bool) {
	n := t.NumEvents()
	if n == 0 {
		return InvalidIndex, InvalidIndex, false
	}
	var matches []int
	for i := 0; i < n; i++ {
		next := (i + 1) % n
		if t.events[i].HashForSyncing(mirror) == hashA && t.events[next].HashForSyncing(mirror) == hashB {
			matches = append(matches, i)
		}
	}
	if len(matches) == 0 {
		return InvalidIndex, InvalidIndex, false
	}
	if occurrence < 0 {
		occurrence = 0
	}
	idx := matches[occurrence%len(matches)]
	return idx, (idx + 1) % n, true
}

// CalcSegmentLength returns the time from event first to event second,
// wrapping over the end of the motion when second does not follow first.
func (t *SyncTrack) CalcSegmentLength(first, second int) float64 {
	n := t.NumEvents()
	if n == 0 || first < 0 || second < 0 || first >= n || second >= n {
		return 0
	}
	if first < second {
		return t.events[second].Start - t.events[first].Start
	}
	return t.duration - t.events[first].Start + t.events[second].Start
}
