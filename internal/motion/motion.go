// Package motion provides the motion clips sampled by motion nodes: their
// poses, root trajectories, timeline events and sync tracks.
package motion

import (
	"github.com/AaronLay10/animgraph/internal/pose"
)

// Motion is a sampled animation clip.
type Motion interface {
	// ID returns the identifier the motion is registered under.
	ID() string
	// Duration returns the clip length in seconds.
	Duration() float64
	// SyncTrack returns the clip's sync events. It may be empty.
	SyncTrack() *SyncTrack
	// Events returns every timeline event, sync events included.
	Events() []Event
	// SamplePose writes the local pose at time t into out.
	SamplePose(t float64, skel *pose.Skeleton, out *pose.Pose, mirror bool)
	// RootDelta returns the root trajectory motion between from and to.
	// wrapped is set when playback looped between the two times.
	RootDelta(from, to float64, wrapped bool) pose.Transform
}

// ExtractEvents appends the events of m whose start time was passed while
// moving from one play time to another. Backward playback walks the range in
// reverse. When wrapped is set the range crosses the end (or the start, when
// playing backward) of the clip.
func ExtractEvents(m Motion, from, to float64, wrapped, forward, mirror bool, source string, globalWeight float64, out *pose.EventBuffer) {
	if m == nil {
		return
	}
	duration := m.Duration()
	emit := func(e Event) {
		name := e.Name
		hash := e.hash
		if mirror {
			name = e.MirrorName
			hash = e.mirrorHash
		}
		out.Add(pose.FiredEvent{
			Name:         name,
			Hash:         hash,
			StartTime:    e.Start,
			EndTime:      e.End,
			Mirrored:     mirror,
			GlobalWeight: globalWeight,
			LocalWeight:  1,
			Source:       source,
		})
	}

	events := m.Events()
	if forward {
		if !wrapped {
			for _, e := range events {
				if e.Start > from && e.Start <= to {
					emit(e)
				}
			}
			return
		}
		for _, e := range events {
			if e.Start > from && e.Start <= duration {
				emit(e)
			}
		}
		for _, e := range events {
			if e.Start >= 0 && e.Start <= to {
				emit(e)
			}
		}
		return
	}

	if !wrapped {
		for i := len(events) - 1; i >= 0; i-- {
			if e := events[i]; e.Start < from && e.Start >= to {
				emit(e)
			}
		}
		return
	}
	for i := len(events) - 1; i >= 0; i-- {
		if e := events[i]; e.Start < from && e.Start >= 0 {
			emit(e)
		}
	}
	for i := len(events) - 1; i >= 0; i-- {
		if e := events[i]; e.Start <= duration && e.Start >= to {
			emit(e)
		}
	}
}
