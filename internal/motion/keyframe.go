package motion

import (
	"sort"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/AaronLay10/animgraph/internal/pose"
)

// Key is one sample on a joint track.
type Key struct {
	Time      float64
	Transform pose.Transform
}

// KeyframeMotion is a motion defined by linearly interpolated joint keys.
type KeyframeMotion struct {
	id        string
	duration  float64
	rootJoint string
	tracks    map[string][]Key
	events    []Event
	syncTrack *SyncTrack
}

// NewKeyframeMotion creates an empty motion of the given length. rootJoint
// names the joint whose translation drives the root trajectory.
func NewKeyframeMotion(id string, duration float64, rootJoint string) *KeyframeMotion {
	return &KeyframeMotion{
		id:        id,
		duration:  duration,
		rootJoint: rootJoint,
		tracks:    make(map[string][]Key),
		syncTrack: NewSyncTrack(duration),
	}
}

// AddKey inserts a key on a joint track, keeping the track sorted.
func (m *KeyframeMotion) AddKey(joint string, k Key) {
	keys := append(m.tracks[joint], k)
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Time < keys[j].Time })
	m.tracks[joint] = keys
}

// AddEvent adds a timeline event. Sync events also become part of the sync
// track.
func (m *KeyframeMotion) AddEvent(e Event, sync bool) {
	m.events = append(m.events, e)
	sort.SliceStable(m.events, func(i, j int) bool { return m.events[i].Start < m.events[j].Start })
	if sync {
		events := append([]Event(nil), m.syncTrack.events...)
		m.syncTrack = NewSyncTrack(m.duration, append(events, e)...)
	}
}

func (m *KeyframeMotion) ID() string            { return m.id }
func (m *KeyframeMotion) Duration() float64     { return m.duration }
func (m *KeyframeMotion) SyncTrack() *SyncTrack { return m.syncTrack }
func (m *KeyframeMotion) Events() []Event       { return m.events }

// SamplePose writes the pose at time t. Joints without a track keep the bind
// pose transform.
func (m *KeyframeMotion) SamplePose(t float64, skel *pose.Skeleton, out *pose.Pose, mirror bool) {
	out.InitFromBindPose(skel)
	if skel == nil {
		return
	}
	for i := 0; i < skel.NumJoints(); i++ {
		keys, ok := m.tracks[skel.Joint(i).Name]
		if !ok || len(keys) == 0 {
			continue
		}
		out.Local[i] = sampleKeys(keys, t)
	}
	if mirror {
		out.Mirror(skel)
	}
}

// RootDelta returns the root joint motion between from and to.
func (m *KeyframeMotion) RootDelta(from, to float64, wrapped bool) pose.Transform {
	keys, ok := m.tracks[m.rootJoint]
	if !ok || len(keys) == 0 {
		return pose.Identity()
	}
	a := sampleKeys(keys, from)
	b := sampleKeys(keys, to)
	if !wrapped {
		return relative(a, b)
	}
	// forward wrap: from -> end, then start -> to
	end := sampleKeys(keys, m.duration)
	start := sampleKeys(keys, 0)
	if to > from {
		// backward playback crossing zero
		first := relative(a, start)
		second := relative(end, b)
		return second.Multiply(first)
	}
	first := relative(a, end)
	second := relative(start, b)
	return second.Multiply(first)
}

// relative returns the transform taking a to b in a's frame.
func relative(a, b pose.Transform) pose.Transform {
	inv := quat.Conj(a.Rotation)
	return pose.Transform{
		Position: pose.Rotate(inv, r3.Sub(b.Position, a.Position)),
		Rotation: pose.Normalize(quat.Mul(inv, b.Rotation)),
		Scale:    r3.Vec{X: 1, Y: 1, Z: 1},
	}
}

func sampleKeys(keys []Key, t float64) pose.Transform {
	if t <= keys[0].Time {
		return keys[0].Transform
	}
	last := keys[len(keys)-1]
	if t >= last.Time {
		return last.Transform
	}
	i := sort.Search(len(keys), func(i int) bool { return keys[i].Time > t })
	a, b := keys[i-1], keys[i]
	span := b.Time - a.Time
	if span <= pose.Epsilon {
		return b.Transform
	}
	return a.Transform.Blend(b.Transform, (t-a.Time)/span)
}
