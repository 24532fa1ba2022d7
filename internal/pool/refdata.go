package pool

import "github.com/AaronLay10/animgraph/internal/pose"

// RefData is the per-frame payload a node produces during PostUpdate: the
// events it fired and its root motion delta.
type RefData struct {
	Events        pose.EventBuffer
	Delta         pose.Transform
	DeltaMirrored pose.Transform
}

// Reset clears the events and zeroes both deltas.
func (d *RefData) Reset() {
	d.Events.Clear()
	d.Delta = pose.Identity()
	d.DeltaMirrored = pose.Identity()
}

// CopyFrom replaces the payload with a copy of other.
func (d *RefData) CopyFrom(other *RefData) {
	d.Events.CopyFrom(&other.Events)
	d.Delta = other.Delta
	d.DeltaMirrored = other.DeltaMirrored
}

// BlendDeltas interpolates both deltas from a towards b.
func (d *RefData) BlendDeltas(a, b *RefData, w float64) {
	d.Delta = a.Delta.Blend(b.Delta, w)
	d.DeltaMirrored = a.DeltaMirrored.Blend(b.DeltaMirrored, w)
}
