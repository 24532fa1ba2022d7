// Package pose holds skeletal transform buffers and the blend primitives used
// by the graph evaluator.
package pose

// Pose is a full-skeleton buffer of local-space joint transforms.
type Pose struct {
	Local []Transform
}

// New creates a pose with n identity transforms.
func New(n int) *Pose {
	p := &Pose{}
	p.Resize(n)
	return p
}

// Resize changes the joint count, reusing the backing array where possible.
func (p *Pose) Resize(n int) {
	if cap(p.Local) >= n {
		p.Local = p.Local[:n]
	} else {
		p.Local = make([]Transform, n)
	}
	for i := range p.Local {
		p.Local[i] = Identity()
	}
}

// NumJoints returns the number of joints in the pose.
func (p *Pose) NumJoints() int {
	return len(p.Local)
}

// InitFromBindPose overwrites the pose with the skeleton's bind pose.
func (p *Pose) InitFromBindPose(s *Skeleton) {
	if s == nil {
		p.Resize(0)
		return
	}
	p.CopyFrom(s.BindPose())
}

// CopyFrom makes p an exact copy of other.
func (p *Pose) CopyFrom(other *Pose) {
	if other == nil {
		return
	}
	if cap(p.Local) >= len(other.Local) {
		p.Local = p.Local[:len(other.Local)]
	} else {
		p.Local = make([]Transform, len(other.Local))
	}
	copy(p.Local, other.Local)
}

// Blend interpolates every joint towards dest by weight w.
func (p *Pose) Blend(dest *Pose, w float64) {
	if dest == nil {
		return
	}
	if w <= 0 {
		return
	}
	if w >= 1 {
		p.CopyFrom(dest)
		return
	}
	n := min(len(p.Local), len(dest.Local))
	for i := 0; i < n; i++ {
		p.Local[i] = p.Local[i].Blend(dest.Local[i], w)
	}
}

// ApplyAdditive adds additive relative to base on top of p, scaled by w.
func (p *Pose) ApplyAdditive(additive, base *Pose, w float64) {
	if additive == nil || base == nil || w <= 0 {
		return
	}
	n := min(len(p.Local), len(additive.Local), len(base.Local))
	for i := 0; i < n; i++ {
		p.Local[i] = p.Local[i].ApplyAdditive(additive.Local[i], base.Local[i], w)
	}
}

// Mirror reflects every joint and swaps left/right pairs of the skeleton.
func (p *Pose) Mirror(s *Skeleton) {
	src := make([]Transform, len(p.Local))
	copy(src, p.Local)
	for i := range p.Local {
		j := i
		if s != nil {
			j = s.MirrorIndex(i)
		}
		if j >= len(src) {
			j = i
		}
		p.Local[i] = src[j].Mirror()
	}
}

// Equal reports whether both poses match joint for joint within eps.
func (p *Pose) Equal(other *Pose, eps float64) bool {
	if other == nil || len(p.Local) != len(other.Local) {
		return false
	}
	for i := range p.Local {
		if !p.Local[i].Equal(other.Local[i], eps) {
			return false
		}
	}
	return true
}
