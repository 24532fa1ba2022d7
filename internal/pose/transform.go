package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the tolerance used when comparing transforms and weights.
const Epsilon = 1e-6

// Transform is a local-space joint transform.
type Transform struct {
	Position r3.Vec
	Rotation quat.Number
	Scale    r3.Vec
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		Rotation: quat.Number{Real: 1},
		Scale:    r3.Vec{X: 1, Y: 1, Z: 1},
	}
}

// Blend interpolates from t towards other by weight w.
func (t Transform) Blend(other Transform, w float64) Transform {
	return Transform{
		Position: lerpVec(t.Position, other.Position, w),
		Rotation: Nlerp(t.Rotation, other.Rotation, w),
		Scale:    lerpVec(t.Scale, other.Scale, w),
	}
}

// ApplyAdditive adds the difference between additive and base to t, scaled by w.
func (t Transform) ApplyAdditive(additive, base Transform, w float64) Transform {
	delta := quat.Mul(quat.Conj(base.Rotation), additive.Rotation)
	return Transform{
		Position: r3.Add(t.Position, r3.Scale(w, r3.Sub(additive.Position, base.Position))),
		Rotation: Normalize(quat.Mul(t.Rotation, Nlerp(quat.Number{Real: 1}, delta, w))),
		Scale:    r3.Add(t.Scale, r3.Scale(w, r3.Sub(additive.Scale, base.Scale))),
	}
}

// Multiply returns t applied on top of parent.
func (t Transform) Multiply(parent Transform) Transform {
	scaled := r3.Vec{X: t.Position.X * parent.Scale.X, Y: t.Position.Y * parent.Scale.Y, Z: t.Position.Z * parent.Scale.Z}
	return Transform{
		Position: r3.Add(parent.Position, Rotate(parent.Rotation, scaled)),
		Rotation: Normalize(quat.Mul(parent.Rotation, t.Rotation)),
		Scale:    r3.Vec{X: t.Scale.X * parent.Scale.X, Y: t.Scale.Y * parent.Scale.Y, Z: t.Scale.Z * parent.Scale.Z},
	}
}

// Mirror reflects the transform over the YZ plane.
func (t Transform) Mirror() Transform {
	return Transform{
		Position: r3.Vec{X: -t.Position.X, Y: t.Position.Y, Z: t.Position.Z},
		Rotation: quat.Number{Real: t.Rotation.Real, Imag: t.Rotation.Imag, Jmag: -t.Rotation.Jmag, Kmag: -t.Rotation.Kmag},
		Scale:    t.Scale,
	}
}

// Equal reports whether both transforms match within eps.
func (t Transform) Equal(other Transform, eps float64) bool {
	if r3.Norm(r3.Sub(t.Position, other.Position)) > eps {
		return false
	}
	if r3.Norm(r3.Sub(t.Scale, other.Scale)) > eps {
		return false
	}
	// q and -q encode the same rotation
	d := math.Abs(dot(t.Rotation, other.Rotation))
	return math.Abs(1-d) <= eps
}

// Rotate rotates v by the unit quaternion q.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Normalize returns q scaled to unit length. A zero quaternion becomes identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < Epsilon {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Nlerp interpolates two rotations along the shortest arc and renormalizes.
func Nlerp(a, b quat.Number, w float64) quat.Number {
	if dot(a, b) < 0 {
		b = quat.Scale(-1, b)
	}
	return Normalize(quat.Add(quat.Scale(1-w, a), quat.Scale(w, b)))
}

// FromAxisAngle builds a rotation of angle radians around axis.
func FromAxisAngle(axis r3.Vec, angle float64) quat.Number {
	axis = r3.Unit(axis)
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

func lerpVec(a, b r3.Vec, w float64) r3.Vec {
	return r3.Add(a, r3.Scale(w, r3.Sub(b, a)))
}
