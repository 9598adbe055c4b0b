package ray

import (
	"pinhole/vmath/vec3"
)

type Span struct {
	Lo, Hi float64
}

// Contains reports whether lo < t < hi.
func (s Span) Contains(t float64) bool {
	return s.Lo < t && t < s.Hi
}

// Ray is a half-line.  Direction is not required to be unit length; t values
// along a ray are in units of |Direction|.
type Ray struct {
	Origin    vec3.T
	Direction vec3.T
}

func (r Ray) At(t float64) vec3.T {
	return vec3.T{
		r.Origin[0] + t*r.Direction[0],
		r.Origin[1] + t*r.Direction[1],
		r.Origin[2] + t*r.Direction[2],
	}
}

// Segment is a ray restricted to a span of t values.
type Segment struct {
	TheRay     Ray
	TheSegment Span
}

// Toward builds the segment that leaves from and stops at to, with a unit
// direction so that t measures distance.  from is pushed forward by offset to
// keep the segment clear of the surface it starts on.
func Toward(from, to vec3.T, offset float64) Segment {
	delta := vec3.SubVV(to, from)
	dist := delta.Norm()
	dir := vec3.DivVS(delta, dist)
	return Segment{
		TheRay: Ray{
			Origin:    vec3.AddScaledVV(from, offset, dir),
			Direction: dir,
		},
		TheSegment: Span{0, dist - offset},
	}
}
