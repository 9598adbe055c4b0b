package contact

import (
	"math"

	"pinhole/ray"
	"pinhole/vmath/vec3"
)

// Contact is the nearest surface hit along a ray.
type Contact struct {
	T float64
	R ray.Ray
	P vec3.T

	// N is the surface's geometric normal at P.  Facing is N flipped, if
	// needed, to point against the incoming ray.
	N      vec3.T
	Facing vec3.T

	// Shape is the index of the hit shape among the scene's intersection
	// candidates.
	Shape int
}

func ContactNaN() Contact {
	return Contact{
		T:     math.NaN(),
		Shape: -1,
	}
}

func (c Contact) IsNaN() bool {
	return math.IsNaN(c.T)
}

// Entering reports whether the ray arrives on the side the geometric normal
// points to.
func (c Contact) Entering() bool {
	return vec3.IProd(c.R.Direction, c.N) < 0
}
