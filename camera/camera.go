package camera

import (
	"errors"
	"fmt"
	"math"

	"pinhole/ray"
	"pinhole/vmath/vec3"
)

// ErrDegenerateFrame is returned when a camera's viewing frame cannot be
// constructed.
var ErrDegenerateFrame = errors.New("degenerate camera frame")

type Camera interface {
	// GetRay maps normalized viewport coordinates (u, v) in [0, 1]x[0, 1] to a
	// world-space ray.  u grows to the right and v grows upward.
	GetRay(u, v float64) ray.Ray
}

// PinholeCamera casts every ray from Origin through a rectangular viewport
// spanned by Horizontal and Vertical from LowerLeftCorner.
type PinholeCamera struct {
	Origin          vec3.T
	LowerLeftCorner vec3.T
	Horizontal      vec3.T
	Vertical        vec3.T
}

func (c *PinholeCamera) GetRay(u, v float64) ray.Ray {
	p := vec3.AddScaledVV(c.LowerLeftCorner, u, c.Horizontal)
	p = vec3.AddScaledVV(p, v, c.Vertical)
	return ray.Ray{
		Origin:    c.Origin,
		Direction: vec3.SubVV(p, c.Origin),
	}
}

// Validate checks that the viewport spans a real rectangle.
func (c *PinholeCamera) Validate() error {
	if vec3.CProd(c.Horizontal, c.Vertical).IsZero() {
		return fmt.Errorf("%w: viewport spans no area", ErrDegenerateFrame)
	}
	return nil
}

// NewLookAt builds a camera at from that looks toward at, with the viewport
// one unit in front of the eye.  vfov is the vertical field of view in degrees
// and aspect is width/height.
func NewLookAt(from, at, up vec3.T, vfov, aspect float64) (*PinholeCamera, error) {
	if vfov <= 0 || vfov >= 180 {
		return nil, fmt.Errorf("%w: vertical field of view %v out of (0, 180)", ErrDegenerateFrame, vfov)
	}
	if aspect <= 0 {
		return nil, fmt.Errorf("%w: aspect ratio %v must be positive", ErrDegenerateFrame, aspect)
	}

	back := vec3.SubVV(from, at)
	if back.IsZero() {
		return nil, fmt.Errorf("%w: eye and target coincide", ErrDegenerateFrame)
	}
	w := vec3.Normalize(back)

	if a := vec3.Angle(up, w); a < 1e-9 || math.Pi-a < 1e-9 {
		return nil, fmt.Errorf("%w: up vector is zero or parallel to the view direction", ErrDegenerateFrame)
	}
	u := vec3.Normalize(vec3.CProd(up, w))
	v := vec3.CProd(w, u)

	halfHeight := math.Tan(vfov * math.Pi / 360)
	halfWidth := aspect * halfHeight

	lowerLeft := vec3.SubVV(from, vec3.MulVS(u, halfWidth))
	lowerLeft = vec3.SubVV(lowerLeft, vec3.MulVS(v, halfHeight))
	lowerLeft = vec3.SubVV(lowerLeft, w)

	return &PinholeCamera{
		Origin:          from,
		LowerLeftCorner: lowerLeft,
		Horizontal:      vec3.MulVS(u, 2*halfWidth),
		Vertical:        vec3.MulVS(v, 2*halfHeight),
	}, nil
}
