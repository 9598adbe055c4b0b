package light

import (
	"errors"
	"fmt"
	"math"

	"pinhole/vmath/vec3"
)

// ErrNegativeLuminance is returned for lights with luminance below zero.
var ErrNegativeLuminance = errors.New("negative luminance")

// Point is an isotropic point light.
type Point struct {
	Position  vec3.T
	Luminance float64
}

func (p *Point) Validate() error {
	if p.Luminance < 0 || math.IsNaN(p.Luminance) {
		return fmt.Errorf("%w: %v", ErrNegativeLuminance, p.Luminance)
	}
	return nil
}

// Falloff returns the inverse-square attenuation of the light at distance
// dist, multiplied by gain and clamped to [0, 1].
func (p *Point) Falloff(dist, gain float64) float64 {
	if dist <= 0 {
		return 1
	}
	l := p.Luminance / (dist * dist) * gain
	if l > 1 {
		return 1
	}
	if l < 0 {
		return 0
	}
	return l
}
