// Package rgb holds 8-bit colors.  Every combinator clamps its result to the
// representable range instead of wrapping.
package rgb

import (
	"fmt"
	"image/color"
	"math"
)

type Color struct {
	R, G, B uint8
}

var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// Clamp rounds v to the nearest channel value in [0, 255].  NaN maps to 0.
func Clamp(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// FromFloats builds a color from unclamped channel values.
func FromFloats(r, g, b float64) Color {
	return Color{Clamp(r), Clamp(g), Clamp(b)}
}

// FromSlice builds a color from a 3-element slice of unclamped channel values.
func FromSlice(c []float64) (Color, error) {
	if len(c) != 3 {
		return Color{}, fmt.Errorf("color needs 3 channels, got %d", len(c))
	}
	return FromFloats(c[0], c[1], c[2]), nil
}

func (c Color) Floats() [3]float64 {
	return [3]float64{float64(c.R), float64(c.G), float64(c.B)}
}

func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{c.R, c.G, c.B, 255}
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func Add(a, b Color) Color {
	return FromFloats(
		float64(a.R)+float64(b.R),
		float64(a.G)+float64(b.G),
		float64(a.B)+float64(b.B),
	)
}

// Scale multiplies every channel by s.
func Scale(c Color, s float64) Color {
	return FromFloats(float64(c.R)*s, float64(c.G)*s, float64(c.B)*s)
}

// Blend returns a*(1-k) + b*k.
func Blend(a, b Color, k float64) Color {
	return FromFloats(
		float64(a.R)*(1-k)+float64(b.R)*k,
		float64(a.G)*(1-k)+float64(b.G)*k,
		float64(a.B)*(1-k)+float64(b.B)*k,
	)
}
