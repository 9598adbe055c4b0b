package vec3

import (
	"fmt"
	"math"

	"pinhole/vmath/vecn"

	"github.com/golang/geo/r3"
)

type T [3]float64

// FromN converts a checked vector into a T.  It fails if v does not have
// exactly three components.
func FromN(v vecn.T) (T, error) {
	if len(v) != 3 {
		return T{}, fmt.Errorf("%w: want 3 components, got %d", vecn.ErrDimensionMismatch, len(v))
	}
	return T{v[0], v[1], v[2]}, nil
}

func (v T) N() vecn.T {
	return vecn.Of(v[0], v[1], v[2])
}

func (v T) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func (v T) IsZero() bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

func Normalize(v T) T {
	l := v.Norm()
	return T{
		v[0] / l,
		v[1] / l,
		v[2] / l,
	}
}

func AddVV(a, b T) T {
	return T{
		a[0] + b[0],
		a[1] + b[1],
		a[2] + b[2],
	}
}

func SubVV(a, b T) T {
	return T{
		a[0] - b[0],
		a[1] - b[1],
		a[2] - b[2],
	}
}

func MulVS(a T, b float64) T {
	return T{
		a[0] * b,
		a[1] * b,
		a[2] * b,
	}
}

func DivVS(a T, b float64) T {
	return T{
		a[0] / b,
		a[1] / b,
		a[2] / b,
	}
}

// AddScaledVV returns a + s*b.
func AddScaledVV(a T, s float64, b T) T {
	return T{
		a[0] + s*b[0],
		a[1] + s*b[1],
		a[2] + s*b[2],
	}
}

func Neg(a T) T {
	return T{-a[0], -a[1], -a[2]}
}

func IProd(a, b T) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func CProd(a, b T) T {
	return T{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Reflect mirrors a about the unit normal n.
func Reflect(a, n T) T {
	return SubVV(a, MulVS(n, 2*IProd(a, n)))
}

// Refract bends the unit direction a through a surface with unit normal n
// facing against a, where eta is the ratio of the incident to the transmitted
// index of refraction.  ok is false on total internal reflection.
func Refract(a, n T, eta float64) (out T, ok bool) {
	cosI := -IProd(a, n)
	k := 1 - eta*eta*(1-cosI*cosI)
	if k < 0 {
		return T{}, false
	}
	return AddVV(MulVS(a, eta), MulVS(n, eta*cosI-math.Sqrt(k))), true
}

// Angle returns the angle between a and b in radians.  It is zero if either
// vector is zero.
func Angle(a, b T) float64 {
	return r3.Vector{X: a[0], Y: a[1], Z: a[2]}.Angle(r3.Vector{X: b[0], Y: b[1], Z: b[2]}).Radians()
}
