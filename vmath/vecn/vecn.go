// Package vecn implements checked arithmetic on vectors of arbitrary dimension.
//
// It is used while a scene is being assembled, where a dimension mismatch is a
// configuration error that must be reported rather than rendered around.  The
// render loop itself works in package vec3.
package vecn

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

var (
	// ErrDimensionMismatch is returned when an operation receives operands of
	// different (or unsupported) lengths.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrZeroVector is returned when an operation is undefined for a vector of
	// zero magnitude.
	ErrZeroVector = errors.New("zero-length vector")
)

// T is an immutable vector.  No operation in this package modifies its
// arguments.
type T []float64

// Of builds a vector from its components.
func Of(components ...float64) T {
	out := make(T, len(components))
	copy(out, components)
	return out
}

func (v T) Dim() int {
	return len(v)
}

func (v T) Norm() float64 {
	sum := 0.0
	for _, c := range v {
		sum += c * c
	}
	return math.Sqrt(sum)
}

func (v T) String() string {
	return fmt.Sprint([]float64(v))
}

func checkDims(a, b T) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	return nil
}

func Add(a, b T) (T, error) {
	if err := checkDims(a, b); err != nil {
		return nil, err
	}
	out := make(T, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

func Sub(a, b T) (T, error) {
	if err := checkDims(a, b); err != nil {
		return nil, err
	}
	out := make(T, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out, nil
}

func Scale(a T, s float64) T {
	out := make(T, len(a))
	for i := range a {
		out[i] = a[i] * s
	}
	return out
}

func Dot(a, b T) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Cross is only defined for 3-dimensional operands.
func Cross(a, b T) (T, error) {
	if len(a) != 3 || len(b) != 3 {
		return nil, fmt.Errorf("%w: cross product needs 3 dimensions, got %d and %d", ErrDimensionMismatch, len(a), len(b))
	}
	return T{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}, nil
}

func Normalize(a T) (T, error) {
	l := a.Norm()
	if l == 0 {
		return nil, ErrZeroVector
	}
	return Scale(a, 1/l), nil
}

// Reflect mirrors a about the normal n.  n does not need to be unit length.
func Reflect(a, n T) (T, error) {
	unit, err := Normalize(n)
	if err != nil {
		return nil, fmt.Errorf("while normalizing reflection normal: %w", err)
	}
	d, err := Dot(a, unit)
	if err != nil {
		return nil, err
	}
	return Sub(a, Scale(unit, 2*d))
}

// Project returns the component of a that lies along b.
func Project(a, b T) (T, error) {
	d, err := Dot(a, b)
	if err != nil {
		return nil, err
	}
	bb, _ := Dot(b, b)
	if bb == 0 {
		return nil, ErrZeroVector
	}
	return Scale(b, d/bb), nil
}

// Angle returns the angle between a and b in radians.
func Angle(a, b T) (float64, error) {
	d, err := Dot(a, b)
	if err != nil {
		return 0, err
	}
	la, lb := a.Norm(), b.Norm()
	if la == 0 || lb == 0 {
		return 0, ErrZeroVector
	}

	if len(a) == 3 {
		ra := r3.Vector{X: a[0], Y: a[1], Z: a[2]}
		rb := r3.Vector{X: b[0], Y: b[1], Z: b[2]}
		return ra.Angle(rb).Radians(), nil
	}

	// Same atan2 form as r3, with |a x b| from Lagrange's identity.
	cross := la*la*lb*lb - d*d
	if cross < 0 {
		cross = 0
	}
	return math.Atan2(math.Sqrt(cross), d), nil
}
