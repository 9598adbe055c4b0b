package geometry

import (
	"errors"
	"fmt"
	"math"

	"pinhole/material"
	"pinhole/ray"
	"pinhole/vmath/vec3"
)

// ErrDegenerate is returned when a shape's parameters describe no surface.
var ErrDegenerate = errors.New("degenerate geometry")

// NoHit is the distance reported by Intersect when a ray misses.
var NoHit = math.Inf(1)

// parallelEpsilon is the smallest |n·d| a plane accepts before treating a ray
// as parallel to it.
const parallelEpsilon = 1e-6

type Shape interface {
	// Intersect returns the parametric distance along r to the shape, or
	// NoHit.  Callers must still reject t <= 0.
	Intersect(r ray.Ray) float64
	// Material is shared with the shape and must not be modified.
	Material() *material.Material
	NormalAt(p vec3.T) vec3.T
}

type Sphere struct {
	center vec3.T
	radius float64
	mtl    *material.Material
}

func NewSphere(center vec3.T, radius float64, m *material.Material) (*Sphere, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: sphere radius %v must be positive and finite", ErrDegenerate, radius)
	}
	if m == nil {
		return nil, fmt.Errorf("sphere at %v has no material", center)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("while validating sphere material: %w", err)
	}
	mc := *m
	return &Sphere{
		center: center,
		radius: radius,
		mtl:    &mc,
	}, nil
}

func (s *Sphere) Center() vec3.T {
	return s.center
}

func (s *Sphere) Radius() float64 {
	return s.radius
}

func (s *Sphere) Material() *material.Material {
	return s.mtl
}

// Intersect returns the smaller root of the ray/sphere quadratic, even when
// that root is negative.  A ray starting inside the sphere therefore reports a
// negative distance and is treated as a miss by callers.
func (s *Sphere) Intersect(r ray.Ray) float64 {
	oc := vec3.SubVV(r.Origin, s.center)
	a := vec3.IProd(r.Direction, r.Direction)
	b := 2 * vec3.IProd(oc, r.Direction)
	c := vec3.IProd(oc, oc) - s.radius*s.radius

	disc := b*b - 4*a*c
	if disc <= 0 {
		return NoHit
	}

	sq := math.Sqrt(disc)
	t1 := (-b - sq) / (2 * a)
	t2 := (-b + sq) / (2 * a)
	return math.Min(t1, t2)
}

func (s *Sphere) NormalAt(p vec3.T) vec3.T {
	return vec3.Normalize(vec3.SubVV(p, s.center))
}

// Plane is an infinite plane through point with a unit normal.
type Plane struct {
	normal vec3.T
	point  vec3.T
	mtl    *material.Material
}

// NewPlane normalizes normal, which must be non-zero.
func NewPlane(normal, point vec3.T, m *material.Material) (*Plane, error) {
	if normal.IsZero() || math.IsNaN(normal.Norm()) {
		return nil, fmt.Errorf("%w: plane normal %v has no direction", ErrDegenerate, normal)
	}
	if m == nil {
		return nil, fmt.Errorf("plane through %v has no material", point)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("while validating plane material: %w", err)
	}
	mc := *m
	return &Plane{
		normal: vec3.Normalize(normal),
		point:  point,
		mtl:    &mc,
	}, nil
}

func (p *Plane) Normal() vec3.T {
	return p.normal
}

func (p *Plane) Point() vec3.T {
	return p.point
}

func (p *Plane) Material() *material.Material {
	return p.mtl
}

func (p *Plane) Intersect(r ray.Ray) float64 {
	denom := vec3.IProd(p.normal, r.Direction)
	if math.Abs(denom) <= parallelEpsilon {
		return NoHit
	}

	t := vec3.IProd(vec3.SubVV(p.point, r.Origin), p.normal) / denom
	if t < 0 {
		return NoHit
	}
	return t
}

func (p *Plane) NormalAt(vec3.T) vec3.T {
	return p.normal
}
