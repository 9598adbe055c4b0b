package material

import (
	"errors"
	"fmt"

	"pinhole/rgb"
)

// ErrOutOfRange is returned when a material coefficient lies outside its
// allowed interval.
var ErrOutOfRange = errors.New("material coefficient out of range")

// Material describes how a surface responds to the scene's light.  Materials
// are built once while the scene is assembled and are read-only afterwards.
type Material struct {
	Color rgb.Color

	// Shininess is the Phong exponent of the specular highlight.
	Shininess float64

	// Specular, Reflection and Refraction are blend weights in [0, 1].
	Specular   float64
	Reflection float64
	Refraction float64

	// IndexOfRefraction is used for refracted rays.  Zero means 1 (a
	// transmissive surface that does not bend light).
	IndexOfRefraction float64
}

// Validate reports the first coefficient that is out of range.
func (m *Material) Validate() error {
	if m.Shininess < 0 {
		return fmt.Errorf("%w: shininess %v is negative", ErrOutOfRange, m.Shininess)
	}
	for _, c := range []struct {
		name string
		val  float64
	}{
		{"specular", m.Specular},
		{"reflection", m.Reflection},
		{"refraction", m.Refraction},
	} {
		if !(0 <= c.val && c.val <= 1) {
			return fmt.Errorf("%w: %s coefficient %v outside [0, 1]", ErrOutOfRange, c.name, c.val)
		}
	}
	if m.IndexOfRefraction < 0 {
		return fmt.Errorf("%w: index of refraction %v is negative", ErrOutOfRange, m.IndexOfRefraction)
	}
	return nil
}

// IOR returns the effective index of refraction.
func (m *Material) IOR() float64 {
	if m.IndexOfRefraction == 0 {
		return 1
	}
	return m.IndexOfRefraction
}

// Matte is a purely diffuse material.
func Matte(c rgb.Color) *Material {
	return &Material{Color: c}
}

// Plastic is a diffuse material with a highlight.
func Plastic(c rgb.Color, shininess, specular float64) *Material {
	return &Material{
		Color:     c,
		Shininess: shininess,
		Specular:  specular,
	}
}

// Mirror reflects the given fraction of incoming light.
func Mirror(c rgb.Color, reflection float64) *Material {
	return &Material{
		Color:      c,
		Shininess:  200,
		Specular:   0.8,
		Reflection: reflection,
	}
}

// Glass transmits most light, bending it with the given index.
func Glass(c rgb.Color, ior float64) *Material {
	return &Material{
		Color:             c,
		Shininess:         125,
		Specular:          0.5,
		Reflection:        0.1,
		Refraction:        0.8,
		IndexOfRefraction: ior,
	}
}
