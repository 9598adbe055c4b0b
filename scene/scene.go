// Package scene holds a validated, read-only description of everything a
// renderer needs: camera, light, shapes, ground plane, and shading options.
package scene

import (
	"errors"
	"fmt"
	"math"

	"pinhole/camera"
	"pinhole/geometry"
	"pinhole/light"
	"pinhole/rgb"
)

// ErrInvalid is returned by New for configurations that cannot be rendered.
var ErrInvalid = errors.New("invalid scene")

// Options tune local shading.
type Options struct {
	// Ambient is the fraction of a material's color that is always lit.
	Ambient float64

	// Falloff enables inverse-square light attenuation, scaled by FalloffGain
	// and clamped to [0, 1].
	Falloff     bool
	FalloffGain float64

	// Occlusion in [0, 1) darkens every shaded point by a constant factor of
	// 1 - Occlusion, a crude stand-in for ambient occlusion.
	Occlusion float64
}

func DefaultOptions() Options {
	return Options{
		Ambient:     0.1,
		FalloffGain: 2.0,
	}
}

func (o Options) Validate() error {
	if !(o.Ambient >= 0 && o.Ambient <= 1) {
		return fmt.Errorf("%w: ambient %v outside [0, 1]", ErrInvalid, o.Ambient)
	}
	if !(o.FalloffGain >= 0) || math.IsInf(o.FalloffGain, 0) {
		return fmt.Errorf("%w: falloff gain %v must be finite and non-negative", ErrInvalid, o.FalloffGain)
	}
	if !(o.Occlusion >= 0 && o.Occlusion < 1) {
		return fmt.Errorf("%w: occlusion %v outside [0, 1)", ErrInvalid, o.Occlusion)
	}
	return nil
}

// Config is the mutable input to New.  New copies the pinhole camera, and
// geometry constructors copy materials, so later changes to a Config do not
// reach a built Scene.  Other Camera and Shape implementations are shared and
// must not change while the scene is in use.
type Config struct {
	Camera camera.Camera
	Light  light.Point

	// Shapes are tested in order; on equal distances the earlier shape wins.
	Shapes []geometry.Shape

	// Ground is optional.  It is tested after every entry in Shapes.
	Ground *geometry.Plane

	// MaxDepth bounds reflection and refraction recursion.  Zero disables
	// secondary rays entirely.
	MaxDepth int

	// Options defaults to DefaultOptions() when nil.
	Options *Options

	Background  rgb.Color
	ShadowColor rgb.Color
}

type Scene struct {
	camera     camera.Camera
	light      light.Point
	shapes     []geometry.Shape
	ground     *geometry.Plane
	candidates []geometry.Shape
	maxDepth   int
	options    Options

	background  rgb.Color
	shadowColor rgb.Color
}

func New(cfg Config) (*Scene, error) {
	if cfg.Camera == nil {
		return nil, fmt.Errorf("%w: no camera", ErrInvalid)
	}
	if pc, ok := cfg.Camera.(*camera.PinholeCamera); ok {
		if err := pc.Validate(); err != nil {
			return nil, fmt.Errorf("while validating camera: %w", err)
		}
		cc := *pc
		cfg.Camera = &cc
	}

	if err := cfg.Light.Validate(); err != nil {
		return nil, fmt.Errorf("while validating light: %w", err)
	}

	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth %d is negative", ErrInvalid, cfg.MaxDepth)
	}

	opts := DefaultOptions()
	if cfg.Options != nil {
		opts = *cfg.Options
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("while validating shading options: %w", err)
	}

	s := &Scene{
		camera:      cfg.Camera,
		light:       cfg.Light,
		ground:      cfg.Ground,
		maxDepth:    cfg.MaxDepth,
		options:     opts,
		background:  cfg.Background,
		shadowColor: cfg.ShadowColor,
	}

	for i, sh := range cfg.Shapes {
		if sh == nil {
			return nil, fmt.Errorf("%w: shape %d is nil", ErrInvalid, i)
		}
		s.shapes = append(s.shapes, sh)
	}

	s.candidates = append(s.candidates, s.shapes...)
	if s.ground != nil {
		s.candidates = append(s.candidates, s.ground)
	}

	return s, nil
}

func (s *Scene) Camera() camera.Camera {
	return s.camera
}

func (s *Scene) Light() light.Point {
	return s.light
}

// Shapes returns a copy of the scene's shapes, not including the ground.
func (s *Scene) Shapes() []geometry.Shape {
	return append([]geometry.Shape(nil), s.shapes...)
}

// Ground returns the ground plane, or nil.
func (s *Scene) Ground() *geometry.Plane {
	return s.ground
}

// NumCandidates is the number of shapes a ray must be tested against: every
// shape, then the ground if present.
func (s *Scene) NumCandidates() int {
	return len(s.candidates)
}

func (s *Scene) Candidate(i int) geometry.Shape {
	return s.candidates[i]
}

func (s *Scene) MaxDepth() int {
	return s.maxDepth
}

func (s *Scene) Options() Options {
	return s.options
}

func (s *Scene) Background() rgb.Color {
	return s.background
}

func (s *Scene) ShadowColor() rgb.Color {
	return s.shadowColor
}

// WithMaxDepth returns a copy of s with a different recursion bound.
func (s *Scene) WithMaxDepth(d int) (*Scene, error) {
	if d < 0 {
		return nil, fmt.Errorf("%w: max depth %d is negative", ErrInvalid, d)
	}
	c := *s
	c.maxDepth = d
	return &c, nil
}
