// Package scenepack loads scene descriptions from JSON files and from the
// scenes compiled into the binary.
//
// A description is a JSON object:
//
//	{
//	  "width": 800, "height": 600,
//	  "camera": {"origin": [x,y,z], "lowerLeft": [...], "horizontal": [...], "vertical": [...]},
//	  "light": {"position": [x,y,z], "luminance": 1},
//	  "materials": {"name": {"color": [r,g,b], "shininess": 0, "specular": 0,
//	                         "reflection": 0, "refraction": 0, "ior": 1}},
//	  "spheres": [{"center": [x,y,z], "radius": 1, "material": "name"}],
//	  "planes": [{"normal": [x,y,z], "point": [x,y,z], "material": "name"}],
//	  "ground": {"normal": [x,y,z], "point": [x,y,z], "material": "name"},
//	  "maxDepth": 3,
//	  "options": {"ambient": 0.1, "falloff": false, "falloffGain": 2, "occlusion": 0},
//	  "background": [r,g,b], "shadowColor": [r,g,b]
//	}
//
// The camera may instead be given as {"lookFrom", "lookAt", "up", "vfov"}, in
// which case the aspect ratio comes from width and height.
package scenepack

import (
	"embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	"pinhole/camera"
	"pinhole/geometry"
	"pinhole/light"
	"pinhole/material"
	"pinhole/rasterimage"
	"pinhole/rgb"
	"pinhole/scene"
	"pinhole/vmath/vec3"
	"pinhole/vmath/vecn"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrUnknownScene    = errors.New("unknown scene")
	ErrUnknownMaterial = errors.New("unknown material")
	ErrMissingField    = errors.New("missing field")
	ErrBadField        = errors.New("malformed field")
)

const (
	defaultWidth  = 800
	defaultHeight = 600
)

//go:embed builtin/*.json
var builtinFS embed.FS

// Pack is a loaded scene together with the image size it was authored for.
type Pack struct {
	Name          string
	Width, Height int

	// Description is the decoded source, kept for fingerprinting.
	Description *structpb.Struct

	Scene *scene.Scene
}

// Names lists the built-in scenes.
func Names() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := []string{}
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

func Builtin(name string) (*Pack, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownScene, name, strings.Join(Names(), ", "))
	}
	return Parse(name, data)
}

func Load(fileName string) (*Pack, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("while opening scenepack: %w", err)
	}
	return Parse(fileName, data)
}

// Parse decodes a JSON scene description.
func Parse(name string, data []byte) (*Pack, error) {
	desc := &structpb.Struct{}
	if err := protojson.Unmarshal(data, desc); err != nil {
		return nil, fmt.Errorf("while unmarshaling scenepack %s: %w", name, err)
	}
	return FromDescription(name, desc)
}

var topLevelKeys = map[string]bool{
	"width": true, "height": true, "camera": true, "light": true,
	"materials": true, "spheres": true, "planes": true, "ground": true,
	"maxDepth": true, "options": true, "background": true, "shadowColor": true,
}

func FromDescription(name string, desc *structpb.Struct) (*Pack, error) {
	for k := range desc.GetFields() {
		if !topLevelKeys[k] {
			return nil, fmt.Errorf("%w: unknown key %q", ErrBadField, k)
		}
	}

	p := &Pack{
		Name:        name,
		Description: desc,
	}

	w, err := number(desc, "width", defaultWidth)
	if err != nil {
		return nil, err
	}
	h, err := number(desc, "height", defaultHeight)
	if err != nil {
		return nil, err
	}
	if w != math.Trunc(w) || h != math.Trunc(h) || w <= 0 || h <= 0 || w > rasterimage.MaxPixels || h > rasterimage.MaxPixels {
		return nil, fmt.Errorf("%w: image size %vx%v", ErrBadField, w, h)
	}
	p.Width, p.Height = int(w), int(h)
	if err := rasterimage.CheckSize(p.Width, p.Height); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadField, err)
	}

	cfg := scene.Config{}

	camDesc, err := object(desc, "camera", true)
	if err != nil {
		return nil, err
	}
	cfg.Camera, err = convertCamera(camDesc, float64(p.Width)/float64(p.Height))
	if err != nil {
		return nil, fmt.Errorf("while converting camera: %w", err)
	}

	lightDesc, err := object(desc, "light", true)
	if err != nil {
		return nil, err
	}
	cfg.Light, err = convertLight(lightDesc)
	if err != nil {
		return nil, fmt.Errorf("while converting light: %w", err)
	}

	materials := map[string]*material.Material{}
	if mats, err := object(desc, "materials", false); err != nil {
		return nil, err
	} else if mats != nil {
		for mname, v := range mats.GetFields() {
			md := v.GetStructValue()
			if md == nil {
				return nil, fmt.Errorf("%w: material %q is not an object", ErrBadField, mname)
			}
			m, err := convertMaterial(md)
			if err != nil {
				return nil, fmt.Errorf("while converting material %q: %w", mname, err)
			}
			materials[mname] = m
		}
	}

	spheres, err := list(desc, "spheres")
	if err != nil {
		return nil, err
	}
	for i, sd := range spheres {
		s, err := convertSphere(sd.GetStructValue(), materials)
		if err != nil {
			return nil, fmt.Errorf("while converting sphere %d: %w", i, err)
		}
		cfg.Shapes = append(cfg.Shapes, s)
	}

	planes, err := list(desc, "planes")
	if err != nil {
		return nil, err
	}
	for i, pd := range planes {
		pl, err := convertPlane(pd.GetStructValue(), materials)
		if err != nil {
			return nil, fmt.Errorf("while converting plane %d: %w", i, err)
		}
		cfg.Shapes = append(cfg.Shapes, pl)
	}

	if gd, err := object(desc, "ground", false); err != nil {
		return nil, err
	} else if gd != nil {
		cfg.Ground, err = convertPlane(gd, materials)
		if err != nil {
			return nil, fmt.Errorf("while converting ground: %w", err)
		}
	}

	depth, err := number(desc, "maxDepth", 0)
	if err != nil {
		return nil, err
	}
	if depth != math.Trunc(depth) || depth > math.MaxInt32 {
		return nil, fmt.Errorf("%w: maxDepth %v", ErrBadField, depth)
	}
	cfg.MaxDepth = int(depth)

	if od, err := object(desc, "options", false); err != nil {
		return nil, err
	} else if od != nil {
		opts, err := convertOptions(od)
		if err != nil {
			return nil, fmt.Errorf("while converting options: %w", err)
		}
		cfg.Options = &opts
	}

	if cfg.Background, err = color(desc, "background", rgb.Black); err != nil {
		return nil, err
	}
	if cfg.ShadowColor, err = color(desc, "shadowColor", rgb.Black); err != nil {
		return nil, err
	}

	p.Scene, err = scene.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("while building scene %s: %w", name, err)
	}
	return p, nil
}

func convertCamera(d *structpb.Struct, aspect float64) (camera.Camera, error) {
	if _, ok := d.GetFields()["lookFrom"]; ok {
		from, err := vector(d, "lookFrom")
		if err != nil {
			return nil, err
		}
		at, err := vector(d, "lookAt")
		if err != nil {
			return nil, err
		}
		up, err := optionalVector(d, "up", vec3.T{0, 1, 0})
		if err != nil {
			return nil, err
		}
		vfov, err := number(d, "vfov", 90)
		if err != nil {
			return nil, err
		}
		cam, err := camera.NewLookAt(from, at, up, vfov, aspect)
		if err != nil {
			return nil, err
		}
		return cam, nil
	}

	origin, err := optionalVector(d, "origin", vec3.T{})
	if err != nil {
		return nil, err
	}
	llc, err := vector(d, "lowerLeft")
	if err != nil {
		return nil, err
	}
	horiz, err := vector(d, "horizontal")
	if err != nil {
		return nil, err
	}
	vert, err := vector(d, "vertical")
	if err != nil {
		return nil, err
	}
	return &camera.PinholeCamera{
		Origin:          origin,
		LowerLeftCorner: llc,
		Horizontal:      horiz,
		Vertical:        vert,
	}, nil
}

func convertLight(d *structpb.Struct) (light.Point, error) {
	pos, err := vector(d, "position")
	if err != nil {
		return light.Point{}, err
	}
	lum, err := number(d, "luminance", 1)
	if err != nil {
		return light.Point{}, err
	}
	return light.Point{Position: pos, Luminance: lum}, nil
}

func convertMaterial(d *structpb.Struct) (*material.Material, error) {
	c, err := color(d, "color", rgb.White)
	if err != nil {
		return nil, err
	}
	m := &material.Material{Color: c}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"shininess", &m.Shininess},
		{"specular", &m.Specular},
		{"reflection", &m.Reflection},
		{"refraction", &m.Refraction},
		{"ior", &m.IndexOfRefraction},
	} {
		if *f.dst, err = number(d, f.key, 0); err != nil {
			return nil, err
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func lookupMaterial(d *structpb.Struct, materials map[string]*material.Material) (*material.Material, error) {
	name := d.GetFields()["material"].GetStringValue()
	if name == "" {
		return nil, fmt.Errorf("%w: material", ErrMissingField)
	}
	m, ok := materials[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMaterial, name)
	}
	return m, nil
}

func convertSphere(d *structpb.Struct, materials map[string]*material.Material) (*geometry.Sphere, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: sphere is not an object", ErrBadField)
	}
	center, err := vector(d, "center")
	if err != nil {
		return nil, err
	}
	radius, err := number(d, "radius", 1)
	if err != nil {
		return nil, err
	}
	m, err := lookupMaterial(d, materials)
	if err != nil {
		return nil, err
	}
	return geometry.NewSphere(center, radius, m)
}

func convertPlane(d *structpb.Struct, materials map[string]*material.Material) (*geometry.Plane, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: plane is not an object", ErrBadField)
	}

	normal, err := checkedVector(d, "normal")
	if err != nil {
		return nil, err
	}
	if _, err := vecn.Normalize(normal); err != nil {
		return nil, fmt.Errorf("while normalizing plane normal: %w", err)
	}
	n, err := vec3.FromN(normal)
	if err != nil {
		return nil, fmt.Errorf("while converting field %q: %w", "normal", err)
	}

	point, err := vector(d, "point")
	if err != nil {
		return nil, err
	}
	m, err := lookupMaterial(d, materials)
	if err != nil {
		return nil, err
	}
	return geometry.NewPlane(n, point, m)
}

func convertOptions(d *structpb.Struct) (scene.Options, error) {
	def := scene.DefaultOptions()
	opts := scene.Options{}
	var err error
	if opts.Ambient, err = number(d, "ambient", def.Ambient); err != nil {
		return opts, err
	}
	if opts.FalloffGain, err = number(d, "falloffGain", def.FalloffGain); err != nil {
		return opts, err
	}
	if opts.Occlusion, err = number(d, "occlusion", def.Occlusion); err != nil {
		return opts, err
	}
	if v, ok := d.GetFields()["falloff"]; ok {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return opts, fmt.Errorf("%w: %q is not a boolean", ErrBadField, "falloff")
		}
		opts.Falloff = b.BoolValue
	}
	return opts, nil
}

func object(d *structpb.Struct, key string, required bool) (*structpb.Struct, error) {
	v, ok := d.GetFields()[key]
	if !ok {
		if required {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, key)
		}
		return nil, nil
	}
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("%w: %q is not an object", ErrBadField, key)
	}
	return s, nil
}

func list(d *structpb.Struct, key string) ([]*structpb.Value, error) {
	v, ok := d.GetFields()[key]
	if !ok {
		return nil, nil
	}
	l := v.GetListValue()
	if l == nil {
		return nil, fmt.Errorf("%w: %q is not a list", ErrBadField, key)
	}
	return l.GetValues(), nil
}

func number(d *structpb.Struct, key string, def float64) (float64, error) {
	v, ok := d.GetFields()[key]
	if !ok {
		return def, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrBadField, key)
	}
	return n.NumberValue, nil
}

// checkedVector decodes a list of numbers of any length.
func checkedVector(d *structpb.Struct, key string) (vecn.T, error) {
	vals, err := list(d, key)
	if err != nil {
		return nil, err
	}
	if vals == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	out := make(vecn.T, 0, len(vals))
	for _, v := range vals {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: %q has a non-numeric component", ErrBadField, key)
		}
		out = append(out, n.NumberValue)
	}
	return out, nil
}

func vector(d *structpb.Struct, key string) (vec3.T, error) {
	n, err := checkedVector(d, key)
	if err != nil {
		return vec3.T{}, err
	}
	v, err := vec3.FromN(n)
	if err != nil {
		return vec3.T{}, fmt.Errorf("while converting field %q: %w", key, err)
	}
	return v, nil
}

func optionalVector(d *structpb.Struct, key string, def vec3.T) (vec3.T, error) {
	if _, ok := d.GetFields()[key]; !ok {
		return def, nil
	}
	return vector(d, key)
}

func color(d *structpb.Struct, key string, def rgb.Color) (rgb.Color, error) {
	if _, ok := d.GetFields()[key]; !ok {
		return def, nil
	}
	n, err := checkedVector(d, key)
	if err != nil {
		return rgb.Color{}, err
	}
	c, err := rgb.FromSlice(n)
	if err != nil {
		return rgb.Color{}, fmt.Errorf("%w: %q: %v", ErrBadField, key, err)
	}
	return c, nil
}
