package camera

import (
	"errors"
	"testing"

	"pinhole/ray"
	"pinhole/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestGetRayViewportCorners(t *testing.T) {
	c := &PinholeCamera{
		Origin:          vec3.T{0, 0, 0},
		LowerLeftCorner: vec3.T{-2, -1.5, -1},
		Horizontal:      vec3.T{4, 0, 0},
		Vertical:        vec3.T{0, 3, 0},
	}

	for _, tc := range []struct {
		u, v float64
		want vec3.T
	}{
		{0, 0, vec3.T{-2, -1.5, -1}},
		{1, 0, vec3.T{2, -1.5, -1}},
		{0, 1, vec3.T{-2, 1.5, -1}},
		{0.5, 0.5, vec3.T{0, 0, -1}},
	} {
		got := c.GetRay(tc.u, tc.v)
		want := ray.Ray{Origin: vec3.T{0, 0, 0}, Direction: tc.want}
		if diff := cmp.Diff(got, want, approx); diff != "" {
			t.Errorf("GetRay(%v, %v): bad ray; diff (-got +want)\n%s", tc.u, tc.v, diff)
		}
	}
}

func TestGetRayOffsetOrigin(t *testing.T) {
	c := &PinholeCamera{
		Origin:          vec3.T{1, 1, 1},
		LowerLeftCorner: vec3.T{0, 0, 0},
		Horizontal:      vec3.T{2, 0, 0},
		Vertical:        vec3.T{0, 2, 0},
	}

	got := c.GetRay(0.5, 0.5)
	if diff := cmp.Diff(got.Direction, vec3.T{0, 0, -1}, approx); diff != "" {
		t.Errorf("Direction should be un-normalized viewport point minus origin; diff (-got +want)\n%s", diff)
	}
}

func TestNewLookAt(t *testing.T) {
	c, err := NewLookAt(vec3.T{0, 0, 0}, vec3.T{0, 0, -1}, vec3.T{0, 1, 0}, 90, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := &PinholeCamera{
		Origin:          vec3.T{0, 0, 0},
		LowerLeftCorner: vec3.T{-2, -1, -1},
		Horizontal:      vec3.T{4, 0, 0},
		Vertical:        vec3.T{0, 2, 0},
	}
	if diff := cmp.Diff(c, want, approx); diff != "" {
		t.Errorf("Bad camera; diff (-got +want)\n%s", diff)
	}

	center := c.GetRay(0.5, 0.5)
	if diff := cmp.Diff(vec3.Normalize(center.Direction), vec3.T{0, 0, -1}, approx); diff != "" {
		t.Errorf("Center ray should look at the target; diff (-got +want)\n%s", diff)
	}
}

func TestNewLookAtDegenerate(t *testing.T) {
	for name, build := range map[string]func() (*PinholeCamera, error){
		"coincident": func() (*PinholeCamera, error) {
			return NewLookAt(vec3.T{1, 1, 1}, vec3.T{1, 1, 1}, vec3.T{0, 1, 0}, 60, 1)
		},
		"parallel up": func() (*PinholeCamera, error) {
			return NewLookAt(vec3.T{0, 0, 0}, vec3.T{0, 5, 0}, vec3.T{0, 1, 0}, 60, 1)
		},
		"antiparallel up": func() (*PinholeCamera, error) {
			return NewLookAt(vec3.T{0, 0, 0}, vec3.T{0, -5, 0}, vec3.T{0, 1, 0}, 60, 1)
		},
		"zero up": func() (*PinholeCamera, error) {
			return NewLookAt(vec3.T{0, 0, 0}, vec3.T{0, 0, -1}, vec3.T{}, 60, 1)
		},
		"bad fov": func() (*PinholeCamera, error) {
			return NewLookAt(vec3.T{0, 0, 0}, vec3.T{0, 0, -1}, vec3.T{0, 1, 0}, 180, 1)
		},
		"bad aspect": func() (*PinholeCamera, error) {
			return NewLookAt(vec3.T{0, 0, 0}, vec3.T{0, 0, -1}, vec3.T{0, 1, 0}, 60, 0)
		},
	} {
		if _, err := build(); !errors.Is(err, ErrDegenerateFrame) {
			t.Errorf("%s: error = %v, want ErrDegenerateFrame", name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	flat := &PinholeCamera{Horizontal: vec3.T{1, 0, 0}, Vertical: vec3.T{2, 0, 0}}
	if err := flat.Validate(); !errors.Is(err, ErrDegenerateFrame) {
		t.Errorf("Validate() = %v, want ErrDegenerateFrame", err)
	}
}
