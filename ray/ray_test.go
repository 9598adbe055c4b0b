package ray

import (
	"math"
	"testing"

	"pinhole/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestAt(t *testing.T) {
	r := Ray{Origin: vec3.T{1, 2, 3}, Direction: vec3.T{0, 0, -2}}
	if diff := cmp.Diff(r.At(1.5), vec3.T{1, 2, 0}); diff != "" {
		t.Errorf("Bad point; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(r.At(0), r.Origin); diff != "" {
		t.Errorf("At(0) is not the origin; diff (-got +want)\n%s", diff)
	}
}

func TestSpanContains(t *testing.T) {
	s := Span{0, 5}
	for _, tc := range []struct {
		t    float64
		want bool
	}{
		{-1, false},
		{0, false},
		{2.5, true},
		{5, false},
		{math.Inf(1), false},
	} {
		if got := s.Contains(tc.t); got != tc.want {
			t.Errorf("Span{0, 5}.Contains(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestToward(t *testing.T) {
	seg := Toward(vec3.T{0, 0, 0}, vec3.T{0, 10, 0}, 0.5)

	approx := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff(seg.TheRay.Direction, vec3.T{0, 1, 0}, approx); diff != "" {
		t.Errorf("Bad direction; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(seg.TheRay.Origin, vec3.T{0, 0.5, 0}, approx); diff != "" {
		t.Errorf("Bad origin; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(seg.TheRay.At(seg.TheSegment.Hi), vec3.T{0, 10, 0}, approx); diff != "" {
		t.Errorf("Segment does not end at the target; diff (-got +want)\n%s", diff)
	}
}
