package rgb

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClamp(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want uint8
	}{
		{-10, 0},
		{0, 0},
		{0.4, 0},
		{127.6, 128},
		{255, 255},
		{1000, 255},
		{math.Inf(1), 255},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	} {
		if got := Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestArithmeticClamps(t *testing.T) {
	if diff := cmp.Diff(Add(Color{200, 100, 0}, Color{100, 100, 10}), Color{255, 200, 10}); diff != "" {
		t.Errorf("Add did not clamp; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(Scale(Color{100, 200, 50}, 2), Color{200, 255, 100}); diff != "" {
		t.Errorf("Scale did not clamp; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(Scale(Color{100, 200, 50}, -1), Black); diff != "" {
		t.Errorf("Negative scale did not clamp; diff (-got +want)\n%s", diff)
	}
}

func TestBlend(t *testing.T) {
	a := Color{200, 0, 100}
	b := Color{0, 200, 100}

	if diff := cmp.Diff(Blend(a, b, 0), a); diff != "" {
		t.Errorf("Blend(k=0) should return a; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(Blend(a, b, 1), b); diff != "" {
		t.Errorf("Blend(k=1) should return b; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(Blend(a, b, 0.5), Color{100, 100, 100}); diff != "" {
		t.Errorf("Blend(k=0.5) bad; diff (-got +want)\n%s", diff)
	}
}

func TestFromSlice(t *testing.T) {
	c, err := FromSlice([]float64{0, 300, 12.2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(c, Color{0, 255, 12}); diff != "" {
		t.Errorf("Bad color; diff (-got +want)\n%s", diff)
	}

	if _, err := FromSlice([]float64{1, 2}); err == nil {
		t.Errorf("FromSlice with 2 channels should fail")
	}
}
