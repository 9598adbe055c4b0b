package vecn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func randomVec(rng *rand.Rand, dim int) T {
	v := make(T, dim)
	for i := range v {
		v[i] = rng.Float64()*20 - 10
	}
	return v
}

func TestDotIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(12345))
	for i := 0; i < 200; i++ {
		dim := 1 + rng.Intn(6)
		a := randomVec(rng, dim)
		b := randomVec(rng, dim)

		ab, err := Dot(a, b)
		if err != nil {
			t.Fatalf("Dot(%v, %v) unexpected error: %v", a, b, err)
		}
		ba, err := Dot(b, a)
		if err != nil {
			t.Fatalf("Dot(%v, %v) unexpected error: %v", b, a, err)
		}
		if ab != ba {
			t.Errorf("Dot not symmetric for %v, %v: %v != %v", a, b, ab, ba)
		}
	}
}

func TestNormalizeHasUnitMagnitude(t *testing.T) {
	rng := rand.New(rand.NewSource(777))
	for i := 0; i < 200; i++ {
		a := randomVec(rng, 1+rng.Intn(6))
		if a.Norm() == 0 {
			continue
		}
		n, err := Normalize(a)
		if err != nil {
			t.Fatalf("Normalize(%v) unexpected error: %v", a, err)
		}
		if got := n.Norm(); math.Abs(got-1) > 1e-9 {
			t.Errorf("|Normalize(%v)| = %v, want 1", a, got)
		}
	}
}

func TestNormalizeZero(t *testing.T) {
	if _, err := Normalize(Of(0, 0, 0)); !errors.Is(err, ErrZeroVector) {
		t.Errorf("Normalize(0) error = %v, want ErrZeroVector", err)
	}
}

func TestDimensionMismatch(t *testing.T) {
	a := Of(1, 2, 3)
	b := Of(1, 2)

	if _, err := Add(a, b); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Sub(a, b); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Sub error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Dot(a, b); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Dot error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Cross(Of(1, 2, 3, 4), Of(1, 2, 3, 4)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Cross error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Project(a, b); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Project error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Angle(a, b); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Angle error = %v, want ErrDimensionMismatch", err)
	}
}

func TestOperations(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-12)

	sum, err := Add(Of(1, 2, 3), Of(4, 5, 6))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if diff := cmp.Diff(sum, Of(5, 7, 9), approx); diff != "" {
		t.Errorf("Add: bad result; diff (-got +want)\n%s", diff)
	}

	cross, err := Cross(Of(1, 0, 0), Of(0, 1, 0))
	if err != nil {
		t.Fatalf("Cross: %v", err)
	}
	if diff := cmp.Diff(cross, Of(0, 0, 1), approx); diff != "" {
		t.Errorf("Cross: bad result; diff (-got +want)\n%s", diff)
	}

	refl, err := Reflect(Of(1, -1, 0), Of(0, 2, 0))
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if diff := cmp.Diff(refl, Of(1, 1, 0), approx); diff != "" {
		t.Errorf("Reflect: bad result; diff (-got +want)\n%s", diff)
	}

	proj, err := Project(Of(3, 4, 0), Of(2, 0, 0))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if diff := cmp.Diff(proj, Of(3, 0, 0), approx); diff != "" {
		t.Errorf("Project: bad result; diff (-got +want)\n%s", diff)
	}

	angle, err := Angle(Of(1, 0), Of(0, 3))
	if err != nil {
		t.Fatalf("Angle: %v", err)
	}
	if math.Abs(angle-math.Pi/2) > 1e-12 {
		t.Errorf("Angle = %v, want pi/2", angle)
	}

	for _, tc := range []struct {
		a, b T
		want float64
	}{
		{Of(1, 0, 0), Of(0, 0, 5), math.Pi / 2},
		{Of(1, 1, 0), Of(2, 2, 0), 0},
		{Of(1, 0, 0), Of(-3, 0, 0), math.Pi},
		{Of(1, 0, 0, 0), Of(1, 1, 0, 0), math.Pi / 4},
		{Of(0, 0, 0, 2), Of(0, 0, 0, -1), math.Pi},
	} {
		got, err := Angle(tc.a, tc.b)
		if err != nil {
			t.Fatalf("Angle(%v, %v): %v", tc.a, tc.b, err)
		}
		if math.Abs(got-tc.want) > 1e-7 {
			t.Errorf("Angle(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}

	if _, err := Angle(Of(0, 0, 0), Of(1, 0, 0)); !errors.Is(err, ErrZeroVector) {
		t.Errorf("Angle with zero vector error = %v, want ErrZeroVector", err)
	}
}

func TestOperandsAreNotMutated(t *testing.T) {
	a := Of(1, 2, 3)
	b := Of(4, 5, 6)
	Add(a, b)
	Sub(a, b)
	Scale(a, 10)
	Normalize(a)
	Reflect(a, b)

	if diff := cmp.Diff(a, Of(1, 2, 3)); diff != "" {
		t.Errorf("a was mutated; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(b, Of(4, 5, 6)); diff != "" {
		t.Errorf("b was mutated; diff (-got +want)\n%s", diff)
	}
}
