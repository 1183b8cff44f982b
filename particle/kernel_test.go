package particle

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestKernelDerivClosedForm(t *testing.T) {
	// Hand-computed at r = 0.5h, h = 1:
	// alpha = 105/(16 pi), dWdr = alpha * (-12 * 0.5) * (1 - 0.5)^2
	h := 1.0
	r := 0.5
	want := 105.0 / (16.0 * math.Pi) * (-6.0) * 0.25

	got := KernelDeriv(r, h)
	if !scalar.EqualWithinRel(got, want, 1e-9) {
		t.Errorf("KernelDeriv(%g, %g) = %.15g, want %.15g", r, h, got, want)
	}
}

func TestKernelDerivVanishesAtSupport(t *testing.T) {
	if got := KernelDeriv(1.0, 1.0); got != 0 {
		t.Errorf("KernelDeriv at r=h should be 0, got %g", got)
	}
	if got := KernelDeriv(0, 1.0); got != 0 {
		t.Errorf("KernelDeriv at r=0 should be 0, got %g", got)
	}
}

func TestDiffusionCoeffClosedForm(t *testing.T) {
	// Equal unit mass and density at r = 0.5h, h = 1:
	// wfd  = -25.066903536973515383 * (1-0.5)^2
	// D    = -2 * (1/2) * (2/1) * r^2 * wfd / (r^2 + 0.01)
	h := 1.0
	r := 0.5
	r2 := r * r
	wfd := -25.066903536973515383 * 0.25
	want := -2.0 * 0.5 * 2.0 * r2 * wfd / (r2 + 0.01)

	got := DiffusionCoeff(r2, h, 1, 1, 1, 1)
	if !scalar.EqualWithinRel(got, want, 1e-9) {
		t.Errorf("DiffusionCoeff = %.15g, want %.15g", got, want)
	}
	if got <= 0 {
		t.Errorf("DiffusionCoeff should be positive inside the support, got %g", got)
	}
}

func TestDiffusionCoeffFiniteInsideSupport(t *testing.T) {
	h := 0.25
	masses := []float64{0.5, 1, 2}
	rhos := []float64{0.5, 1, 3}
	for _, mi := range masses {
		for _, mj := range masses {
			for _, ri := range rhos {
				for _, rj := range rhos {
					for frac := 0.05; frac < 1.0; frac += 0.05 {
						r := frac * h
						d := DiffusionCoeff(r*r, h, mi, mj, ri, rj)
						if math.IsNaN(d) || math.IsInf(d, 0) {
							t.Fatalf("non-finite D for m=(%g,%g) rho=(%g,%g) r=%g", mi, mj, ri, rj, r)
						}
						if d < 0 {
							t.Fatalf("negative D for m=(%g,%g) rho=(%g,%g) r=%g: %g", mi, mj, ri, rj, r, d)
						}
					}
				}
			}
		}
	}
}

func TestDiffusionCoeffRegularizedAtZero(t *testing.T) {
	// The 0.01 h^2 regularization keeps the coefficient defined as r -> 0.
	d := DiffusionCoeff(0, 1, 1, 1, 1, 1)
	if d != 0 {
		t.Errorf("DiffusionCoeff at r=0 should be 0, got %g", d)
	}
}

func TestCoefficientErrorContext(t *testing.T) {
	err := error(&CoefficientError{ID: 3, NeighborID: 7, R: 0.5, H: 1, Mass: 1, Rho: 0, NeighborMass: 1, NeighborRho: 1})
	var ce *CoefficientError
	if !errors.As(err, &ce) {
		t.Fatal("expected errors.As to match *CoefficientError")
	}
	msg := err.Error()
	for _, want := range []string{"particle=3", "neighbor=7"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}
