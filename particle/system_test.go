package particle

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/pthm-cable/brine/spatial"
)

// testParams returns params for a bare two-species system with support
// radius 1 in a unit-ish box.
func testParams() Params {
	return Params{
		Dimension:       3,
		SupportRadius:   1.0,
		Boundary:        [3]string{"n", "n", "n"},
		Min:             [3]float64{-10, -10, -10},
		Max:             [3]float64{10, 10, 10},
		ExactSearch:     true,
		LeafSize:        8,
		NumTypes:        1,
		NumStochSpecies: 2,
	}
}

func addAt(sys *System, x, y, z float64) int {
	spec := DefaultSpec()
	spec.Pos = [3]float64{x, y, z}
	return sys.AddParticle(spec)
}

func rebuildAll(t *testing.T, sys *System) {
	t.Helper()
	sys.BuildIndex()
	var scratch []spatial.Hit
	var err error
	for i := 0; i < sys.Count(); i++ {
		scratch, err = sys.FindNeighbors(i, scratch)
		if err != nil {
			t.Fatalf("FindNeighbors(%d): %v", i, err)
		}
	}
}

func TestNeighborInsideSupport(t *testing.T) {
	sys := NewSystem(testParams())
	a := addAt(sys, 0, 0, 0)
	b := addAt(sys, 0.5, 0, 0)
	rebuildAll(t, sys)

	edges := sys.Neighbors(a)
	if len(edges) != 1 {
		t.Fatalf("expected 1 neighbor, got %d", len(edges))
	}
	e := edges[0]
	if e.To != b {
		t.Errorf("expected neighbor %d, got %d", b, e.To)
	}
	if !scalar.EqualWithinRel(e.Dist, 0.5, 1e-12) {
		t.Errorf("expected distance 0.5, got %g", e.Dist)
	}

	wantDWdr := KernelDeriv(0.5, 1.0)
	if !scalar.EqualWithinRel(e.DWdr, wantDWdr, 1e-12) {
		t.Errorf("dWdr = %g, want %g", e.DWdr, wantDWdr)
	}
	wantD := DiffusionCoeff(0.25, 1.0, 1, 1, 1, 1)
	if !scalar.EqualWithinRel(e.D, wantD, 1e-12) {
		t.Errorf("D_i_j = %g, want %g", e.D, wantD)
	}
}

func TestNeighborSupportBoundary(t *testing.T) {
	// Distance and inclusion at the support radius: r = h and r = h+eps
	// create no edge; r = h-eps does.
	cases := []struct {
		name string
		dx   float64
		want int
	}{
		{"inside", 1.0 - 1e-9, 1},
		{"at_support", 1.0, 0},
		{"outside", 1.0 + 1e-9, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sys := NewSystem(testParams())
			a := addAt(sys, 0, 0, 0)
			addAt(sys, tc.dx, 0, 0)
			rebuildAll(t, sys)
			if got := len(sys.Neighbors(a)); got != tc.want {
				t.Errorf("dx=%g: got %d edges, want %d", tc.dx, got, tc.want)
			}
		})
	}
}

func TestNeighborListsSymmetricPair(t *testing.T) {
	// Both members of a pair inside the support list each other, each
	// edge carrying its own directional coefficient.
	sys := NewSystem(testParams())
	a := addAt(sys, 0, 0, 0)
	b := addAt(sys, 0.3, 0, 0)
	heavier := sys.Physical(b)
	heavier.Mass = 2
	heavier.Rho = 1.5
	rebuildAll(t, sys)

	ea := sys.Neighbors(a)
	eb := sys.Neighbors(b)
	if len(ea) != 1 || len(eb) != 1 {
		t.Fatalf("expected reciprocal single edges, got %d and %d", len(ea), len(eb))
	}
	if ea[0].To != b || eb[0].To != a {
		t.Errorf("edges point to %d and %d, want %d and %d", ea[0].To, eb[0].To, b, a)
	}
	wantD := DiffusionCoeff(0.09, 1.0, 1, 2, 1, 1.5)
	if !scalar.EqualWithinRel(ea[0].D, wantD, 1e-12) {
		t.Errorf("D_a_b = %g, want %g", ea[0].D, wantD)
	}
}

func TestNoSelfEdges(t *testing.T) {
	sys := NewSystem(testParams())
	a := addAt(sys, 0, 0, 0)
	addAt(sys, 0.2, 0, 0)
	addAt(sys, 0, 0.2, 0)
	rebuildAll(t, sys)
	for _, e := range sys.Neighbors(a) {
		if e.To == a {
			t.Fatal("neighbor list contains the owner itself")
		}
	}
}

func TestCandidateModeMatchesExact(t *testing.T) {
	exact := NewSystem(testParams())
	approxParams := testParams()
	approxParams.ExactSearch = false
	approx := NewSystem(approxParams)

	coords := [][3]float64{
		{0, 0, 0}, {0.4, 0, 0}, {0, 0.9, 0}, {3, 3, 3}, {0.2, 0.2, 0.2},
	}
	for _, c := range coords {
		addAt(exact, c[0], c[1], c[2])
		addAt(approx, c[0], c[1], c[2])
	}
	rebuildAll(t, exact)
	rebuildAll(t, approx)

	for i := 0; i < exact.Count(); i++ {
		ee := exact.Neighbors(i)
		ae := approx.Neighbors(i)
		if len(ee) != len(ae) {
			t.Fatalf("particle %d: exact %d edges, candidate mode %d", i, len(ee), len(ae))
		}
		have := make(map[int]float64, len(ae))
		for _, e := range ae {
			have[e.To] = e.Dist
		}
		for _, e := range ee {
			d, ok := have[e.To]
			if !ok {
				t.Fatalf("particle %d: candidate mode missing edge to %d", i, e.To)
			}
			if !scalar.EqualWithinRel(d, e.Dist, 1e-12) {
				t.Errorf("particle %d edge to %d: distances %g vs %g", i, e.To, d, e.Dist)
			}
		}
	}
}

func TestNonFiniteCoefficientIsFatal(t *testing.T) {
	sys := NewSystem(testParams())
	a := addAt(sys, 0, 0, 0)
	b := addAt(sys, 0.5, 0, 0)
	sys.Physical(b).Rho = 0 // makes (rho_i+rho_j)/(rho_i*rho_j) blow up

	sys.BuildIndex()
	_, err := sys.FindNeighbors(a, nil)
	if err == nil {
		t.Fatal("expected a coefficient error")
	}
	var ce *CoefficientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CoefficientError, got %T: %v", err, err)
	}
	if ce.ID != a || ce.NeighborID != b {
		t.Errorf("error context ids = (%d,%d), want (%d,%d)", ce.ID, ce.NeighborID, a, b)
	}
	if ce.H != 1.0 || ce.R != 0.5 {
		t.Errorf("error context r=%g h=%g, want r=0.5 h=1", ce.R, ce.H)
	}
}

func TestFindNeighborsRequiresIndex(t *testing.T) {
	sys := NewSystem(testParams())
	addAt(sys, 0, 0, 0)
	if _, err := sys.FindNeighbors(0, nil); !errors.Is(err, ErrIndexStale) {
		t.Fatalf("expected ErrIndexStale, got %v", err)
	}

	sys.BuildIndex()
	if _, err := sys.FindNeighbors(0, nil); err != nil {
		t.Fatalf("unexpected error after BuildIndex: %v", err)
	}

	// Any position mutation (via Advect) invalidates the index again.
	sys.Velocity(0).X = 1
	sys.Advect(0.1)
	if _, err := sys.FindNeighbors(0, nil); !errors.Is(err, ErrIndexStale) {
		t.Fatalf("expected ErrIndexStale after advection, got %v", err)
	}
}

func TestAdvectBoundaries(t *testing.T) {
	p := testParams()
	p.Min = [3]float64{0, 0, 0}
	p.Max = [3]float64{1, 1, 1}
	p.Boundary = [3]string{"r", "p", "n"}
	sys := NewSystem(p)

	i := addAt(sys, 0.95, 0.95, 0.95)
	vel := sys.Velocity(i)
	vel.X, vel.Y, vel.Z = 1, 1, 1

	sys.Advect(0.1)

	pos := sys.Position(i)
	if !scalar.EqualWithinAbs(pos.X, 0.95, 1e-12) {
		t.Errorf("reflect: x = %g, want 0.95", pos.X)
	}
	if sys.Velocity(i).X != -1 {
		t.Errorf("reflect: vx = %g, want -1", sys.Velocity(i).X)
	}
	if !scalar.EqualWithinAbs(pos.Y, 0.05, 1e-12) {
		t.Errorf("periodic: y = %g, want 0.05", pos.Y)
	}
	if !scalar.EqualWithinAbs(pos.Z, 1.05, 1e-12) {
		t.Errorf("none: z = %g, want 1.05", pos.Z)
	}
}

func TestAdvectStaticDomain(t *testing.T) {
	p := testParams()
	p.StaticDomain = true
	sys := NewSystem(p)
	i := addAt(sys, 0.5, 0.5, 0.5)
	sys.Velocity(i).X = 1

	sys.BuildIndex()
	sys.Advect(1)

	if pos := sys.Position(i); pos.X != 0.5 {
		t.Errorf("static domain should not move particles, x = %g", pos.X)
	}
	if !sys.IndexBuilt() {
		t.Error("static domain advection should keep the index valid")
	}
}

func TestSolidParticlesDoNotMove(t *testing.T) {
	sys := NewSystem(testParams())
	spec := DefaultSpec()
	spec.Pos = [3]float64{0.5, 0, 0}
	spec.Vel = [3]float64{1, 0, 0}
	spec.Solid = true
	i := sys.AddParticle(spec)

	sys.Advect(1)
	if pos := sys.Position(i); pos.X != 0.5 {
		t.Errorf("solid particle moved to x=%g", pos.X)
	}
}

func TestVolume(t *testing.T) {
	sys := NewSystem(testParams())
	spec := DefaultSpec()
	spec.Mass = 3
	spec.Rho = 1.5
	i := sys.AddParticle(spec)
	if v := sys.Volume(i); math.Abs(v-2) > 1e-12 {
		t.Errorf("Volume = %g, want 2", v)
	}
}
