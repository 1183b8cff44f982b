package model

import (
	"strings"
	"testing"
)

// twoSpeciesModel builds A -> B at mass-action rate k, one subdomain.
func twoSpeciesModel(t *testing.T, k float64) *ReactionModel {
	t.Helper()
	prop := func(pop []int64, _, _ float64, _ []float64, _ int) float64 {
		return k * float64(pop[0])
	}
	m, err := New(
		2, 1,
		[]string{"A", "B"},
		[]int{0, 1}, []int{0, 2}, []int{-1, 1},
		[]int{0, 0}, []int{0, 1, 1, 2},
		[]PropensityFn{prop},
		1,
		[]float64{1.0, 1.0},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestStoichCol(t *testing.T) {
	m := twoSpeciesModel(t, 0.1)

	if got := m.Stoich.Reactions(); got != 1 {
		t.Fatalf("Reactions = %d, want 1", got)
	}
	species, delta := m.Stoich.Col(0)
	if len(species) != 2 || species[0] != 0 || species[1] != 1 {
		t.Errorf("Col species = %v, want [0 1]", species)
	}
	if len(delta) != 2 || delta[0] != -1 || delta[1] != 1 {
		t.Errorf("Col delta = %v, want [-1 1]", delta)
	}
}

func TestDepGraphColumns(t *testing.T) {
	m := twoSpeciesModel(t, 0.1)

	// Diffusion of A touches reaction 0; diffusion of B touches nothing.
	if deps := m.Deps.DiffusionDeps(0); len(deps) != 1 || deps[0] != 0 {
		t.Errorf("DiffusionDeps(A) = %v, want [0]", deps)
	}
	if deps := m.Deps.DiffusionDeps(1); len(deps) != 0 {
		t.Errorf("DiffusionDeps(B) = %v, want empty", deps)
	}
	// Firing the conversion touches its own propensity.
	if deps := m.Deps.ReactionDeps(0); len(deps) != 1 || deps[0] != 0 {
		t.Errorf("ReactionDeps(0) = %v, want [0]", deps)
	}
}

func TestDiffusionRateLookup(t *testing.T) {
	m, err := New(
		2, 0,
		[]string{"A", "B"},
		nil, []int{0}, nil,
		nil, []int{0, 0, 0},
		nil,
		2,
		[]float64{
			// species A: 2x2 block
			1.0, 0.5,
			0.25, 0.0,
			// species B
			2.0, 0.0,
			0.0, 2.0,
		},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		s, from, to int
		want        float64
	}{
		{0, 0, 0, 1.0},
		{0, 0, 1, 0.5},
		{0, 1, 0, 0.25},
		{0, 1, 1, 0.0},
		{1, 0, 0, 2.0},
		{1, 1, 1, 2.0},
		{1, 0, 1, 0.0},
	}
	for _, tc := range cases {
		if got := m.DiffusionRate(tc.s, tc.from, tc.to); got != tc.want {
			t.Errorf("DiffusionRate(%d,%d,%d) = %g, want %g", tc.s, tc.from, tc.to, got, tc.want)
		}
	}
}

func TestModelOwnsRateData(t *testing.T) {
	rates := []float64{1.0}
	m, err := New(1, 0, []string{"A"}, nil, []int{0}, nil, nil, []int{0, 0}, nil, 1, rates)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rates[0] = 99
	if got := m.DiffusionRate(0, 0, 0); got != 1.0 {
		t.Errorf("mutating the input slice changed the model: %g", got)
	}
}

func TestNewValidation(t *testing.T) {
	okNames := []string{"A", "B"}
	prop := func([]int64, float64, float64, []float64, int) float64 { return 0 }

	cases := []struct {
		name string
		run  func() error
		frag string
	}{
		{
			"no_species",
			func() error {
				_, err := New(0, 0, nil, nil, []int{0}, nil, nil, []int{0}, nil, 1, nil)
				return err
			},
			"at least one species",
		},
		{
			"name_count",
			func() error {
				_, err := New(2, 0, []string{"A"}, nil, []int{0}, nil, nil, []int{0, 0, 0}, nil, 1, []float64{1, 1})
				return err
			},
			"species names",
		},
		{
			"propensity_count",
			func() error {
				_, err := New(2, 1, okNames, []int{0}, []int{0, 1}, []int{-1}, nil, []int{0, 0, 0, 0}, nil, 1, []float64{1, 1})
				return err
			},
			"propensity functions",
		},
		{
			"rate_tensor_size",
			func() error {
				_, err := New(2, 0, okNames, nil, []int{0}, nil, nil, []int{0, 0, 0}, nil, 1, []float64{1})
				return err
			},
			"diffusion rate tensor",
		},
		{
			"negative_rate",
			func() error {
				_, err := New(2, 0, okNames, nil, []int{0}, nil, nil, []int{0, 0, 0}, nil, 1, []float64{1, -1})
				return err
			},
			"negative diffusion rate",
		},
		{
			"bad_species_index",
			func() error {
				_, err := New(2, 1, okNames, []int{5}, []int{0, 1}, []int{-1}, nil, []int{0, 0, 0, 0}, []PropensityFn{prop}, 1, []float64{1, 1})
				return err
			},
			"species index 5",
		},
		{
			"bad_reaction_index",
			func() error {
				_, err := New(2, 1, okNames, []int{0}, []int{0, 1}, []int{-1}, []int{3}, []int{0, 1, 1, 1}, []PropensityFn{prop}, 1, []float64{1, 1})
				return err
			},
			"reaction index 3",
		},
		{
			"colptr_not_zero",
			func() error {
				_, err := New(2, 1, okNames, []int{0}, []int{1, 1}, []int{-1}, nil, []int{0, 0, 0, 0}, []PropensityFn{prop}, 1, []float64{1, 1})
				return err
			},
			"start at 0",
		},
		{
			"colptr_decreasing",
			func() error {
				_, err := New(2, 2, okNames, []int{0, 1}, []int{0, 2, 1}, []int{-1, 1}, nil, []int{0, 0, 0, 0, 0}, []PropensityFn{prop, prop}, 1, []float64{1, 1})
				return err
			},
			"decrease",
		},
		{
			"colptr_entry_mismatch",
			func() error {
				_, err := New(2, 1, okNames, []int{0, 1}, []int{0, 1}, []int{-1, 1}, nil, []int{0, 0, 0, 0}, []PropensityFn{prop}, 1, []float64{1, 1})
				return err
			},
			"end at",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.frag) {
				t.Errorf("error %q does not mention %q", err, tc.frag)
			}
		})
	}
}
