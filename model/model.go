package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PropensityFn computes the instantaneous rate of one reaction channel given
// the voxel's population vector, the current time, the voxel volume, its data
// functions, and its subdomain.
type PropensityFn func(pop []int64, t, vol float64, data []float64, sd int) float64

// ReactionModel is the immutable description of the chemistry: stoichiometry,
// dependency graph, propensity functions, species names, and the per-species
// subdomain diffusion-rate matrices.
type ReactionModel struct {
	NumSpecies    int
	NumReactions  int
	NumSubdomains int
	SpeciesNames  []string

	Stoich *StoichMatrix
	Deps   *DepGraph

	Propensities []PropensityFn

	// diffRates[s] is the NumSubdomains x NumSubdomains rate matrix of
	// species s: entry (from, to) scales diffusion between particles of
	// those subdomains.
	diffRates []*mat.Dense
}

// New assembles a reaction model from the raw inputs: the CSC stoichiometry
// triple, the CSC dependency pattern, the propensity functions, and the
// row-major flattened diffusion-rate tensor with one NumSubdomains^2 block
// per species.
func New(
	numSpecies, numReactions int,
	speciesNames []string,
	irN, jcN, prN []int,
	irG, jcG []int,
	propensities []PropensityFn,
	numSubdomains int,
	diffusionRates []float64,
) (*ReactionModel, error) {
	if numSpecies < 1 {
		return nil, fmt.Errorf("model: need at least one species, got %d", numSpecies)
	}
	if len(speciesNames) != numSpecies {
		return nil, fmt.Errorf("model: %d species names for %d species", len(speciesNames), numSpecies)
	}
	if len(propensities) != numReactions {
		return nil, fmt.Errorf("model: %d propensity functions for %d reactions", len(propensities), numReactions)
	}
	if numSubdomains < 1 {
		return nil, fmt.Errorf("model: need at least one subdomain, got %d", numSubdomains)
	}
	if want := numSpecies * numSubdomains * numSubdomains; len(diffusionRates) != want {
		return nil, fmt.Errorf("model: diffusion rate tensor has %d entries, want %d", len(diffusionRates), want)
	}

	stoich, err := NewStoichMatrix(numSpecies, numReactions, irN, jcN, prN)
	if err != nil {
		return nil, err
	}
	deps, err := NewDepGraph(numSpecies, numReactions, irG, jcG)
	if err != nil {
		return nil, err
	}

	rates := make([]*mat.Dense, numSpecies)
	block := numSubdomains * numSubdomains
	for s := 0; s < numSpecies; s++ {
		blockData := diffusionRates[s*block : (s+1)*block]
		for _, rate := range blockData {
			if rate < 0 {
				return nil, fmt.Errorf("model: negative diffusion rate for species %s", speciesNames[s])
			}
		}
		// mat.NewDense retains the slice; copy so the model owns its data.
		data := make([]float64, block)
		copy(data, blockData)
		rates[s] = mat.NewDense(numSubdomains, numSubdomains, data)
	}

	return &ReactionModel{
		NumSpecies:    numSpecies,
		NumReactions:  numReactions,
		NumSubdomains: numSubdomains,
		SpeciesNames:  speciesNames,
		Stoich:        stoich,
		Deps:          deps,
		Propensities:  propensities,
		diffRates:     rates,
	}, nil
}

// DiffusionRate returns the rate of species s between the ordered subdomain
// pair (from, to).
func (m *ReactionModel) DiffusionRate(s, from, to int) float64 {
	return m.diffRates[s].At(from, to)
}
