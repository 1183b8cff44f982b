// Package model holds the reaction network: stoichiometry, the event
// dependency graph, propensity functions, and the subdomain diffusion-rate
// matrices. Everything here is immutable once built, for the duration of a
// run.
package model

import "fmt"

// StoichMatrix is the stoichiometry matrix in compressed sparse column form:
// one column per reaction, entries are the net species-count deltas. The
// backing arrays are the conventional (irN, jcN, prN) triple.
type StoichMatrix struct {
	rowIdx []int // irN: species index per entry
	colPtr []int // jcN: column pointers, len = numReactions+1
	val    []int // prN: signed net count change per entry
}

// NewStoichMatrix validates and wraps the raw CSC triple. The slices are
// retained; callers must not mutate them afterwards.
func NewStoichMatrix(numSpecies, numReactions int, rowIdx, colPtr, val []int) (*StoichMatrix, error) {
	if len(colPtr) != numReactions+1 {
		return nil, fmt.Errorf("stoichiometry: column pointer length %d, want %d", len(colPtr), numReactions+1)
	}
	if len(rowIdx) != len(val) {
		return nil, fmt.Errorf("stoichiometry: %d row indices but %d values", len(rowIdx), len(val))
	}
	if err := checkColPtr(colPtr, len(rowIdx)); err != nil {
		return nil, fmt.Errorf("stoichiometry: %w", err)
	}
	for _, r := range rowIdx {
		if r < 0 || r >= numSpecies {
			return nil, fmt.Errorf("stoichiometry: species index %d out of range [0,%d)", r, numSpecies)
		}
	}
	return &StoichMatrix{rowIdx: rowIdx, colPtr: colPtr, val: val}, nil
}

// Reactions returns the number of columns.
func (m *StoichMatrix) Reactions() int {
	return len(m.colPtr) - 1
}

// Col returns the (species, delta) entries of reaction r as parallel
// subslices of the backing arrays. Constant time; the slices must not be
// mutated.
func (m *StoichMatrix) Col(r int) (species []int, delta []int) {
	lo, hi := m.colPtr[r], m.colPtr[r+1]
	return m.rowIdx[lo:hi], m.val[lo:hi]
}

// DepGraph is the event dependency graph in compressed sparse column pattern
// form (irG, jcG): column j lists the reaction propensities that must be
// recomputed after event j fires. Events are ordered diffusion-first: columns
// 0..numSpecies-1 are the diffusion events of each species, columns
// numSpecies..numSpecies+numReactions-1 are the reactions.
type DepGraph struct {
	rowIdx     []int
	colPtr     []int
	numSpecies int
}

// NewDepGraph validates and wraps the raw CSC pattern.
func NewDepGraph(numSpecies, numReactions int, rowIdx, colPtr []int) (*DepGraph, error) {
	cols := numSpecies + numReactions
	if len(colPtr) != cols+1 {
		return nil, fmt.Errorf("dependency graph: column pointer length %d, want %d", len(colPtr), cols+1)
	}
	if err := checkColPtr(colPtr, len(rowIdx)); err != nil {
		return nil, fmt.Errorf("dependency graph: %w", err)
	}
	for _, r := range rowIdx {
		if r < 0 || r >= numReactions {
			return nil, fmt.Errorf("dependency graph: reaction index %d out of range [0,%d)", r, numReactions)
		}
	}
	return &DepGraph{rowIdx: rowIdx, colPtr: colPtr, numSpecies: numSpecies}, nil
}

// DiffusionDeps returns the reaction propensities affected when one unit of
// species s diffuses into or out of a voxel.
func (g *DepGraph) DiffusionDeps(s int) []int {
	lo, hi := g.colPtr[s], g.colPtr[s+1]
	return g.rowIdx[lo:hi]
}

// ReactionDeps returns the reaction propensities affected when reaction r
// fires in a voxel.
func (g *DepGraph) ReactionDeps(r int) []int {
	j := g.numSpecies + r
	lo, hi := g.colPtr[j], g.colPtr[j+1]
	return g.rowIdx[lo:hi]
}

// checkColPtr verifies a CSC column pointer array: starts at zero,
// non-decreasing, ends at the entry count.
func checkColPtr(colPtr []int, entries int) error {
	if colPtr[0] != 0 {
		return fmt.Errorf("column pointers must start at 0, got %d", colPtr[0])
	}
	for j := 1; j < len(colPtr); j++ {
		if colPtr[j] < colPtr[j-1] {
			return fmt.Errorf("column pointers decrease at %d", j)
		}
	}
	if colPtr[len(colPtr)-1] != entries {
		return fmt.Errorf("column pointers end at %d, want %d entries", colPtr[len(colPtr)-1], entries)
	}
	return nil
}
