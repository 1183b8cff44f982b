// Package particle owns the particle system: the ECS-backed particle store,
// the spatial index over current positions, and the per-particle neighbor
// lists with their SPH interaction weights.
package particle

import (
	"errors"
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/brine/components"
	"github.com/pthm-cable/brine/config"
	"github.com/pthm-cable/brine/spatial"
)

// ErrIndexStale is returned when neighbors are requested before the spatial
// index has been (re)built for the current positions.
var ErrIndexStale = errors.New("particle: spatial index is stale, call BuildIndex first")

// Edge is one entry of a particle's neighbor list: an ordered pair from the
// owning particle to a neighbor within the support radius. Edges live for one
// neighbor-list build and are recomputed on every rebuild, never mutated.
type Edge struct {
	To     int        // neighbor particle index
	Entity ecs.Entity // neighbor entity
	Dist   float64    // distance r, always <= the support radius
	DWdr   float64    // cubic kernel derivative at r
	D      float64    // directional diffusion coefficient D_i_j
}

// Params holds the system-wide parameters. They are fixed for the lifetime of
// the system.
type Params struct {
	Dimension     int
	SupportRadius float64
	StaticDomain  bool
	Gravity       [3]float64
	Boundary      [3]string // per axis: "n" none, "r" reflect, "p" periodic
	Min, Max      [3]float64
	ExactSearch   bool
	LeafSize      int

	NumTypes        int // subdomain count
	NumStochSpecies int
	NumStochRxns    int
	NumChemSpecies  int
	NumDataFn       int
}

// ParamsFromConfig builds Params from the loaded configuration plus the
// chemistry dimensions, which come from the reaction model rather than the
// config file.
func ParamsFromConfig(cfg *config.Config, numTypes, numStochSpecies, numStochRxns, numChemSpecies, numDataFn int) Params {
	return Params{
		Dimension:       cfg.Domain.Dimension,
		SupportRadius:   cfg.Domain.SupportRadius,
		StaticDomain:    cfg.Domain.StaticDomain,
		Gravity:         cfg.Domain.Gravity,
		Boundary:        cfg.Domain.BoundaryConditions,
		Min:             cfg.Domain.Min,
		Max:             cfg.Domain.Max,
		ExactSearch:     cfg.Neighbors.ExactSearch,
		LeafSize:        cfg.Neighbors.LeafSize,
		NumTypes:        numTypes,
		NumStochSpecies: numStochSpecies,
		NumStochRxns:    numStochRxns,
		NumChemSpecies:  numChemSpecies,
		NumDataFn:       numDataFn,
	}
}

// Spec describes one particle to add. DefaultSpec provides the conventional
// fluid-particle defaults.
type Spec struct {
	Pos, Vel [3]float64
	Mass     float64
	Rho      float64
	Nu       float64
	Type     uint8 // subdomain
	Solid    bool
}

// DefaultSpec returns a Spec with unit mass and density and the default
// viscosity.
func DefaultSpec() Spec {
	return Spec{Mass: 1, Rho: 1, Nu: 0.01}
}

// System is the exclusive owner of all particles. Particle indices are dense,
// assigned in insertion order, and stable for the lifetime of the system.
type System struct {
	Params

	world  *ecs.World
	mapper *ecs.Map4[components.Position, components.Velocity, components.Physical, components.Chem]

	posMap  *ecs.Map1[components.Position]
	velMap  *ecs.Map1[components.Velocity]
	physMap *ecs.Map1[components.Physical]
	chemMap *ecs.Map1[components.Chem]

	entities []ecs.Entity

	// Spatial index state. points is the position snapshot the tree was
	// built from; indexBuilt gates neighbor queries.
	tree       *spatial.Tree
	points     [][3]float64
	indexBuilt bool

	// Per-particle neighbor lists. neighbors[i] is owned exclusively by
	// particle i, which makes per-particle rebuilds safe to parallelize.
	neighbors [][]Edge
}

// NewSystem creates an empty particle system.
func NewSystem(p Params) *System {
	world := ecs.NewWorld()
	return &System{
		Params: p,
		world:  world,
		mapper: ecs.NewMap4[components.Position, components.Velocity, components.Physical, components.Chem](world),

		posMap:  ecs.NewMap1[components.Position](world),
		velMap:  ecs.NewMap1[components.Velocity](world),
		physMap: ecs.NewMap1[components.Physical](world),
		chemMap: ecs.NewMap1[components.Chem](world),
	}
}

// AddParticle creates a particle from spec and returns its index. Adding a
// particle invalidates the spatial index.
func (s *System) AddParticle(spec Spec) int {
	pos := components.Position{X: spec.Pos[0], Y: spec.Pos[1], Z: spec.Pos[2]}
	vel := components.Velocity{X: spec.Vel[0], Y: spec.Vel[1], Z: spec.Vel[2]}
	phys := components.Physical{Mass: spec.Mass, Rho: spec.Rho, Nu: spec.Nu, Type: spec.Type, Solid: spec.Solid}
	chem := components.Chem{
		Pop:    make([]int64, s.NumStochSpecies),
		Q:      make([]float64, s.NumChemSpecies),
		C:      make([]float64, s.NumChemSpecies),
		DataFn: make([]float64, s.NumDataFn),
	}

	entity := s.mapper.NewEntity(&pos, &vel, &phys, &chem)
	s.entities = append(s.entities, entity)
	s.neighbors = append(s.neighbors, nil)
	s.indexBuilt = false
	return len(s.entities) - 1
}

// Count returns the number of particles.
func (s *System) Count() int {
	return len(s.entities)
}

// Entity returns the ECS entity for a particle index.
func (s *System) Entity(i int) ecs.Entity {
	return s.entities[i]
}

// Position returns the live position component of particle i.
func (s *System) Position(i int) *components.Position {
	return s.posMap.Get(s.entities[i])
}

// Velocity returns the live velocity component of particle i.
func (s *System) Velocity(i int) *components.Velocity {
	return s.velMap.Get(s.entities[i])
}

// Physical returns the live physical component of particle i.
func (s *System) Physical(i int) *components.Physical {
	return s.physMap.Get(s.entities[i])
}

// Chem returns the live chemical state of particle i.
func (s *System) Chem(i int) *components.Chem {
	return s.chemMap.Get(s.entities[i])
}

// Volume returns the SPH volume mass/rho of particle i, used as the reaction
// volume by propensity functions.
func (s *System) Volume(i int) float64 {
	phys := s.physMap.Get(s.entities[i])
	return phys.Mass / phys.Rho
}

// BuildIndex snapshots current positions and rebuilds the kd-tree over them.
// All neighbor lists are invalidated; FindNeighbors must be called again for
// every particle before the lists are read.
func (s *System) BuildIndex() {
	n := len(s.entities)
	if cap(s.points) < n {
		s.points = make([][3]float64, n)
	}
	s.points = s.points[:n]
	for i, e := range s.entities {
		pos := s.posMap.Get(e)
		s.points[i] = [3]float64{pos.X, pos.Y, pos.Z}
	}
	s.tree = spatial.Build(s.points, s.LeafSize)
	s.indexBuilt = true
}

// IndexBuilt reports whether the spatial index matches current positions.
func (s *System) IndexBuilt() bool {
	return s.indexBuilt
}

// InvalidateIndex marks the spatial index as stale. Called after any position
// mutation.
func (s *System) InvalidateIndex() {
	s.indexBuilt = false
}

// FindNeighbors rebuilds the neighbor list of particle i from the current
// spatial index. scratch is a reusable hit buffer; the (possibly grown)
// buffer is returned for the next call. Writes only neighbors[i], so
// concurrent calls for distinct particles are safe once the index is built.
func (s *System) FindNeighbors(i int, scratch []spatial.Hit) ([]spatial.Hit, error) {
	if !s.indexBuilt {
		return scratch, ErrIndexStale
	}

	q := s.points[i]
	if s.ExactSearch {
		scratch = s.tree.QueryRadiusInto(scratch[:0], q, s.SupportRadius, i)
	} else {
		scratch = s.tree.CandidatesInto(scratch[:0], i)
	}

	edges := s.neighbors[i][:0]
	for _, hit := range scratch {
		edge, ok, err := s.evaluatePair(i, hit)
		if err != nil {
			return scratch, err
		}
		if ok {
			edges = append(edges, edge)
		}
	}
	s.neighbors[i] = edges
	return scratch, nil
}

// Neighbors returns the current neighbor list of particle i. The slice is
// valid until the next FindNeighbors call for i.
func (s *System) Neighbors(i int) []Edge {
	return s.neighbors[i]
}

// evaluatePair decides whether a raw candidate becomes a neighbor edge and
// computes its interaction weights. Candidates at or beyond the support
// radius are excluded, not errors; a non-finite coefficient is fatal.
func (s *System) evaluatePair(i int, hit spatial.Hit) (Edge, bool, error) {
	r2 := hit.DistSq
	if r2 == spatial.DistInf {
		// Candidate mode did not measure the distance; compute it here.
		a := s.points[i]
		b := s.points[hit.Index]
		dx := a[0] - b[0]
		dy := a[1] - b[1]
		dz := a[2] - b[2]
		r2 = dx*dx + dy*dy + dz*dz
	}
	r := math.Sqrt(r2)
	h := s.SupportRadius
	if r >= h {
		return Edge{}, false, nil
	}

	dWdr := KernelDeriv(r, h)

	pi := s.physMap.Get(s.entities[i])
	pj := s.physMap.Get(s.entities[hit.Index])
	d := DiffusionCoeff(r2, h, pi.Mass, pj.Mass, pi.Rho, pj.Rho)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return Edge{}, false, &CoefficientError{
			ID:           i,
			NeighborID:   hit.Index,
			R:            r,
			H:            h,
			Mass:         pi.Mass,
			Rho:          pi.Rho,
			NeighborMass: pj.Mass,
			NeighborRho:  pj.Rho,
		}
	}

	return Edge{To: hit.Index, Entity: s.entities[hit.Index], Dist: r, DWdr: dWdr, D: d}, true, nil
}

// Advect moves non-solid particles one step under their velocity and the
// system gravity, applies boundary conditions, and invalidates the spatial
// index. Static domains skip advection entirely.
func (s *System) Advect(dt float64) {
	if s.StaticDomain {
		return
	}
	for _, e := range s.entities {
		phys := s.physMap.Get(e)
		if phys.Solid {
			continue
		}
		vel := s.velMap.Get(e)
		vel.X += s.Gravity[0] * dt
		vel.Y += s.Gravity[1] * dt
		vel.Z += s.Gravity[2] * dt

		pos := s.posMap.Get(e)
		x := [3]float64{pos.X + vel.X*dt, pos.Y + vel.Y*dt, pos.Z + vel.Z*dt}
		v := [3]float64{vel.X, vel.Y, vel.Z}
		for axis := 0; axis < 3; axis++ {
			x[axis], v[axis] = s.applyBoundary(axis, x[axis], v[axis])
		}
		pos.X, pos.Y, pos.Z = x[0], x[1], x[2]
		vel.X, vel.Y, vel.Z = v[0], v[1], v[2]
	}
	s.indexBuilt = false
}

// applyBoundary applies the configured condition on one axis and returns the
// corrected coordinate and velocity component.
func (s *System) applyBoundary(axis int, x, v float64) (float64, float64) {
	lo, hi := s.Min[axis], s.Max[axis]
	switch s.Boundary[axis] {
	case "r":
		if x < lo {
			x = 2*lo - x
			v = -v
		} else if x > hi {
			x = 2*hi - x
			v = -v
		}
	case "p":
		extent := hi - lo
		if extent > 0 {
			x = lo + math.Mod(math.Mod(x-lo, extent)+extent, extent)
		}
	}
	return x, v
}
