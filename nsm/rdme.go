package nsm

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/brine/components"
	"github.com/pthm-cable/brine/model"
	"github.com/pthm-cable/brine/particle"
)

// Precondition violations, distinct from numeric corruption.
var (
	ErrNotInitialized     = errors.New("nsm: simulate before initialize")
	ErrAlreadyInitialized = errors.New("nsm: already initialized")
)

// voxel is the per-particle stochastic state: reaction propensities, the
// diffusion operator diagonal, and their running sums.
type voxel struct {
	srrate float64   // sum of rrate
	rrate  []float64 // per-reaction propensity
	sdrate float64   // total outgoing diffusion propensity
	ddiag  []float64 // per-species diffusion rate per unit population

	// cached per-particle inputs to propensity functions
	chem *components.Chem
	vol  float64
	sd   int
}

// RDME is the reaction-diffusion master equation state for one particle
// system: explicit lifecycle (Initialize/Simulate/Destroy), a single shared
// event schedule, and diagnostic counters. It exclusively owns the chemical
// state of the system's particles between Initialize and Destroy.
type RDME struct {
	sys *particle.System
	mdl *model.ReactionModel
	rng *rand.Rand

	voxels []voxel
	sched  *Schedule
	tNow   float64

	totalReactions int64
	totalDiffusion int64

	initialized bool
}

// New creates an RDME in the idle state. Nothing is allocated until
// Initialize.
func New(sys *particle.System, mdl *model.ReactionModel, rng *rand.Rand) *RDME {
	return &RDME{sys: sys, mdl: mdl, rng: rng}
}

// Initialize builds the per-voxel propensity state, loads the initial
// populations (u0 is flattened: one count per species per particle), builds
// the diffusion operator from the current neighbor lists, and populates the
// event schedule. The system's spatial index and neighbor lists must be
// current.
func (r *RDME) Initialize(u0 []int64) error {
	if r.initialized {
		return ErrAlreadyInitialized
	}
	n := r.sys.Count()
	ms := r.mdl.NumSpecies
	if len(u0) != n*ms {
		return fmt.Errorf("nsm: initial population vector has %d entries, want %d", len(u0), n*ms)
	}
	for k, x := range u0 {
		if x < 0 {
			return fmt.Errorf("nsm: negative initial population %d for species %s in particle %d",
				x, r.mdl.SpeciesNames[k%ms], k/ms)
		}
	}

	r.voxels = make([]voxel, n)
	for i := range r.voxels {
		vox := &r.voxels[i]
		phys := r.sys.Physical(i)
		vox.chem = r.sys.Chem(i)
		vox.vol = phys.Mass / phys.Rho
		vox.sd = int(phys.Type)
		vox.rrate = make([]float64, r.mdl.NumReactions)
		vox.ddiag = make([]float64, ms)
		copy(vox.chem.Pop, u0[i*ms:(i+1)*ms])
	}

	r.initReactionPropensities()
	if err := r.buildDiffusionOperator(); err != nil {
		r.voxels = nil
		return err
	}

	r.sched = NewSchedule(n)
	for i := range r.voxels {
		vox := &r.voxels[i]
		r.sched.Insert(i, r.tNow+r.exp(vox.srrate+vox.sdrate))
	}

	r.initialized = true
	return nil
}

// Destroy releases the sparse state and the schedule. Destroying twice is a
// no-op.
func (r *RDME) Destroy() {
	if !r.initialized {
		return
	}
	r.voxels = nil
	r.sched = nil
	r.initialized = false
}

// Initialized reports whether the RDME is in the ready state.
func (r *RDME) Initialized() bool {
	return r.initialized
}

// Time returns the current simulation time.
func (r *RDME) Time() float64 {
	return r.tNow
}

// TotalReactions returns the number of reaction events fired so far.
func (r *RDME) TotalReactions() int64 {
	return r.totalReactions
}

// TotalDiffusion returns the number of diffusion events fired so far.
func (r *RDME) TotalDiffusion() int64 {
	return r.totalDiffusion
}

// Populations returns a flattened copy of the current populations, one count
// per species per particle.
func (r *RDME) Populations() []int64 {
	ms := r.mdl.NumSpecies
	out := make([]int64, len(r.voxels)*ms)
	for i := range r.voxels {
		copy(out[i*ms:(i+1)*ms], r.voxels[i].chem.Pop)
	}
	return out
}

// TotalPopulation returns the sum of all species counts over all particles.
func (r *RDME) TotalPopulation() int64 {
	var sum int64
	for i := range r.voxels {
		for _, x := range r.voxels[i].chem.Pop {
			sum += x
		}
	}
	return sum
}

// Simulate advances the state by stepSize, firing every event scheduled
// before the step's end time. The earliest entry whose time exceeds the end
// time stays pending for the next call. A step runs to completion atomically;
// callers wanting early termination check between calls.
func (r *RDME) Simulate(stepSize float64) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	tEnd := r.tNow + stepSize
	for {
		i, tEvent := r.sched.Min()
		if i < 0 || tEvent > tEnd {
			break
		}
		vox := &r.voxels[i]
		total := vox.srrate + vox.sdrate
		if total <= 0 {
			// Stale entry for a voxel whose rates have all vanished.
			r.sched.Update(i, math.Inf(1))
			continue
		}
		var err error
		if r.rng.Float64()*total < vox.srrate {
			err = r.fireReaction(i, tEvent)
		} else {
			err = r.fireDiffusion(i, tEvent)
		}
		if err != nil {
			return err
		}
	}
	r.tNow = tEnd
	return nil
}

// fireReaction executes one reaction event in voxel i at time t.
func (r *RDME) fireReaction(i int, t float64) error {
	vox := &r.voxels[i]

	// Pick the reaction channel proportionally to its propensity.
	rx := 0
	cum := vox.rrate[0]
	u := r.rng.Float64() * vox.srrate
	for rx < len(vox.rrate)-1 && u > cum {
		rx++
		cum += vox.rrate[rx]
	}

	// Apply the stoichiometry column and keep sdrate consistent with the
	// new populations.
	species, delta := r.mdl.Stoich.Col(rx)
	for k, s := range species {
		next := vox.chem.Pop[s] + int64(delta[k])
		if next < 0 {
			return fmt.Errorf("nsm: reaction %d drove species %s negative in particle %d",
				rx, r.mdl.SpeciesNames[s], i)
		}
		vox.chem.Pop[s] = next
		vox.sdrate += vox.ddiag[s] * float64(delta[k])
	}
	r.totalReactions++

	// Recompute the dependent propensities and this voxel's next event.
	r.recomputeDeps(i, r.mdl.Deps.ReactionDeps(rx), t)
	r.reschedule(i, t)
	return nil
}

// fireDiffusion executes one diffusion jump out of voxel i at time t: one
// unit of a chosen species moves to a chosen neighbor.
func (r *RDME) fireDiffusion(i int, t float64) error {
	vox := &r.voxels[i]

	// Pick the species proportionally to ddiag[s] * pop[s].
	sp := -1
	cum := 0.0
	u := r.rng.Float64() * vox.sdrate
	for s, d := range vox.ddiag {
		w := d * float64(vox.chem.Pop[s])
		if w <= 0 {
			continue
		}
		sp = s
		cum += w
		if u <= cum {
			break
		}
	}
	if sp < 0 {
		// sdrate drifted away from the true sum; resync and move on.
		r.resyncDiffusionRate(i)
		r.reschedule(i, t)
		return nil
	}

	// Pick the destination proportionally to the per-edge rate.
	edges := r.sys.Neighbors(i)
	target := -1
	cum = 0.0
	u = r.rng.Float64() * vox.ddiag[sp]
	for k := range edges {
		e := &edges[k]
		w := e.D * r.mdl.DiffusionRate(sp, vox.sd, r.voxels[e.To].sd)
		if w <= 0 {
			continue
		}
		target = e.To
		cum += w
		if u <= cum {
			break
		}
	}
	if target < 0 {
		r.resyncDiffusionRate(i)
		r.reschedule(i, t)
		return nil
	}

	// Move one unit from i to target.
	dst := &r.voxels[target]
	vox.chem.Pop[sp]--
	dst.chem.Pop[sp]++
	vox.sdrate -= vox.ddiag[sp]
	dst.sdrate += dst.ddiag[sp]
	r.totalDiffusion++

	// Both voxels' dependent reaction propensities change.
	deps := r.mdl.Deps.DiffusionDeps(sp)
	r.recomputeDeps(i, deps, t)
	r.recomputeDeps(target, deps, t)
	r.reschedule(i, t)
	r.reschedule(target, t)
	return nil
}

// recomputeDeps refreshes the listed reaction propensities of voxel i,
// keeping srrate consistent.
func (r *RDME) recomputeDeps(i int, deps []int, t float64) {
	vox := &r.voxels[i]
	for _, k := range deps {
		old := vox.rrate[k]
		now := r.mdl.Propensities[k](vox.chem.Pop, t, vox.vol, vox.chem.DataFn, vox.sd)
		vox.rrate[k] = now
		vox.srrate += now - old
	}
}

// reschedule draws a fresh exponential waiting time for voxel i from its
// current total propensity and updates the schedule.
func (r *RDME) reschedule(i int, t float64) {
	vox := &r.voxels[i]
	r.sched.Update(i, t+r.exp(vox.srrate+vox.sdrate))
}

// resyncDiffusionRate recomputes sdrate of voxel i from scratch. Used when
// incremental updates have drifted below the true sum due to rounding.
func (r *RDME) resyncDiffusionRate(i int) {
	vox := &r.voxels[i]
	sum := 0.0
	for s, d := range vox.ddiag {
		sum += d * float64(vox.chem.Pop[s])
	}
	vox.sdrate = sum
}

// initReactionPropensities evaluates every reaction propensity at the current
// populations.
func (r *RDME) initReactionPropensities() {
	for i := range r.voxels {
		vox := &r.voxels[i]
		sum := 0.0
		for k, fn := range r.mdl.Propensities {
			vox.rrate[k] = fn(vox.chem.Pop, r.tNow, vox.vol, vox.chem.DataFn, vox.sd)
			sum += vox.rrate[k]
		}
		vox.srrate = sum
	}
}

// exp draws an exponential waiting time for the given total rate. A zero (or
// negative, after rounding) rate schedules at infinity: the voxel never fires
// until a dependency recomputation revives it.
func (r *RDME) exp(rate float64) float64 {
	if rate <= 0 {
		return math.Inf(1)
	}
	return distuv.Exponential{Rate: rate, Src: r.rng}.Rand()
}
