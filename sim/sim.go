// Package sim drives the coupled simulation: particle advection, spatial
// index and neighbor-list rebuilds, diffusion operator refresh, and NSM
// stepping, with telemetry around every phase.
package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/pthm-cable/brine/config"
	"github.com/pthm-cable/brine/model"
	"github.com/pthm-cable/brine/nsm"
	"github.com/pthm-cable/brine/particle"
	"github.com/pthm-cable/brine/telemetry"
)

// Options holds run options beyond the config file.
type Options struct {
	Seed      uint64 // overrides config when non-zero
	OutputDir string // CSV output directory (empty = disabled)
	LogStats  bool   // emit window stats via slog
}

// Simulation owns one particle system and its RDME state for the lifetime of
// a run. Not safe for concurrent use: a step mutates shared state and must
// run to completion before anything else touches the system.
type Simulation struct {
	cfg  *config.Config
	sys  *particle.System
	mdl  *model.ReactionModel
	rdme *nsm.RDME

	step int

	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	output    *telemetry.OutputManager
	logStats  bool

	parallel *parallelState
}

// New assembles a simulation from a configured particle system and reaction
// model.
func New(cfg *config.Config, sys *particle.System, mdl *model.ReactionModel, opts Options) (*Simulation, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Run.Seed
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}

	return &Simulation{
		cfg:       cfg,
		sys:       sys,
		mdl:       mdl,
		rdme:      nsm.New(sys, mdl, rng),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Run.DT),
		output:    output,
		logStats:  opts.LogStats,
		parallel:  newParallelState(),
	}, nil
}

// Initialize builds the first spatial index and neighbor lists and loads the
// initial populations into the RDME.
func (s *Simulation) Initialize(u0 []int64) error {
	s.sys.BuildIndex()
	if err := s.rebuildNeighbors(); err != nil {
		return fmt.Errorf("sim: building neighbor lists: %w", err)
	}
	if err := s.rdme.Initialize(u0); err != nil {
		return err
	}
	if err := s.output.WriteConfig(s.cfg); err != nil {
		return err
	}
	return nil
}

// Step advances the simulation by one configured dt.
func (s *Simulation) Step() error {
	dt := s.cfg.Run.DT
	s.perf.StartStep()

	s.perf.StartPhase(telemetry.PhaseAdvect)
	s.sys.Advect(dt)

	// Moving domains invalidate the index every step; static domains keep
	// the first build.
	if !s.sys.IndexBuilt() {
		s.perf.StartPhase(telemetry.PhaseSpatialIndex)
		s.sys.BuildIndex()

		s.perf.StartPhase(telemetry.PhaseNeighbors)
		if err := s.rebuildNeighbors(); err != nil {
			return fmt.Errorf("sim: rebuilding neighbor lists: %w", err)
		}

		s.perf.StartPhase(telemetry.PhaseDiffusion)
		if err := s.rdme.RebuildDiffusion(); err != nil {
			return err
		}
	}

	s.perf.StartPhase(telemetry.PhaseNSM)
	if err := s.rdme.Simulate(dt); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	if s.collector.Due(s.step) {
		s.closeWindow()
	}
	s.perf.EndStep()

	s.step++
	return nil
}

// Run advances the simulation by the given number of steps.
func (s *Simulation) Run(steps int) error {
	for i := 0; i < steps; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// closeWindow emits the stats for the window ending at the current step.
func (s *Simulation) closeWindow() {
	stats := s.collector.Close(
		s.step,
		s.sys.Count(),
		s.rdme.Time(),
		s.rdme.TotalReactions(),
		s.rdme.TotalDiffusion(),
		s.rdme.TotalPopulation(),
		s.meanNeighbors(),
	)
	if s.logStats {
		stats.LogStats()
	}
	if err := s.output.WriteTelemetry(stats); err != nil {
		// Telemetry failures should not kill a run in progress.
		stats.LogStats()
	}
	_ = s.output.WritePerf(s.perf.Stats(), s.step+1)
}

// meanNeighbors returns the average neighbor-list length.
func (s *Simulation) meanNeighbors() float64 {
	n := s.sys.Count()
	if n == 0 {
		return 0
	}
	total := 0
	for i := 0; i < n; i++ {
		total += len(s.sys.Neighbors(i))
	}
	return float64(total) / float64(n)
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int {
	return s.step
}

// RDME exposes the stochastic engine state for reading populations and
// counters after steps.
func (s *Simulation) RDME() *nsm.RDME {
	return s.rdme
}

// System exposes the particle system.
func (s *Simulation) System() *particle.System {
	return s.sys
}

// Close stops the worker pool, destroys the RDME state, and closes outputs.
func (s *Simulation) Close() error {
	s.parallel.stopWorkers()
	s.rdme.Destroy()
	return s.output.Close()
}
