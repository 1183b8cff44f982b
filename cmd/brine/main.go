// Command brine runs a headless reaction-diffusion simulation over a cloud
// of SPH particles, with a built-in demo chemistry (A -> B conversion plus
// diffusion of both species).
package main

import (
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/pthm-cable/brine/config"
	"github.com/pthm-cable/brine/model"
	"github.com/pthm-cable/brine/particle"
	"github.com/pthm-cable/brine/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = config, then time-based)")
	steps := flag.Int("steps", 0, "Number of steps (0 = use config)")
	numParticles := flag.Int("particles", 512, "Particle count for the demo scenario")
	initialPop := flag.Int64("initial-pop", 10, "Initial A population per particle")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = cfg.Run.Seed
	}
	if rngSeed == 0 {
		rngSeed = uint64(time.Now().UnixNano())
	}

	mdl, err := demoModel()
	if err != nil {
		slog.Error("failed to build model", "error", err)
		os.Exit(1)
	}

	sys := particle.NewSystem(particle.ParamsFromConfig(cfg, 1, mdl.NumSpecies, mdl.NumReactions, 0, 0))
	u0 := populateDemo(sys, cfg, *numParticles, *initialPop, rngSeed)

	s, err := sim.New(cfg, sys, mdl, sim.Options{
		Seed:      rngSeed,
		OutputDir: *outputDir,
		LogStats:  *logStats,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := s.Initialize(u0); err != nil {
		slog.Error("failed to initialize simulation", "error", err)
		os.Exit(1)
	}

	runSteps := *steps
	if runSteps == 0 {
		runSteps = cfg.Run.Steps
	}

	slog.Info("starting simulation",
		"particles", sys.Count(),
		"steps", runSteps,
		"dt", cfg.Run.DT,
		"seed", rngSeed,
		"static_domain", cfg.Domain.StaticDomain,
	)

	start := time.Now()
	if err := s.Run(runSteps); err != nil {
		slog.Error("simulation aborted", "error", err, "step", s.StepCount())
		os.Exit(1)
	}

	slog.Info("simulation finished",
		"steps", s.StepCount(),
		"sim_time", s.RDME().Time(),
		"total_reactions", s.RDME().TotalReactions(),
		"total_diffusion", s.RDME().TotalDiffusion(),
		"wall_time", time.Since(start).Round(time.Millisecond).String(),
	)
}

// demoModel builds the demo chemistry: species A and B, one unimolecular
// conversion A -> B at rate k per molecule, both species diffusing.
func demoModel() (*model.ReactionModel, error) {
	const k = 0.1

	// Stoichiometry (CSC): reaction 0 consumes one A, produces one B.
	irN := []int{0, 1}
	jcN := []int{0, 2}
	prN := []int{-1, 1}

	// Dependency graph (CSC, diffusion events first): the conversion
	// propensity depends on A diffusion and on itself; B diffusion
	// affects nothing.
	irG := []int{0, 0}
	jcG := []int{0, 1, 1, 2}

	props := []model.PropensityFn{
		func(pop []int64, t, vol float64, data []float64, sd int) float64 {
			return k * float64(pop[0])
		},
	}

	// One subdomain; unit diffusion rate for both species.
	rates := []float64{1.0, 1.0}

	return model.New(2, 1, []string{"A", "B"}, irN, jcN, prN, irG, jcG, props, 1, rates)
}

// populateDemo fills the system with particles on a jittered uniform cloud
// and returns the flattened initial populations: initialPop of A per
// particle, no B.
func populateDemo(sys *particle.System, cfg *config.Config, n int, initialPop int64, seed uint64) []int64 {
	rng := rand.New(rand.NewPCG(seed, 0x6b79_72d1))
	for i := 0; i < n; i++ {
		spec := particle.DefaultSpec()
		for axis := 0; axis < 3; axis++ {
			lo := cfg.Domain.Min[axis]
			spec.Pos[axis] = lo + rng.Float64()*cfg.Derived.Extent[axis]
		}
		sys.AddParticle(spec)
	}

	u0 := make([]int64, n*2)
	for i := 0; i < n; i++ {
		u0[i*2] = initialPop
	}
	return u0
}
