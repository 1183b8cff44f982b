// Package telemetry collects run statistics and performance samples and
// writes them as CSV.
package telemetry

import "log/slog"

// WindowStats holds aggregated statistics for a window of simulation steps.
type WindowStats struct {
	WindowStartStep int     `csv:"-"`
	WindowEndStep   int     `csv:"window_end"`
	SimTime         float64 `csv:"sim_time"`

	Particles int `csv:"particles"`

	// Events during the window
	Reactions int64 `csv:"reactions"`
	Diffusion int64 `csv:"diffusion"`

	// Cumulative counters at window end
	TotalReactions int64 `csv:"total_reactions"`
	TotalDiffusion int64 `csv:"total_diffusion"`

	// Event rates per unit simulation time
	ReactionRate float64 `csv:"reaction_rate"`
	DiffusionRate float64 `csv:"diffusion_rate"`

	// Population summary across all particles and species
	TotalPopulation int64   `csv:"total_population"`
	MeanNeighbors   float64 `csv:"mean_neighbors"`
}

// Collector accumulates per-step counters into window stats.
type Collector struct {
	windowSteps int
	dt          float64

	windowStart    int
	startReactions int64
	startDiffusion int64
}

// NewCollector creates a collector emitting one WindowStats every windowSteps
// steps of duration dt.
func NewCollector(windowSteps int, dt float64) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{windowSteps: windowSteps, dt: dt}
}

// WindowSteps returns the configured window length.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}

// Due reports whether a window closes at the given step.
func (c *Collector) Due(step int) bool {
	return (step+1)%c.windowSteps == 0
}

// Close finalizes the current window at the given step and starts the next
// one. totalReactions/totalDiffusion are the cumulative engine counters;
// totalPop and meanNeighbors are sampled at window end.
func (c *Collector) Close(step, particles int, simTime float64, totalReactions, totalDiffusion, totalPop int64, meanNeighbors float64) WindowStats {
	window := step + 1 - c.windowStart
	elapsed := float64(window) * c.dt

	stats := WindowStats{
		WindowStartStep: c.windowStart,
		WindowEndStep:   step + 1,
		SimTime:         simTime,
		Particles:       particles,
		Reactions:       totalReactions - c.startReactions,
		Diffusion:       totalDiffusion - c.startDiffusion,
		TotalReactions:  totalReactions,
		TotalDiffusion:  totalDiffusion,
		TotalPopulation: totalPop,
		MeanNeighbors:   meanNeighbors,
	}
	if elapsed > 0 {
		stats.ReactionRate = float64(stats.Reactions) / elapsed
		stats.DiffusionRate = float64(stats.Diffusion) / elapsed
	}

	c.windowStart = step + 1
	c.startReactions = totalReactions
	c.startDiffusion = totalDiffusion
	return stats
}

// LogStats logs the window via slog.
func (s WindowStats) LogStats() {
	slog.Info("window",
		"step", s.WindowEndStep,
		"sim_time", s.SimTime,
		"particles", s.Particles,
		"reactions", s.Reactions,
		"diffusion", s.Diffusion,
		"total_population", s.TotalPopulation,
		"mean_neighbors", s.MeanNeighbors,
	)
}
