package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step.
const (
	PhaseAdvect       = "advect"
	PhaseSpatialIndex = "spatial_index"
	PhaseNeighbors    = "neighbors"
	PhaseDiffusion    = "diffusion_matrix"
	PhaseNSM          = "nsm"
	PhaseTelemetry    = "telemetry"
)

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	stepStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of steps to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a new simulation step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndStep finishes timing the current step and records the sample.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	// End final phase
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total step time
	PhasePct map[string]float64

	StepsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalStep time.Duration
	var minStep, maxStep time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalStep += s.StepDuration

		if i == 0 || s.StepDuration < minStep {
			minStep = s.StepDuration
		}
		if s.StepDuration > maxStep {
			maxStep = s.StepDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgStep := totalStep / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgStep > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgStep) * 100
		}
	}

	var stepsPerSec float64
	if avgStep > 0 {
		stepsPerSec = float64(time.Second) / float64(avgStep)
	}

	return PerfStats{
		AvgStepDuration: avgStep,
		MinStepDuration: minStep,
		MaxStepDuration: maxStep,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		StepsPerSecond:  stepsPerSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"min_step_us", s.MinStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}
	for phase, avg := range s.PhaseAvg {
		attrs = append(attrs, "phase_"+phase+"_us", avg.Microseconds())
	}
	slog.Info("perf", attrs...)
}

// PerfStatsCSV is the flattened CSV row for a perf window.
type PerfStatsCSV struct {
	WindowEnd       int     `csv:"window_end"`
	AvgStepUs       int64   `csv:"avg_step_us"`
	MinStepUs       int64   `csv:"min_step_us"`
	MaxStepUs       int64   `csv:"max_step_us"`
	StepsPerSecond  float64 `csv:"steps_per_sec"`
	AdvectUs        int64   `csv:"advect_us"`
	SpatialIndexUs  int64   `csv:"spatial_index_us"`
	NeighborsUs     int64   `csv:"neighbors_us"`
	DiffusionUs     int64   `csv:"diffusion_matrix_us"`
	NSMUs           int64   `csv:"nsm_us"`
	TelemetryUs     int64   `csv:"telemetry_us"`
}

// ToCSV flattens the stats for CSV output.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:      windowEnd,
		AvgStepUs:      s.AvgStepDuration.Microseconds(),
		MinStepUs:      s.MinStepDuration.Microseconds(),
		MaxStepUs:      s.MaxStepDuration.Microseconds(),
		StepsPerSecond: s.StepsPerSecond,
		AdvectUs:       s.PhaseAvg[PhaseAdvect].Microseconds(),
		SpatialIndexUs: s.PhaseAvg[PhaseSpatialIndex].Microseconds(),
		NeighborsUs:    s.PhaseAvg[PhaseNeighbors].Microseconds(),
		DiffusionUs:    s.PhaseAvg[PhaseDiffusion].Microseconds(),
		NSMUs:          s.PhaseAvg[PhaseNSM].Microseconds(),
		TelemetryUs:    s.PhaseAvg[PhaseTelemetry].Microseconds(),
	}
}
