// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Domain    DomainConfig    `yaml:"domain"`
	Run       RunConfig       `yaml:"run"`
	Neighbors NeighborsConfig `yaml:"neighbors"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig holds the physical domain parameters.
type DomainConfig struct {
	Dimension          int        `yaml:"dimension"`           // 2 or 3
	SupportRadius      float64    `yaml:"support_radius"`      // h, kernel compact support
	StaticDomain       bool       `yaml:"static_domain"`       // skip index/neighbor rebuilds after the first step
	Gravity            [3]float64 `yaml:"gravity"`             // body acceleration applied during advection
	BoundaryConditions [3]string  `yaml:"boundary_conditions"` // per axis: "n" none, "r" reflect, "p" periodic
	Min                [3]float64 `yaml:"min"`                 // domain lower corner
	Max                [3]float64 `yaml:"max"`                 // domain upper corner
}

// RunConfig holds stepping parameters.
type RunConfig struct {
	DT    float64 `yaml:"dt"`    // duration of one simulation step
	Steps int     `yaml:"steps"` // number of steps for CLI runs
	Seed  uint64  `yaml:"seed"`  // RNG seed (0 = time-based in the CLI)
}

// NeighborsConfig holds neighbor-search parameters.
type NeighborsConfig struct {
	ExactSearch bool `yaml:"exact_search"` // exact fixed-radius count vs. all-candidates superset
	LeafSize    int  `yaml:"leaf_size"`    // kd-tree bucket size
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int `yaml:"stats_window"`          // steps per stats window
	PerfCollectorWindow int `yaml:"perf_collector_window"` // samples in the rolling perf window
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SupportRadiusSq float64    // SupportRadius squared, for radius queries
	Extent          [3]float64 // domain size per axis
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.Domain.SupportRadius <= 0 {
		return fmt.Errorf("domain.support_radius must be positive, got %g", c.Domain.SupportRadius)
	}
	if c.Domain.Dimension != 2 && c.Domain.Dimension != 3 {
		return fmt.Errorf("domain.dimension must be 2 or 3, got %d", c.Domain.Dimension)
	}
	if c.Run.DT <= 0 {
		return fmt.Errorf("run.dt must be positive, got %g", c.Run.DT)
	}
	for axis, bc := range c.Domain.BoundaryConditions {
		switch bc {
		case "n", "r", "p":
		default:
			return fmt.Errorf("domain.boundary_conditions[%d] must be one of n/r/p, got %q", axis, bc)
		}
	}
	for axis := 0; axis < 3; axis++ {
		if c.Domain.Max[axis] < c.Domain.Min[axis] {
			return fmt.Errorf("domain.max[%d] < domain.min[%d]", axis, axis)
		}
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.SupportRadiusSq = c.Domain.SupportRadius * c.Domain.SupportRadius
	for axis := 0; axis < 3; axis++ {
		c.Derived.Extent[axis] = c.Domain.Max[axis] - c.Domain.Min[axis]
	}
	if c.Neighbors.LeafSize < 1 {
		c.Neighbors.LeafSize = 8
	}
	if c.Telemetry.StatsWindow < 1 {
		c.Telemetry.StatsWindow = 10
	}
	if c.Telemetry.PerfCollectorWindow < 1 {
		c.Telemetry.PerfCollectorWindow = 60
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
