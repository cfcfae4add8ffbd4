// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/sphfluid/particles"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Domain    DomainConfig    `yaml:"domain"`
	Fluid     FluidConfig     `yaml:"fluid"`
	Particle  ParticleConfig  `yaml:"particle"`
	Solver    SolverConfig    `yaml:"solver"`
	Boundary  BoundaryConfig  `yaml:"boundary"`
	WCSPH     WCSPHConfig     `yaml:"wcsph"`
	IISPH     IISPHConfig     `yaml:"iisph"`
	Collision CollisionConfig `yaml:"collision"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Vec3 is a YAML-friendly [x, y, z] triple.
type Vec3 [3]float64

// R3 converts to a gonum vector.
func (v Vec3) R3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// DomainConfig is the simulation box. Fluid particles never leave it.
type DomainConfig struct {
	Min   Vec3 `yaml:"min"`
	Max   Vec3 `yaml:"max"`
	Sim2D bool `yaml:"sim_2d"`
}

// FluidConfig is the initial fluid block, sampled on a regular lattice.
type FluidConfig struct {
	Min      Vec3   `yaml:"min"`
	Max      Vec3   `yaml:"max"`
	Counts   [3]int `yaml:"counts"` // particles per axis
	Sample2D bool   `yaml:"sample_2d"`
}

// ParticleConfig holds constants shared by every particle.
type ParticleConfig struct {
	Radius   float64 `yaml:"radius"`
	Density0 float64 `yaml:"density0"`
}

// SolverConfig holds stepping parameters common to both methods.
type SolverConfig struct {
	Method          string  `yaml:"method"`
	DT              float64 `yaml:"dt"`
	Gravity         Vec3    `yaml:"gravity"`
	Viscosity       float64 `yaml:"viscosity"`
	WallRestitution float64 `yaml:"wall_restitution"`
}

// BoundaryConfig controls the static particle shell around the domain.
type BoundaryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ScaleFactor float64 `yaml:"scale_factor"`
	Spacing     float64 `yaml:"spacing"` // 0 = one particle diameter
}

// WCSPHConfig holds the equation of state.
type WCSPHConfig struct {
	Stiffness float64 `yaml:"stiffness"`
	Exponent  float64 `yaml:"exponent"`
}

// IISPHConfig holds pressure solver parameters.
type IISPHConfig struct {
	Omega         float64 `yaml:"omega"` // Jacobi relaxation factor
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"` // mean relative density error
}

// CollisionConfig holds obstacle parameters.
type CollisionConfig struct {
	Sphere SphereConfig `yaml:"sphere"`
}

// SphereConfig describes an optional rigid sphere.
type SphereConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Center      Vec3    `yaml:"center"`
	Radius      float64 `yaml:"radius"`
	ScaleFactor float64 `yaml:"scale_factor"`
	Restitution float64 `yaml:"restitution"`
}

// ParallelConfig controls the per-step worker pool.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // run inline below this many fluid particles
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int `yaml:"stats_window"`
	PerfCollectorWindow int `yaml:"perf_collector_window"`
	SnapshotEvery       int `yaml:"snapshot_every"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DomainMin     r3.Vec
	DomainMax     r3.Vec
	FluidMin      r3.Vec
	FluidMax      r3.Vec
	Gravity       r3.Vec
	SupportRadius float64 // 4 * radius
	Mass          float64 // density0 * (2 * radius)^dim
	NumFluid      int
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

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse merges YAML data over the embedded defaults, validates the result
// and computes derived values.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Unmarshal into same struct - only overwrites fields present in data
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// Validate checks ranges that would otherwise surface as a failed setup or a
// meaningless run. Box and count problems come back as *particles.Error.
func (c *Config) Validate() error {
	if err := particles.ValidateBox(c.Domain.Min.R3(), c.Domain.Max.R3(), c.Domain.Sim2D); err != nil {
		return fmt.Errorf("domain: %w", err)
	}
	if c.Fluid.Sample2D != c.Domain.Sim2D {
		return fmt.Errorf("fluid.sample_2d (%t) must match domain.sim_2d (%t)", c.Fluid.Sample2D, c.Domain.Sim2D)
	}
	if err := particles.ValidateBox(c.Fluid.Min.R3(), c.Fluid.Max.R3(), c.Fluid.Sample2D); err != nil {
		return fmt.Errorf("fluid: %w", err)
	}
	if err := particles.ValidateCounts(c.Fluid.Counts, c.Fluid.Sample2D); err != nil {
		return fmt.Errorf("fluid: %w", err)
	}

	switch strings.ToLower(c.Solver.Method) {
	case "wcsph", "iisph":
	default:
		return fmt.Errorf("solver.method: unknown method %q", c.Solver.Method)
	}

	switch {
	case !(c.Particle.Radius > 0):
		return fmt.Errorf("particle.radius must be positive, got %g", c.Particle.Radius)
	case !(c.Particle.Density0 > 0):
		return fmt.Errorf("particle.density0 must be positive, got %g", c.Particle.Density0)
	case !(c.Solver.DT > 0):
		return fmt.Errorf("solver.dt must be positive, got %g", c.Solver.DT)
	case c.Parallel.Workers < 0:
		return fmt.Errorf("parallel.workers must be non-negative, got %d", c.Parallel.Workers)
	case c.Telemetry.StatsWindow < 1:
		return fmt.Errorf("telemetry.stats_window must be >= 1, got %d", c.Telemetry.StatsWindow)
	case c.Telemetry.SnapshotEvery < 0:
		return fmt.Errorf("telemetry.snapshot_every must be non-negative, got %d", c.Telemetry.SnapshotEvery)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DomainMin = c.Domain.Min.R3()
	c.Derived.DomainMax = c.Domain.Max.R3()
	c.Derived.FluidMin = c.Fluid.Min.R3()
	c.Derived.FluidMax = c.Fluid.Max.R3()
	c.Derived.Gravity = c.Solver.Gravity.R3()
	c.Derived.SupportRadius = 4 * c.Particle.Radius

	d := 2 * c.Particle.Radius
	vol := d * d
	if !c.Domain.Sim2D {
		vol *= d
	}
	c.Derived.Mass = c.Particle.Density0 * vol

	n := c.Fluid.Counts
	if c.Fluid.Sample2D {
		n[2] = 1
	}
	c.Derived.NumFluid = n[0] * n[1] * n[2]
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
