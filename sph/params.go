package sph

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
)

// Method selects the stepping strategy.
type Method uint8

const (
	MethodWCSPH Method = iota
	MethodIISPH
)

func (m Method) String() string {
	switch m {
	case MethodWCSPH:
		return "wcsph"
	case MethodIISPH:
		return "iisph"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// ParseMethod accepts "wcsph" or "iisph", case-insensitive.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wcsph", "":
		return MethodWCSPH, nil
	case "iisph":
		return MethodIISPH, nil
	default:
		return 0, fmt.Errorf("unknown solver method %q", s)
	}
}

// Params configures a solver and the particle system it builds.
type Params struct {
	Particles particles.Params

	DT              float64
	Gravity         r3.Vec
	Viscosity       float64 // kinematic viscosity of the artificial viscosity term
	WallRestitution float64 // velocity kept when bouncing off the domain walls

	// Boundary shell sampled around the simulation box. BoundaryPositions,
	// when non-nil, replaces the shell.
	Boundary          bool
	BoundaryScale     float64
	BoundarySpacing   float64 // 0 means one particle diameter
	BoundaryPositions []r3.Vec

	// WCSPH equation of state.
	Stiffness float64
	Exponent  float64

	// IISPH pressure solve.
	Omega         float64
	MaxIterations int
	Tolerance     float64 // mean relative density error

	Sphere *SphereObstacle

	Workers           int // 0 = GOMAXPROCS
	ParallelThreshold int // 0 = default
}

// DefaultParams mirrors config/defaults.yaml.
func DefaultParams() Params {
	return Params{
		Particles:       particles.DefaultParams(),
		DT:              0.01,
		Gravity:         r3.Vec{Z: -9.8},
		Viscosity:       0.03,
		WallRestitution: 0.3,
		Boundary:        true,
		BoundaryScale:   1,
		Stiffness:       1000,
		Exponent:        7,
		Omega:           0.5,
		MaxIterations:   100,
		Tolerance:       0.01,
	}
}

// Validate reports parameter errors that would make a step meaningless.
func (p Params) Validate() error {
	switch {
	case !(p.DT > 0):
		return fmt.Errorf("dt must be positive, got %g", p.DT)
	case p.Viscosity < 0:
		return fmt.Errorf("viscosity must be non-negative, got %g", p.Viscosity)
	case p.WallRestitution < 0 || p.WallRestitution > 1:
		return fmt.Errorf("wall restitution must be in [0, 1], got %g", p.WallRestitution)
	case !(p.Stiffness > 0):
		return fmt.Errorf("stiffness must be positive, got %g", p.Stiffness)
	case !(p.Exponent >= 1):
		return fmt.Errorf("eos exponent must be >= 1, got %g", p.Exponent)
	case !(p.Omega > 0) || p.Omega > 1:
		return fmt.Errorf("relaxation factor must be in (0, 1], got %g", p.Omega)
	case p.MaxIterations < 1:
		return fmt.Errorf("max iterations must be >= 1, got %d", p.MaxIterations)
	case !(p.Tolerance > 0):
		return fmt.Errorf("tolerance must be positive, got %g", p.Tolerance)
	}
	if p.Sphere != nil {
		if err := p.Sphere.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Report is the per-step quality signal. Non-convergence and non-finite
// values are reported here rather than returned as errors.
type Report struct {
	Method       Method
	Iterations   int     // pressure solve iterations, 0 for WCSPH
	DensityError float64 // mean of max(0, rho/rho0 - 1) over fluid particles
	Converged    bool
	MinDensity   float64
	MaxDensity   float64
	Finite       bool
}
