package sim

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/particles"
	"github.com/pthm-cable/sphfluid/sph"
)

// Setup is everything needed to construct a solver from scratch.
type Setup struct {
	Method sph.Method
	Params sph.Params
	Fluid  []r3.Vec
	BoxMin r3.Vec
	BoxMax r3.Vec
}

// SetupFromConfig validates cfg, samples the initial fluid block and maps the
// solver parameters. Box and count errors come back as *particles.Error and
// nothing is constructed.
func SetupFromConfig(cfg *config.Config) (Setup, error) {
	method, err := sph.ParseMethod(cfg.Solver.Method)
	if err != nil {
		return Setup{}, err
	}

	boxMin, boxMax := cfg.Domain.Min.R3(), cfg.Domain.Max.R3()
	if err := particles.ValidateBox(boxMin, boxMax, cfg.Domain.Sim2D); err != nil {
		return Setup{}, err
	}

	fluid, err := particles.SampleInBox(cfg.Fluid.Min.R3(), cfg.Fluid.Max.R3(), cfg.Fluid.Counts, cfg.Fluid.Sample2D)
	if err != nil {
		return Setup{}, err
	}

	return Setup{
		Method: method,
		Params: ParamsFromConfig(cfg),
		Fluid:  fluid,
		BoxMin: boxMin,
		BoxMax: boxMax,
	}, nil
}

// ParamsFromConfig maps configuration sections onto solver parameters.
func ParamsFromConfig(cfg *config.Config) sph.Params {
	p := sph.Params{
		Particles: particles.Params{
			Radius:   cfg.Particle.Radius,
			Density0: cfg.Particle.Density0,
			Sim2D:    cfg.Domain.Sim2D,
		},
		DT:                cfg.Solver.DT,
		Gravity:           cfg.Solver.Gravity.R3(),
		Viscosity:         cfg.Solver.Viscosity,
		WallRestitution:   cfg.Solver.WallRestitution,
		Boundary:          cfg.Boundary.Enabled,
		BoundaryScale:     cfg.Boundary.ScaleFactor,
		BoundarySpacing:   cfg.Boundary.Spacing,
		Stiffness:         cfg.WCSPH.Stiffness,
		Exponent:          cfg.WCSPH.Exponent,
		Omega:             cfg.IISPH.Omega,
		MaxIterations:     cfg.IISPH.MaxIterations,
		Tolerance:         cfg.IISPH.Tolerance,
		Workers:           cfg.Parallel.Workers,
		ParallelThreshold: cfg.Parallel.Threshold,
	}
	if s := cfg.Collision.Sphere; s.Enabled {
		p.Sphere = &sph.SphereObstacle{
			Center:      s.Center.R3(),
			Radius:      s.Radius,
			ScaleFactor: s.ScaleFactor,
			Restitution: s.Restitution,
		}
	}
	return p
}
