package sph

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WCSPH is the weakly compressible solver: pressure follows directly from
// density through a stiff equation of state.
type WCSPH struct {
	*Base

	stiffness float64
	exponent  float64
}

// NewWCSPH builds a weakly compressible solver for the given fluid positions
// inside [boxMin, boxMax].
func NewWCSPH(positions []r3.Vec, boxMin, boxMax r3.Vec, p Params) (*WCSPH, error) {
	b, err := newBase(positions, boxMin, boxMax, p)
	if err != nil {
		return nil, err
	}
	return &WCSPH{Base: b, stiffness: p.Stiffness, exponent: p.Exponent}, nil
}

func (s *WCSPH) Method() Method { return MethodWCSPH }

// pressure evaluates the Tait equation of state, clamped at zero so that
// under-dense particles never pull.
func (s *WCSPH) pressure(rho float64) float64 {
	rho0 := s.ps.Density0()
	return math.Max(0, s.stiffness*(math.Pow(rho/rho0, s.exponent)-1))
}

// Step advances the simulation by one time step.
func (s *WCSPH) Step() Report {
	s.neighborSearch()

	s.startPhase(PhaseDensity)
	ps := s.ps.Particles()
	s.forFluid(func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			ps[i].Density = s.density(i)
			ps[i].Pressure = s.pressure(ps[i].Density)
		}
	})

	s.startPhase(PhasePressureForce)
	s.forFluid(func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			a := r3.Add(s.gravity, s.viscosityAccel(i))
			ps[i].A = r3.Add(a, s.pressureAccel(i))
		}
	})

	s.integrate()
	return s.report(MethodWCSPH)
}
