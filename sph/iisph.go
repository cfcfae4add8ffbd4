package sph

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// minIterations is the fewest relaxed Jacobi sweeps per step, so that the
// error estimate reflects at least one update of every neighbor.
const minIterations = 2

// IISPH is the implicit incompressible solver: each step solves a pressure
// Poisson equation by relaxed Jacobi iteration so the predicted density
// matches the rest density.
type IISPH struct {
	*Base

	omega         float64
	maxIterations int
	tolerance     float64

	// Per fluid particle scratch, reused across steps.
	vAdv     []r3.Vec
	dii      []r3.Vec
	sumDijPj []r3.Vec
	aii      []float64
	rhoAdv   []float64
	pNext    []float64
	errBuf   []float64
}

// NewIISPH builds an implicit incompressible solver for the given fluid
// positions inside [boxMin, boxMax].
func NewIISPH(positions []r3.Vec, boxMin, boxMax r3.Vec, p Params) (*IISPH, error) {
	b, err := newBase(positions, boxMin, boxMax, p)
	if err != nil {
		return nil, err
	}
	n := b.ps.NumFluid()
	return &IISPH{
		Base:          b,
		omega:         p.Omega,
		maxIterations: p.MaxIterations,
		tolerance:     p.Tolerance,
		vAdv:          make([]r3.Vec, n),
		dii:           make([]r3.Vec, n),
		sumDijPj:      make([]r3.Vec, n),
		aii:           make([]float64, n),
		rhoAdv:        make([]float64, n),
		pNext:         make([]float64, n),
		errBuf:        make([]float64, n),
	}, nil
}

func (s *IISPH) Method() Method { return MethodIISPH }

// Step advances the simulation by one time step.
func (s *IISPH) Step() Report {
	s.neighborSearch()
	s.computeDensities()

	s.startPhase(PhaseNonPressure)
	s.forFluid(s.predictAdvection)
	s.forFluid(s.computeAdvectedDensity)

	s.startPhase(PhasePressureSolve)
	iters, densityErr := s.solvePressure()

	s.startPhase(PhasePressureForce)
	ps := s.ps.Particles()
	s.forFluid(func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			ps[i].A = r3.Add(ps[i].A, s.pressureAccel(i))
		}
	})

	s.integrate()

	rep := s.report(MethodIISPH)
	rep.Iterations = iters
	rep.DensityError = densityErr
	rep.Converged = densityErr < s.tolerance
	return rep
}

// predictAdvection stores the non-pressure acceleration in A, the advected
// velocity and the d_ii displacement coefficient, and warm starts pressure.
func (s *IISPH) predictAdvection(i0, i1 int) {
	ps := s.ps.Particles()
	m := s.ps.Mass()
	dt2 := s.dt * s.dt
	for i := i0; i < i1; i++ {
		p := &ps[i]
		p.A = r3.Add(s.gravity, s.viscosityAccel(i))
		s.vAdv[i] = r3.Add(p.V, r3.Scale(s.dt, p.A))

		// A boundary neighbor mirrors p_i, doubling its share.
		var d r3.Vec
		for _, j := range p.Neighbors {
			g := s.kernel.Grad(r3.Sub(p.X, ps[j].X))
			if ps[j].IsBoundary() {
				g = r3.Scale(2, g)
			}
			d = r3.Add(d, g)
		}
		s.dii[i] = r3.Scale(-dt2*m/(p.Density*p.Density), d)

		p.Pressure *= 0.5
	}
}

// computeAdvectedDensity predicts the density from advected velocities and
// the diagonal a_ii of the pressure system.
func (s *IISPH) computeAdvectedDensity(i0, i1 int) {
	ps := s.ps.Particles()
	m := s.ps.Mass()
	dt2 := s.dt * s.dt
	for i := i0; i < i1; i++ {
		p := &ps[i]
		dji := dt2 * m / (p.Density * p.Density)

		var div, aii float64
		for _, j := range p.Neighbors {
			g := s.kernel.Grad(r3.Sub(p.X, ps[j].X))
			if ps[j].IsBoundary() {
				div += m * r3.Dot(s.vAdv[i], g)
				aii += m * r3.Dot(s.dii[i], g)
				continue
			}
			div += m * r3.Dot(r3.Sub(s.vAdv[i], s.vAdv[j]), g)
			aii += m * r3.Dot(r3.Sub(s.dii[i], r3.Scale(dji, g)), g)
		}
		s.rhoAdv[i] = p.Density + s.dt*div
		s.aii[i] = aii
	}
}

// solvePressure runs relaxed Jacobi sweeps until the mean predicted
// compression drops below the tolerance or the iteration cap is hit. It
// returns the sweeps done and the last mean error.
func (s *IISPH) solvePressure() (int, float64) {
	ps := s.ps.Particles()
	n := s.ps.NumFluid()
	rho0 := s.ps.Density0()

	var errMean float64
	iters := 0
	for iters < s.maxIterations {
		s.forFluid(s.accumulateDijPj)
		s.forFluid(s.relaxPressure)

		for i := 0; i < n; i++ {
			ps[i].Pressure = s.pNext[i]
		}
		// Serial reduction keeps the result independent of worker count.
		errMean = floats.Sum(s.errBuf) / float64(n) / rho0
		iters++

		if iters >= minIterations && errMean < s.tolerance {
			break
		}
	}
	return iters, errMean
}

// accumulateDijPj computes sum_j d_ij p_j over fluid neighbors.
func (s *IISPH) accumulateDijPj(i0, i1 int) {
	ps := s.ps.Particles()
	m := s.ps.Mass()
	dt2 := s.dt * s.dt
	for i := i0; i < i1; i++ {
		p := &ps[i]
		var acc r3.Vec
		for _, j := range p.Neighbors {
			q := &ps[j]
			if q.IsBoundary() {
				continue
			}
			g := s.kernel.Grad(r3.Sub(p.X, q.X))
			acc = r3.Add(acc, r3.Scale(q.Pressure/(q.Density*q.Density), g))
		}
		s.sumDijPj[i] = r3.Scale(-dt2*m, acc)
	}
}

// relaxPressure writes the next pressure iterate and the predicted
// compression of each particle into the scratch buffers.
func (s *IISPH) relaxPressure(i0, i1 int) {
	ps := s.ps.Particles()
	m := s.ps.Mass()
	rho0 := s.ps.Density0()
	dt2 := s.dt * s.dt
	for i := i0; i < i1; i++ {
		p := &ps[i]
		dji := dt2 * m / (p.Density * p.Density)

		var sum float64
		for _, j := range p.Neighbors {
			q := &ps[j]
			g := s.kernel.Grad(r3.Sub(p.X, q.X))
			if q.IsBoundary() {
				sum += m * r3.Dot(s.sumDijPj[i], g)
				continue
			}
			// sum_k d_jk p_k without the k = i term.
			dj := r3.Sub(s.sumDijPj[j], r3.Scale(dji*p.Pressure, g))
			t := r3.Sub(r3.Sub(s.sumDijPj[i], r3.Scale(q.Pressure, s.dii[j])), dj)
			sum += m * r3.Dot(t, g)
		}

		pi := 0.0
		if s.aii[i] < -1e-12 {
			pi = (1-s.omega)*p.Pressure + s.omega/s.aii[i]*(rho0-s.rhoAdv[i]-sum)
			pi = math.Max(0, pi)
		}
		s.pNext[i] = pi

		predicted := s.rhoAdv[i] + s.aii[i]*pi + sum
		s.errBuf[i] = math.Max(0, predicted-rho0)
	}
}
