// Package sph implements smoothed particle hydrodynamics solvers on top of
// the particles package: a shared Base with the kernel, density and force
// terms, and the WCSPH and IISPH stepping strategies.
package sph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
)

// Phase names reported to a PhaseTimer, in step order.
const (
	PhaseNeighbors     = "neighbors"
	PhaseDensity       = "density"
	PhaseNonPressure   = "non_pressure"
	PhasePressureSolve = "pressure_solve"
	PhasePressureForce = "pressure_force"
	PhaseIntegrate     = "integrate"
)

// Phases lists every phase name in step order.
func Phases() []string {
	return []string{
		PhaseNeighbors,
		PhaseDensity,
		PhaseNonPressure,
		PhasePressureSolve,
		PhasePressureForce,
		PhaseIntegrate,
	}
}

// PhaseTimer receives phase boundaries during a step. telemetry.PerfCollector
// satisfies it.
type PhaseTimer interface {
	StartPhase(name string)
}

// Base holds the state and terms shared by every solver.
type Base struct {
	ps     *particles.System
	kernel CubicSpline

	dt              float64
	gravity         r3.Vec
	viscosity       float64
	wallRestitution float64
	sphere          *SphereObstacle

	boxMin, boxMax r3.Vec
	dim            float64

	pool  *workerPool
	timer PhaseTimer
}

func newBase(positions []r3.Vec, boxMin, boxMax r3.Vec, p Params) (*Base, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("sph params: %w", err)
	}
	sim2D := p.Particles.Sim2D
	if err := particles.ValidateBox(boxMin, boxMax, sim2D); err != nil {
		return nil, err
	}

	boundary := p.BoundaryPositions
	if boundary == nil && p.Boundary {
		var err error
		boundary, err = boundaryShell(boxMin, boxMax, p)
		if err != nil {
			return nil, fmt.Errorf("sample boundary: %w", err)
		}
	}
	if sim2D {
		plane := 0.5 * (boxMin.Z + boxMax.Z)
		positions = projectZ(positions, plane)
		boundary = projectZ(boundary, plane)
	}

	ps, err := particles.New(positions, boundary, p.Particles)
	if err != nil {
		return nil, err
	}
	if err := ps.InitNeighborSearch(boxMin, boxMax); err != nil {
		return nil, err
	}

	b := &Base{
		ps:              ps,
		kernel:          NewCubicSpline(ps.H(), sim2D),
		dt:              p.DT,
		gravity:         p.Gravity,
		viscosity:       p.Viscosity,
		wallRestitution: p.WallRestitution,
		sphere:          p.Sphere,
		boxMin:          boxMin,
		boxMax:          boxMax,
		dim:             3,
		pool:            newWorkerPool(p.Workers, p.ParallelThreshold),
	}
	if sim2D {
		b.dim = 2
		b.gravity = planarGravity(b.gravity)
	}
	return b, nil
}

// projectZ returns a copy of xs moved onto the plane z = plane. Every 2-D
// particle lives in the same plane so that neighbor distances are planar.
func projectZ(xs []r3.Vec, plane float64) []r3.Vec {
	if xs == nil {
		return nil
	}
	out := make([]r3.Vec, len(xs))
	for i, x := range xs {
		x.Z = plane
		out[i] = x
	}
	return out
}

// planarGravity maps g into the xy plane. A purely vertical g (the 3-D
// default) acts along y, otherwise its z component is dropped.
func planarGravity(g r3.Vec) r3.Vec {
	if g.X == 0 && g.Y == 0 {
		return r3.Vec{Y: g.Z}
	}
	return r3.Vec{X: g.X, Y: g.Y}
}

// boundaryShell samples one layer of static particles around the box with a
// spacing of about one particle diameter.
func boundaryShell(boxMin, boxMax r3.Vec, p Params) ([]r3.Vec, error) {
	spacing := p.BoundarySpacing
	if spacing <= 0 {
		spacing = 2 * p.Particles.Radius
	}
	ext := r3.Sub(boxMax, boxMin)
	n := [3]int{
		shellCount(ext.X, spacing),
		shellCount(ext.Y, spacing),
		shellCount(ext.Z, spacing),
	}
	scale := p.BoundaryScale
	if scale <= 0 {
		scale = 1
	}
	return particles.SampleAroundBox(boxMin, boxMax, n, p.Particles.Sim2D, scale)
}

func shellCount(extent, spacing float64) int {
	return max(int(math.Round(extent/spacing))+1, 2)
}

// System exposes the underlying particle system.
func (b *Base) System() *particles.System { return b.ps }

func (b *Base) DT() float64 { return b.dt }
func (b *Base) Gravity() r3.Vec { return b.gravity }

// SetGravity replaces gravity. In 2-D it is mapped into the plane the same
// way as at construction.
func (b *Base) SetGravity(g r3.Vec) {
	if b.dim == 2 {
		g = planarGravity(g)
	}
	b.gravity = g
}

func (b *Base) BoxMin() r3.Vec { return b.boxMin }
func (b *Base) BoxMax() r3.Vec { return b.boxMax }

// Positions and Velocities copy the fluid state.
func (b *Base) Positions() []r3.Vec { return b.ps.FluidPositions() }
func (b *Base) Velocities() []r3.Vec { return b.ps.FluidVelocities() }

// SetDT changes the time step. Non-positive values are rejected.
func (b *Base) SetDT(dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("dt must be positive, got %g", dt)
	}
	b.dt = dt
	return nil
}

// SetPhaseTimer installs a timer notified at each phase boundary. Nil
// disables timing.
func (b *Base) SetPhaseTimer(t PhaseTimer) { b.timer = t }

// Close stops the worker goroutines. A later step starts them again.
func (b *Base) Close() { b.pool.stop() }

func (b *Base) startPhase(name string) {
	if b.timer != nil {
		b.timer.StartPhase(name)
	}
}

// forFluid runs fn over fluid particle ranges on the worker pool.
func (b *Base) forFluid(fn func(i0, i1 int)) {
	b.pool.run(b.ps.NumFluid(), fn)
}

// neighborSearch rebuilds the grid and every fluid neighbor list. Boundary
// particles never move and need no lists of their own.
func (b *Base) neighborSearch() {
	b.startPhase(PhaseNeighbors)
	b.ps.AssignParticlesToCells()
	b.forFluid(b.ps.SearchNeighborsRange)
}

// density sums the kernel over particle i and its neighbors. Boundary
// neighbors contribute as if they were fluid at rest density.
func (b *Base) density(i int) float64 {
	ps := b.ps.Particles()
	p := &ps[i]
	m := b.ps.Mass()
	rho := m * b.kernel.W0()
	for _, j := range p.Neighbors {
		rho += m * b.kernel.W(r3.Norm(r3.Sub(p.X, ps[j].X)))
	}
	return rho
}

func (b *Base) computeDensities() {
	b.startPhase(PhaseDensity)
	ps := b.ps.Particles()
	b.forFluid(func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			ps[i].Density = b.density(i)
		}
	})
}

// viscosityAccel is the artificial viscosity acceleration on i. Boundary
// particles are at rest and take the density of i.
func (b *Base) viscosityAccel(i int) r3.Vec {
	if b.viscosity == 0 {
		return r3.Vec{}
	}
	ps := b.ps.Particles()
	p := &ps[i]
	m := b.ps.Mass()
	eps := 0.01 * b.kernel.H() * b.kernel.H()

	var a r3.Vec
	for _, j := range p.Neighbors {
		q := &ps[j]
		xij := r3.Sub(p.X, q.X)
		vij := p.V
		rhoj := p.Density
		if !q.IsBoundary() {
			vij = r3.Sub(p.V, q.V)
			rhoj = q.Density
		}
		s := m / rhoj * r3.Dot(vij, xij) / (r3.Norm2(xij) + eps)
		a = r3.Add(a, r3.Scale(s, b.kernel.Grad(xij)))
	}
	return r3.Scale(2*(b.dim+2)*b.viscosity, a)
}

// pressureAccel is the symmetric pressure acceleration on i. Boundary
// neighbors mirror the pressure and density of i.
func (b *Base) pressureAccel(i int) r3.Vec {
	ps := b.ps.Particles()
	p := &ps[i]
	m := b.ps.Mass()
	pi := p.Pressure / (p.Density * p.Density)

	var a r3.Vec
	for _, j := range p.Neighbors {
		q := &ps[j]
		pj := pi
		if !q.IsBoundary() {
			pj = q.Pressure / (q.Density * q.Density)
		}
		a = r3.Sub(a, r3.Scale(m*(pi+pj), b.kernel.Grad(r3.Sub(p.X, q.X))))
	}
	return a
}

// integrate advances fluid particles with symplectic Euler from their
// accumulated acceleration, then resolves the obstacle and the domain walls.
func (b *Base) integrate() {
	b.startPhase(PhaseIntegrate)
	ps := b.ps.Particles()
	dt := b.dt
	b.forFluid(func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			p := &ps[i]
			if b.dim == 2 {
				p.A.Z = 0
			}
			p.V = r3.Add(p.V, r3.Scale(dt, p.A))
			p.X = r3.Add(p.X, r3.Scale(dt, p.V))
			if b.sphere != nil {
				b.sphere.resolve(p)
			}
			b.resolveWalls(p)
		}
	})
}

// resolveWalls clamps p into the domain box and reflects the outward
// velocity component scaled by the wall restitution.
func (b *Base) resolveWalls(p *particles.Particle) {
	e := b.wallRestitution
	clampAxis(&p.X.X, &p.V.X, b.boxMin.X, b.boxMax.X, e)
	clampAxis(&p.X.Y, &p.V.Y, b.boxMin.Y, b.boxMax.Y, e)
	if b.dim == 3 {
		clampAxis(&p.X.Z, &p.V.Z, b.boxMin.Z, b.boxMax.Z, e)
	}
}

func clampAxis(x, v *float64, lo, hi, e float64) {
	switch {
	case *x < lo:
		*x = lo
		if *v < 0 {
			*v = -e * *v
		}
	case *x > hi:
		*x = hi
		if *v > 0 {
			*v = -e * *v
		}
	}
}

// densityStats returns the fluid density range and the mean relative
// compression.
func (b *Base) densityStats() (lo, hi, meanErr float64) {
	ps := b.ps.Particles()
	n := b.ps.NumFluid()
	rho0 := b.ps.Density0()
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		rho := ps[i].Density
		lo = math.Min(lo, rho)
		hi = math.Max(hi, rho)
		meanErr += math.Max(0, rho/rho0-1)
	}
	return lo, hi, meanErr / float64(n)
}

func (b *Base) report(m Method) Report {
	lo, hi, e := b.densityStats()
	return Report{
		Method:       m,
		DensityError: e,
		Converged:    true,
		MinDensity:   lo,
		MaxDensity:   hi,
		Finite:       b.ps.Finite(),
	}
}
