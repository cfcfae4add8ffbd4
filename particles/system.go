package particles

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Default physical constants.
const (
	DefaultRadius   = 0.025
	DefaultDensity0 = 1000.0
)

// Params holds the constants shared by every particle of a system.
type Params struct {
	Radius   float64 // particle radius; support radius is 4x this
	Density0 float64 // rest density
	Sim2D    bool
}

// DefaultParams returns water-like defaults.
func DefaultParams() Params {
	return Params{Radius: DefaultRadius, Density0: DefaultDensity0}
}

// System owns all particles of one simulation. Fluid particles occupy
// indices [0, NumFluid()) and boundary particles follow them.
type System struct {
	particles []Particle

	radius   float64
	h        float64
	density0 float64
	volume   float64
	mass     float64
	sim2D    bool

	numFluid    int
	numBoundary int

	grid grid
}

// New builds a system from fluid and boundary positions. Velocities start at
// zero. The neighbor-search domain must be set with InitNeighborSearch before
// the first AssignParticlesToCells.
func New(fluid, boundary []r3.Vec, p Params) (*System, error) {
	if len(fluid) == 0 {
		return nil, errorf(InvalidParticleCount, "no fluid particles")
	}
	if !(p.Radius > 0) || !(p.Density0 > 0) {
		return nil, fmt.Errorf("radius %g and density0 %g must be positive", p.Radius, p.Density0)
	}

	s := &System{
		radius:      p.Radius,
		h:           4 * p.Radius,
		density0:    p.Density0,
		sim2D:       p.Sim2D,
		numFluid:    len(fluid),
		numBoundary: len(boundary),
	}

	// One particle per lattice cell of edge 2r.
	diameter := 2 * p.Radius
	if p.Sim2D {
		s.volume = diameter * diameter
	} else {
		s.volume = diameter * diameter * diameter
	}
	s.mass = s.density0 * s.volume

	s.particles = make([]Particle, 0, len(fluid)+len(boundary))
	for _, x := range fluid {
		s.add(x, Fluid)
	}
	for _, x := range boundary {
		s.add(x, Boundary)
	}
	return s, nil
}

func (s *System) add(x r3.Vec, t Type) {
	s.particles = append(s.particles, Particle{
		Index:   len(s.particles),
		X:       x,
		Density: s.density0,
		Mass:    s.mass,
		Type:    t,
	})
}

// Particles returns the backing slice. Callers outside a solver step must
// treat it as read-only.
func (s *System) Particles() []Particle { return s.particles }

// Particle returns a pointer to particle i.
func (s *System) Particle(i int) *Particle { return &s.particles[i] }

// Len returns the total particle count.
func (s *System) Len() int { return len(s.particles) }

func (s *System) NumFluid() int { return s.numFluid }
func (s *System) NumBoundary() int { return s.numBoundary }

// H returns the support radius.
func (s *System) H() float64 { return s.h }
func (s *System) Radius() float64 { return s.radius }
func (s *System) Density0() float64 { return s.density0 }
func (s *System) Volume() float64 { return s.volume }
func (s *System) Mass() float64 { return s.mass }
func (s *System) Sim2D() bool { return s.sim2D }

// BoxMin and BoxMax return the neighbor-search domain.
func (s *System) BoxMin() r3.Vec { return s.grid.min }
func (s *System) BoxMax() r3.Vec { return s.grid.max }

// FluidPositions copies the current fluid positions.
func (s *System) FluidPositions() []r3.Vec {
	out := make([]r3.Vec, s.numFluid)
	for i := range out {
		out[i] = s.particles[i].X
	}
	return out
}

// FluidVelocities copies the current fluid velocities.
func (s *System) FluidVelocities() []r3.Vec {
	out := make([]r3.Vec, s.numFluid)
	for i := range out {
		out[i] = s.particles[i].V
	}
	return out
}

// ValidateBox checks that max > min on every axis (x and y only in 2-D).
func ValidateBox(min, max r3.Vec, sim2D bool) error {
	if !(max.X > min.X) || !(max.Y > min.Y) || (!sim2D && !(max.Z > min.Z)) {
		return errorf(InvalidBox, "min %v max %v", min, max)
	}
	return nil
}

// ValidateCounts checks that every per-axis count is positive.
func ValidateCounts(n [3]int, sim2D bool) error {
	if n[0] <= 0 || n[1] <= 0 || (!sim2D && n[2] <= 0) {
		return errorf(InvalidParticleCount, "per-axis counts %v", n)
	}
	return nil
}

// Finite reports whether every fluid position and velocity is free of NaN
// and Inf. An unstable dt/stiffness pairing shows up here.
func (s *System) Finite() bool {
	for i := 0; i < s.numFluid; i++ {
		if !isFinite(s.particles[i].X) || !isFinite(s.particles[i].V) {
			return false
		}
	}
	return true
}

func isFinite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}
