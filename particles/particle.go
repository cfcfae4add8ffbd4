// Package particles holds SPH particle state, the uniform neighbor-search
// grid and the initial-condition samplers.
package particles

import "gonum.org/v1/gonum/spatial/r3"

// Type tags a particle as moving fluid or static boundary.
type Type uint8

const (
	Fluid Type = iota
	Boundary
	// AllTypes selects every particle in SearchNeighbors. No particle carries it.
	AllTypes
)

func (t Type) String() string {
	switch t {
	case Fluid:
		return "fluid"
	case Boundary:
		return "boundary"
	case AllTypes:
		return "all"
	default:
		return "unknown"
	}
}

// Particle is the per-particle physical state.
// Neighbors holds indices into the owning System's particle slice and is
// rebuilt every step.
type Particle struct {
	Index    int
	X        r3.Vec
	V        r3.Vec
	A        r3.Vec
	Density  float64
	Pressure float64
	Mass     float64
	Type     Type

	Neighbors []int
}

// IsBoundary reports whether the particle is static geometry.
func (p *Particle) IsBoundary() bool {
	return p.Type == Boundary
}

func (t Type) matches(pt Type) bool {
	return t == AllTypes || t == pt
}
