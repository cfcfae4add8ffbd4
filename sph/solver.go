package sph

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
)

// Solver is the stepping strategy chosen once at construction.
type Solver interface {
	Method() Method
	Step() Report

	System() *particles.System
	Positions() []r3.Vec
	Velocities() []r3.Vec
	DT() float64
	SetDT(dt float64) error
	Gravity() r3.Vec
	SetGravity(g r3.Vec)
	SetPhaseTimer(t PhaseTimer)
	Close()
}

var (
	_ Solver = (*WCSPH)(nil)
	_ Solver = (*IISPH)(nil)
)

// New builds the solver for method.
func New(method Method, positions []r3.Vec, boxMin, boxMax r3.Vec, p Params) (Solver, error) {
	var (
		s   Solver
		err error
	)
	switch method {
	case MethodWCSPH:
		s, err = NewWCSPH(positions, boxMin, boxMax, p)
	case MethodIISPH:
		s, err = NewIISPH(positions, boxMin, boxMax, p)
	default:
		return nil, fmt.Errorf("unknown solver method %v", method)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
