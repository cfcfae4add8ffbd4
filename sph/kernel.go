package sph

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CubicSpline is the Monaghan cubic B-spline written with compact support h
// (W vanishes for r >= h). For a lattice of spacing h/2 the kernel sum is
// within a fraction of a percent of 1/volume.
type CubicSpline struct {
	h  float64
	k  float64 // value normalization
	l  float64 // gradient normalization
	w0 float64
}

// NewCubicSpline builds the kernel for support radius h in 3-D or 2-D.
func NewCubicSpline(h float64, sim2D bool) CubicSpline {
	c := CubicSpline{h: h}
	if sim2D {
		h2 := h * h
		c.k = 40 / (7 * math.Pi * h2)
		c.l = 240 / (7 * math.Pi * h2)
	} else {
		h3 := h * h * h
		c.k = 8 / (math.Pi * h3)
		c.l = 48 / (math.Pi * h3)
	}
	c.w0 = c.W(0)
	return c
}

// H returns the support radius.
func (c CubicSpline) H() float64 { return c.h }

// W0 returns W(0), the self contribution.
func (c CubicSpline) W0() float64 { return c.w0 }

// W evaluates the kernel at distance r.
func (c CubicSpline) W(r float64) float64 {
	q := r / c.h
	switch {
	case q <= 0.5:
		q2 := q * q
		return c.k * (6*q2*q - 6*q2 + 1)
	case q <= 1:
		f := 1 - q
		return c.k * 2 * f * f * f
	default:
		return 0
	}
}

// Grad evaluates the kernel gradient with respect to x_i for r = x_i - x_j.
func (c CubicSpline) Grad(r r3.Vec) r3.Vec {
	rl := r3.Norm(r)
	q := rl / c.h
	if rl <= 1e-9 || q > 1 {
		return r3.Vec{}
	}
	gradq := r3.Scale(1/(rl*c.h), r)
	if q <= 0.5 {
		return r3.Scale(c.l*q*(3*q-2), gradq)
	}
	f := 1 - q
	return r3.Scale(-c.l*f*f, gradq)
}
