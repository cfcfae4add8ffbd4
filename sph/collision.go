package sph

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
)

// SphereObstacle is a rigid sphere fluid particles cannot enter.
type SphereObstacle struct {
	Center      r3.Vec
	Radius      float64
	ScaleFactor float64 // contact radius = Radius * ScaleFactor
	Restitution float64 // 0 removes the inward normal velocity, 1 reflects it
}

func (o *SphereObstacle) validate() error {
	if !(o.Radius > 0) {
		return fmt.Errorf("sphere radius must be positive, got %g", o.Radius)
	}
	if o.ScaleFactor < 0 {
		return fmt.Errorf("sphere scale factor must be non-negative, got %g", o.ScaleFactor)
	}
	if o.Restitution < 0 || o.Restitution > 1 {
		return fmt.Errorf("sphere restitution must be in [0, 1], got %g", o.Restitution)
	}
	return nil
}

func (o *SphereObstacle) contactRadius() float64 {
	if o.ScaleFactor == 0 {
		return o.Radius
	}
	return o.Radius * o.ScaleFactor
}

// resolve pushes a fluid particle inside the sphere back onto its surface.
// Boundary particles are left alone.
func (o *SphereObstacle) resolve(p *particles.Particle) bool {
	if p.IsBoundary() {
		return false
	}
	r := o.contactRadius()
	d := r3.Sub(p.X, o.Center)
	dist := r3.Norm(d)
	if dist >= r {
		return false
	}

	var n r3.Vec
	if dist > 1e-12 {
		n = r3.Scale(1/dist, d)
	} else {
		// Dead centre: pick any direction, up is as good as any.
		n = r3.Vec{Z: 1}
	}
	p.X = r3.Add(o.Center, r3.Scale(r, n))

	vn := r3.Dot(p.V, n)
	if vn < 0 {
		p.V = r3.Sub(p.V, r3.Scale((1+o.Restitution)*vn, n))
	}
	return true
}
