package telemetry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
	"github.com/pthm-cable/sphfluid/sph"
)

// Collector accumulates step reports within frame windows and produces
// WindowStats.
type Collector struct {
	windowFrames int

	// Current window tracking
	windowStartFrame int

	// Counters for current window
	steps         int
	iterationsSum int
	iterationsMax int
	errorSum      float64
	errorMax      float64
	notConverged  int
	nonFinite     int
	method        sph.Method
}

// NewCollector creates a new stats collector flushing every windowFrames
// frames.
func NewCollector(windowFrames int) *Collector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &Collector{windowFrames: windowFrames}
}

// Reset starts a new window at frame, dropping anything accumulated.
func (c *Collector) Reset(frame int) {
	*c = Collector{windowFrames: c.windowFrames, windowStartFrame: frame}
}

// RecordStep folds one step report into the current window.
func (c *Collector) RecordStep(r sph.Report) {
	c.method = r.Method
	c.steps++
	c.iterationsSum += r.Iterations
	c.iterationsMax = max(c.iterationsMax, r.Iterations)
	c.errorSum += r.DensityError
	c.errorMax = math.Max(c.errorMax, r.DensityError)
	if !r.Converged {
		c.notConverged++
	}
	if !r.Finite {
		c.nonFinite++
	}
}

// ShouldFlush returns true if enough frames have passed to flush the window.
func (c *Collector) ShouldFlush(frame int) bool {
	return frame-c.windowStartFrame >= c.windowFrames
}

// Flush produces a WindowStats from the accumulated reports and the current
// fluid state, then resets counters for the next window.
func (c *Collector) Flush(frame int, simTime float64, ps *particles.System) WindowStats {
	stats := WindowStats{
		WindowStartFrame: c.windowStartFrame,
		WindowEndFrame:   frame,
		SimTimeSec:       simTime,
		Method:           c.method.String(),
		Steps:            c.steps,
		IterationsMax:    c.iterationsMax,
		DensityErrorMax:  c.errorMax,
		NotConverged:     c.notConverged,
		NonFinite:        c.nonFinite,
	}
	if c.steps > 0 {
		stats.IterationsMean = float64(c.iterationsSum) / float64(c.steps)
		stats.DensityErrorMean = c.errorSum / float64(c.steps)
	}
	if ps != nil {
		fillFluidStats(&stats, ps)
	}

	c.Reset(frame)
	return stats
}

func fillFluidStats(s *WindowStats, ps *particles.System) {
	n := ps.NumFluid()
	s.FluidCount = n

	fluid := ps.Particles()[:n]
	rho0 := ps.Density0()
	densities := make([]float64, n)
	speeds := make([]float64, n)
	var com r3.Vec
	var ke float64
	for i := range fluid {
		p := &fluid[i]
		densities[i] = p.Density / rho0
		speeds[i] = r3.Norm(p.V)
		ke += 0.5 * p.Mass * r3.Norm2(p.V)
		com = r3.Add(com, p.X)
	}
	com = r3.Scale(1/float64(n), com)

	d := ComputeDistribution(densities)
	s.DensityMean, s.DensityStd = d.Mean, d.Std
	s.DensityP10, s.DensityP50, s.DensityP90 = d.P10, d.P50, d.P90
	s.DensityMin, s.DensityMax = d.Min, d.Max

	v := ComputeDistribution(speeds)
	s.SpeedMean, s.SpeedP90, s.SpeedMax = v.Mean, v.P90, v.Max

	s.KineticEnergy = ke
	s.CenterX, s.CenterY, s.CenterZ = com.X, com.Y, com.Z
}
