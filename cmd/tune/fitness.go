package main

import (
	"math"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/sim"
	"github.com/pthm-cable/sphfluid/telemetry"
)

// Fitness weights.
const (
	divergencePenalty = 1e3  // any non-finite step
	spreadWeight      = 0.5  // density standard deviation, relative to density0
	speedWeight       = 0.01 // late-run mean speed, m/s

	warmupWindows = 1 // skip first N windows
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	frames     int
	baseConfig *config.Config

	lastBreakdown breakdown
}

// breakdown holds the terms of the most recent evaluation.
type breakdown struct {
	densityError float64
	spread       float64
	speed        float64
	diverged     bool
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, frames int, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		frames:     frames,
		baseConfig: baseCfg,
	}
}

// LastBreakdown returns the fitness terms of the most recent evaluation.
func (fe *FitnessEvaluator) LastBreakdown() breakdown {
	return fe.lastBreakdown
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := *fe.baseConfig
	fe.params.ApplyToConfig(&cfg, x)

	windows, diverged := fe.runSimulation(&cfg)
	b := computeBreakdown(windows, diverged)
	fe.lastBreakdown = b
	return b.fitness()
}

// runSimulation executes a single headless run and collects window stats.
// A setup failure counts as divergence.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config) ([]telemetry.WindowStats, bool) {
	var windows []telemetry.WindowStats
	d, err := sim.New(cfg, sim.Options{
		StatsCallback: func(s telemetry.WindowStats) {
			windows = append(windows, s)
		},
	})
	if err != nil {
		return nil, true
	}
	defer d.Close()

	if _, err := d.Frame(0); err != nil {
		return nil, true
	}
	for f := 1; f <= fe.frames; f++ {
		res, err := d.Frame(f)
		if err != nil || !res.Report.Finite {
			return windows, true
		}
	}
	return windows, false
}

func computeBreakdown(windows []telemetry.WindowStats, diverged bool) breakdown {
	b := breakdown{diverged: diverged}
	if len(windows) > warmupWindows {
		windows = windows[warmupWindows:]
	}
	if len(windows) == 0 {
		return b
	}

	for _, w := range windows {
		b.densityError += w.DensityErrorMean
		b.spread += w.DensityStd
	}
	n := float64(len(windows))
	b.densityError /= n
	b.spread /= n
	b.speed = windows[len(windows)-1].SpeedMean
	return b
}

func (b breakdown) fitness() float64 {
	if b.diverged {
		return divergencePenalty
	}
	f := b.densityError + spreadWeight*b.spread + speedWeight*b.speed
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return divergencePenalty
	}
	return f
}
