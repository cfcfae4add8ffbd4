package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of frames.
type WindowStats struct {
	WindowStartFrame int     `csv:"-"`
	WindowEndFrame   int     `csv:"window_end"`
	SimTimeSec       float64 `csv:"sim_time"`
	Method           string  `csv:"method"`
	FluidCount       int     `csv:"fluid"`

	// Solver quality over the window
	Steps            int     `csv:"steps"`
	IterationsMean   float64 `csv:"iterations_mean"`
	IterationsMax    int     `csv:"iterations_max"`
	DensityErrorMean float64 `csv:"density_error_mean"`
	DensityErrorMax  float64 `csv:"density_error_max"`
	NotConverged     int     `csv:"not_converged"`
	NonFinite        int     `csv:"non_finite"`

	// Density distribution (sampled at window end), relative to density0
	DensityMean float64 `csv:"density_mean"`
	DensityStd  float64 `csv:"density_std"`
	DensityP10  float64 `csv:"density_p10"`
	DensityP50  float64 `csv:"density_p50"`
	DensityP90  float64 `csv:"density_p90"`
	DensityMin  float64 `csv:"density_min"`
	DensityMax  float64 `csv:"density_max"`

	// Motion (sampled at window end)
	SpeedMean     float64 `csv:"speed_mean"`
	SpeedP90      float64 `csv:"speed_p90"`
	SpeedMax      float64 `csv:"speed_max"`
	KineticEnergy float64 `csv:"kinetic_energy"`
	CenterX       float64 `csv:"com_x"`
	CenterY       float64 `csv:"com_y"`
	CenterZ       float64 `csv:"com_z"`
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
	Min, Max      float64
}

// ComputeDistribution calculates mean, population standard deviation,
// empirical quantiles and range. An empty sample yields all zeros.
func ComputeDistribution(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	var d Distribution
	d.Mean, d.Std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	d.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	d.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	d.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	d.Min = sorted[0]
	d.Max = sorted[n-1]
	return d
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartFrame),
		slog.Int("window_end", s.WindowEndFrame),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.String("method", s.Method),
		slog.Int("fluid", s.FluidCount),
		slog.Int("steps", s.Steps),
		slog.Float64("iterations_mean", s.IterationsMean),
		slog.Int("iterations_max", s.IterationsMax),
		slog.Float64("density_error_mean", s.DensityErrorMean),
		slog.Float64("density_error_max", s.DensityErrorMax),
		slog.Int("not_converged", s.NotConverged),
		slog.Int("non_finite", s.NonFinite),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("density_std", s.DensityStd),
		slog.Float64("density_p10", s.DensityP10),
		slog.Float64("density_p50", s.DensityP50),
		slog.Float64("density_p90", s.DensityP90),
		slog.Float64("density_min", s.DensityMin),
		slog.Float64("density_max", s.DensityMax),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("speed_max", s.SpeedMax),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("com_z", s.CenterZ),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndFrame,
		"sim_time", s.SimTimeSec,
		"method", s.Method,
		"steps", s.Steps,
		"iterations_mean", s.IterationsMean,
		"iterations_max", s.IterationsMax,
		"density_error_mean", s.DensityErrorMean,
		"density_error_max", s.DensityErrorMax,
		"not_converged", s.NotConverged,
		"non_finite", s.NonFinite,
		"density_p10", s.DensityP10,
		"density_p50", s.DensityP50,
		"density_p90", s.DensityP90,
		"density_max", s.DensityMax,
		"speed_mean", s.SpeedMean,
		"speed_max", s.SpeedMax,
		"kinetic_energy", s.KineticEnergy,
		"com_z", s.CenterZ,
	)
}
