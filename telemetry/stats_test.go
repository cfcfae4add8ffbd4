package telemetry

import (
	"math"
	"testing"
)

func TestComputeDistribution(t *testing.T) {
	values := []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	d := ComputeDistribution(values)

	if math.Abs(d.Mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", d.Mean)
	}
	// Population std of 0.1..1.0
	if math.Abs(d.Std-0.2872) > 0.001 {
		t.Errorf("std = %v, want ~0.2872", d.Std)
	}
	// Empirical quantiles pick sample values, no interpolation.
	for _, q := range []struct {
		name      string
		got, want float64
	}{
		{"p10", d.P10, 0.1},
		{"p50", d.P50, 0.5},
		{"p90", d.P90, 0.9},
	} {
		if math.Abs(q.got-q.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", q.name, q.got, q.want)
		}
	}
	if d.Min != 0.1 || d.Max != 1.0 {
		t.Errorf("range = [%v, %v], want [0.1, 1]", d.Min, d.Max)
	}

	// Input must not be reordered.
	if values[0] != 1.0 {
		t.Error("ComputeDistribution sorted its input")
	}
}

func TestComputeDistributionEmpty(t *testing.T) {
	if d := ComputeDistribution(nil); d != (Distribution{}) {
		t.Errorf("empty slice should return all zeros, got %+v", d)
	}
}
