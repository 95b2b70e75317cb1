package engine

import (
	"math"

	"github.com/miradorstack/mirador-ews/internal/models"
)

// WindowStats holds the rolling-window statistics of a sample batch.
type WindowStats struct {
	Variance float64
	AC1      float64
}

// ZBaseline is the mean/deviation pair used by ComputeZScore.
type ZBaseline struct {
	Mean   float64
	StdDev float64
}

const (
	neutralIndex       = 50.0
	maxVariancePenalty = 50.0
	maxAC1Penalty      = 30.0
	varianceWeight     = 30.0
	ac1Weight          = 20.0
)

// ComputeVarianceAndAC1 returns the population variance and lag-1 autocorrelation
// of the most recent windowSize samples. Windows shorter than two samples, and
// windows whose statistics are not representable as finite floats, yield zeros.
func ComputeVarianceAndAC1(samples []float64, windowSize int) WindowStats {
	n := windowSize
	if n > len(samples) {
		n = len(samples)
	}
	if n < 2 {
		return WindowStats{}
	}
	window := samples[len(samples)-n:]

	// Running mean so large magnitudes do not overflow the sum.
	mean := 0.0
	for i, v := range window {
		mean += (v - mean) / float64(i+1)
	}
	if !isFinite(mean) {
		return WindowStats{}
	}

	// Deviations are normalised by the largest one before squaring; AC1 is
	// scale free and the variance is rescaled at the end.
	scale := 0.0
	for _, v := range window {
		scale = math.Max(scale, math.Abs(v-mean))
	}
	if scale == 0 {
		return WindowStats{}
	}
	if !isFinite(scale) {
		return WindowStats{}
	}

	sumSquares := 0.0
	covariance := 0.0
	prev := 0.0
	for i, v := range window {
		d := (v - mean) / scale
		sumSquares += d * d
		if i > 0 {
			covariance += d * prev
		}
		prev = d
	}

	ac1 := 0.0
	if denominator := float64(n-1) * sumSquares / float64(n); denominator != 0 {
		ac1 = covariance / denominator
	}
	variance := sumSquares / float64(n) * scale * scale
	if !isFinite(variance) || !isFinite(ac1) {
		return WindowStats{}
	}
	return WindowStats{Variance: variance, AC1: ac1}
}

// ComputeResilienceIndex scores variance and AC1 against the service baseline.
// A baseline with either component at zero or non-finite is unusable and scores
// neutral. The result is always within [0, 100].
//
// The penalty caps sum to 80, so the index never drops below 20.
func ComputeResilienceIndex(variance, ac1 float64, baseline models.Baseline) float64 {
	if baseline.Variance == 0 || baseline.AC1 == 0 || !isFinite(baseline.Variance) || !isFinite(baseline.AC1) {
		return neutralIndex
	}

	varianceRatio := variance / baseline.Variance
	ac1Ratio := ac1 / baseline.AC1

	variancePenalty := math.Min(maxVariancePenalty, varianceRatio*varianceWeight)
	ac1Penalty := math.Min(maxAC1Penalty, ac1Ratio*ac1Weight)

	index := 100 - variancePenalty - ac1Penalty
	if math.IsNaN(index) {
		return neutralIndex
	}
	return clamp(index, 0, 100)
}

// ComputeZScore returns how many deviations value sits from the baseline mean.
func ComputeZScore(value float64, baseline ZBaseline) float64 {
	if baseline.StdDev == 0 {
		return 0
	}
	return (value - baseline.Mean) / baseline.StdDev
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
