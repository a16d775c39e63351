// Package forecast turns neighbor samples into a distance-weighted
// probabilistic forecast.
package forecast

import (
	"math"

	"event-forecast-lab/internal/domain"
)

// Stats is the aggregated forecast distribution over one sample set.
type Stats struct {
	ExpectedReturn float64
	StdReturn      float64
	PUp            float64
	PDown          float64
	SampleSize     int
}

// Aggregate computes distance-weighted statistics. Each sample's weight is
// exp(-alpha * distance): strictly positive, strictly decreasing in
// distance, bounded in (0, 1] for distance >= 0.
//
// An empty sample list yields the neutral prior (mean 0, std 0, p_up 0.5).
// If the weight sum numerically collapses to zero (pathological
// alpha/distance combinations), the same samples are aggregated unweighted
// instead of dividing by zero.
func Aggregate(samples []domain.ForecastSample, alpha float64) Stats {
	if len(samples) == 0 {
		return Stats{PUp: 0.5, PDown: 0.5}
	}

	var weightSum, weightedReturnSum, upWeightSum float64
	weights := make([]float64, len(samples))
	for i, s := range samples {
		w := math.Exp(-alpha * s.Distance)
		weights[i] = w
		weightSum += w
		weightedReturnSum += w * s.RealizedReturn
		if s.RealizedReturn > 0 {
			upWeightSum += w
		}
	}

	if weightSum == 0 {
		return unweighted(samples)
	}

	mean := weightedReturnSum / weightSum

	var weightedVarSum float64
	for i, s := range samples {
		d := s.RealizedReturn - mean
		weightedVarSum += weights[i] * d * d
	}

	pUp := upWeightSum / weightSum
	return Stats{
		ExpectedReturn: mean,
		StdReturn:      math.Sqrt(weightedVarSum / weightSum),
		PUp:            pUp,
		PDown:          1 - pUp,
		SampleSize:     len(samples),
	}
}

// unweighted is the degenerate-weight fallback: plain mean/std/p_up.
func unweighted(samples []domain.ForecastSample) Stats {
	n := float64(len(samples))

	var sum, upCount float64
	for _, s := range samples {
		sum += s.RealizedReturn
		if s.RealizedReturn > 0 {
			upCount++
		}
	}
	mean := sum / n

	var varSum float64
	for _, s := range samples {
		d := s.RealizedReturn - mean
		varSum += d * d
	}

	pUp := upCount / n
	return Stats{
		ExpectedReturn: mean,
		StdReturn:      math.Sqrt(varSum / n),
		PUp:            pUp,
		PDown:          1 - pUp,
		SampleSize:     len(samples),
	}
}
