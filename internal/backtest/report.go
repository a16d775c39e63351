package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"event-forecast-lab/internal/domain"
)

// Default report parameters.
const (
	DefaultCalibrationBuckets   = 5
	DefaultCalibrationTolerance = 0.10
)

// ReportOptions tunes report aggregation.
type ReportOptions struct {
	CalibrationBuckets   int     // quantile buckets for the calibration table
	CalibrationTolerance float64 // |accuracy - mean confidence| beyond which a bucket is flagged
}

func (o ReportOptions) withDefaults() ReportOptions {
	if o.CalibrationBuckets == 0 {
		o.CalibrationBuckets = DefaultCalibrationBuckets
	}
	if o.CalibrationTolerance == 0 {
		o.CalibrationTolerance = DefaultCalibrationTolerance
	}
	return o
}

// AccuracyBucket is directional accuracy within one slice of the dataset.
type AccuracyBucket struct {
	Key      string
	Rows     int // scored rows in the slice
	Correct  int
	Accuracy float64
}

// CalibrationBucket compares stated confidence against empirical accuracy for
// one confidence quantile range.
type CalibrationBucket struct {
	ConfidenceLow    float64
	ConfidenceHigh   float64
	MeanConfidence   float64
	Rows             int
	Correct          int
	Accuracy         float64
	CalibrationError float64 // |accuracy - mean confidence|
	Miscalibrated    bool
}

// Report holds aggregate accuracy and calibration statistics for one dataset.
type Report struct {
	ModelID     string
	GeneratedAt time.Time

	TotalRows    int
	ScoredRows   int // rows with a defined direction-correct
	UnscoredRows int

	OverallAccuracy float64

	ByPredictedDirection []AccuracyBucket
	ByRegime             []AccuracyBucket
	ByHorizon            []AccuracyBucket
	BySymbol             []AccuracyBucket

	Calibration   []CalibrationBucket
	Miscalibrated int // buckets exceeding the tolerance
}

// BuildReport aggregates a row set. Only rows with a defined direction-correct
// contribute to accuracy and calibration; unscored rows are counted separately.
func BuildReport(modelID string, rows []*domain.BacktestRow, opts ReportOptions) *Report {
	opts = opts.withDefaults()

	report := &Report{
		ModelID:     modelID,
		GeneratedAt: time.Now().UTC(),
		TotalRows:   len(rows),
	}

	scored := make([]*domain.BacktestRow, 0, len(rows))
	for _, row := range rows {
		if row.DirectionCorrect != nil {
			scored = append(scored, row)
		}
	}
	report.ScoredRows = len(scored)
	report.UnscoredRows = len(rows) - len(scored)

	if len(scored) == 0 {
		return report
	}

	var correct int
	for _, row := range scored {
		if *row.DirectionCorrect {
			correct++
		}
	}
	report.OverallAccuracy = float64(correct) / float64(len(scored))

	report.ByPredictedDirection = accuracyBy(scored, func(r *domain.BacktestRow) string {
		return string(r.PredictedDirection)
	})
	report.ByRegime = accuracyBy(scored, func(r *domain.BacktestRow) string {
		return string(r.Regime)
	})
	report.ByHorizon = accuracyBy(scored, func(r *domain.BacktestRow) string {
		return fmt.Sprintf("%dm", r.HorizonMinutes)
	})
	report.BySymbol = accuracyBy(scored, func(r *domain.BacktestRow) string {
		return r.Symbol
	})

	report.Calibration = calibrationBuckets(scored, opts)
	for _, b := range report.Calibration {
		if b.Miscalibrated {
			report.Miscalibrated++
		}
	}

	return report
}

// accuracyBy groups scored rows by key and computes per-group accuracy,
// sorted by key for stable output.
func accuracyBy(scored []*domain.BacktestRow, key func(*domain.BacktestRow) string) []AccuracyBucket {
	groups := make(map[string]*AccuracyBucket)
	for _, row := range scored {
		k := key(row)
		b, ok := groups[k]
		if !ok {
			b = &AccuracyBucket{Key: k}
			groups[k] = b
		}
		b.Rows++
		if *row.DirectionCorrect {
			b.Correct++
		}
	}

	out := make([]AccuracyBucket, 0, len(groups))
	for _, b := range groups {
		b.Accuracy = float64(b.Correct) / float64(b.Rows)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// calibrationBuckets splits scored rows into confidence quantile ranges and
// compares each range's accuracy against its mean confidence.
func calibrationBuckets(scored []*domain.BacktestRow, opts ReportOptions) []CalibrationBucket {
	byConfidence := make([]*domain.BacktestRow, len(scored))
	copy(byConfidence, scored)
	sort.Slice(byConfidence, func(i, j int) bool {
		return byConfidence[i].Confidence < byConfidence[j].Confidence
	})

	n := opts.CalibrationBuckets
	if n > len(byConfidence) {
		n = len(byConfidence)
	}

	out := make([]CalibrationBucket, 0, n)
	for i := 0; i < n; i++ {
		lo := i * len(byConfidence) / n
		hi := (i + 1) * len(byConfidence) / n
		chunk := byConfidence[lo:hi]
		if len(chunk) == 0 {
			continue
		}

		b := CalibrationBucket{
			ConfidenceLow:  chunk[0].Confidence,
			ConfidenceHigh: chunk[len(chunk)-1].Confidence,
			Rows:           len(chunk),
		}
		var sum float64
		for _, row := range chunk {
			sum += row.Confidence
			if *row.DirectionCorrect {
				b.Correct++
			}
		}
		b.MeanConfidence = sum / float64(len(chunk))
		b.Accuracy = float64(b.Correct) / float64(len(chunk))
		b.CalibrationError = math.Abs(b.Accuracy - b.MeanConfidence)
		b.Miscalibrated = b.CalibrationError > opts.CalibrationTolerance
		out = append(out, b)
	}
	return out
}
