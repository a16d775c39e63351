package domain

import "time"

// Direction classifies a return relative to a symmetric threshold around zero.
type Direction string

// Direction constants.
const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// ClassifyDirection maps a return to up/down/flat using threshold >= 0.
func ClassifyDirection(ret, threshold float64) Direction {
	switch {
	case ret > threshold:
		return DirectionUp
	case ret < -threshold:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// BacktestRow is one forecast attempt evaluated at a historical as-of.
// Corresponds to backtest_rows; append-only, rows are independent and
// re-computable from the stores.
type BacktestRow struct {
	RowID              string     // unique row identifier
	ModelID            string     // identifier of the forecasting configuration
	Symbol             string
	AsOf               time.Time  // the instant the engine pretended was "now", UTC
	HorizonMinutes     int
	ExpectedReturn     float64
	PredictedDirection Direction
	Confidence         float64    // max(p_up, p_down)
	SampleSize         int
	RealizedReturn     *float64   // nil when ground truth is missing
	ActualDirection    *Direction // nil when ground truth is missing
	DirectionCorrect   *bool      // nil unless both directions are defined
	Regime             RegimeLabel
	CreatedAt          time.Time
}
