package backtest

import (
	"testing"
	"time"

	"event-forecast-lab/internal/domain"
)

func scoredRow(symbol string, asOf time.Time, predicted, actual domain.Direction, confidence float64, regimeLabel domain.RegimeLabel) *domain.BacktestRow {
	correct := predicted == actual
	realized := 0.01
	if actual == domain.DirectionDown {
		realized = -0.01
	}
	return &domain.BacktestRow{
		RowID:              symbol + asOf.Format(time.RFC3339),
		ModelID:            "model-test",
		Symbol:             symbol,
		AsOf:               asOf,
		HorizonMinutes:     60,
		PredictedDirection: predicted,
		Confidence:         confidence,
		RealizedReturn:     &realized,
		ActualDirection:    &actual,
		DirectionCorrect:   &correct,
		Regime:             regimeLabel,
	}
}

func unscoredRow(symbol string, asOf time.Time) *domain.BacktestRow {
	return &domain.BacktestRow{
		RowID:              symbol + asOf.Format(time.RFC3339),
		ModelID:            "model-test",
		Symbol:             symbol,
		AsOf:               asOf,
		HorizonMinutes:     60,
		PredictedDirection: domain.DirectionFlat,
		Confidence:         0.5,
		Regime:             domain.RegimeUnknown,
	}
}

func TestBuildReport_OverallAccuracy(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*domain.BacktestRow{
		scoredRow("BTC-USD", base, domain.DirectionUp, domain.DirectionUp, 0.8, domain.RegimeUptrend),
		scoredRow("BTC-USD", base.Add(time.Hour), domain.DirectionUp, domain.DirectionDown, 0.7, domain.RegimeUptrend),
		scoredRow("BTC-USD", base.Add(2*time.Hour), domain.DirectionDown, domain.DirectionDown, 0.9, domain.RegimeDowntrend),
		scoredRow("BTC-USD", base.Add(3*time.Hour), domain.DirectionDown, domain.DirectionDown, 0.6, domain.RegimeChop),
		unscoredRow("BTC-USD", base.Add(4*time.Hour)),
	}

	report := BuildReport("model-test", rows, ReportOptions{})

	if report.TotalRows != 5 || report.ScoredRows != 4 || report.UnscoredRows != 1 {
		t.Errorf("Row accounting wrong: %+v", report)
	}
	if report.OverallAccuracy != 0.75 {
		t.Errorf("OverallAccuracy = %v, want 0.75", report.OverallAccuracy)
	}
}

func TestBuildReport_DirectionBuckets(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*domain.BacktestRow{
		scoredRow("BTC-USD", base, domain.DirectionUp, domain.DirectionUp, 0.8, domain.RegimeUptrend),
		scoredRow("BTC-USD", base.Add(time.Hour), domain.DirectionUp, domain.DirectionDown, 0.7, domain.RegimeUptrend),
		scoredRow("BTC-USD", base.Add(2*time.Hour), domain.DirectionDown, domain.DirectionDown, 0.9, domain.RegimeDowntrend),
	}

	report := BuildReport("model-test", rows, ReportOptions{})

	if len(report.ByPredictedDirection) != 2 {
		t.Fatalf("Expected 2 direction buckets, got %d", len(report.ByPredictedDirection))
	}
	// Buckets sort by key: down before up.
	down := report.ByPredictedDirection[0]
	up := report.ByPredictedDirection[1]
	if down.Key != "down" || down.Rows != 1 || down.Accuracy != 1.0 {
		t.Errorf("Down bucket wrong: %+v", down)
	}
	if up.Key != "up" || up.Rows != 2 || up.Accuracy != 0.5 {
		t.Errorf("Up bucket wrong: %+v", up)
	}
}

func TestBuildReport_RegimeAndSymbolBuckets(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*domain.BacktestRow{
		scoredRow("BTC-USD", base, domain.DirectionUp, domain.DirectionUp, 0.8, domain.RegimeUptrend),
		scoredRow("ETH-USD", base, domain.DirectionUp, domain.DirectionDown, 0.7, domain.RegimeChop),
	}

	report := BuildReport("model-test", rows, ReportOptions{})

	if len(report.BySymbol) != 2 {
		t.Fatalf("Expected 2 symbol buckets, got %d", len(report.BySymbol))
	}
	if report.BySymbol[0].Key != "BTC-USD" || report.BySymbol[0].Accuracy != 1.0 {
		t.Errorf("BTC bucket wrong: %+v", report.BySymbol[0])
	}
	if report.BySymbol[1].Key != "ETH-USD" || report.BySymbol[1].Accuracy != 0.0 {
		t.Errorf("ETH bucket wrong: %+v", report.BySymbol[1])
	}

	if len(report.ByRegime) != 2 {
		t.Fatalf("Expected 2 regime buckets, got %d", len(report.ByRegime))
	}
	if len(report.ByHorizon) != 1 || report.ByHorizon[0].Key != "60m" {
		t.Errorf("Horizon buckets wrong: %+v", report.ByHorizon)
	}
}

func TestBuildReport_Calibration(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Low-confidence rows all wrong, high-confidence rows all right: the low
	// bucket is roughly calibrated at ~0.55 confidence vs 0 accuracy (off),
	// the high one at ~0.9 vs 1.0 accuracy (within tolerance).
	var rows []*domain.BacktestRow
	for i := 0; i < 5; i++ {
		rows = append(rows, scoredRow("BTC-USD", base.Add(time.Duration(i)*time.Hour),
			domain.DirectionUp, domain.DirectionDown, 0.55, domain.RegimeChop))
	}
	for i := 5; i < 10; i++ {
		rows = append(rows, scoredRow("BTC-USD", base.Add(time.Duration(i)*time.Hour),
			domain.DirectionUp, domain.DirectionUp, 0.9, domain.RegimeUptrend))
	}

	report := BuildReport("model-test", rows, ReportOptions{CalibrationBuckets: 2, CalibrationTolerance: 0.15})

	if len(report.Calibration) != 2 {
		t.Fatalf("Expected 2 calibration buckets, got %d", len(report.Calibration))
	}

	low := report.Calibration[0]
	if low.MeanConfidence != 0.55 || low.Accuracy != 0 {
		t.Errorf("Low bucket wrong: %+v", low)
	}
	if !low.Miscalibrated {
		t.Error("Low bucket should be flagged: confidence 0.55 vs accuracy 0")
	}

	high := report.Calibration[1]
	if high.MeanConfidence != 0.9 || high.Accuracy != 1.0 {
		t.Errorf("High bucket wrong: %+v", high)
	}
	if high.Miscalibrated {
		t.Error("High bucket within tolerance should not be flagged")
	}

	if report.Miscalibrated != 1 {
		t.Errorf("Miscalibrated = %d, want 1", report.Miscalibrated)
	}
}

func TestBuildReport_FewerRowsThanBuckets(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*domain.BacktestRow{
		scoredRow("BTC-USD", base, domain.DirectionUp, domain.DirectionUp, 0.8, domain.RegimeUptrend),
		scoredRow("BTC-USD", base.Add(time.Hour), domain.DirectionDown, domain.DirectionDown, 0.6, domain.RegimeChop),
	}

	report := BuildReport("model-test", rows, ReportOptions{CalibrationBuckets: 10})

	if len(report.Calibration) != 2 {
		t.Errorf("Expected bucket count capped at row count, got %d", len(report.Calibration))
	}
}

func TestBuildReport_EmptyAndUnscoredOnly(t *testing.T) {
	report := BuildReport("model-test", nil, ReportOptions{})
	if report.TotalRows != 0 || report.OverallAccuracy != 0 || len(report.Calibration) != 0 {
		t.Errorf("Empty report wrong: %+v", report)
	}

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	report = BuildReport("model-test", []*domain.BacktestRow{unscoredRow("BTC-USD", base)}, ReportOptions{})
	if report.TotalRows != 1 || report.ScoredRows != 0 || report.UnscoredRows != 1 {
		t.Errorf("Unscored-only accounting wrong: %+v", report)
	}
	if len(report.ByPredictedDirection) != 0 {
		t.Errorf("Expected no buckets for unscored-only rows")
	}
}
