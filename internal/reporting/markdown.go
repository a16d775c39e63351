package reporting

import (
	"fmt"
	"strings"
	"time"

	"event-forecast-lab/internal/backtest"
)

// RenderMarkdown renders an aggregate backtest report as Markdown string.
func RenderMarkdown(r *backtest.Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", r.ModelID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Rows | %d |\n", r.TotalRows))
	sb.WriteString(fmt.Sprintf("| Scored Rows | %d |\n", r.ScoredRows))
	sb.WriteString(fmt.Sprintf("| Unscored Rows | %d |\n", r.UnscoredRows))
	sb.WriteString(fmt.Sprintf("| Overall Accuracy | %.4f |\n", r.OverallAccuracy))
	sb.WriteString("\n")

	writeAccuracySection(&sb, "By Predicted Direction", r.ByPredictedDirection)
	writeAccuracySection(&sb, "By Regime", r.ByRegime)
	writeAccuracySection(&sb, "By Horizon", r.ByHorizon)
	writeAccuracySection(&sb, "By Symbol", r.BySymbol)

	// Calibration
	if len(r.Calibration) > 0 {
		sb.WriteString("## Confidence Calibration\n\n")
		sb.WriteString("| Confidence Range | Mean Confidence | Rows | Accuracy | Error | Status |\n")
		sb.WriteString("|------------------|-----------------|------|----------|-------|--------|\n")
		for _, b := range r.Calibration {
			status := "OK"
			if b.Miscalibrated {
				status = "MISCALIBRATED"
			}
			sb.WriteString(fmt.Sprintf("| %.4f - %.4f | %.4f | %d | %.4f | %.4f | %s |\n",
				b.ConfidenceLow, b.ConfidenceHigh, b.MeanConfidence, b.Rows,
				b.Accuracy, b.CalibrationError, status))
		}
		sb.WriteString("\n")

		if r.Miscalibrated == 0 {
			sb.WriteString("**All calibration buckets within tolerance.**\n\n")
		} else {
			sb.WriteString(fmt.Sprintf("**%d calibration bucket(s) exceed tolerance.**\n\n", r.Miscalibrated))
		}
	}

	return sb.String()
}

func writeAccuracySection(sb *strings.Builder, title string, buckets []backtest.AccuracyBucket) {
	if len(buckets) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	sb.WriteString("| Bucket | Rows | Correct | Accuracy |\n")
	sb.WriteString("|--------|------|---------|----------|\n")
	for _, b := range buckets {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f |\n", b.Key, b.Rows, b.Correct, b.Accuracy))
	}
	sb.WriteString("\n")
}
