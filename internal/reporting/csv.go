// Package reporting renders backtest output for humans and downstream tools.
package reporting

import (
	"fmt"
	"strings"
	"time"

	"event-forecast-lab/internal/domain"
)

// RenderRowsCSV renders backtest rows as CSV string. Nullable fields render
// empty when ground truth is missing.
func RenderRowsCSV(rows []*domain.BacktestRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("row_id,model_id,symbol,as_of,horizon_minutes,expected_return,")
	sb.WriteString("predicted_direction,confidence,sample_size,")
	sb.WriteString("realized_return,actual_direction,direction_correct,regime\n")

	// Rows
	for _, r := range rows {
		realized := ""
		if r.RealizedReturn != nil {
			realized = fmt.Sprintf("%.6f", *r.RealizedReturn)
		}
		actual := ""
		if r.ActualDirection != nil {
			actual = string(*r.ActualDirection)
		}
		correct := ""
		if r.DirectionCorrect != nil {
			correct = fmt.Sprintf("%t", *r.DirectionCorrect)
		}

		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%d,%.6f,%s,%.6f,%d,%s,%s,%s,%s\n",
			r.RowID,
			r.ModelID,
			r.Symbol,
			r.AsOf.Format(time.RFC3339),
			r.HorizonMinutes,
			r.ExpectedReturn,
			r.PredictedDirection,
			r.Confidence,
			r.SampleSize,
			realized,
			actual,
			correct,
			r.Regime,
		))
	}

	return sb.String()
}
