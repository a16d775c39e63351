package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// BacktestRowStore implements storage.BacktestRowStore using ClickHouse.
type BacktestRowStore struct {
	conn *Conn
}

// NewBacktestRowStore creates a new BacktestRowStore.
func NewBacktestRowStore(conn *Conn) *BacktestRowStore {
	return &BacktestRowStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BacktestRowStore = (*BacktestRowStore)(nil)

// InsertBatch appends rows. Returns ErrDuplicateKey if a row_id exists,
// checked explicitly since MergeTree does not enforce uniqueness.
func (s *BacktestRowStore) InsertBatch(ctx context.Context, rows []*domain.BacktestRow) error {
	if len(rows) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.RowID == "" {
			return storage.ErrInvalidInput
		}
		if err := domain.ValidateInstant(r.AsOf); err != nil {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[r.RowID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.RowID] = struct{}{}
	}

	for _, r := range rows {
		exists, err := s.exists(ctx, r.RowID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO backtest_rows (
			row_id, model_id, symbol, as_of, horizon_minutes,
			expected_return, predicted_direction, confidence, sample_size,
			realized_return, actual_direction, direction_correct, regime, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		var actual *string
		if r.ActualDirection != nil {
			actual = ptrString(string(*r.ActualDirection))
		}

		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		err = batch.Append(
			r.RowID, r.ModelID, r.Symbol, r.AsOf, int32(r.HorizonMinutes),
			r.ExpectedReturn, string(r.PredictedDirection), r.Confidence, int32(r.SampleSize),
			r.RealizedReturn, actual, r.DirectionCorrect, string(r.Regime), createdAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByModelID retrieves all rows for a model, ordered by as_of ASC.
func (s *BacktestRowStore) GetByModelID(ctx context.Context, modelID string) ([]*domain.BacktestRow, error) {
	query := `
		SELECT row_id, model_id, symbol, as_of, horizon_minutes,
		       expected_return, predicted_direction, confidence, sample_size,
		       realized_return, actual_direction, direction_correct, regime, created_at
		FROM backtest_rows
		WHERE model_id = ?
		ORDER BY as_of ASC, symbol ASC
	`

	rows, err := s.conn.Query(ctx, query, modelID)
	if err != nil {
		return nil, fmt.Errorf("query by model id: %w", err)
	}
	defer rows.Close()

	var result []*domain.BacktestRow
	for rows.Next() {
		r, err := scanBacktestRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// exists checks whether a row_id is already present.
func (s *BacktestRowStore) exists(ctx context.Context, rowID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM backtest_rows WHERE row_id = ?`, rowID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanBacktestRow scans the current row into a BacktestRow.
func scanBacktestRow(rows driver.Rows) (*domain.BacktestRow, error) {
	var r domain.BacktestRow
	var horizon, sampleSize int32
	var predicted, regime string
	var actual *string

	err := rows.Scan(
		&r.RowID,
		&r.ModelID,
		&r.Symbol,
		&r.AsOf,
		&horizon,
		&r.ExpectedReturn,
		&predicted,
		&r.Confidence,
		&sampleSize,
		&r.RealizedReturn,
		&actual,
		&r.DirectionCorrect,
		&regime,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan backtest row: %w", err)
	}

	r.HorizonMinutes = int(horizon)
	r.SampleSize = int(sampleSize)
	r.PredictedDirection = domain.Direction(predicted)
	r.Regime = domain.RegimeLabel(regime)
	if actual != nil {
		d := domain.Direction(*actual)
		r.ActualDirection = &d
	}
	r.AsOf = r.AsOf.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func ptrString(s string) *string {
	return &s
}
