package duckdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// BacktestRowStore implements storage.BacktestRowStore using DuckDB.
type BacktestRowStore struct {
	client *Client
}

// NewBacktestRowStore creates a new BacktestRowStore.
func NewBacktestRowStore(client *Client) *BacktestRowStore {
	return &BacktestRowStore{client: client}
}

// Compile-time interface check.
var _ storage.BacktestRowStore = (*BacktestRowStore)(nil)

// InsertBatch appends rows in one transaction. Returns ErrDuplicateKey if a
// row_id exists; the whole batch rolls back.
func (s *BacktestRowStore) InsertBatch(ctx context.Context, rows []*domain.BacktestRow) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		if r == nil || r.RowID == "" {
			return storage.ErrInvalidInput
		}
		if err := domain.ValidateInstant(r.AsOf); err != nil {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_rows (
			row_id, model_id, symbol, as_of, horizon_minutes,
			expected_return, predicted_direction, confidence, sample_size,
			realized_return, actual_direction, direction_correct, regime, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var actual *string
		if r.ActualDirection != nil {
			v := string(*r.ActualDirection)
			actual = &v
		}

		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err := stmt.ExecContext(ctx,
			r.RowID, r.ModelID, r.Symbol, r.AsOf.UTC(), r.HorizonMinutes,
			r.ExpectedReturn, string(r.PredictedDirection), r.Confidence, r.SampleSize,
			r.RealizedReturn, actual, r.DirectionCorrect, string(r.Regime), createdAt.UTC(),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert backtest row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
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

	rows, err := s.client.db.QueryContext(ctx, query, modelID)
	if err != nil {
		return nil, fmt.Errorf("query by model id: %w", err)
	}
	defer rows.Close()

	var result []*domain.BacktestRow
	for rows.Next() {
		var r domain.BacktestRow
		var predicted, regime string
		var actual *string

		err := rows.Scan(
			&r.RowID,
			&r.ModelID,
			&r.Symbol,
			&r.AsOf,
			&r.HorizonMinutes,
			&r.ExpectedReturn,
			&predicted,
			&r.Confidence,
			&r.SampleSize,
			&r.RealizedReturn,
			&actual,
			&r.DirectionCorrect,
			&regime,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backtest row: %w", err)
		}

		r.PredictedDirection = domain.Direction(predicted)
		r.Regime = domain.RegimeLabel(regime)
		if actual != nil {
			d := domain.Direction(*actual)
			r.ActualDirection = &d
		}
		r.AsOf = r.AsOf.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// isDuplicateKeyError checks for a DuckDB primary-key violation. The driver
// surfaces constraint errors as plain strings.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Constraint Error") || strings.Contains(msg, "PRIMARY KEY")
}
