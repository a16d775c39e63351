package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// RealizedReturnStore implements storage.RealizedReturnStore using DuckDB.
// The composite primary key plus ON CONFLICT DO NOTHING gives first-write-wins
// idempotence at the engine level.
type RealizedReturnStore struct {
	client *Client
}

// NewRealizedReturnStore creates a new RealizedReturnStore.
func NewRealizedReturnStore(client *Client) *RealizedReturnStore {
	return &RealizedReturnStore{client: client}
}

// Compile-time interface check.
var _ storage.RealizedReturnStore = (*RealizedReturnStore)(nil)

// InsertBatch adds rows, skipping any whose composite key already exists
// (first write wins, including within the batch). Returns the number of rows
// actually inserted.
func (s *RealizedReturnStore) InsertBatch(ctx context.Context, rows []*domain.RealizedReturn) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	for _, r := range rows {
		if r == nil || r.Symbol == "" {
			return 0, storage.ErrInvalidInput
		}
		if err := domain.ValidateInstant(r.AsOf); err != nil {
			return 0, storage.ErrInvalidInput
		}
	}

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO realized_returns (
			symbol, as_of, horizon_minutes, price_start, price_end, realized_return
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, as_of, horizon_minutes) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	var inserted int
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx,
			r.Symbol, r.AsOf.UTC(), r.HorizonMinutes,
			r.PriceStart, r.PriceEnd, r.RealizedReturn,
		)
		if err != nil {
			return 0, fmt.Errorf("insert realized return: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

// GetByKey retrieves the row for an exact composite key.
func (s *RealizedReturnStore) GetByKey(ctx context.Context, symbol string, asOf time.Time, horizonMinutes int) (*domain.RealizedReturn, error) {
	query := `
		SELECT symbol, as_of, horizon_minutes, price_start, price_end, realized_return
		FROM realized_returns
		WHERE symbol = ? AND as_of = ? AND horizon_minutes = ?
	`

	row := s.client.db.QueryRowContext(ctx, query, symbol, asOf.UTC(), horizonMinutes)
	r, err := scanRealizedReturn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get by key: %w", err)
	}
	return r, nil
}

// GetWindow retrieves rows for (symbol, horizon) with as_of within
// [start, end] (inclusive), ordered by as_of ASC.
func (s *RealizedReturnStore) GetWindow(ctx context.Context, symbol string, horizonMinutes int, start, end time.Time) ([]*domain.RealizedReturn, error) {
	query := `
		SELECT symbol, as_of, horizon_minutes, price_start, price_end, realized_return
		FROM realized_returns
		WHERE symbol = ? AND horizon_minutes = ? AND as_of >= ? AND as_of <= ?
		ORDER BY as_of ASC
	`

	rows, err := s.client.db.QueryContext(ctx, query, symbol, horizonMinutes, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var result []*domain.RealizedReturn
	for rows.Next() {
		r, err := scanRealizedReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window: %w", err)
	}
	return result, nil
}

// DistinctAsOf retrieves the distinct as_of instants for (symbol, horizon)
// within [start, end] (inclusive), ordered ASC.
func (s *RealizedReturnStore) DistinctAsOf(ctx context.Context, symbol string, horizonMinutes int, start, end time.Time) ([]time.Time, error) {
	query := `
		SELECT DISTINCT as_of
		FROM realized_returns
		WHERE symbol = ? AND horizon_minutes = ? AND as_of >= ? AND as_of <= ?
		ORDER BY as_of ASC
	`

	rows, err := s.client.db.QueryContext(ctx, query, symbol, horizonMinutes, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query distinct as_of: %w", err)
	}
	defer rows.Close()

	var result []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan as_of: %w", err)
		}
		result = append(result, t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate as_of: %w", err)
	}
	return result, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRealizedReturn(row scanner) (*domain.RealizedReturn, error) {
	var r domain.RealizedReturn

	err := row.Scan(
		&r.Symbol,
		&r.AsOf,
		&r.HorizonMinutes,
		&r.PriceStart,
		&r.PriceEnd,
		&r.RealizedReturn,
	)
	if err != nil {
		return nil, err
	}

	r.AsOf = r.AsOf.UTC()
	return &r, nil
}
