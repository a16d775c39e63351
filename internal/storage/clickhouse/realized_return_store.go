package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// RealizedReturnStore implements storage.RealizedReturnStore using ClickHouse.
//
// ClickHouse does not enforce uniqueness at insert time, so the composite-key
// idempotence is layered: an explicit existence check before the batch insert
// skips known keys (existing rows win), and the ReplacingMergeTree engine
// collapses any duplicates that slip through concurrent inserts of the same
// key. Reads use FINAL so unmerged duplicates are never visible. A concurrent
// duplicate always carries the identical derived row, so which copy survives
// the merge is immaterial.
type RealizedReturnStore struct {
	conn *Conn
}

// NewRealizedReturnStore creates a new RealizedReturnStore.
func NewRealizedReturnStore(conn *Conn) *RealizedReturnStore {
	return &RealizedReturnStore{conn: conn}
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

	// Intra-batch dedup: first occurrence of a key wins.
	seen := make(map[string]struct{}, len(rows))
	var candidates []*domain.RealizedReturn
	for _, r := range rows {
		if r == nil || r.Symbol == "" {
			return 0, storage.ErrInvalidInput
		}
		if err := domain.ValidateInstant(r.AsOf); err != nil {
			return 0, storage.ErrInvalidInput
		}
		k := r.Key()
		if _, exists := seen[k]; exists {
			continue
		}
		seen[k] = struct{}{}
		candidates = append(candidates, r)
	}

	// Skip keys that already exist in the table.
	var fresh []*domain.RealizedReturn
	for _, r := range candidates {
		exists, err := s.exists(ctx, r.Symbol, r.AsOf, r.HorizonMinutes)
		if err != nil {
			return 0, fmt.Errorf("check exists: %w", err)
		}
		if !exists {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO realized_returns (
			symbol, as_of, horizon_minutes, price_start, price_end, realized_return
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range fresh {
		err = batch.Append(
			r.Symbol, r.AsOf, int32(r.HorizonMinutes),
			r.PriceStart, r.PriceEnd, r.RealizedReturn,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return len(fresh), nil
}

// GetByKey retrieves the row for an exact composite key.
func (s *RealizedReturnStore) GetByKey(ctx context.Context, symbol string, asOf time.Time, horizonMinutes int) (*domain.RealizedReturn, error) {
	query := `
		SELECT symbol, as_of, horizon_minutes, price_start, price_end, realized_return
		FROM realized_returns FINAL
		WHERE symbol = ? AND as_of = ? AND horizon_minutes = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, symbol, asOf, int32(horizonMinutes))
	if err != nil {
		return nil, fmt.Errorf("query by key: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, storage.ErrNotFound
	}
	return scanRealizedReturn(rows)
}

// GetWindow retrieves rows for (symbol, horizon) with as_of within
// [start, end] (inclusive), ordered by as_of ASC.
func (s *RealizedReturnStore) GetWindow(ctx context.Context, symbol string, horizonMinutes int, start, end time.Time) ([]*domain.RealizedReturn, error) {
	query := `
		SELECT symbol, as_of, horizon_minutes, price_start, price_end, realized_return
		FROM realized_returns FINAL
		WHERE symbol = ? AND horizon_minutes = ? AND as_of >= ? AND as_of <= ?
		ORDER BY as_of ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, int32(horizonMinutes), start, end)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var result []*domain.RealizedReturn
	for rows.Next() {
		r, err := scanRealizedReturn(rows)
		if err != nil {
			return nil, err
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

	rows, err := s.conn.Query(ctx, query, symbol, int32(horizonMinutes), start, end)
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

// exists checks whether a composite key is already present.
func (s *RealizedReturnStore) exists(ctx context.Context, symbol string, asOf time.Time, horizonMinutes int) (bool, error) {
	query := `
		SELECT count() FROM realized_returns
		WHERE symbol = ? AND as_of = ? AND horizon_minutes = ?
	`

	var count uint64
	row := s.conn.QueryRow(ctx, query, symbol, asOf, int32(horizonMinutes))
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanRealizedReturn scans the current row into a RealizedReturn.
func scanRealizedReturn(rows driver.Rows) (*domain.RealizedReturn, error) {
	var r domain.RealizedReturn
	var horizon int32

	err := rows.Scan(
		&r.Symbol,
		&r.AsOf,
		&horizon,
		&r.PriceStart,
		&r.PriceEnd,
		&r.RealizedReturn,
	)
	if err != nil {
		return nil, fmt.Errorf("scan realized return: %w", err)
	}

	r.HorizonMinutes = int(horizon)
	r.AsOf = r.AsOf.UTC()
	return &r, nil
}
