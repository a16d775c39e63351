package storage

import (
	"context"
	"time"

	"event-forecast-lab/internal/domain"
)

// EventStore provides access to events storage.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.Event) error

	// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, eventID string) (*domain.Event, error)

	// GetByTimeRange retrieves events with occurred_at within [start, end]
	// (inclusive), ordered by occurred_at ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Event, error)

	// UpdateEmbedding sets the embedding for an event. The embedding is the
	// only mutable field; returns ErrNotFound if the event does not exist.
	UpdateEmbedding(ctx context.Context, eventID string, embedding []float32) error

	// LatestEmbeddedBefore retrieves the most recent event with a non-empty
	// embedding and occurred_at <= cutoff. Returns ErrNotFound if none exists.
	LatestEmbeddedBefore(ctx context.Context, cutoff time.Time) (*domain.Event, error)
}

// RealizedReturnStore provides access to realized_returns storage.
// The composite key (symbol, as_of, horizon_minutes) is the concurrency
// control: concurrent or retried ingestion never double-counts.
type RealizedReturnStore interface {
	// InsertBatch adds rows, skipping any whose composite key already exists
	// (first write wins, including within the batch). Returns the number of
	// rows actually inserted.
	InsertBatch(ctx context.Context, rows []*domain.RealizedReturn) (int, error)

	// GetByKey retrieves the row for an exact composite key.
	// Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, symbol string, asOf time.Time, horizonMinutes int) (*domain.RealizedReturn, error)

	// GetWindow retrieves rows for (symbol, horizon) with as_of within
	// [start, end] (inclusive), ordered by as_of ASC.
	GetWindow(ctx context.Context, symbol string, horizonMinutes int, start, end time.Time) ([]*domain.RealizedReturn, error)

	// DistinctAsOf retrieves the distinct as_of instants for (symbol, horizon)
	// within [start, end] (inclusive), ordered ASC.
	DistinctAsOf(ctx context.Context, symbol string, horizonMinutes int, start, end time.Time) ([]time.Time, error)
}

// BacktestRowStore provides access to backtest_rows storage.
type BacktestRowStore interface {
	// InsertBatch appends rows. Returns ErrDuplicateKey if a row_id exists.
	InsertBatch(ctx context.Context, rows []*domain.BacktestRow) error

	// GetByModelID retrieves all rows for a model, ordered by as_of ASC.
	GetByModelID(ctx context.Context, modelID string) ([]*domain.BacktestRow, error)
}
