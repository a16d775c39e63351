package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `event_id, occurred_at, raw_text, clean_text, categories, source, embedding, created_at`

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}
	if err := domain.ValidateInstant(e.OccurredAt); err != nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO events (
			event_id, occurred_at, raw_text, clean_text, categories, source, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var embedding []float32
	if e.HasEmbedding() {
		embedding = e.Embedding
	}

	_, err := s.pool.Exec(ctx, query,
		e.EventID,
		e.OccurredAt,
		e.RawText,
		e.CleanText,
		e.Categories,
		e.Source,
		embedding,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
func (s *EventStore) GetByID(ctx context.Context, eventID string) (*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE event_id = $1
	`

	row := s.pool.QueryRow(ctx, query, eventID)
	e, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get event by id: %w", err)
	}
	return e, nil
}

// GetByTimeRange retrieves events with occurred_at within [start, end]
// (inclusive), ordered by occurred_at ASC.
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE occurred_at >= $1 AND occurred_at <= $2
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// UpdateEmbedding sets the embedding for an event.
func (s *EventStore) UpdateEmbedding(ctx context.Context, eventID string, embedding []float32) error {
	if len(embedding) == 0 {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `UPDATE events SET embedding = $1 WHERE event_id = $2`, embedding, eventID)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LatestEmbeddedBefore retrieves the most recent embedded event with
// occurred_at <= cutoff. Returns ErrNotFound if none exists.
func (s *EventStore) LatestEmbeddedBefore(ctx context.Context, cutoff time.Time) (*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE embedding IS NOT NULL AND occurred_at <= $1
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, cutoff)
	e, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest embedded event: %w", err)
	}
	return e, nil
}

// scanEvent scans a single row into an Event.
func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event

	err := row.Scan(
		&e.EventID,
		&e.OccurredAt,
		&e.RawText,
		&e.CleanText,
		&e.Categories,
		&e.Source,
		&e.Embedding,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.OccurredAt = e.OccurredAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// scanEvents scans multiple rows into a slice of Event.
func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}
