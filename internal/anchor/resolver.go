// Package anchor resolves the event a forecast is conditioned on.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// Resolver errors.
var (
	// ErrNotFound is returned when the anchor event does not exist.
	ErrNotFound = errors.New("anchor event not found")

	// ErrMissingEmbedding is returned when the event exists but its
	// embedding has not been computed yet. Embedding generation is an
	// external collaborator's responsibility; the caller must not
	// substitute a default anchor.
	ErrMissingEmbedding = errors.New("anchor event has no embedding")
)

// Anchor is a resolved anchor event: the fields the sampler needs.
type Anchor struct {
	EventID   string
	Timestamp time.Time
	Embedding []float32
}

// Resolver looks up an event's timestamp and embedding. No side effects.
type Resolver struct {
	events storage.EventStore
}

// NewResolver creates a Resolver over an event store.
func NewResolver(events storage.EventStore) *Resolver {
	return &Resolver{events: events}
}

// Resolve fetches the anchor for eventID.
func (r *Resolver) Resolve(ctx context.Context, eventID string) (*Anchor, error) {
	e, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, eventID)
		}
		return nil, fmt.Errorf("resolve anchor %s: %w", eventID, err)
	}

	if !e.HasEmbedding() {
		return nil, fmt.Errorf("%w: %s", ErrMissingEmbedding, eventID)
	}
	if err := domain.ValidateInstant(e.OccurredAt); err != nil {
		return nil, fmt.Errorf("resolve anchor %s: %w", eventID, err)
	}

	return &Anchor{
		EventID:   e.EventID,
		Timestamp: e.OccurredAt.UTC(),
		Embedding: e.Embedding,
	}, nil
}
