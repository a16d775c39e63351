package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by event_id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.Event),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}
	if err := domain.ValidateInstant(e.OccurredAt); err != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[e.EventID] = copyEvent(e)
	return nil
}

// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
func (s *EventStore) GetByID(_ context.Context, eventID string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[eventID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyEvent(e), nil
}

// GetByTimeRange retrieves events within [start, end], ordered by occurred_at ASC.
func (s *EventStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if !e.OccurredAt.Before(start) && !e.OccurredAt.After(end) {
			result = append(result, copyEvent(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})

	return result, nil
}

// LatestEmbeddedBefore retrieves the most recent embedded event with
// occurred_at <= cutoff. Ties on occurred_at break by event_id DESC so the
// result is deterministic.
func (s *EventStore) LatestEmbeddedBefore(_ context.Context, cutoff time.Time) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Event
	for _, e := range s.data {
		if !e.HasEmbedding() || e.OccurredAt.After(cutoff) {
			continue
		}
		if best == nil || e.OccurredAt.After(best.OccurredAt) ||
			(e.OccurredAt.Equal(best.OccurredAt) && e.EventID > best.EventID) {
			best = e
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return copyEvent(best), nil
}

// UpdateEmbedding sets the embedding for an event.
func (s *EventStore) UpdateEmbedding(_ context.Context, eventID string, embedding []float32) error {
	if len(embedding) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[eventID]
	if !exists {
		return storage.ErrNotFound
	}

	e.Embedding = append([]float32(nil), embedding...)
	return nil
}

// copyEvent returns a deep copy so callers cannot mutate stored state.
func copyEvent(e *domain.Event) *domain.Event {
	c := *e
	c.Categories = append([]string(nil), e.Categories...)
	c.Embedding = append([]float32(nil), e.Embedding...)
	return &c
}

var _ storage.EventStore = (*EventStore)(nil)
