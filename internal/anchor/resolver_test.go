package anchor

import (
	"context"
	"errors"
	"testing"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage/memory"
)

func TestResolver_Resolve(t *testing.T) {
	events := memory.NewEventStore()
	ctx := context.Background()
	at := time.Date(2025, 2, 10, 14, 30, 0, 0, time.UTC)

	err := events.Insert(ctx, &domain.Event{
		EventID:    "ev-1",
		OccurredAt: at,
		CleanText:  "fed raises rates",
		Embedding:  []float32{0.1, 0.2},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	r := NewResolver(events)
	a, err := r.Resolve(ctx, "ev-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if a.EventID != "ev-1" || !a.Timestamp.Equal(at) || len(a.Embedding) != 2 {
		t.Errorf("Unexpected anchor: %+v", a)
	}
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(memory.NewEventStore())

	_, err := r.Resolve(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolver_MissingEmbedding(t *testing.T) {
	events := memory.NewEventStore()
	ctx := context.Background()

	err := events.Insert(ctx, &domain.Event{
		EventID:    "ev-1",
		OccurredAt: time.Date(2025, 2, 10, 14, 30, 0, 0, time.UTC),
		CleanText:  "pending embedding",
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	_, err = NewResolver(events).Resolve(ctx, "ev-1")
	if !errors.Is(err, ErrMissingEmbedding) {
		t.Errorf("Expected ErrMissingEmbedding, got %v", err)
	}
}
