package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// RealizedReturnStore is an in-memory implementation of storage.RealizedReturnStore.
type RealizedReturnStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RealizedReturn // keyed by (symbol, as_of, horizon)
}

// NewRealizedReturnStore creates a new in-memory realized return store.
func NewRealizedReturnStore() *RealizedReturnStore {
	return &RealizedReturnStore{
		data: make(map[string]*domain.RealizedReturn),
	}
}

// InsertBatch adds rows, skipping duplicates. First write wins, including
// within the batch. Returns the number of rows actually inserted.
func (s *RealizedReturnStore) InsertBatch(_ context.Context, rows []*domain.RealizedReturn) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	for _, r := range rows {
		if r == nil || r.Symbol == "" || r.HorizonMinutes <= 0 {
			return 0, storage.ErrInvalidInput
		}
		if err := domain.ValidateInstant(r.AsOf); err != nil {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range rows {
		key := r.Key()
		if _, exists := s.data[key]; exists {
			continue
		}
		rowCopy := *r
		rowCopy.AsOf = r.AsOf.UTC()
		s.data[key] = &rowCopy
		inserted++
	}

	return inserted, nil
}

// GetByKey retrieves the row for an exact composite key.
func (s *RealizedReturnStore) GetByKey(_ context.Context, symbol string, asOf time.Time, horizonMinutes int) (*domain.RealizedReturn, error) {
	lookup := domain.RealizedReturn{Symbol: symbol, AsOf: asOf, HorizonMinutes: horizonMinutes}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[lookup.Key()]
	if !exists {
		return nil, storage.ErrNotFound
	}
	rowCopy := *r
	return &rowCopy, nil
}

// GetWindow retrieves rows for (symbol, horizon) within [start, end], ordered by as_of ASC.
func (s *RealizedReturnStore) GetWindow(_ context.Context, symbol string, horizonMinutes int, start, end time.Time) ([]*domain.RealizedReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RealizedReturn
	for _, r := range s.data {
		if r.Symbol != symbol || r.HorizonMinutes != horizonMinutes {
			continue
		}
		if r.AsOf.Before(start) || r.AsOf.After(end) {
			continue
		}
		rowCopy := *r
		result = append(result, &rowCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AsOf.Before(result[j].AsOf)
	})

	return result, nil
}

// DistinctAsOf retrieves the distinct as_of instants for (symbol, horizon)
// within [start, end], ordered ASC.
func (s *RealizedReturnStore) DistinctAsOf(ctx context.Context, symbol string, horizonMinutes int, start, end time.Time) ([]time.Time, error) {
	rows, err := s.GetWindow(ctx, symbol, horizonMinutes, start, end)
	if err != nil {
		return nil, err
	}

	result := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		// GetWindow is already sorted and keys are unique per as_of.
		result = append(result, r.AsOf)
	}
	return result, nil
}

var _ storage.RealizedReturnStore = (*RealizedReturnStore)(nil)
