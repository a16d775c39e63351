package memory

import (
	"context"
	"sort"
	"sync"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

// BacktestRowStore is an in-memory implementation of storage.BacktestRowStore.
type BacktestRowStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BacktestRow // keyed by row_id
}

// NewBacktestRowStore creates a new in-memory backtest row store.
func NewBacktestRowStore() *BacktestRowStore {
	return &BacktestRowStore{
		data: make(map[string]*domain.BacktestRow),
	}
}

// InsertBatch appends rows. Fails the entire batch on any duplicate row_id.
func (s *BacktestRowStore) InsertBatch(_ context.Context, rows []*domain.BacktestRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.RowID == "" || r.ModelID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RowID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.RowID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.RowID] = struct{}{}
	}

	for _, r := range rows {
		s.data[r.RowID] = copyBacktestRow(r)
	}

	return nil
}

// GetByModelID retrieves all rows for a model, ordered by as_of ASC.
func (s *BacktestRowStore) GetByModelID(_ context.Context, modelID string) ([]*domain.BacktestRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestRow
	for _, r := range s.data {
		if r.ModelID == modelID {
			result = append(result, copyBacktestRow(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].AsOf.Equal(result[j].AsOf) {
			return result[i].AsOf.Before(result[j].AsOf)
		}
		return result[i].RowID < result[j].RowID
	})

	return result, nil
}

// copyBacktestRow deep-copies nullable fields.
func copyBacktestRow(r *domain.BacktestRow) *domain.BacktestRow {
	c := *r
	if r.RealizedReturn != nil {
		v := *r.RealizedReturn
		c.RealizedReturn = &v
	}
	if r.ActualDirection != nil {
		v := *r.ActualDirection
		c.ActualDirection = &v
	}
	if r.DirectionCorrect != nil {
		v := *r.DirectionCorrect
		c.DirectionCorrect = &v
	}
	return &c
}

var _ storage.BacktestRowStore = (*BacktestRowStore)(nil)
