package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// BruteForce is an exact in-memory Index using a linear scan with Euclidean
// distance. Intended for tests and small corpora; the Milvus backend covers
// production scale.
type BruteForce struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry
}

// NewBruteForce creates an exact in-memory index with the given dimension.
func NewBruteForce(dimension int) *BruteForce {
	return &BruteForce{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}
}

// InsertBatch upserts entries and returns the count written.
func (b *BruteForce) InsertBatch(_ context.Context, entries []Entry) (int, error) {
	for _, e := range entries {
		if e.ID == "" || len(e.Vector) == 0 {
			return 0, ErrInvalidInput
		}
		if len(e.Vector) != b.dimension {
			return 0, ErrDimensionMismatch
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range entries {
		stored := e
		stored.Vector = append([]float32(nil), e.Vector...)
		b.entries[e.ID] = stored
	}
	return len(entries), nil
}

// Search scans all entries and returns the limit closest by Euclidean distance.
func (b *BruteForce) Search(_ context.Context, query []float32, limit int, opts SearchOptions) ([]Match, error) {
	if len(query) != b.dimension {
		return nil, ErrDimensionMismatch
	}
	if limit <= 0 {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	matches := make([]Match, 0, len(b.entries))
	for id, e := range b.entries {
		if opts.ExcludeID != "" && id == opts.ExcludeID {
			continue
		}
		if !opts.NotBefore.IsZero() && e.Metadata.Timestamp.Before(opts.NotBefore) {
			continue
		}
		if !opts.NotAfter.IsZero() && e.Metadata.Timestamp.After(opts.NotAfter) {
			continue
		}
		matches = append(matches, Match{
			ID:       id,
			Distance: euclidean(query, e.Vector),
			Metadata: e.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// GetVector returns the stored vector for id.
func (b *BruteForce) GetVector(_ context.Context, id string) ([]float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, exists := b.entries[id]
	if !exists {
		return nil, ErrNotFound
	}
	return append([]float32(nil), e.Vector...), nil
}

// Delete removes a vector. Returns true if the id was present.
func (b *BruteForce) Delete(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, exists := b.entries[id]
	delete(b.entries, id)
	return exists, nil
}

// Count returns the number of indexed vectors.
func (b *BruteForce) Count(_ context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.entries)), nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ Index = (*BruteForce)(nil)
