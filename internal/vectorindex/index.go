// Package vectorindex provides nearest-neighbor search over event embeddings.
// All backends share one distance semantics: lower is closer. Backends
// surface failures as errors; the caller owns any fallback policy.
package vectorindex

import (
	"context"
	"errors"
	"time"
)

// Errors returned by index implementations.
var (
	// ErrNotFound is returned by GetVector when the id is not indexed.
	ErrNotFound = errors.New("vector not found")

	// ErrDimensionMismatch is returned when a vector's dimension does not
	// match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidInput is returned for empty ids or empty vectors.
	ErrInvalidInput = errors.New("invalid input")
)

// Metadata is the diagnostic payload stored alongside each vector.
// Timestamp additionally drives the causal search restriction; the other
// fields never influence ranking.
type Metadata struct {
	Timestamp  time.Time
	Source     string
	Categories []string
	Tags       []string
}

// Entry is one (id, vector, metadata) triple for insertion.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is one search result, distance ascending from the query.
type Match struct {
	ID       string
	Distance float64
	Metadata Metadata
}

// SearchOptions restricts a search.
type SearchOptions struct {
	// ExcludeID removes the query's own id from results regardless of the
	// backend's native filter semantics.
	ExcludeID string

	// NotBefore/NotAfter bound the metadata timestamp (inclusive) when
	// non-zero. NotAfter is the causal cutoff: matches must not postdate it.
	NotBefore time.Time
	NotAfter  time.Time
}

// Index is the closed interface over vector search backends.
type Index interface {
	// InsertBatch upserts entries and returns the count written.
	InsertBatch(ctx context.Context, entries []Entry) (int, error)

	// Search returns up to limit matches ordered by ascending distance.
	Search(ctx context.Context, query []float32, limit int, opts SearchOptions) ([]Match, error)

	// GetVector returns the stored vector for id. Returns ErrNotFound if absent.
	GetVector(ctx context.Context, id string) ([]float32, error)

	// Delete removes a vector. Returns true if the id was present.
	Delete(ctx context.Context, id string) (bool, error)

	// Count returns the number of indexed vectors.
	Count(ctx context.Context) (int64, error)
}
