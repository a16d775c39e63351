package vectorindex

import (
	"context"
	"errors"

	"event-forecast-lab/internal/retry"
)

// Retrying decorates an Index with the shared retry policy for transient
// backend failures. The package's sentinel errors are definitive answers,
// not outages, and are returned without retrying; exhausted attempts
// surface the last error rather than a fabricated result.
type Retrying struct {
	inner  Index
	policy retry.Policy
}

// NewRetrying wraps idx with policy.
func NewRetrying(idx Index, policy retry.Policy) *Retrying {
	return &Retrying{inner: idx, policy: policy}
}

func (r *Retrying) InsertBatch(ctx context.Context, entries []Entry) (int, error) {
	var n int
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		n, opErr = r.inner.InsertBatch(ctx, entries)
		return opErr
	})
	return n, err
}

func (r *Retrying) Search(ctx context.Context, query []float32, limit int, opts SearchOptions) ([]Match, error) {
	var matches []Match
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		matches, opErr = r.inner.Search(ctx, query, limit, opts)
		return opErr
	})
	return matches, err
}

func (r *Retrying) GetVector(ctx context.Context, id string) ([]float32, error) {
	var vec []float32
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		vec, opErr = r.inner.GetVector(ctx, id)
		return opErr
	})
	return vec, err
}

func (r *Retrying) Delete(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		ok, opErr = r.inner.Delete(ctx, id)
		return opErr
	})
	return ok, err
}

func (r *Retrying) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.do(ctx, func(ctx context.Context) error {
		var opErr error
		n, opErr = r.inner.Count(ctx)
		return opErr
	})
	return n, err
}

// do applies the policy to op, cutting retries short on permanent errors.
func (r *Retrying) do(ctx context.Context, op func(ctx context.Context) error) error {
	var permanent error
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		opErr := op(ctx)
		if opErr != nil && !isTransient(opErr) {
			permanent = opErr
			return nil
		}
		return opErr
	})
	if permanent != nil {
		return permanent
	}
	return err
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

var _ Index = (*Retrying)(nil)
