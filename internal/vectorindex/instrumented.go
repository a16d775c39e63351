package vectorindex

import (
	"context"
	"time"

	"event-forecast-lab/internal/observability"
)

// Instrumented decorates an Index with per-operation latency and error
// metrics. Behavior is otherwise unchanged.
type Instrumented struct {
	inner   Index
	metrics *observability.Metrics
}

// NewInstrumented wraps idx. Returns idx unchanged when metrics is nil.
func NewInstrumented(idx Index, metrics *observability.Metrics) Index {
	if metrics == nil {
		return idx
	}
	return &Instrumented{inner: idx, metrics: metrics}
}

func (i *Instrumented) InsertBatch(ctx context.Context, entries []Entry) (int, error) {
	defer i.observe("insert_batch", time.Now())
	n, err := i.inner.InsertBatch(ctx, entries)
	i.countError("insert_batch", err)
	return n, err
}

func (i *Instrumented) Search(ctx context.Context, query []float32, limit int, opts SearchOptions) ([]Match, error) {
	defer i.observe("search", time.Now())
	matches, err := i.inner.Search(ctx, query, limit, opts)
	i.countError("search", err)
	return matches, err
}

func (i *Instrumented) GetVector(ctx context.Context, id string) ([]float32, error) {
	defer i.observe("get_vector", time.Now())
	vec, err := i.inner.GetVector(ctx, id)
	i.countError("get_vector", err)
	return vec, err
}

func (i *Instrumented) Delete(ctx context.Context, id string) (bool, error) {
	defer i.observe("delete", time.Now())
	ok, err := i.inner.Delete(ctx, id)
	i.countError("delete", err)
	return ok, err
}

func (i *Instrumented) Count(ctx context.Context) (int64, error) {
	defer i.observe("count", time.Now())
	n, err := i.inner.Count(ctx)
	i.countError("count", err)
	return n, err
}

func (i *Instrumented) observe(operation string, start time.Time) {
	i.metrics.IndexCallLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) countError(operation string, err error) {
	if err != nil {
		i.metrics.IndexCallErrors.WithLabelValues(operation).Inc()
	}
}

var _ Index = (*Instrumented)(nil)
