// Package sampler finds past similar events for an anchor and attaches
// realized-outcome samples drawn from each neighbor's own time window.
package sampler

import (
	"context"
	"fmt"
	"time"

	"event-forecast-lab/internal/anchor"
	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
	"event-forecast-lab/internal/vectorindex"
)

// Params controls one neighbor-sampling pass.
type Params struct {
	KNeighbors         int // neighbors to request from the index
	LookbackDays       int // how far back neighbors may lie
	PriceWindowMinutes int // width of each neighbor's realized-return window
}

// DefaultParams returns the standard sampling parameters.
func DefaultParams() Params {
	return Params{
		KNeighbors:         25,
		LookbackDays:       365,
		PriceWindowMinutes: 60,
	}
}

// Result is the outcome of one sampling pass.
type Result struct {
	Anchor    *anchor.Anchor
	Samples   []domain.ForecastSample
	Neighbors int // neighbors returned by the index, before outcome attachment
}

// Sampler wires the anchor resolver, the vector index, and the
// realized-outcome store.
type Sampler struct {
	resolver *anchor.Resolver
	index    vectorindex.Index
	returns  storage.RealizedReturnStore
}

// New creates a Sampler.
func New(resolver *anchor.Resolver, index vectorindex.Index, returns storage.RealizedReturnStore) *Sampler {
	return &Sampler{
		resolver: resolver,
		index:    index,
		returns:  returns,
	}
}

// Sample resolves the anchor, searches the index within
// [anchor_ts - lookback, anchor_ts] excluding the anchor itself, and fetches
// realized returns of (symbol, horizon) from a window of PriceWindowMinutes
// centered on each neighbor's own timestamp. Neighbors never postdate the
// anchor, so the forecast is computable as of the anchor's time.
//
// Zero neighbors, or neighbors with no attached returns, is not an error:
// the result simply carries an empty sample list.
func (s *Sampler) Sample(ctx context.Context, eventID, symbol string, horizonMinutes int, p Params) (*Result, error) {
	if p.KNeighbors <= 0 || p.LookbackDays <= 0 || p.PriceWindowMinutes <= 0 {
		return nil, fmt.Errorf("sampler: non-positive params: %+v", p)
	}

	a, err := s.resolver.Resolve(ctx, eventID)
	if err != nil {
		return nil, err
	}

	lookback := time.Duration(p.LookbackDays) * 24 * time.Hour
	matches, err := s.index.Search(ctx, a.Embedding, p.KNeighbors, vectorindex.SearchOptions{
		ExcludeID: a.EventID,
		NotBefore: a.Timestamp.Add(-lookback),
		NotAfter:  a.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("neighbor search for %s: %w", eventID, err)
	}

	result := &Result{Anchor: a, Neighbors: len(matches)}
	halfWindow := time.Duration(p.PriceWindowMinutes) * time.Minute / 2

	for _, m := range matches {
		// The window is centered on the neighbor's own timestamp, capped at
		// the anchor's time so no row postdates the anchor.
		start := m.Metadata.Timestamp.Add(-halfWindow)
		end := m.Metadata.Timestamp.Add(halfWindow)
		if end.After(a.Timestamp) {
			end = a.Timestamp
		}

		rows, err := s.returns.GetWindow(ctx, symbol, horizonMinutes, start, end)
		if err != nil {
			return nil, fmt.Errorf("realized returns for neighbor %s: %w", m.ID, err)
		}

		for _, r := range rows {
			result.Samples = append(result.Samples, domain.ForecastSample{
				Distance:       m.Distance,
				RealizedReturn: r.RealizedReturn,
			})
		}
	}

	return result, nil
}
