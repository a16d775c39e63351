package domain

// ForecastSample is one (distance, realized return) pair contributed by a
// neighbor. Ephemeral: it exists only within a single forecast computation
// and is never persisted.
type ForecastSample struct {
	Distance       float64 // embedding distance to the anchor, lower = more similar
	RealizedReturn float64
}

// ForecastResult is the distance-weighted forecast for one anchor event.
// Produced fresh per call; never cached, because the underlying index and
// store can change between calls.
type ForecastResult struct {
	EventID        string  `json:"event_id"`
	Symbol         string  `json:"symbol"`
	HorizonMinutes int     `json:"horizon_minutes"`
	ExpectedReturn float64 `json:"expected_return"`
	StdReturn      float64 `json:"std_return"`
	PUp            float64 `json:"p_up"`
	PDown          float64 `json:"p_down"` // 1 - PUp by construction
	SampleSize     int     `json:"sample_size"`
	NeighborsUsed  int     `json:"neighbors_used"` // min(k_neighbors, sample_size), diagnostic only
}
