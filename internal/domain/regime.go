package domain

import "time"

// RegimeLabel is a coarse label of recent market behavior, used to stratify
// backtest results.
type RegimeLabel string

// Regime labels.
const (
	RegimeUptrend   RegimeLabel = "uptrend"
	RegimeDowntrend RegimeLabel = "downtrend"
	RegimeChop      RegimeLabel = "chop"
	RegimeUnknown   RegimeLabel = "unknown" // insufficient history at the as-of
)

// RegimeResult is a derived classification, recomputed on demand and never
// persisted as authoritative state.
type RegimeResult struct {
	Symbol   string
	AsOf     time.Time
	Label    RegimeLabel
	Strength float64 // momentum magnitude backing the label
}
