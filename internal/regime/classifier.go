// Package regime labels coarse market context at a point in time. The label
// is a diagnostic dimension for backtest stratification, never an input to
// the forecast itself.
package regime

import (
	"context"
	"fmt"
	"math"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/lookup"
	"event-forecast-lab/internal/storage"
)

// Classifier labels a (symbol, as-of) pair. Implementations must be cheap
// and substitutable.
type Classifier interface {
	Classify(ctx context.Context, symbol string, asOf time.Time, horizonMinutes int) (*domain.RegimeResult, error)
}

// Default heuristic parameters.
const (
	DefaultMomentumWindow = 24 * time.Hour
	DefaultVolWindow      = 7 * 24 * time.Hour
	DefaultBaseThreshold  = 0.005
	DefaultVolCoefficient = 0.5
	DefaultMinRows        = 3
)

// HeuristicOptions tunes the Heuristic classifier. Zero-valued fields use the
// package defaults.
type HeuristicOptions struct {
	MomentumWindow time.Duration // window for cumulative return
	VolWindow      time.Duration // window for volatility estimate
	BaseThreshold  float64       // minimum momentum for a trend label
	VolCoefficient float64       // threshold widening per unit volatility
	MinRows        int           // rows required before labeling at all
}

func (o HeuristicOptions) withDefaults() HeuristicOptions {
	if o.MomentumWindow == 0 {
		o.MomentumWindow = DefaultMomentumWindow
	}
	if o.VolWindow == 0 {
		o.VolWindow = DefaultVolWindow
	}
	if o.BaseThreshold == 0 {
		o.BaseThreshold = DefaultBaseThreshold
	}
	if o.VolCoefficient == 0 {
		o.VolCoefficient = DefaultVolCoefficient
	}
	if o.MinRows == 0 {
		o.MinRows = DefaultMinRows
	}
	return o
}

// Heuristic is a three-way momentum-vs-volatility rule: momentum beyond
// base_threshold + coefficient*volatility is a trend, everything else is chop.
type Heuristic struct {
	returns storage.RealizedReturnStore
	opts    HeuristicOptions
}

var _ Classifier = (*Heuristic)(nil)

// NewHeuristic creates a Heuristic classifier backed by a realized-return store.
func NewHeuristic(returns storage.RealizedReturnStore, opts HeuristicOptions) *Heuristic {
	return &Heuristic{
		returns: returns,
		opts:    opts.withDefaults(),
	}
}

// Classify labels the symbol's context at asOf. Only returns whose horizon
// completed strictly before asOf are considered: a return stamped at T with
// horizon H is observable at T+H, so the cursor sits at asOf minus the
// horizon.
func (h *Heuristic) Classify(ctx context.Context, symbol string, asOf time.Time, horizonMinutes int) (*domain.RegimeResult, error) {
	if err := domain.ValidateInstant(asOf); err != nil {
		return nil, fmt.Errorf("regime: %w", err)
	}
	if horizonMinutes <= 0 {
		return nil, fmt.Errorf("regime: horizon must be positive, got %d", horizonMinutes)
	}

	cursor := asOf.Add(-time.Duration(horizonMinutes) * time.Minute)
	from := cursor.Add(-h.opts.VolWindow)

	rows, err := h.returns.GetWindow(ctx, symbol, horizonMinutes, from, cursor)
	if err != nil {
		return nil, fmt.Errorf("regime: fetch window for %s: %w", symbol, err)
	}

	hist, err := lookup.NewHistory(rows)
	if err != nil {
		return nil, fmt.Errorf("regime: %w", err)
	}

	result := &domain.RegimeResult{
		Symbol: symbol,
		AsOf:   asOf,
	}

	if hist.Len() < h.opts.MinRows {
		result.Label = domain.RegimeUnknown
		return result, nil
	}

	momentum := hist.CumulativeReturn(cursor, h.opts.MomentumWindow)
	vol := hist.Volatility(cursor, h.opts.VolWindow)
	threshold := h.opts.BaseThreshold + h.opts.VolCoefficient*vol

	switch {
	case momentum > threshold:
		result.Label = domain.RegimeUptrend
		result.Strength = momentum
	case momentum < -threshold:
		result.Label = domain.RegimeDowntrend
		result.Strength = -momentum
	default:
		result.Label = domain.RegimeChop
		result.Strength = math.Abs(momentum)
	}
	return result, nil
}
