package domain

import (
	"fmt"
	"time"
)

// RealizedReturn records the observed outcome of holding a symbol from AsOf
// over HorizonMinutes. Corresponds to realized_returns in ClickHouse.
// Unique on (symbol, as_of, horizon_minutes); append-only. Re-running an
// ingestion job must never duplicate or overwrite a row.
type RealizedReturn struct {
	Symbol         string    // asset identifier: crypto pair, ticker, or team code
	AsOf           time.Time // window start, UTC
	HorizonMinutes int       // forward window length
	PriceStart     float64   // price at AsOf, > 0
	PriceEnd       float64   // price at AsOf + horizon, > 0
	RealizedReturn float64   // (PriceEnd - PriceStart) / PriceStart
}

// NewRealizedReturn builds a row with the derived return populated.
func NewRealizedReturn(symbol string, asOf time.Time, horizonMinutes int, priceStart, priceEnd float64) (*RealizedReturn, error) {
	if err := ValidateInstant(asOf); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("realized return: empty symbol")
	}
	if horizonMinutes <= 0 {
		return nil, fmt.Errorf("realized return: horizon must be positive, got %d", horizonMinutes)
	}
	if priceStart <= 0 || priceEnd <= 0 {
		return nil, fmt.Errorf("realized return: prices must be positive, got start=%v end=%v", priceStart, priceEnd)
	}
	return &RealizedReturn{
		Symbol:         symbol,
		AsOf:           asOf.UTC(),
		HorizonMinutes: horizonMinutes,
		PriceStart:     priceStart,
		PriceEnd:       priceEnd,
		RealizedReturn: (priceEnd - priceStart) / priceStart,
	}, nil
}

// Key returns the composite uniqueness key.
func (r *RealizedReturn) Key() string {
	return fmt.Sprintf("%s|%d|%d", r.Symbol, r.AsOf.UTC().UnixMilli(), r.HorizonMinutes)
}
