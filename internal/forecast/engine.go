package forecast

import (
	"context"
	"fmt"
	"log"
	"os"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/observability"
	"event-forecast-lab/internal/sampler"
)

// Default request parameters.
const (
	DefaultKNeighbors         = 25
	DefaultLookbackDays       = 365
	DefaultPriceWindowMinutes = 60
	DefaultAlpha              = 0.5
)

// Request is one forecast invocation. Zero-valued tuning fields are replaced
// by the package defaults.
type Request struct {
	EventID            string
	Symbol             string
	HorizonMinutes     int
	KNeighbors         int
	LookbackDays       int
	PriceWindowMinutes int
	Alpha              float64
}

// withDefaults fills zero-valued tuning fields.
func (r Request) withDefaults() Request {
	if r.KNeighbors == 0 {
		r.KNeighbors = DefaultKNeighbors
	}
	if r.LookbackDays == 0 {
		r.LookbackDays = DefaultLookbackDays
	}
	if r.PriceWindowMinutes == 0 {
		r.PriceWindowMinutes = DefaultPriceWindowMinutes
	}
	if r.Alpha == 0 {
		r.Alpha = DefaultAlpha
	}
	return r
}

// Engine is the event-conditioned forecasting engine. Stateless per call;
// results are never cached because the underlying index and store can change
// between calls.
type Engine struct {
	sampler *sampler.Sampler
	logger  *log.Logger
	metrics *observability.Metrics
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Sampler *sampler.Sampler
	Logger  *log.Logger
	Metrics *observability.Metrics // optional
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[forecast] ", log.LstdFlags)
	}
	return &Engine{
		sampler: opts.Sampler,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// ForecastEventReturn resolves the event, samples its neighbors' aftermaths,
// and aggregates them into a distance-weighted forecast distribution.
func (e *Engine) ForecastEventReturn(ctx context.Context, req Request) (*domain.ForecastResult, error) {
	req = req.withDefaults()

	if req.EventID == "" {
		return nil, fmt.Errorf("forecast: event id is required")
	}
	if req.Symbol == "" {
		return nil, fmt.Errorf("forecast: symbol is required")
	}
	if req.HorizonMinutes <= 0 {
		return nil, fmt.Errorf("forecast: horizon must be positive, got %d", req.HorizonMinutes)
	}
	if req.Alpha <= 0 {
		return nil, fmt.Errorf("forecast: alpha must be positive, got %v", req.Alpha)
	}

	res, err := e.sampler.Sample(ctx, req.EventID, req.Symbol, req.HorizonMinutes, sampler.Params{
		KNeighbors:         req.KNeighbors,
		LookbackDays:       req.LookbackDays,
		PriceWindowMinutes: req.PriceWindowMinutes,
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.ForecastErrors.Inc()
		}
		return nil, err
	}

	stats := Aggregate(res.Samples, req.Alpha)
	if stats.SampleSize == 0 {
		e.logger.Printf("event %s: no neighbor samples, returning neutral prior", req.EventID)
	}

	if e.metrics != nil {
		e.metrics.ForecastsComputed.Inc()
		e.metrics.ForecastSampleSize.Observe(float64(stats.SampleSize))
	}

	neighborsUsed := req.KNeighbors
	if stats.SampleSize < neighborsUsed {
		neighborsUsed = stats.SampleSize
	}

	return &domain.ForecastResult{
		EventID:        req.EventID,
		Symbol:         req.Symbol,
		HorizonMinutes: req.HorizonMinutes,
		ExpectedReturn: stats.ExpectedReturn,
		StdReturn:      stats.StdReturn,
		PUp:            stats.PUp,
		PDown:          stats.PDown,
		SampleSize:     stats.SampleSize,
		NeighborsUsed:  neighborsUsed,
	}, nil
}
