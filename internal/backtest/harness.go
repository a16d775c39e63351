// Package backtest drives the forecasting engine across a grid of historical
// as-of instants and scores each forecast against the realized outcome.
//
// Each (symbol, as-of) cell is independent: it reads from the index and the
// stores, pretends "now" is the historical as-of, and writes exactly one row.
// Ground truth is fetched only after the forecast for the cell is finalized.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/forecast"
	"event-forecast-lab/internal/idhash"
	"event-forecast-lab/internal/observability"
	"event-forecast-lab/internal/regime"
	"event-forecast-lab/internal/storage"
)

// Default harness parameters.
const (
	DefaultLookbackDays       = 60
	DefaultSampleFrequency    = 1
	DefaultWorkers            = 4
	DefaultDirectionThreshold = 0.001
)

// Params configures one dataset build. Zero-valued tuning fields are replaced
// by the package defaults.
type Params struct {
	ModelID        string
	Symbols        []string
	HorizonMinutes int
	Start          time.Time
	End            time.Time

	// LookbackDays bounds the engine's neighbor search for every cell.
	LookbackDays int
	// SampleFrequency keeps every Nth distinct as-of; 1 keeps all.
	SampleFrequency int
	// Workers bounds concurrent cell evaluation.
	Workers int
	// DirectionThreshold is the symmetric up/down/flat boundary applied to
	// both predicted and actual returns.
	DirectionThreshold float64

	// Engine tuning forwarded to each forecast call.
	KNeighbors         int
	PriceWindowMinutes int
	Alpha              float64
}

func (p Params) withDefaults() Params {
	if p.LookbackDays == 0 {
		p.LookbackDays = DefaultLookbackDays
	}
	if p.SampleFrequency == 0 {
		p.SampleFrequency = DefaultSampleFrequency
	}
	if p.Workers == 0 {
		p.Workers = DefaultWorkers
	}
	if p.DirectionThreshold == 0 {
		p.DirectionThreshold = DefaultDirectionThreshold
	}
	return p
}

func (p Params) validate() error {
	if p.ModelID == "" {
		return fmt.Errorf("backtest: model id is required")
	}
	if len(p.Symbols) == 0 {
		return fmt.Errorf("backtest: at least one symbol is required")
	}
	if p.HorizonMinutes <= 0 {
		return fmt.Errorf("backtest: horizon must be positive, got %d", p.HorizonMinutes)
	}
	if err := domain.ValidateInstant(p.Start); err != nil {
		return fmt.Errorf("backtest: start: %w", err)
	}
	if err := domain.ValidateInstant(p.End); err != nil {
		return fmt.Errorf("backtest: end: %w", err)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("backtest: end %s before start %s", p.End, p.Start)
	}
	if p.SampleFrequency < 1 {
		return fmt.Errorf("backtest: sample frequency must be >= 1, got %d", p.SampleFrequency)
	}
	if p.Workers < 1 {
		return fmt.Errorf("backtest: workers must be >= 1, got %d", p.Workers)
	}
	return nil
}

// Dataset is the output of one build: the flat row set plus run accounting.
type Dataset struct {
	ModelID        string
	Rows           []*domain.BacktestRow
	CellsEvaluated int
	CellsSkipped   int
	Errors         []string // one entry per skipped cell
}

// Harness drives the forecasting engine across historical as-of grids.
type Harness struct {
	engine     *forecast.Engine
	events     storage.EventStore
	returns    storage.RealizedReturnStore
	rows       storage.BacktestRowStore // optional persistence
	classifier regime.Classifier        // optional
	logger     *log.Logger
	metrics    *observability.Metrics
}

// Options for creating a Harness.
type Options struct {
	Engine      *forecast.Engine
	EventStore  storage.EventStore
	ReturnStore storage.RealizedReturnStore

	// RowStore, when set, receives the dataset rows after the build.
	RowStore storage.BacktestRowStore
	// Classifier, when set, labels each cell's regime.
	Classifier regime.Classifier

	Logger  *log.Logger
	Metrics *observability.Metrics
}

// New creates a Harness.
func New(opts Options) *Harness {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[backtest] ", log.LstdFlags)
	}
	return &Harness{
		engine:     opts.Engine,
		events:     opts.EventStore,
		returns:    opts.ReturnStore,
		rows:       opts.RowStore,
		classifier: opts.Classifier,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// BuildDataset evaluates the full (symbol, as-of) grid. Cell failures are
// logged and skipped rather than aborting the run; cancellation stops
// submission of new cells while in-flight cells run to completion.
func (h *Harness) BuildDataset(ctx context.Context, params Params) (*Dataset, error) {
	params = params.withDefaults()
	if err := params.validate(); err != nil {
		return nil, err
	}

	dataset := &Dataset{ModelID: params.ModelID}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Workers)

	for _, symbol := range params.Symbols {
		instants, err := h.returns.DistinctAsOf(ctx, symbol, params.HorizonMinutes, params.Start, params.End)
		if err != nil {
			return nil, fmt.Errorf("backtest: enumerate as-of grid for %s: %w", symbol, err)
		}
		instants = downsample(instants, params.SampleFrequency)
		h.logger.Printf("symbol %s: %d as-of instants after sampling", symbol, len(instants))

		for _, asOf := range instants {
			if gctx.Err() != nil {
				break
			}
			symbol, asOf := symbol, asOf
			g.Go(func() error {
				row, err := h.evaluateCell(gctx, params, symbol, asOf)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					dataset.CellsSkipped++
					dataset.Errors = append(dataset.Errors,
						fmt.Sprintf("%s@%s: %v", symbol, domain.FormatInstant(asOf), err))
					h.logger.Printf("cell %s@%s skipped: %v", symbol, domain.FormatInstant(asOf), err)
					if h.metrics != nil {
						h.metrics.BacktestCellsFailed.Inc()
					}
					return nil
				}
				dataset.CellsEvaluated++
				dataset.Rows = append(dataset.Rows, row)
				if h.metrics != nil {
					h.metrics.BacktestCellsEvaluated.Inc()
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Cells complete in worker order; fix the output order for reproducibility.
	sort.Slice(dataset.Rows, func(i, j int) bool {
		if dataset.Rows[i].Symbol != dataset.Rows[j].Symbol {
			return dataset.Rows[i].Symbol < dataset.Rows[j].Symbol
		}
		return dataset.Rows[i].AsOf.Before(dataset.Rows[j].AsOf)
	})

	if h.rows != nil && len(dataset.Rows) > 0 {
		if err := h.rows.InsertBatch(ctx, dataset.Rows); err != nil {
			return nil, fmt.Errorf("backtest: persist %d rows: %w", len(dataset.Rows), err)
		}
		if h.metrics != nil {
			h.metrics.BacktestRowsPersisted.Add(float64(len(dataset.Rows)))
		}
	}

	h.logger.Printf("model %s: %d rows, %d cells skipped", params.ModelID, len(dataset.Rows), dataset.CellsSkipped)
	return dataset, nil
}

// evaluateCell runs one (symbol, as-of) cell: forecast first, ground truth
// strictly after the forecast is finalized.
func (h *Harness) evaluateCell(ctx context.Context, params Params, symbol string, asOf time.Time) (*domain.BacktestRow, error) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.BacktestCellDuration.Observe(time.Since(start).Seconds())
		}
	}()

	anchorEvent, err := h.events.LatestEmbeddedBefore(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("resolve anchor at %s: %w", domain.FormatInstant(asOf), err)
	}

	result, err := h.engine.ForecastEventReturn(ctx, forecast.Request{
		EventID:            anchorEvent.EventID,
		Symbol:             symbol,
		HorizonMinutes:     params.HorizonMinutes,
		KNeighbors:         params.KNeighbors,
		LookbackDays:       params.LookbackDays,
		PriceWindowMinutes: params.PriceWindowMinutes,
		Alpha:              params.Alpha,
	})
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	regimeLabel := domain.RegimeUnknown
	if h.classifier != nil {
		res, err := h.classifier.Classify(ctx, symbol, asOf, params.HorizonMinutes)
		if err != nil {
			return nil, fmt.Errorf("classify regime: %w", err)
		}
		regimeLabel = res.Label
	}

	row := &domain.BacktestRow{
		RowID:              idhash.ComputeRowID(params.ModelID, symbol, asOf, params.HorizonMinutes),
		ModelID:            params.ModelID,
		Symbol:             symbol,
		AsOf:               asOf,
		HorizonMinutes:     params.HorizonMinutes,
		ExpectedReturn:     result.ExpectedReturn,
		PredictedDirection: domain.ClassifyDirection(result.ExpectedReturn, params.DirectionThreshold),
		Confidence:         confidence(result),
		SampleSize:         result.SampleSize,
		Regime:             regimeLabel,
		CreatedAt:          time.Now().UTC(),
	}

	// The forecast above is final; only now may the cell look past the as-of.
	truth, err := h.returns.GetByKey(ctx, symbol, asOf, params.HorizonMinutes)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Row stays unscored; realized fields remain null.
	case err != nil:
		return nil, fmt.Errorf("fetch ground truth: %w", err)
	default:
		realized := truth.RealizedReturn
		actual := domain.ClassifyDirection(realized, params.DirectionThreshold)
		correct := row.PredictedDirection == actual
		row.RealizedReturn = &realized
		row.ActualDirection = &actual
		row.DirectionCorrect = &correct
	}

	return row, nil
}

// confidence is the probability mass behind the forecast's leaning.
func confidence(r *domain.ForecastResult) float64 {
	if r.PUp >= r.PDown {
		return r.PUp
	}
	return r.PDown
}

// downsample keeps every nth element starting from the first.
func downsample(instants []time.Time, n int) []time.Time {
	if n <= 1 {
		return instants
	}
	out := make([]time.Time, 0, (len(instants)+n-1)/n)
	for i := 0; i < len(instants); i += n {
		out = append(out, instants[i])
	}
	return out
}
