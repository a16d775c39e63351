package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"event-forecast-lab/internal/anchor"
	"event-forecast-lab/internal/backtest"
	"event-forecast-lab/internal/forecast"
	"event-forecast-lab/internal/observability"
	"event-forecast-lab/internal/regime"
	"event-forecast-lab/internal/reporting"
	"event-forecast-lab/internal/retry"
	"event-forecast-lab/internal/sampler"
	"event-forecast-lab/internal/storage"
	chstore "event-forecast-lab/internal/storage/clickhouse"
	"event-forecast-lab/internal/storage/duckdb"
	pgstore "event-forecast-lab/internal/storage/postgres"
	"event-forecast-lab/internal/vectorindex"
)

func main() {
	// Grid
	modelID := flag.String("model-id", "", "Model identifier (default: generated)")
	symbols := flag.String("symbols", "", "Comma-separated symbols to backtest (required)")
	horizonMinutes := flag.Int("horizon-minutes", 60, "Forecast horizon in minutes")
	startStr := flag.String("start", "", "Grid start, RFC3339 (required)")
	endStr := flag.String("end", "", "Grid end, RFC3339 (required)")
	sampleFrequency := flag.Int("sample-frequency", backtest.DefaultSampleFrequency, "Evaluate every Nth as-of instant")
	workers := flag.Int("workers", backtest.DefaultWorkers, "Concurrent cell evaluations")

	// Tuning
	kNeighbors := flag.Int("k", forecast.DefaultKNeighbors, "Neighbors to sample")
	lookbackDays := flag.Int("lookback-days", backtest.DefaultLookbackDays, "Neighbor lookback window in days")
	priceWindowMinutes := flag.Int("price-window-minutes", forecast.DefaultPriceWindowMinutes, "Width of each neighbor's outcome window")
	alpha := flag.Float64("alpha", forecast.DefaultAlpha, "Distance decay rate")
	directionThreshold := flag.Float64("direction-threshold", backtest.DefaultDirectionThreshold, "Flat band around zero expected return")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string for events (required)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for returns and rows")
	duckdbPath := flag.String("duckdb", "", "DuckDB file for returns and rows (alternative to ClickHouse)")
	persist := flag.Bool("persist", false, "Persist dataset rows to storage")

	// Index
	milvusAddr := flag.String("milvus-addr", "", "Milvus address; empty builds an in-process index from stored events")

	// Output
	csvPath := flag.String("csv", "", "Write dataset rows as CSV to this file")
	reportPath := flag.String("report", "", "Write the Markdown report to this file (default: stdout)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	if *symbols == "" {
		logger.Fatal("--symbols is required")
	}
	if *startStr == "" || *endStr == "" {
		logger.Fatal("--start and --end are required")
	}
	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		logger.Fatalf("invalid --start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, *endStr)
	if err != nil {
		logger.Fatalf("invalid --end: %v", err)
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if (*clickhouseDSN == "") == (*duckdbPath == "") {
		logger.Fatal("exactly one of --clickhouse-dsn or --duckdb is required")
	}

	if *modelID == "" {
		*modelID = "model-" + uuid.NewString()[:8]
		logger.Printf("Generated model id %s", *modelID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	var metrics *observability.Metrics
	if *metricsAddr != "" {
		metrics = observability.NewMetrics("")
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Events live in PostgreSQL.
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()
	events := pgstore.NewEventStore(pool)

	// Returns and dataset rows live in ClickHouse or DuckDB.
	var returns storage.RealizedReturnStore
	var rows storage.BacktestRowStore
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()
		returns = chstore.NewRealizedReturnStore(conn)
		rows = chstore.NewBacktestRowStore(conn)
	} else {
		client, err := duckdb.NewClient(*duckdbPath)
		if err != nil {
			logger.Fatalf("open duckdb: %v", err)
		}
		defer client.Close()
		if err := client.InitSchema(); err != nil {
			logger.Fatalf("init duckdb schema: %v", err)
		}
		returns = duckdb.NewRealizedReturnStore(client)
		rows = duckdb.NewBacktestRowStore(client)
	}

	index, cleanup, err := buildIndex(ctx, logger, events, *milvusAddr, start, end, *lookbackDays)
	if err != nil {
		logger.Fatalf("build index: %v", err)
	}
	defer cleanup()
	index = vectorindex.NewInstrumented(index, metrics)

	engine := forecast.NewEngine(forecast.EngineOptions{
		Sampler: sampler.New(anchor.NewResolver(events), index, returns),
		Logger:  logger,
		Metrics: metrics,
	})

	var rowStore storage.BacktestRowStore
	if *persist {
		rowStore = rows
	}

	harness := backtest.New(backtest.Options{
		Engine:      engine,
		EventStore:  events,
		ReturnStore: returns,
		RowStore:    rowStore,
		Classifier:  regime.NewHeuristic(returns, regime.HeuristicOptions{}),
		Logger:      logger,
		Metrics:     metrics,
	})

	symbolList := splitSymbols(*symbols)
	logger.Printf("Running backtest: model=%s symbols=%v horizon=%dm grid=[%s, %s]",
		*modelID, symbolList, *horizonMinutes, start.Format(time.RFC3339), end.Format(time.RFC3339))

	dataset, err := harness.BuildDataset(ctx, backtest.Params{
		ModelID:            *modelID,
		Symbols:            symbolList,
		HorizonMinutes:     *horizonMinutes,
		Start:              start,
		End:                end,
		LookbackDays:       *lookbackDays,
		SampleFrequency:    *sampleFrequency,
		Workers:            *workers,
		DirectionThreshold: *directionThreshold,
		KNeighbors:         *kNeighbors,
		PriceWindowMinutes: *priceWindowMinutes,
		Alpha:              *alpha,
	})
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}
	logger.Printf("Dataset built: rows=%d evaluated=%d skipped=%d",
		len(dataset.Rows), dataset.CellsEvaluated, dataset.CellsSkipped)

	if *csvPath != "" {
		if err := os.WriteFile(*csvPath, []byte(reporting.RenderRowsCSV(dataset.Rows)), 0o644); err != nil {
			logger.Fatalf("write csv: %v", err)
		}
		logger.Printf("Wrote %d rows to %s", len(dataset.Rows), *csvPath)
	}

	report := backtest.BuildReport(*modelID, dataset.Rows, backtest.ReportOptions{})
	markdown := reporting.RenderMarkdown(report)
	if *reportPath != "" {
		if err := os.WriteFile(*reportPath, []byte(markdown), 0o644); err != nil {
			logger.Fatalf("write report: %v", err)
		}
		logger.Printf("Wrote report to %s", *reportPath)
	} else {
		fmt.Println(markdown)
	}
}

// buildIndex returns the Milvus index when an address is given, otherwise an
// in-process index loaded with every embedded event the grid can anchor on.
func buildIndex(ctx context.Context, logger *log.Logger, events storage.EventStore, milvusAddr string, start, end time.Time, lookbackDays int) (vectorindex.Index, func(), error) {
	lookback := time.Duration(lookbackDays) * 24 * time.Hour
	candidates, err := events.GetByTimeRange(ctx, start.Add(-lookback), end)
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}

	dimension := 0
	for _, e := range candidates {
		if e.HasEmbedding() {
			dimension = len(e.Embedding)
			break
		}
	}
	if dimension == 0 {
		return nil, nil, fmt.Errorf("no embedded events in [%s, %s]",
			start.Add(-lookback).Format(time.RFC3339), end.Format(time.RFC3339))
	}

	if milvusAddr != "" {
		cfg := vectorindex.DefaultMilvusConfig(dimension)
		cfg.Address = milvusAddr
		idx, err := vectorindex.NewMilvusIndex(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return vectorindex.NewRetrying(idx, retry.DefaultPolicy()), func() { _ = idx.Close() }, nil
	}

	idx := vectorindex.NewBruteForce(dimension)
	entries := make([]vectorindex.Entry, 0, len(candidates))
	for _, e := range candidates {
		if !e.HasEmbedding() {
			continue
		}
		entries = append(entries, vectorindex.Entry{
			ID:     e.EventID,
			Vector: e.Embedding,
			Metadata: vectorindex.Metadata{
				Timestamp:  e.OccurredAt,
				Source:     e.Source,
				Categories: e.Categories,
			},
		})
	}
	n, err := idx.InsertBatch(ctx, entries)
	if err != nil {
		return nil, nil, fmt.Errorf("populate index: %w", err)
	}
	logger.Printf("Built in-process index with %d events", n)
	return idx, func() {}, nil
}

// splitSymbols parses the comma-separated symbol list.
func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
