package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-forecast-lab/internal/anchor"
	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/forecast"
	"event-forecast-lab/internal/retry"
	"event-forecast-lab/internal/sampler"
	"event-forecast-lab/internal/storage"
	chstore "event-forecast-lab/internal/storage/clickhouse"
	"event-forecast-lab/internal/storage/duckdb"
	pgstore "event-forecast-lab/internal/storage/postgres"
	"event-forecast-lab/internal/vectorindex"
)

func main() {
	// Forecast target
	eventID := flag.String("event-id", "", "Anchor event ID (required)")
	symbol := flag.String("symbol", "", "Symbol to forecast (required)")
	horizonMinutes := flag.Int("horizon-minutes", 60, "Forecast horizon in minutes")

	// Tuning
	kNeighbors := flag.Int("k", forecast.DefaultKNeighbors, "Neighbors to sample")
	lookbackDays := flag.Int("lookback-days", forecast.DefaultLookbackDays, "Neighbor lookback window in days")
	priceWindowMinutes := flag.Int("price-window-minutes", forecast.DefaultPriceWindowMinutes, "Width of each neighbor's outcome window")
	alpha := flag.Float64("alpha", forecast.DefaultAlpha, "Distance decay rate")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string for events (required)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for realized returns")
	duckdbPath := flag.String("duckdb", "", "DuckDB file for realized returns (alternative to ClickHouse)")

	// Index
	milvusAddr := flag.String("milvus-addr", "", "Milvus address; empty builds an in-process index from stored events")

	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[forecast] ", log.LstdFlags)

	if *eventID == "" {
		logger.Fatal("--event-id is required")
	}
	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if (*clickhouseDSN == "") == (*duckdbPath == "") {
		logger.Fatal("exactly one of --clickhouse-dsn or --duckdb is required")
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

	// Events live in PostgreSQL.
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()
	events := pgstore.NewEventStore(pool)

	// Realized returns live in ClickHouse or DuckDB.
	var returns storage.RealizedReturnStore
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()
		returns = chstore.NewRealizedReturnStore(conn)
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
	}

	index, cleanup, err := buildIndex(ctx, logger, events, *milvusAddr, *eventID, *lookbackDays)
	if err != nil {
		logger.Fatalf("build index: %v", err)
	}
	defer cleanup()

	engine := forecast.NewEngine(forecast.EngineOptions{
		Sampler: sampler.New(anchor.NewResolver(events), index, returns),
		Logger:  logger,
	})

	result, err := engine.ForecastEventReturn(ctx, forecast.Request{
		EventID:            *eventID,
		Symbol:             *symbol,
		HorizonMinutes:     *horizonMinutes,
		KNeighbors:         *kNeighbors,
		LookbackDays:       *lookbackDays,
		PriceWindowMinutes: *priceWindowMinutes,
		Alpha:              *alpha,
	})
	if err != nil {
		logger.Fatalf("forecast failed: %v", err)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		printResult(result)
	}
}

// buildIndex returns the Milvus index when an address is given, otherwise an
// in-process index loaded with the embedded events inside the anchor's
// lookback window.
func buildIndex(ctx context.Context, logger *log.Logger, events storage.EventStore, milvusAddr, eventID string, lookbackDays int) (vectorindex.Index, func(), error) {
	anchorEvent, err := events.GetByID(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("load anchor event: %w", err)
	}
	if !anchorEvent.HasEmbedding() {
		return nil, nil, fmt.Errorf("anchor event %s has no embedding", eventID)
	}

	if milvusAddr != "" {
		cfg := vectorindex.DefaultMilvusConfig(len(anchorEvent.Embedding))
		cfg.Address = milvusAddr
		idx, err := vectorindex.NewMilvusIndex(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return vectorindex.NewRetrying(idx, retry.DefaultPolicy()), func() { _ = idx.Close() }, nil
	}

	lookback := time.Duration(lookbackDays) * 24 * time.Hour
	candidates, err := events.GetByTimeRange(ctx, anchorEvent.OccurredAt.Add(-lookback), anchorEvent.OccurredAt)
	if err != nil {
		return nil, nil, fmt.Errorf("load candidate events: %w", err)
	}

	idx := vectorindex.NewBruteForce(len(anchorEvent.Embedding))
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

// printResult outputs a human-readable forecast.
func printResult(r *domain.ForecastResult) {
	fmt.Println()
	fmt.Println("=== Forecast ===")
	fmt.Printf("Event:            %s\n", r.EventID)
	fmt.Printf("Symbol:           %s\n", r.Symbol)
	fmt.Printf("Horizon:          %d minutes\n", r.HorizonMinutes)
	fmt.Printf("Expected return:  %+.6f\n", r.ExpectedReturn)
	fmt.Printf("Std return:       %.6f\n", r.StdReturn)
	fmt.Printf("P(up):            %.4f\n", r.PUp)
	fmt.Printf("P(down):          %.4f\n", r.PDown)
	fmt.Printf("Sample size:      %d\n", r.SampleSize)
	fmt.Printf("Neighbors used:   %d\n", r.NeighborsUsed)
}
