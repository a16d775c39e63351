package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"event-forecast-lab/internal/embedding"
	"event-forecast-lab/internal/ingestion"
	"event-forecast-lab/internal/observability"
	"event-forecast-lab/internal/retry"
	"event-forecast-lab/internal/storage"
	"event-forecast-lab/internal/storage/memory"
	pgstore "event-forecast-lab/internal/storage/postgres"
	"event-forecast-lab/internal/vectorindex"
)

func main() {
	// Input
	inputPath := flag.String("input", "-", "JSON Lines input file, '-' for stdin")
	backfill := flag.Bool("backfill", false, "Embed stored events that have no embedding instead of reading input")
	fromTime := flag.String("from-time", "", "Backfill range start, RFC3339")
	toTime := flag.String("to-time", "", "Backfill range end, RFC3339")

	// Embedding
	embedDimension := flag.Int("embed-dim", 256, "Embedding dimension of the local provider")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (dry runs)")
	migrate := flag.Bool("migrate", false, "Apply schema migrations before loading")

	// Index
	milvusAddr := flag.String("milvus-addr", "", "Milvus address; empty uses an in-process index")

	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stderr, "[ingest] ", log.LstdFlags)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required when not using --use-memory")
	}

	loadID := uuid.NewString()[:8]
	logger.Printf("Starting load %s", loadID)

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

	var events storage.EventStore = memory.NewEventStore()
	if !*useMemory {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		if *migrate {
			if err := pool.ApplyMigrations(ctx); err != nil {
				logger.Fatalf("apply migrations: %v", err)
			}
			logger.Println("Migrations applied")
		}
		events = pgstore.NewEventStore(pool)
	}

	var index vectorindex.Index = vectorindex.NewBruteForce(*embedDimension)
	if *milvusAddr != "" {
		cfg := vectorindex.DefaultMilvusConfig(*embedDimension)
		cfg.Address = *milvusAddr
		milvus, err := vectorindex.NewMilvusIndex(ctx, cfg)
		if err != nil {
			logger.Fatalf("connect to milvus: %v", err)
		}
		defer milvus.Close()
		index = vectorindex.NewRetrying(milvus, retry.DefaultPolicy())
	}
	index = vectorindex.NewInstrumented(index, metrics)

	// The local provider is both primary and fallback until a remote
	// provider is wired in; the wrapper keeps the degraded-mode path and
	// its counter live either way.
	provider, err := embedding.NewFallback(embedding.FallbackOptions{
		Primary: embedding.NewLocal(*embedDimension),
		Policy:  retry.DefaultPolicy(),
		Logger:  logger,
		OnDegraded: func() {
			if metrics != nil {
				metrics.DegradedEmbeddings.Inc()
			}
		},
	})
	if err != nil {
		logger.Fatalf("build embedding provider: %v", err)
	}

	loader, err := ingestion.NewLoader(ingestion.LoaderOptions{
		EventStore: events,
		Index:      index,
		Embedder:   provider,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		logger.Fatalf("build loader: %v", err)
	}

	if *backfill {
		runBackfill(ctx, logger, loader, *fromTime, *toTime)
		return
	}

	var input io.ReadCloser = os.Stdin
	if *inputPath != "-" {
		f, err := os.Open(*inputPath)
		if err != nil {
			logger.Fatalf("open input: %v", err)
		}
		input = f
	}
	defer input.Close()

	stats, err := loader.Load(ctx, input)
	if err != nil {
		logger.Fatalf("load failed after %d lines: %v", stats.Lines, err)
	}
	logger.Printf("Load %s done: inserted=%d duplicates=%d rejected=%d",
		loadID, stats.Inserted, stats.Duplicates, stats.Rejected)
}

// runBackfill parses the range flags and embeds unembedded stored events.
func runBackfill(ctx context.Context, logger *log.Logger, loader *ingestion.Loader, fromStr, toStr string) {
	if fromStr == "" || toStr == "" {
		logger.Fatal("--from-time and --to-time are required with --backfill")
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		logger.Fatalf("invalid --from-time: %v", err)
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		logger.Fatalf("invalid --to-time: %v", err)
	}

	n, err := loader.Backfill(ctx, from, to)
	if err != nil {
		logger.Fatalf("backfill failed after %d events: %v", n, err)
	}
	logger.Printf("Backfill done: embedded=%d", n)
}
