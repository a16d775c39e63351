// Package ingestion loads raw feed events into the event store and the
// vector index. Input is JSON Lines, one record per line; the loader
// normalizes, embeds, and indexes each record. Event ids are deterministic
// hashes of (source, occurred_at, raw_text), so re-running a load over the
// same file is idempotent: duplicates are counted and skipped, never
// overwritten.
package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/embedding"
	"event-forecast-lab/internal/idhash"
	"event-forecast-lab/internal/normalization"
	"event-forecast-lab/internal/observability"
	"event-forecast-lab/internal/storage"
	"event-forecast-lab/internal/vectorindex"
)

// maxLineBytes bounds a single input line. Feed items are short; anything
// larger is a malformed record.
const maxLineBytes = 1 << 20

// RawEvent is one input record.
type RawEvent struct {
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
	RawText    string    `json:"raw_text"`
}

// Stats is the accounting for one load.
type Stats struct {
	Lines      int // input lines seen
	Inserted   int // events stored and indexed
	Duplicates int // skipped, id already present
	Rejected   int // malformed records, logged and skipped
}

// Loader wires the event store, the embedding provider, and the vector
// index behind one Load call.
type Loader struct {
	events   storage.EventStore
	index    vectorindex.Index
	embedder embedding.Provider
	logger   *log.Logger
	metrics  *observability.Metrics
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	EventStore storage.EventStore
	Index      vectorindex.Index
	Embedder   embedding.Provider
	Logger     *log.Logger
	Metrics    *observability.Metrics // optional
}

// NewLoader creates a Loader.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.EventStore == nil || opts.Index == nil || opts.Embedder == nil {
		return nil, fmt.Errorf("ingestion: event store, index, and embedder are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[ingest] ", log.LstdFlags)
	}
	return &Loader{
		events:   opts.EventStore,
		index:    opts.Index,
		embedder: opts.Embedder,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Load reads JSON Lines from r and ingests each record. Malformed records
// are logged and skipped; storage and index failures abort the load because
// they indicate the backend is down, not a bad record.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Stats, error) {
	stats := &Stats{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var raw RawEvent
		if err := json.Unmarshal(line, &raw); err != nil {
			l.reject(stats, "line %d: invalid json: %v", stats.Lines, err)
			continue
		}
		if raw.Source == "" || raw.RawText == "" || raw.OccurredAt.IsZero() {
			l.reject(stats, "line %d: missing source, raw_text, or occurred_at", stats.Lines)
			continue
		}

		inserted, err := l.ingestOne(ctx, raw)
		if err != nil {
			return stats, fmt.Errorf("ingest line %d: %w", stats.Lines, err)
		}
		if inserted {
			stats.Inserted++
			if l.metrics != nil {
				l.metrics.EventsIngested.Inc()
			}
		} else {
			stats.Duplicates++
			if l.metrics != nil {
				l.metrics.EventsDuplicate.Inc()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read input: %w", err)
	}

	l.logger.Printf("load complete: lines=%d inserted=%d duplicates=%d rejected=%d",
		stats.Lines, stats.Inserted, stats.Duplicates, stats.Rejected)
	return stats, nil
}

// ingestOne stores and indexes a single record. Returns false when the
// event id already exists.
func (l *Loader) ingestOne(ctx context.Context, raw RawEvent) (bool, error) {
	cleanText := normalization.Normalize(raw.RawText)
	if cleanText == "" {
		return false, fmt.Errorf("raw text normalizes to empty")
	}
	categories := normalization.Categorize(cleanText)
	occurredAt := raw.OccurredAt.UTC()

	event := &domain.Event{
		EventID:    idhash.ComputeEventID(raw.Source, occurredAt, raw.RawText),
		OccurredAt: occurredAt,
		RawText:    raw.RawText,
		CleanText:  cleanText,
		Categories: categories,
		Source:     raw.Source,
		CreatedAt:  time.Now().UTC(),
	}

	if err := l.events.Insert(ctx, event); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return false, nil
		}
		return false, fmt.Errorf("insert event %s: %w", event.EventID, err)
	}

	vector, err := l.embedder.Embed(ctx, cleanText)
	if err != nil {
		return false, fmt.Errorf("embed event %s: %w", event.EventID, err)
	}
	if err := l.events.UpdateEmbedding(ctx, event.EventID, vector); err != nil {
		return false, fmt.Errorf("store embedding for %s: %w", event.EventID, err)
	}

	if _, err := l.index.InsertBatch(ctx, []vectorindex.Entry{{
		ID:     event.EventID,
		Vector: vector,
		Metadata: vectorindex.Metadata{
			Timestamp:  occurredAt,
			Source:     raw.Source,
			Categories: categories,
		},
	}}); err != nil {
		return false, fmt.Errorf("index event %s: %w", event.EventID, err)
	}

	return true, nil
}

// Backfill embeds and indexes stored events that have no embedding yet,
// within [start, end]. Covers loads interrupted between the event insert
// and the embedding write. Returns the number of events embedded.
func (l *Loader) Backfill(ctx context.Context, start, end time.Time) (int, error) {
	events, err := l.events.GetByTimeRange(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	embedded := 0
	for _, e := range events {
		if e.HasEmbedding() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return embedded, err
		}

		vector, err := l.embedder.Embed(ctx, e.CleanText)
		if err != nil {
			return embedded, fmt.Errorf("embed event %s: %w", e.EventID, err)
		}
		if err := l.events.UpdateEmbedding(ctx, e.EventID, vector); err != nil {
			return embedded, fmt.Errorf("store embedding for %s: %w", e.EventID, err)
		}
		if _, err := l.index.InsertBatch(ctx, []vectorindex.Entry{{
			ID:     e.EventID,
			Vector: vector,
			Metadata: vectorindex.Metadata{
				Timestamp:  e.OccurredAt,
				Source:     e.Source,
				Categories: e.Categories,
			},
		}}); err != nil {
			return embedded, fmt.Errorf("index event %s: %w", e.EventID, err)
		}
		embedded++
	}

	if embedded > 0 {
		l.logger.Printf("backfill complete: embedded=%d of %d events in range", embedded, len(events))
	}
	return embedded, nil
}

func (l *Loader) reject(stats *Stats, format string, args ...any) {
	stats.Rejected++
	if l.metrics != nil {
		l.metrics.EventsRejected.Inc()
	}
	l.logger.Printf("rejected: "+format, args...)
}
