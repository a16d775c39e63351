package domain

import "time"

// Event represents an ingested news or game event.
// Corresponds to events table in PostgreSQL.
// Immutable once embedded; the embedding is the only field the core
// ever mutates (via UpdateEmbedding plus index upsert), never the text.
type Event struct {
	EventID    string    // PRIMARY KEY, deterministic hash from ingestion
	OccurredAt time.Time // event timestamp, UTC
	RawText    string    // original text from the feed
	CleanText  string    // normalized text used for embedding
	Categories []string  // category tags (e.g. "crypto", "nba", "earnings")
	Source     string    // feed identifier
	Embedding  []float32 // nil until the embedding job has run
	CreatedAt  time.Time // record creation timestamp
}

// HasEmbedding reports whether the event's embedding has been computed.
func (e *Event) HasEmbedding() bool {
	return len(e.Embedding) > 0
}
