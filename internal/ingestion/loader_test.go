package ingestion

import (
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/embedding"
	"event-forecast-lab/internal/idhash"
	"event-forecast-lab/internal/normalization"
	"event-forecast-lab/internal/storage/memory"
	"event-forecast-lab/internal/vectorindex"
)

const testDimension = 8

func newTestLoader(t *testing.T) (*Loader, *memory.EventStore, *vectorindex.BruteForce, *strings.Builder) {
	t.Helper()

	events := memory.NewEventStore()
	index := vectorindex.NewBruteForce(testDimension)
	var logs strings.Builder

	loader, err := NewLoader(LoaderOptions{
		EventStore: events,
		Index:      index,
		Embedder:   embedding.NewLocal(testDimension),
		Logger:     log.New(&logs, "[ingest] ", 0),
	})
	require.NoError(t, err)
	return loader, events, index, &logs
}

func TestLoader_Load(t *testing.T) {
	loader, events, index, _ := newTestLoader(t)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"source":"newswire","occurred_at":"2025-03-01T12:00:00Z","raw_text":"Bitcoin ETF approved by the SEC"}`,
		`{"source":"newswire","occurred_at":"2025-03-01T13:00:00Z","raw_text":"Fed signals a rate cut"}`,
	}, "\n")

	stats, err := loader.Load(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Lines)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 0, stats.Duplicates)
	assert.Equal(t, 0, stats.Rejected)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	stored, err := events.GetByTimeRange(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, stored, 2)

	first := stored[0]
	assert.True(t, first.HasEmbedding())
	assert.Equal(t, "Bitcoin ETF approved by the SEC", first.CleanText)
	assert.Equal(t, []string{"crypto"}, first.Categories)
	assert.Equal(t, "newswire", first.Source)
	assert.Len(t, first.EventID, 64)
}

func TestLoader_LoadIdempotent(t *testing.T) {
	loader, _, index, _ := newTestLoader(t)
	ctx := context.Background()

	line := `{"source":"newswire","occurred_at":"2025-03-01T12:00:00Z","raw_text":"Ethereum upgrade ships"}`

	stats, err := loader.Load(ctx, strings.NewReader(line))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)

	stats, err = loader.Load(ctx, strings.NewReader(line))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 1, stats.Duplicates)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "duplicate must not re-index")
}

func TestLoader_LoadRejectsMalformed(t *testing.T) {
	loader, _, _, logs := newTestLoader(t)

	input := strings.Join([]string{
		`not json at all`,
		`{"source":"","occurred_at":"2025-03-01T12:00:00Z","raw_text":"missing source"}`,
		`{"source":"newswire","raw_text":"missing timestamp"}`,
		`{"source":"newswire","occurred_at":"2025-03-01T12:00:00Z","raw_text":"NBA Finals tonight"}`,
	}, "\n")

	stats, err := loader.Load(context.Background(), strings.NewReader(input))
	require.NoError(t, err, "malformed records must not abort the load")
	assert.Equal(t, 4, stats.Lines)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 3, stats.Rejected)
	assert.Contains(t, logs.String(), "rejected")
}

func TestLoader_LoadSkipsBlankLines(t *testing.T) {
	loader, _, _, _ := newTestLoader(t)

	input := "\n\n" + `{"source":"newswire","occurred_at":"2025-03-01T12:00:00Z","raw_text":"quarterly earnings beat"}` + "\n\n"
	stats, err := loader.Load(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Lines)
	assert.Equal(t, 1, stats.Inserted)
}

func TestLoader_LoadEmptyInput(t *testing.T) {
	loader, _, _, _ := newTestLoader(t)

	stats, err := loader.Load(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)
}

func TestLoader_Backfill(t *testing.T) {
	loader, events, index, _ := newTestLoader(t)
	ctx := context.Background()

	// One event loaded normally, one inserted without an embedding as if a
	// previous load died between the insert and the embedding write.
	line := `{"source":"newswire","occurred_at":"2025-03-01T12:00:00Z","raw_text":"Bitcoin steady"}`
	_, err := loader.Load(ctx, strings.NewReader(line))
	require.NoError(t, err)

	orphanAt := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	orphan := rawEventFixture(t, events, "newswire", orphanAt, "Treasury yields climb")

	n, err := loader.Backfill(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := events.GetByID(ctx, orphan)
	require.NoError(t, err)
	assert.True(t, got.HasEmbedding())

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Nothing left to backfill.
	n, err = loader.Backfill(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNewLoader_RequiresCollaborators(t *testing.T) {
	_, err := NewLoader(LoaderOptions{})
	require.Error(t, err)
}

// rawEventFixture inserts an event with no embedding, bypassing the loader.
func rawEventFixture(t *testing.T, events *memory.EventStore, source string, occurredAt time.Time, text string) string {
	t.Helper()

	id := idhash.ComputeEventID(source, occurredAt, text)
	err := events.Insert(context.Background(), &domain.Event{
		EventID:    id,
		OccurredAt: occurredAt,
		RawText:    text,
		CleanText:  normalization.Normalize(text),
		Categories: normalization.Categorize(text),
		Source:     source,
		CreatedAt:  occurredAt,
	})
	require.NoError(t, err)
	return id
}
