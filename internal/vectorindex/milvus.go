package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Milvus collection layout for event embeddings.
const (
	DefaultCollectionName = "event_embeddings"

	fieldEventID    = "event_id"
	fieldEmbedding  = "embedding"
	fieldEventTs    = "event_ts"
	fieldSource     = "source"
	fieldCategories = "categories"
	fieldTags       = "tags"
)

// MilvusConfig holds Milvus connection and collection configuration.
type MilvusConfig struct {
	Address    string // Milvus server address (e.g. "localhost:19530")
	Username   string
	Password   string
	Collection string
	Dimension  int
	Shards     int
}

// DefaultMilvusConfig returns a MilvusConfig with default values.
func DefaultMilvusConfig(dimension int) MilvusConfig {
	return MilvusConfig{
		Address:    "localhost:19530",
		Collection: DefaultCollectionName,
		Dimension:  dimension,
		Shards:     2,
	}
}

// MilvusIndex implements Index on a Milvus collection. It uses the L2 metric
// so distances share the lower-is-closer semantics of the brute-force backend.
type MilvusIndex struct {
	conn       client.Client
	collection string
	dimension  int
}

// NewMilvusIndex connects to Milvus, ensures the collection and its index
// exist, and loads the collection.
func NewMilvusIndex(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollectionName
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 2
	}

	clientCfg := client.Config{Address: cfg.Address}
	if cfg.Username != "" && cfg.Password != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	conn, err := client.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}

	idx := &MilvusIndex{
		conn:       conn,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := idx.ensureCollection(ctx, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return idx, nil
}

// Close releases the collection and closes the connection.
func (m *MilvusIndex) Close() error {
	_ = m.conn.ReleaseCollection(context.Background(), m.collection)
	return m.conn.Close()
}

func (m *MilvusIndex) ensureCollection(ctx context.Context, cfg MilvusConfig) error {
	exists, err := m.conn.HasCollection(ctx, cfg.Collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: cfg.Collection,
			Description:    "Event embeddings for similarity search",
			Fields: []*entity.Field{
				{
					Name:       fieldEventID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       fieldEmbedding,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": strconv.Itoa(cfg.Dimension)},
				},
				{
					Name:     fieldEventTs,
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:       fieldSource,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       fieldCategories,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "512"},
				},
				{
					Name:       fieldTags,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "512"},
				},
			},
		}

		if err := m.conn.CreateCollection(ctx, schema, int32(cfg.Shards)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}

		vecIdx, err := entity.NewIndexIvfFlat(entity.L2, 128)
		if err != nil {
			return fmt.Errorf("create index definition: %w", err)
		}
		if err := m.conn.CreateIndex(ctx, cfg.Collection, fieldEmbedding, vecIdx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if err := m.conn.LoadCollection(ctx, cfg.Collection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

// InsertBatch upserts entries and returns the count written.
func (m *MilvusIndex) InsertBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	timestamps := make([]int64, len(entries))
	sources := make([]string, len(entries))
	categories := make([]string, len(entries))
	tags := make([]string, len(entries))

	for i, e := range entries {
		if e.ID == "" || len(e.Vector) == 0 {
			return 0, ErrInvalidInput
		}
		if len(e.Vector) != m.dimension {
			return 0, ErrDimensionMismatch
		}
		ids[i] = e.ID
		vectors[i] = e.Vector
		timestamps[i] = e.Metadata.Timestamp.UTC().UnixMilli()
		sources[i] = e.Metadata.Source
		categories[i] = strings.Join(e.Metadata.Categories, ",")
		tags[i] = strings.Join(e.Metadata.Tags, ",")
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(fieldEventID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, m.dimension, vectors),
		entity.NewColumnInt64(fieldEventTs, timestamps),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnVarChar(fieldCategories, categories),
		entity.NewColumnVarChar(fieldTags, tags),
	}

	if _, err := m.conn.Upsert(ctx, m.collection, "", columns...); err != nil {
		return 0, fmt.Errorf("upsert embeddings: %w", err)
	}
	return len(entries), nil
}

// Search returns up to limit matches ordered by ascending L2 distance.
func (m *MilvusIndex) Search(ctx context.Context, query []float32, limit int, opts SearchOptions) ([]Match, error) {
	if len(query) != m.dimension {
		return nil, ErrDimensionMismatch
	}
	if limit <= 0 {
		return nil, nil
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16) // nprobe
	if err != nil {
		return nil, fmt.Errorf("create search param: %w", err)
	}

	// Over-fetch by one so native exclusion gaps cannot shrink the result set.
	fetch := limit
	if opts.ExcludeID != "" {
		fetch++
	}

	outputFields := []string{fieldEventID, fieldEventTs, fieldSource, fieldCategories, fieldTags}
	results, err := m.conn.Search(
		ctx,
		m.collection,
		nil, // partitions
		buildFilter(opts),
		outputFields,
		[]entity.Vector{entity.FloatVector(query)},
		fieldEmbedding,
		entity.L2,
		fetch,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		match := Match{Distance: float64(results[0].Scores[i])}

		for _, field := range results[0].Fields {
			switch field.Name() {
			case fieldEventID:
				if col, ok := field.(*entity.ColumnVarChar); ok {
					match.ID, _ = col.ValueByIdx(i)
				}
			case fieldEventTs:
				if col, ok := field.(*entity.ColumnInt64); ok {
					ms, _ := col.ValueByIdx(i)
					match.Metadata.Timestamp = time.UnixMilli(ms).UTC()
				}
			case fieldSource:
				if col, ok := field.(*entity.ColumnVarChar); ok {
					match.Metadata.Source, _ = col.ValueByIdx(i)
				}
			case fieldCategories:
				if col, ok := field.(*entity.ColumnVarChar); ok {
					v, _ := col.ValueByIdx(i)
					match.Metadata.Categories = splitCSV(v)
				}
			case fieldTags:
				if col, ok := field.(*entity.ColumnVarChar); ok {
					v, _ := col.ValueByIdx(i)
					match.Metadata.Tags = splitCSV(v)
				}
			}
		}

		// Enforce exclusion even though the filter expression already asks
		// for it; backends must never return the query's own id.
		if opts.ExcludeID != "" && match.ID == opts.ExcludeID {
			continue
		}
		matches = append(matches, match)
	}

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// GetVector returns the stored vector for id.
func (m *MilvusIndex) GetVector(ctx context.Context, id string) ([]float32, error) {
	rs, err := m.conn.Query(
		ctx,
		m.collection,
		nil,
		fmt.Sprintf("%s == %q", fieldEventID, id),
		[]string{fieldEmbedding},
	)
	if err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}

	for _, col := range rs {
		vec, ok := col.(*entity.ColumnFloatVector)
		if !ok || col.Name() != fieldEmbedding {
			continue
		}
		if vec.Len() == 0 {
			break
		}
		return vec.Data()[0], nil
	}
	return nil, ErrNotFound
}

// Delete removes a vector. Returns true if the id was present.
func (m *MilvusIndex) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := m.GetVector(ctx, id); err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	expr := fmt.Sprintf("%s == %q", fieldEventID, id)
	if err := m.conn.Delete(ctx, m.collection, "", expr); err != nil {
		return false, fmt.Errorf("delete vector: %w", err)
	}
	return true, nil
}

// Count returns the number of indexed vectors.
func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	stats, err := m.conn.GetCollectionStatistics(ctx, m.collection)
	if err != nil {
		return 0, fmt.Errorf("collection statistics: %w", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse row_count: %w", err)
	}
	return n, nil
}

// Flush forces persistence of pending inserts.
func (m *MilvusIndex) Flush(ctx context.Context) error {
	return m.conn.Flush(ctx, m.collection, false)
}

// buildFilter translates SearchOptions into a Milvus boolean expression.
func buildFilter(opts SearchOptions) string {
	var clauses []string
	if opts.ExcludeID != "" {
		clauses = append(clauses, fmt.Sprintf("%s != %q", fieldEventID, opts.ExcludeID))
	}
	if !opts.NotBefore.IsZero() {
		clauses = append(clauses, fmt.Sprintf("%s >= %d", fieldEventTs, opts.NotBefore.UTC().UnixMilli()))
	}
	if !opts.NotAfter.IsZero() {
		clauses = append(clauses, fmt.Sprintf("%s <= %d", fieldEventTs, opts.NotAfter.UTC().UnixMilli()))
	}
	return strings.Join(clauses, " and ")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

var _ Index = (*MilvusIndex)(nil)
