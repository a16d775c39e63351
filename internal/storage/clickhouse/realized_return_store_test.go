package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

func mustReturn(t *testing.T, symbol string, asOf time.Time, horizon int, priceStart, priceEnd float64) *domain.RealizedReturn {
	t.Helper()
	r, err := domain.NewRealizedReturn(symbol, asOf, horizon, priceStart, priceEnd)
	require.NoError(t, err)
	return r
}

func TestRealizedReturnStore_InsertAndGetByKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRealizedReturnStore(conn)
	ctx := context.Background()
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := store.InsertBatch(ctx, []*domain.RealizedReturn{
		mustReturn(t, "BTC-USD", asOf, 60, 100, 105),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetByKey(ctx, "BTC-USD", asOf, 60)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", got.Symbol)
	assert.True(t, asOf.Equal(got.AsOf))
	assert.Equal(t, 60, got.HorizonMinutes)
	assert.InDelta(t, 0.05, got.RealizedReturn, 1e-9)

	_, err = store.GetByKey(ctx, "BTC-USD", asOf, 1440)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRealizedReturnStore_ConcurrentSameKeyInsert(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRealizedReturnStore(conn)
	ctx := context.Background()
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Concurrent ingesters derive the identical row from the same source
	// prices; the engine plus FINAL reads must leave exactly one visible.
	const writers = 8
	row := mustReturn(t, "BTC-USD", asOf, 60, 100, 105)
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_, err := store.InsertBatch(ctx, []*domain.RealizedReturn{row})
			errCh <- err
		}()
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-errCh)
	}

	window, err := store.GetWindow(ctx, "BTC-USD", 60, asOf.Add(-time.Hour), asOf.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1, "duplicates from the insert race must not be visible")
	assert.InDelta(t, 0.05, window[0].RealizedReturn, 1e-9)

	got, err := store.GetByKey(ctx, "BTC-USD", asOf, 60)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, got.RealizedReturn, 1e-9)
}

func TestRealizedReturnStore_IdempotentInsert(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRealizedReturnStore(conn)
	ctx := context.Background()
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := store.InsertBatch(ctx, []*domain.RealizedReturn{
		mustReturn(t, "BTC-USD", asOf, 60, 100, 105),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Re-inserting the same key with different prices is a no-op.
	n, err = store.InsertBatch(ctx, []*domain.RealizedReturn{
		mustReturn(t, "BTC-USD", asOf, 60, 100, 90),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := store.GetByKey(ctx, "BTC-USD", asOf, 60)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, got.RealizedReturn, 1e-9, "first write wins")
}

func TestRealizedReturnStore_IntraBatchFirstWins(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRealizedReturnStore(conn)
	ctx := context.Background()
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := store.InsertBatch(ctx, []*domain.RealizedReturn{
		mustReturn(t, "BTC-USD", asOf, 60, 100, 102),
		mustReturn(t, "BTC-USD", asOf, 60, 100, 98),
		mustReturn(t, "ETH-USD", asOf, 60, 200, 210),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "duplicate within batch is skipped")

	got, err := store.GetByKey(ctx, "BTC-USD", asOf, 60)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, got.RealizedReturn, 1e-9)
}

func TestRealizedReturnStore_GetWindow(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRealizedReturnStore(conn)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var batch []*domain.RealizedReturn
	for i := 0; i < 5; i++ {
		batch = append(batch, mustReturn(t, "BTC-USD", base.Add(time.Duration(i)*time.Hour), 60, 100, 101))
	}
	// Different symbol and horizon must not leak into the window.
	batch = append(batch,
		mustReturn(t, "ETH-USD", base.Add(time.Hour), 60, 100, 101),
		mustReturn(t, "BTC-USD", base.Add(time.Hour), 1440, 100, 101),
	)
	_, err := store.InsertBatch(ctx, batch)
	require.NoError(t, err)

	window, err := store.GetWindow(ctx, "BTC-USD", 60, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 3, "bounds are inclusive")

	for i := 1; i < len(window); i++ {
		assert.True(t, window[i-1].AsOf.Before(window[i].AsOf), "ascending order")
	}
}

func TestRealizedReturnStore_DistinctAsOf(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRealizedReturnStore(conn)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertBatch(ctx, []*domain.RealizedReturn{
		mustReturn(t, "BTC-USD", base, 60, 100, 101),
		mustReturn(t, "BTC-USD", base.Add(time.Hour), 60, 100, 99),
		mustReturn(t, "BTC-USD", base.Add(time.Hour), 1440, 100, 99),
		mustReturn(t, "ETH-USD", base.Add(2*time.Hour), 60, 100, 99),
	})
	require.NoError(t, err)

	instants, err := store.DistinctAsOf(ctx, "BTC-USD", 60, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, instants, 2, "other horizons and symbols excluded")
	assert.True(t, instants[0].Equal(base))
	assert.True(t, instants[1].Equal(base.Add(time.Hour)))
}

func TestRealizedReturnStore_RejectsZeroTimestamp(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRealizedReturnStore(conn)
	bad := &domain.RealizedReturn{Symbol: "BTC-USD", HorizonMinutes: 60, PriceStart: 100, PriceEnd: 101}
	_, err := store.InsertBatch(context.Background(), []*domain.RealizedReturn{bad})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
