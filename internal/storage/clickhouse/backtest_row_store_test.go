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

func testRow(rowID, modelID, symbol string, asOf time.Time) *domain.BacktestRow {
	return &domain.BacktestRow{
		RowID:              rowID,
		ModelID:            modelID,
		Symbol:             symbol,
		AsOf:               asOf,
		HorizonMinutes:     60,
		ExpectedReturn:     0.012,
		PredictedDirection: domain.DirectionUp,
		Confidence:         0.73,
		SampleSize:         18,
		Regime:             domain.RegimeChop,
		CreatedAt:          asOf.Add(time.Minute),
	}
}

func TestBacktestRowStore_InsertAndGetByModelID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	scored := testRow("row-2", "model-a", "BTC-USD", base.Add(time.Hour))
	realized := -0.03
	actual := domain.DirectionDown
	correct := false
	scored.RealizedReturn = &realized
	scored.ActualDirection = &actual
	scored.DirectionCorrect = &correct

	err := store.InsertBatch(ctx, []*domain.BacktestRow{
		testRow("row-1", "model-a", "BTC-USD", base),
		scored,
		testRow("row-3", "model-b", "BTC-USD", base),
	})
	require.NoError(t, err)

	rows, err := store.GetByModelID(ctx, "model-a")
	require.NoError(t, err)
	require.Len(t, rows, 2, "model isolation")

	assert.True(t, rows[0].AsOf.Before(rows[1].AsOf), "ordered by as_of")

	// Unscored row keeps null ground truth.
	assert.Nil(t, rows[0].RealizedReturn)
	assert.Nil(t, rows[0].ActualDirection)
	assert.Nil(t, rows[0].DirectionCorrect)
	assert.Equal(t, domain.DirectionUp, rows[0].PredictedDirection)
	assert.Equal(t, domain.RegimeChop, rows[0].Regime)

	// Scored row round-trips nullable fields.
	require.NotNil(t, rows[1].RealizedReturn)
	assert.InDelta(t, -0.03, *rows[1].RealizedReturn, 1e-9)
	require.NotNil(t, rows[1].ActualDirection)
	assert.Equal(t, domain.DirectionDown, *rows[1].ActualDirection)
	require.NotNil(t, rows[1].DirectionCorrect)
	assert.False(t, *rows[1].DirectionCorrect)
}

func TestBacktestRowStore_DuplicateRowID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBatch(ctx, []*domain.BacktestRow{
		testRow("row-dup", "model-a", "BTC-USD", base),
	}))

	err := store.InsertBatch(ctx, []*domain.BacktestRow{
		testRow("row-dup", "model-a", "BTC-USD", base.Add(time.Hour)),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Intra-batch duplicate is also rejected.
	err = store.InsertBatch(ctx, []*domain.BacktestRow{
		testRow("row-x", "model-a", "BTC-USD", base),
		testRow("row-x", "model-a", "BTC-USD", base.Add(time.Hour)),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestBacktestRowStore_EmptyModel(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	rows, err := store.GetByModelID(context.Background(), "missing-model")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBacktestRowStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestRowStore(conn)
	ctx := context.Background()

	err := store.InsertBatch(ctx, []*domain.BacktestRow{{ModelID: "m"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.InsertBatch(ctx, []*domain.BacktestRow{
		{RowID: "r", ModelID: "m", Symbol: "BTC-USD"},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput, "zero as_of rejected")
}
