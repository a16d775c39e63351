package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"event-forecast-lab/internal/domain"
	"event-forecast-lab/internal/storage"
)

func mustReturn(t *testing.T, symbol string, asOf time.Time, horizon int, start, end float64) *domain.RealizedReturn {
	t.Helper()
	r, err := domain.NewRealizedReturn(symbol, asOf, horizon, start, end)
	if err != nil {
		t.Fatalf("NewRealizedReturn failed: %v", err)
	}
	return r
}

func TestRealizedReturnStore_InsertBatchAndGetWindow(t *testing.T) {
	store := NewRealizedReturnStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []*domain.RealizedReturn{
		mustReturn(t, "BTC-USD", base, 60, 100.0, 105.0),
		mustReturn(t, "BTC-USD", base.Add(time.Hour), 60, 105.0, 103.0),
		mustReturn(t, "ETH-USD", base, 60, 10.0, 11.0),
	}

	inserted, err := store.InsertBatch(ctx, rows)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if inserted != 3 {
		t.Errorf("Expected 3 inserted, got %d", inserted)
	}

	result, err := store.GetWindow(ctx, "BTC-USD", 60, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("GetWindow failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(result))
	}
	if !result[0].AsOf.Before(result[1].AsOf) {
		t.Errorf("Expected rows ordered by as_of ASC")
	}
}

func TestRealizedReturnStore_IdempotentInsert(t *testing.T) {
	store := NewRealizedReturnStore()
	ctx := context.Background()
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := mustReturn(t, "BTC-USD", asOf, 60, 100.0, 105.0)
	inserted, err := store.InsertBatch(ctx, []*domain.RealizedReturn{first})
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("Expected 1 inserted, got %d", inserted)
	}

	// Same key, different prices: must be a no-op preserving the original.
	second := mustReturn(t, "BTC-USD", asOf, 60, 200.0, 190.0)
	inserted, err = store.InsertBatch(ctx, []*domain.RealizedReturn{second})
	if err != nil {
		t.Fatalf("Second insert failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted on duplicate, got %d", inserted)
	}

	got, err := store.GetByKey(ctx, "BTC-USD", asOf, 60)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if got.RealizedReturn != first.RealizedReturn {
		t.Errorf("Expected original return %v preserved, got %v", first.RealizedReturn, got.RealizedReturn)
	}
}

func TestRealizedReturnStore_IntraBatchDuplicate(t *testing.T) {
	store := NewRealizedReturnStore()
	ctx := context.Background()
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []*domain.RealizedReturn{
		mustReturn(t, "BTC-USD", asOf, 60, 100.0, 105.0),
		mustReturn(t, "BTC-USD", asOf, 60, 101.0, 99.0), // same key, first wins
	}

	inserted, err := store.InsertBatch(ctx, rows)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("Expected 1 inserted, got %d", inserted)
	}

	got, err := store.GetByKey(ctx, "BTC-USD", asOf, 60)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if got.PriceStart != 100.0 {
		t.Errorf("Expected first row to win, got price_start=%v", got.PriceStart)
	}
}

func TestRealizedReturnStore_GetByKeyNotFound(t *testing.T) {
	store := NewRealizedReturnStore()
	ctx := context.Background()

	_, err := store.GetByKey(ctx, "BTC-USD", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 60)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRealizedReturnStore_RejectsZeroTimestamp(t *testing.T) {
	store := NewRealizedReturnStore()
	ctx := context.Background()

	rows := []*domain.RealizedReturn{
		{Symbol: "BTC-USD", HorizonMinutes: 60, PriceStart: 1, PriceEnd: 1},
	}

	_, err := store.InsertBatch(ctx, rows)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero as_of, got %v", err)
	}
}

func TestRealizedReturnStore_DistinctAsOf(t *testing.T) {
	store := NewRealizedReturnStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var rows []*domain.RealizedReturn
	for i := 0; i < 4; i++ {
		rows = append(rows, mustReturn(t, "LAKERS", base.Add(time.Duration(i)*24*time.Hour), 1440, 1.0, 1.0+float64(i)*0.01+0.005))
	}
	// Different horizon must not leak into the enumeration.
	rows = append(rows, mustReturn(t, "LAKERS", base, 60, 1.0, 1.1))

	if _, err := store.InsertBatch(ctx, rows); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	dates, err := store.DistinctAsOf(ctx, "LAKERS", 1440, base, base.Add(10*24*time.Hour))
	if err != nil {
		t.Fatalf("DistinctAsOf failed: %v", err)
	}
	if len(dates) != 4 {
		t.Fatalf("Expected 4 distinct dates, got %d", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			t.Errorf("Expected ascending dates")
		}
	}
}
