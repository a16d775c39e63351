package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxAttempts int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 4 * time.Millisecond
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestPolicy_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestPolicy_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastPolicy(3).Do(ctx, func(context.Context) error {
		t.Fatal("fn must not run on cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPolicy_DelayGrowthIsCapped(t *testing.T) {
	p := DefaultPolicy()
	p.BaseDelay = time.Second
	p.MaxDelay = 3 * time.Second
	p.Multiplier = 2.0
	p.JitterFrac = 0

	var delays []time.Duration
	p.MaxAttempts = 4
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_ = p.Do(context.Background(), func(context.Context) error {
		return errors.New("always")
	})

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("Expected %d sleeps, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("Sleep %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}
