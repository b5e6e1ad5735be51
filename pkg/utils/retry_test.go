package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), FixedRetryConfig(3, time.Millisecond), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), FixedRetryConfig(3, time.Millisecond), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Retry returned %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	boom := errors.New("transport down")
	err := Retry(ctx, FixedRetryConfig(5, time.Second), func() error {
		return boom
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry returned %v, want context.Canceled", err)
	}
	// The attempt's own error survives the cancellation.
	if !errors.Is(err, boom) {
		t.Fatalf("Retry returned %v, want the last attempt error retained", err)
	}
}

func TestRetryWithResult(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), FixedRetryConfig(3, time.Millisecond), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("RetryWithResult: %v", err)
	}
	if got != 42 || calls != 2 {
		t.Errorf("got %d after %d calls", got, calls)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 10,
	}
	start := time.Now()
	_ = Retry(context.Background(), cfg, func() error { return errors.New("fail") })
	// 1ms + 2ms + 2ms of sleeping, far below an uncapped 1+10+100ms.
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("backoff not capped, took %v", elapsed)
	}
}
