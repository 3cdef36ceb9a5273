package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryAttemptCount(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, Base: time.Millisecond, Factor: 2, Cap: 10 * time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("still failing")
	})

	if err == nil {
		t.Fatal("expected terminal error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 1 + 2 retries", calls)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, Base: time.Millisecond, Factor: 2}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryNonRetryableShortCircuits(t *testing.T) {
	permanent := errors.New("permanent")
	policy := RetryPolicy{
		MaxRetries: 5,
		Base:       time.Millisecond,
		Factor:     2,
		Retryable:  func(err error) bool { return !errors.Is(err, permanent) },
	}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 10, Base: 50 * time.Millisecond, Factor: 2}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("failing")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls > 2 {
		t.Errorf("kept retrying after cancellation: %d calls", calls)
	}
}
