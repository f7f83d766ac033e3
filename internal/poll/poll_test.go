package poll

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUntilSucceedsAfterAttempts(t *testing.T) {
	attempts := 0
	err := Until(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 10},
		func(_ context.Context) (bool, error) {
			attempts++
			return attempts == 3, nil
		})
	if err != nil {
		t.Fatalf("Until returned error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("ran %d attempts, want 3", attempts)
	}
}

func TestUntilTimesOut(t *testing.T) {
	attempts := 0
	err := Until(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 4},
		func(_ context.Context) (bool, error) {
			attempts++
			return false, nil
		})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if attempts != 4 {
		t.Errorf("ran %d attempts, want 4", attempts)
	}
}

func TestUntilStopsOnPredicateError(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := Until(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 10},
		func(_ context.Context) (bool, error) {
			attempts++
			return false, boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want predicate error", err)
	}
	if attempts != 1 {
		t.Errorf("predicate error did not stop the loop, ran %d attempts", attempts)
	}
}

func TestUntilHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Until(ctx, Config{Interval: time.Hour},
		func(_ context.Context) (bool, error) {
			return false, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestUntilValueReturnsResult(t *testing.T) {
	attempts := 0
	got, err := UntilValue(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 5},
		func(_ context.Context) (string, bool, error) {
			attempts++
			if attempts < 2 {
				return "", false, nil
			}
			return "ready", true, nil
		})
	if err != nil {
		t.Fatalf("UntilValue returned error: %v", err)
	}
	if got != "ready" {
		t.Errorf("got %q, want %q", got, "ready")
	}
}
