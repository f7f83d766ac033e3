// Package poll provides a generic bounded polling primitive shared by the
// debrid resolver wait, the installer process wait, and the install
// verification loop.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the predicate never succeeded within the
// configured number of attempts.
var ErrTimeout = errors.New("poll: timed out waiting for condition")

// Predicate is evaluated once per attempt. Returning done=true stops the
// loop successfully. A non-nil error stops the loop immediately and is
// returned as-is.
type Predicate func(ctx context.Context) (done bool, err error)

// Config configures a polling loop.
type Config struct {
	Interval    time.Duration
	MaxAttempts int // 0 means poll until ctx is cancelled
}

// Until evaluates pred every Interval until it reports done, fails, the
// attempt budget is exhausted, or ctx is cancelled. The first attempt runs
// immediately.
func Until(ctx context.Context, cfg Config, pred Predicate) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := pred(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}

// UntilValue is Until for predicates that produce a value when done.
func UntilValue[T any](ctx context.Context, cfg Config, pred func(ctx context.Context) (T, bool, error)) (T, error) {
	var result T
	err := Until(ctx, cfg, func(ctx context.Context) (bool, error) {
		v, done, err := pred(ctx)
		if err != nil {
			return false, err
		}
		if done {
			result = v
		}
		return done, nil
	})
	return result, err
}
