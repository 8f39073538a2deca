// Package poll provides the bounded retry-with-interval primitive used
// by every wait site of the release process. A wait is max attempts ×
// fixed interval; exhausting the budget is an error naming what was
// awaited, never an indefinite hang.
package poll

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ErrTagTimeout marks errors from exhausted polling budgets.
var ErrTagTimeout = goerr.NewTag("timeout")

// Config bounds one polling loop.
type Config struct {
	Attempts int
	Interval time.Duration
}

// Func is one polling attempt. Returning done=true ends the loop
// successfully; a non-nil error aborts it immediately.
type Func func(ctx context.Context) (done bool, err error)

// Wait runs fn up to cfg.Attempts times, sleeping cfg.Interval between
// attempts. subject names what is being awaited in the timeout error.
func Wait(ctx context.Context, cfg Config, subject string, fn Func) error {
	for i := 0; i < cfg.Attempts; i++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := sleep(ctx, cfg.Interval); err != nil {
			return err
		}
	}
	return goerr.New("timeout waiting for "+subject,
		goerr.T(ErrTagTimeout),
		goerr.V("attempts", cfg.Attempts),
		goerr.V("interval", cfg.Interval),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
