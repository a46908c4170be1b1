// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures retry behavior for one kind of external call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// NonRetryable stops retrying when it returns true, e.g. for auth failures.
	NonRetryable func(error) bool
	// sleep is replaced in tests.
	sleep func(context.Context, time.Duration) error
}

// Default retries three times starting at one second.
var Default = Policy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
}

// Do calls op until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	wait := p.BaseDelay
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.NonRetryable != nil && p.NonRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
		wait *= 2
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
