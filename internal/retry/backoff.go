package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Strategy controls the retry schedule for one failure class.
type Strategy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// Generic is the schedule for transient errors (network, 5xx).
var Generic = Strategy{
	MaxAttempts: 5,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
	Jitter:      250 * time.Millisecond,
}

// Capacity is the schedule for store capacity errors, which need more
// relief time than a generic failure.
var Capacity = Strategy{
	MaxAttempts: 5,
	BaseDelay:   2 * time.Second,
	MaxDelay:    60 * time.Second,
	Jitter:      500 * time.Millisecond,
}

// delayHinter is implemented by errors that carry an upstream-supplied
// retry delay, such as a rate-limit response with a Retry-After header.
type delayHinter interface {
	RetryDelay() time.Duration
}

// Delay returns the backoff before the given retry attempt (1-based).
// Exponential doubling from BaseDelay, capped at MaxDelay, plus a bounded
// random jitter term to avoid retry storms.
func (s Strategy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(s.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if d > s.MaxDelay {
		d = s.MaxDelay
	}
	if s.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.Jitter)))
	}
	return d
}

// DelayFor returns the backoff before the given retry attempt, honoring an
// upstream-supplied delay hint when the error carries one.
func (s Strategy) DelayFor(err error, attempt int) time.Duration {
	var hint delayHinter
	if errors.As(err, &hint) {
		return hint.RetryDelay()
	}
	return s.Delay(attempt)
}

// Do runs op up to s.MaxAttempts times, waiting between attempts. The wait
// is a suspension point: it blocks on a timer or context cancellation, never
// spinning. Returns nil on the first success, or the last error once the
// attempt ceiling is reached.
func Do(ctx context.Context, s Strategy, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < s.MaxAttempts {
			if err := Sleep(ctx, s.DelayFor(lastErr, attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// Sleep waits for d or until the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
