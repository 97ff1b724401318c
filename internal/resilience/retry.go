package resilience

import (
	"context"
	"fmt"
	"time"
)

// Backoff computes bounded exponential delays between retry attempts.
// The zero value uses 500ms base and an 8s ceiling.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps the delay regardless of attempt count.
	Max time.Duration
}

// Delay returns the delay before the given retry attempt (0-based): Base
// doubled per attempt, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = 8 * time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Retry runs fn up to attempts times, waiting per b between failures. It
// stops early when ctx is done. On exhaustion the last error is returned
// wrapped with the attempt count.
func Retry(ctx context.Context, attempts int, b Backoff, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(b.Delay(attempt - 1))
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("resilience: %d attempts exhausted: %w", attempts, lastErr)
}
