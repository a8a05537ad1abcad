package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is a bounded retry policy with linear backoff growth. Only errors
// marked Transient are retried; everything else escalates on the first
// attempt.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int
	// Backoff is the delay before the second attempt; each further attempt
	// waits one additional Backoff unit.
	Backoff time.Duration
}

// DefaultPolicy mirrors the historical defaults: three attempts, half a
// second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}
}

// Do invokes fn until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. The context is checked between attempts so a
// shutting-down worker does not sit out the full backoff schedule.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.Backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}

	return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempts, err)
}
