// Package retry runs an operation a bounded number of times with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"workshop-functions/internal/apperr"
)

type Policy struct {
	Attempts int
	Base     time.Duration
	// Sleep defaults to a context-aware timer. Tests replace it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait with the failed attempt (0-based) and the delay.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Delay returns the wait after the given failed attempt: Base * 2^attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.Base * time.Duration(1<<attempt)
}

// Do calls fn until it succeeds or the attempts are used up. After the final
// failure it returns a transient error wrapping the last cause. No wait follows
// the last attempt.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	var last error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if last = fn(attempt); last == nil {
			return nil
		}
		if attempt == p.Attempts-1 {
			break
		}
		d := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, last)
		}
		if err := sleep(ctx, d); err != nil {
			return apperr.Transient("retry interrupted", err)
		}
	}
	return apperr.Transient(fmt.Sprintf("gave up after %d attempts", p.Attempts), last)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
