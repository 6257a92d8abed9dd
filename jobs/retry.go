package jobs

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/planforge/planforge/llm"
)

// RetryPolicy controls per-unit retries inside a batch. Transient
// (network/timeout-classified) failures wait the longer cooldown before the
// next attempt; anything else waits the short one. Both share the attempt
// cap.
type RetryPolicy struct {
	MaxAttempts       int
	TransientCooldown time.Duration
	FailureCooldown   time.Duration
}

// isTransient classifies an error as network/timeout-shaped.
func isTransient(err error) bool {
	if llm.IsTransient(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// cooldown picks the wait before the next attempt for err.
func (p RetryPolicy) cooldown(err error) time.Duration {
	if isTransient(err) {
		return p.TransientCooldown
	}
	return p.FailureCooldown
}

// runWithRetry runs fn up to MaxAttempts times, sleeping the classified
// cooldown between attempts. Context cancellation stops the retrying
// immediately and returns the context's error.
func (p RetryPolicy) runWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.cooldown(err)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
