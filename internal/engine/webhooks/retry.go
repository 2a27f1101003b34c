package webhooks

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoffBase = time.Second
	maxBackoffShift    = 20
)

// RetryPolicy spaces attempts exponentially: attempt n (0-indexed) starts no
// earlier than BackoffBase*2^n after attempt n-1.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BackoffBase: DefaultBackoffBase}
}

// Backoff is the wait before attempt n.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	if n > maxBackoffShift {
		n = maxBackoffShift
	}
	base := p.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return base * time.Duration(1<<n)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
