package scheduler

import "time"

// RetryPolicy governs how transient failures are retried.
type RetryPolicy struct {
	// MaxAttempts bounds fetch attempts per job.
	MaxAttempts int
	// BaseBackoff is the delay before the first retry; it doubles on each
	// subsequent attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the delay.
	MaxBackoff time.Duration
}

// Backoff returns the delay to wait after the given attempt number failed.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shift overflow guard: past 30 doublings the cap applies anyway.
	if attempt > 30 {
		return p.MaxBackoff
	}
	d := p.BaseBackoff << (attempt - 1)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
