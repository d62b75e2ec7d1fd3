package realtime

import (
	"math/rand/v2"
	"time"
)

// ReconnectPolicy controls how the supervisor re-dials after a session ends.
type ReconnectPolicy struct {
	Disabled    bool          // never re-dial; the zero value reconnects
	BaseDelay   time.Duration // initial backoff delay (default 1s)
	MaxDelay    time.Duration // maximum backoff delay (default 60s)
	MaxAttempts int           // consecutive failed dials before giving up, 0 = unlimited
}

// DefaultReconnectPolicy returns the policy used when none is configured.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay: time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// exhausted reports whether failed consecutive dials exceed the policy.
func (p ReconnectPolicy) exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := max
	if attempt < 32 {
		if d := base << uint(attempt); d > 0 && d < max {
			delay = d
		}
	}

	// Jitter: ±25% of delay
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
