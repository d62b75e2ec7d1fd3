package relay

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits connection attempts per remote address with a token
// bucket per key.
type RateLimiter struct {
	limiters sync.Map // key → *limiterEntry
	r        rate.Limit
	burst    int
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter allows perMinute attempts per key with the given burst.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if perMinute > 0 {
		r = rate.Limit(float64(perMinute) / 60.0)
	}
	rl := &RateLimiter{r: r, burst: burst, now: time.Now, stop: make(chan struct{})}
	if rl.Enabled() {
		go rl.cleanupLoop()
	}
	return rl
}

// Allow reports whether key may connect now.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	entry := rl.getOrCreate(key)
	now := rl.now()
	if !entry.limiter.AllowN(now, 1) {
		slog.Warn("relay: rate limited", "key", key)
		return false
	}
	entry.mu.Lock()
	entry.lastSeen = now
	entry.mu.Unlock()
	return true
}

func (rl *RateLimiter) Enabled() bool {
	return rl.r > 0
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rl.r, rl.burst),
		lastSeen: rl.now(),
	}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup(rl.now().Add(-10 * time.Minute))
		}
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			rl.limiters.Delete(key)
		}
		return true
	})
}
