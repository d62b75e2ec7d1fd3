package bus

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// DedupeCache remembers recently seen events for a TTL window. The push
// service may deliver the same event more than once when several upstream
// endpoints report it.
//
// Entries are kept in first-seen order; expired ones are pruned from the old
// end on each check and the oldest is evicted when the cache is full.
type DedupeCache struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, int64] // key → first seen, unix millis
	ttl     time.Duration
	now     func() time.Time
}

// NewDedupeCache creates a cache. maxSize <= 0 means unbounded.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if maxSize <= 0 {
		maxSize = math.MaxInt32
	}
	entries, err := simplelru.NewLRU[string, int64](maxSize, nil)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &DedupeCache{entries: entries, ttl: ttl, now: time.Now}
}

// dedupeKey identifies an event by name and full content.
func dedupeKey(ev events.Event) (string, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", false
	}
	return string(ev.EventName()) + ":" + string(data), true
}

// IsDuplicate reports whether ev was already seen within the TTL window.
// If not, it is recorded.
func (d *DedupeCache) IsDuplicate(ev events.Event) bool {
	key, ok := dedupeKey(ev)
	if !ok {
		return false
	}

	now := d.now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.prune(cutoff)
	if _, ok := d.entries.Peek(key); ok {
		return true
	}
	d.entries.Add(key, now)
	return false
}

// Len returns the number of remembered events.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.Len()
}

// prune drops entries first seen before cutoff. Must be called with d.mu
// held.
func (d *DedupeCache) prune(cutoff int64) {
	for {
		_, ts, ok := d.entries.GetOldest()
		if !ok || ts >= cutoff {
			return
		}
		d.entries.RemoveOldest()
	}
}
