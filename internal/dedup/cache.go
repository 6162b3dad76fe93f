// Package dedup provides a time-windowed "seen recently" set.
//
// The relay uses it per formatted message and the capture pipeline uses it per
// error signature. Every sighting refreshes the key's timestamp, so a
// continuous burst stays suppressed until it has been quiet for a full window.
package dedup

import (
	"sync"
	"time"
)

// Cache maps a fingerprint to the last time it was seen.
//
// It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	maxEntries int
}

// New returns a cache holding at most maxEntries keys (<=0 means unbounded).
func New(maxEntries int) *Cache {
	return &Cache{seen: map[string]time.Time{}, maxEntries: maxEntries}
}

// SetMaxEntries updates the key cap (used on config reload).
func (c *Cache) SetMaxEntries(n int) {
	c.mu.Lock()
	c.maxEntries = n
	c.mu.Unlock()
}

// CheckAndRecord reports whether key was seen less than window ago, and
// records now as its latest sighting either way.
//
// A non-positive window never suppresses.
func (c *Cache) CheckAndRecord(key string, now time.Time, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.seen[key]
	suppressed := ok && window > 0 && now.Sub(last) < window

	if !ok {
		c.makeRoomLocked(now, window)
	}
	c.seen[key] = now
	return suppressed
}

// Forget drops key so its next sighting is not suppressed.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	delete(c.seen, key)
	c.mu.Unlock()
}

// Sweep removes keys whose window has elapsed and returns how many were removed.
func (c *Cache) Sweep(now time.Time, window time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now, window)
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) sweepLocked(now time.Time, window time.Duration) int {
	n := 0
	for k, last := range c.seen {
		if window <= 0 || now.Sub(last) >= window {
			delete(c.seen, k)
			n++
		}
	}
	return n
}

func (c *Cache) makeRoomLocked(now time.Time, window time.Duration) {
	if c.maxEntries <= 0 || len(c.seen) < c.maxEntries {
		return
	}
	c.sweepLocked(now, window)
	// Remove the stalest keys until within cap.
	for len(c.seen) >= c.maxEntries {
		var (
			oldKey string
			oldT   time.Time
			set    bool
		)
		for k, t := range c.seen {
			if !set || t.Before(oldT) {
				oldKey, oldT, set = k, t, true
			}
		}
		if !set {
			return
		}
		delete(c.seen, oldKey)
	}
}
