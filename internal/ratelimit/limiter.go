// Package ratelimit implements the relay's per-source admission control.
//
// Windows are fixed and aligned to the Unix epoch, so every source observed
// by the same clock shares the same window boundaries. Rejected requests
// never consume budget.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// UnknownSource is the shared bucket for callers without a usable address.
const UnknownSource = "unknown"

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets (at least 1s).
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	secs := (wait + time.Second - 1) / time.Second
	return secs * time.Second
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by source.
//
// When the map is full and nothing has expired, new sources share the
// UnknownSource bucket; live buckets are never evicted, so a source cannot
// regain budget by crowding the map.
//
// It is safe for concurrent use. The zero value is not usable; use New.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxKeys int

	// earliest is a lower bound on every bucket's resetAt; before it, a sweep
	// cannot remove anything.
	earliest time.Time
}

// New returns a limiter holding at most maxKeys buckets (<=0 means unbounded).
func New(maxKeys int) *Limiter {
	return &Limiter{buckets: map[string]*bucket{}, maxKeys: maxKeys}
}

// SetMaxKeys updates the bucket cap (used on config reload).
func (l *Limiter) SetMaxKeys(n int) {
	l.mu.Lock()
	l.maxKeys = n
	l.mu.Unlock()
}

// Admit decides whether one more request from source fits in the current window.
func (l *Limiter) Admit(source string, window time.Duration, max int, now time.Time) Decision {
	source = strings.TrimSpace(source)
	if source == "" {
		source = UnknownSource
	}
	if window <= 0 {
		window = time.Second
	}
	if max < 1 {
		max = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[source]
	if !ok && !l.hasRoomLocked(now) {
		source = UnknownSource
		b, ok = l.buckets[source]
	}
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{count: 1, resetAt: windowEnd(now, window)}
		l.buckets[source] = b
		if len(l.buckets) == 1 || b.resetAt.Before(l.earliest) {
			l.earliest = b.resetAt
		}
		return Decision{Allowed: true, Limit: max, Remaining: max - 1, ResetAt: b.resetAt}
	}
	if b.count >= max {
		return Decision{Allowed: false, Limit: max, Remaining: 0, ResetAt: b.resetAt}
	}
	b.count++
	return Decision{Allowed: true, Limit: max, Remaining: max - b.count, ResetAt: b.resetAt}
}

// Sweep drops buckets whose window has elapsed and returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

// Len returns the number of tracked sources.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweepLocked(now time.Time) int {
	n := 0
	var earliest time.Time
	for k, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, k)
			n++
			continue
		}
		if earliest.IsZero() || b.resetAt.Before(earliest) {
			earliest = b.resetAt
		}
	}
	l.earliest = earliest
	return n
}

// hasRoomLocked reports whether a new source may get its own bucket. Expired
// buckets are swept first, but only once one can have expired.
func (l *Limiter) hasRoomLocked(now time.Time) bool {
	if l.maxKeys <= 0 || len(l.buckets) < l.maxKeys {
		return true
	}
	if !now.Before(l.earliest) {
		l.sweepLocked(now)
	}
	return len(l.buckets) < l.maxKeys
}

// windowEnd returns the next epoch-aligned multiple of window after now.
func windowEnd(now time.Time, window time.Duration) time.Time {
	w := window.Milliseconds()
	if w <= 0 {
		w = 1
	}
	ms := now.UnixMilli()
	return time.UnixMilli((ms/w)*w + w)
}
