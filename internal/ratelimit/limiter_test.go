package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.UnixMilli(1_699_999_980_000) // aligned to 60s and 10s

func TestAdmitRemainingDecreasesToZero(t *testing.T) {
	l := New(0)
	const max = 5
	prev := max
	for i := 0; i < max; i++ {
		d := l.Admit("10.0.0.1", time.Minute, max, t0.Add(time.Duration(i)*time.Second))
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Less(t, d.Remaining, prev)
		assert.Equal(t, max, d.Limit)
		prev = d.Remaining
	}
	assert.Equal(t, 0, prev)
}

func TestRejectionDoesNotConsumeBudget(t *testing.T) {
	l := New(0)
	for i := 0; i < 3; i++ {
		l.Admit("a", time.Minute, 3, t0)
	}
	first := l.Admit("a", time.Minute, 3, t0.Add(time.Second))
	second := l.Admit("a", time.Minute, 3, t0.Add(2*time.Second))
	require.False(t, first.Allowed)
	require.False(t, second.Allowed)
	assert.Equal(t, 0, first.Remaining)
	assert.Equal(t, first.ResetAt, second.ResetAt)

	l.mu.Lock()
	count := l.buckets["a"].count
	l.mu.Unlock()
	assert.Equal(t, 3, count)
}

func TestWindowResetAdmitsAgain(t *testing.T) {
	l := New(0)
	d := l.Admit("a", time.Minute, 1, t0)
	require.True(t, d.Allowed)
	require.False(t, l.Admit("a", time.Minute, 1, t0.Add(30*time.Second)).Allowed)

	again := l.Admit("a", time.Minute, 1, d.ResetAt)
	require.True(t, again.Allowed)
	assert.Equal(t, 0, again.Remaining)
	assert.Equal(t, d.ResetAt.Add(time.Minute), again.ResetAt)
}

func TestWindowIsEpochAligned(t *testing.T) {
	l := New(0)
	a := l.Admit("a", 10*time.Second, 5, t0.Add(3*time.Second))
	b := l.Admit("b", 10*time.Second, 5, t0.Add(7*time.Second))
	assert.Equal(t, t0.Add(10*time.Second), a.ResetAt)
	assert.Equal(t, a.ResetAt, b.ResetAt)
}

func TestElevenRequestsLimitTen(t *testing.T) {
	l := New(0)
	var last Decision
	for i := 0; i < 11; i++ {
		last = l.Admit("1.2.3.4", time.Minute, 10, t0.Add(time.Duration(i)*time.Second))
	}
	require.False(t, last.Allowed)
	assert.Equal(t, 0, last.Remaining)
	assert.Greater(t, last.RetryAfter(t0.Add(10*time.Second)), time.Duration(0))
}

func TestEmptySourceSharesUnknownBucket(t *testing.T) {
	l := New(0)
	l.Admit("", time.Minute, 2, t0)
	l.Admit("  ", time.Minute, 2, t0)
	d := l.Admit(UnknownSource, time.Minute, 2, t0)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, l.Len())
}

func TestSweepAndCap(t *testing.T) {
	l := New(3)
	l.Admit("a", time.Second, 5, t0)
	l.Admit("b", time.Minute, 5, t0)
	l.Admit("c", time.Minute, 5, t0)
	// "a" expired: swept to make room.
	d := l.Admit("d", time.Minute, 5, t0.Add(2*time.Second))
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, 3, l.Len())

	assert.Equal(t, 3, l.Sweep(t0.Add(10*time.Minute)))
	assert.Equal(t, 0, l.Len())
}

func TestFullMapFoldsNewSourcesIntoUnknown(t *testing.T) {
	l := New(2)
	for i := 0; i < 2; i++ {
		require.True(t, l.Admit("a", time.Minute, 2, t0).Allowed)
	}
	require.False(t, l.Admit("a", time.Minute, 2, t0).Allowed)
	l.Admit("b", time.Minute, 2, t0)

	// "a" is exhausted and still tracked; newcomers cannot push it out.
	now := t0.Add(time.Second)
	assert.True(t, l.Admit("c", time.Minute, 2, now).Allowed)
	d := l.Admit("e", time.Minute, 2, now)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.False(t, l.Admit("f", time.Minute, 2, now).Allowed)
	assert.False(t, l.Admit("a", time.Minute, 2, now).Allowed)

	assert.Equal(t, 3, l.Len())
	_, tracked := l.buckets["c"]
	assert.False(t, tracked)
	_, shared := l.buckets[UnknownSource]
	assert.True(t, shared)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	d := Decision{ResetAt: t0.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2*time.Second, d.RetryAfter(t0))
	assert.Equal(t, time.Second, d.RetryAfter(t0.Add(time.Hour)))
}

func TestAdmitConcurrent(t *testing.T) {
	l := New(0)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := l.Admit(fmt.Sprintf("k%d", i%2), time.Minute, 10, t0)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, allowed)
}
