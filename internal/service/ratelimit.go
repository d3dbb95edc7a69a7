package service

import (
	"sync"
	"time"
)

// TokenBucket is an in-memory per-user rate limiter using the token bucket algorithm.
// It is safe for concurrent use. Stale buckets are removed by a background goroutine
// until Stop is called.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[int64]*bucket
	rate     float64 // tokens added per second
	capacity float64 // maximum tokens
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a rate limiter that allows up to capacity events per user,
// refilling at the given rate (tokens per second).
func NewTokenBucket(rate, capacity float64) *TokenBucket {
	return newTokenBucket(rate, capacity, time.Now)
}

func newTokenBucket(rate, capacity float64, now func() time.Time) *TokenBucket {
	tb := &TokenBucket{
		buckets:  make(map[int64]*bucket),
		rate:     rate,
		capacity: capacity,
		now:      now,
		stop:     make(chan struct{}),
	}
	go tb.cleanup(5*time.Minute, 10*time.Minute)
	return tb
}

// Allow reports whether the user may proceed. Each call consumes one token.
func (tb *TokenBucket) Allow(userID int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[userID]
	if !ok {
		b = &bucket{tokens: tb.capacity, last: now}
		tb.buckets[userID] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(b.tokens+elapsed*tb.rate, tb.capacity)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Stop ends the cleanup goroutine.
func (tb *TokenBucket) Stop() {
	tb.stopOnce.Do(func() { close(tb.stop) })
}

// sweep removes buckets not touched since cutoff.
func (tb *TokenBucket) sweep(cutoff time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for key, b := range tb.buckets {
		if b.last.Before(cutoff) {
			delete(tb.buckets, key)
		}
	}
}

func (tb *TokenBucket) size() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

func (tb *TokenBucket) cleanup(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.sweep(tb.now().Add(-idle))
		case <-tb.stop:
			return
		}
	}
}
