package service

import (
	"context"
	"slices"
	"sync"
)

// KeyedLock gives each user id its own exclusive section. Waiters for the
// same key are admitted in arrival order; different keys never contend
// beyond the short bookkeeping mutex. Idle keys are forgotten, so memory is
// bounded by the number of users with an event in flight.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[int64]*keyEntry
}

type keyEntry struct {
	held    bool
	waiters []chan struct{}
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[int64]*keyEntry)}
}

// Lock blocks until the caller owns key or ctx is done. The returned
// function releases the section; calling it more than once is harmless.
func (l *KeyedLock) Lock(ctx context.Context, key int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyEntry{}
		l.entries[key] = e
	}
	if !e.held {
		e.held = true
		l.mu.Unlock()
		return l.unlocker(key, e), nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return l.unlocker(key, e), nil
	case <-ctx.Done():
		l.mu.Lock()
		if i := slices.Index(e.waiters, ch); i >= 0 {
			e.waiters = slices.Delete(e.waiters, i, i+1)
			l.mu.Unlock()
			return nil, ctx.Err()
		}
		l.mu.Unlock()
		// Ownership was handed over while ctx expired; pass it on.
		l.release(key, e)
		return nil, ctx.Err()
	}
}

// Len returns the number of keys currently held or awaited.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *KeyedLock) unlocker(key int64, e *keyEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e) })
	}
}

func (l *KeyedLock) release(key int64, e *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		close(next)
		return
	}
	e.held = false
	delete(l.entries, key)
}
