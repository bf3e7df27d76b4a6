// Package rate paces outgoing API requests with fixed windows per key.
package rate

import (
	"context"
	"sync"
	"time"
)

type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// Pacer is a Limiter that can block until the next request is allowed.
type Pacer interface {
	Limiter
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

type MemoryLimiter struct {
	mu    sync.Mutex
	store map[string]*bucket
	now   func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
	window  time.Duration
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{store: make(map[string]*bucket), now: time.Now}
}

// Allow counts one request against key. When the window is full it returns
// false and the time left until the window resets. A limit of zero or less
// disables pacing.
func (m *MemoryLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return true, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.store[key]
	if !ok || !now.Before(b.resetAt) || b.window != window {
		b = &bucket{count: 0, resetAt: now.Add(window), window: window}
		m.store[key] = b
	}

	if b.count >= limit {
		return false, b.resetAt.Sub(now)
	}

	b.count++
	return true, b.resetAt.Sub(now)
}

// Wait blocks until Allow succeeds for key or ctx is done.
func (m *MemoryLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		ok, retry := m.Allow(key, limit, window)
		if ok {
			return nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset forgets the window of key, typically after the server reported its
// own remaining quota.
func (m *MemoryLimiter) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
}
