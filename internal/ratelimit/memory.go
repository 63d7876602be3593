package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the in-process fallback backend: a mutex-guarded map of
// window counters plus a background sweep that evicts expired entries.
// Single-process deployments only; multi-process deployments should use
// the durable Postgres backend.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*memoryWindow

	now func() time.Time // overridable in tests
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// Check counts one request against the key's current window
func (l *MemoryLimiter) Check(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		entry = &memoryWindow{resetAt: now.Add(l.window)}
		l.entries[key] = entry
	}
	entry.count++

	remaining := l.limit - entry.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   entry.count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   entry.resetAt,
	}, nil
}

// StartSweep evicts expired windows on the given interval until the
// context is cancelled, bounding memory for long-running processes.
func (l *MemoryLimiter) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

func (l *MemoryLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.entries {
		if !now.Before(entry.resetAt) {
			delete(l.entries, key)
		}
	}
}
