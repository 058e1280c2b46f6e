package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps each key's accepted timestamps in process memory.
// State is lost on restart.
type MemoryLimiter struct {
	config Config
	now    Clock

	mu        sync.Mutex
	events    map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(config Config) *MemoryLimiter {
	return NewMemoryLimiterWithClock(config, time.Now)
}

// NewMemoryLimiterWithClock creates an in-process limiter driven by clock.
func NewMemoryLimiterWithClock(config Config, clock Clock) *MemoryLimiter {
	return &MemoryLimiter{
		config:    config,
		now:       clock,
		events:    make(map[string][]time.Time),
		lastSweep: clock(),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	windowStart := now.Add(-l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.config.Window {
		l.sweep(windowStart)
		l.lastSweep = now
	}

	recent := prune(l.events[key], windowStart)
	if len(recent) >= l.config.MaxRequests {
		l.events[key] = recent
		return false, nil
	}

	l.events[key] = append(recent, now)
	return true, nil
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.events, key)
	l.mu.Unlock()
	return nil
}

// Tracked returns the number of keys with events still inside the window.
func (l *MemoryLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// sweep drops keys that have gone quiet so idle users don't accumulate.
func (l *MemoryLimiter) sweep(windowStart time.Time) {
	for key, ts := range l.events {
		if recent := prune(ts, windowStart); len(recent) == 0 {
			delete(l.events, key)
		} else {
			l.events[key] = recent
		}
	}
}

// prune returns the suffix of ordered timestamps newer than windowStart.
func prune(ts []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(windowStart) {
		i++
	}
	return ts[i:]
}
