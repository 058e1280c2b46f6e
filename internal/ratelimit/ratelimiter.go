// Package ratelimit implements per-user sliding window rate limiting.
package ratelimit

import (
	"context"
	"time"
)

// Config bounds how many events one key may produce within Window.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Limiter decides whether an event from key may proceed. An accepted event is
// recorded; a rejected one is not.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Clock returns the current time. Tests substitute a fake one.
type Clock func() time.Time
