package inbound

import (
	"context"
	"time"
)

// RateLimitService is implemented by infrastructure/service/ratelimit.
type RateLimitService interface {
	// Allow counts one attempt against key and reports whether it is within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Block(ctx context.Context, key string, duration time.Duration, reason string) error
	IsBlocked(ctx context.Context, key string) (bool, error)
	GetAttempts(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}
