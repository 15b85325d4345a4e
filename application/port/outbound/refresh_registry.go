package outbound

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

// RefreshRegistry is the authority on whether a refresh token is still alive.
// Implementations must evict an entry they find expired.
type RefreshRegistry interface {
	Store(ctx context.Context, token, subjectID string, ttl time.Duration) error
	ValidateAndGet(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}
