package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
)

const keyPrefix = "refresh:"

// RefreshRegistry keeps refresh tokens in Redis so every server replica sees
// the same sessions. Redis expiry does the cleanup; the stored expires_at is
// still checked so a lagging TTL never extends a session.
type RefreshRegistry struct {
	client *redis.Client
	salt   string
	now    func() time.Time
}

type record struct {
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewRefreshRegistry(client *redis.Client, salt string) *RefreshRegistry {
	return &RefreshRegistry{client: client, salt: salt, now: time.Now}
}

// NewClient parses url and pings the server once.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

var _ outbound.RefreshRegistry = (*RefreshRegistry)(nil)

func (r *RefreshRegistry) key(token string) string {
	return keyPrefix + entity.RefreshTokenKey(r.salt, token)
}

func (r *RefreshRegistry) Store(ctx context.Context, token, subjectID string, ttl time.Duration) error {
	if token == "" || subjectID == "" {
		return errors.New("token and subject id are required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	payload, err := json.Marshal(record{SubjectID: subjectID, ExpiresAt: r.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("failed to encode refresh token: %w", err)
	}
	if err := r.client.Set(ctx, r.key(token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *RefreshRegistry) ValidateAndGet(ctx context.Context, token string) (string, error) {
	key := r.key(token)

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", outbound.ErrRefreshTokenNotFound
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		_ = r.client.Del(ctx, key).Err()
		return "", outbound.ErrRefreshTokenNotFound
	}

	if !r.now().Before(rec.ExpiresAt) {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return "", fmt.Errorf("failed to evict expired refresh token: %w", err)
		}
		return "", outbound.ErrRefreshTokenExpired
	}

	return rec.SubjectID, nil
}

func (r *RefreshRegistry) Revoke(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}
