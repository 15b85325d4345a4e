package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pawhaven/pawhaven/application/port/inbound"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
)

const (
	counterPrefix = "ratelimit:"
	blockPrefix   = "blocked:"
)

// rateLimitService counts attempts per key in fixed Redis windows.
type rateLimitService struct {
	redisClient *redis.Client
	logger      logger.Logger
}

// NewRateLimitService returns the Redis-backed limiter. The client is shared
// with the rest of the process and is not closed here.
func NewRateLimitService(client *redis.Client, log logger.Logger) inbound.RateLimitService {
	if log == nil {
		log = logger.Nop()
	}
	return &rateLimitService{redisClient: client, logger: log}
}

// Allow records one attempt and reports whether the key is still within
// limit for the current window. The window starts at the first attempt.
func (s *rateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	counterKey := counterPrefix + key

	count, err := s.redisClient.Incr(ctx, counterKey).Result()
	if err != nil {
		s.logger.Error(ctx, "Failed to increment rate limit counter", err, map[string]interface{}{"key": key})
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := s.redisClient.Expire(ctx, counterKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	allowed := count <= int64(limit)
	s.logger.Debug(ctx, "Rate limit check", map[string]interface{}{
		"key":     key,
		"current": count,
		"limit":   limit,
		"allowed": allowed,
	})
	return allowed, nil
}

func (s *rateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	blockKey := blockPrefix + key

	blockData := map[string]interface{}{
		"reason":         reason,
		"blocked_at":     time.Now().Unix(),
		"duration":       duration.Seconds(),
		"correlation_id": logger.CorrelationID(ctx),
	}

	pipeline := s.redisClient.TxPipeline()
	pipeline.HSet(ctx, blockKey, blockData)
	pipeline.Expire(ctx, blockKey, duration)
	if _, err := pipeline.Exec(ctx); err != nil {
		s.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
		return fmt.Errorf("failed to block key: %w", err)
	}

	logger.LogSecurityEvent(ctx, s.logger, "rate_limit_block", "MEDIUM", map[string]interface{}{
		"key":      key,
		"duration": duration.String(),
		"reason":   reason,
	})
	return nil
}

func (s *rateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	exists, err := s.redisClient.Exists(ctx, blockPrefix+key).Result()
	if err != nil {
		s.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
		return false, fmt.Errorf("failed to check block status: %w", err)
	}
	return exists > 0, nil
}

func (s *rateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	count, err := s.redisClient.Get(ctx, counterPrefix+key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get attempts: %w", err)
	}
	return count, nil
}

func (s *rateLimitService) Reset(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, counterPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// noopRateLimitService is used when rate limiting is disabled.
type noopRateLimitService struct{}

func NewNoopRateLimitService() inbound.RateLimitService {
	return noopRateLimitService{}
}

func (noopRateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (noopRateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	return nil
}

func (noopRateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (noopRateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	return 0, nil
}

func (noopRateLimitService) Reset(ctx context.Context, key string) error {
	return nil
}
