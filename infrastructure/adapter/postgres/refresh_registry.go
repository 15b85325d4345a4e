package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
)

// refreshRegistry persists refresh tokens in the refresh_tokens table. Rows
// are keyed by the salted hash; the raw token never reaches the database.
type refreshRegistry struct {
	db   DBTX
	salt string
	now  func() time.Time
}

func NewRefreshRegistry(db DBTX, salt string) outbound.RefreshRegistry {
	return &refreshRegistry{db: db, salt: salt, now: time.Now}
}

func (r *refreshRegistry) Store(ctx context.Context, token, subjectID string, ttl time.Duration) error {
	if token == "" || subjectID == "" {
		return errors.New("token and subject id are required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	query := `
		INSERT INTO refresh_tokens (token_hash, account_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO UPDATE
		SET account_id = EXCLUDED.account_id, expires_at = EXCLUDED.expires_at
	`

	now := r.now()
	_, err := r.db.ExecContext(ctx, query, entity.RefreshTokenKey(r.salt, token), subjectID, now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *refreshRegistry) ValidateAndGet(ctx context.Context, token string) (string, error) {
	key := entity.RefreshTokenKey(r.salt, token)
	query := `SELECT account_id, expires_at FROM refresh_tokens WHERE token_hash = $1`

	var (
		subjectID string
		expiresAt time.Time
	)
	err := r.db.QueryRowContext(ctx, query, key).Scan(&subjectID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", outbound.ErrRefreshTokenNotFound
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	if !r.now().Before(expiresAt) {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, key); err != nil {
			return "", fmt.Errorf("failed to evict expired refresh token: %w", err)
		}
		return "", outbound.ErrRefreshTokenExpired
	}

	return subjectID, nil
}

func (r *refreshRegistry) Revoke(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, entity.RefreshTokenKey(r.salt, token))
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}
