package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken is a live registry entry. Token holds the hashed lookup key,
// never the raw value handed to the client.
type RefreshToken struct {
	Token     string    `json:"token"`
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRefreshToken(key, subjectID string, expiresAt time.Time) *RefreshToken {
	return &RefreshToken{
		Token:     key,
		SubjectID: subjectID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

func (rt *RefreshToken) IsExpired() bool {
	return rt.IsExpiredAt(time.Now())
}

func (rt *RefreshToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(rt.ExpiresAt)
}

// RefreshTokenKey derives the storage key for a raw refresh token.
func RefreshTokenKey(salt, token string) string {
	sum := sha256.Sum256([]byte(salt + token))
	return hex.EncodeToString(sum[:])
}
