package outbound

import (
	"time"

	"github.com/pawhaven/pawhaven/domain/valueobject"
)

type TokenClaims struct {
	UserID    string    `json:"sub"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenService is the Token Issuer.
type TokenService interface {
	IssueTokens(subjectID, role string) (*valueobject.TokenPair, error)
	GenerateAccessToken(subjectID, role string) (string, time.Time, error)
	GenerateRefreshToken() (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
}
