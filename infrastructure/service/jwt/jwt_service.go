package jwt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/domain/valueobject"
)

const (
	tokenTypeAccess = "access"

	// refreshTokenBytes is 512 bits of entropy, hex-encoded to 128 chars.
	refreshTokenBytes = 64

	minSecretLength = 32
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrWeakSecret   = fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
)

type accessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Type string `json:"typ"`
}

type JWTService struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewJWTService fails with a SigningError when the secret cannot sign safely.
// Callers treat that as fatal at startup.
func NewJWTService(secret string, accessTTL time.Duration) (*JWTService, error) {
	if len(secret) < minSecretLength {
		return nil, domainerr.ErrSigning(ErrWeakSecret)
	}
	if accessTTL <= 0 {
		return nil, domainerr.ErrSigning(fmt.Errorf("access token ttl must be positive, got %s", accessTTL))
	}

	return &JWTService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

func (s *JWTService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *JWTService) IssueTokens(subjectID, role string) (*valueobject.TokenPair, error) {
	access, expiresAt, err := s.GenerateAccessToken(subjectID, role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	return valueobject.NewTokenPair(access, refresh, expiresAt), nil
}

// GenerateAccessToken signs a token for subjectID. Every token gets a fresh
// jti, so two tokens minted within the same second still differ.
func (s *JWTService) GenerateAccessToken(subjectID, role string) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, fmt.Errorf("subject id is required")
	}

	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Role: role,
		Type: tokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, domainerr.ErrSigning(err)
	}

	return signed, expiresAt, nil
}

func (s *JWTService) GenerateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*outbound.TokenClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, s.handleValidationError(err)
	}
	if !token.Valid || claims.Type != tokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	out := &outbound.TokenClaims{
		UserID:    claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func (s *JWTService) handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}
