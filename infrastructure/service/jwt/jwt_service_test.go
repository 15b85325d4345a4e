package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerr "github.com/pawhaven/pawhaven/domain/error"
)

const testSecret = "test-secret-test-secret-test-secret"

func TestNewJWTService_RejectsWeakSecret(t *testing.T) {
	_, err := NewJWTService("short", 15*time.Minute)
	require.Error(t, err)

	var appErr *domainerr.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, domainerr.ErrCodeSigningError, appErr.Code)
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestJWTService(t *testing.T) {
	service, err := NewJWTService(testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("Failed to create JWT service: %v", err)
	}

	t.Run("IssueTokens", func(t *testing.T) {
		pair, err := service.IssueTokens("user123", "adopter")
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.Len(t, pair.RefreshToken, 128)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.AccessExpiresAt, 5*time.Second)
	})

	t.Run("RefreshTokensAreUnique", func(t *testing.T) {
		a, err := service.GenerateRefreshToken()
		require.NoError(t, err)
		b, err := service.GenerateRefreshToken()
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("AccessTokensDifferWithinSameSecond", func(t *testing.T) {
		a, _, err := service.GenerateAccessToken("user123", "adopter")
		require.NoError(t, err)
		b, _, err := service.GenerateAccessToken("user123", "adopter")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("ValidateAccessToken", func(t *testing.T) {
		tokenString, _, err := service.GenerateAccessToken("user123", "foster")
		require.NoError(t, err)

		claims, err := service.ValidateAccessToken(tokenString)
		require.NoError(t, err)
		assert.Equal(t, "user123", claims.UserID)
		assert.Equal(t, "foster", claims.Role)
	})

	t.Run("ValidateInvalidToken", func(t *testing.T) {
		_, err := service.ValidateAccessToken("invalid-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ValidateWrongSecret", func(t *testing.T) {
		other, err := NewJWTService("another-secret-another-secret-xx", 15*time.Minute)
		require.NoError(t, err)
		tokenString, _, err := other.GenerateAccessToken("user123", "admin")
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ValidateRejectsNoneAlgorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, accessClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user123",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Type: tokenTypeAccess,
		})
		tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("ValidateExpiredToken", func(t *testing.T) {
		issuedAt := time.Now().Add(-time.Hour)
		past := &JWTService{secret: []byte(testSecret), accessTTL: 15 * time.Minute, now: func() time.Time { return issuedAt }}
		token, _, err := past.GenerateAccessToken("user123", "adopter")
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("ValidateRejectsMissingType", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "user123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		tokenString, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("ValidateWithoutIssuedAt", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user123",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: "adopter",
			Type: tokenTypeAccess,
		})
		tokenString, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		claims, err := service.ValidateAccessToken(tokenString)
		require.NoError(t, err)
		assert.Equal(t, "user123", claims.UserID)
		assert.True(t, claims.IssuedAt.IsZero())
	})

	t.Run("ValidateRejectsFutureIssuedAt", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user123",
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(time.Hour)),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
			},
			Type: tokenTypeAccess,
		})
		tokenString, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
