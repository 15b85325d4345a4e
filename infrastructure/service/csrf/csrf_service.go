// Package csrf mints and checks double-submit tokens. A token is a random
// nonce plus its HMAC, so the server can tell its own tokens from values a
// third party planted in the cookie.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

const nonceBytes = 32

var ErrWeakSecret = errors.New("csrf secret must be at least 32 bytes")

type Service struct {
	secret []byte
}

func NewService(secret string) (*Service, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	return &Service{secret: []byte(secret)}, nil
}

// Generate returns nonce.signature, both base64url without padding.
func (s *Service) Generate() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	nonce := base64.RawURLEncoding.EncodeToString(b)
	return nonce + "." + s.sign(nonce), nil
}

// Verify reports whether token was minted with this service's secret.
func (s *Service) Verify(token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.sign(nonce)))
}

// DoubleSubmitValid is the request check: cookie and header must both be
// present, equal, and carry a valid signature.
func (s *Service) DoubleSubmitValid(cookieValue, headerValue string) bool {
	cv := strings.TrimSpace(cookieValue)
	hv := strings.TrimSpace(headerValue)
	if cv == "" || hv == "" || len(cv) != len(hv) {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(cv), []byte(hv)) != 1 {
		return false
	}
	return s.Verify(cv)
}

func (s *Service) sign(nonce string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
