package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/domain/entity"
	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/infrastructure/http/response"
	"github.com/pawhaven/pawhaven/infrastructure/http/validator"
)

type contextKey string

const authUserKey contextKey = "auth_user"

type AuthMiddleware struct {
	tokenService outbound.TokenService
}

func NewAuthMiddleware(tokenService outbound.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth rejects the request with 401 unless it carries a valid access
// token, and puts the token claims in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok || !validator.ValidateJWT(token) {
			response.AppError(w, domainerr.ErrUnauthorized("bearer token required"))
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(token)
		if err != nil {
			response.AppError(w, domainerr.ErrUnauthorized("invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), authUserKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole must run behind RequireAuth.
func RequireRole(roles ...entity.Role) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role.String()] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil {
				response.AppError(w, domainerr.ErrUnauthorized("not authenticated"))
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				response.AppError(w, domainerr.ErrForbidden("role not permitted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserClaims returns the claims RequireAuth stored, or nil.
func GetUserClaims(ctx context.Context) *outbound.TokenClaims {
	if claims, ok := ctx.Value(authUserKey).(*outbound.TokenClaims); ok {
		return claims
	}
	return nil
}
