package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pawhaven/pawhaven/application/port/inbound"
	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/infrastructure/http/response"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
)

// RateLimitPolicy bounds one endpoint per client IP.
type RateLimitPolicy struct {
	Name          string
	Limit         int
	Window        time.Duration
	BlockDuration time.Duration
}

type RateLimitMiddleware struct {
	rateLimitService inbound.RateLimitService
	logger           logger.Logger
	trustProxy       bool
}

// NewRateLimitMiddleware keys limits by client IP. Forwarding headers are
// only believed when trustProxy is set, i.e. a proxy that overwrites them
// sits in front of the service.
func NewRateLimitMiddleware(rateLimitService inbound.RateLimitService, log logger.Logger, trustProxy bool) *RateLimitMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		logger:           log,
		trustProxy:       trustProxy,
	}
}

// Limit returns a middleware enforcing policy. Limiter failures let the
// request through; an unavailable Redis must not lock every user out.
func (m *RateLimitMiddleware) Limit(policy RateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.rateLimitService == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := clientIP(r, m.trustProxy)
			key := fmt.Sprintf("%s:ip:%s", policy.Name, ip)

			blocked, err := m.rateLimitService.IsBlocked(ctx, key)
			if err != nil {
				m.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
			}
			if blocked {
				m.reject(w, r, key, policy.BlockDuration)
				return
			}

			allowed, err := m.rateLimitService.Allow(ctx, key, policy.Limit, policy.Window)
			if err != nil {
				m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"key": key})
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if policy.BlockDuration > 0 {
					if err := m.rateLimitService.Block(ctx, key, policy.BlockDuration, "rate limit exceeded"); err != nil {
						m.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
					}
				}
				m.reject(w, r, key, policy.BlockDuration)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimitMiddleware) reject(w http.ResponseWriter, r *http.Request, key string, retryAfter time.Duration) {
	logger.LogSecurityEvent(r.Context(), m.logger, "rate_limit_exceeded", "HIGH", map[string]interface{}{
		"path":      r.URL.Path,
		"key":       key,
		"userAgent": r.UserAgent(),
	})
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
	}
	response.AppError(w, domainerr.ErrRateLimitExceeded())
}

// clientIP returns the socket address of the peer. With trustProxy it
// prefers the first X-Forwarded-For hop, then X-Real-IP.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
