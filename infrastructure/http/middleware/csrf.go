package middleware

import (
	"net/http"

	domainerr "github.com/pawhaven/pawhaven/domain/error"
	"github.com/pawhaven/pawhaven/infrastructure/http/response"
	"github.com/pawhaven/pawhaven/infrastructure/service/csrf"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
	"github.com/pawhaven/pawhaven/infrastructure/service/metrics"
)

type CSRFMiddleware struct {
	service    *csrf.Service
	cookieName string
	headerName string
	metrics    *metrics.Metrics
	logger     logger.Logger
}

func NewCSRFMiddleware(service *csrf.Service, cookieName, headerName string, m *metrics.Metrics, log logger.Logger) *CSRFMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &CSRFMiddleware{
		service:    service,
		cookieName: cookieName,
		headerName: headerName,
		metrics:    m,
		logger:     log,
	}
}

// Guard enforces the double-submit check on state-changing methods. It runs
// independently of authentication: a valid access token does not excuse a
// missing or mismatched header.
func (m *CSRFMiddleware) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isStateChanging(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		var cookieValue string
		if c, err := r.Cookie(m.cookieName); err == nil {
			cookieValue = c.Value
		}

		if !m.service.DoubleSubmitValid(cookieValue, r.Header.Get(m.headerName)) {
			m.metrics.CSRFRejected()
			logger.LogSecurityEvent(r.Context(), m.logger, "csrf_rejected", "MEDIUM", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"has_cookie":  cookieValue != "",
				"has_header":  r.Header.Get(m.headerName) != "",
				"remote_addr": clientIP(r, false),
			})
			response.AppError(w, domainerr.ErrInvalidCsrfToken())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
