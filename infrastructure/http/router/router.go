// Package router assembles the HTTP surface: session endpoints under /auth,
// the authenticated API under /api, and the operational endpoints.
package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pawhaven/pawhaven/domain/entity"
	"github.com/pawhaven/pawhaven/infrastructure/http/handler"
	"github.com/pawhaven/pawhaven/infrastructure/http/middleware"
	"github.com/pawhaven/pawhaven/infrastructure/http/response"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
	"github.com/pawhaven/pawhaven/infrastructure/service/metrics"
)

type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowCredentials bool
	CSRFHeader       string
}

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	AccountHandler *handler.AccountHandler
	AuthMiddleware *middleware.AuthMiddleware
	CSRFMiddleware *middleware.CSRFMiddleware
	RateLimit      *middleware.RateLimitMiddleware
	LoginPolicy    middleware.RateLimitPolicy
	RefreshPolicy  middleware.RateLimitPolicy

	// Metrics may be nil; /metrics is then not served.
	Metrics    *metrics.Metrics
	Logger     logger.Logger
	RequestLog bool
	CORS       CORSConfig
}

func New(deps Dependencies) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.MethodNotAllowed(w)
	})

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics, deps.RequestLog))

	r.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	// The session endpoints carry no CSRF guard: login has no session yet,
	// and refresh/logout are covered by the SameSite refresh cookie.
	auth := r.PathPrefix("/auth").Subrouter()
	auth.Handle("/login", limited(deps.RateLimit, deps.LoginPolicy, deps.AuthHandler.Login)).Methods(http.MethodPost)
	auth.Handle("/refresh", limited(deps.RateLimit, deps.RefreshPolicy, deps.AuthHandler.Refresh)).Methods(http.MethodPost)
	auth.HandleFunc("/logout", deps.AuthHandler.Logout).Methods(http.MethodPost)
	auth.Handle("/me", deps.AuthMiddleware.RequireAuth(http.HandlerFunc(deps.AuthHandler.Me))).Methods(http.MethodGet)
	auth.HandleFunc("/csrf", deps.AuthHandler.CSRF).Methods(http.MethodGet)

	// CSRF runs before authentication so a forged request is refused even
	// when it carries a valid access token.
	api := r.PathPrefix("/api").Subrouter()
	api.Use(deps.CSRFMiddleware.Guard, deps.AuthMiddleware.RequireAuth)
	api.HandleFunc("/account", deps.AccountHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/account/password", deps.AccountHandler.ChangePassword).Methods(http.MethodPut)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(entity.RoleAdmin))
	admin.HandleFunc("/ping", deps.AccountHandler.AdminPing).Methods(http.MethodGet)

	var h http.Handler = r
	if deps.CORS.Enabled && len(deps.CORS.AllowedOrigins) > 0 {
		h = middleware.CORSMiddleware(h, deps.CORS.AllowedOrigins, deps.CORS.AllowCredentials, deps.CORS.CSRFHeader)
	}
	return middleware.CorrelationIDMiddleware(h)
}

func limited(rl *middleware.RateLimitMiddleware, policy middleware.RateLimitPolicy, fn http.HandlerFunc) http.Handler {
	if rl == nil || policy.Limit <= 0 {
		return fn
	}
	return rl.Limit(policy)(fn)
}
