package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/pawhaven/pawhaven/application/port/inbound"
	"github.com/pawhaven/pawhaven/application/port/outbound"
	"github.com/pawhaven/pawhaven/application/usecase"
	"github.com/pawhaven/pawhaven/infrastructure/adapter/memory"
	"github.com/pawhaven/pawhaven/infrastructure/adapter/postgres"
	redisadapter "github.com/pawhaven/pawhaven/infrastructure/adapter/redis"
	"github.com/pawhaven/pawhaven/infrastructure/config"
	"github.com/pawhaven/pawhaven/infrastructure/http/handler"
	"github.com/pawhaven/pawhaven/infrastructure/http/middleware"
	"github.com/pawhaven/pawhaven/infrastructure/http/router"
	"github.com/pawhaven/pawhaven/infrastructure/service/csrf"
	"github.com/pawhaven/pawhaven/infrastructure/service/jwt"
	"github.com/pawhaven/pawhaven/infrastructure/service/logger"
	"github.com/pawhaven/pawhaven/infrastructure/service/metrics"
	"github.com/pawhaven/pawhaven/infrastructure/service/password"
	"github.com/pawhaven/pawhaven/infrastructure/service/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "pawhaven-auth",
		Output:      os.Stdout,
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env":           cfg.Environment,
		"refresh_store": cfg.RefreshStore,
	})

	// Signing problems are fatal: the service cannot mint a single session.
	tokenService, err := jwt.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize JWT service", err, nil)
		os.Exit(1)
	}
	csrfService, err := csrf.NewService(cfg.CSRFSecret)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize CSRF service", err, nil)
		os.Exit(1)
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to connect to database", err, nil)
		os.Exit(1)
	}
	defer db.Close()
	structuredLogger.Info(ctx, "Database connection established", nil)

	var redisClient *goredis.Client
	if cfg.RefreshStore == config.RefreshStoreRedis || cfg.RateLimitEnabled {
		redisClient, err = redisadapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			structuredLogger.Error(ctx, "Failed to connect to Redis", err, nil)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	refreshRegistry := newRefreshRegistry(ctx, cfg, db, redisClient, structuredLogger)
	rateLimitService := newRateLimitService(cfg, redisClient, structuredLogger)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	accountRepo := postgres.NewAccountRepository(db)
	passwordService := password.NewBcryptPasswordService(10)

	authUseCase := usecase.NewAuthUseCase(
		accountRepo,
		refreshRegistry,
		tokenService,
		passwordService,
		structuredLogger,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
	)
	accountUseCase := usecase.NewAccountUseCase(accountRepo, passwordService, structuredLogger)

	cookies := handler.CookieConfig{
		RefreshName: cfg.RefreshCookieName,
		CSRFName:    cfg.CSRFCookieName,
		Domain:      cfg.CookieDomain,
		Secure:      cfg.CookieSecure(),
		SameSite:    cfg.CookieSameSite(),
		RefreshTTL:  cfg.RefreshTokenTTL,
	}

	h := router.New(router.Dependencies{
		AuthHandler:    handler.NewAuthHandler(authUseCase, csrfService, cookies, m),
		AccountHandler: handler.NewAccountHandler(accountUseCase),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenService),
		CSRFMiddleware: middleware.NewCSRFMiddleware(csrfService, cfg.CSRFCookieName, cfg.CSRFHeaderName, m, structuredLogger),
		RateLimit:      middleware.NewRateLimitMiddleware(rateLimitService, structuredLogger, cfg.TrustProxyHeaders),
		LoginPolicy: middleware.RateLimitPolicy{
			Name:          "login",
			Limit:         cfg.RateLimitLoginAttempts,
			Window:        cfg.RateLimitLoginWindow,
			BlockDuration: cfg.RateLimitBlockDuration,
		},
		RefreshPolicy: middleware.RateLimitPolicy{
			Name:   "refresh",
			Limit:  cfg.RateLimitRefreshLimit,
			Window: cfg.RateLimitRefreshWindow,
		},
		Metrics:    m,
		Logger:     structuredLogger,
		RequestLog: cfg.LogEnableRequestLog,
		CORS: router.CORSConfig{
			Enabled:          cfg.CORSEnabled,
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: cfg.CORSAllowCredentials,
			CSRFHeader:       cfg.CSRFHeaderName,
		},
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{"addr": cfg.Addr()})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{"addr": cfg.Addr()})
			stop()
		}
	}()

	<-ctx.Done()
	structuredLogger.Info(context.Background(), "Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(shutdownCtx, "Server forced to shutdown", err, nil)
	}
	structuredLogger.Info(shutdownCtx, "Server exited", nil)
}

// newRefreshRegistry picks the backing store. The in-memory registry also
// gets its janitor, which stops with ctx.
func newRefreshRegistry(ctx context.Context, cfg *config.Config, db *sql.DB, redisClient *goredis.Client, log logger.Logger) outbound.RefreshRegistry {
	switch cfg.RefreshStore {
	case config.RefreshStoreRedis:
		log.Info(ctx, "Refresh tokens stored in Redis", nil)
		return redisadapter.NewRefreshRegistry(redisClient, cfg.RefreshTokenSalt)
	case config.RefreshStorePostgres:
		log.Info(ctx, "Refresh tokens stored in Postgres", nil)
		return postgres.NewRefreshRegistry(db, cfg.RefreshTokenSalt)
	default:
		log.Warn(ctx, "Refresh tokens held in process memory; sessions end on restart", nil)
		registry := memory.NewRefreshRegistry(cfg.RefreshTokenSalt, log)
		go registry.Run(ctx, cfg.RefreshSweepInterval)
		return registry
	}
}

func newRateLimitService(cfg *config.Config, redisClient *goredis.Client, log logger.Logger) inbound.RateLimitService {
	if !cfg.RateLimitEnabled || redisClient == nil {
		log.Info(context.Background(), "Rate limiting disabled", nil)
		return ratelimit.NewNoopRateLimitService()
	}
	log.Info(context.Background(), "Rate limiting service initialized", map[string]interface{}{
		"login_attempts": cfg.RateLimitLoginAttempts,
		"login_window":   cfg.RateLimitLoginWindow.String(),
		"refresh_limit":  cfg.RateLimitRefreshLimit,
	})
	return ratelimit.NewRateLimitService(redisClient, log)
}
