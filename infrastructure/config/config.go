package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RefreshStoreMemory   = "memory"
	RefreshStoreRedis    = "redis"
	RefreshStorePostgres = "postgres"
)

// MinSecretLength is the shortest HMAC key the service accepts.
const MinSecretLength = 32

type Config struct {
	DatabaseURL      string
	JWTSecret        string
	RefreshTokenSalt string
	CSRFSecret       string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ServerPort       string
	ServerHost       string
	Environment      string

	CookieDomain      string
	RefreshCookieName string
	CSRFCookieName    string
	CSRFHeaderName    string

	RefreshStore         string
	RefreshSweepInterval time.Duration
	RedisURL             string

	// TrustProxyHeaders makes the rate limiter key on X-Forwarded-For.
	// Enable only behind a proxy that overwrites the header.
	TrustProxyHeaders bool

	RateLimitEnabled       bool
	RateLimitLoginAttempts int
	RateLimitLoginWindow   time.Duration
	RateLimitRefreshLimit  int
	RateLimitRefreshWindow time.Duration
	RateLimitBlockDuration time.Duration

	LogLevel            string
	LogFormat           string
	LogEnableRequestLog bool

	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	MetricsEnabled bool
}

var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret    = errors.New("JWT_SECRET is required")
	ErrMissingRefreshSalt  = errors.New("REFRESH_TOKEN_SALT is required")
	ErrMissingCSRFSecret   = errors.New("CSRF_SECRET is required")
	ErrInvalidTokenTTL     = errors.New("invalid token TTL format")
	ErrInvalidRefreshStore = errors.New("REFRESH_STORE must be one of memory, redis, postgres")
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		RefreshTokenSalt:  os.Getenv("REFRESH_TOKEN_SALT"),
		CSRFSecret:        os.Getenv("CSRF_SECRET"),
		ServerPort:        getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:        getEnvOrDefault("SERVER_HOST", "localhost"),
		Environment:       getEnvOrDefault("ENV", "development"),
		CookieDomain:      os.Getenv("COOKIE_DOMAIN"),
		RefreshCookieName: getEnvOrDefault("REFRESH_COOKIE_NAME", "refresh_token"),
		CSRFCookieName:    getEnvOrDefault("CSRF_COOKIE_NAME", "XSRF-TOKEN"),
		CSRFHeaderName:    getEnvOrDefault("CSRF_HEADER_NAME", "X-XSRF-TOKEN"),
		RefreshStore:      strings.ToLower(getEnvOrDefault("REFRESH_STORE", RefreshStoreMemory)),
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),

		TrustProxyHeaders:      getEnvOrDefaultBool("TRUST_PROXY_HEADERS", false),
		RateLimitEnabled:       getEnvOrDefaultBool("RATE_LIMIT_ENABLED", false),
		RateLimitLoginAttempts: getEnvOrDefaultInt("RATE_LIMIT_LOGIN_ATTEMPTS", 10),
		RateLimitRefreshLimit:  getEnvOrDefaultInt("RATE_LIMIT_REFRESH_ATTEMPTS", 60),

		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		LogEnableRequestLog: getEnvOrDefaultBool("LOG_ENABLE_REQUEST_LOG", true),

		CORSEnabled:          getEnvOrDefaultBool("CORS_ENABLED", true),
		CORSAllowCredentials: getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", true),
		CORSAllowedOrigins:   parseAllowedOrigins(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),

		MetricsEnabled: getEnvOrDefaultBool("METRICS_ENABLED", true),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	if cfg.RefreshTokenSalt == "" {
		return nil, ErrMissingRefreshSalt
	}
	if cfg.CSRFSecret == "" {
		return nil, ErrMissingCSRFSecret
	}

	switch cfg.RefreshStore {
	case RefreshStoreMemory, RefreshStoreRedis, RefreshStorePostgres:
	default:
		return nil, ErrInvalidRefreshStore
	}

	durations := []struct {
		key    string
		def    string
		target *time.Duration
	}{
		{"JWT_ACCESS_TOKEN_TTL", "900", &cfg.AccessTokenTTL},
		{"JWT_REFRESH_TOKEN_TTL", "604800", &cfg.RefreshTokenTTL},
		{"REFRESH_SWEEP_INTERVAL", "300", &cfg.RefreshSweepInterval},
		{"RATE_LIMIT_LOGIN_WINDOW", "900", &cfg.RateLimitLoginWindow},
		{"RATE_LIMIT_REFRESH_WINDOW", "3600", &cfg.RateLimitRefreshWindow},
		{"RATE_LIMIT_BLOCK_DURATION", "1800", &cfg.RateLimitBlockDuration},
	}
	for _, d := range durations {
		v, err := parseTokenTTL(getEnvOrDefault(d.key, d.def))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%s: %w", d.key, ErrInvalidTokenTTL)
		}
		*d.target = v
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// CookieSameSite is Strict in production and Lax everywhere else.
func (c *Config) CookieSameSite() http.SameSite {
	if c.IsProduction() {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// CookieSecure requires HTTPS for cookies in production only, so local
// development over plain HTTP keeps working.
func (c *Config) CookieSecure() bool {
	return c.IsProduction()
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// parseTokenTTL reads a number of seconds, falling back to Go duration syntax.
func parseTokenTTL(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func parseAllowedOrigins(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}
