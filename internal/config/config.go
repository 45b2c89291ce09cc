package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit store types
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Cache backends (discovery documents and token-count gauges)
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// Session settings
	SessionSecret string
	SessionMaxAge int // seconds

	// Signing key settings
	SigningKeyPath string // PEM file; generated at this path when absent

	// Token lifetimes
	AuthCodeExpiration     time.Duration
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration
	IDTokenExpiration      time.Duration

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Consent
	ConsentRemember bool // Skip consent UI when a covering grant exists

	// Federation (outbound login broker)
	FederationTimeout  time.Duration // Outbound HTTP timeout for token/JWKS/userinfo calls
	FederationStateTTL time.Duration // Lifetime of the login state cookie
	DiscoveryCacheTTL  time.Duration

	// Caching
	CacheBackend string // "memory" or "redis", covers discovery docs and count gauges

	// Redis (shared by rate limiting and the caches)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	EnableRateLimit   bool
	RateLimitStore    string // "memory" or "redis"
	TokenRateLimit    int    // requests per minute on /oauth/token
	LoginRateLimit    int    // requests per minute on /login
	AuthorizeRawLimit int    // requests per minute on /oauth/authorize

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	// Bootstrap admin user
	DefaultAdminPassword string
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "authhub.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction: getEnvBool("PRODUCTION", false),

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 3600),

		SigningKeyPath: getEnv("SIGNING_KEY_PATH", ""),

		AuthCodeExpiration:     getEnvDuration("AUTH_CODE_EXPIRATION", 10*time.Minute),
		AccessTokenExpiration:  getEnvDuration("ACCESS_TOKEN_EXPIRATION", time.Hour),
		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 720*time.Hour),
		IDTokenExpiration:      getEnvDuration("ID_TOKEN_EXPIRATION", time.Hour),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		ConsentRemember: getEnvBool("CONSENT_REMEMBER", true),

		FederationTimeout:  getEnvDuration("FEDERATION_TIMEOUT", 15*time.Second),
		FederationStateTTL: getEnvDuration("FEDERATION_STATE_TTL", 10*time.Minute),
		DiscoveryCacheTTL:  getEnvDuration("DISCOVERY_CACHE_TTL", time.Hour),

		CacheBackend: getEnv("CACHE_BACKEND", CacheBackendMemory),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		EnableRateLimit:   getEnvBool("ENABLE_RATE_LIMIT", false),
		RateLimitStore:    getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		TokenRateLimit:    getEnvInt("TOKEN_RATE_LIMIT", 60),
		LoginRateLimit:    getEnvInt("LOGIN_RATE_LIMIT", 10),
		AuthorizeRawLimit: getEnvInt("AUTHORIZE_RATE_LIMIT", 60),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", ""),
	}
}

// Validate checks configuration consistency at startup.
func (c *Config) Validate() error {
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for the postgres driver")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.IsProduction && c.SessionSecret == "session-secret-change-in-production" {
		return fmt.Errorf("SESSION_SECRET must be changed in production")
	}
	switch c.RateLimitStore {
	case RateLimitStoreMemory, RateLimitStoreRedis:
	default:
		return fmt.Errorf("unsupported rate limit store: %s", c.RateLimitStore)
	}
	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.CacheBackend)
	}
	if c.AuthCodeExpiration <= 0 || c.AccessTokenExpiration <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
