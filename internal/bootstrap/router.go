package bootstrap

import (
	"log"
	"net/http"

	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/middleware"
	"github.com/authhub/authhub/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	recorder metrics.Recorder,
) *gin.Engine {
	setupGinMode(cfg)
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.IPMiddleware())
	r.Use(auth.NewSessionStore(
		"authhub_session", cfg.SessionSecret, cfg.SessionMaxAge, cfg.IsProduction,
	))

	r.GET("/health", createHealthCheckHandler(db))
	setupMetricsEndpoint(r, cfg)

	limiters := setupRateLimiting(cfg)

	// Well-known documents
	r.GET("/.well-known/openid-configuration", h.OIDC.Discovery)
	r.GET("/.well-known/jwks.json", h.OIDC.JWKS)

	// Authorization server endpoints
	oauthGroup := r.Group("/oauth")
	{
		oauthGroup.GET("/authorize", limiters.authorize, h.Authorization.Authorize)
		oauthGroup.POST("/authorize", limiters.authorize, h.Authorization.ConsentDecision)
		oauthGroup.POST("/token", limiters.token, h.Token.Token)
		oauthGroup.POST("/introspect", h.Token.Introspect)
		oauthGroup.POST("/revoke", h.Token.Revoke)
		oauthGroup.GET("/userinfo", h.OIDC.UserInfo)
		oauthGroup.POST("/userinfo", h.OIDC.UserInfo)
	}

	// Local login collaborator
	r.GET("/login", h.Auth.LoginPage)
	r.POST("/login", limiters.login, h.Auth.Login)
	r.GET("/logout", h.Auth.Logout)

	// Federated login
	authGroup := r.Group("/auth")
	{
		authGroup.GET("/:provider/login", limiters.login, h.Federation.Login)
		authGroup.GET("/:provider/callback", h.Federation.Callback)
	}

	logServerStartup(cfg)
	return r
}

// setupGinMode sets gin release mode in production
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
}

// rateLimitMiddlewares holds the per-endpoint rate limiters. Every field is
// non-nil; a pass-through stands in when rate limiting is disabled.
type rateLimitMiddlewares struct {
	token     gin.HandlerFunc
	login     gin.HandlerFunc
	authorize gin.HandlerFunc
}

func passthrough(c *gin.Context) { c.Next() }

// setupRateLimiting builds the rate limiters from configuration. A limiter
// that cannot be constructed (Redis down) is a startup failure.
func setupRateLimiting(cfg *config.Config) rateLimitMiddlewares {
	if !cfg.EnableRateLimit {
		return rateLimitMiddlewares{
			token:     passthrough,
			login:     passthrough,
			authorize: passthrough,
		}
	}

	build := func(perMinute int) gin.HandlerFunc {
		var limiter gin.HandlerFunc
		var err error
		if cfg.RateLimitStore == config.RateLimitStoreRedis {
			limiter, err = middleware.NewRedisRateLimiter(
				perMinute, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			)
		} else {
			limiter, err = middleware.NewMemoryRateLimiter(perMinute)
		}
		if err != nil {
			log.Fatalf("Failed to create rate limiter: %v", err)
		}
		return limiter
	}

	return rateLimitMiddlewares{
		token:     build(cfg.TokenRateLimit),
		login:     build(cfg.LoginRateLimit),
		authorize: build(cfg.AuthorizeRawLimit),
	}
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// createHealthCheckHandler creates health check endpoint handler
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": "ok",
		})
	}
}

// logServerStartup logs where the server listens and which base URL it
// advertises.
func logServerStartup(cfg *config.Config) {
	log.Printf("[Bootstrap] Listening on %s, base URL %s", cfg.ServerAddr, cfg.BaseURL)
}
