package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/internal/cache"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/internal/handlers"
	"github.com/authhub/authhub/internal/keys"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/services"
	"github.com/authhub/authhub/internal/store"
	"github.com/authhub/authhub/internal/token"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB              *store.Store
	Keychain        *keys.Keychain
	MetricsRecorder metrics.Recorder
	CountCache      cache.Cache[int64]
	DiscoveryCache  cache.Cache[federation.DiscoveryDocument]

	// Services
	UserService          *services.UserService
	TokenService         *services.TokenService
	AuthorizationService *services.AuthorizationService
	Broker               *federation.Broker
	SessionManager       *auth.SessionManager

	// HTTP
	Handlers handlerSet
	Router   *gin.Engine
	Server   *http.Server
}

// handlerSet groups the HTTP handlers mounted by the router.
type handlerSet struct {
	Authorization *handlers.AuthorizationHandler
	Token         *handlers.TokenHandler
	OIDC          *handlers.OIDCHandler
	Auth          *handlers.AuthHandler
	Federation    *handlers.FederationHandler
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	if err := app.initializeInfrastructure(); err != nil {
		return err
	}
	app.initializeBusinessLayer()
	app.initializeHTTPLayer()
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, signing keys, metrics and caches
func (app *Application) initializeInfrastructure() error {
	var err error

	app.DB, err = store.New(app.Config.DatabaseDriver, app.Config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := app.DB.SeedDefaults(app.Config.DefaultAdminPassword); err != nil {
		return fmt.Errorf("failed to seed defaults: %w", err)
	}

	app.Keychain, err = keys.Load(app.Config.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	app.MetricsRecorder = metrics.Init(app.Config.MetricsEnabled)
	app.CountCache = newCountCache(app.Config)
	app.DiscoveryCache, err = newDiscoveryCache(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize discovery cache: %w", err)
	}

	return nil
}

// initializeBusinessLayer sets up services and the federation broker
func (app *Application) initializeBusinessLayer() {
	signer := token.NewSigner(app.Keychain, app.Config.BaseURL)

	app.AuthorizationService = services.NewAuthorizationService(app.DB, app.Config)
	app.TokenService = services.NewTokenService(app.DB, app.Config, signer, app.AuthorizationService)
	app.UserService = services.NewUserService(app.DB)
	app.SessionManager = auth.NewSessionManager(app.Config.BaseURL)

	outbound := &http.Client{Timeout: app.Config.FederationTimeout}
	resolver := federation.NewResolver(app.DiscoveryCache, outbound, app.Config.DiscoveryCacheTTL)
	app.Broker = federation.NewBroker(resolver, outbound)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.Handlers = handlerSet{
		Authorization: handlers.NewAuthorizationHandler(
			app.AuthorizationService, app.Config, app.MetricsRecorder,
		),
		Token: handlers.NewTokenHandler(app.TokenService, app.Config, app.MetricsRecorder),
		OIDC: handlers.NewOIDCHandler(
			app.TokenService, app.UserService, app.Keychain, app.MetricsRecorder,
		),
		Auth: handlers.NewAuthHandler(
			app.DB, app.UserService, app.SessionManager, app.Config, app.MetricsRecorder,
		),
		Federation: handlers.NewFederationHandler(
			app.DB, app.Broker, app.UserService, app.SessionManager,
			app.Config, app.MetricsRecorder,
		),
	}

	app.Router = setupRouter(app.Config, app.DB, app.Handlers, app.MetricsRecorder)
	app.Server = createHTTPServer(app.Config, app.Router)
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addMaintenanceJob(m, app.Config, app.TokenService)
	addMetricsGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder, app.CountCache)
	addCacheShutdownJob(m, app.CountCache, app.DiscoveryCache)

	<-m.Done()
}
