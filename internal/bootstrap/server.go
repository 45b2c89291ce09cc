package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/authhub/authhub/internal/cache"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/internal/metrics"
	"github.com/authhub/authhub/internal/services"
	"github.com/authhub/authhub/internal/store"

	"github.com/appleboy/graceful"
)

// maintenanceInterval is how often expired codes and tokens are purged.
const maintenanceInterval = time.Hour

// gaugeUpdateInterval is how often the active-token gauges are refreshed.
const gaugeUpdateInterval = time.Minute

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addMaintenanceJob adds the periodic purge of expired codes and tokens
func addMaintenanceJob(m *graceful.Manager, cfg *config.Config, ts *services.TokenService) {
	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()

		// Run cleanup immediately on startup
		ts.CleanupExpired(ctx)

		for {
			select {
			case <-ticker.C:
				ts.CleanupExpired(ctx)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addMetricsGaugeUpdateJob adds periodic metrics gauge update job
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
	countCache cache.Cache[int64],
) {
	if !cfg.MetricsEnabled {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(gaugeUpdateInterval)
		defer ticker.Stop()

		wrapper := metrics.NewCacheWrapper(db, countCache)

		// Update immediately on startup.
		// The cache TTL matches the update interval so every tick sees a
		// fresh count in single-instance deployments while multi-instance
		// ones share one query per interval.
		wrapper.UpdateTokenGauges(ctx, recorder, gaugeUpdateInterval)

		for {
			select {
			case <-ticker.C:
				wrapper.UpdateTokenGauges(ctx, recorder, gaugeUpdateInterval)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addCacheShutdownJob closes cache connections on shutdown
func addCacheShutdownJob(
	m *graceful.Manager,
	countCache cache.Cache[int64],
	discoveryCache cache.Cache[federation.DiscoveryDocument],
) {
	m.AddShutdownJob(func() error {
		if err := countCache.Close(); err != nil {
			log.Printf("Error closing count cache: %v", err)
		}
		if err := discoveryCache.Close(); err != nil {
			log.Printf("Error closing discovery cache: %v", err)
		}
		return nil
	})
}
