package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/authhub/authhub/internal/cache"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/federation"
)

// newCountCache builds the cache backing the active-token gauges. A Redis
// failure downgrades to memory: gauge freshness is not worth refusing to boot.
func newCountCache(cfg *config.Config) cache.Cache[int64] {
	if cfg.CacheBackend == config.CacheBackendRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := cache.NewRueidisCache[int64](
			ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "authhub:counts",
		)
		if err == nil {
			log.Printf("[Bootstrap] Count cache: redis at %s", cfg.RedisAddr)
			return c
		}
		log.Printf("[Bootstrap] Redis count cache unavailable, using memory: %v", err)
	}
	return cache.NewMemoryCache[int64]()
}

// newDiscoveryCache builds the cache for provider discovery documents.
// Unlike the gauge cache this one fails hard when Redis was asked for and is
// unreachable, because a silently cold discovery cache hits every provider
// on every login.
func newDiscoveryCache(cfg *config.Config) (cache.Cache[federation.DiscoveryDocument], error) {
	if cfg.CacheBackend == config.CacheBackendRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := cache.NewRueidisCache[federation.DiscoveryDocument](
			ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "authhub:discovery",
		)
		if err != nil {
			return nil, err
		}
		log.Printf("[Bootstrap] Discovery cache: redis at %s", cfg.RedisAddr)
		return c, nil
	}
	return cache.NewMemoryCache[federation.DiscoveryDocument](), nil
}
