package metrics

import (
	"context"
	"time"

	"github.com/authhub/authhub/internal/cache"
	"github.com/authhub/authhub/internal/store"
)

// countStore defines the database operations needed by CacheWrapper.
// This interface allows for easier testing without requiring a full store.Store.
type countStore interface {
	CountActiveAccessTokens() (int64, error)
	CountActiveRefreshTokens() (int64, error)
}

// CacheWrapper provides a read-through cache for active-token counts, the
// source for the oauth_tokens_active gauges. It queries the database on cache
// miss and updates the cache for subsequent requests.
type CacheWrapper struct {
	store countStore
	cache cache.Cache[int64]
}

// NewCacheWrapper creates a new cache wrapper for metrics.
func NewCacheWrapper(store *store.Store, cache cache.Cache[int64]) *CacheWrapper {
	return &CacheWrapper{
		store: store,
		cache: cache,
	}
}

// GetActiveAccessTokensCount retrieves the count of active opaque access tokens.
func (m *CacheWrapper) GetActiveAccessTokensCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(ctx, "tokens:access", ttl, m.store.CountActiveAccessTokens)
}

// GetActiveRefreshTokensCount retrieves the count of active refresh tokens.
func (m *CacheWrapper) GetActiveRefreshTokensCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(ctx, "tokens:refresh", ttl, m.store.CountActiveRefreshTokens)
}

// getCountWithCache retrieves a count using the cache-aside pattern.
func (m *CacheWrapper) getCountWithCache(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetchFunc func() (int64, error),
) (int64, error) {
	return cache.GetWithFetch(
		ctx,
		m.cache,
		key,
		ttl,
		func(ctx context.Context, key string) (int64, error) {
			return fetchFunc()
		},
	)
}

// UpdateTokenGauges refreshes the active-token gauges from the (cached)
// database counts. Called periodically from the maintenance loop.
func (m *CacheWrapper) UpdateTokenGauges(ctx context.Context, recorder Recorder, ttl time.Duration) {
	if count, err := m.GetActiveAccessTokensCount(ctx, ttl); err == nil {
		recorder.SetActiveTokensCount("access", int(count))
	} else {
		recorder.RecordDatabaseQueryError("count_access_tokens")
	}
	if count, err := m.GetActiveRefreshTokensCount(ctx, ttl); err == nil {
		recorder.SetActiveTokensCount("refresh", int(count))
	} else {
		recorder.RecordDatabaseQueryError("count_refresh_tokens")
	}
}
