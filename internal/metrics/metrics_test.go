package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/authhub/authhub/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	m := Init(true)
	assert.NotNil(t, m)

	// Type assert to concrete Metrics to access fields
	metrics, ok := m.(*Metrics)
	assert.True(t, ok, "Init(true) should return *Metrics")
	assert.NotNil(t, metrics.AuthorizationRequestsTotal)
	assert.NotNil(t, metrics.TokensIssuedTotal)
	assert.NotNil(t, metrics.FederatedCallbackTotal)
	assert.NotNil(t, metrics.HTTPRequestsTotal)
}

func TestInitNoop(t *testing.T) {
	m := Init(false)
	assert.NotNil(t, m)

	_, ok := m.(*NoopMetrics)
	assert.True(t, ok, "Init(false) should return *NoopMetrics")
}

func TestRecordTokenLifecycle(t *testing.T) {
	m := Init(true)

	m.RecordTokenIssued("access", "authorization_code", 100*time.Millisecond)
	m.RecordTokenIssued("refresh", "authorization_code", 100*time.Millisecond)
	m.RecordTokenRefresh(true)
	m.RecordTokenRevoked("access")
	m.RecordTokenRevoked("refresh")
	// No error means success - prometheus metrics don't return errors for recording
}

func TestRecordAuthorizationAndConsent(t *testing.T) {
	m := Init(true)

	m.RecordAuthorizationRequest("success")
	m.RecordAuthorizationRequest("invalid_request")
	m.RecordConsentDecision(true)
	m.RecordConsentDecision(false)
}

func TestRecordIntrospectionAndValidation(t *testing.T) {
	m := Init(true)

	m.RecordIntrospection(true)
	m.RecordIntrospection(false)
	m.RecordTokenValidation("valid", 10*time.Millisecond)
	m.RecordTokenValidation("expired", 10*time.Millisecond)
}

func TestRecordLoginAndFederation(t *testing.T) {
	m := Init(true)

	m.RecordLogin("local", true)
	m.RecordLogin("github", false)
	m.RecordLogout()
	m.RecordFederatedCallback("github", true)
	m.RecordFederatedCallback("github", false)
	m.RecordExternalAPICall("github", 250*time.Millisecond)
}

func TestNoopMetricsAllMethods(t *testing.T) {
	m := NewNoopMetrics()

	// Every method should be callable without panic
	m.RecordAuthorizationRequest("success")
	m.RecordConsentDecision(true)
	m.RecordTokenIssued("access", "client_credentials", time.Millisecond)
	m.RecordTokenRevoked("access")
	m.RecordTokenRefresh(false)
	m.RecordIntrospection(true)
	m.RecordTokenValidation("valid", time.Millisecond)
	m.RecordLogin("local", true)
	m.RecordLogout()
	m.RecordFederatedCallback("gitlab", true)
	m.RecordExternalAPICall("gitlab", time.Millisecond)
	m.SetActiveTokensCount("access", 5)
	m.RecordDatabaseQueryError("count_access_tokens")
}

// fakeCountStore counts how many times each query runs.
type fakeCountStore struct {
	accessCalls  int
	refreshCalls int
	failAccess   bool
}

func (f *fakeCountStore) CountActiveAccessTokens() (int64, error) {
	f.accessCalls++
	if f.failAccess {
		return 0, errors.New("db down")
	}
	return 7, nil
}

func (f *fakeCountStore) CountActiveRefreshTokens() (int64, error) {
	f.refreshCalls++
	return 3, nil
}

func TestCacheWrapperReadThrough(t *testing.T) {
	fake := &fakeCountStore{}
	w := &CacheWrapper{
		store: fake,
		cache: cache.NewMemoryCache[int64](),
	}
	ctx := context.Background()

	count, err := w.GetActiveAccessTokensCount(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	// Second read is served from cache
	count, err = w.GetActiveAccessTokensCount(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.Equal(t, 1, fake.accessCalls)

	count, err = w.GetActiveRefreshTokensCount(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCacheWrapperErrorPropagates(t *testing.T) {
	fake := &fakeCountStore{failAccess: true}
	w := &CacheWrapper{
		store: fake,
		cache: cache.NewMemoryCache[int64](),
	}

	_, err := w.GetActiveAccessTokensCount(context.Background(), time.Minute)
	assert.Error(t, err)
}

func TestUpdateTokenGauges(t *testing.T) {
	fake := &fakeCountStore{}
	w := &CacheWrapper{
		store: fake,
		cache: cache.NewMemoryCache[int64](),
	}

	// Must work against both recorder implementations
	w.UpdateTokenGauges(context.Background(), Init(true), time.Minute)
	w.UpdateTokenGauges(context.Background(), NewNoopMetrics(), time.Minute)
}
