package metrics

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Authorization endpoint
	RecordAuthorizationRequest(result string)
	RecordConsentDecision(approved bool)

	// Token operations
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration)
	RecordTokenRevoked(tokenType string)
	RecordTokenRefresh(success bool)
	RecordIntrospection(active bool)
	RecordTokenValidation(result string, duration time.Duration)

	// Authentication
	RecordLogin(authSource string, success bool)
	RecordLogout()
	RecordFederatedCallback(provider string, success bool)
	RecordExternalAPICall(provider string, duration time.Duration)

	// Gauge setters (for periodic updates)
	SetActiveTokensCount(tokenType string, count int)

	// Database operations
	RecordDatabaseQueryError(operation string)
}
