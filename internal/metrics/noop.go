package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Authorization endpoint - noop implementations
func (n *NoopMetrics) RecordAuthorizationRequest(result string) {}
func (n *NoopMetrics) RecordConsentDecision(approved bool)      {}

// Token operations - noop implementations
func (n *NoopMetrics) RecordTokenIssued(
	tokenType, grantType string,
	generationTime time.Duration,
) {
}

func (n *NoopMetrics) RecordTokenRevoked(tokenType string) {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)     {}
func (n *NoopMetrics) RecordIntrospection(active bool)     {}

func (n *NoopMetrics) RecordTokenValidation(
	result string,
	duration time.Duration,
) {
}

// Authentication - noop implementations
func (n *NoopMetrics) RecordLogin(authSource string, success bool)                   {}
func (n *NoopMetrics) RecordLogout()                                                 {}
func (n *NoopMetrics) RecordFederatedCallback(provider string, success bool)         {}
func (n *NoopMetrics) RecordExternalAPICall(provider string, duration time.Duration) {}

// Gauge setters - noop implementations
func (n *NoopMetrics) SetActiveTokensCount(tokenType string, count int) {}

// Database operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
