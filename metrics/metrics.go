// Package metrics provides Prometheus metrics for auth session
// operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the SDK.
type Metrics struct {
	enabled bool

	// Session lifecycle metrics
	authAttemptsTotal *prometheus.CounterVec
	refreshesTotal    *prometheus.CounterVec
	sessionState      prometheus.Gauge

	// Token cache metrics
	tokenCacheHitsTotal   prometheus.Counter
	tokenCacheMissesTotal prometheus.Counter

	// Request client metrics
	requestRetriesTotal prometheus.Counter
	requestsTotal       *prometheus.CounterVec

	// Route guard metrics
	guardDecisionsTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primeauth_auth_attempts_total",
		Help: "Total sign-in, sign-up and sign-out attempts",
	}, []string{"operation", "result"})

	m.refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primeauth_session_refreshes_total",
		Help: "Total session refresh attempts",
	}, []string{"result"})

	m.sessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primeauth_session_state",
		Help: "Current session state (0=uninitialized, 1=loading, 2=authenticated, 3=anonymous)",
	})

	m.tokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "primeauth_token_cache_hits_total",
		Help: "Total token cache hits in the request client",
	})

	m.tokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "primeauth_token_cache_misses_total",
		Help: "Total token cache misses in the request client",
	})

	m.requestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "primeauth_request_retries_total",
		Help: "Total 401-triggered request retries",
	})

	m.requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primeauth_requests_total",
		Help: "Total authenticated requests",
	}, []string{"method", "result"})

	m.guardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primeauth_guard_decisions_total",
		Help: "Total route guard decisions",
	}, []string{"action"})

	return m
}

// RecordAuthAttempt records a sign-in/sign-up/sign-out attempt.
func (m *Metrics) RecordAuthAttempt(operation, result string) {
	if !m.enabled {
		return
	}
	m.authAttemptsTotal.WithLabelValues(operation, result).Inc()
}

// RecordRefresh records a session refresh attempt.
func (m *Metrics) RecordRefresh(result string) {
	if !m.enabled {
		return
	}
	m.refreshesTotal.WithLabelValues(result).Inc()
}

// SetSessionState records the current session manager state.
func (m *Metrics) SetSessionState(state float64) {
	if !m.enabled {
		return
	}
	m.sessionState.Set(state)
}

// RecordTokenCacheHit records a request-client token cache hit.
func (m *Metrics) RecordTokenCacheHit() {
	if !m.enabled {
		return
	}
	m.tokenCacheHitsTotal.Inc()
}

// RecordTokenCacheMiss records a request-client token cache miss.
func (m *Metrics) RecordTokenCacheMiss() {
	if !m.enabled {
		return
	}
	m.tokenCacheMissesTotal.Inc()
}

// RecordRequestRetry records a 401-triggered retry.
func (m *Metrics) RecordRequestRetry() {
	if !m.enabled {
		return
	}
	m.requestRetriesTotal.Inc()
}

// RecordRequest records an authenticated request outcome.
func (m *Metrics) RecordRequest(method, result string) {
	if !m.enabled {
		return
	}
	m.requestsTotal.WithLabelValues(method, result).Inc()
}

// RecordGuardDecision records a route guard decision.
func (m *Metrics) RecordGuardDecision(action string) {
	if !m.enabled {
		return
	}
	m.guardDecisionsTotal.WithLabelValues(action).Inc()
}
