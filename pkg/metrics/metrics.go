// Package metrics holds the Prometheus collectors of the billing console.
//
// Collectors are registered on an injected registry rather than the global
// default, so tests can build as many instances as they like. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billing"

// Result labels shared by the counters.
const (
	ResultOK          = "ok"
	ResultInvalid     = "invalid"
	ResultReplay      = "replay"
	ResultGrace       = "grace"
	ResultExpired     = "expired"
	ResultRejected    = "rejected"
	ResultUnavailable = "unavailable"
	ResultSkipped     = "skipped"
	ResultFailed      = "failed"
)

// Metrics groups the billing collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	TokenVerifications   *prometheus.CounterVec
	SessionVerifications *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	TenantSyncs          *prometheus.CounterVec
	TenantSyncDuration   prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		TokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sso_token_verifications_total",
				Help:      "SSO token verifications by result.",
			},
			[]string{"result"},
		),
		SessionVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_verifications_total",
				Help:      "Session verifications by session kind and result.",
			},
			[]string{"kind", "result"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_transitions_total",
				Help:      "Subscription state transitions by transition name and result.",
			},
			[]string{"transition", "result"},
		),
		TenantSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tenant_sync_total",
				Help:      "Tenant mirror updates by result.",
			},
			[]string{"result"},
		),
		TenantSyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tenant_sync_duration_seconds",
				Help:      "Time spent applying a tenant mirror update.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		m.TokenVerifications,
		m.SessionVerifications,
		m.Transitions,
		m.TenantSyncs,
		m.TenantSyncDuration,
	)
	return m
}

// TokenVerified counts an SSO token verification by result.
func (m *Metrics) TokenVerified(result string) {
	if m == nil {
		return
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}

// SessionVerified counts a session lookup by kind and result.
func (m *Metrics) SessionVerified(kind, result string) {
	if m == nil {
		return
	}
	m.SessionVerifications.WithLabelValues(kind, result).Inc()
}

// TransitionApplied counts a subscription transition attempt.
func (m *Metrics) TransitionApplied(transition, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(transition, result).Inc()
}

// TenantSynced counts a tenant mirror update and observes its duration.
func (m *Metrics) TenantSynced(result string, seconds float64) {
	if m == nil {
		return
	}
	m.TenantSyncs.WithLabelValues(result).Inc()
	m.TenantSyncDuration.Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
