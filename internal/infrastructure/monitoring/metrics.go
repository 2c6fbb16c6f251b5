package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tweenim/capauth/pkg/breaker"
)

// Metrics holds the Prometheus instruments for the service.
type Metrics struct {
	TokensIssued       *prometheus.CounterVec
	TokenIssueLatency  *prometheus.HistogramVec
	TokenVerifications *prometheus.CounterVec
	Revocations        *prometheus.CounterVec
	DeviceFlowPolls    *prometheus.CounterVec
	WebhookDeliveries  *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics creates and registers the service metrics on the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TokensIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capauth_tokens_issued_total",
				Help: "Capability tokens issued, by grant type and result.",
			},
			[]string{"grant_type", "result"},
		),
		TokenIssueLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capauth_token_issue_latency_seconds",
				Help:    "Latency of token endpoint requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"grant_type"},
		),
		TokenVerifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capauth_token_verifications_total",
				Help: "Capability token verifications, by result.",
			},
			[]string{"result"},
		),
		Revocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capauth_revocations_total",
				Help: "Revocation operations, by origin.",
			},
			[]string{"origin"},
		),
		DeviceFlowPolls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capauth_device_flow_polls_total",
				Help: "Device flow token polls, by outcome.",
			},
			[]string{"outcome"},
		),
		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capauth_webhook_deliveries_total",
				Help: "Outbound revocation webhook deliveries, by result.",
			},
			[]string{"result"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capauth_http_request_duration_seconds",
				Help:    "HTTP request latency by route and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "capauth_breaker_state",
				Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open).",
			},
			[]string{"dependency"},
		),
	}
}

// RecordTokenIssue records one token endpoint request.
func (m *Metrics) RecordTokenIssue(grantType, result string, duration time.Duration) {
	m.TokensIssued.WithLabelValues(grantType, result).Inc()
	m.TokenIssueLatency.WithLabelValues(grantType).Observe(duration.Seconds())
}

// RecordVerification records a token verification outcome.
func (m *Metrics) RecordVerification(result string) {
	m.TokenVerifications.WithLabelValues(result).Inc()
}

// RecordRevocation records a revocation, tagged by what triggered it.
func (m *Metrics) RecordRevocation(origin string) {
	m.Revocations.WithLabelValues(origin).Inc()
}

// RecordDevicePoll records a device flow poll outcome.
func (m *Metrics) RecordDevicePoll(outcome string) {
	m.DeviceFlowPolls.WithLabelValues(outcome).Inc()
}

// RecordWebhookDelivery records an outbound webhook result.
func (m *Metrics) RecordWebhookDelivery(result string) {
	m.WebhookDeliveries.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one finished HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// BreakerStateHook exports breaker transitions as a gauge. Registered on the
// breaker registry at startup; it must stay non-blocking.
func (m *Metrics) BreakerStateHook() breaker.StateChangeHook {
	return func(name string, from, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
	}
}

func breakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}
