// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestDuration tracks provider call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Language model provider call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "mode", "status"},
	)

	// LLMTokensTotal tracks estimated tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Estimated LLM tokens processed",
		},
		[]string{"model"},
	)

	// ChatsTotal tracks chat requests by outcome.
	ChatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chats_total",
			Help: "Chat requests by delivery mode and outcome",
		},
		[]string{"delivery", "outcome"},
	)

	// CrisisOverridesTotal counts replies replaced by the crisis script.
	CrisisOverridesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crisis_overrides_total",
			Help: "Replies replaced by the crisis safety script",
		},
	)

	// CreditsConsumedTotal counts credits spent on chat requests.
	CreditsConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_consumed_total",
			Help: "Credits consumed by chat requests",
		},
	)

	// CreditsAddedTotal counts credits granted by purchases.
	CreditsAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_added_total",
			Help: "Credits added by completed purchases",
		},
	)

	// WebhooksTotal tracks payment webhook results.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment webhooks by result",
		},
		[]string{"result"},
	)

	// AuditWriteFailures counts audit appends that failed.
	AuditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit events that could not be appended",
		},
		[]string{"sink"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a provider call.
func RecordLLMCall(provider, mode, status string, duration float64) {
	LLMRequestDuration.WithLabelValues(provider, mode, status).Observe(duration)
}

// RecordChat records the outcome of a chat request.
func RecordChat(delivery, outcome string) {
	ChatsTotal.WithLabelValues(delivery, outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
