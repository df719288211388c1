// Package metrics provides Prometheus metrics for the booking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequestsTotal tracks outbound integration calls by outcome
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of integration provider calls",
		},
		[]string{"type_name", "capability", "outcome"},
	)

	// ProviderRequestDuration tracks outbound integration call duration
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of integration provider calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"type_name", "capability"},
	)

	// WebhookVerificationsTotal tracks inbound webhook verification results
	WebhookVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "webhook",
			Name:      "verifications_total",
			Help:      "Total number of inbound webhook verifications",
		},
		[]string{"type_name", "result"},
	)

	// TokenRefreshesTotal tracks oauth access token refreshes persisted
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "oauth",
			Name:      "token_refreshes_total",
			Help:      "Total number of oauth token refreshes",
		},
		[]string{"type_name", "status"},
	)

	// StatusTransitionsTotal tracks app instance status changes
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "app",
			Name:      "status_transitions_total",
			Help:      "Total number of app instance status updates",
		},
		[]string{"type_name", "status"},
	)
)

// RecordProviderCall records one outbound provider call
func RecordProviderCall(typeName, capability string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ProviderRequestsTotal.WithLabelValues(typeName, capability, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(typeName, capability).Observe(elapsed.Seconds())
}

func RecordWebhookVerification(typeName, result string) {
	WebhookVerificationsTotal.WithLabelValues(typeName, result).Inc()
}

func RecordTokenRefresh(typeName, status string) {
	TokenRefreshesTotal.WithLabelValues(typeName, status).Inc()
}

func RecordStatus(typeName, status string) {
	StatusTransitionsTotal.WithLabelValues(typeName, status).Inc()
}
