package observer

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for send pipeline metrics
	sendLabels = []string{"owner_id", "message_type", "outcome"}
	// Labels for webhook ingestion metrics
	webhookLabels = []string{"owner_id", "kind", "outcome"}

	// Send pipeline counters
	SendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_send_attempts_total",
			Help: "Total number of outbound send attempts, labeled by final outcome.",
		},
		sendLabels,
	)
	SendDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_cloud_gateway_send_duration_seconds",
			Help:    "Histogram of end-to-end send pipeline durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"owner_id", "message_type"},
	)

	// Webhook ingestion counters. kind is "status" or "inbound"; outcome is the
	// ledger effect (applied, ignored, dropped, stored, duplicate).
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_webhook_events_total",
			Help: "Total number of webhook payload items processed, labeled by ledger effect.",
		},
		webhookLabels,
	)
	WebhookCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_webhook_callbacks_total",
			Help: "Total number of webhook callbacks received, labeled by parse outcome.",
		},
		[]string{"outcome"},
	)
)

// Reconciliation sweep metrics
var (
	sweepLabels = []string{"owner_id"}

	sweepStaleFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_sweep_stale_found_total",
			Help: "Total number of stale sent messages found by reconciliation sweeps.",
		},
		sweepLabels,
	)
	sweepAutoUpdatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_sweep_auto_updated_total",
			Help: "Total number of stale messages synthetically advanced to delivered.",
		},
		sweepLabels,
	)
	sweepOwnersSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_sweep_owners_skipped_total",
			Help: "Total number of sweep passes that skipped an owner for unusable credentials.",
		},
		sweepLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "owner_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_cloud_gateway_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- Publisher Worker Pool Metrics ---
var (
	publisherLabels = []string{"owner_id"}

	publisherTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_publisher_tasks_submitted_total",
			Help: "Total number of ledger events submitted to the publisher pool.",
		},
		publisherLabels,
	)
	publisherPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_publisher_publish_errors_total",
			Help: "Total number of ledger events that failed to publish to JetStream.",
		},
		publisherLabels,
	)
	publisherQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_cloud_gateway_publisher_queue_length",
		Help: "Approximate number of tasks waiting in the publisher worker pool queue.",
	})
)

// HTTP surface metrics
var (
	httpLabels = []string{"method", "path", "status"}

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_cloud_gateway_http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		httpLabels,
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_cloud_gateway_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		httpLabels,
	)
)

// InitMetrics toggles metric collection. Call during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// sanitizeTenant ensures the owner label is valid or returns a default value.
func sanitizeTenant(ownerID string) string {
	if ownerID == "" {
		return "unknown"
	}
	return ownerID
}

// IncSendAttempt increments the send attempt counter for one pipeline outcome.
func IncSendAttempt(ownerID, messageType, outcome string) {
	if !metricsEnabled {
		return
	}
	SendAttemptsTotal.WithLabelValues(sanitizeTenant(ownerID), messageType, outcome).Inc()
}

// ObserveSendDuration records the end-to-end duration of one send pipeline run.
func ObserveSendDuration(ownerID, messageType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	SendDurationSeconds.WithLabelValues(sanitizeTenant(ownerID), messageType).Observe(duration.Seconds())
}

// IncWebhookEvent increments the per-item webhook counter.
func IncWebhookEvent(ownerID, kind, outcome string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsTotal.WithLabelValues(sanitizeTenant(ownerID), kind, outcome).Inc()
}

// IncWebhookCallback increments the per-callback counter.
func IncWebhookCallback(outcome string) {
	if !metricsEnabled {
		return
	}
	WebhookCallbacksTotal.WithLabelValues(outcome).Inc()
}

// AddSweepStaleFound records stale messages found for one owner.
func AddSweepStaleFound(ownerID string, count int) {
	if !metricsEnabled || count <= 0 {
		return
	}
	sweepStaleFoundTotal.WithLabelValues(sanitizeTenant(ownerID)).Add(float64(count))
}

// AddSweepAutoUpdated records synthetic advances applied for one owner.
func AddSweepAutoUpdated(ownerID string, count int) {
	if !metricsEnabled || count <= 0 {
		return
	}
	sweepAutoUpdatedTotal.WithLabelValues(sanitizeTenant(ownerID)).Add(float64(count))
}

// IncSweepOwnerSkipped records an owner skipped for unusable credentials.
func IncSweepOwnerSkipped(ownerID string) {
	if !metricsEnabled {
		return
	}
	sweepOwnersSkippedTotal.WithLabelValues(sanitizeTenant(ownerID)).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, ownerID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(ownerID), status).Observe(duration.Seconds())
}

// IncPublisherTasksSubmitted increments the counter for submitted publish tasks.
func IncPublisherTasksSubmitted(ownerID string) {
	if !metricsEnabled {
		return
	}
	publisherTasksSubmittedTotal.WithLabelValues(sanitizeTenant(ownerID)).Inc()
}

// IncPublisherPublishError increments the counter for failed publishes.
func IncPublisherPublishError(ownerID string) {
	if !metricsEnabled {
		return
	}
	publisherPublishErrorsTotal.WithLabelValues(sanitizeTenant(ownerID)).Inc()
}

// SetPublisherQueueLength sets the current publisher queue length.
func SetPublisherQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	publisherQueueLength.Set(float64(length))
}

// RecordHTTPRequest increments the request counter and observes duration.
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	status := strconv.Itoa(statusCode)
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
