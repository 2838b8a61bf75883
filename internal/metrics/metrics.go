// Package metrics provides Prometheus metrics for the upload simulator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studyhub/backend/internal/models"
)

var (
	uploadTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhub_upload_transitions_total",
			Help: "Upload status transitions. An empty from is ingestion, an empty to is removal.",
		},
		[]string{"from", "to"},
	)

	uploadRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyhub_upload_retries_total",
			Help: "Total number of retried uploads",
		},
	)

	uploadItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "studyhub_upload_items",
			Help: "Tracked upload items by status",
		},
		[]string{"status"},
	)

	streamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyhub_stream_subscribers",
			Help: "Active snapshot stream subscribers (SSE and WebSocket)",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyhub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Recorder feeds upload lifecycle events into the Prometheus collectors.
type Recorder struct{}

// NewRecorder returns a Recorder backed by the default registry.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveTransition records a status change.
func (r *Recorder) ObserveTransition(from, to models.UploadStatus) {
	uploadTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	if from != "" {
		uploadItems.WithLabelValues(string(from)).Dec()
	}
	if to != "" {
		uploadItems.WithLabelValues(string(to)).Inc()
	}
}

// ObserveRetry counts a retry.
func (r *Recorder) ObserveRetry() {
	uploadRetriesTotal.Inc()
}

// SetSubscribers sets the number of active snapshot subscribers.
func SetSubscribers(n int) {
	streamSubscribers.Set(float64(n))
}

// RecordHTTPRequest counts a served request.
func RecordHTTPRequest(method, path, status string) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
