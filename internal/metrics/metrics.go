// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediabot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Bot metrics
	UpdatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabot_updates_processed_total",
			Help: "Telegram updates handed to the bot",
		},
		[]string{"source"}, // "webhook" or "polling"
	)

	WebhookUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabot_webhook_updates_total",
			Help: "Webhook deliveries by result",
		},
		[]string{"result"}, // accepted, bad_content_type, bad_body, unauthorized, not_initialized
	)

	Downloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabot_downloads_total",
			Help: "Media download attempts",
		},
		[]string{"platform", "outcome"},
	)

	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediabot_download_duration_seconds",
			Help:    "Media download duration",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"platform"},
	)

	AudioExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabot_audio_extractions_total",
			Help: "Audio extraction attempts",
		},
		[]string{"outcome"},
	)

	SavedMediaOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabot_saved_media_ops_total",
			Help: "Saved media operations",
		},
		[]string{"op", "outcome"}, // op: save, retrieve, list, delete
	)
)

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
