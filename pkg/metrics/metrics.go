// Package metrics holds the Prometheus collectors shared by the server and
// the field client.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics is registered once per process on the default registry.
//
//   - qareports_http_requests_total{method,route,status}
//   - qareports_http_request_duration_seconds{method,route}
//   - qareports_bulk_save_total{result}
//   - qareports_responses_written_total
//   - qareports_ai_summaries_total{result}
//   - qareports_photos_uploaded_total{store}
//   - qareports_sync_passes_total
//   - qareports_sync_drafts_total{result}
//   - qareports_sync_photos_total{result}
//   - qareports_sync_state
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	BulkSaves        *prometheus.CounterVec
	ResponsesWritten prometheus.Counter
	AISummaries      *prometheus.CounterVec
	PhotosUploaded   *prometheus.CounterVec

	SyncPasses prometheus.Counter
	SyncDrafts *prometheus.CounterVec
	SyncPhotos *prometheus.CounterVec
	SyncState  prometheus.Gauge
}

// Get returns the process metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{
			HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "qareports_http_requests_total",
				Help: "HTTP requests by route and status",
			}, []string{"method", "route", "status"}),
			HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "qareports_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
			BulkSaves: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "qareports_bulk_save_total",
				Help: "Response bulk saves by result",
			}, []string{"result"}),
			ResponsesWritten: promauto.NewCounter(prometheus.CounterOpts{
				Name: "qareports_responses_written_total",
				Help: "Response rows inserted by bulk saves",
			}),
			AISummaries: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "qareports_ai_summaries_total",
				Help: "AI summary generations by result",
			}, []string{"result"}),
			PhotosUploaded: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "qareports_photos_uploaded_total",
				Help: "Photos stored by backend",
			}, []string{"store"}),
			SyncPasses: promauto.NewCounter(prometheus.CounterOpts{
				Name: "qareports_sync_passes_total",
				Help: "Offline sync passes started",
			}),
			SyncDrafts: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "qareports_sync_drafts_total",
				Help: "Draft uploads by result",
			}, []string{"result"}),
			SyncPhotos: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "qareports_sync_photos_total",
				Help: "Pending photo uploads by result",
			}, []string{"result"}),
			SyncState: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "qareports_sync_state",
				Help: "Offline coordinator state (0 offline, 1 online idle, 2 syncing)",
			}),
		}
	})
	return global
}
