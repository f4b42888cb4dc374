package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts upload attempts by outcome and failing stage.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_uploads_total",
		Help: "Total number of uploads by outcome",
	}, []string{"outcome", "stage"})

	// ImageProcessingLatency records decode/resize/encode time.
	ImageProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shutter_image_processing_seconds",
		Help:    "Image normalization latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// StorageOperationLatency records object store call latency.
	StorageOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shutter_storage_operation_seconds",
		Help:    "Object store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"driver", "operation", "status"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shutter_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// EventsPublished counts domain events by type and delivery status.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_events_published_total",
		Help: "Total domain events published",
	}, []string{"driver", "type", "status"})

	// WebSocketBackpressureDrops counts feed messages dropped for slow or closed clients.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_websocket_backpressure_drops_total",
		Help: "Feed relay messages dropped due to client backpressure",
	}, []string{"reason"})

	// WebSocketConnections tracks open feed relay connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shutter_websocket_connections",
		Help: "Open feed relay websocket connections",
	})

	// SignedURLCache counts signed URL cache lookups.
	SignedURLCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutter_signed_url_cache_total",
		Help: "Signed URL cache lookups by result",
	}, []string{"result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackStorage returns a function that records object store latency with the call's outcome.
func TrackStorage(driver, operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		StorageOperationLatency.WithLabelValues(driver, operation, status).Observe(time.Since(start).Seconds())
	}
}
