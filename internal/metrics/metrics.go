// Package metrics provides Prometheus metrics for the rc2 sync engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// REST metrics
	restRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc2_rest_requests_total",
			Help: "Total number of REST requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	restRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rc2_rest_request_duration_seconds",
			Help:    "REST request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// File cache metrics
	fileDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc2_file_downloads_total",
			Help: "File cache downloads by outcome (downloaded, not_modified, error)",
		},
		[]string{"outcome"},
	)

	fileBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rc2_file_bytes_downloaded_total",
			Help: "Bytes written into the file cache from the network",
		},
	)

	fileUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc2_file_uploads_total",
			Help: "File uploads and saves by status",
		},
		[]string{"kind", "status"},
	)

	fileBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rc2_file_bytes_uploaded_total",
			Help: "Bytes uploaded to the server",
		},
	)

	cacheTasksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rc2_cache_tasks_active",
			Help: "Number of in-flight file cache tasks",
		},
	)

	// Image cache metrics
	imageLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc2_image_lookups_total",
			Help: "Image lookups by the tier that served them (memory, disk, network, miss)",
		},
		[]string{"tier"},
	)

	imageMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rc2_image_memory_bytes",
			Help: "Bytes held by the image memory tier",
		},
	)

	// Session metrics
	sessionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rc2_session_status",
			Help: "1 for the current session lifecycle status, 0 otherwise",
		},
		[]string{"status"},
	)

	framesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc2_session_frames_received_total",
			Help: "Frames received from the session by message type",
		},
		[]string{"msg"},
	)

	framesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc2_session_frames_sent_total",
			Help: "Frames sent to the session by message type",
		},
		[]string{"msg"},
	)

	pendingTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rc2_session_pending_transactions",
			Help: "Requests awaiting a correlated response",
		},
	)

	// Model metrics
	reconcileChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc2_reconcile_changes_total",
			Help: "Items changed by reconciliation passes",
		},
		[]string{"entity", "change"},
	)

	broadcastDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rc2_broadcast_dropped_total",
			Help: "Change-sets dropped for slow subscribers",
		},
	)
)

var statuses = []string{"uninitialized", "connecting", "connected", "closed", "failed"}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRESTRequest records a REST call.
func RecordRESTRequest(endpoint string, status int, duration time.Duration) {
	restRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	restRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordFileDownload records the outcome of one file cache task.
func RecordFileDownload(outcome string, bytes int64) {
	fileDownloadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		fileBytesDownloaded.Add(float64(bytes))
	}
}

// RecordFileUpload records an upload ("import") or a save ("save").
func RecordFileUpload(kind string, bytes int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	fileUploadsTotal.WithLabelValues(kind, status).Inc()
	if success && bytes > 0 {
		fileBytesUploaded.Add(float64(bytes))
	}
}

// SetCacheTasksActive sets the number of in-flight cache tasks.
func SetCacheTasksActive(n int) {
	cacheTasksActive.Set(float64(n))
}

// RecordImageLookup records which tier served an image.
func RecordImageLookup(tier string) {
	imageLookupsTotal.WithLabelValues(tier).Inc()
}

// SetImageMemoryBytes sets the size of the image memory tier.
func SetImageMemoryBytes(n int64) {
	imageMemoryBytes.Set(float64(n))
}

// SetSessionStatus marks status as the current lifecycle status.
func SetSessionStatus(status string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		sessionStatus.WithLabelValues(s).Set(v)
	}
}

// RecordFrameReceived counts an inbound frame.
func RecordFrameReceived(msg string) {
	framesReceivedTotal.WithLabelValues(msg).Inc()
}

// RecordFrameSent counts an outbound frame.
func RecordFrameSent(msg string) {
	framesSentTotal.WithLabelValues(msg).Inc()
}

// SetPendingTransactions sets the pending transaction count.
func SetPendingTransactions(n int) {
	pendingTransactions.Set(float64(n))
}

// RecordReconcile records the size of one reconciliation pass.
func RecordReconcile(entity string, inserted, updated, removed int) {
	if inserted > 0 {
		reconcileChangesTotal.WithLabelValues(entity, "insert").Add(float64(inserted))
	}
	if updated > 0 {
		reconcileChangesTotal.WithLabelValues(entity, "update").Add(float64(updated))
	}
	if removed > 0 {
		reconcileChangesTotal.WithLabelValues(entity, "remove").Add(float64(removed))
	}
}

// RecordBroadcastDropped counts a change-set dropped for a slow subscriber.
func RecordBroadcastDropped() {
	broadcastDroppedTotal.Inc()
}
