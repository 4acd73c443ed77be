// Package metrics provides Prometheus metrics for the remote filesystem layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Staleness policy
	nodeReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofilefs_node_reloads_total",
			Help: "Remote node reloads by result (ok, not_found, error)",
		},
		[]string{"result"},
	)

	nodeCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gofilefs_node_cache_hits_total",
			Help: "Node accesses served from cached metadata within the TTL",
		},
	)

	nodeReloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gofilefs_node_reload_duration_seconds",
			Help:    "Time spent reloading a node from the remote store",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Path resolution
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofilefs_path_resolutions_total",
			Help: "Path resolutions by outcome (present, missing, error)",
		},
		[]string{"outcome"},
	)

	duplicateNamesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gofilefs_duplicate_names_hidden_total",
			Help: "Children hidden by the latest-wins duplicate name policy",
		},
	)

	// Content
	contentBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gofilefs_content_bytes_downloaded_total",
			Help: "Total bytes read from remote content streams",
		},
	)

	contentOpensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofilefs_content_opens_total",
			Help: "File opens by mode (binary, text) and status",
		},
		[]string{"mode", "status"},
	)

	// Collaborator transport
	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gofilefs_remote_request_duration_seconds",
			Help:    "Remote store request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	remoteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofilefs_remote_errors_total",
			Help: "Remote store request failures",
		},
		[]string{"backend", "operation"},
	)

	// Local content cache
	contentCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gofilefs_content_cache_bytes",
			Help: "Bytes held by the on-disk content cache",
		},
	)

	contentCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofilefs_content_cache_lookups_total",
			Help: "On-disk content cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordReload records one reload attempt and how long it took.
func RecordReload(result string, duration time.Duration) {
	nodeReloadsTotal.WithLabelValues(result).Inc()
	nodeReloadDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a node served without a reload.
func RecordCacheHit() {
	nodeCacheHitsTotal.Inc()
}

// RecordResolution records the outcome of a path resolution.
func RecordResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordHiddenDuplicates adds n children shadowed by a newer sibling.
func RecordHiddenDuplicates(n int) {
	if n > 0 {
		duplicateNamesTotal.Add(float64(n))
	}
}

// RecordDownload adds bytes read from a remote stream.
func RecordDownload(bytes int64) {
	contentBytesDownloaded.Add(float64(bytes))
}

// RecordOpen records a file open.
func RecordOpen(mode string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	contentOpensTotal.WithLabelValues(mode, status).Inc()
}

// RecordRemoteRequest records a collaborator request.
func RecordRemoteRequest(backend, operation string, duration time.Duration, success bool) {
	remoteRequestDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if !success {
		remoteErrorsTotal.WithLabelValues(backend, operation).Inc()
	}
}

// SetContentCacheSize sets the current on-disk cache size.
func SetContentCacheSize(bytes int64) {
	contentCacheSize.Set(float64(bytes))
}

// RecordContentCacheLookup records an on-disk cache lookup.
func RecordContentCacheLookup(hit bool) {
	if hit {
		contentCacheLookups.WithLabelValues("hit").Inc()
	} else {
		contentCacheLookups.WithLabelValues("miss").Inc()
	}
}
