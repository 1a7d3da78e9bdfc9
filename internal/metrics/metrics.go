// Package metrics provides Prometheus metrics for hub path resolution,
// directory listing and file transfer.
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
	// Existence cache metrics
	repoProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfs_repo_probes_total",
			Help: "Total number of remote repository existence probes",
		},
		[]string{"hub", "outcome"},
	)

	existenceLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfs_existence_cache_lookups_total",
			Help: "Existence cache lookups by result",
		},
		[]string{"hub", "result"},
	)

	// Directory cache metrics
	dircacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfs_dircache_lookups_total",
			Help: "Directory cache lookups by result",
		},
		[]string{"hub", "result"},
	)

	treePagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfs_tree_pages_total",
			Help: "Total number of tree listing pages fetched",
		},
		[]string{"hub"},
	)

	// Transfer metrics
	bytesDownloaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfs_bytes_downloaded_total",
			Help: "Total bytes fetched through range requests",
		},
		[]string{"hub"},
	)

	bytesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfs_bytes_uploaded_total",
			Help: "Total bytes handed to upload commits",
		},
		[]string{"hub"},
	)

	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubfs_commits_total",
			Help: "Total number of commits by kind and status",
		},
		[]string{"hub", "kind", "status"},
	)

	// Gateway metrics
	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hubfs_gateway_request_duration_seconds",
			Help:    "Gateway request latency by operation and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"hub", "operation", "status"},
	)
)

// RecordProbe records one remote existence probe.
func RecordProbe(hub, outcome string) {
	repoProbesTotal.WithLabelValues(hub, outcome).Inc()
}

// RecordExistenceLookup records an existence cache hit or miss.
func RecordExistenceLookup(hub string, hit bool) {
	existenceLookupsTotal.WithLabelValues(hub, hitLabel(hit)).Inc()
}

// RecordDircacheLookup records a directory cache hit or miss.
func RecordDircacheLookup(hub string, hit bool) {
	dircacheLookupsTotal.WithLabelValues(hub, hitLabel(hit)).Inc()
}

// RecordTreePage records one fetched tree page.
func RecordTreePage(hub string) {
	treePagesTotal.WithLabelValues(hub).Inc()
}

// RecordDownload records bytes returned by a range fetch.
func RecordDownload(hub string, n int) {
	bytesDownloaded.WithLabelValues(hub).Add(float64(n))
}

// RecordUpload records bytes uploaded in a commit.
func RecordUpload(hub string, n int64) {
	bytesUploaded.WithLabelValues(hub).Add(float64(n))
}

// RecordCommit records a commit attempt.
func RecordCommit(hub, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	commitsTotal.WithLabelValues(hub, kind, status).Inc()
}

// ObserveGatewayRequest records the latency of one gateway request.
func ObserveGatewayRequest(hub, operation string, status int, elapsed time.Duration) {
	gatewayRequestDuration.WithLabelValues(hub, operation, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
