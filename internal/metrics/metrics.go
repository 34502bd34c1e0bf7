// Package metrics records mirror runs as Prometheus metrics.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns a private registry so that tests and repeated runs in one
// process never collide on registration. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	discoveryRequests *prometheus.CounterVec
	discoveryDuration prometheus.Histogram
	treeFiles         *prometheus.GaugeVec
	downloads         *prometheus.CounterVec
	downloadBytes     prometheus.Counter
	inFlight          prometheus.Gauge
}

// NewRecorder creates a recorder with all odshare metrics registered
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		discoveryRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odshare_discovery_requests_total",
				Help: "Folder listing requests by result",
			},
			[]string{"status"},
		),
		discoveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "odshare_discovery_duration_seconds",
				Help:    "Time to discover a share's tree",
				Buckets: prometheus.DefBuckets,
			},
		),
		treeFiles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "odshare_tree_files",
				Help: "Files found in the last discovery of a share",
			},
			[]string{"share"},
		),
		downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odshare_downloads_total",
				Help: "Download tasks by outcome",
			},
			[]string{"outcome"},
		),
		downloadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "odshare_download_bytes_total",
				Help: "Bytes written to the local mirror",
			},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "odshare_downloads_in_flight",
				Help: "Downloads currently streaming",
			},
		),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordDiscoveryRequest counts one listing request; status is "ok" or an error code
func (r *Recorder) RecordDiscoveryRequest(status string) {
	if r == nil {
		return
	}
	r.discoveryRequests.WithLabelValues(status).Inc()
}

// RecordDiscovery records a completed share discovery
func (r *Recorder) RecordDiscovery(shareID string, duration time.Duration, files int) {
	if r == nil {
		return
	}
	r.discoveryDuration.Observe(duration.Seconds())
	r.treeFiles.WithLabelValues(shareID).Set(float64(files))
}

// RecordDownload counts a finished task and the bytes it wrote
func (r *Recorder) RecordDownload(outcome string, bytes int64) {
	if r == nil {
		return
	}
	r.downloads.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		r.downloadBytes.Add(float64(bytes))
	}
}

// DownloadStarted increments the in-flight gauge; call the returned func when done
func (r *Recorder) DownloadStarted() func() {
	if r == nil {
		return func() {}
	}
	r.inFlight.Inc()
	return r.inFlight.Dec
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
