// Package metrics exports transferd's Prometheus instrumentation:
// accountant gauges, reaper sweep counters, and upload outcome
// counters, registered against a dedicated registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of gauges/counters transferd exports. A nil
// *Metrics is safe to call methods on — every recorder is a no-op —
// so callers don't need to branch on whether metrics are enabled.
type Metrics struct {
	totalBytes        prometheus.Gauge
	uploadCount       prometheus.Gauge
	reaperTickSeconds prometheus.Histogram
	reaperReclaimed   prometheus.Counter
	reaperOrphans     prometheus.Counter
	uploadsStarted    prometheus.Counter
	uploadsCompleted  prometheus.Counter
	uploadsRejected   *prometheus.CounterVec
}

// New registers transferd's metrics against a fresh Prometheus
// registry and returns both.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		totalBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "transferd_status_total_bytes",
			Help: "Current aggregate byte usage across all non-deleted uploads.",
		}),
		uploadCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "transferd_status_upload_count",
			Help: "Current count of non-deleted uploads.",
		}),
		reaperTickSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "transferd_reaper_tick_seconds",
			Help: "Duration of each reaper sweep tick.",
		}),
		reaperReclaimed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "transferd_reaper_uploads_retired_total",
			Help: "Total uploads retired (expired or over download limit) by the reaper.",
		}),
		reaperOrphans: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "transferd_reaper_orphan_files_removed_total",
			Help: "Total orphan files removed by filesystem reconciliation.",
		}),
		uploadsStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "transferd_uploads_announced_total",
			Help: "Total announce calls that reserved a PendingUpload.",
		}),
		uploadsCompleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "transferd_uploads_completed_total",
			Help: "Total stream calls that committed an Upload.",
		}),
		uploadsRejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "transferd_uploads_rejected_total",
			Help: "Total announce/stream calls rejected, by error kind.",
		}, []string{"kind"}),
	}
	return m, reg
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SetStatus(totalBytes, uploadCount int64) {
	if m == nil {
		return
	}
	m.totalBytes.Set(float64(totalBytes))
	m.uploadCount.Set(float64(uploadCount))
}

func (m *Metrics) ObserveReaperTick(seconds float64, retired int) {
	if m == nil {
		return
	}
	m.reaperTickSeconds.Observe(seconds)
	m.reaperReclaimed.Add(float64(retired))
}

func (m *Metrics) AddOrphansRemoved(n int) {
	if m == nil {
		return
	}
	m.reaperOrphans.Add(float64(n))
}

func (m *Metrics) IncAnnounced() {
	if m == nil {
		return
	}
	m.uploadsStarted.Inc()
}

func (m *Metrics) IncCompleted() {
	if m == nil {
		return
	}
	m.uploadsCompleted.Inc()
}

func (m *Metrics) IncRejected(kind string) {
	if m == nil {
		return
	}
	m.uploadsRejected.WithLabelValues(kind).Inc()
}
