// Package metrics defines the Prometheus collectors for the ingestion
// engine and serves them over HTTP.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage duration buckets, in seconds. Fetch and generation dominate.
var stageBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

var (
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kb_ingest_sessions_total",
		Help: "Ingestion sessions by terminal status.",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kb_ingest_stage_duration_seconds",
		Help:    "Per-stage wall time.",
		Buckets: stageBuckets,
	}, []string{"stage"})

	AtomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kb_ingest_atoms_created_total",
		Help: "Atoms successfully stored.",
	})

	AtomsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kb_ingest_atoms_failed_total",
		Help: "Atoms dropped by validation, embedding, or storage.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kb_ingest_queue_depth",
		Help: "Pending URLs on the queue at last poll.",
	})

	MetricRowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kb_ingest_metric_rows_written_total",
		Help: "Session metric rows written to the realtime table.",
	})

	MetricRowsFailover = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kb_ingest_metric_rows_failover_total",
		Help: "Session metric rows diverted to the failover log.",
	})

	MonitorDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kb_ingest_monitor_degraded",
		Help: "1 when the metric store failover rate exceeds threshold.",
	})

	NotifySends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kb_notify_sends_total",
		Help: "Notification deliveries by outcome.",
	}, []string{"outcome"})

	MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kb_ingest_mirror_failures_total",
		Help: "Qdrant mirror upserts that failed.",
	})
)

// Serve exposes /metrics and /healthz on the given port in a goroutine.
func Serve(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	go func() {
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}()
}
