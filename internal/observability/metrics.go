package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	telemetryExporterFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filterstream_telemetry_export_failures_total",
			Help: "Number of telemetry exporter initialization failures by exporter protocol.",
		},
		[]string{"service_name", "exporter"},
	)

	// QueueDepth reports the current size of the shared event queue Q.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filterstream_queue_depth",
		Help: "Current number of events waiting in the shared queue.",
	})

	// EventsEnqueued counts events pushed onto Q by stream workers, per run_id.
	EventsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filterstream_events_enqueued_total",
		Help: "Total events enqueued by a stream worker, labeled by run_id.",
	}, []string{"run_id"})

	// EventsCommitted counts events committed by the batcher.
	EventsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filterstream_events_committed_total",
		Help: "Total events committed to the tweets table.",
	})

	// CommitFailures counts dropped batches on commit failure.
	CommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filterstream_batch_commit_failures_total",
		Help: "Total batcher commits that failed and were dropped.",
	})

	// ReconcileActions counts reconciler actions by kind (new/changed/unchanged/gone/completed/read_failed).
	ReconcileActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filterstream_reconcile_actions_total",
		Help: "Total reconciler actions, labeled by action kind.",
	}, []string{"action"})

	// WorkerBackoffSeconds observes the backoff duration chosen before each reconnect.
	WorkerBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filterstream_worker_backoff_seconds",
		Help:    "Backoff duration chosen by a stream worker before reconnecting.",
		Buckets: []float64{5, 10, 20, 40, 60, 80, 120, 240, 320},
	})
)

func recordExporterFailure(serviceName, exporter string) {
	if serviceName == "" {
		serviceName = "unknown"
	}
	telemetryExporterFailures.WithLabelValues(serviceName, exporter).Inc()
}

// TelemetryExporterFailures exposes the failure counter for tests and dashboards.
func TelemetryExporterFailures() *prometheus.CounterVec {
	return telemetryExporterFailures
}
