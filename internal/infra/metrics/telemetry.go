package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telemetryRecordsTotal,
		workerJobsTotal,
	)
}

var (
	// status: written|failed|dropped
	telemetryRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_records_total",
			Help: "Turn log records handled per sink.",
		},
		[]string{"sink", "status"},
	)

	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_total",
			Help: "Background jobs processed, labeled by pool and status.",
		},
		[]string{"pool", "status"}, // 'completed', 'failed', 'rejected'
	)
)

func IncTelemetry(sink, status string) {
	telemetryRecordsTotal.WithLabelValues(norm(sink), norm(status)).Inc()
}

func IncWorkerJob(pool, status string) {
	workerJobsTotal.WithLabelValues(norm(pool), norm(status)).Inc()
}
