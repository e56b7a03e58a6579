package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsScheduled   = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_scheduled_total", Help: "Jobs submitted to the scheduler"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_completed_total", Help: "Jobs that reached COMPLETED"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_failed_total", Help: "Jobs that reached FAILED"})
	JobsRetried     = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_retried_total", Help: "Retries scheduled after a failed execution"})
	CleanupRemoved  = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_cleanup_removed_total", Help: "Scheduler registrations removed by cleanup"})
	CleanupFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_cleanup_failures_total", Help: "Cleanup attempts that failed"})
	JobsInFlight    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_inflight", Help: "Jobs currently executing"})
)

// Handler exposes the /metrics handler, registering collectors on first use.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsScheduled,
			JobsCompleted,
			JobsFailed,
			JobsRetried,
			CleanupRemoved,
			CleanupFailures,
			JobsInFlight,
		)
	})
	return promhttp.Handler()
}
