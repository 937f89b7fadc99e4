package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Vec collectors keyed by bundle so the DE440 and DE441 pools share one
// registration.
var (
	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ephemerisd_pool_jobs_completed_total",
		Help: "Compute jobs completed, by kernel bundle.",
	}, []string{"bundle"})
	jobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ephemerisd_pool_job_duration_seconds",
		Help:    "Worker round-trip time per job, by kernel bundle.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"bundle"})
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ephemerisd_pool_queue_depth",
		Help: "Jobs waiting in the pool queue, by kernel bundle.",
	}, []string{"bundle"})
	queueRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ephemerisd_pool_queue_rejections_total",
		Help: "Submissions rejected because the queue was full, by kernel bundle.",
	}, []string{"bundle"})
	workerReplacements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ephemerisd_pool_worker_replacements_total",
		Help: "Worker processes replaced after failure, by kernel bundle.",
	}, []string{"bundle"})
)
