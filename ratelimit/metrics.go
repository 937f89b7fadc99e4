package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ephemerisd_ratelimit_allowed_total",
		Help: "Requests admitted by the rate limiter.",
	})
	deniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ephemerisd_ratelimit_denied_total",
		Help: "Requests denied, by rule.",
	}, []string{"rule"})
	redisFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ephemerisd_ratelimit_redis_failures_total",
		Help: "Redis bucket operations that failed and fell back to local buckets.",
	})
)
