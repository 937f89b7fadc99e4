package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	l1Hits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ephemerisd_cache_l1_hits_total",
		Help: "In-process cache hits.",
	})
	l1Misses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ephemerisd_cache_l1_misses_total",
		Help: "In-process cache misses.",
	})
	l2Hits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ephemerisd_cache_l2_hits_total",
		Help: "Shared redis tier hits.",
	})
	l2Misses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ephemerisd_cache_l2_misses_total",
		Help: "Shared redis tier misses.",
	})
	l2Failures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ephemerisd_cache_l2_failures_total",
		Help: "Redis operations that failed and were treated as misses.",
	})
)
