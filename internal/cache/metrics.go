package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_cache_requests_total",
		Help: "Cache reads by kind and result.",
	}, []string{"kind", "result"})

	evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_cache_evictions_total",
		Help: "Entries dropped from the cache, including explicit removals.",
	}, []string{"kind"})
)
