package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "threadline_client_request_duration_seconds",
	Help:    "Latency of API requests",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "code"})
