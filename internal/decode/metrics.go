package decode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	malformedFields = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_decode_malformed_fields_total",
		Help: "Fields that did not match their expected wire type and fell back to the default.",
	}, []string{"kind", "field"})

	skipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_decode_skipped_total",
		Help: "List elements dropped by the decoder.",
	}, []string{"kind", "reason"})
)
