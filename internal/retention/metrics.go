package retention

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweepDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logpeak",
	Subsystem: "retention",
	Name:      "deleted_total",
	Help:      "Rows deleted by the retention sweeper.",
}, []string{"kind"})
