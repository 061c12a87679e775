package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var alertFiringsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logpeak",
	Subsystem: "alerting",
	Name:      "firings_total",
	Help:      "Alert rule firings by rule type.",
}, []string{"type"})
