package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logpeak",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Events persisted, flagged derivations included.",
	})

	ingestSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logpeak",
		Subsystem: "ingest",
		Name:      "skipped_total",
		Help:      "Events skipped due to parse failures or the per-call cap.",
	})

	ingestFlaggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logpeak",
		Subsystem: "ingest",
		Name:      "flagged_total",
		Help:      "Derived flagged events persisted.",
	})

	ingestRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logpeak",
		Subsystem: "ingest",
		Name:      "rejected_total",
		Help:      "Ingestion calls rejected for an invalid API key.",
	})
)
