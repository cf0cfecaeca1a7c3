package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics, labelled per session and distributor so partial-failure
// fan-out stays observable without a result sink.
var (
	dispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gazefan_dispatch_outcomes_total",
		Help: "Per-target dispatch outcomes, labelled by result.",
	}, []string{"session", "distributor", "outcome"})

	dispatchCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gazefan_dispatch_calls_total",
		Help: "Dispatch calls per session and event name.",
	}, []string{"session", "event"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gazefan_dispatch_duration_seconds",
		Help:    "Wall time of one dispatch call including the slowest target.",
		Buckets: prometheus.DefBuckets,
	}, []string{"session"})
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeUnknown = "unknown_distributor"
)
