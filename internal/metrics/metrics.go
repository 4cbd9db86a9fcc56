// Package metrics provides Prometheus instrumentation for the moderation
// engine. It exposes counters for event and decision throughput, per-tier
// detector fires, store errors, and a histogram for evaluation latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsTotal counts inbound platform events, labeled by event type.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_events_total",
		Help: "Total number of inbound platform events",
	}, []string{"type"})

	// DecisionsTotal counts resolved decisions, labeled by the final
	// action ("off" means no detector fired).
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_decisions_total",
		Help: "Total number of resolved decisions",
	}, []string{"action"})

	// DetectorFires counts candidate decisions per detector tier, before
	// precedence resolution.
	DetectorFires = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_detector_fires_total",
		Help: "Candidate decisions produced per detector tier",
	}, []string{"source"})

	// StoreErrors counts storage failures the engine survived by failing
	// open, labeled by store ("redis", "postgres").
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_store_errors_total",
		Help: "Storage errors absorbed by fail-open handling",
	}, []string{"store"})

	// EvalLatency records end-to-end event evaluation latency in seconds.
	EvalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_eval_latency_seconds",
		Help:    "Event evaluation latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// DedupDrops counts redelivered events skipped by the dedup store.
	DedupDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_dedup_drops_total",
		Help: "Redelivered events dropped by delivery dedup",
	})
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		DecisionsTotal,
		DetectorFires,
		StoreErrors,
		EvalLatency,
		DedupDrops,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
