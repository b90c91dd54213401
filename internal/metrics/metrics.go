// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsflow"

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	FetchTotal         *prometheus.CounterVec
	FetchRetries       *prometheus.CounterVec
	FetchLatency       *prometheus.HistogramVec
	BreakerState       *prometheus.GaugeVec
	RateLimitWaits     *prometheus.CounterVec
	DedupDecisions     *prometheus.CounterVec
	AnalysisLatency    *prometheus.HistogramVec
	AnalysisStageFails *prometheus.CounterVec
	TrendIngestTotal   prometheus.Counter
	DeadLettersTotal   *prometheus.CounterVec
	FrontierPending    *prometheus.GaugeVec
}

// New creates and registers all pipeline metrics. Passing nil uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "requests_total",
				Help:      "Fetch attempts by classified outcome",
			},
			[]string{"source_id", "outcome"},
		),
		FetchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "retries_total",
				Help:      "Fetch retries scheduled after transient failures",
			},
			[]string{"source_id"},
		),
		FetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "duration_seconds",
				Help:      "Duration of a single fetch attempt",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source_id"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per source (0 closed, 1 open, 2 half-open)",
			},
			[]string{"source_id"},
		),
		RateLimitWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "deferred_total",
				Help:      "Admission requests deferred by the rate limiter",
			},
			[]string{"source_id"},
		),
		DedupDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dedup",
				Name:      "decisions_total",
				Help:      "Deduplicator decisions (accepted, exact_duplicate, near_duplicate)",
			},
			[]string{"decision"},
		),
		AnalysisLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "duration_seconds",
				Help:      "End-to-end analysis duration per article",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"version"},
		),
		AnalysisStageFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "stage_failures_total",
				Help:      "Analyzer stage failures by stage and cause",
			},
			[]string{"stage", "cause"},
		),
		TrendIngestTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trends",
				Name:      "ingested_total",
				Help:      "Analysis results folded into trend windows",
			},
		),
		DeadLettersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "dead_letters_total",
				Help:      "Work abandoned to the dead-letter sink",
			},
			[]string{"kind"},
		),
		FrontierPending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "schedule",
				Name:      "frontier_pending",
				Help:      "Undispatched frontier URLs per source",
			},
			[]string{"source_id"},
		),
	}
}
