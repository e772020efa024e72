// Package metrics holds the Prometheus collectors for the validation engine.
// Collectors are registered on an injected registerer, never the global one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gzhole/textgate/internal/signal"
)

// Recorder holds all collectors. A nil *Recorder is a valid no-op.
type Recorder struct {
	Evaluations *prometheus.CounterVec
	Errors      *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Cache       *prometheus.CounterVec
	Verdicts    *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on reg. A nil reg
// leaves them unregistered. Registering twice on one registry panics, as
// with promauto.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		Evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_evaluations_total",
				Help: "Source evaluations by outcome",
			},
			[]string{"source", "result"}, // result: detected, clean
		),
		Errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_evaluation_errors_total",
				Help: "External-call or parse failures handled by a failure policy",
			},
			[]string{"source"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgate_evaluation_duration_seconds",
				Help:    "Time spent in a single source evaluation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		Cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_semantic_cache_total",
				Help: "Semantic verdict cache lookups",
			},
			[]string{"result"}, // result: hit, miss
		),
		Verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_verdicts_total",
				Help: "Aggregated verdicts by failed gate (none when nothing fired)",
			},
			[]string{"gate"},
		),
	}
}

// ObserveEvaluation records one source evaluation.
func (r *Recorder) ObserveEvaluation(source string, v signal.Verdict, d time.Duration) {
	if r == nil {
		return
	}
	result := "clean"
	if v.Detected {
		result = "detected"
	}
	r.Evaluations.WithLabelValues(source, result).Inc()
	r.Duration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveError records a failure handled by a failure policy.
func (r *Recorder) ObserveError(source string) {
	if r == nil {
		return
	}
	r.Errors.WithLabelValues(source).Inc()
}

// ObserveCache records a cache hit or miss.
func (r *Recorder) ObserveCache(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.Cache.WithLabelValues("hit").Inc()
		return
	}
	r.Cache.WithLabelValues("miss").Inc()
}

// ObserveVerdict records an aggregated verdict.
func (r *Recorder) ObserveVerdict(v signal.Verdict) {
	if r == nil {
		return
	}
	gate := string(v.Gate())
	if !v.Detected || gate == "" {
		gate = "none"
	}
	r.Verdicts.WithLabelValues(gate).Inc()
}
