// Package metrics exposes Prometheus collectors for the synthesis pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agenix"

// Metrics holds the pipeline collectors.
type Metrics struct {
	generationAttempts *prometheus.CounterVec
	candidatesAccepted *prometheus.CounterVec
	verifications      *prometheus.CounterVec
	verifyDuration     prometheus.Histogram
	recordsSkipped     *prometheus.CounterVec
	examplesFormatted  *prometheus.CounterVec
	jobsSubmitted      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generate",
			Name:      "attempts_total",
			Help:      "LLM calls made by the generator, by domain and outcome.",
		}, []string{"domain", "outcome"}),
		candidatesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generate",
			Name:      "candidates_accepted_total",
			Help:      "Candidates written to the raw stream, by domain.",
		}, []string{"domain"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "results_total",
			Help:      "Sandbox verifications by result.",
		}, []string{"result"}),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "duration_seconds",
			Help:      "Wall-clock time of one sandbox verification.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		recordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Input records skipped, by stage and reason.",
		}, []string{"stage", "reason"}),
		examplesFormatted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "examples_total",
			Help:      "Training examples written, by shape.",
		}, []string{"shape"}),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Training job submissions, by result.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.generationAttempts,
		m.candidatesAccepted,
		m.verifications,
		m.verifyDuration,
		m.recordsSkipped,
		m.examplesFormatted,
		m.jobsSubmitted,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// GenerationAttempt counts one LLM call.
func (m *Metrics) GenerationAttempt(domain, outcome string) {
	if m == nil {
		return
	}
	m.generationAttempts.WithLabelValues(domain, outcome).Inc()
}

// CandidatesAccepted counts candidates written for a domain.
func (m *Metrics) CandidatesAccepted(domain string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.candidatesAccepted.WithLabelValues(domain).Add(float64(n))
}

// Verification records one sandbox result.
func (m *Metrics) Verification(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
	m.verifyDuration.Observe(d.Seconds())
}

// RecordSkipped counts a skipped input record.
func (m *Metrics) RecordSkipped(stage, reason string) {
	if m == nil {
		return
	}
	m.recordsSkipped.WithLabelValues(stage, reason).Inc()
}

// ExampleFormatted counts one written training example.
func (m *Metrics) ExampleFormatted(shape string) {
	if m == nil {
		return
	}
	m.examplesFormatted.WithLabelValues(shape).Inc()
}

// JobSubmitted counts a submission attempt.
func (m *Metrics) JobSubmitted(result string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(result).Inc()
}
