// Package metrics Prometheus collectors for the assistant core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the assistant collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestsTotal           *prometheus.CounterVec
	RequestDuration         *prometheus.HistogramVec
	HandlerFailuresTotal    *prometheus.CounterVec
	ClassificationFallbacks prometheus.Counter
	SynthesisFallbacks      prometheus.Counter
	RetentionDeletedTotal   *prometheus.CounterVec
	EmbeddingJobsTotal      *prometheus.CounterVec
}

// New registers every collector on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.RequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secassist_requests_total",
			Help: "Processed assistant requests by route",
		},
		[]string{"route", "status"},
	)

	m.RequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "secassist_request_duration_seconds",
			Help:    "End-to-end ProcessRequest latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"route"},
	)

	m.HandlerFailuresTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secassist_handler_failures_total",
			Help: "Handler executions that failed or timed out",
		},
		[]string{"handler"},
	)

	m.ClassificationFallbacks = f.NewCounter(
		prometheus.CounterOpts{
			Name: "secassist_classification_fallbacks_total",
			Help: "Classifications that fell back to general/0",
		},
	)

	m.SynthesisFallbacks = f.NewCounter(
		prometheus.CounterOpts{
			Name: "secassist_synthesis_fallbacks_total",
			Help: "Multi-handler syntheses answered by labelled concatenation",
		},
	)

	m.RetentionDeletedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secassist_retention_deleted_total",
			Help: "Messages removed by retention rules",
		},
		[]string{"category"},
	)

	m.EmbeddingJobsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secassist_embedding_jobs_total",
			Help: "Embedding index jobs by outcome",
		},
		[]string{"status"},
	)

	return m
}

func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) HandlerFailed(handler string) {
	if m == nil {
		return
	}
	m.HandlerFailuresTotal.WithLabelValues(handler).Inc()
}

func (m *Metrics) ClassificationFallback() {
	if m == nil {
		return
	}
	m.ClassificationFallbacks.Inc()
}

func (m *Metrics) SynthesisFallback() {
	if m == nil {
		return
	}
	m.SynthesisFallbacks.Inc()
}

func (m *Metrics) RetentionDeleted(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionDeletedTotal.WithLabelValues(category).Add(float64(n))
}

// EmbeddingJob status: enqueued, indexed, skipped, retry, failed
func (m *Metrics) EmbeddingJob(status string) {
	if m == nil {
		return
	}
	m.EmbeddingJobsTotal.WithLabelValues(status).Inc()
}
