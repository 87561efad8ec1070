// Package metrics exposes Prometheus collectors for posting cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoposter"

// Cycle results used for the result label.
const (
	ResultSuccess = "success"
	ResultEmpty   = "empty"
	ResultFailed  = "failed"
	ResultPanic   = "panic"
	ResultSkipped = "skipped"
)

// Metrics holds the collectors recorded by jobs and the scheduler.
type Metrics struct {
	registry *prometheus.Registry

	// Labels: job, result
	Cycles *prometheus.CounterVec
	// Labels: job
	CycleDuration *prometheus.HistogramVec
	// Labels: job, poster
	PostsDelivered *prometheus.CounterVec
	// Labels: job, poster
	MessagesSent *prometheus.CounterVec
	// Labels: job, poster
	DeliveryFailures *prometheus.CounterVec
	// Labels: job, result
	Disposals *prometheus.CounterVec
	// Labels: job
	NoCandidates *prometheus.CounterVec
	// Labels: job
	LastSuccess *prometheus.GaugeVec
}

// New creates the collectors on a private registry along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Job cycles by outcome.",
		}, []string{"job", "result"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one job cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),
		PostsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_delivered_total",
			Help:      "Posts delivered to every destination of a poster.",
		}, []string{"job", "poster"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages sent to destination chats.",
		}, []string{"job", "poster"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Posts a poster failed to deliver.",
		}, []string{"job", "poster"}),
		Disposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disposals_total",
			Help:      "Candidate disposals by outcome.",
		}, []string{"job", "result"}),
		NoCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_candidates_total",
			Help:      "Cycles that found fewer candidates than requested.",
		}, []string{"job"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that completed without error.",
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Cycles,
		m.CycleDuration,
		m.PostsDelivered,
		m.MessagesSent,
		m.DeliveryFailures,
		m.Disposals,
		m.NoCandidates,
		m.LastSuccess,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCycle records the outcome and duration of one cycle. A nil
// receiver records nothing.
func (m *Metrics) ObserveCycle(job, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(job, result).Inc()
	m.CycleDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	if result == ResultSuccess || result == ResultEmpty {
		m.LastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// Delivered records one post delivered by poster.
func (m *Metrics) Delivered(job, poster string, messages int) {
	if m == nil {
		return
	}
	m.PostsDelivered.WithLabelValues(job, poster).Inc()
	m.MessagesSent.WithLabelValues(job, poster).Add(float64(messages))
}

// DeliveryFailed records a post poster could not deliver.
func (m *Metrics) DeliveryFailed(job, poster string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(job, poster).Inc()
}

// Disposed records a disposal attempt.
func (m *Metrics) Disposed(job string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailed
	}
	m.Disposals.WithLabelValues(job, result).Inc()
}

// Depleted records a cycle that ran out of candidates.
func (m *Metrics) Depleted(job string) {
	if m == nil {
		return
	}
	m.NoCandidates.WithLabelValues(job).Inc()
}
