package restx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics counts what the uploaders do. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	received *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	posts    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// NewMetrics creates the uploader metrics on a private registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restx_records_received_total",
			Help: "Archive records queued for upload.",
		}, []string{"protocol"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restx_records_skipped_total",
			Help: "Archive records dropped before processing, by reason.",
		}, []string{"protocol", "reason"}), // reason: backlog, stale, interval
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restx_posts_total",
			Help: "Processed archive records by outcome.",
		}, []string{"protocol", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restx_post_attempts_total",
			Help: "HTTP requests sent, retries included.",
		}, []string{"protocol"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restx_response_rejected_total",
			Help: "Responses without the success marker.",
		}, []string{"protocol"}),
	}

	registry.MustRegister(m.received)
	registry.MustRegister(m.skipped)
	registry.MustRegister(m.posts)
	registry.MustRegister(m.attempts)
	registry.MustRegister(m.rejected)

	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordReceived(protocol string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(protocol).Inc()
}

func (m *Metrics) recordSkipped(protocol, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(protocol, reason).Inc()
}

func (m *Metrics) recordPost(protocol, outcome string) {
	if m == nil {
		return
	}
	m.posts.WithLabelValues(protocol, outcome).Inc()
}

func (m *Metrics) recordAttempt(protocol string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(protocol).Inc()
}

func (m *Metrics) recordRejected(protocol string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(protocol).Inc()
}
