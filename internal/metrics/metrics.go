// Package metrics exposes pipeline counters for Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadrouter"

type Metrics struct {
	registry        *prometheus.Registry
	messages        *prometheus.CounterVec
	skipped         *prometheus.CounterVec
	classifications *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	sideEffectFails *prometheus.CounterVec
	deliveryFails   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Inbound messages that completed the pipeline.",
		}, []string{"channel"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Inbound messages skipped before or during processing.",
		}, []string{"channel", "reason"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Lead classifications by category.",
		}, []string{"channel", "category"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Hot leads handed to an operator.",
		}, []string{"channel", "operator"}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_side_effect_failures_total",
			Help:      "Escalation side effects that failed and were skipped.",
		}, []string{"step"}),
		deliveryFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound replies the channel sender rejected.",
		}, []string{"channel"}),
	}
	reg.MustRegister(
		m.messages,
		m.skipped,
		m.classifications,
		m.escalations,
		m.sideEffectFails,
		m.deliveryFails,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageProcessed(channel string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(channel).Inc()
}

func (m *Metrics) MessageSkipped(channel, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(channel, reason).Inc()
}

func (m *Metrics) Classified(channel, category string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(channel, category).Inc()
}

func (m *Metrics) Escalated(channel, operator string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(channel, operator).Inc()
}

func (m *Metrics) SideEffectFailed(step string) {
	if m == nil {
		return
	}
	m.sideEffectFails.WithLabelValues(step).Inc()
}

func (m *Metrics) DeliveryFailed(channel string) {
	if m == nil {
		return
	}
	m.deliveryFails.WithLabelValues(channel).Inc()
}
