package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultRendered = "rendered"
	resultCacheHit = "cache_hit"
	resultError    = "error"
)

// Metrics holds the Prometheus collectors of one server cycle. Each cycle gets
// its own registry, so a restart never registers a collector twice.
type Metrics struct {
	registry      *prometheus.Registry
	renders       *prometheus.CounterVec
	renderSeconds *prometheus.HistogramVec
	inputBytes    prometheus.Histogram
	ruleSetWrites *prometheus.CounterVec
}

// NewMetrics creates and registers the render collectors together with the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bbmark_renders_total",
				Help: "Total number of render requests, by rule set and result",
			},
			[]string{"rule_set", "result"},
		),
		renderSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bbmark_render_duration_seconds",
				Help:    "Time spent transforming markup, cache hits excluded",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"rule_set"},
		),
		inputBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bbmark_render_input_bytes",
				Help:    "Size of the markup submitted for rendering",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
		),
		ruleSetWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bbmark_rule_set_writes_total",
				Help: "Total number of rule set changes, by operation",
			},
			[]string{"op"},
		),
	}
	m.registry.MustRegister(
		m.renders,
		m.renderSeconds,
		m.inputBytes,
		m.ruleSetWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRender records one render request. A nil *Metrics records nothing.
func (m *Metrics) ObserveRender(ruleSet, result string, inputLen int, took time.Duration) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(ruleSet, result).Inc()
	m.inputBytes.Observe(float64(inputLen))
	if result == resultRendered {
		m.renderSeconds.WithLabelValues(ruleSet).Observe(took.Seconds())
	}
}

// ObserveRuleSetWrite records a change to the rule store.
func (m *Metrics) ObserveRuleSetWrite(op string) {
	if m == nil {
		return
	}
	m.ruleSetWrites.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
