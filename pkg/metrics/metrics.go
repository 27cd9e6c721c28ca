// Package metrics groups the Prometheus instruments of the memory pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "cogniweave"

// Metrics groups all Prometheus instruments used by the pipeline.
type Metrics struct {
	TurnsPersisted     prometheus.Counter
	PersistFailures    prometheus.Counter
	GateVerdicts       *prometheus.CounterVec
	DetectionErrors    prometheus.Counter
	RetrievalFailures  *prometheus.CounterVec
	ExtractionFailures *prometheus.CounterVec
	TagsWritten        prometheus.Counter
	AgentLatency       prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the instruments on reg. A nil reg uses a fresh registry,
// which keeps tests and multiple pipelines in one process independent.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_persisted_total",
			Help:      "History turns written.",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Exchanges answered but not written to history.",
		}),
		GateVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_verdicts_total",
			Help:      "End-of-turn verdicts by outcome.",
		}, []string{"verdict"}),
		DetectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_errors_total",
			Help:      "End-of-turn classifier failures absorbed by the failure policy.",
		}),
		RetrievalFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_failures_total",
			Help:      "Long memory lookups that degraded to no memory, by stage.",
		}, []string{"stage"}),
		ExtractionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Memory write-back failures by stage.",
		}, []string{"stage"}),
		TagsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_written_total",
			Help:      "Memory tags added to the tag store.",
		}),
		AgentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_latency_ms",
			Help:      "Time from agent call to stream exhaustion in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		gatherer: reg,
	}
}

func (m *Metrics) TurnPersisted(n int) {
	if m == nil {
		return
	}
	m.TurnsPersisted.Add(float64(n))
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) GateVerdict(verdict string) {
	if m == nil {
		return
	}
	m.GateVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) DetectionFailed() {
	if m == nil {
		return
	}
	m.DetectionErrors.Inc()
}

func (m *Metrics) RetrievalFailed(stage string) {
	if m == nil {
		return
	}
	m.RetrievalFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ExtractionFailed(stage string) {
	if m == nil {
		return
	}
	m.ExtractionFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) TagWritten() {
	if m == nil {
		return
	}
	m.TagsWritten.Inc()
}

func (m *Metrics) ObserveAgentLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.AgentLatency.Observe(float64(d.Milliseconds()))
}

// Handler serves the registry the instruments were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
