// File: internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphedit"

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	proposalTransitions *prometheus.CounterVec
	mutations           *prometheus.CounterVec
	bulkRows            *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
	sanitizerRejections *prometheus.CounterVec
	graphReadRetries    prometheus.Counter
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.proposalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_transitions_total",
			Help:      "Proposal status transitions by target status",
		},
		[]string{"to"},
	)
	m.mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Graph mutations executed, by change kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	m.bulkRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_rows_total",
			Help:      "Records merged through the bulk path",
		},
		[]string{"kind"},
	)
	m.queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of read queries by intent type",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"intent"},
	)
	m.sanitizerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sanitizer_rejections_total",
			Help:      "Identifiers rejected before reaching statement text",
		},
		[]string{"field"},
	)
	m.graphReadRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_read_retries_total",
			Help:      "Read statements retried after a transient failure",
		},
	)

	m.registry.MustRegister(
		m.proposalTransitions,
		m.mutations,
		m.bulkRows,
		m.queryDuration,
		m.sanitizerRejections,
		m.graphReadRetries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ProposalTransition(to string) {
	if m == nil {
		return
	}
	m.proposalTransitions.WithLabelValues(to).Inc()
}

// Mutation records one executed change; outcome is "applied" or "failed".
func (m *Metrics) Mutation(kind, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) BulkRows(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bulkRows.WithLabelValues(kind).Add(float64(n))
}

// ObserveQuery records the time since start under the intent label.
func (m *Metrics) ObserveQuery(intent string, start time.Time) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(intent).Observe(time.Since(start).Seconds())
}

// SanitizerRejection matches the sanitize.New onReject hook.
func (m *Metrics) SanitizerRejection(field string) {
	if m == nil {
		return
	}
	m.sanitizerRejections.WithLabelValues(field).Inc()
}

// GraphReadRetry matches the graphstore.RetryPolicy OnRetry hook.
func (m *Metrics) GraphReadRetry(int, error) {
	if m == nil {
		return
	}
	m.graphReadRetries.Inc()
}
