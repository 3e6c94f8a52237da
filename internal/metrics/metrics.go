// Package metrics exposes Prometheus instruments for HTTP requests,
// executions, steps, and agent runs. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atlas"

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.HistogramVec

	executions     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	agentRuns      *prometheus.CounterVec
	agentsInFlight prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency by method and status code.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Workflow executions by backend and final status.",
			},
			[]string{"engine", "status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step execution time by kind and outcome.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "status"},
		),
		agentRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_total",
				Help:      "Agent runs by protocol and final status.",
			},
			[]string{"protocol", "status"},
		),
		agentsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agent_runs_in_flight",
				Help:      "Agent runs currently executing.",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one served API request.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) ObserveExecution(engine, status string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(engine, status).Inc()
}

func (m *Metrics) ObserveStep(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(kind, status).Observe(d.Seconds())
}

// AgentRunStarted increments the in-flight gauge.
func (m *Metrics) AgentRunStarted() {
	if m == nil {
		return
	}
	m.agentsInFlight.Inc()
}

// AgentRunFinished decrements the in-flight gauge and counts the outcome.
func (m *Metrics) AgentRunFinished(protocol, status string) {
	if m == nil {
		return
	}
	m.agentsInFlight.Dec()
	m.agentRuns.WithLabelValues(protocol, status).Inc()
}
