package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "account_opening"

// Metrics holds the workflow collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	planDuration *prometheus.HistogramVec
	turns        prometheus.Histogram
	toolCalls    *prometheus.CounterVec
	modelTokens  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Workflow runs by result.",
		}, []string{"result"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		planDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_duration_seconds",
			Help:      "Plan generation duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}, []string{"result"}),
		turns: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "executor_turns",
			Help:      "Model turns per plan execution.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Function dispatches by name and result.",
		}, []string{"function", "result"}),
		modelTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by the executor model.",
		}, []string{"kind"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result(err)).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) ObservePlan(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.planDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

func (m *Metrics) ObserveTurns(n int) {
	if m == nil {
		return
	}
	m.turns.Observe(float64(n))
}

func (m *Metrics) ObserveToolCall(function string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(function, result(err)).Inc()
}

func (m *Metrics) AddTokens(prompt, completion int) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.modelTokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.modelTokens.WithLabelValues("completion").Add(float64(completion))
	}
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
