// Package telemetry exposes prometheus instrumentation for agent runs.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the agent subsystem. One
// instance is created at startup and shared by every run.
type Metrics struct {
	Runs          *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	Iterations    *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	LLMRequests   *prometheus.CounterVec
	LLMTokens     *prometheus.CounterVec
	SearchQueries *prometheus.CounterVec
}

// NewMetrics builds and registers the agent collectors. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachtool_agent_runs_total",
			Help: "Agent runs by recipe and outcome.",
		}, []string{"recipe", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coachtool_agent_run_duration_seconds",
			Help:    "Wall-clock duration of agent runs.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"recipe"}),
		Iterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coachtool_agent_iterations",
			Help:    "Model calls per agent run.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}, []string{"recipe"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachtool_agent_tool_calls_total",
			Help: "Tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachtool_llm_requests_total",
			Help: "LLM completion requests by model and status.",
		}, []string{"model", "status"}),
		LLMTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachtool_llm_tokens_total",
			Help: "Token usage by model and direction (prompt/completion).",
		}, []string{"model", "direction"}),
		SearchQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachtool_search_queries_total",
			Help: "Knowledge-base queries by strategy.",
		}, []string{"strategy"}),
	}

	reg.MustRegister(m.Runs, m.RunDuration, m.Iterations, m.ToolCalls, m.LLMRequests, m.LLMTokens, m.SearchQueries)
	return m
}
