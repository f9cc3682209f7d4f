// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// AgentQueriesTotal tracks agent queries handled per organization.
	AgentQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_queries_total",
			Help: "Total agent queries handled",
		},
		[]string{"organization_id", "channel", "outcome"},
	)

	// QuotaRejectionsTotal tracks turns rejected by the usage quota.
	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_quota_rejections_total",
			Help: "Turns rejected because the organization quota was reached",
		},
		[]string{"organization_id"},
	)

	// LLMCallDuration tracks model call duration per founding model.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ToolExecutionsTotal tracks tool dispatches by type and result.
	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Tool executions by type and result",
		},
		[]string{"type", "result"},
	)

	// ToolExecutionDuration tracks tool side-effect duration.
	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tool_execution_duration_seconds",
			Help:    "Tool side-effect duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	// SplitterFragments tracks how many bubbles conversational mode produced.
	SplitterFragments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "splitter_fragments",
			Help:    "Fragments produced per conversational-mode answer",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)

	// MessagesTotal tracks persisted messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"organization_id", "from"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for one model invocation.
func RecordLLMCall(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordToolExecution records one tool dispatch.
func RecordToolExecution(toolType, result string, duration float64) {
	ToolExecutionsTotal.WithLabelValues(toolType, result).Inc()
	ToolExecutionDuration.WithLabelValues(toolType).Observe(duration)
}
