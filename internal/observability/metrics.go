// Package observability wires structured logging, tracing, and metrics
// through the runtime. Grounded on the teacher's internal/observability
// package (tracing.go, metrics.go), generalized to this runtime's
// components (loop iterations, tool executions, MCP round-trips, SSE
// parsing) instead of the teacher's channel/session metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the runtime registers. A nil
// *Metrics is valid everywhere it's threaded through: callers that don't
// want metrics simply pass nil, and every call site checks for nil before
// touching a collector.
type Metrics struct {
	LoopIterationsTotal  prometheus.Counter
	LoopCompletedTotal   *prometheus.CounterVec // label: reason (done, max_iterations, aborted, error)
	LoopRunDuration      prometheus.Histogram

	ToolExecutionsTotal   *prometheus.CounterVec // labels: tool, outcome
	ToolExecutionDuration *prometheus.HistogramVec // label: tool

	ApprovalDecisionsTotal *prometheus.CounterVec // label: decision

	MCPRequestsTotal   *prometheus.CounterVec // labels: server, method
	MCPRequestDuration *prometheus.HistogramVec

	SSEFramesTotal      prometheus.Counter
	SSEParseErrorsTotal prometheus.Counter
}

// NewMetrics constructs and registers every collector against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoopIterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "loop",
			Name:      "iterations_total",
			Help:      "Number of loop:iteration events received from the runtime across all turns.",
		}),
		LoopCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "loop",
			Name:      "completed_total",
			Help:      "Turns completed, partitioned by completion reason.",
		}, []string{"reason"}),
		LoopRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "loop",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a full turn.",
			Buckets:   prometheus.DefBuckets,
		}),
		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Tool invocations, partitioned by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "tool",
			Name:      "execution_duration_seconds",
			Help:      "Tool handler execution duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		ApprovalDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Approval gate outcomes, partitioned by decision.",
		}, []string{"decision"}),
		MCPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "mcp",
			Name:      "requests_total",
			Help:      "JSON-RPC requests issued, partitioned by server and method.",
		}, []string{"server", "method"}),
		MCPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "mcp",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC round-trip duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server"}),
		SSEFramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "sse",
			Name:      "frames_total",
			Help:      "Non-empty SSE data frames read, including frames later dropped as malformed.",
		}),
		SSEParseErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "sse",
			Name:      "parse_errors_total",
			Help:      "SSE frames dropped due to malformed JSON.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.LoopIterationsTotal, m.LoopCompletedTotal, m.LoopRunDuration,
			m.ToolExecutionsTotal, m.ToolExecutionDuration,
			m.ApprovalDecisionsTotal,
			m.MCPRequestsTotal, m.MCPRequestDuration,
			m.SSEFramesTotal, m.SSEParseErrorsTotal,
		)
	}
	return m
}
