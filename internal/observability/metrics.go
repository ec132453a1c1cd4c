package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects runtime metrics for the agent and team loops.
//
// Tracked dimensions:
//   - LLM streaming latency and outcomes per model
//   - Tool execution counts and latencies per tool
//   - Event dispatch volume and handler failures per event type
//   - Phase transition counts
//   - Input queue depth per sub-queue
type Metrics struct {
	// LLMRequestDuration measures LLM stream wall time in seconds.
	// Labels: model, status (success|error)
	LLMRequestDuration *prometheus.HistogramVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error|denied)
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// EventsDispatched counts dispatched input events.
	// Labels: event_type, queue
	EventsDispatched *prometheus.CounterVec

	// HandlerErrors counts handler failures that tripped the error
	// phase. Labels: event_type
	HandlerErrors *prometheus.CounterVec

	// PhaseTransitions counts completed phase transitions.
	// Labels: from, to
	PhaseTransitions *prometheus.CounterVec

	// QueueDepth gauges the current depth of each input sub-queue.
	// Labels: queue
	QueueDepth *prometheus.GaugeVec
}

// NewMetrics registers the runtime metrics against reg. Passing nil
// registers against the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM stream wall time in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model", "status"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "tool_executions_total",
			Help:      "Tool invocations by outcome.",
		}, []string{"tool", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool execution time in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "events_dispatched_total",
			Help:      "Input events dispatched to handlers.",
		}, []string{"event_type", "queue"}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "handler_errors_total",
			Help:      "Handler failures that transitioned the agent to the error phase.",
		}, []string{"event_type"}),
		PhaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "phase_transitions_total",
			Help:      "Completed agent phase transitions.",
		}, []string{"from", "to"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "loom",
			Name:      "input_queue_depth",
			Help:      "Current depth of each input sub-queue.",
		}, []string{"queue"}),
	}
}
