// Package telemetry wires this repo's Prometheus counters/histograms and
// OpenTelemetry spans, trimmed from the teacher's multi-channel-bot metric
// surface (internal/observability) down to what an executor/statemachine/
// HTTP/tool pipeline actually emits.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors the executor, tool runner, and
// HTTP surface report against. Built once at startup and injected wherever
// it's needed, never read from a package global.
type Metrics struct {
	// TransitionCounter counts state machine transitions by resulting state
	// and event name (SPEC_FULL.md §4's explicit state machine).
	// Labels: state, event
	TransitionCounter *prometheus.CounterVec

	// TransitionErrors counts rejected transitions (AgentBusy,
	// CancellationInProgress, InvalidTransition).
	// Labels: reason
	TransitionErrors *prometheus.CounterVec

	// LLMRequestDuration measures provider call latency.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider calls by outcome.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks cumulative token accounting (convcore.Usage).
	// Labels: provider, model, kind (input|output|cache_creation|cache_read)
	LLMTokensUsed *prometheus.CounterVec

	// ToolDuration measures tool execution time, covering both synchronous
	// tools and the visible portion of async job dispatch (SPEC_FULL.md
	// §7.5).
	// Labels: tool_name
	ToolDuration *prometheus.HistogramVec

	// ToolExecutions counts tool runs by outcome.
	// Labels: tool_name, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ActiveConversations is a gauge of conversations with a running actor.
	ActiveConversations prometheus.Gauge

	// AsyncJobsInFlight tracks jobs.Store entries not yet in a terminal
	// state (SPEC_FULL.md §7.5).
	AsyncJobsInFlight prometheus.Gauge

	// HTTPRequestDuration measures gatewayhttp handler latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// ContinuationsTotal counts AwaitingContinuation transitions, split by
	// whether they resolved or hit ContextExhausted (SPEC_FULL.md §6.7).
	// Labels: outcome (resolved|exhausted)
	ContinuationsTotal *prometheus.CounterVec

	// FailoverTotal counts model switches, both automatic
	// (LlmError exhausting retries) and explicit (SPEC_FULL.md §7.3).
	// Labels: trigger (automatic|explicit)
	FailoverTotal *prometheus.CounterVec
}

// NewMetrics creates and registers every collector against prometheus's
// default registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		TransitionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phoenix_transitions_total",
				Help: "Total number of state machine transitions by resulting state and event",
			},
			[]string{"state", "event"},
		),
		TransitionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phoenix_transition_errors_total",
				Help: "Total number of rejected transitions by reason",
			},
			[]string{"reason"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phoenix_llm_request_duration_seconds",
				Help:    "Duration of LLM provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phoenix_llm_requests_total",
				Help: "Total number of LLM provider requests by outcome",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phoenix_llm_tokens_total",
				Help: "Total tokens accounted for by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),
		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phoenix_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"tool_name"},
		),
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phoenix_tool_executions_total",
				Help: "Total tool executions by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		ActiveConversations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "phoenix_active_conversations",
				Help: "Number of conversations with a running executor actor",
			},
		),
		AsyncJobsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "phoenix_async_jobs_in_flight",
				Help: "Number of async tool jobs not yet in a terminal state",
			},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phoenix_http_request_duration_seconds",
				Help:    "Duration of gatewayhttp requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		ContinuationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phoenix_continuations_total",
				Help: "Total AwaitingContinuation transitions by outcome",
			},
			[]string{"outcome"},
		),
		FailoverTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phoenix_model_failovers_total",
				Help: "Total model failovers by trigger",
			},
			[]string{"trigger"},
		),
	}
}
