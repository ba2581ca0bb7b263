package executor

import "sync/atomic"

// convMetrics tracks one conversation's execution counters, grounded on the
// teacher's internal/agent/executor.go ExecutorMetrics (TotalExecutions/
// TotalRetries/TotalFailures/TotalTimeouts/TotalPanics): there, one Executor
// serves every tool call system-wide; here each conversation actor keeps its
// own counters since SPEC_FULL.md §7.1 exposes them per conversation.
type convMetrics struct {
	executions atomic.Int64
	retries    atomic.Int64
	failures   atomic.Int64
	timeouts   atomic.Int64
	panics     atomic.Int64
}

// ExecutorMetricsSnapshot is a copy-safe point-in-time read of a
// conversation's execution counters, served by GET
// /api/conversations/:id/metrics.
type ExecutorMetricsSnapshot struct {
	TotalExecutions int64 `json:"total_executions"`
	TotalRetries    int64 `json:"total_retries"`
	TotalFailures   int64 `json:"total_failures"`
	TotalTimeouts   int64 `json:"total_timeouts"`
	TotalPanics     int64 `json:"total_panics"`
}

func (m *convMetrics) snapshot() ExecutorMetricsSnapshot {
	return ExecutorMetricsSnapshot{
		TotalExecutions: m.executions.Load(),
		TotalRetries:    m.retries.Load(),
		TotalFailures:   m.failures.Load(),
		TotalTimeouts:   m.timeouts.Load(),
		TotalPanics:     m.panics.Load(),
	}
}

// MetricsSnapshot returns the execution counters for a running conversation.
func (ex *Executor) MetricsSnapshot(conversationID string) (ExecutorMetricsSnapshot, bool) {
	c, ok := ex.get(conversationID)
	if !ok {
		return ExecutorMetricsSnapshot{}, false
	}
	return c.metrics.snapshot(), true
}
