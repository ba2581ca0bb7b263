// Package tools defines the collaborator contract every built-in and
// external tool implements, plus a concurrency-safe registry the executor
// dispatches through.
package tools

import (
	"context"
	"encoding/json"
)

// ToolOutput is what a tool returns for a single invocation. The executor
// wraps this into a convcore.ToolResultBlock; it never inspects Content to
// infer cancellation, only the context passed to Run.
type ToolOutput struct {
	Content     string
	IsError     bool
	DisplayData json.RawMessage
}

// RunContext is everything a tool's Run method may need besides its input.
type RunContext struct {
	Context     context.Context
	WorkingDir  string
	EmitDisplay func(json.RawMessage)
}

// Tool is the collaborator interface every tool implementation satisfies.
// SafeForParallel is advisory only: the executor currently serializes every
// tool call within a turn regardless of this flag (spec §4.2), but the flag
// gives a ready lever for a future parallel-safe batch without changing the
// interface.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	SafeForParallel() bool
	Run(rc RunContext, input json.RawMessage) (ToolOutput, error)
}

// Tool parameter limits, guarding against resource exhaustion from a
// malformed or hostile tool_use block.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10MB
)
