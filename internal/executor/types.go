// Package executor is the async driver described in the teacher's own
// runtime.go/executor.go lineage: it owns one actor goroutine per
// conversation, applies statemachine.Transition's effects in order, and
// holds the cancellation tokens that let a user interrupt an in-flight LLM
// call, tool, or sub-agent group within the cancellation deadline.
//
// The package depends only on interfaces for its collaborators (storage,
// LLM provider, SSE broadcast) so it can be tested without a real database
// or network call, matching the dynamic-dispatch convention the teacher
// uses for its own provider/tool abstractions.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// Store is the persistence surface the executor drives. Implementations
// must persist messages before the corresponding PersistState call returns,
// per spec: crash recovery relies on messages always being ahead of state.
type Store interface {
	PersistUserMessage(ctx context.Context, msg convcore.Message) error
	PersistAgentMessage(ctx context.Context, msg convcore.Message) error
	PersistToolResult(ctx context.Context, conversationID string, result convcore.ToolResultBlock) error
	PersistContinuationMessage(ctx context.Context, conversationID, summary string) error
	PersistState(ctx context.Context, conversationID string, state convcore.ConvState) error
	ListMessages(ctx context.Context, conversationID string) ([]convcore.Message, error)

	// CreateSubAgent inserts the child conversation row (parent_id set,
	// user_initiated=false) and returns the model/cwd it inherits from its
	// parent, so the executor can seed and run it identically to any other
	// conversation.
	CreateSubAgent(ctx context.Context, parentID, childID string) (ConversationInfo, error)
}

// ConversationInfo is the subset of conversation metadata the executor
// needs to run a conversation's actor loop.
type ConversationInfo struct {
	ConversationID string
	Model          statemachine.ModelInfo
	CWD            string
	IsSubAgent     bool
	ParentID       string
}

// ToolSchema is what the LLM request builder sends for each registered
// tool; Name/Description/InputSchema mirror tools.Tool exactly so the
// executor can build it without importing the provider wire format.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// LlmRequest carries everything a provider call needs: the full message
// history (the provider adapter is responsible for trimming/formatting it
// into its own wire format) and the tool schemas currently registered.
type LlmRequest struct {
	ConversationID string
	Model          statemachine.ModelInfo
	History        []convcore.Message
	Tools          []ToolSchema
}

// LlmResult is a successful completion.
type LlmResult struct {
	Blocks []convcore.ContentBlock
	Usage  convcore.Usage
}

// LlmClient is the external collaborator interface for a model provider.
// Complete must classify failures into a convcore.ErrorKind via
// ClassifiedError; any other error is treated as ErrorKindUnknown, except
// context.DeadlineExceeded, which is treated as ErrorKindTimedOut.
type LlmClient interface {
	Complete(ctx context.Context, req LlmRequest) (LlmResult, error)
	// Continuation issues the fixed tool-less summary prompt and returns
	// the resulting text.
	Continuation(ctx context.Context, req LlmRequest) (string, error)
}

// ClassifiedError lets an LlmClient attach a convcore.ErrorKind to a
// failure; the executor type-asserts for it rather than string-matching
// error messages.
type ClassifiedError struct {
	Kind convcore.ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

func classifyLlmError(err error) (convcore.ErrorKind, string) {
	var ce *ClassifiedError
	if e, ok := err.(*ClassifiedError); ok {
		ce = e
	}
	if ce != nil {
		return ce.Kind, ce.Err.Error()
	}
	if err == context.DeadlineExceeded {
		return convcore.ErrorKindTimedOut, err.Error()
	}
	return convcore.ErrorKindUnknown, err.Error()
}

// ToolRunner is the subset of tools.Registry the executor needs; declared
// as an interface here (rather than importing *tools.Registry directly) so
// sub-agent runs and unit tests can substitute a stub registry.
type ToolRunner interface {
	Get(name string) (Tool, bool)
	All() []Tool
}

// Tool mirrors tools.Tool's shape without importing the tools package,
// keeping the executor decoupled from the concrete tool contract package.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Run(rc ToolRunContext, input json.RawMessage) (ToolOutput, error)
}

// ToolRunContext mirrors tools.RunContext.
type ToolRunContext struct {
	Context    context.Context
	WorkingDir string
}

// ToolOutput mirrors tools.ToolOutput.
type ToolOutput struct {
	Content     string
	IsError     bool
	DisplayData json.RawMessage
}

// Notifier publishes SSE-bound events. The executor never blocks waiting
// for a subscriber: a slow or absent client must not stall the
// conversation's actor loop (spec §5, backpressure).
type Notifier interface {
	Publish(conversationID string, eventType string, payload any)
}

// Clock exists so tests can avoid real sleeps for Backoff effects.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time     { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
