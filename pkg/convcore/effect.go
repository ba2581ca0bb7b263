package convcore

import "time"

// Effect is the closed set of side effects the transition function can
// request. The transition function never performs them; the executor
// applies each Effect returned from a single transition call in order.
type Effect interface {
	isEffect()
	Name() string
}

// PersistUserMessage appends a user-role Message.
type PersistUserMessage struct {
	Message Message
}

func (PersistUserMessage) isEffect()     {}
func (PersistUserMessage) Name() string  { return "persist_user_message" }

// PersistAgentMessage appends an assistant-role Message (may contain both
// text and tool_use blocks).
type PersistAgentMessage struct {
	Message Message
}

func (PersistAgentMessage) isEffect()     {}
func (PersistAgentMessage) Name() string  { return "persist_agent_message" }

// PersistToolResult appends a user-role Message carrying exactly one
// ToolResultBlock, idempotently by (conversation_id, tool_use_id).
type PersistToolResult struct {
	ConversationID string
	Result         ToolResultBlock
}

func (PersistToolResult) isEffect()     {}
func (PersistToolResult) Name() string  { return "persist_tool_result" }

// PersistContinuationMessage appends the synthesized continuation summary.
type PersistContinuationMessage struct {
	ConversationID string
	Summary        string
}

func (PersistContinuationMessage) isEffect()     {}
func (PersistContinuationMessage) Name() string  { return "persist_continuation_message" }

// PersistState durably records the conversation's new ConvState.
type PersistState struct {
	ConversationID string
	State          ConvState
}

func (PersistState) isEffect()     {}
func (PersistState) Name() string  { return "persist_state" }

// RequestLlm asks the executor to start a completion call.
type RequestLlm struct {
	ConversationID string
	Attempt        int
}

func (RequestLlm) isEffect()     {}
func (RequestLlm) Name() string  { return "request_llm" }

// RequestContinuation asks the executor to issue a tool-less completion
// call with the fixed summary prompt.
type RequestContinuation struct {
	ConversationID string
}

func (RequestContinuation) isEffect()     {}
func (RequestContinuation) Name() string  { return "request_continuation" }

// ExecuteTool asks the executor to run exactly one tool call.
type ExecuteTool struct {
	ConversationID string
	ToolUse        ToolUseBlock
}

func (ExecuteTool) isEffect()     {}
func (ExecuteTool) Name() string  { return "execute_tool" }

// SpawnSubAgent asks the executor to create a child Conversation and start
// it running with the given task prompt.
type SpawnSubAgent struct {
	ConversationID string
	AgentID        string
	Task           string
}

func (SpawnSubAgent) isEffect()     {}
func (SpawnSubAgent) Name() string  { return "spawn_sub_agent" }

// CancelSubAgents asks the executor to propagate cancellation to every
// conversation id listed.
type CancelSubAgents struct {
	ConversationIDs []string
}

func (CancelSubAgents) isEffect()     {}
func (CancelSubAgents) Name() string  { return "cancel_sub_agents" }

// AbortLlm signals the cancellation token of the in-flight LLM call.
type AbortLlm struct {
	ConversationID string
}

func (AbortLlm) isEffect()     {}
func (AbortLlm) Name() string  { return "abort_llm" }

// AbortTool signals the cancellation token of the in-flight tool call.
type AbortTool struct {
	ConversationID string
	ToolUseID      string
}

func (AbortTool) isEffect()     {}
func (AbortTool) Name() string  { return "abort_tool" }

// NotifyStateChange publishes a state_change SSE event. Only emitted after
// the corresponding PersistState effect has completed.
type NotifyStateChange struct {
	ConversationID string
	State          ConvState
}

func (NotifyStateChange) isEffect()     {}
func (NotifyStateChange) Name() string  { return "notify_state_change" }

// NotifyMessage publishes a message SSE event.
type NotifyMessage struct {
	ConversationID string
	Message        Message
}

func (NotifyMessage) isEffect()     {}
func (NotifyMessage) Name() string  { return "notify_message" }

// NotifyAgentDone publishes the agent_done SSE event, exactly once per
// turn, whenever the state transitions to Idle or a terminal state.
type NotifyAgentDone struct {
	ConversationID string
	FinalState     ConvState
}

func (NotifyAgentDone) isEffect()     {}
func (NotifyAgentDone) Name() string  { return "notify_agent_done" }

// NotifyContextExhausted publishes the context-exhausted SSE event.
type NotifyContextExhausted struct {
	ConversationID string
	Summary        string
}

func (NotifyContextExhausted) isEffect()     {}
func (NotifyContextExhausted) Name() string  { return "notify_context_exhausted" }

// Backoff asks the executor to sleep before re-posting the retry.
type Backoff struct {
	ConversationID string
	Duration       time.Duration
	Attempt        int
}

func (Backoff) isEffect()     {}
func (Backoff) Name() string  { return "backoff" }
