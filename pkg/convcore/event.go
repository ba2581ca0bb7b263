package convcore

// Event is the closed set of inputs the transition function accepts.
type Event interface {
	isEvent()
	Name() string
}

// UserMessage: new input from the UI client.
type UserMessage struct {
	LocalID   string
	Text      string
	UserAgent string
}

func (UserMessage) isEvent()     {}
func (UserMessage) Name() string { return "user_message" }

// LlmResponse: a completed LLM turn, already aggregated by the executor
// from whatever streaming chunks the provider emitted.
type LlmResponse struct {
	Blocks []ContentBlock
	Usage  Usage
}

func (LlmResponse) isEvent()     {}
func (LlmResponse) Name() string { return "llm_response" }

// LlmError: the LLM call failed.
type LlmError struct {
	Kind    ErrorKind
	Message string
}

func (LlmError) isEvent()     {}
func (LlmError) Name() string { return "llm_error" }

// LlmAborted: the cancellation token for an in-flight LLM call fired.
type LlmAborted struct{}

func (LlmAborted) isEvent()     {}
func (LlmAborted) Name() string { return "llm_aborted" }

// ToolComplete: the current tool in ToolExecuting finished.
type ToolComplete struct {
	ID     string
	Result ToolResultBlock
}

func (ToolComplete) isEvent()     {}
func (ToolComplete) Name() string { return "tool_complete" }

// ToolAborted: the cancellation token for the in-flight tool fired.
type ToolAborted struct {
	ID string
}

func (ToolAborted) isEvent()     {}
func (ToolAborted) Name() string { return "tool_aborted" }

// SpawnAgentsComplete: the spawn_agents tool finished registering its
// children; IDsWithTasks maps the new conversation ids to their task text.
type SpawnAgentsComplete struct {
	IDsWithTasks map[string]string
}

func (SpawnAgentsComplete) isEvent()     {}
func (SpawnAgentsComplete) Name() string { return "spawn_agents_complete" }

// SubAgentResult: a child conversation reported its terminal outcome.
type SubAgentResult struct {
	ID      string
	Outcome SubAgentOutcome
}

func (SubAgentResult) isEvent()     {}
func (SubAgentResult) Name() string { return "sub_agent_result" }

// UserCancel: the UI asked to abort whatever is in flight.
type UserCancel struct{}

func (UserCancel) isEvent()     {}
func (UserCancel) Name() string { return "user_cancel" }

// UserTriggerContinuation: the UI explicitly asked to summarize and wrap
// up, independent of crossing the usage threshold.
type UserTriggerContinuation struct{}

func (UserTriggerContinuation) isEvent()     {}
func (UserTriggerContinuation) Name() string { return "user_trigger_continuation" }

// ContinuationResponse: the tool-less summary request completed.
type ContinuationResponse struct {
	Summary string
}

func (ContinuationResponse) isEvent()     {}
func (ContinuationResponse) Name() string { return "continuation_response" }

// ContinuationFailed: the tool-less summary request errored.
type ContinuationFailed struct {
	Message string
}

func (ContinuationFailed) isEvent()     {}
func (ContinuationFailed) Name() string { return "continuation_failed" }
