// Package statemachine implements the pure conversation state machine:
// given the current ConvState, an incoming Event, and a ConvContext, it
// returns the next ConvState plus the ordered list of Effects the executor
// must carry out. Transition never performs I/O and never reads a clock or
// random source directly; both arrive through ConvContext.
package statemachine

import (
	"fmt"
	"time"

	"github.com/scottopell/phoenix-ide/internal/backoff"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// backoffPolicy reproduces the spec's 1s/2s/4s retry sequence exactly:
// ComputeBackoffWithRand with Jitter 0 and randomValue 0 degenerates to
// InitialMs * Factor^(attempt-1), capped at MaxMs.
var backoffPolicy = backoff.BackoffPolicy{InitialMs: 1000, Factor: 2, MaxMs: 4000, Jitter: 0}

// ContinuationThreshold is the fraction of a model's context window that,
// once crossed, forces a tool-less continuation request.
const ContinuationThreshold = 0.90

// WarnThreshold is surfaced to the UI as an early warning; it has no
// transition effect of its own.
const WarnThreshold = 0.80

// MaxAttempts bounds the retry budget for a single logical LLM request.
const MaxAttempts = 3

// ModelInfo is the subset of model-registry data the transition function
// needs to make threshold and retry decisions.
type ModelInfo struct {
	ID            string
	ContextWindow int64
}

// ConvContext carries everything the transition function needs besides the
// event itself: identity, the active model, whether this conversation is a
// sub-agent (which disables the continuation flow per spec), the clock
// reading for timestamping persisted messages, and id/random allocators
// the caller has already drawn so the function stays pure.
type ConvContext struct {
	ConversationID string
	Model          ModelInfo
	IsSubAgent     bool
	Now            time.Time
	NextMessageID  func() string
}

// TransitionError is returned instead of mutating state when an event is
// rejected outright by the current state.
type TransitionError struct {
	Kind    convcore.ErrorKind
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func rejectBusy() (convcore.ConvState, []convcore.Effect, error) {
	return nil, nil, &TransitionError{Kind: convcore.ErrorKindAgentBusy, Message: "agent is busy"}
}

func rejectCancelling() (convcore.ConvState, []convcore.Effect, error) {
	return nil, nil, &TransitionError{
		Kind:    convcore.ErrorKindCancellationInProgress,
		Message: "cancellation already in progress",
	}
}

func rejectInvalid(state convcore.ConvState, event convcore.Event) (convcore.ConvState, []convcore.Effect, error) {
	return nil, nil, &TransitionError{
		Kind:    convcore.ErrorKindInvalidTransition,
		Message: fmt.Sprintf("event %s is not valid in state %s", event.Name(), state.Name()),
	}
}

// Transition is the pure core: (ConvState, Event, ConvContext) ->
// (ConvState, []Effect, error). Terminal states reject every event except
// those explicitly documented as no-ops. Matching over both the state and
// the event is exhaustive; an unhandled combination returns
// InvalidTransition rather than panicking.
func Transition(state convcore.ConvState, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch s := state.(type) {
	case convcore.Idle:
		return fromIdle(s, event, cctx)
	case convcore.LlmRequesting:
		return fromLlmRequesting(s, event, cctx)
	case convcore.ToolExecuting:
		return fromToolExecuting(s, event, cctx)
	case convcore.AwaitingContinuation:
		return fromAwaitingContinuation(s, event, cctx)
	case convcore.AwaitingSubAgents:
		return fromAwaitingSubAgents(s, event, cctx)
	case convcore.CancellingLlm:
		return fromCancellingLlm(s, event, cctx)
	case convcore.CancellingTool:
		return fromCancellingTool(s, event, cctx)
	case convcore.CancellingSubAgents:
		return fromCancellingSubAgents(s, event, cctx)
	case convcore.Error:
		return fromError(s, event, cctx)
	case convcore.Completed, convcore.Failed, convcore.ContextExhausted:
		return fromTerminal(state, event, cctx)
	default:
		return rejectInvalid(state, event)
	}
}

func newMessageID(cctx ConvContext) string {
	if cctx.NextMessageID != nil {
		return cctx.NextMessageID()
	}
	return ""
}

func fromIdle(_ convcore.Idle, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch ev := event.(type) {
	case convcore.UserMessage:
		msg := convcore.Message{
			ID:             newMessageID(cctx),
			ConversationID: cctx.ConversationID,
			LocalID:        ev.LocalID,
			Role:           convcore.RoleUser,
			Blocks:         []convcore.ContentBlock{convcore.TextBlock{Text: ev.Text}},
			UserAgent:      ev.UserAgent,
			CreatedAt:      cctx.Now,
		}
		next := convcore.LlmRequesting{Attempt: 1}
		return next, []convcore.Effect{
			convcore.PersistUserMessage{Message: msg},
			convcore.NotifyMessage{ConversationID: cctx.ConversationID, Message: msg},
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.RequestLlm{ConversationID: cctx.ConversationID, Attempt: 1},
		}, nil

	case convcore.UserTriggerContinuation:
		if cctx.IsSubAgent {
			return rejectInvalid(convcore.Idle{}, event)
		}
		next := convcore.AwaitingContinuation{}
		return next, []convcore.Effect{
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.RequestContinuation{ConversationID: cctx.ConversationID},
		}, nil

	default:
		return rejectInvalid(convcore.Idle{}, event)
	}
}

func fromLlmRequesting(s convcore.LlmRequesting, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch ev := event.(type) {
	case convcore.UserMessage:
		return rejectBusy()

	case convcore.LlmResponse:
		agentMsg := convcore.Message{
			ID:             newMessageID(cctx),
			ConversationID: cctx.ConversationID,
			Role:           convcore.RoleAssistant,
			Blocks:         ev.Blocks,
			CreatedAt:      cctx.Now,
		}
		effects := []convcore.Effect{
			convcore.PersistAgentMessage{Message: agentMsg},
			convcore.NotifyMessage{ConversationID: cctx.ConversationID, Message: agentMsg},
		}

		if crossesThreshold(ev.Usage, cctx.Model.ContextWindow) {
			if cctx.IsSubAgent {
				next := convcore.Failed{Message: "sub-agent context window exhausted"}
				effects = append(effects,
					convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
					convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
					convcore.NotifyAgentDone{ConversationID: cctx.ConversationID, FinalState: next},
				)
				return next, effects, nil
			}
			next := convcore.AwaitingContinuation{}
			effects = append(effects,
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
				convcore.RequestContinuation{ConversationID: cctx.ConversationID},
			)
			return next, effects, nil
		}

		toolUses := toolUseBlocks(ev.Blocks)
		if len(toolUses) == 0 {
			next := convcore.Idle{}
			effects = append(effects,
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyAgentDone{ConversationID: cctx.ConversationID, FinalState: next},
			)
			return next, effects, nil
		}

		next := convcore.ToolExecuting{
			CurrentTool:      toolUses[0],
			RemainingTools:   toolUses[1:],
			PersistedToolIDs: map[string]bool{},
		}
		effects = append(effects,
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.ExecuteTool{ConversationID: cctx.ConversationID, ToolUse: next.CurrentTool},
		)
		return next, effects, nil

	case convcore.LlmError:
		if ev.Kind.IsRetryable() && s.Attempt < MaxAttempts {
			next := convcore.LlmRequesting{Attempt: s.Attempt + 1}
			delay := backoff.ComputeBackoffWithRand(backoffPolicy, s.Attempt, 0)
			return next, []convcore.Effect{
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
				convcore.Backoff{ConversationID: cctx.ConversationID, Duration: delay, Attempt: next.Attempt},
			}, nil
		}
		next := convcore.Error{Kind: ev.Kind, Message: ev.Message, Attempt: s.Attempt}
		return next, []convcore.Effect{
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyAgentDone{ConversationID: cctx.ConversationID, FinalState: next},
		}, nil

	case convcore.UserCancel:
		next := convcore.CancellingLlm{}
		return next, []convcore.Effect{
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.AbortLlm{ConversationID: cctx.ConversationID},
		}, nil

	default:
		return rejectInvalid(s, event)
	}
}

func fromToolExecuting(s convcore.ToolExecuting, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch ev := event.(type) {
	case convcore.UserMessage:
		return rejectBusy()

	case convcore.ToolComplete:
		if ev.ID != s.CurrentTool.ID {
			return rejectInvalid(s, event)
		}
		persisted := cloneBoolMap(s.PersistedToolIDs)
		var effects []convcore.Effect
		if !persisted[ev.ID] {
			effects = append(effects, convcore.PersistToolResult{ConversationID: cctx.ConversationID, Result: ev.Result})
			resultMsg := convcore.Message{
				ID:             newMessageID(cctx),
				ConversationID: cctx.ConversationID,
				Role:           convcore.RoleUser,
				Blocks:         []convcore.ContentBlock{ev.Result},
				CreatedAt:      cctx.Now,
			}
			effects = append(effects, convcore.NotifyMessage{ConversationID: cctx.ConversationID, Message: resultMsg})
			persisted[ev.ID] = true
		}

		if len(s.RemainingTools) > 0 {
			next := convcore.ToolExecuting{
				CurrentTool:      s.RemainingTools[0],
				RemainingTools:   s.RemainingTools[1:],
				PersistedToolIDs: persisted,
				PendingSubAgents: s.PendingSubAgents,
			}
			effects = append(effects,
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
				convcore.ExecuteTool{ConversationID: cctx.ConversationID, ToolUse: next.CurrentTool},
			)
			return next, effects, nil
		}

		if len(s.PendingSubAgents) > 0 {
			pending := map[string]string{}
			for id := range s.PendingSubAgents {
				pending[id] = ""
			}
			next := convcore.AwaitingSubAgents{Pending: pending, CompletedResults: map[string]convcore.SubAgentOutcome{}}
			effects = append(effects,
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			)
			return next, effects, nil
		}

		next := convcore.LlmRequesting{Attempt: 1}
		effects = append(effects,
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.RequestLlm{ConversationID: cctx.ConversationID, Attempt: 1},
		)
		return next, effects, nil

	case convcore.SpawnAgentsComplete:
		pending := cloneBoolMap(s.PendingSubAgents)
		var spawnEffects []convcore.Effect
		for id, task := range ev.IDsWithTasks {
			if pending[id] {
				continue
			}
			pending[id] = true
			spawnEffects = append(spawnEffects, convcore.SpawnSubAgent{ConversationID: cctx.ConversationID, AgentID: id, Task: task})
		}
		if len(s.RemainingTools) > 0 || s.CurrentTool.ID != "" {
			next := convcore.ToolExecuting{
				CurrentTool:      s.CurrentTool,
				RemainingTools:   s.RemainingTools,
				PersistedToolIDs: s.PersistedToolIDs,
				PendingSubAgents: pending,
			}
			effects := append([]convcore.Effect{
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			}, spawnEffects...)
			return next, effects, nil
		}
		asPending := map[string]string{}
		for id := range pending {
			asPending[id] = ev.IDsWithTasks[id]
		}
		next := convcore.AwaitingSubAgents{Pending: asPending, CompletedResults: map[string]convcore.SubAgentOutcome{}}
		effects := append([]convcore.Effect{
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
		}, spawnEffects...)
		return next, effects, nil

	case convcore.UserCancel:
		skipped := append([]convcore.ToolUseBlock{s.CurrentTool}, s.RemainingTools...)
		next := convcore.CancellingTool{SkippedTools: skipped, PersistedToolIDs: s.PersistedToolIDs}
		return next, []convcore.Effect{
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.AbortTool{ConversationID: cctx.ConversationID, ToolUseID: s.CurrentTool.ID},
		}, nil

	default:
		return rejectInvalid(s, event)
	}
}

func fromAwaitingContinuation(_ convcore.AwaitingContinuation, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch ev := event.(type) {
	case convcore.UserMessage:
		return rejectBusy()

	case convcore.ContinuationResponse:
		next := convcore.ContextExhausted{Summary: ev.Summary}
		return next, []convcore.Effect{
			convcore.PersistContinuationMessage{ConversationID: cctx.ConversationID, Summary: ev.Summary},
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyContextExhausted{ConversationID: cctx.ConversationID, Summary: ev.Summary},
			convcore.NotifyAgentDone{ConversationID: cctx.ConversationID, FinalState: next},
		}, nil

	case convcore.ContinuationFailed:
		next := convcore.Error{Kind: convcore.ErrorKindUnknown, Message: ev.Message, Attempt: 1}
		return next, []convcore.Effect{
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyAgentDone{ConversationID: cctx.ConversationID, FinalState: next},
		}, nil

	default:
		return rejectInvalid(convcore.AwaitingContinuation{}, event)
	}
}

func fromAwaitingSubAgents(s convcore.AwaitingSubAgents, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch ev := event.(type) {
	case convcore.UserMessage:
		return rejectBusy()

	case convcore.SubAgentResult:
		pending := map[string]string{}
		for id, task := range s.Pending {
			if id != ev.ID {
				pending[id] = task
			}
		}
		completed := map[string]convcore.SubAgentOutcome{}
		for id, o := range s.CompletedResults {
			completed[id] = o
		}
		completed[ev.ID] = ev.Outcome

		if len(pending) > 0 {
			next := convcore.AwaitingSubAgents{Pending: pending, CompletedResults: completed}
			return next, []convcore.Effect{
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			}, nil
		}

		summary := summarizeOutcomes(completed)
		resultBlock := convcore.ToolResultBlock{ToolUseID: "sub_agents", Content: summary}
		resultMsg := convcore.Message{
			ID:             newMessageID(cctx),
			ConversationID: cctx.ConversationID,
			Role:           convcore.RoleUser,
			Blocks:         []convcore.ContentBlock{resultBlock},
			CreatedAt:      cctx.Now,
		}
		next := convcore.LlmRequesting{Attempt: 1}
		return next, []convcore.Effect{
			convcore.PersistToolResult{ConversationID: cctx.ConversationID, Result: resultBlock},
			convcore.NotifyMessage{ConversationID: cctx.ConversationID, Message: resultMsg},
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.RequestLlm{ConversationID: cctx.ConversationID, Attempt: 1},
		}, nil

	case convcore.UserCancel:
		pending := map[string]bool{}
		var ids []string
		for id := range s.Pending {
			pending[id] = true
			ids = append(ids, id)
		}
		next := convcore.CancellingSubAgents{Pending: pending}
		return next, []convcore.Effect{
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.CancelSubAgents{ConversationIDs: ids},
		}, nil

	default:
		return rejectInvalid(s, event)
	}
}

func fromCancellingLlm(_ convcore.CancellingLlm, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch event.(type) {
	case convcore.UserMessage:
		return rejectCancelling()
	case convcore.LlmAborted, convcore.LlmResponse, convcore.LlmError:
		return toIdleAfterCancel(cctx)
	default:
		return rejectInvalid(convcore.CancellingLlm{}, event)
	}
}

func fromCancellingTool(s convcore.CancellingTool, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch event.(type) {
	case convcore.UserMessage:
		return rejectCancelling()
	case convcore.ToolAborted, convcore.ToolComplete:
		return toIdleAfterCancelTool(cctx, s.SkippedTools, s.PersistedToolIDs)
	default:
		return rejectInvalid(s, event)
	}
}

func fromCancellingSubAgents(s convcore.CancellingSubAgents, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch ev := event.(type) {
	case convcore.UserMessage:
		return rejectCancelling()
	case convcore.SubAgentResult:
		remaining := map[string]bool{}
		for id := range s.Pending {
			if id != ev.ID {
				remaining[id] = true
			}
		}
		if len(remaining) > 0 {
			next := convcore.CancellingSubAgents{Pending: remaining}
			return next, []convcore.Effect{
				convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
				convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			}, nil
		}
		return toIdleAfterCancel(cctx)
	default:
		return rejectInvalid(s, event)
	}
}

// toIdleAfterCancel is the common exit path for CancellingLlm and
// CancellingSubAgents: there is no tool_use gap to fill, so it returns to
// Idle directly.
func toIdleAfterCancel(cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	next := convcore.Idle{}
	return next, []convcore.Effect{
		convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
		convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
		convcore.NotifyAgentDone{ConversationID: cctx.ConversationID, FinalState: next},
	}, nil
}

// toIdleAfterCancelTool is CancellingTool's exit path: every tool_use id in
// skipped that never got a persisted result (the one that was aborted, plus
// any that were still queued) gets a synthetic is_error tool_result before
// the conversation returns to Idle, so the transcript never has a dangling
// tool_use with no matching result.
func toIdleAfterCancelTool(cctx ConvContext, skipped []convcore.ToolUseBlock, persistedToolIDs map[string]bool) (convcore.ConvState, []convcore.Effect, error) {
	next := convcore.Idle{}
	var effects []convcore.Effect
	for _, tu := range skipped {
		if persistedToolIDs[tu.ID] {
			continue
		}
		result := convcore.ToolResultBlock{ToolUseID: tu.ID, Content: "cancelled by user", IsError: true}
		effects = append(effects,
			convcore.PersistToolResult{ConversationID: cctx.ConversationID, Result: result},
			convcore.NotifyMessage{ConversationID: cctx.ConversationID, Message: convcore.Message{
				ID:             newMessageID(cctx),
				ConversationID: cctx.ConversationID,
				Role:           convcore.RoleUser,
				Blocks:         []convcore.ContentBlock{result},
				CreatedAt:      cctx.Now,
			}},
		)
	}
	effects = append(effects,
		convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
		convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
		convcore.NotifyAgentDone{ConversationID: cctx.ConversationID, FinalState: next},
	)
	return next, effects, nil
}

func fromError(s convcore.Error, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	switch ev := event.(type) {
	case convcore.UserMessage:
		msg := convcore.Message{
			ID:             newMessageID(cctx),
			ConversationID: cctx.ConversationID,
			LocalID:        ev.LocalID,
			Role:           convcore.RoleUser,
			Blocks:         []convcore.ContentBlock{convcore.TextBlock{Text: ev.Text}},
			UserAgent:      ev.UserAgent,
			CreatedAt:      cctx.Now,
		}
		next := convcore.LlmRequesting{Attempt: 1}
		return next, []convcore.Effect{
			convcore.PersistUserMessage{Message: msg},
			convcore.NotifyMessage{ConversationID: cctx.ConversationID, Message: msg},
			convcore.PersistState{ConversationID: cctx.ConversationID, State: next},
			convcore.NotifyStateChange{ConversationID: cctx.ConversationID, State: next},
			convcore.RequestLlm{ConversationID: cctx.ConversationID, Attempt: 1},
		}, nil
	default:
		return rejectInvalid(s, event)
	}
}

func fromTerminal(state convcore.ConvState, event convcore.Event, cctx ConvContext) (convcore.ConvState, []convcore.Effect, error) {
	if _, ok := state.(convcore.ContextExhausted); ok {
		if _, ok := event.(convcore.UserMessage); ok {
			return nil, nil, &TransitionError{
				Kind:    convcore.ErrorKindInvalidRequest,
				Message: "conversation context is exhausted; start a new conversation",
			}
		}
	}
	return rejectInvalid(state, event)
}

func crossesThreshold(usage convcore.Usage, contextWindow int64) bool {
	if contextWindow <= 0 {
		return false
	}
	u := usage
	u.ContextWindow = contextWindow
	return u.Fraction() >= ContinuationThreshold
}

func toolUseBlocks(blocks []convcore.ContentBlock) []convcore.ToolUseBlock {
	var out []convcore.ToolUseBlock
	for _, b := range blocks {
		if tu, ok := b.(convcore.ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func summarizeOutcomes(outcomes map[string]convcore.SubAgentOutcome) string {
	summary := ""
	for id, o := range outcomes {
		status := "failed"
		if o.Success {
			status = "succeeded"
		}
		summary += fmt.Sprintf("agent %s %s: %s\n", id, status, o.Summary)
	}
	return summary
}
