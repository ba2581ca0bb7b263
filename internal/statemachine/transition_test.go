package statemachine

import (
	"testing"
	"time"

	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

func testCtx() ConvContext {
	n := 0
	return ConvContext{
		ConversationID: "conv-1",
		Model:          ModelInfo{ID: "claude-sonnet", ContextWindow: 1000},
		Now:            time.Unix(0, 0),
		NextMessageID: func() string {
			n++
			return "msg-" + string(rune('a'+n))
		},
	}
}

func hasEffect(effects []convcore.Effect, name string) bool {
	for _, e := range effects {
		if e.Name() == name {
			return true
		}
	}
	return false
}

func TestIdlePlusUserMessage(t *testing.T) {
	next, effects, err := Transition(convcore.Idle{}, convcore.UserMessage{LocalID: "l1", Text: "hi"}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.LlmRequesting); !ok {
		t.Fatalf("want LlmRequesting, got %s", next.Name())
	}
	for _, want := range []string{"persist_user_message", "persist_state", "request_llm"} {
		if !hasEffect(effects, want) {
			t.Errorf("missing effect %s", want)
		}
	}
}

func TestBusyStatesRejectUserMessage(t *testing.T) {
	states := []convcore.ConvState{
		convcore.LlmRequesting{Attempt: 1},
		convcore.ToolExecuting{CurrentTool: convcore.ToolUseBlock{ID: "t1"}, PersistedToolIDs: map[string]bool{}},
		convcore.AwaitingContinuation{},
		convcore.AwaitingSubAgents{Pending: map[string]string{"a": "task"}, CompletedResults: map[string]convcore.SubAgentOutcome{}},
	}
	for _, s := range states {
		_, _, err := Transition(s, convcore.UserMessage{Text: "hi"}, testCtx())
		te, ok := err.(*TransitionError)
		if !ok || te.Kind != convcore.ErrorKindAgentBusy {
			t.Errorf("state %s: want AgentBusy, got %v", s.Name(), err)
		}
	}
}

func TestCancellingStatesRejectUserMessage(t *testing.T) {
	states := []convcore.ConvState{
		convcore.CancellingLlm{},
		convcore.CancellingTool{},
		convcore.CancellingSubAgents{Pending: map[string]bool{"a": true}},
	}
	for _, s := range states {
		_, _, err := Transition(s, convcore.UserMessage{Text: "hi"}, testCtx())
		te, ok := err.(*TransitionError)
		if !ok || te.Kind != convcore.ErrorKindCancellationInProgress {
			t.Errorf("state %s: want CancellationInProgress, got %v", s.Name(), err)
		}
	}
}

func TestLlmResponseWithToolUseEntersToolExecuting(t *testing.T) {
	resp := convcore.LlmResponse{
		Blocks: []convcore.ContentBlock{
			convcore.ToolUseBlock{ID: "call-1", Name: "read_file"},
		},
	}
	next, effects, err := Transition(convcore.LlmRequesting{Attempt: 1}, resp, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	te, ok := next.(convcore.ToolExecuting)
	if !ok {
		t.Fatalf("want ToolExecuting, got %s", next.Name())
	}
	if te.CurrentTool.ID != "call-1" {
		t.Errorf("current tool = %s, want call-1", te.CurrentTool.ID)
	}
	if !hasEffect(effects, "execute_tool") {
		t.Error("missing execute_tool effect")
	}
}

func TestLlmResponseTextOnlyReturnsToIdle(t *testing.T) {
	resp := convcore.LlmResponse{Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "done"}}}
	next, effects, err := Transition(convcore.LlmRequesting{Attempt: 1}, resp, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.Idle); !ok {
		t.Fatalf("want Idle, got %s", next.Name())
	}
	if !hasEffect(effects, "notify_agent_done") {
		t.Error("missing notify_agent_done effect")
	}
}

func TestLlmResponseCrossingThresholdEntersAwaitingContinuation(t *testing.T) {
	resp := convcore.LlmResponse{
		Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "working"}},
		Usage:  convcore.Usage{InputTokens: 950},
	}
	next, effects, err := Transition(convcore.LlmRequesting{Attempt: 1}, resp, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.AwaitingContinuation); !ok {
		t.Fatalf("want AwaitingContinuation, got %s", next.Name())
	}
	if !hasEffect(effects, "request_continuation") {
		t.Error("missing request_continuation effect")
	}
}

func TestSubAgentCrossingThresholdFailsInsteadOfContinuation(t *testing.T) {
	cctx := testCtx()
	cctx.IsSubAgent = true
	resp := convcore.LlmResponse{
		Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "working"}},
		Usage:  convcore.Usage{InputTokens: 999},
	}
	next, effects, err := Transition(convcore.LlmRequesting{Attempt: 1}, resp, cctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.Failed); !ok {
		t.Fatalf("sub-agent crossing threshold must fail rather than continuation, got %s", next.Name())
	}
	if hasEffect(effects, "request_continuation") {
		t.Error("sub-agent must never run the continuation flow")
	}
	if !hasEffect(effects, "notify_agent_done") {
		t.Error("missing notify_agent_done so parent routing can pick up the failure")
	}
}

func TestLlmErrorRetryThenExhausts(t *testing.T) {
	cctx := testCtx()
	state := convcore.ConvState(convcore.LlmRequesting{Attempt: 1})
	for attempt := 1; attempt < MaxAttempts; attempt++ {
		next, effects, err := Transition(state, convcore.LlmError{Kind: convcore.ErrorKindNetwork}, cctx)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", attempt, err)
		}
		lr, ok := next.(convcore.LlmRequesting)
		if !ok || lr.Attempt != attempt+1 {
			t.Fatalf("attempt %d: want LlmRequesting{%d}, got %v", attempt, attempt+1, next)
		}
		if !hasEffect(effects, "backoff") {
			t.Errorf("attempt %d: missing backoff effect", attempt)
		}
		state = next
	}
	next, effects, err := Transition(state, convcore.LlmError{Kind: convcore.ErrorKindNetwork}, cctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.Error); !ok {
		t.Fatalf("want Error after exhausting retry budget, got %s", next.Name())
	}
	if !hasEffect(effects, "notify_agent_done") {
		t.Error("missing notify_agent_done effect")
	}
}

func TestLlmErrorNonRetryableFailsImmediately(t *testing.T) {
	next, _, err := Transition(convcore.LlmRequesting{Attempt: 1}, convcore.LlmError{Kind: convcore.ErrorKindInvalidRequest}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errState, ok := next.(convcore.Error)
	if !ok {
		t.Fatalf("want Error, got %s", next.Name())
	}
	if errState.Kind != convcore.ErrorKindInvalidRequest {
		t.Errorf("kind = %s, want invalid_request", errState.Kind)
	}
}

func TestToolCompleteDequeuesAndRunsNext(t *testing.T) {
	state := convcore.ToolExecuting{
		CurrentTool:      convcore.ToolUseBlock{ID: "t1"},
		RemainingTools:   []convcore.ToolUseBlock{{ID: "t2"}},
		PersistedToolIDs: map[string]bool{},
	}
	next, effects, err := Transition(state, convcore.ToolComplete{ID: "t1", Result: convcore.ToolResultBlock{ToolUseID: "t1"}}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	te, ok := next.(convcore.ToolExecuting)
	if !ok || te.CurrentTool.ID != "t2" {
		t.Fatalf("want ToolExecuting{t2}, got %v", next)
	}
	if !hasEffect(effects, "persist_tool_result") {
		t.Error("missing persist_tool_result effect")
	}
}

func TestToolCompleteIsIdempotentAgainstDoublePersist(t *testing.T) {
	state := convcore.ToolExecuting{
		CurrentTool:      convcore.ToolUseBlock{ID: "t1"},
		PersistedToolIDs: map[string]bool{"t1": true},
	}
	_, effects, err := Transition(state, convcore.ToolComplete{ID: "t1", Result: convcore.ToolResultBlock{ToolUseID: "t1"}}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasEffect(effects, "persist_tool_result") {
		t.Error("tool result already in persisted_tool_ids must not be persisted again")
	}
}

func TestToolCompleteEmptyQueueReturnsToLlmRequesting(t *testing.T) {
	state := convcore.ToolExecuting{CurrentTool: convcore.ToolUseBlock{ID: "t1"}, PersistedToolIDs: map[string]bool{}}
	next, effects, err := Transition(state, convcore.ToolComplete{ID: "t1", Result: convcore.ToolResultBlock{ToolUseID: "t1"}}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.LlmRequesting); !ok {
		t.Fatalf("want LlmRequesting, got %s", next.Name())
	}
	if !hasEffect(effects, "request_llm") {
		t.Error("missing request_llm effect")
	}
}

func TestAwaitingSubAgentsResolvesWhenAllComplete(t *testing.T) {
	state := convcore.AwaitingSubAgents{
		Pending:          map[string]string{"a1": "task"},
		CompletedResults: map[string]convcore.SubAgentOutcome{},
	}
	next, effects, err := Transition(state, convcore.SubAgentResult{ID: "a1", Outcome: convcore.SubAgentOutcome{ConversationID: "a1", Success: true, Summary: "done"}}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.LlmRequesting); !ok {
		t.Fatalf("want LlmRequesting, got %s", next.Name())
	}
	if !hasEffect(effects, "persist_tool_result") {
		t.Error("missing synthetic persist_tool_result effect summarizing outcomes")
	}
}

func TestCancelFromToolExecutingThenAbortedReturnsToIdle(t *testing.T) {
	state := convcore.ToolExecuting{
		CurrentTool:      convcore.ToolUseBlock{ID: "t1"},
		RemainingTools:   []convcore.ToolUseBlock{{ID: "t2"}},
		PersistedToolIDs: map[string]bool{},
	}
	cancelling, effects, err := Transition(state, convcore.UserCancel{}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ct, ok := cancelling.(convcore.CancellingTool)
	if !ok {
		t.Fatalf("want CancellingTool, got %s", cancelling.Name())
	}
	if !hasEffect(effects, "abort_tool") {
		t.Error("missing abort_tool effect")
	}
	if len(ct.SkippedTools) != 2 || ct.SkippedTools[0].ID != "t1" || ct.SkippedTools[1].ID != "t2" {
		t.Fatalf("want skipped tools [t1, t2], got %v", ct.SkippedTools)
	}

	idle, effects, err := Transition(cancelling, convcore.ToolAborted{ID: "t1"}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := idle.(convcore.Idle); !ok {
		t.Fatalf("want Idle after ToolAborted, got %s", idle.Name())
	}
	results := toolResultEffects(effects)
	if len(results) != 2 {
		t.Fatalf("want synthetic tool_result for both skipped tools, got %d", len(results))
	}
	for _, r := range results {
		if !r.Result.IsError {
			t.Errorf("synthetic tool_result for %s should be marked is_error", r.Result.ToolUseID)
		}
	}
}

func TestCancelDoesNotDuplicatePersistedToolResult(t *testing.T) {
	state := convcore.ToolExecuting{
		CurrentTool:      convcore.ToolUseBlock{ID: "t1"},
		PersistedToolIDs: map[string]bool{"t1": true},
	}
	cancelling, _, err := Transition(state, convcore.UserCancel{}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, effects, err := Transition(cancelling, convcore.ToolAborted{ID: "t1"}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toolResultEffects(effects)) != 0 {
		t.Error("t1 already in persisted_tool_ids must not get a synthetic result")
	}
}

func toolResultEffects(effects []convcore.Effect) []convcore.PersistToolResult {
	var out []convcore.PersistToolResult
	for _, e := range effects {
		if r, ok := e.(convcore.PersistToolResult); ok {
			out = append(out, r)
		}
	}
	return out
}

func TestSpawnAgentsCompleteEmitsSpawnEffectsAndEntersAwaitingSubAgents(t *testing.T) {
	state := convcore.ToolExecuting{CurrentTool: convcore.ToolUseBlock{ID: "spawn-1"}, PersistedToolIDs: map[string]bool{}}
	next, effects, err := Transition(state, convcore.SpawnAgentsComplete{
		IDsWithTasks: map[string]string{"a1": "research X", "a2": "research Y"},
	}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	as, ok := next.(convcore.AwaitingSubAgents)
	if !ok {
		t.Fatalf("want AwaitingSubAgents, got %s", next.Name())
	}
	if len(as.Pending) != 2 || as.Pending["a1"] != "research X" || as.Pending["a2"] != "research Y" {
		t.Fatalf("pending mismatch: %v", as.Pending)
	}
	var spawned []string
	for _, e := range effects {
		if s, ok := e.(convcore.SpawnSubAgent); ok {
			spawned = append(spawned, s.AgentID)
		}
	}
	if len(spawned) != 2 {
		t.Fatalf("want 2 spawn_sub_agent effects, got %d", len(spawned))
	}
}

func TestTerminalStateRejectsEvents(t *testing.T) {
	_, _, err := Transition(convcore.ContextExhausted{Summary: "s"}, convcore.UserMessage{Text: "hi"}, testCtx())
	if err == nil {
		t.Fatal("expected error from terminal state")
	}
}

func TestErrorStateAcceptsUserMessageRetry(t *testing.T) {
	next, _, err := Transition(convcore.Error{Kind: convcore.ErrorKindNetwork, Attempt: 3}, convcore.UserMessage{Text: "retry"}, testCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := next.(convcore.LlmRequesting); !ok {
		t.Fatalf("want LlmRequesting, got %s", next.Name())
	}
}
