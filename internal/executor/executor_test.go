package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// fakeStore is a minimal in-memory Store stub, grounded on the teacher's
// mockTool/mock-collaborator convention for executor tests.
type fakeStore struct {
	mu       sync.Mutex
	messages map[string][]convcore.Message
	states   map[string]convcore.ConvState
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: map[string][]convcore.Message{}, states: map[string]convcore.ConvState{}}
}

func (s *fakeStore) PersistUserMessage(ctx context.Context, msg convcore.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}

func (s *fakeStore) PersistAgentMessage(ctx context.Context, msg convcore.Message) error {
	return s.PersistUserMessage(ctx, msg)
}

func (s *fakeStore) PersistToolResult(ctx context.Context, conversationID string, result convcore.ToolResultBlock) error {
	return nil
}

func (s *fakeStore) PersistContinuationMessage(ctx context.Context, conversationID, summary string) error {
	return nil
}

func (s *fakeStore) PersistState(ctx context.Context, conversationID string, state convcore.ConvState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = state
	return nil
}

func (s *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]convcore.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]convcore.Message(nil), s.messages[conversationID]...), nil
}

func (s *fakeStore) CreateSubAgent(ctx context.Context, parentID, childID string) (ConversationInfo, error) {
	return ConversationInfo{ConversationID: childID, ParentID: parentID, IsSubAgent: true}, nil
}

// fakeLlm records the model it was asked to complete against.
type fakeLlm struct {
	mu         sync.Mutex
	gotModels  []statemachine.ModelInfo
	completeFn func(req LlmRequest) (LlmResult, error)
}

func (l *fakeLlm) Complete(ctx context.Context, req LlmRequest) (LlmResult, error) {
	l.mu.Lock()
	l.gotModels = append(l.gotModels, req.Model)
	l.mu.Unlock()
	if l.completeFn != nil {
		return l.completeFn(req)
	}
	return LlmResult{Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "hi"}}}, nil
}

func (l *fakeLlm) Continuation(ctx context.Context, req LlmRequest) (string, error) {
	return "summary", nil
}

func (l *fakeLlm) models() []statemachine.ModelInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]statemachine.ModelInfo(nil), l.gotModels...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Publish(conversationID, eventType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

type fakeToolRunner struct{}

func (fakeToolRunner) Get(name string) (Tool, bool) { return nil, false }
func (fakeToolRunner) All() []Tool                  { return nil }

func newTestExecutor(store Store, llm LlmClient, notifier Notifier) *Executor {
	return New(Config{
		Store:     store,
		Llm:       llm,
		Tools:     fakeToolRunner{},
		Notifier:  notifier,
		InboxSize: 8,
	})
}

func TestExecutorDispatchUnknownConversation(t *testing.T) {
	ex := newTestExecutor(newFakeStore(), &fakeLlm{}, &fakeNotifier{})
	err := ex.Dispatch(context.Background(), "missing", convcore.UserMessage{Text: "hi"})
	if err == nil {
		t.Fatal("expected error dispatching to an unregistered conversation")
	}
}

func TestExecutorRunningReflectsStart(t *testing.T) {
	ex := newTestExecutor(newFakeStore(), &fakeLlm{}, &fakeNotifier{})
	if ex.Running("conv-1") {
		t.Fatal("expected Running() false before Start")
	}
	ex.Start(ConversationInfo{ConversationID: "conv-1", Model: statemachine.ModelInfo{ID: "claude-test", ContextWindow: 200000}}, convcore.Idle{})
	if !ex.Running("conv-1") {
		t.Fatal("expected Running() true after Start")
	}
}

func TestExecutorDispatchUserMessageDrivesLlmRequest(t *testing.T) {
	llm := &fakeLlm{}
	ex := newTestExecutor(newFakeStore(), llm, &fakeNotifier{})
	ex.Start(ConversationInfo{ConversationID: "conv-1", Model: statemachine.ModelInfo{ID: "claude-test", ContextWindow: 200000}}, convcore.Idle{})

	if err := ex.Dispatch(context.Background(), "conv-1", convcore.UserMessage{Text: "hello"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if len(llm.models()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for LLM completion to be invoked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := llm.models()[0].ID; got != "claude-test" {
		t.Errorf("model id = %q, want claude-test", got)
	}
}

func TestExecutorSetModelAppliesToNextRequest(t *testing.T) {
	llm := &fakeLlm{}
	ex := newTestExecutor(newFakeStore(), llm, &fakeNotifier{})
	ex.Start(ConversationInfo{ConversationID: "conv-1", Model: statemachine.ModelInfo{ID: "claude-old", ContextWindow: 100000}}, convcore.Idle{})

	if err := ex.SetModel(context.Background(), "conv-1", statemachine.ModelInfo{ID: "claude-new", ContextWindow: 200000}); err != nil {
		t.Fatalf("SetModel: %v", err)
	}

	if err := ex.Dispatch(context.Background(), "conv-1", convcore.UserMessage{Text: "hello"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if len(llm.models()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for LLM completion to be invoked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := llm.models()[0].ID; got != "claude-new" {
		t.Errorf("model id = %q, want claude-new (SetModel should take effect before the next request)", got)
	}
}

func TestExecutorSetModelUnknownConversation(t *testing.T) {
	ex := newTestExecutor(newFakeStore(), &fakeLlm{}, &fakeNotifier{})
	err := ex.SetModel(context.Background(), "missing", statemachine.ModelInfo{ID: "claude-new"})
	if err == nil {
		t.Fatal("expected error for unregistered conversation")
	}
}
