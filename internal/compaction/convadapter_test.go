package compaction

import (
	"context"
	"testing"
	"time"

	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

func TestFromConvMessages(t *testing.T) {
	history := []convcore.Message{
		{
			Role: convcore.RoleUser,
			Blocks: []convcore.ContentBlock{
				convcore.TextBlock{Text: "hello"},
			},
		},
		{
			Role: convcore.RoleAssistant,
			Blocks: []convcore.ContentBlock{
				convcore.TextBlock{Text: "running a tool"},
				convcore.ToolUseBlock{ID: "tu1", Name: "read_file", Input: []byte(`{"path":"a.go"}`)},
			},
		},
		{
			Role: convcore.RoleUser,
			Blocks: []convcore.ContentBlock{
				convcore.ToolResultBlock{ToolUseID: "tu1", Content: "file contents"},
			},
		},
	}

	out := FromConvMessages(history)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[0].Content != "hello" {
		t.Errorf("expected first message content %q, got %q", "hello", out[0].Content)
	}
	if out[1].ToolCalls == "" {
		t.Error("expected assistant message to carry serialized tool calls")
	}
	if out[2].ToolResults == "" {
		t.Error("expected user message to carry serialized tool results")
	}
}

func TestConvSummarizerGenerateSummary(t *testing.T) {
	var gotHistory []convcore.Message
	summarizer := ConvSummarizer{
		ConversationID: "conv-1",
		ModelID:        "claude-3-5-sonnet",
		ContextWindow:  200000,
		Complete: func(ctx context.Context, conversationID, modelID string, contextWindow int64, history []convcore.Message) (string, error) {
			gotHistory = history
			return "a summary", nil
		},
	}

	chunk := []*Message{{Role: "user", Content: "remember this", Timestamp: time.Now().Unix()}}
	summary, err := summarizer.GenerateSummary(context.Background(), chunk, DefaultSummarizationConfig())
	if err != nil {
		t.Fatalf("GenerateSummary returned error: %v", err)
	}
	if summary != "a summary" {
		t.Errorf("expected summary %q, got %q", "a summary", summary)
	}
	if len(gotHistory) != 1 || gotHistory[0].Role != convcore.RoleUser {
		t.Fatalf("expected translated history with one user message, got %+v", gotHistory)
	}
}

func TestSummarizeWithFallbackUsesConvSummarizer(t *testing.T) {
	history := []convcore.Message{
		{Role: convcore.RoleUser, Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "first"}}},
		{Role: convcore.RoleAssistant, Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "second"}}},
	}
	calls := 0
	summarizer := ConvSummarizer{
		ConversationID: "conv-1",
		ModelID:        "gpt-4o",
		ContextWindow:  128000,
		Complete: func(ctx context.Context, conversationID, modelID string, contextWindow int64, history []convcore.Message) (string, error) {
			calls++
			return "ok", nil
		},
	}

	config := DefaultSummarizationConfig()
	config.ContextWindow = ResolveContextWindowTokens(128000, DefaultContextWindow)
	summary, err := SummarizeWithFallback(context.Background(), FromConvMessages(history), summarizer, config)
	if err != nil {
		t.Fatalf("SummarizeWithFallback returned error: %v", err)
	}
	if summary != "ok" {
		t.Errorf("expected summary %q, got %q", "ok", summary)
	}
	if calls == 0 {
		t.Error("expected ConvSummarizer.Complete to be invoked")
	}
}
