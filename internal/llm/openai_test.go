package llm

import (
	"encoding/json"
	"testing"

	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

func TestConvertMessagesToOpenAI(t *testing.T) {
	history := []convcore.Message{
		{Role: convcore.RoleUser, Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "hello"}}},
		{Role: convcore.RoleAssistant, Blocks: []convcore.ContentBlock{
			convcore.ToolUseBlock{ID: "call_1", Name: "read", Input: json.RawMessage(`{"path":"a.go"}`)},
		}},
		{Role: convcore.RoleUser, Blocks: []convcore.ContentBlock{
			convcore.ToolResultBlock{ToolUseID: "call_1", Content: "package main"},
		}},
	}

	got, err := convertMessagesToOpenAI(history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[1].ToolCalls[0].Function.Name != "read" {
		t.Errorf("expected tool call name %q, got %q", "read", got[1].ToolCalls[0].Function.Name)
	}
	if got[2].ToolCallID != "call_1" {
		t.Errorf("expected tool_call_id %q, got %q", "call_1", got[2].ToolCallID)
	}
}

func TestConvertMessagesToOpenAISkipsSystem(t *testing.T) {
	history := []convcore.Message{
		{Role: convcore.RoleSystem, Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "you are phoenix"}}},
		{Role: convcore.RoleUser, Blocks: []convcore.ContentBlock{convcore.TextBlock{Text: "hi"}}},
	}

	got, err := convertMessagesToOpenAI(history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected system message to be skipped, got %d messages", len(got))
	}
}

func TestConvertToolsToOpenAI(t *testing.T) {
	schemas := []executor.ToolSchema{
		{Name: "read", Description: "reads a file", InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)},
		{Name: "broken", Description: "has invalid schema", InputSchema: json.RawMessage(`not json`)},
	}

	got := convertToolsToOpenAI(schemas)
	if len(got) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(got))
	}
	if got[0].Function.Name != "read" {
		t.Errorf("expected first tool name %q, got %q", "read", got[0].Function.Name)
	}
	if got[1].Function.Parameters == nil {
		t.Errorf("expected fallback schema for invalid input, got nil")
	}
}
