package recovery

import (
	"context"
	"testing"

	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

type fakeMessageStore struct {
	messages []convcore.Message
	results  []convcore.ToolResultBlock
}

func (f *fakeMessageStore) ListMessages(ctx context.Context, conversationID string) ([]convcore.Message, error) {
	return f.messages, nil
}

func (f *fakeMessageStore) PersistToolResult(ctx context.Context, conversationID string, result convcore.ToolResultBlock) error {
	f.results = append(f.results, result)
	return nil
}

func TestRepairOrphanToolUsesSynthesizesMissingResult(t *testing.T) {
	store := &fakeMessageStore{
		messages: []convcore.Message{
			{Role: convcore.RoleAssistant, Blocks: []convcore.ContentBlock{
				convcore.ToolUseBlock{ID: "call_1", Name: "exec"},
			}},
		},
	}

	repaired, err := repairOrphanToolUses(context.Background(), store, "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected 1 repaired result, got %d", repaired)
	}
	if len(store.results) != 1 || store.results[0].ToolUseID != "call_1" || !store.results[0].IsError {
		t.Fatalf("expected a synthetic IsError result for call_1, got %+v", store.results)
	}
}

func TestRepairOrphanToolUsesSkipsPairedCalls(t *testing.T) {
	store := &fakeMessageStore{
		messages: []convcore.Message{
			{Role: convcore.RoleAssistant, Blocks: []convcore.ContentBlock{
				convcore.ToolUseBlock{ID: "call_1", Name: "exec"},
			}},
			{Role: convcore.RoleUser, Blocks: []convcore.ContentBlock{
				convcore.ToolResultBlock{ToolUseID: "call_1", Content: "ok"},
			}},
		},
	}

	repaired, err := repairOrphanToolUses(context.Background(), store, "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired != 0 {
		t.Fatalf("expected 0 repaired results for a paired call, got %d", repaired)
	}
	if len(store.results) != 0 {
		t.Fatalf("expected no persisted results, got %+v", store.results)
	}
}

func TestRepairOrphanToolUsesHandlesMultipleOrphans(t *testing.T) {
	store := &fakeMessageStore{
		messages: []convcore.Message{
			{Role: convcore.RoleAssistant, Blocks: []convcore.ContentBlock{
				convcore.ToolUseBlock{ID: "call_1", Name: "read"},
				convcore.ToolUseBlock{ID: "call_2", Name: "write"},
			}},
			{Role: convcore.RoleUser, Blocks: []convcore.ContentBlock{
				convcore.ToolResultBlock{ToolUseID: "call_1", Content: "ok"},
			}},
		},
	}

	repaired, err := repairOrphanToolUses(context.Background(), store, "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected exactly call_2 to be repaired, got %d", repaired)
	}
	if store.results[0].ToolUseID != "call_2" {
		t.Fatalf("expected repaired result for call_2, got %+v", store.results[0])
	}
}
