package compaction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// FromConvMessages flattens pkg/convcore's ContentBlock union into the flat
// Role/Content/ToolCalls/ToolResults shape this package's token-estimation
// and chunking functions already operate on, so the continuation flow can
// reuse them without this package taking a dependency on convcore's block
// types throughout.
func FromConvMessages(history []convcore.Message) []*Message {
	out := make([]*Message, 0, len(history))
	for _, msg := range history {
		m := &Message{
			Role:      string(msg.Role),
			Timestamp: msg.CreatedAt.Unix(),
			ID:        msg.ID,
		}
		var toolCalls, toolResults []string
		for _, block := range msg.Blocks {
			switch b := block.(type) {
			case convcore.TextBlock:
				m.Content += b.Text
			case convcore.ToolUseBlock:
				if encoded, err := json.Marshal(b); err == nil {
					toolCalls = append(toolCalls, string(encoded))
				}
			case convcore.ToolResultBlock:
				toolResults = append(toolResults, b.Content)
			case convcore.ContinuationBlock:
				m.Content += "[continuation: " + b.Reason + "]"
			}
		}
		if len(toolCalls) > 0 {
			if encoded, err := json.Marshal(toolCalls); err == nil {
				m.ToolCalls = string(encoded)
			}
		}
		if len(toolResults) > 0 {
			if encoded, err := json.Marshal(toolResults); err == nil {
				m.ToolResults = string(encoded)
			}
		}
		out = append(out, m)
	}
	return out
}

// ConvSummarizer adapts the executor's LLM client (executor.LlmClient, taking
// an executor.LlmRequest{ConversationID, Model, History}) to this package's
// Summarizer interface, so SummarizeWithFallback/SummarizeInStages can drive
// it one chunk at a time instead of handing the provider the whole,
// potentially over-budget history in one call.
type ConvSummarizer struct {
	ConversationID string
	ModelID        string
	ContextWindow  int64

	// Complete performs the actual provider call. The executor sets it to
	// its llmContinuation method; kept as a func value rather than an
	// interface so this package doesn't need to import internal/executor
	// (which already imports this package's caller, internal/executor/conv.go).
	Complete func(ctx context.Context, conversationID string, modelID string, contextWindow int64, history []convcore.Message) (string, error)
}

// GenerateSummary implements Summarizer by translating the flat chunk back
// into convcore.Message text blocks before delegating to Complete.
func (s ConvSummarizer) GenerateSummary(ctx context.Context, messages []*Message, _ *SummarizationConfig) (string, error) {
	history := make([]convcore.Message, 0, len(messages))
	for _, msg := range messages {
		history = append(history, convcore.Message{
			Role:      convcore.Role(msg.Role),
			Blocks:    []convcore.ContentBlock{convcore.TextBlock{Text: msg.Content}},
			CreatedAt: time.Unix(msg.Timestamp, 0).UTC(),
		})
	}
	return s.Complete(ctx, s.ConversationID, s.ModelID, s.ContextWindow, history)
}
