// Package recovery implements the startup crash-recovery pass described in
// spec.md §4.5/§8 (property 4/10) and SPEC_FULL.md §6.5: before the server
// starts accepting requests, every non-terminal conversation's state is
// reset to Idle (the in-flight LLM call, tool, or sub-agent group that
// produced it is gone along with the process that ran it) and any
// tool_use block left without a paired tool_result is repaired with a
// synthetic error result, so the next LLM turn sees a consistent
// transcript instead of a dangling call.
//
// This is adapted from the teacher's internal/sessions/transcript_repair.go
// (RepairToolCallPairing): same pending-call bookkeeping, but where the
// teacher drops an orphaned tool result, phoenix's recovery pass
// synthesizes one instead, since dropping would silently erase the
// assistant's tool_use block from a transcript the LLM has already seen.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/internal/storage"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// Report summarizes what the recovery pass did, logged once at startup.
type Report struct {
	ConversationsReset     int64
	ConversationsResumed   int
	OrphanToolUsesRepaired int
}

// Run resets in-flight state, repairs orphaned tool_use blocks, and returns
// the ConversationInfo for every conversation cmd/phoenix must restart an
// actor for via Executor.Start.
func Run(ctx context.Context, store *storage.SQLStore, log *slog.Logger) ([]executor.ConversationInfo, Report, error) {
	if log == nil {
		log = slog.Default()
	}

	reset, err := store.ResetInFlightToIdle(ctx)
	if err != nil {
		return nil, Report{}, fmt.Errorf("recovery: reset in-flight conversations: %w", err)
	}

	rows, err := store.ListResumable(ctx)
	if err != nil {
		return nil, Report{}, fmt.Errorf("recovery: list resumable conversations: %w", err)
	}

	report := Report{ConversationsReset: reset}
	infos := make([]executor.ConversationInfo, 0, len(rows))
	for _, row := range rows {
		repaired, err := repairOrphanToolUses(ctx, store, row.Info.ConversationID)
		if err != nil {
			return nil, Report{}, fmt.Errorf("recovery: repair %s: %w", row.Info.ConversationID, err)
		}
		if repaired > 0 {
			log.Warn("synthesized missing tool results during crash recovery",
				"conversation_id", row.Info.ConversationID, "count", repaired)
		}
		report.OrphanToolUsesRepaired += repaired
		infos = append(infos, row.Info)
	}
	report.ConversationsResumed = len(infos)

	log.Info("crash recovery complete",
		"reset", report.ConversationsReset,
		"resumed", report.ConversationsResumed,
		"orphans_repaired", report.OrphanToolUsesRepaired)
	return infos, report, nil
}

// messageStore is the narrow seam repairOrphanToolUses needs, so the
// pairing algorithm can be tested against a fake without a real database.
type messageStore interface {
	ListMessages(ctx context.Context, conversationID string) ([]convcore.Message, error)
	PersistToolResult(ctx context.Context, conversationID string, result convcore.ToolResultBlock) error
}

// repairOrphanToolUses walks a conversation's transcript in order, tracking
// tool_use IDs that have not yet seen a matching tool_result (mirroring
// RepairToolCallPairing's pending map + pendingOrder), and persists a
// synthetic IsError tool_result for every one still pending at the end.
func repairOrphanToolUses(ctx context.Context, store messageStore, conversationID string) (int, error) {
	messages, err := store.ListMessages(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}

	pending := map[string]convcore.ToolUseBlock{}
	var order []string
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			switch b := block.(type) {
			case convcore.ToolUseBlock:
				if _, seen := pending[b.ID]; !seen {
					order = append(order, b.ID)
				}
				pending[b.ID] = b
			case convcore.ToolResultBlock:
				delete(pending, b.ToolUseID)
			}
		}
	}

	repaired := 0
	for _, id := range order {
		toolUse, stillPending := pending[id]
		if !stillPending {
			continue
		}
		result := convcore.ToolResultBlock{
			ToolUseID: toolUse.ID,
			Content:   fmt.Sprintf("missing tool result for %q; synthesized during crash recovery", toolUse.Name),
			IsError:   true,
		}
		if err := store.PersistToolResult(ctx, conversationID, result); err != nil {
			return repaired, fmt.Errorf("persist synthetic result for %s: %w", toolUse.ID, err)
		}
		repaired++
	}
	return repaired, nil
}
