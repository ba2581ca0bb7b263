package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

func TestMemoryStoreCreateGet(t *testing.T) {
	store := NewMemoryStore()
	job := &Job{ID: "job-1", ConversationID: "conv-1", ToolName: "long_task", ToolUseID: "call-1", Status: StatusQueued, CreatedAt: time.Now()}

	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.ToolName != "long_task" {
		t.Fatalf("Get returned %+v", got)
	}

	// mutating the returned job must not leak into the store
	got.ToolName = "mutated"
	again, _ := store.Get(context.Background(), "job-1")
	if again.ToolName != "long_task" {
		t.Fatalf("store was mutated through a returned clone")
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore()
	job := &Job{ID: "job-1", ConversationID: "conv-1", Status: StatusQueued, CreatedAt: time.Now()}
	_ = store.Create(context.Background(), job)

	job.Status = StatusSucceeded
	job.Result = &convcore.ToolResultBlock{ToolUseID: "call-1", Content: "done"}
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := store.Get(context.Background(), "job-1")
	if got.Status != StatusSucceeded || got.Result == nil || got.Result.Content != "done" {
		t.Fatalf("Update did not persist: %+v", got)
	}
}

func TestMemoryStoreListFiltersByConversation(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Job{ID: "job-1", ConversationID: "conv-a", CreatedAt: time.Now()})
	_ = store.Create(context.Background(), &Job{ID: "job-2", ConversationID: "conv-b", CreatedAt: time.Now()})

	jobs, err := store.List(context.Background(), "conv-a", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("List(conv-a) = %+v, want just job-1", jobs)
	}
}

func TestMemoryStorePrune(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Job{ID: "old", ConversationID: "conv-1", CreatedAt: time.Now().Add(-2 * time.Hour)})
	_ = store.Create(context.Background(), &Job{ID: "new", ConversationID: "conv-1", CreatedAt: time.Now()})

	pruned, err := store.Prune(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	if got, _ := store.Get(context.Background(), "old"); got != nil {
		t.Fatal("expected old job to be pruned")
	}
	if got, _ := store.Get(context.Background(), "new"); got == nil {
		t.Fatal("expected new job to survive pruning")
	}
}

func TestMemoryStoreCancel(t *testing.T) {
	store := NewMemoryStore()
	job := &Job{ID: "job-1", ConversationID: "conv-1", Status: StatusRunning, CreatedAt: time.Now()}
	_ = store.Create(context.Background(), job)

	cancelled := false
	store.SetCancelFunc("job-1", func() { cancelled = true })

	if err := store.Cancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancelFunc to be invoked")
	}
	got, _ := store.Get(context.Background(), "job-1")
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
}
