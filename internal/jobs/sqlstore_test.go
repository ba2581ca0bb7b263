package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/internal/storage"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// newTestSQLStore mirrors internal/storage's own newTestStore helper: an
// in-memory sqlite DB, migrated through the shared migrations package so
// the tool_jobs table exists.
func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := storage.Open(context.Background(), "sqlite", "file::memory:?cache=shared", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// tool_jobs has a foreign key on conversations, so seed one row through
	// the same *sql.DB before exercising the jobs store directly.
	convStore := storage.NewSQLStore(db, "sqlite")
	if _, _, err := convStore.CreateConversation(context.Background(), "conv-1", statemachine.ModelInfo{ID: "claude-test", ContextWindow: 200000}, "/work", "conv-1"); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return NewSQLStore(db, "sqlite")
}

func TestSQLStoreCreateAndGet(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	job := &Job{ID: "job-1", ConversationID: "conv-1", ToolName: "long_task", ToolUseID: "call-1", Status: StatusQueued, CreatedAt: time.Now().UTC()}

	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.ToolName != "long_task" || got.Status != StatusQueued {
		t.Fatalf("Get = %+v", got)
	}
}

func TestSQLStoreUpdatePersistsResult(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	job := &Job{ID: "job-1", ConversationID: "conv-1", ToolName: "long_task", ToolUseID: "call-1", Status: StatusQueued, CreatedAt: time.Now().UTC()}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	job.Status = StatusSucceeded
	job.FinishedAt = time.Now().UTC()
	job.Result = &convcore.ToolResultBlock{ToolUseID: "call-1", Content: "all done"}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusSucceeded || got.Result == nil || got.Result.Content != "all done" {
		t.Fatalf("Get after Update = %+v", got)
	}
}

func TestSQLStoreListFiltersAndOrders(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	_ = store.Create(ctx, &Job{ID: "job-1", ConversationID: "conv-1", Status: StatusQueued, CreatedAt: base})
	_ = store.Create(ctx, &Job{ID: "job-2", ConversationID: "conv-1", Status: StatusQueued, CreatedAt: base.Add(time.Second)})

	jobs, err := store.List(ctx, "conv-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("List returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != "job-2" {
		t.Fatalf("expected newest-first ordering, got %q first", jobs[0].ID)
	}
}

func TestSQLStorePrune(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	_ = store.Create(ctx, &Job{ID: "old", ConversationID: "conv-1", Status: StatusSucceeded, CreatedAt: time.Now().Add(-2 * time.Hour).UTC()})
	_ = store.Create(ctx, &Job{ID: "new", ConversationID: "conv-1", Status: StatusSucceeded, CreatedAt: time.Now().UTC()})

	pruned, err := store.Prune(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	if got, _ := store.Get(ctx, "old"); got != nil {
		t.Fatal("expected old job to be pruned")
	}
}

func TestSQLStoreCancel(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	_ = store.Create(ctx, &Job{ID: "job-1", ConversationID: "conv-1", Status: StatusRunning, CreatedAt: time.Now().UTC()})

	if err := store.Cancel(ctx, "job-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
}
