// Package jobs tracks tools flagged in ExecutorConfig.AsyncTools
// (SPEC_FULL.md §7.5): rather than blocking the conversation's tool queue
// until a long-running tool returns, the executor records a Job, persists
// a synthetic "queued" ToolResult immediately, and lets the tool finish in
// the background. Grounded on the teacher's internal/jobs/store.go, with
// its pkg/models.ToolResult payload replaced by this repo's own
// convcore.ToolResultBlock and its CockroachDB-only SQLStore replaced by
// one built on the shared *sql.DB this module already opens for
// sqlite/postgres (see internal/storage.SQLStore's identical rebind
// convention).
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job represents a detached async tool execution.
type Job struct {
	ID             string
	ConversationID string
	ToolName       string
	ToolUseID      string
	Status         Status
	CreatedAt      time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
	Result         *convcore.ToolResultBlock
	Error          string

	// cancelFunc is set when the job starts and can be called to cancel execution.
	cancelFunc context.CancelFunc
}

// Store persists job records.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, conversationID string, limit, offset int) ([]*Job, error)
	// Prune removes jobs older than the given duration. Returns count of pruned jobs.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	// Cancel marks a running job as failed with a cancellation error.
	Cancel(ctx context.Context, id string) error
}

// MemoryStore keeps jobs in memory; the default when no durable store is
// configured, matching the teacher's fallback for environments without a
// job table.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	keys []string
}

// NewMemoryStore returns a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.keys = append(s.keys, job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) List(ctx context.Context, conversationID string, limit, offset int) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]string, 0, len(s.keys))
	for _, id := range s.keys {
		job := s.jobs[id]
		if job == nil {
			continue
		}
		if conversationID == "" || job.ConversationID == conversationID {
			matched = append(matched, id)
		}
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	result := make([]*Job, 0, end-offset)
	for _, id := range matched[offset:end] {
		result = append(result, cloneJob(s.jobs[id]))
	}
	return result, nil
}

func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var pruned int64
	var newKeys []string

	for _, id := range s.keys {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
		} else {
			newKeys = append(newKeys, id)
		}
	}
	s.keys = newKeys
	return pruned, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	if job.Status == StatusRunning || job.Status == StatusQueued {
		if job.cancelFunc != nil {
			job.cancelFunc()
		}
		job.Status = StatusFailed
		job.Error = "job cancelled"
		job.FinishedAt = time.Now()
	}
	return nil
}

// SetCancelFunc sets the cancel function for a running job.
func (s *MemoryStore) SetCancelFunc(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[id]; ok {
		job.cancelFunc = cancel
	}
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.Result != nil {
		result := *job.Result
		clone.Result = &result
	}
	return &clone
}
