package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// SQLStore persists jobs to the tool_jobs table, reusing the *sql.DB this
// module already opened for conversation/message storage rather than
// dialing a second, CockroachDB-specific connection the way the teacher's
// jobs.CockroachStore did.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore wraps an already-migrated *sql.DB. driver selects
// placeholder rebinding exactly like storage.NewSQLStore.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) rebind(query string) string {
	if s.driver == "sqlite" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO tool_jobs (id, conversation_id, tool_name, tool_use_id, status, created_at, started_at, finished_at, result_json, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		job.ID,
		job.ConversationID,
		job.ToolName,
		job.ToolUseID,
		string(job.Status),
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		resultJSON,
		nullableString(job.Error),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		UPDATE tool_jobs
		SET status = ?, started_at = ?, finished_at = ?, result_json = ?, error_message = ?
		WHERE id = ?
	`),
		string(job.Status),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		resultJSON,
		nullableString(job.Error),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, conversation_id, tool_name, tool_use_id, status, created_at, started_at, finished_at, result_json, error_message
		FROM tool_jobs WHERE id = ?
	`), id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *SQLStore) List(ctx context.Context, conversationID string, limit, offset int) ([]*Job, error) {
	query := `
		SELECT id, conversation_id, tool_name, tool_use_id, status, created_at, started_at, finished_at, result_json, error_message
		FROM tool_jobs`
	var args []any
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Prune removes jobs older than the given duration, returning the count removed.
func (s *SQLStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tool_jobs WHERE created_at < ?`), time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Cancel marks a queued or running job failed. The in-process cancelFunc
// (if any) lives only on the in-memory Job the background goroutine holds;
// callers needing to interrupt a live job go through Executor.CancelTool,
// not this store.
func (s *SQLStore) Cancel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE tool_jobs SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)
	`), string(StatusFailed), "job cancelled", time.Now(), id, string(StatusQueued), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

type jobScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner jobScanner) (*Job, error) {
	var (
		job          Job
		status       string
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
		resultBytes  []byte
		errorMessage sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ConversationID,
		&job.ToolName,
		&job.ToolUseID,
		&status,
		&job.CreatedAt,
		&startedAt,
		&finishedAt,
		&resultBytes,
		&errorMessage,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	if startedAt.Valid {
		job.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = finishedAt.Time
	}
	if len(resultBytes) > 0 {
		var result convcore.ToolResultBlock
		if err := json.Unmarshal(resultBytes, &result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		job.Result = &result
	}
	if errorMessage.Valid {
		job.Error = errorMessage.String
	}
	return &job, nil
}

func marshalResult(result *convcore.ToolResultBlock) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	return json.Marshal(result)
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
