// Package storage is the persistence layer: a single SQL-backed store
// (sqlite for the default local deployment, postgres/cockroach for a
// shared one) implementing executor.Store plus the wider surface crash
// recovery and the HTTP layer need to list and resume conversations. It
// follows the teacher's cockroachAgentStore convention — a thin struct
// wrapping *sql.DB, one exported method per query, errors wrapped with
// fmt.Errorf("%w") — generalized from per-entity stores to the
// conversation/message schema this system persists.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/internal/statemachine"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

var ErrNotFound = errors.New("not found")

// SQLStore implements executor.Store plus the conversation lifecycle
// queries internal/recovery and internal/gatewayhttp need, against either
// sqlite or postgres/cockroach depending on how it was opened.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore wraps an already-opened, already-migrated *sql.DB. driver
// selects placeholder rebinding ("sqlite" uses "?", "postgres"/"cockroach"
// use "$1".."$N").
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// rebind rewrites a query written with "?" placeholders into the target
// driver's native placeholder syntax, letting every query below be written
// once regardless of backend.
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

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// --- executor.Store ---

func (s *SQLStore) PersistUserMessage(ctx context.Context, msg convcore.Message) error {
	return s.appendMessage(ctx, msg)
}

func (s *SQLStore) PersistAgentMessage(ctx context.Context, msg convcore.Message) error {
	return s.appendMessage(ctx, msg)
}

// PersistToolResult wraps the block in a user-role Message whose LocalID is
// the tool_use_id, so appendMessage's local_id idempotency check is exactly
// the "idempotently by (conversation_id, tool_use_id)" contract
// convcore.PersistToolResult documents.
func (s *SQLStore) PersistToolResult(ctx context.Context, conversationID string, result convcore.ToolResultBlock) error {
	return s.appendMessage(ctx, convcore.Message{
		ID:             newRowID(),
		ConversationID: conversationID,
		LocalID:        result.ToolUseID,
		Role:           convcore.RoleUser,
		Blocks:         []convcore.ContentBlock{result},
	})
}

func (s *SQLStore) PersistContinuationMessage(ctx context.Context, conversationID, summary string) error {
	return s.appendMessage(ctx, convcore.Message{
		ID:             newRowID(),
		ConversationID: conversationID,
		Role:           convcore.RoleSystem,
		Blocks:         []convcore.ContentBlock{convcore.ContinuationBlock{Reason: summary}},
	})
}

func (s *SQLStore) PersistState(ctx context.Context, conversationID string, state convcore.ConvState) error {
	encoded, err := convcore.EncodeState(state)
	if err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	_, err = s.exec(ctx,
		`UPDATE conversations SET state_json = ?, updated_at = ?, last_active_at = ? WHERE id = ?`,
		string(encoded), nowUTC(), nowUTC(), conversationID)
	if err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (s *SQLStore) ListMessages(ctx context.Context, conversationID string) ([]convcore.Message, error) {
	rows, err := s.query(ctx,
		`SELECT id, conversation_id, local_id, sequence_id, role, blocks_json, user_agent, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY sequence_id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []convcore.Message
	for rows.Next() {
		var (
			msg        convcore.Message
			localID    sql.NullString
			blocksJSON string
			createdAt  time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &localID, &msg.SequenceID, &msg.Role, &blocksJSON, &msg.UserAgent, &createdAt); err != nil {
			return nil, fmt.Errorf("list messages: scan: %w", err)
		}
		msg.LocalID = localID.String
		msg.CreatedAt = createdAt
		blocks, err := convcore.DecodeBlocks([]byte(blocksJSON))
		if err != nil {
			return nil, fmt.Errorf("list messages: decode blocks for %s: %w", msg.ID, err)
		}
		msg.Blocks = blocks
		out = append(out, msg)
	}
	return out, rows.Err()
}

// CreateSubAgent inserts the child conversation row inheriting its parent's
// model and working directory, per spec: a sub-agent runs in the same
// model/cwd context its parent was spawned with.
func (s *SQLStore) CreateSubAgent(ctx context.Context, parentID, childID string) (executor.ConversationInfo, error) {
	var (
		modelID    string
		contextWin int64
		cwd        string
	)
	row := s.queryRow(ctx, `SELECT model_id, model_context_window, cwd FROM conversations WHERE id = ?`, parentID)
	if err := row.Scan(&modelID, &contextWin, &cwd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return executor.ConversationInfo{}, fmt.Errorf("create sub-agent: parent %s: %w", parentID, ErrNotFound)
		}
		return executor.ConversationInfo{}, fmt.Errorf("create sub-agent: load parent: %w", err)
	}

	encoded, err := convcore.EncodeState(convcore.Idle{})
	if err != nil {
		return executor.ConversationInfo{}, fmt.Errorf("create sub-agent: encode initial state: %w", err)
	}
	now := nowUTC()
	_, err = s.exec(ctx,
		`INSERT INTO conversations
		   (id, parent_id, is_sub_agent, user_initiated, title, model_id, model_context_window, cwd,
		    state_json, created_at, updated_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		childID, parentID, true, false, "", modelID, contextWin, cwd, string(encoded), now, now, now)
	if err != nil {
		return executor.ConversationInfo{}, fmt.Errorf("create sub-agent: insert: %w", err)
	}

	return executor.ConversationInfo{
		ConversationID: childID,
		Model:          statemachine.ModelInfo{ID: modelID, ContextWindow: contextWin},
		CWD:            cwd,
		IsSubAgent:     true,
		ParentID:       parentID,
	}, nil
}

// --- conversation lifecycle (not part of executor.Store; used by the HTTP
// layer and crash recovery) ---

// CreateConversation inserts a brand-new top-level conversation in Idle
// state, slugged from the opening message text (falling back to the id),
// returning the info the executor needs to start its actor plus the slug
// the /api/conversations/new response requires.
func (s *SQLStore) CreateConversation(ctx context.Context, id string, model statemachine.ModelInfo, cwd, titleSeed string) (executor.ConversationInfo, string, error) {
	encoded, err := convcore.EncodeState(convcore.Idle{})
	if err != nil {
		return executor.ConversationInfo{}, "", fmt.Errorf("create conversation: encode initial state: %w", err)
	}
	slug, err := s.uniqueSlug(ctx, titleSeed, id)
	if err != nil {
		return executor.ConversationInfo{}, "", fmt.Errorf("create conversation: slug: %w", err)
	}
	now := nowUTC()
	_, err = s.exec(ctx,
		`INSERT INTO conversations
		   (id, parent_id, is_sub_agent, user_initiated, title, model_id, model_context_window, cwd,
		    state_json, slug, created_at, updated_at, last_active_at)
		 VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, false, true, truncateTitle(titleSeed), model.ID, model.ContextWindow, cwd, string(encoded), slug, now, now, now)
	if err != nil {
		return executor.ConversationInfo{}, "", fmt.Errorf("create conversation: insert: %w", err)
	}
	return executor.ConversationInfo{ConversationID: id, Model: model, CWD: cwd}, slug, nil
}

func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120]
	}
	return s
}

// slugify mirrors the teacher's slugifyAgentID: lowercase, ascii letters and
// digits only, runs of anything else collapsed to a single dash.
func slugify(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// uniqueSlug slugifies seed (falling back to id if seed slugifies to
// nothing) and appends a short suffix from id on collision.
func (s *SQLStore) uniqueSlug(ctx context.Context, seed, id string) (string, error) {
	base := slugify(seed)
	if base == "" {
		base = slugify(id)
	}
	if len(base) > 60 {
		base = base[:60]
	}
	candidate := base
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	for attempt := 0; attempt < 2; attempt++ {
		var exists int
		err := s.queryRow(ctx, `SELECT 1 FROM conversations WHERE slug = ?`, candidate).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = base + "-" + suffix
	}
	return base + "-" + id, nil
}

// ConversationRecord is the HTTP layer's view of a conversation row: the
// core convcore.Conversation aggregate plus the storage-only fields
// (slug, cwd, archived, the model's context window) that spec.md §6.1/§6.3
// need but that don't belong on the domain type the executor/statemachine
// operate on.
type ConversationRecord struct {
	convcore.Conversation
	Slug               string
	CWD                string
	ModelContextWindow int64
	Archived           bool
}

// GetConversation loads a conversation's full metadata, decoded state, and
// usage accounting, for GET /api/conversations/:id and the SSE init event.
func (s *SQLStore) GetConversation(ctx context.Context, id string) (ConversationRecord, error) {
	return s.getConversationBy(ctx, "id", id)
}

// GetConversationBySlug is GetConversation's counterpart for
// /api/conversations/by-slug/:slug.
func (s *SQLStore) GetConversationBySlug(ctx context.Context, slug string) (ConversationRecord, error) {
	return s.getConversationBy(ctx, "slug", slug)
}

func (s *SQLStore) getConversationBy(ctx context.Context, column, value string) (ConversationRecord, error) {
	row := s.queryRow(ctx,
		fmt.Sprintf(`SELECT id, parent_id, title, model_id, model_context_window, cwd, slug, archived, state_json,
		        usage_input_tokens, usage_output_tokens, usage_cache_creation, usage_cache_read,
		        created_at, updated_at, last_active_at
		 FROM conversations WHERE %s = ?`, column),
		value)

	var (
		rec                ConversationRecord
		parentID           sql.NullString
		modelID            string
		stateJSON          string
		createdAt, updated time.Time
		lastActive         time.Time
	)
	if err := row.Scan(&rec.ID, &parentID, &rec.Title, &modelID, &rec.ModelContextWindow, &rec.CWD, &rec.Slug, &rec.Archived, &stateJSON,
		&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.Usage.CacheCreationTokens, &rec.Usage.CacheReadTokens,
		&createdAt, &updated, &lastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ConversationRecord{}, ErrNotFound
		}
		return ConversationRecord{}, fmt.Errorf("get conversation: %w", err)
	}
	state, err := convcore.DecodeState([]byte(stateJSON))
	if err != nil {
		return ConversationRecord{}, fmt.Errorf("get conversation: decode state: %w", err)
	}

	rec.State = state
	rec.Model = modelID
	if parentID.Valid {
		rec.ParentID = &parentID.String
	}
	rec.UserInitiated = !parentID.Valid
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updated
	rec.LastActiveAt = lastActive
	return rec, nil
}

// ListActive returns every non-archived conversation, newest first, for
// GET /api/conversations.
func (s *SQLStore) ListActive(ctx context.Context) ([]ConversationRecord, error) {
	return s.listConversations(ctx, `archived = `+s.boolLiteral(false))
}

// ListArchived returns every archived conversation, for
// GET /api/conversations/archived.
func (s *SQLStore) ListArchived(ctx context.Context) ([]ConversationRecord, error) {
	return s.listConversations(ctx, `archived = `+s.boolLiteral(true))
}

func (s *SQLStore) boolLiteral(b bool) string {
	if s.driver == "sqlite" {
		if b {
			return "1"
		}
		return "0"
	}
	if b {
		return "true"
	}
	return "false"
}

func (s *SQLStore) listConversations(ctx context.Context, where string) ([]ConversationRecord, error) {
	rows, err := s.query(ctx, fmt.Sprintf(
		`SELECT id, parent_id, title, model_id, model_context_window, cwd, slug, archived, state_json,
		        usage_input_tokens, usage_output_tokens, usage_cache_creation, usage_cache_read,
		        created_at, updated_at, last_active_at
		 FROM conversations WHERE %s ORDER BY last_active_at DESC`, where))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationRecord
	for rows.Next() {
		var (
			rec       ConversationRecord
			parentID  sql.NullString
			stateJSON string
		)
		if err := rows.Scan(&rec.ID, &parentID, &rec.Title, &rec.Model, &rec.ModelContextWindow, &rec.CWD, &rec.Slug, &rec.Archived, &stateJSON,
			&rec.Usage.InputTokens, &rec.Usage.OutputTokens, &rec.Usage.CacheCreationTokens, &rec.Usage.CacheReadTokens,
			&rec.CreatedAt, &rec.UpdatedAt, &rec.LastActiveAt); err != nil {
			return nil, fmt.Errorf("list conversations: scan: %w", err)
		}
		state, err := convcore.DecodeState([]byte(stateJSON))
		if err != nil {
			return nil, fmt.Errorf("list conversations: decode state for %s: %w", rec.ID, err)
		}
		rec.State = state
		if parentID.Valid {
			rec.ParentID = &parentID.String
		}
		rec.UserInitiated = !parentID.Valid
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Archive/Unarchive flip the archived flag; Rename overwrites title; Delete
// removes the conversation and its messages outright. None of these touch
// state_json, so an archived conversation's actor (if still running) is
// unaffected until the process restarts and recovery skips it from
// ListResumable only once it reaches a terminal state.
func (s *SQLStore) Archive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

func (s *SQLStore) Unarchive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *SQLStore) setArchived(ctx context.Context, id string, archived bool) error {
	res, err := s.exec(ctx, `UPDATE conversations SET archived = ?, updated_at = ? WHERE id = ?`, archived, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	return checkRowFound(res)
}

func (s *SQLStore) Rename(ctx context.Context, id, title string) error {
	res, err := s.exec(ctx, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, truncateTitle(title), nowUTC(), id)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return checkRowFound(res)
}

// SetModel persists an explicit model switch (SPEC_FULL.md §7.3 failover),
// never an automatic silent substitution: the caller (internal/gatewayhttp's
// handleFailover) is always a direct client request.
func (s *SQLStore) SetModel(ctx context.Context, id, modelID string, contextWindow int64) error {
	res, err := s.exec(ctx, `UPDATE conversations SET model_id = ?, model_context_window = ?, updated_at = ? WHERE id = ?`,
		modelID, contextWindow, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("set model: %w", err)
	}
	return checkRowFound(res)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: messages: %w", err)
	}
	res, err := s.exec(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return checkRowFound(res)
}

func checkRowFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessagesAfter returns every message with sequence_id > after, the
// query spec.md §4.4 names for SSE resume (GET .../stream?after=N).
func (s *SQLStore) ListMessagesAfter(ctx context.Context, conversationID string, after int64) ([]convcore.Message, error) {
	rows, err := s.query(ctx,
		`SELECT id, conversation_id, local_id, sequence_id, role, blocks_json, user_agent, created_at
		 FROM messages WHERE conversation_id = ? AND sequence_id > ? ORDER BY sequence_id ASC`,
		conversationID, after)
	if err != nil {
		return nil, fmt.Errorf("list messages after: %w", err)
	}
	defer rows.Close()

	var out []convcore.Message
	for rows.Next() {
		var (
			msg        convcore.Message
			localID    sql.NullString
			blocksJSON string
			createdAt  time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &localID, &msg.SequenceID, &msg.Role, &blocksJSON, &msg.UserAgent, &createdAt); err != nil {
			return nil, fmt.Errorf("list messages after: scan: %w", err)
		}
		msg.LocalID = localID.String
		msg.CreatedAt = createdAt
		blocks, err := convcore.DecodeBlocks([]byte(blocksJSON))
		if err != nil {
			return nil, fmt.Errorf("list messages after: decode blocks for %s: %w", msg.ID, err)
		}
		msg.Blocks = blocks
		out = append(out, msg)
	}
	return out, rows.Err()
}

// conversationRow is the full row shape recovery needs to rebuild both a
// ConversationInfo (to restart the actor) and the ConvState it was in.
type conversationRow struct {
	Info  executor.ConversationInfo
	State convcore.ConvState
}

// ListResumable returns every conversation not already in a terminal state
// (Completed/Failed/ContextExhausted), the set internal/recovery must
// rehydrate and restart an actor for on process startup.
func (s *SQLStore) ListResumable(ctx context.Context) ([]conversationRow, error) {
	rows, err := s.query(ctx,
		`SELECT id, parent_id, is_sub_agent, model_id, model_context_window, cwd, state_json FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("list resumable: %w", err)
	}
	defer rows.Close()

	var out []conversationRow
	for rows.Next() {
		var (
			id, modelID, cwd, stateJSON string
			parentID                    sql.NullString
			isSubAgent                  bool
			contextWin                  int64
		)
		if err := rows.Scan(&id, &parentID, &isSubAgent, &modelID, &contextWin, &cwd, &stateJSON); err != nil {
			return nil, fmt.Errorf("list resumable: scan: %w", err)
		}
		state, err := convcore.DecodeState([]byte(stateJSON))
		if err != nil {
			return nil, fmt.Errorf("list resumable: decode state for %s: %w", id, err)
		}
		switch state.(type) {
		case convcore.Completed, convcore.Failed, convcore.ContextExhausted:
			continue
		}
		out = append(out, conversationRow{
			Info: executor.ConversationInfo{
				ConversationID: id,
				Model:          statemachine.ModelInfo{ID: modelID, ContextWindow: contextWin},
				CWD:            cwd,
				IsSubAgent:     isSubAgent,
				ParentID:       parentID.String,
			},
			State: state,
		})
	}
	return out, rows.Err()
}

// ResetInFlightToIdle rewrites every non-terminal conversation's state to
// Idle{} in a single statement, the crash-recovery precondition (spec
// §4.5): any state involving an in-flight LLM call, tool, or sub-agent
// group cannot be trusted after an unclean shutdown, since the goroutine
// that would have completed it is gone. The caller (internal/recovery)
// re-derives what actually happened from the persisted message log and
// re-dispatches from there.
func (s *SQLStore) ResetInFlightToIdle(ctx context.Context) (int64, error) {
	idle, err := convcore.EncodeState(convcore.Idle{})
	if err != nil {
		return 0, fmt.Errorf("reset in-flight: encode idle state: %w", err)
	}
	res, err := s.exec(ctx,
		`UPDATE conversations SET state_json = ?, updated_at = ?
		 WHERE state_json NOT LIKE '%"completed"%'
		   AND state_json NOT LIKE '%"failed"%'
		   AND state_json NOT LIKE '%"context_exhausted"%'
		   AND state_json NOT LIKE '%"idle"%'`,
		string(idle), nowUTC())
	if err != nil {
		return 0, fmt.Errorf("reset in-flight: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) appendMessage(ctx context.Context, msg convcore.Message) error {
	if msg.LocalID != "" {
		var exists int
		err := s.queryRow(ctx,
			`SELECT 1 FROM messages WHERE conversation_id = ? AND local_id = ?`,
			msg.ConversationID, msg.LocalID).Scan(&exists)
		if err == nil {
			return nil // already persisted, idempotent no-op
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("append message: check local_id: %w", err)
		}
	}

	var nextSeq int64
	err := s.queryRow(ctx,
		`SELECT COALESCE(MAX(sequence_id), 0) + 1 FROM messages WHERE conversation_id = ?`,
		msg.ConversationID).Scan(&nextSeq)
	if err != nil {
		return fmt.Errorf("append message: next sequence: %w", err)
	}

	blocksJSON, err := convcore.EncodeBlocks(msg.Blocks)
	if err != nil {
		return fmt.Errorf("append message: encode blocks: %w", err)
	}

	if msg.ID == "" {
		msg.ID = newRowID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = nowUTC()
	}

	var localID any
	if msg.LocalID != "" {
		localID = msg.LocalID
	}

	_, err = s.exec(ctx,
		`INSERT INTO messages (id, conversation_id, local_id, sequence_id, role, blocks_json, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, localID, nextSeq, string(msg.Role), string(blocksJSON), msg.UserAgent, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: insert: %w", err)
	}
	return nil
}

func nowUTC() time.Time { return time.Now().UTC() }
