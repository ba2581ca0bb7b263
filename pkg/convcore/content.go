// Package convcore holds the closed set of types shared by the conversation
// state machine, the executor, and the persistence layer: conversations,
// messages, content blocks, and the tagged unions for state/event/effect.
package convcore

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentBlock is a closed sum type implemented by TextBlock, ToolUseBlock,
// ToolResultBlock and ContinuationBlock; Kind reports which one.
type ContentBlock interface {
	isContentBlock()
	Kind() string
}

// TextBlock is plain assistant or user text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) isContentBlock() {}
func (TextBlock) Kind() string    { return "text" }

// ToolUseBlock records the LLM's request to invoke a tool.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) isContentBlock() {}
func (ToolUseBlock) Kind() string    { return "tool_use" }

// ToolResultBlock is the paired result for a ToolUseBlock with the same ID.
// DisplayData and Breadcrumb are opaque to the core: they are carried and
// persisted verbatim, never parsed.
type ToolResultBlock struct {
	ToolUseID   string          `json:"tool_use_id"`
	Content     string          `json:"content"`
	IsError     bool            `json:"is_error,omitempty"`
	DisplayData json.RawMessage `json:"display_data,omitempty"`
	Breadcrumb  json.RawMessage `json:"breadcrumb,omitempty"`
}

func (ToolResultBlock) isContentBlock() {}
func (ToolResultBlock) Kind() string    { return "tool_result" }

// ContinuationBlock marks a system-generated continuation note, emitted
// when a conversation crosses the context-usage threshold.
type ContinuationBlock struct {
	Reason string `json:"reason"`
}

func (ContinuationBlock) isContentBlock() {}
func (ContinuationBlock) Kind() string    { return "continuation" }

// Message is one turn of a Conversation: a single Role with one or more
// ContentBlocks, persisted atomically.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	LocalID        string         `json:"local_id,omitempty"`
	Role           Role           `json:"role"`
	Blocks         []ContentBlock `json:"blocks"`
	UserAgent      string         `json:"user_agent,omitempty"`
	SequenceID     int64          `json:"sequence_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Usage is cumulative token accounting for a Conversation, refreshed after
// every LLM response.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	ContextWindow       int64 `json:"context_window"`
}

// Fraction returns the portion of the context window currently consumed.
func (u Usage) Fraction() float64 {
	if u.ContextWindow <= 0 {
		return 0
	}
	consumed := u.InputTokens + u.CacheCreationTokens + u.CacheReadTokens
	return float64(consumed) / float64(u.ContextWindow)
}

// Conversation is the top-level aggregate: its State, its owning model, and
// (for sub-agents) its ParentID.
type Conversation struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	State         ConvState `json:"state"`
	Model         string    `json:"model"`
	ParentID      *string   `json:"parent_id,omitempty"`
	UserInitiated bool      `json:"user_initiated"`
	Usage         Usage     `json:"usage"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastActiveAt  time.Time `json:"last_active_at"`
}
