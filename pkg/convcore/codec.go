package convcore

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireEnvelope is the on-disk/on-wire shape for both ConvState and
// ContentBlock: a discriminator plus the concrete payload, so the
// persistence layer can round-trip either sum type through a single JSON
// column without a parallel Go type per state.
type wireEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeState serializes a ConvState for storage (internal/storage's
// conversations.state column) or SSE transmission.
func EncodeState(s ConvState) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encode state: nil state")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state %s: %w", s.Name(), err)
	}
	return json.Marshal(wireEnvelope{Kind: s.Name(), Payload: payload})
}

// DecodeState is EncodeState's inverse, used by crash recovery to rebuild
// the in-memory ConvState a conversation was in when the process stopped.
func DecodeState(data []byte) (ConvState, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode state envelope: %w", err)
	}
	switch env.Kind {
	case "idle":
		return Idle{}, nil
	case "llm_requesting":
		var s LlmRequesting
		return s, json.Unmarshal(env.Payload, &s)
	case "tool_executing":
		var s ToolExecuting
		return s, json.Unmarshal(env.Payload, &s)
	case "awaiting_continuation":
		return AwaitingContinuation{}, nil
	case "awaiting_sub_agents":
		var s AwaitingSubAgents
		return s, json.Unmarshal(env.Payload, &s)
	case "cancelling_llm":
		return CancellingLlm{}, nil
	case "cancelling_tool":
		var s CancellingTool
		return s, json.Unmarshal(env.Payload, &s)
	case "cancelling_sub_agents":
		var s CancellingSubAgents
		return s, json.Unmarshal(env.Payload, &s)
	case "error":
		var s Error
		return s, json.Unmarshal(env.Payload, &s)
	case "completed":
		return Completed{}, nil
	case "failed":
		var s Failed
		return s, json.Unmarshal(env.Payload, &s)
	case "context_exhausted":
		var s ContextExhausted
		return s, json.Unmarshal(env.Payload, &s)
	default:
		return nil, fmt.Errorf("decode state: unknown kind %q", env.Kind)
	}
}

// EncodeBlocks serializes a Message's content blocks, used by
// internal/storage for the messages.blocks column.
func EncodeBlocks(blocks []ContentBlock) ([]byte, error) {
	envs := make([]wireEnvelope, 0, len(blocks))
	for _, b := range blocks {
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode block %s: %w", b.Kind(), err)
		}
		envs = append(envs, wireEnvelope{Kind: b.Kind(), Payload: payload})
	}
	return json.Marshal(envs)
}

// DecodeBlocks is EncodeBlocks's inverse.
func DecodeBlocks(data []byte) ([]ContentBlock, error) {
	var envs []wireEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	blocks := make([]ContentBlock, 0, len(envs))
	for _, env := range envs {
		block, err := decodeBlock(env)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// EncodeMessageJSON renders a Message for the wire (HTTP responses, SSE
// "message" events): each block gets its Kind() folded in as a "type"
// discriminator field (EncodeBlocks instead wraps each block in a
// kind/payload envelope), since Message.Blocks is a slice of the
// ContentBlock interface and a plain json.Marshal would otherwise drop which
// concrete block each entry is.
func EncodeMessageJSON(msg Message) (json.RawMessage, error) {
	blocks := make([]map[string]any, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode message %s: block %s: %w", msg.ID, b.Kind(), err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("encode message %s: block %s: %w", msg.ID, b.Kind(), err)
		}
		fields["type"] = b.Kind()
		blocks = append(blocks, fields)
	}
	out := struct {
		ID             string           `json:"id"`
		ConversationID string           `json:"conversation_id"`
		LocalID        string           `json:"local_id,omitempty"`
		Role           Role             `json:"role"`
		Blocks         []map[string]any `json:"blocks"`
		UserAgent      string           `json:"user_agent,omitempty"`
		SequenceID     int64            `json:"sequence_id"`
		CreatedAt      time.Time        `json:"created_at"`
	}{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		LocalID:        msg.LocalID,
		Role:           msg.Role,
		Blocks:         blocks,
		UserAgent:      msg.UserAgent,
		SequenceID:     msg.SequenceID,
		CreatedAt:      msg.CreatedAt,
	}
	return json.Marshal(out)
}

func decodeBlock(env wireEnvelope) (ContentBlock, error) {
	switch env.Kind {
	case "text":
		var b TextBlock
		return b, json.Unmarshal(env.Payload, &b)
	case "tool_use":
		var b ToolUseBlock
		return b, json.Unmarshal(env.Payload, &b)
	case "tool_result":
		var b ToolResultBlock
		return b, json.Unmarshal(env.Payload, &b)
	case "continuation":
		var b ContinuationBlock
		return b, json.Unmarshal(env.Payload, &b)
	default:
		return nil, fmt.Errorf("decode block: unknown kind %q", env.Kind)
	}
}
