package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// anthropicClient implements executor.LlmClient against Anthropic's Claude
// API, grounded on the teacher's AnthropicProvider
// (internal/agent/providers/anthropic.go). It uses the SDK's blocking
// Messages.New rather than the teacher's Messages.NewStreaming: the
// executor's actor loop (internal/executor/conv.go's startLlmRequest) wants
// one aggregated LlmResult per call, not a channel of partial deltas, so
// there is nothing here for a stream-draining loop to buy.
type anthropicClient struct {
	client       anthropic.Client
	defaultModel string
}

func newAnthropicClient(pc config.LLMProviderConfig) (executor.LlmClient, error) {
	if pc.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api_key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(pc.APIKey)}
	if pc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(pc.BaseURL))
	}
	model := pc.DefaultModel
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicClient{client: anthropic.NewClient(opts...), defaultModel: model}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, req executor.LlmRequest) (executor.LlmResult, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return executor.LlmResult{}, classify("anthropic", err)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return executor.LlmResult{}, classify("anthropic", err)
	}

	blocks, err := convertAnthropicContent(msg.Content)
	if err != nil {
		return executor.LlmResult{}, classify("anthropic", err)
	}

	return executor.LlmResult{
		Blocks: blocks,
		Usage: convcore.Usage{
			InputTokens:         msg.Usage.InputTokens,
			OutputTokens:        msg.Usage.OutputTokens,
			CacheCreationTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:     msg.Usage.CacheReadInputTokens,
			ContextWindow:       req.Model.ContextWindow,
		},
	}, nil
}

func (c *anthropicClient) Continuation(ctx context.Context, req executor.LlmRequest) (string, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return "", classify("anthropic", err)
	}
	params.Tools = nil
	params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(continuationPrompt)))

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify("anthropic", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (c *anthropicClient) buildParams(req executor.LlmRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertMessagesToAnthropic(req.History)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("convert messages: %w", err)
	}

	model := req.Model.ID
	if model == "" {
		model = c.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: 4096,
	}

	if len(req.Tools) > 0 {
		tools, err := convertToolsToAnthropic(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

// convertMessagesToAnthropic mirrors the teacher's convertMessages, adapted
// from agent.CompletionMessage (flat ToolCalls/ToolResults slices) to
// convcore.Message's ContentBlock union.
func convertMessagesToAnthropic(history []convcore.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		if msg.Role == convcore.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		for _, block := range msg.Blocks {
			switch b := block.(type) {
			case convcore.TextBlock:
				content = append(content, anthropic.NewTextBlock(b.Text))
			case convcore.ToolUseBlock:
				var input map[string]any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, fmt.Errorf("tool_use %s: %w", b.ID, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case convcore.ToolResultBlock:
				content = append(content, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			case convcore.ContinuationBlock:
				content = append(content, anthropic.NewTextBlock("[continuation: "+b.Reason+"]"))
			}
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == convcore.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertToolsToAnthropic(schemas []executor.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(s.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", s.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, s.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", s.Name)
		}
		toolParam.OfTool.Description = anthropic.String(s.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// convertAnthropicContent reads the flattened ContentBlockUnion fields
// directly, gated on block.Type, the same way the teacher's processStream
// reads event.Delta.Text/event.Delta.PartialJSON off a single delta struct
// instead of type-asserting to a narrower concrete type.
func convertAnthropicContent(blocks []anthropic.ContentBlockUnion) ([]convcore.ContentBlock, error) {
	result := make([]convcore.ContentBlock, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text":
			result = append(result, convcore.TextBlock{Text: block.Text})
		case "tool_use":
			input, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool_use input: %w", err)
			}
			result = append(result, convcore.ToolUseBlock{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	return result, nil
}
