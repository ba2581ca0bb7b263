package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

const defaultOpenAIModel = "gpt-4o"

// openAIClient implements executor.LlmClient against OpenAI's chat
// completions API (and, via pc.BaseURL, any OpenAI-compatible endpoint such
// as Fireworks), grounded on the teacher's OpenAIProvider
// (internal/agent/providers/openai.go). Uses the SDK's blocking
// CreateChatCompletion rather than CreateChatCompletionStream for the same
// reason anthropicClient does: the executor wants one LlmResult per call.
type openAIClient struct {
	client       *openai.Client
	defaultModel string
}

func newOpenAIClient(pc config.LLMProviderConfig) (executor.LlmClient, error) {
	if pc.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	cfg := openai.DefaultConfig(pc.APIKey)
	if pc.BaseURL != "" {
		cfg.BaseURL = pc.BaseURL
	}
	model := pc.DefaultModel
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIClient{client: openai.NewClientWithConfig(cfg), defaultModel: model}, nil
}

func (c *openAIClient) Complete(ctx context.Context, req executor.LlmRequest) (executor.LlmResult, error) {
	chatReq, err := c.buildRequest(req)
	if err != nil {
		return executor.LlmResult{}, classify("openai", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return executor.LlmResult{}, classify("openai", err)
	}
	if len(resp.Choices) == 0 {
		return executor.LlmResult{}, classify("openai", fmt.Errorf("empty choices in response"))
	}

	blocks, err := convertOpenAIMessage(resp.Choices[0].Message)
	if err != nil {
		return executor.LlmResult{}, classify("openai", err)
	}

	return executor.LlmResult{
		Blocks: blocks,
		Usage: convcore.Usage{
			InputTokens:   int64(resp.Usage.PromptTokens),
			OutputTokens:  int64(resp.Usage.CompletionTokens),
			ContextWindow: req.Model.ContextWindow,
		},
	}, nil
}

func (c *openAIClient) Continuation(ctx context.Context, req executor.LlmRequest) (string, error) {
	chatReq, err := c.buildRequest(req)
	if err != nil {
		return "", classify("openai", err)
	}
	chatReq.Tools = nil
	chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: continuationPrompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classify("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", classify("openai", fmt.Errorf("empty choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) buildRequest(req executor.LlmRequest) (openai.ChatCompletionRequest, error) {
	messages, err := convertMessagesToOpenAI(req.History)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("convert messages: %w", err)
	}

	model := req.Model.ID
	if model == "" {
		model = c.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools)
	}
	return chatReq, nil
}

// convertMessagesToOpenAI flattens convcore.Message's ContentBlock union
// into OpenAI's one-role-per-message shape, splitting tool results into
// their own openai.ChatMessageRoleTool messages the way the teacher's
// convertToOpenAIMessages does for its "tool" role messages.
func convertMessagesToOpenAI(history []convcore.Message) ([]openai.ChatCompletionMessage, error) {
	var result []openai.ChatCompletionMessage
	for _, msg := range history {
		if msg.Role == convcore.RoleSystem {
			continue
		}

		role := openai.ChatMessageRoleUser
		if msg.Role == convcore.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		var text string
		var toolCalls []openai.ToolCall
		for _, block := range msg.Blocks {
			switch b := block.(type) {
			case convcore.TextBlock:
				text += b.Text
			case convcore.ToolUseBlock:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.Name,
						Arguments: string(b.Input),
					},
				})
			case convcore.ToolResultBlock:
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    b.Content,
					ToolCallID: b.ToolUseID,
				})
			case convcore.ContinuationBlock:
				text += "[continuation: " + b.Reason + "]"
			}
		}

		if text == "" && len(toolCalls) == 0 {
			continue
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:      role,
			Content:   text,
			ToolCalls: toolCalls,
		})
	}
	return result, nil
}

func convertToolsToOpenAI(schemas []executor.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, 0, len(schemas))
	for _, s := range schemas {
		var params map[string]any
		if err := json.Unmarshal(s.InputSchema, &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

func convertOpenAIMessage(msg openai.ChatCompletionMessage) ([]convcore.ContentBlock, error) {
	var blocks []convcore.ContentBlock
	if msg.Content != "" {
		blocks = append(blocks, convcore.TextBlock{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, convcore.ToolUseBlock{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return blocks, nil
}
