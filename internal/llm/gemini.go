package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

const defaultGeminiModel = "gemini-2.0-flash"

// geminiClient implements executor.LlmClient against Google's Gemini API
// via google.golang.org/genai, grounded on the teacher's GoogleProvider
// (internal/agent/providers/google.go). Calls the SDK's blocking
// client.Models.GenerateContent rather than GenerateContentStream for the
// same reason anthropicClient and openAIClient do.
type geminiClient struct {
	client       *genai.Client
	defaultModel string
}

func newGeminiClient(pc config.LLMProviderConfig) (executor.LlmClient, error) {
	if pc.APIKey == "" {
		return nil, fmt.Errorf("gemini: api_key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  pc.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := pc.DefaultModel
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiClient{client: client, defaultModel: model}, nil
}

func (c *geminiClient) Complete(ctx context.Context, req executor.LlmRequest) (executor.LlmResult, error) {
	model := req.Model.ID
	if model == "" {
		model = c.defaultModel
	}

	contents, err := convertMessagesToGemini(req.History)
	if err != nil {
		return executor.LlmResult{}, classify("gemini", err)
	}
	genConfig := buildGeminiConfig(req)

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return executor.LlmResult{}, classify("gemini", err)
	}

	blocks, err := convertGeminiResponse(resp)
	if err != nil {
		return executor.LlmResult{}, classify("gemini", err)
	}

	var usage convcore.Usage
	if resp.UsageMetadata != nil {
		usage = convcore.Usage{
			InputTokens:   int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:  int64(resp.UsageMetadata.CandidatesTokenCount),
			ContextWindow: req.Model.ContextWindow,
		}
	}
	return executor.LlmResult{Blocks: blocks, Usage: usage}, nil
}

func (c *geminiClient) Continuation(ctx context.Context, req executor.LlmRequest) (string, error) {
	model := req.Model.ID
	if model == "" {
		model = c.defaultModel
	}

	contents, err := convertMessagesToGemini(req.History)
	if err != nil {
		return "", classify("gemini", err)
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: continuationPrompt}},
	})

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return "", classify("gemini", err)
	}

	var text string
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil {
				text += part.Text
			}
		}
	}
	return text, nil
}

func buildGeminiConfig(req executor.LlmRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if len(req.Tools) > 0 {
		cfg.Tools = convertToolsToGemini(req.Tools)
	}
	return cfg
}

// convertMessagesToGemini mirrors the teacher's convertMessages: user turns
// map to genai.RoleUser, assistant turns to genai.RoleModel, tool_use
// blocks become FunctionCall parts, and tool_result blocks become
// FunctionResponse parts keyed by the tool's name rather than its call id,
// since Gemini correlates function responses by name.
func convertMessagesToGemini(history []convcore.Message) ([]*genai.Content, error) {
	toolNameByID := map[string]string{}
	for _, msg := range history {
		for _, block := range msg.Blocks {
			if tu, ok := block.(convcore.ToolUseBlock); ok {
				toolNameByID[tu.ID] = tu.Name
			}
		}
	}

	var result []*genai.Content
	for _, msg := range history {
		if msg.Role == convcore.RoleSystem {
			continue
		}
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == convcore.RoleAssistant {
			content.Role = genai.RoleModel
		}

		for _, block := range msg.Blocks {
			switch b := block.(type) {
			case convcore.TextBlock:
				content.Parts = append(content.Parts, &genai.Part{Text: b.Text})
			case convcore.ToolUseBlock:
				var args map[string]any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &args); err != nil {
						return nil, fmt.Errorf("tool_use %s: %w", b.ID, err)
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: b.Name, Args: args},
				})
			case convcore.ToolResultBlock:
				name := toolNameByID[b.ToolUseID]
				response := map[string]any{"result": b.Content}
				if b.IsError {
					response["error"] = true
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: name, Response: response},
				})
			case convcore.ContinuationBlock:
				content.Parts = append(content.Parts, &genai.Part{Text: "[continuation: " + b.Reason + "]"})
			}
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, nil
}

func convertToolsToGemini(schemas []executor.ToolSchema) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		var schema genai.Schema
		if err := json.Unmarshal(s.InputSchema, &schema); err != nil {
			schema = genai.Schema{Type: genai.TypeObject}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertGeminiResponse(resp *genai.GenerateContentResponse) ([]convcore.ContentBlock, error) {
	var blocks []convcore.ContentBlock
	callIndex := map[string]int{}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				blocks = append(blocks, convcore.TextBlock{Text: part.Text})
			}
			if part.FunctionCall != nil {
				argsJSON, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, fmt.Errorf("marshal function call args: %w", err)
				}
				name := part.FunctionCall.Name
				id := fmt.Sprintf("gemini-%s-%d", name, callIndex[name])
				callIndex[name]++
				blocks = append(blocks, convcore.ToolUseBlock{ID: id, Name: name, Input: argsJSON})
			}
		}
	}
	return blocks, nil
}
