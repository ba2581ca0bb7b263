package llm

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/executor"
)

// newGatewayClient builds the llm.Mode == "gateway" path (SPEC_FULL.md §6.4):
// a single upstream endpoint serves every model id regardless of which
// provider actually hosts it. Gateways of this shape (LiteLLM, OpenRouter,
// Bedrock-access-gateway) near-universally expose an OpenAI-compatible
// /chat/completions route, so this reuses openAIClient pointed at
// cfg.LLM.Gateway.BaseURL rather than inventing a fourth wire format.
func newGatewayClient(gw config.GatewayLLMConfig) (executor.LlmClient, error) {
	if gw.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base_url is required")
	}
	cfg := openai.DefaultConfig(gw.APIKey)
	cfg.BaseURL = gw.BaseURL
	return &openAIClient{client: openai.NewClientWithConfig(cfg), defaultModel: defaultOpenAIModel}, nil
}
