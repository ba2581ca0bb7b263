// Package llm adapts phoenix's executor.LlmClient seam to the concrete
// model-provider SDKs: github.com/anthropics/anthropic-sdk-go,
// github.com/sashabaranov/go-openai, and google.golang.org/genai. This is
// the teacher's "external collaborator shim" layer (internal/agent/providers
// in haasonsaas-nexus), adapted from a streaming, channel-based contract to
// phoenix's synchronous one: executor.LlmClient.Complete returns a single
// LlmResult rather than a <-chan of partial chunks, so each adapter here
// drains its SDK's blocking (non-streaming) completion call instead of the
// teacher's SSE stream loop.
package llm

import (
	"fmt"

	"github.com/scottopell/phoenix-ide/internal/config"
	"github.com/scottopell/phoenix-ide/internal/executor"
)

// continuationPrompt is the fixed, tool-less prompt issued when a
// conversation crosses the context-usage threshold (spec.md §4.7):
// the model is asked to summarize the transcript so far into a single
// message that seeds a fresh context window.
const continuationPrompt = "Summarize this conversation so far in enough detail that you could resume it with no other context. Do not use any tools. Reply with the summary only."

// New builds the executor.LlmClient phoenix's cmd/phoenix wires into
// executor.New, selecting gateway or direct mode per cfg.LLM.Mode and
// wrapping the default provider and cfg.LLM.FallbackChain into a
// failoverClient whenever FallbackChain is non-empty.
func New(cfg *config.Config) (executor.LlmClient, error) {
	if cfg.LLM.Mode == "gateway" {
		return newGatewayClient(cfg.LLM.Gateway)
	}

	clients := map[string]executor.LlmClient{}
	for name, pc := range cfg.LLM.Providers {
		client, err := newDirectClient(name, pc)
		if err != nil {
			return nil, fmt.Errorf("llm: configure provider %q: %w", name, err)
		}
		clients[name] = client
	}

	primary, ok := clients[cfg.LLM.DefaultProvider]
	if !ok {
		return nil, fmt.Errorf("llm: default_provider %q has no providers entry", cfg.LLM.DefaultProvider)
	}

	if len(cfg.LLM.FallbackChain) == 0 {
		return primary, nil
	}

	chain := []executor.LlmClient{primary}
	for _, name := range cfg.LLM.FallbackChain {
		if name == cfg.LLM.DefaultProvider {
			continue
		}
		client, ok := clients[name]
		if !ok {
			return nil, fmt.Errorf("llm: fallback_chain entry %q has no providers entry", name)
		}
		chain = append(chain, client)
	}
	return newFailoverClient(chain), nil
}

func newDirectClient(name string, pc config.LLMProviderConfig) (executor.LlmClient, error) {
	switch name {
	case "anthropic":
		return newAnthropicClient(pc)
	case "openai", "fireworks":
		return newOpenAIClient(pc)
	case "gemini":
		return newGeminiClient(pc)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}
