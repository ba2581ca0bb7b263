package llm

import (
	"context"
	"errors"

	"github.com/scottopell/phoenix-ide/internal/executor"
)

// failoverClient tries each configured provider in order, moving to the
// next only when the prior one fails with a retryable ErrorKind (the
// statemachine's own backoff/retry loop handles retrying the same
// provider; this handles cfg.LLM.FallbackChain, switching providers
// instead). Mirrors the teacher's provider-chain idea in cmd/nexus's
// service config without the teacher's health-check polling, since
// phoenix has no standing pool of warm connections to probe.
type failoverClient struct {
	chain []executor.LlmClient
}

func newFailoverClient(chain []executor.LlmClient) executor.LlmClient {
	return &failoverClient{chain: chain}
}

func (f *failoverClient) Complete(ctx context.Context, req executor.LlmRequest) (executor.LlmResult, error) {
	var lastErr error
	for i, client := range f.chain {
		result, err := client.Complete(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i == len(f.chain)-1 || !isRetryableClassified(err) {
			return executor.LlmResult{}, err
		}
	}
	return executor.LlmResult{}, lastErr
}

func (f *failoverClient) Continuation(ctx context.Context, req executor.LlmRequest) (string, error) {
	var lastErr error
	for i, client := range f.chain {
		summary, err := client.Continuation(ctx, req)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		if i == len(f.chain)-1 || !isRetryableClassified(err) {
			return "", err
		}
	}
	return "", lastErr
}

func isRetryableClassified(err error) bool {
	var ce *executor.ClassifiedError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind.IsRetryable()
}
