package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/scottopell/phoenix-ide/internal/executor"
	"github.com/scottopell/phoenix-ide/pkg/convcore"
)

// classify turns a raw SDK error into an executor.ClassifiedError, the
// narrower equivalent of the teacher's FailoverReason/ProviderError pair
// (internal/agent/providers/errors.go): phoenix's statemachine only needs to
// know whether an error is retryable, not phoenix-specific failover
// routing, so the reason taxonomy collapses into convcore.ErrorKind.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &executor.ClassifiedError{Kind: convcore.ErrorKindTimedOut, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &executor.ClassifiedError{Kind: convcore.ErrorKindTimedOut, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "too many requests", "resource exhausted", "quota"):
		return &executor.ClassifiedError{Kind: convcore.ErrorKindRateLimit, Err: err}
	case containsAny(msg, "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"):
		return &executor.ClassifiedError{Kind: convcore.ErrorKindServerError, Err: err}
	case containsAny(msg, "timeout", "deadline exceeded"):
		return &executor.ClassifiedError{Kind: convcore.ErrorKindTimedOut, Err: err}
	case containsAny(msg, "connection reset", "connection refused", "no such host", "eof", "broken pipe"):
		return &executor.ClassifiedError{Kind: convcore.ErrorKindNetwork, Err: err}
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key", "invalid x-api-key"):
		return &executor.ClassifiedError{Kind: convcore.ErrorKindInvalidRequest, Err: err}
	case containsAny(msg, "400", "invalid request", "validation"):
		return &executor.ClassifiedError{Kind: convcore.ErrorKindInvalidRequest, Err: err}
	default:
		return &executor.ClassifiedError{Kind: convcore.ErrorKindUnknown, Err: err}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
