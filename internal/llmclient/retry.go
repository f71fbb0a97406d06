package llmclient

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sqrtqiezi/diting-analyzer/internal/config"
)

// InvokeWithRetry wraps Provider.Invoke in the retry loop from spec §4.5.2:
// retry on network errors/timeouts/429/5xx, sleep backoff_seconds*2^(n-1)
// with no jitter between attempts, and surface the last error annotated
// with the batch identity if every attempt fails. chatroom/batchIndex are
// for the annotation and logging only.
func InvokeWithRetry(ctx context.Context, p Provider, cfg config.LLMConfig, chatroom string, batchIndex int, system, user string) (string, error) {
	var lastErr error
	maxAttempts := cfg.MaxRetries + 1
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		text, err := p.Invoke(ctx, system, user)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		log.Warn().Str("chatroom", chatroom).Int("batch", batchIndex).Int("attempt", attempt).
			Err(err).Dur("backoff", delay).Msg("llm invocation failed, retrying")

		select {
		case <-ctx.Done():
			return "", &invocationError{Chatroom: chatroom, BatchIndex: batchIndex, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return "", &invocationError{Chatroom: chatroom, BatchIndex: batchIndex, Attempts: attempt, Err: lastErr}
}
