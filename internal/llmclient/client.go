package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/sqrtqiezi/diting-analyzer/internal/config"
)

// openAIProvider is the concrete Provider backed by an OpenAI-compatible
// chat completion endpoint (spec §4.5.1, §6.3), built with the teacher's
// openai-go client construction pattern (option.WithAPIKey/WithBaseURL).
type openAIProvider struct {
	sdk   sdk.Client
	model string
	cfg   config.LLMConfig
}

// Build prepares a model handle from config (C5 "build" operation).
func Build(cfg config.LLMConfig) Provider {
	client := sdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.APIBaseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
	)
	return &openAIProvider{sdk: client, model: cfg.ModelName, cfg: cfg}
}

// Invoke sends a single system+user message pair and returns the assistant's
// raw text. It does not retry; retrying is the caller's responsibility
// (InvokeWithRetry) so that retry policy can be tested independently of the
// transport.
func (p *openAIProvider) Invoke(ctx context.Context, system, user string) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(p.model),
		Temperature: sdk.Float(p.cfg.Temperature),
		MaxTokens:   sdk.Int(int64(p.cfg.MaxTokens)),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(system),
			sdk.UserMessage(user),
		},
	}

	comp, err := p.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", errors.New("llmclient: empty choices in completion response")
	}
	return comp.Choices[0].Message.Content, nil
}

// statusCoder matches the status-carrying error shape returned by the
// stainless-generated openai-go SDK (e.g. *sdk.Error), without importing its
// concrete type so the retry classification also works against any provider
// that surfaces an HTTP status the same way.
type statusCoder interface {
	StatusCode() int
}

// isRetryable classifies an Invoke error per spec §4.5.2: network errors,
// timeouts, HTTP 429, and HTTP >= 500 are retryable. Any other 4xx is not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	// Unknown shape (e.g. a bare connection-refused wrapped error): treat as
	// a transient transport failure rather than a permanent schema problem.
	return true
}

// invocationError annotates a failed invocation with the batch identity it
// was working on, per spec §4.5.2 "surface the last error annotated with the
// batch identity".
type invocationError struct {
	Chatroom   string
	BatchIndex int
	Attempts   int
	Err        error
}

func (e *invocationError) Error() string {
	return fmt.Sprintf("llm invoke failed for chatroom=%s batch=%d after %d attempts: %v",
		e.Chatroom, e.BatchIndex, e.Attempts, e.Err)
}

func (e *invocationError) Unwrap() error { return e.Err }
