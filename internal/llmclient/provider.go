// Package llmclient implements C5: building a model handle, invoking it with
// retry/backoff, and parsing the custom delimited wire format into
// RawTopics. Two strategy surfaces from spec §9 live here: the Provider
// interface (so tests can inject canned text without a network) and the
// parser (isolated so the wire format can evolve independently).
package llmclient

import "context"

// Provider is the small interface spec §9 calls for: "invoke(messages) →
// text". Production has one implementation, openAIProvider, backed by an
// OpenAI-compatible chat completion endpoint (spec §6.3).
type Provider interface {
	Invoke(ctx context.Context, system, user string) (string, error)
}
