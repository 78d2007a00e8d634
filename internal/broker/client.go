// Package broker dispatches typed inference requests to the cheapest capable
// provider, streams tokens, falls back across providers on failure, and
// records the cost of every call.
package broker

import (
	"context"

	"aide/internal/types"
)

// CallResult is the raw outcome of one provider call before the broker
// attaches latency and cost.
type CallResult struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client is the minimal adapter every provider implements.
type Client interface {
	// Provider identifies the backend family.
	Provider() types.Provider
	// Model returns the configured model name.
	Model() string
	// Call performs a full (non-streaming) completion.
	Call(ctx context.Context, req types.InferenceRequest) (CallResult, error)
	// Stream yields token chunks followed by a final done chunk. The
	// content channel is closed when the stream ends; at most one error
	// is sent on the error channel.
	Stream(ctx context.Context, req types.InferenceRequest) (<-chan types.StreamChunk, <-chan error)
	// HealthCheck issues a trivial generation and reports reachability.
	HealthCheck(ctx context.Context) error
}

// healthCheckPrompt is the trivial generation used by every adapter's
// HealthCheck: healthy iff a non-empty response comes back.
const healthCheckPrompt = "test"

const healthCheckMaxTokens = 5
