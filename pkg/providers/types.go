// Package providers defines the backend adapter contract: one strategy
// object per LLM vendor, all normalized to the same request and failure
// shapes so the pipeline never sees vendor wire formats.
package providers

import "context"

// Message is one turn of a backend-agnostic request. A non-empty ImageURL
// turns the message into a multimodal part for providers that support it.
type Message struct {
	Role     string
	Content  string
	ImageURL string
}

// CompletionRequest carries everything a provider needs for one attempt.
type CompletionRequest struct {
	Model            string
	Messages         []Message
	Temperature      float64
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Provider is the strategy interface over the configured backend. A single
// attempt per call: retry policy belongs to the caller.
type Provider interface {
	// Complete returns the generated text or a *providers.Error.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}
