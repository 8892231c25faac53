// Package llm abstracts the model providers that generate advisory
// responses. The chat service consumes providers through the Provider
// interface so tests and local development never need real API keys.
package llm

import (
	"context"

	"dealdesk/internal/domain/models"
)

// Message is one prompt entry sent to a provider.
type Message struct {
	Role    models.Role
	Content string
}

// GenerateRequest describes one streaming completion request.
type GenerateRequest struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// StreamMetadata carries final usage information once a stream ends.
type StreamMetadata struct {
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// StreamEvent is one item emitted by a provider stream. Exactly one of
// the fields is meaningful: Text for a delta, Metadata for the final
// event, Error for a failure.
type StreamEvent struct {
	Text     string
	Metadata *StreamMetadata
	Error    error
}

// Provider generates streaming responses for a family of models.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// SupportsModel returns true if this provider serves the given model.
	SupportsModel(model string) bool

	// StreamResponse starts a streaming completion. The returned channel
	// is closed when the stream ends; cancellation of ctx stops it.
	StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error)
}
