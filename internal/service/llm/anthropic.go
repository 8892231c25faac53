package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"dealdesk/internal/domain/models"
)

// AnthropicProvider implements Provider for Claude models.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates a provider with the given API key.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicProvider{client: &client}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// SupportsModel returns true for Claude models.
func (p *AnthropicProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// StreamResponse starts a streaming completion against the Anthropic API.
// Text deltas are forwarded as they arrive; usage metadata is emitted
// once after the stream ends.
func (p *AnthropicProvider) StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	if req.System != "" {
		apiParams.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	eventChan := make(chan StreamEvent, 10) // Buffered to prevent blocking

	go func() {
		defer close(eventChan)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulator for final message metadata
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				eventChan <- StreamEvent{Error: fmt.Errorf("failed to accumulate message: %w", err)}
				return
			}

			text := extractTextDelta(event)
			if text == "" {
				continue
			}

			select {
			case <-ctx.Done():
				eventChan <- StreamEvent{Error: ctx.Err()}
				return
			case eventChan <- StreamEvent{Text: text}:
			}
		}

		if err := stream.Err(); err != nil {
			eventChan <- StreamEvent{Error: fmt.Errorf("anthropic streaming error: %w", err)}
			return
		}

		eventChan <- StreamEvent{
			Metadata: &StreamMetadata{
				Model:        string(message.Model),
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
				StopReason:   string(message.StopReason),
			},
		}
	}()

	return eventChan, nil
}

// extractTextDelta pulls the text out of a content_block_delta event,
// returning "" for every other event kind.
func extractTextDelta(event anthropic.MessageStreamEventUnion) string {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		switch delta := e.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return delta.Text
		}
	}
	return ""
}

// convertMessages converts prompt messages to the Anthropic format.
func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)

		switch msg.Role {
		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(block))
		case models.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(block))
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}

	return result, nil
}
