package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ScriptedProvider is a mock provider for development and tests. It
// streams a canned advisory response word by word without requiring an
// API key. Model names: "scripted-fast" (no delay), "scripted-slow"
// (100ms per word).
type ScriptedProvider struct{}

// NewScriptedProvider creates a new scripted provider.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{}
}

// Name returns the provider name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// SupportsModel returns true if the model name starts with "scripted-".
func (p *ScriptedProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "scripted-")
}

// StreamResponse streams a deterministic response derived from the last
// user message, one word per delta.
func (p *ScriptedProvider) StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by scripted provider", req.Model)
	}

	delay := time.Duration(0)
	if strings.Contains(req.Model, "slow") {
		delay = 100 * time.Millisecond
	}

	text := p.respond(req)
	words := strings.Fields(text)

	eventChan := make(chan StreamEvent, 10)

	go func() {
		defer close(eventChan)

		for i, word := range words {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					abandon(eventChan, ctx.Err())
					return
				}
			}

			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				abandon(eventChan, ctx.Err())
				return
			case eventChan <- StreamEvent{Text: delta}:
			}
		}

		meta := StreamEvent{
			Metadata: &StreamMetadata{
				Model:        req.Model,
				InputTokens:  len(req.Messages) * 20,
				OutputTokens: len(words),
				StopReason:   "end_turn",
			},
		}
		select {
		case eventChan <- meta:
		case <-ctx.Done():
		}
	}()

	return eventChan, nil
}

// abandon reports the cancellation without blocking: once the context
// is gone nobody may be reading the channel anymore.
func abandon(eventChan chan<- StreamEvent, err error) {
	select {
	case eventChan <- StreamEvent{Error: err}:
	default:
	}
}

func (p *ScriptedProvider) respond(req *GenerateRequest) string {
	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}

	if lastUser == "" {
		return "Tell me about the business you are looking at and I will walk you through the next steps."
	}

	return fmt.Sprintf(
		"Thanks for sharing that. Regarding %q: the first thing to pin down is the seller's discretionary earnings, "+
			"then we can talk multiples for the segment and structure an offer range. "+
			"What do the last three years of revenue look like?",
		truncate(lastUser, 80),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
