package chat

import (
	"context"
	"fmt"
	"strings"

	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/service/llm"
	"dealdesk/pkg/stream"
)

const anonymousSystemPrompt = `You are an M&A advisor helping a visitor evaluate buying or selling ` +
	`a small business. Be concrete and practical. Ask one focused question at a time. ` +
	`Keep answers under 150 words.`

const conversationSystemPromptFmt = `You are an M&A advisor working a live engagement. ` +
	`The deal is currently in the %q stage; keep your guidance focused on completing that stage. ` +
	`Be concrete and practical. Ask one focused question at a time.`

// streamErrorMessage is the only error text ever put on the wire; real
// causes go to the log.
const streamErrorMessage = "The assistant could not complete this response. Please try again."

// send forwards ev to the client channel, giving up when the request
// context is gone. The handler stops draining on disconnect, so an
// unguarded send on a full channel would strand the turn goroutine.
func send(ctx context.Context, events chan<- stream.Event, ev stream.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// StreamAnonymousTurn runs one turn of an anonymous session. The user
// message is persisted before this returns; model output streams on the
// returned channel, which closes after a terminal event. Preflight
// failures (unknown token, exhausted allowance, invalid content) are
// returned as errors so the handler can respond before committing to a
// stream.
func (s *Service) StreamAnonymousTurn(ctx context.Context, token, content string) (<-chan stream.Event, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.LimitReached() {
		return nil, &domain.LimitReachedError{Token: token}
	}

	userMsg := &models.ChatMessage{
		SessionToken: &token,
		Role:         models.RoleUser,
		Content:      content,
	}
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	history, err := s.messages.ListBySession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}

	events := make(chan stream.Event, 16)

	go func() {
		defer close(events)

		text, err := s.relayModelStream(ctx, events, anonymousSystemPrompt, history)
		if err != nil {
			s.logger.Error("anonymous turn failed", "token", token, "error", err)
			send(ctx, events, stream.ErrorEvent(streamErrorMessage))
			return
		}

		assistantMsg := &models.ChatMessage{
			SessionToken: &token,
			Role:         models.RoleAssistant,
			Content:      text,
		}
		if err := s.messages.Append(ctx, assistantMsg); err != nil {
			s.logger.Error("failed to persist assistant message", "token", token, "error", err)
			send(ctx, events, stream.ErrorEvent(streamErrorMessage))
			return
		}

		done := stream.Event{Type: stream.EventDone}
		remaining, err := s.sessions.DecrementRemaining(ctx, token)
		if err != nil {
			// The turn itself succeeded; a missing counter only degrades
			// the client's limit display.
			s.logger.Warn("failed to decrement session allowance", "token", token, "error", err)
		} else {
			done.MessagesRemaining = &remaining
		}

		send(ctx, events, done)
	}()

	return events, nil
}

// StreamConversationTurn runs one turn of an authenticated
// conversation, then evaluates gate progression: a crossed free gate
// emits gate_advance, a priced one emits a paywall offer, and the done
// event always carries the conversation and deal identifiers.
func (s *Service) StreamConversationTurn(ctx context.Context, userID string, conversationID int64, content string) (<-chan stream.Event, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetByID(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		ConversationID: &conv.ID,
		Role:           models.RoleUser,
		Content:        content,
	}
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	history, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	events := make(chan stream.Event, 16)

	go func() {
		defer close(events)

		system := fmt.Sprintf(conversationSystemPromptFmt, conv.CurrentGate)
		text, err := s.relayModelStream(ctx, events, system, history)
		if err != nil {
			s.logger.Error("conversation turn failed",
				"conversation_id", conv.ID, "error", err)
			send(ctx, events, stream.ErrorEvent(streamErrorMessage))
			return
		}

		assistantMsg := &models.ChatMessage{
			ConversationID: &conv.ID,
			Role:           models.RoleAssistant,
			Content:        text,
		}
		if err := s.messages.Append(ctx, assistantMsg); err != nil {
			s.logger.Error("failed to persist assistant message",
				"conversation_id", conv.ID, "error", err)
			send(ctx, events, stream.ErrorEvent(streamErrorMessage))
			return
		}

		if err := s.conversations.Touch(ctx, conv.ID); err != nil {
			s.logger.Warn("failed to touch conversation", "conversation_id", conv.ID, "error", err)
		}

		s.emitGateEvents(ctx, events, conv)

		done := stream.Event{
			Type:           stream.EventDone,
			ConversationID: &conv.ID,
			DealID:         conv.DealID,
		}
		send(ctx, events, done)
	}()

	return events, nil
}

// emitGateEvents runs post-turn gate evaluation. Progression failures
// never fail the turn; the transcript is already safe.
func (s *Service) emitGateEvents(ctx context.Context, events chan<- stream.Event, conv *models.Conversation) {
	userTurns, err := s.messages.CountByConversationAndRole(ctx, conv.ID, models.RoleUser)
	if err != nil {
		s.logger.Warn("failed to count user turns", "conversation_id", conv.ID, "error", err)
		return
	}

	outcome, err := s.gates.EvaluateTurn(ctx, conv, userTurns)
	if err != nil {
		s.logger.Warn("gate evaluation failed", "conversation_id", conv.ID, "error", err)
		return
	}

	if outcome.AdvancedTo != "" {
		send(ctx, events, stream.GateAdvance(outcome.AdvancedTo))
	}
	if outcome.Offer != nil {
		send(ctx, events, stream.Event{
			Type:         stream.EventPaywall,
			Gate:         outcome.Offer.Gate,
			CurrentGate:  outcome.Offer.CurrentGate,
			PriceCents:   outcome.Offer.PriceCents,
			BalanceCents: outcome.Offer.BalanceCents,
			Sufficient:   outcome.Offer.Sufficient,
		})
	}
}

// relayModelStream runs the provider stream, forwarding each text delta
// to the client channel, and returns the accumulated response.
func (s *Service) relayModelStream(ctx context.Context, events chan<- stream.Event, system string, history []models.ChatMessage) (string, error) {
	req := &llm.GenerateRequest{
		Model:    s.model,
		System:   system,
		Messages: toPrompt(history),
	}

	providerEvents, err := s.provider.StreamResponse(ctx, req)
	if err != nil {
		return "", fmt.Errorf("start model stream: %w", err)
	}

	var full strings.Builder
	for ev := range providerEvents {
		switch {
		case ev.Error != nil:
			return "", ev.Error
		case ev.Metadata != nil:
			s.logger.Debug("model stream finished",
				"model", ev.Metadata.Model,
				"input_tokens", ev.Metadata.InputTokens,
				"output_tokens", ev.Metadata.OutputTokens,
				"stop_reason", ev.Metadata.StopReason,
			)
		case ev.Text != "":
			full.WriteString(ev.Text)
			select {
			case events <- stream.TextDelta(ev.Text):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	if full.Len() == 0 {
		return "", fmt.Errorf("model stream produced no text")
	}

	return full.String(), nil
}

// toPrompt converts transcript rows to prompt messages, dropping
// system rows.
func toPrompt(history []models.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
