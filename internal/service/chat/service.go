// Package chat orchestrates advisory conversations: anonymous trial
// sessions, authenticated conversations with their deals, and the
// streaming turn loop that relays model output to clients.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"dealdesk/internal/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
	"dealdesk/internal/service/gate"
	"dealdesk/internal/service/llm"
)

// Service implements the chat operations.
type Service struct {
	sessions      repositories.SessionRepository
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	deals         repositories.DealRepository
	provider      llm.Provider
	gates         *gate.Service
	journeys      *config.Journeys
	txManager     repositories.TransactionManager
	model         string
	sessionSeed   int
	logger        *slog.Logger
}

// NewService creates a new chat service.
func NewService(
	sessions repositories.SessionRepository,
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	deals repositories.DealRepository,
	provider llm.Provider,
	gates *gate.Service,
	journeys *config.Journeys,
	txManager repositories.TransactionManager,
	model string,
	sessionSeed int,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessions:      sessions,
		conversations: conversations,
		messages:      messages,
		deals:         deals,
		provider:      provider,
		gates:         gates,
		journeys:      journeys,
		txManager:     txManager,
		model:         model,
		sessionSeed:   sessionSeed,
		logger:        logger,
	}
}

// CreateSession mints a new anonymous session seeded with the message
// allowance. The token is the session's only credential.
func (s *Service) CreateSession(ctx context.Context, sourcePage string) (*models.Session, error) {
	if err := validation.Validate(sourcePage, validation.Length(0, config.MaxSourcePageLength)); err != nil {
		return nil, fmt.Errorf("%w: source_page: %v", domain.ErrValidation, err)
	}

	session := &models.Session{
		Token:             uuid.New().String(),
		MessagesRemaining: s.sessionSeed,
		SourcePage:        sourcePage,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("anonymous session created",
		"token", session.Token,
		"source_page", sourcePage,
	)

	return session, nil
}

// SessionState is a session plus its transcript, returned on restore.
type SessionState struct {
	Session  *models.Session      `json:"session"`
	Messages []models.ChatMessage `json:"messages"`
}

// GetSession restores an anonymous session and its transcript. Returns
// domain.ErrNotFound for unknown or expired tokens.
func (s *Service) GetSession(ctx context.Context, token string) (*SessionState, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListBySession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}

	return &SessionState{Session: session, Messages: messages}, nil
}

// CreateConversation starts an authenticated conversation on the given
// journey, creating and attaching its deal in the same transaction. An
// empty journey selects the default track.
func (s *Service) CreateConversation(ctx context.Context, userID, title, journeyName string) (*models.Conversation, error) {
	if journeyName == "" {
		journeyName = config.DefaultJourneyName
	}
	journey := s.journeys.Find(journeyName)
	if journey == nil {
		return nil, fmt.Errorf("%w: unknown journey %q", domain.ErrValidation, journeyName)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	if err := validation.Validate(title, validation.Length(1, config.MaxConversationTitleLength)); err != nil {
		return nil, fmt.Errorf("%w: title: %v", domain.ErrValidation, err)
	}

	firstGate := journey.Gates[0].Name

	conv := &models.Conversation{
		UserID:      userID,
		Title:       title,
		Journey:     journeyName,
		CurrentGate: firstGate,
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.conversations.Create(txCtx, conv); err != nil {
			return err
		}

		deal := &models.Deal{
			UserID:      userID,
			Name:        title,
			Journey:     journeyName,
			CurrentGate: firstGate,
		}
		if err := s.deals.Create(txCtx, deal); err != nil {
			return err
		}

		if err := s.conversations.AttachDeal(txCtx, conv.ID, deal.ID); err != nil {
			return err
		}
		conv.DealID = &deal.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"user_id", userID,
		"journey", journeyName,
	)

	return conv, nil
}

// ListConversations returns the user's conversations, most recently
// active first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	return s.conversations.ListByUser(ctx, userID)
}

// ConversationState is a conversation plus its transcript.
type ConversationState struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.ChatMessage `json:"messages"`
}

// GetConversation retrieves a conversation with its transcript, scoped
// to the owning user.
func (s *Service) GetConversation(ctx context.Context, id int64, userID string) (*ConversationState, error) {
	conv, err := s.conversations.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}

	return &ConversationState{Conversation: conv, Messages: messages}, nil
}

// validateContent rejects empty or oversized user messages.
func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content is required", domain.ErrValidation)
	}
	if err := validation.Validate(content, validation.Length(1, config.MaxMessageLength)); err != nil {
		return fmt.Errorf("%w: content: %v", domain.ErrValidation, err)
	}
	return nil
}
