package repositories

import (
	"context"

	"dealdesk/internal/domain/models"
)

// ConversationRepository defines data access for authenticated
// conversations.
type ConversationRepository interface {
	// Create inserts a new conversation and assigns its ID.
	Create(ctx context.Context, conv *models.Conversation) error

	// GetByID retrieves a conversation owned by userID, or domain.ErrNotFound.
	GetByID(ctx context.Context, id int64, userID string) (*models.Conversation, error)

	// ListByUser returns the user's conversations, most recently
	// updated first.
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)

	// Touch bumps updated_at so the conversation sorts to the top of
	// history lists.
	Touch(ctx context.Context, id int64) error

	// UpdateGate sets the journey/gate progress tags.
	UpdateGate(ctx context.Context, id int64, gate string) error

	// AttachDeal links a deal created during the conversation.
	AttachDeal(ctx context.Context, id int64, dealID int64) error
}
