package repositories

import (
	"context"

	"dealdesk/internal/domain/models"
)

// MessageRepository defines data access for chat messages. A message
// belongs to either an anonymous session (session_token set) or an
// authenticated conversation (conversation_id set), never both.
type MessageRepository interface {
	// Append inserts a finalized message. Messages are immutable once
	// written.
	Append(ctx context.Context, msg *models.ChatMessage) error

	// ListByConversation returns a conversation's messages in creation
	// order.
	ListByConversation(ctx context.Context, conversationID int64) ([]models.ChatMessage, error)

	// ListBySession returns an anonymous session's messages in creation
	// order.
	ListBySession(ctx context.Context, token string) ([]models.ChatMessage, error)

	// CountByConversationAndRole counts messages with the given role,
	// used by gate progression evaluation.
	CountByConversationAndRole(ctx context.Context, conversationID int64, role models.Role) (int, error)
}
