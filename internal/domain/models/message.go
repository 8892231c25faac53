package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single transcript entry. Content is immutable once the
// message is finalized; assistant messages are created only after their
// stream completes, with the accumulated text flushed as one row.
type ChatMessage struct {
	ID             string                 `json:"id" db:"id"`
	ConversationID *int64                 `json:"conversation_id,omitempty" db:"conversation_id"`
	SessionToken   *string                `json:"-" db:"session_token"`
	Role           Role                   `json:"role" db:"role"`
	Content        string                 `json:"content" db:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}
