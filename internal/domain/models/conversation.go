package models

import "time"

// Conversation is an authenticated chat thread, optionally linked to a
// deal. UpdatedAt drives recency sorting in history lists.
type Conversation struct {
	ID          int64      `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	DealID      *int64     `json:"deal_id,omitempty" db:"deal_id"`
	Journey     string     `json:"journey,omitempty" db:"journey"`
	CurrentGate string     `json:"current_gate,omitempty" db:"current_gate"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
