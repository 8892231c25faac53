package models

import "time"

// Session is an anonymous chat session. The message allowance is
// server-authoritative: clients display MessagesRemaining but never
// compute it themselves.
type Session struct {
	Token             string    `json:"token" db:"token"`
	MessagesRemaining int       `json:"messages_remaining" db:"messages_remaining"`
	SourcePage        string    `json:"source_page,omitempty" db:"source_page"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// LimitReached reports whether the session has exhausted its allowance.
func (s *Session) LimitReached() bool {
	return s.MessagesRemaining <= 0
}
