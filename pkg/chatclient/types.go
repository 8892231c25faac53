package chatclient

import "time"

// Session is an anonymous chat session as reported by the server. The
// remaining-message counter is server-authoritative; clients mirror it
// from session payloads and done events but never compute it.
type Session struct {
	Token             string    `json:"token"`
	MessagesRemaining int       `json:"messages_remaining"`
	SourcePage        string    `json:"source_page,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Message is a transcript entry.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionState is a session plus its transcript, returned on restore.
type SessionState struct {
	Session  *Session  `json:"session"`
	Messages []Message `json:"messages"`
}

// Conversation is an authenticated chat thread.
type Conversation struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	DealID      *int64 `json:"deal_id,omitempty"`
	Journey     string `json:"journey,omitempty"`
	CurrentGate string `json:"current_gate,omitempty"`
}

// ConversationState is a conversation plus its transcript.
type ConversationState struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}

// Deal is a business transaction being advised on.
type Deal struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Journey     string `json:"journey"`
	CurrentGate string `json:"current_gate"`
}

// Deliverable is a purchased report artifact.
type Deliverable struct {
	ID    string `json:"id"`
	Gate  string `json:"gate"`
	Title string `json:"title"`
}

// DealDetail is a deal plus its deliverables.
type DealDetail struct {
	Deal         *Deal         `json:"deal"`
	Deliverables []Deliverable `json:"deliverables"`
}

// PurchaseResult describes a fulfilled gate unlock.
type PurchaseResult struct {
	Gate            string `json:"gate"`
	DeliverableID   string `json:"deliverable_id"`
	NewBalanceCents int64  `json:"new_balance_cents"`
}
