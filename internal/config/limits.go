package config

const (
	// MaxConversationTitleLength is the maximum length for conversation
	// titles. Limited to 255 to fit in PostgreSQL VARCHAR(255) and
	// provide reasonable UX (titles should be short and descriptive).
	MaxConversationTitleLength = 255

	// MaxDealNameLength is the maximum length for deal names.
	// Same limit as conversation titles for consistency.
	MaxDealNameLength = 255

	// MaxMessageLength caps a single chat message. Long pasted documents
	// belong in the document upload flow, not the chat input.
	MaxMessageLength = 8000

	// MaxSourcePageLength caps the marketing-context tag recorded on
	// anonymous sessions.
	MaxSourcePageLength = 100
)
