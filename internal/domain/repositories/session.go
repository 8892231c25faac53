package repositories

import (
	"context"

	"dealdesk/internal/domain/models"
)

// SessionRepository defines data access for anonymous chat sessions.
type SessionRepository interface {
	// Create inserts a new session seeded with its message allowance.
	Create(ctx context.Context, session *models.Session) error

	// GetByToken retrieves a session, or domain.ErrNotFound.
	GetByToken(ctx context.Context, token string) (*models.Session, error)

	// DecrementRemaining atomically decrements the allowance and returns
	// the new value. Never goes below zero.
	DecrementRemaining(ctx context.Context, token string) (int, error)

	// Delete removes a session (used on session-to-account conversion).
	Delete(ctx context.Context, token string) error
}
