package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// PostgresSessionRepository implements SessionRepository using PostgreSQL
type PostgresSessionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSessionRepository creates a new PostgresSessionRepository
func NewSessionRepository(config *RepositoryConfig) repositories.SessionRepository {
	return &PostgresSessionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new anonymous session
func (r *PostgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (token, messages_remaining, source_page, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, r.tables.Sessions)

	now := time.Now()
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		session.Token,
		session.MessagesRemaining,
		session.SourcePage,
		now,
		now,
	).Scan(&session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session %s: %w", session.Token, domain.ErrConflict)
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByToken retrieves a session by its token
func (r *PostgresSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT token, messages_remaining, source_page, created_at, updated_at
		FROM %s
		WHERE token = $1
	`, r.tables.Sessions)

	var session models.Session
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, token).Scan(
		&session.Token,
		&session.MessagesRemaining,
		&session.SourcePage,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("session %s: %w", token, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &session, nil
}

// DecrementRemaining atomically decrements the message allowance and
// returns the new value. GREATEST keeps the counter from going negative
// if two turns race.
func (r *PostgresSessionRepository) DecrementRemaining(ctx context.Context, token string) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET messages_remaining = GREATEST(messages_remaining - 1, 0), updated_at = $2
		WHERE token = $1
		RETURNING messages_remaining
	`, r.tables.Sessions)

	var remaining int
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, token, time.Now()).Scan(&remaining)

	if err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("session %s: %w", token, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("decrement session allowance: %w", err)
	}

	return remaining, nil
}

// Delete removes a session (used on session-to-account conversion)
func (r *PostgresSessionRepository) Delete(ctx context.Context, token string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE token = $1`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", token, domain.ErrNotFound)
	}

	return nil
}
