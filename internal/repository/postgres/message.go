package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// PostgresMessageRepository implements MessageRepository using PostgreSQL
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository
func NewMessageRepository(config *RepositoryConfig) repositories.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Append inserts a finalized, immutable message
func (r *PostgresMessageRepository) Append(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, session_token, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SessionToken,
		msg.Role,
		msg.Content,
		msg.Metadata,
		msg.CreatedAt,
	)
	if err != nil {
		// The conversation or session vanished between the check and
		// the insert.
		if isForeignKeyViolation(err) {
			return fmt.Errorf("append message: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

// ListByConversation returns a conversation's messages in creation order
func (r *PostgresMessageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]models.ChatMessage, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, session_token, role, content, metadata, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListBySession returns an anonymous session's messages in creation order
func (r *PostgresMessageRepository) ListBySession(ctx context.Context, token string) ([]models.ChatMessage, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, session_token, role, content, metadata, created_at
		FROM %s
		WHERE session_token = $1
		ORDER BY created_at ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// CountByConversationAndRole counts a conversation's messages with the
// given role (used by gate progression evaluation)
func (r *PostgresMessageRepository) CountByConversationAndRole(ctx context.Context, conversationID int64, role models.Role) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE conversation_id = $1 AND role = $2
	`, r.tables.Messages)

	var count int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, conversationID, role).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

func scanMessages(rows pgx.Rows) ([]models.ChatMessage, error) {
	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SessionToken,
			&msg.Role,
			&msg.Content,
			&msg.Metadata,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
