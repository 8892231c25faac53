package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// PostgresConversationRepository implements ConversationRepository using PostgreSQL
type PostgresConversationRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewConversationRepository creates a new PostgresConversationRepository
func NewConversationRepository(config *RepositoryConfig) repositories.ConversationRepository {
	return &PostgresConversationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new conversation and assigns its server-side ID
func (r *PostgresConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, title, deal_id, journey, current_gate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, r.tables.Conversations)

	now := time.Now()
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		conv.UserID,
		conv.Title,
		conv.DealID,
		conv.Journey,
		conv.CurrentGate,
		now,
		now,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// GetByID retrieves a conversation owned by the user
func (r *PostgresConversationRepository) GetByID(ctx context.Context, id int64, userID string) (*models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, deal_id, journey, current_gate, created_at, updated_at, deleted_at
		FROM %s
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	conv, err := scanConversation(executor.QueryRow(ctx, query, id, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("conversation %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return conv, nil
}

// ListByUser returns the user's conversations, most recently updated first
func (r *PostgresConversationRepository) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, deal_id, journey, current_gate, created_at, updated_at, deleted_at
		FROM %s
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return conversations, nil
}

// Touch bumps updated_at for recency sorting
func (r *PostgresConversationRepository) Touch(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`UPDATE %s SET updated_at = $2 WHERE id = $1`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	return nil
}

// UpdateGate sets the conversation's gate progress tag
func (r *PostgresConversationRepository) UpdateGate(ctx context.Context, id int64, gate string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET current_gate = $2, updated_at = $3 WHERE id = $1
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, gate, time.Now())
	if err != nil {
		return fmt.Errorf("update conversation gate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

// AttachDeal links a deal created mid-conversation
func (r *PostgresConversationRepository) AttachDeal(ctx context.Context, id int64, dealID int64) error {
	query := fmt.Sprintf(`
		UPDATE %s SET deal_id = $2, updated_at = $3 WHERE id = $1
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, dealID, time.Now())
	if err != nil {
		return fmt.Errorf("attach deal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&conv.DealID,
		&conv.Journey,
		&conv.CurrentGate,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&conv.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
