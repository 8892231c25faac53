package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// PostgresLedgerRepository implements LedgerRepository using PostgreSQL.
// The ledger is append-only; balances are derived, never stored.
type PostgresLedgerRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewLedgerRepository creates a new PostgresLedgerRepository
func NewLedgerRepository(config *RepositoryConfig) repositories.LedgerRepository {
	return &PostgresLedgerRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Insert appends a ledger entry
func (r *PostgresLedgerRepository) Insert(ctx context.Context, entry *models.CreditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, kind, amount_cents, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, r.tables.Ledger)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.AmountCents,
		entry.Reference,
		time.Now(),
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	return nil
}

// BalanceCents returns the sum of the user's ledger entries
func (r *PostgresLedgerRepository) BalanceCents(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(amount_cents), 0) FROM %s WHERE user_id = $1
	`, r.tables.Ledger)

	var balance int64
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}

	return balance, nil
}
