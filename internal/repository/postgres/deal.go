package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// PostgresDealRepository implements DealRepository using PostgreSQL
type PostgresDealRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDealRepository creates a new PostgresDealRepository
func NewDealRepository(config *RepositoryConfig) repositories.DealRepository {
	return &PostgresDealRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new deal and assigns its ID
func (r *PostgresDealRepository) Create(ctx context.Context, deal *models.Deal) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, name, journey, current_gate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, r.tables.Deals)

	now := time.Now()
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		deal.UserID,
		deal.Name,
		deal.Journey,
		deal.CurrentGate,
		now,
		now,
	).Scan(&deal.ID, &deal.CreatedAt, &deal.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create deal: %w", err)
	}

	return nil
}

// GetByID retrieves a deal owned by the user
func (r *PostgresDealRepository) GetByID(ctx context.Context, id int64, userID string) (*models.Deal, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, name, journey, current_gate, created_at, updated_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Deals)

	var deal models.Deal
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, userID).Scan(
		&deal.ID,
		&deal.UserID,
		&deal.Name,
		&deal.Journey,
		&deal.CurrentGate,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("deal %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get deal: %w", err)
	}

	return &deal, nil
}

// ListByUser returns the user's deals, most recently updated first
func (r *PostgresDealRepository) ListByUser(ctx context.Context, userID string) ([]models.Deal, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, name, journey, current_gate, created_at, updated_at
		FROM %s
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`, r.tables.Deals)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	deals := make([]models.Deal, 0)
	for rows.Next() {
		var deal models.Deal
		err := rows.Scan(
			&deal.ID,
			&deal.UserID,
			&deal.Name,
			&deal.Journey,
			&deal.CurrentGate,
			&deal.CreatedAt,
			&deal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, deal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}

	return deals, nil
}

// UpdateGate advances the deal's gate tag
func (r *PostgresDealRepository) UpdateGate(ctx context.Context, id int64, gate string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET current_gate = $2, updated_at = $3 WHERE id = $1
	`, r.tables.Deals)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, gate, time.Now())
	if err != nil {
		return fmt.Errorf("update deal gate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deal %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

// PostgresDeliverableRepository implements DeliverableRepository using PostgreSQL
type PostgresDeliverableRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDeliverableRepository creates a new PostgresDeliverableRepository
func NewDeliverableRepository(config *RepositoryConfig) repositories.DeliverableRepository {
	return &PostgresDeliverableRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a deliverable and assigns its ID
func (r *PostgresDeliverableRepository) Create(ctx context.Context, d *models.Deliverable) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, deal_id, gate, title, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, r.tables.Deliverables)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		d.ID,
		d.DealID,
		d.Gate,
		d.Title,
		time.Now(),
	).Scan(&d.CreatedAt)

	if err != nil {
		return fmt.Errorf("create deliverable: %w", err)
	}

	return nil
}

// GetByID retrieves a deliverable
func (r *PostgresDeliverableRepository) GetByID(ctx context.Context, id string) (*models.Deliverable, error) {
	query := fmt.Sprintf(`
		SELECT id, deal_id, gate, title, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Deliverables)

	var d models.Deliverable
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.DealID,
		&d.Gate,
		&d.Title,
		&d.CreatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("deliverable %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get deliverable: %w", err)
	}

	return &d, nil
}

// ListByDeal returns a deal's deliverables in creation order
func (r *PostgresDeliverableRepository) ListByDeal(ctx context.Context, dealID int64) ([]models.Deliverable, error) {
	query := fmt.Sprintf(`
		SELECT id, deal_id, gate, title, created_at
		FROM %s
		WHERE deal_id = $1
		ORDER BY created_at ASC
	`, r.tables.Deliverables)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	defer rows.Close()

	deliverables := make([]models.Deliverable, 0)
	for rows.Next() {
		var d models.Deliverable
		err := rows.Scan(&d.ID, &d.DealID, &d.Gate, &d.Title, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan deliverable: %w", err)
		}
		deliverables = append(deliverables, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliverables: %w", err)
	}

	return deliverables, nil
}
