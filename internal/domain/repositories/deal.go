package repositories

import (
	"context"

	"dealdesk/internal/domain/models"
)

// DealRepository defines data access for deals.
type DealRepository interface {
	// Create inserts a new deal and assigns its ID.
	Create(ctx context.Context, deal *models.Deal) error

	// GetByID retrieves a deal owned by userID, or domain.ErrNotFound.
	GetByID(ctx context.Context, id int64, userID string) (*models.Deal, error)

	// ListByUser returns the user's deals, most recently updated first.
	ListByUser(ctx context.Context, userID string) ([]models.Deal, error)

	// UpdateGate advances the deal's gate tag.
	UpdateGate(ctx context.Context, id int64, gate string) error
}

// DeliverableRepository defines data access for purchased deliverables.
type DeliverableRepository interface {
	// Create inserts a deliverable and assigns its ID.
	Create(ctx context.Context, d *models.Deliverable) error

	// GetByID retrieves a deliverable, or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Deliverable, error)

	// ListByDeal returns a deal's deliverables in creation order.
	ListByDeal(ctx context.Context, dealID int64) ([]models.Deliverable, error)
}
