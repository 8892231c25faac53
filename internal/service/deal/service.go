// Package deal provides read access to deals and their purchased
// deliverables.
package deal

import (
	"context"
	"fmt"
	"log/slog"

	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// Service implements deal queries.
type Service struct {
	deals        repositories.DealRepository
	deliverables repositories.DeliverableRepository
	logger       *slog.Logger
}

// NewService creates a new deal service.
func NewService(
	deals repositories.DealRepository,
	deliverables repositories.DeliverableRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		deals:        deals,
		deliverables: deliverables,
		logger:       logger,
	}
}

// List returns the user's deals, most recently updated first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Deal, error) {
	return s.deals.ListByUser(ctx, userID)
}

// DealDetail is a deal plus the deliverables unlocked so far.
type DealDetail struct {
	Deal         *models.Deal         `json:"deal"`
	Deliverables []models.Deliverable `json:"deliverables"`
}

// Get retrieves a deal with its deliverables, scoped to the owning
// user.
func (s *Service) Get(ctx context.Context, id int64, userID string) (*DealDetail, error) {
	deal, err := s.deals.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	deliverables, err := s.deliverables.ListByDeal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list deal deliverables: %w", err)
	}

	return &DealDetail{Deal: deal, Deliverables: deliverables}, nil
}
