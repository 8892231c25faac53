package handler

import (
	"context"
	"log/slog"
	"net/http"

	"dealdesk/internal/domain/models"
	"dealdesk/internal/httputil"
	"dealdesk/internal/service/deal"
)

// DealService is the slice of the deal service the handler needs.
type DealService interface {
	List(ctx context.Context, userID string) ([]models.Deal, error)
	Get(ctx context.Context, id int64, userID string) (*deal.DealDetail, error)
}

// DealHandler handles deal HTTP requests
type DealHandler struct {
	dealService DealService
	logger      *slog.Logger
}

// NewDealHandler creates a new deal handler
func NewDealHandler(dealService DealService, logger *slog.Logger) *DealHandler {
	return &DealHandler{
		dealService: dealService,
		logger:      logger,
	}
}

// ListDeals retrieves the user's deals
// GET /api/deals
func (h *DealHandler) ListDeals(w http.ResponseWriter, r *http.Request) {
	userID := httputil.UserID(r)

	deals, err := h.dealService.List(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, deals)
}

// GetDeal retrieves a deal with its deliverables
// GET /api/deals/{id}
func (h *DealHandler) GetDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParamInt64(w, r, "id", "Deal ID")
	if !ok {
		return
	}

	userID := httputil.UserID(r)
	detail, err := h.dealService.Get(r.Context(), id, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, detail)
}
