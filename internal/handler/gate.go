package handler

import (
	"context"
	"log/slog"
	"net/http"

	"dealdesk/internal/httputil"
	"dealdesk/internal/service/gate"
)

// GateService is the slice of the gate service the handler needs.
type GateService interface {
	Purchase(ctx context.Context, userID string, conversationID int64, gateName string) (*gate.PurchaseResult, error)
}

// GateHandler handles paywall purchase HTTP requests
type GateHandler struct {
	gateService GateService
	logger      *slog.Logger
}

// NewGateHandler creates a new gate handler
func NewGateHandler(gateService GateService, logger *slog.Logger) *GateHandler {
	return &GateHandler{
		gateService: gateService,
		logger:      logger,
	}
}

// PurchaseRequest is the body of a gate purchase request.
type PurchaseRequest struct {
	ConversationID int64 `json:"conversationId"`
}

// Purchase unlocks a priced gate for a conversation's deal
// POST /api/gates/{gate}/purchase
// Returns 402 with balance details when credit is insufficient.
func (h *GateHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	gateName, ok := PathParam(w, r, "gate", "Gate name")
	if !ok {
		return
	}

	var req PurchaseRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConversationID == 0 {
		httputil.RespondError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	userID := httputil.UserID(r)
	result, err := h.gateService.Purchase(r.Context(), userID, req.ConversationID, gateName)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}
