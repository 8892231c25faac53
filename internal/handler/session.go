package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"dealdesk/internal/domain/models"
	"dealdesk/internal/httputil"
	"dealdesk/internal/service/chat"
)

// SessionService is the slice of the chat service the session handler
// needs.
type SessionService interface {
	CreateSession(ctx context.Context, sourcePage string) (*models.Session, error)
	GetSession(ctx context.Context, token string) (*chat.SessionState, error)
}

// SessionHandler handles anonymous session HTTP requests
// Follows Clean Architecture: handlers only communicate with services, never repositories
type SessionHandler struct {
	chatService SessionService
	logger      *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(chatService SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// CreateSessionRequest is the body of a session creation request. The
// body is optional; sourcePage is attribution only.
type CreateSessionRequest struct {
	SourcePage string `json:"sourcePage"`
}

// CreateSession mints a new anonymous session
// POST /api/anon/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.chatService.CreateSession(r.Context(), req.SourcePage)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, session)
}

// GetSession restores a session and its transcript
// GET /api/anon/sessions/{token}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	token, ok := PathParam(w, r, "token", "Session token")
	if !ok {
		return
	}

	state, err := h.chatService.GetSession(r.Context(), token)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, state)
}
