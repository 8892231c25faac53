package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"dealdesk/internal/domain/models"
	"dealdesk/internal/handler/sse"
	"dealdesk/internal/httputil"
	"dealdesk/internal/service/chat"
	"dealdesk/pkg/stream"
)

// ChatService is the slice of the chat service the conversation and
// streaming endpoints need.
type ChatService interface {
	CreateConversation(ctx context.Context, userID, title, journey string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id int64, userID string) (*chat.ConversationState, error)
	StreamConversationTurn(ctx context.Context, userID string, conversationID int64, content string) (<-chan stream.Event, error)
	StreamAnonymousTurn(ctx context.Context, token, content string) (<-chan stream.Event, error)
}

// ChatHandler handles conversation HTTP requests, including the
// streaming message endpoints. A message POST answers with an SSE body
// directly: preflight failures are ordinary problem+json responses,
// but once streaming starts all failures travel in-band as error
// events.
type ChatHandler struct {
	chatService ChatService
	sseConfig   *sse.Config
	logger      *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService ChatService, sseConfig *sse.Config, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		sseConfig:   sseConfig,
		logger:      logger,
	}
}

// CreateConversationRequest is the body of a conversation creation
// request.
type CreateConversationRequest struct {
	Title   string `json:"title"`
	Journey string `json:"journey"`
}

// SendMessageRequest is the body of both streaming message endpoints.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// CreateConversation starts a conversation and its deal
// POST /api/conversations
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := httputil.UserID(r)

	var req CreateConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := h.chatService.CreateConversation(r.Context(), userID, req.Title, req.Journey)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, conv)
}

// ListConversations retrieves the user's conversations
// GET /api/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := httputil.UserID(r)

	conversations, err := h.chatService.ListConversations(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conversations)
}

// GetConversation retrieves a conversation with its transcript
// GET /api/conversations/{id}
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParamInt64(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	userID := httputil.UserID(r)
	state, err := h.chatService.GetConversation(r.Context(), id, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, state)
}

// ListConversationMessages retrieves a conversation's transcript only
// GET /api/conversations/{id}/messages
func (h *ChatHandler) ListConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParamInt64(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	userID := httputil.UserID(r)
	state, err := h.chatService.GetConversation(r.Context(), id, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, state.Messages)
}

// StreamConversationMessage runs one authenticated turn
// POST /api/conversations/{id}/messages (responds with text/event-stream)
func (h *ChatHandler) StreamConversationMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParamInt64(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID := httputil.UserID(r)
	events, err := h.chatService.StreamConversationTurn(r.Context(), userID, id, req.Content)
	if err != nil {
		handleError(w, err)
		return
	}

	h.streamEvents(w, r, events)
}

// StreamSessionMessage runs one anonymous turn
// POST /api/anon/sessions/{token}/messages (responds with text/event-stream)
func (h *ChatHandler) StreamSessionMessage(w http.ResponseWriter, r *http.Request) {
	token, ok := PathParam(w, r, "token", "Session token")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	events, err := h.chatService.StreamAnonymousTurn(r.Context(), token, req.Content)
	if err != nil {
		handleError(w, err)
		return
	}

	h.streamEvents(w, r, events)
}

// streamEvents relays service events onto the response as SSE records,
// interleaving keep-alive comments until the channel closes.
func (h *ChatHandler) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan stream.Event) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		h.logger.Error("SSE unsupported by response writer", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	writer.WriteHeaders()

	ticker := time.NewTicker(h.sseConfig.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writer.WriteEvent(ev); err != nil {
				h.logger.Info("client disconnected during event write", "error", err)
				return
			}

		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				h.logger.Info("client disconnected during keepalive", "error", err)
				return
			}

		case <-r.Context().Done():
			h.logger.Debug("client cancelled stream")
			return
		}
	}
}
