package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/middleware"
	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	deps   messaging.Deps
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(deps messaging.Deps, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		deps:   deps,
		logger: log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The requester must be a participant before any history is returned.
	sess := messaging.NewSession(userID, h.deps)
	if err := sess.Store.LoadAll(ctx); err != nil {
		h.logger.Error("failed to load conversations",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if _, ok := sess.Store.FindByID(conversationID); !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	msgs, err := h.deps.Messages.ListByConversation(ctx, conversationID)
	if err != nil {
		h.logger.Error("failed to load messages",
			zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{Messages: msgs})
}

// Send handles POST /api/v1/messages
//
// The body targets either an existing conversation by id or a counterparty
// (plus optional listing); in the latter case the conversation record is
// created lazily with the first message.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	intent := model.ResolveIntent{
		ConversationID: req.ConversationID,
		CounterpartyID: req.CounterpartyID,
		ListingID:      req.ListingID,
	}

	sess := messaging.NewSession(userID, h.deps)
	if err := sess.Store.LoadAll(ctx); err != nil {
		h.logger.Error("failed to load conversations",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	if _, err := sess.Select(ctx, intent); err != nil {
		switch {
		case errors.Is(err, messaging.ErrEmptyIntent):
			writeError(w, http.StatusBadRequest, "conversation_id or to required")
		case errors.Is(err, messaging.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		default:
			h.logger.Error("failed to select conversation",
				zap.String("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	msg, err := sess.Send(ctx, req.Content)
	if err != nil {
		h.logger.Error("failed to send message",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, model.SendMessageResponse{
		Message:        msg,
		ConversationID: msg.ConversationID,
	})
}
