// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/middleware"
	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
)

// ConversationHandler handles conversation endpoints. Each request builds a
// short-lived session: load first, then resolve, so resolution never runs
// against a partial list.
type ConversationHandler struct {
	deps   messaging.Deps
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(deps messaging.Deps, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		deps:   deps,
		logger: log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	sess := messaging.NewSession(userID, h.deps)
	if err := sess.Store.LoadAll(ctx); err != nil {
		h.logger.Error("failed to load conversations",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}

	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: sess.Store.Snapshot(),
	})
}

// Resolve handles GET /api/v1/conversations/resolve
//
// Query parameters mirror the navigation intent: ?conversation= selects by
// id, ?to= (+ optional ?listing=) selects or synthesizes by counterparty.
func (h *ConversationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	intent := model.ResolveIntent{
		ConversationID: r.URL.Query().Get("conversation"),
		CounterpartyID: r.URL.Query().Get("to"),
		ListingID:      r.URL.Query().Get("listing"),
	}

	if intent.ConversationID != "" {
		if err := middleware.ValidateConversationID(intent.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if intent.CounterpartyID != "" {
		if err := middleware.ValidateUserID(intent.CounterpartyID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if intent.ListingID != "" {
		if err := middleware.ValidateListingID(intent.ListingID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess := messaging.NewSession(userID, h.deps)
	if err := sess.Store.LoadAll(ctx); err != nil {
		h.logger.Error("failed to load conversations",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}

	selection, err := sess.Select(ctx, intent)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, selection)
	case errors.Is(err, messaging.ErrEmptyIntent):
		writeError(w, http.StatusBadRequest, "conversation or counterparty required")
	case errors.Is(err, messaging.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	default:
		h.logger.Error("failed to resolve conversation",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve conversation")
	}
}
