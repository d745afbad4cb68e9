package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/middleware"
	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
	"github.com/tradepost/marketplace-messaging/pkg/metrics"
)

// StreamHandler handles the SSE endpoint. One SSE connection is one mounted
// messaging view: the session's live subscription is opened when the client
// connects and released when it disconnects, so handlers never accumulate
// across remounts.
type StreamHandler struct {
	deps   messaging.Deps
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps messaging.Deps, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		deps:   deps,
		logger: log,
	}
}

type heartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/stream
//
// Emits the conversation snapshot on connect, then one "message" event per
// live message-created event involving the user. ?conversation= preselects
// the active thread.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	conversationID := r.URL.Query().Get("conversation")
	if conversationID != "" {
		if err := middleware.ValidateConversationID(conversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess := messaging.NewSession(userID, h.deps)

	// Buffered so a slow client only drops events instead of stalling the
	// feed callback; a dropped event is recovered on the next reload.
	events := make(chan model.Message, 64)
	sess.Observe(func(msg model.Message) {
		select {
		case events <- msg:
		default:
			h.logger.Warn("dropping event for slow SSE client",
				zap.String("user_id", userID), zap.String("message_id", msg.ID))
		}
	})

	if err := sess.Start(ctx); err != nil {
		h.logger.Error("failed to start messaging session",
			zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}
	defer sess.Close()

	if conversationID != "" {
		if _, err := sess.Select(ctx, model.ResolveIntent{ConversationID: conversationID}); err != nil {
			h.logger.Warn("stream preselect failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{"user_id": userID})
	sendSSEEvent(w, flusher, "conversations", model.ListConversationsResponse{
		Conversations: sess.Store.Snapshot(),
	})

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	done := ctx.Done()
	for {
		select {
		case <-done:
			h.logger.Info("SSE client disconnected", zap.String("user_id", userID))
			return

		case msg := <-events:
			sendSSEEvent(w, flusher, "message", msg)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", heartbeatEvent{Timestamp: time.Now()})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
