package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
	"github.com/tradepost/marketplace-messaging/pkg/metrics"
)

var (
	// ErrNoSelection is returned when a send is attempted with no active
	// conversation.
	ErrNoSelection = errors.New("messaging: no active conversation")

	// ErrEmptyContent is returned when the outgoing text is empty after
	// trimming whitespace.
	ErrEmptyContent = errors.New("messaging: message content is empty")
)

// SendCoordinator executes a message send against the active selection. It
// owns no state of its own; a send mutates the channel and the store as parts
// of one user action.
type SendCoordinator struct {
	userID        string
	conversations ConversationRecords
	messages      MessageRecords
	store         *ConversationStore
	channel       *MessageChannel
	log           *logger.Logger
}

// NewSendCoordinator creates a coordinator sending on behalf of userID.
func NewSendCoordinator(
	userID string,
	conversations ConversationRecords,
	messages MessageRecords,
	store *ConversationStore,
	channel *MessageChannel,
	log *logger.Logger,
) *SendCoordinator {
	return &SendCoordinator{
		userID:        userID,
		conversations: conversations,
		messages:      messages,
		store:         store,
		channel:       channel,
		log:           log,
	}
}

// Send persists the message for the active selection. A placeholder selection
// first gets its conversation record created; the returned id becomes the
// real conversation id and a preview entry is prepended to the store. The
// persisted message is appended optimistically, guarded by the id check
// against the live push of the same event. Persistence failures are returned
// to the caller and nothing is retried.
func (sc *SendCoordinator) Send(ctx context.Context, content string) (model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, ErrEmptyContent
	}

	active, ok := sc.channel.Active()
	if !ok {
		return model.Message{}, ErrNoSelection
	}

	conversationID := active.Preview.ID
	brandNew := false
	if active.Unsaved {
		conv, err := sc.conversations.Create(ctx, model.Conversation{
			User1:     sc.userID,
			User2:     active.Preview.OtherUserID,
			ListingID: active.Preview.ListingID,
		})
		if err != nil {
			return model.Message{}, fmt.Errorf("create conversation: %w", err)
		}
		conversationID = conv.ID
		brandNew = true

		sc.channel.AdoptSaved(conversationID)

		preview := active.Preview
		preview.ID = conversationID
		preview.CreatedAt = conv.CreatedAt
		preview.LastMessage = content
		preview.LastMessageAt = conv.CreatedAt
		sc.store.PrependNew(preview)

		metrics.ConversationsCreated.Inc()
	}

	msg, err := sc.messages.Insert(ctx, model.Message{
		ConversationID: conversationID,
		SenderID:       sc.userID,
		ReceiverID:     active.Preview.OtherUserID,
		Content:        content,
		ListingID:      active.Preview.ListingID,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}

	sc.channel.AppendLocal(msg)
	if !brandNew {
		sc.store.ApplyIncomingMessage(conversationID, msg)
	}
	metrics.MessagesSent.Inc()

	return msg, nil
}
