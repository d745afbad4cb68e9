package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
	"github.com/tradepost/marketplace-messaging/pkg/metrics"
)

// Selection is an active conversation: either a persisted thread with its
// loaded history, or an unsaved placeholder pending its first message.
type Selection struct {
	Preview  model.ConversationPreview `json:"preview"`
	Unsaved  bool                      `json:"unsaved"`
	Messages []model.Message           `json:"messages"`
}

// MessageChannel owns the currently selected conversation's ordered message
// history. It reconciles the two paths that append to the thread, the
// optimistic local append after a send and the live push of the same event,
// by message id.
type MessageChannel struct {
	messages MessageRecords
	store    *ConversationStore
	log      *logger.Logger

	mu     sync.Mutex
	active *Selection
}

// NewMessageChannel creates a channel with no active selection.
func NewMessageChannel(messages MessageRecords, store *ConversationStore, log *logger.Logger) *MessageChannel {
	return &MessageChannel{
		messages: messages,
		store:    store,
		log:      log,
	}
}

// Select adopts target as the active selection. A placeholder is adopted
// directly with an empty message list; a persisted conversation has its full
// ordered history fetched first.
func (c *MessageChannel) Select(ctx context.Context, target Selection) error {
	if target.Unsaved {
		target.Messages = nil
	} else {
		history, err := c.messages.ListByConversation(ctx, target.Preview.ID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		target.Messages = history
	}

	c.mu.Lock()
	c.active = &target
	c.mu.Unlock()
	return nil
}

// Active returns a copy of the current selection.
func (c *MessageChannel) Active() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Selection{}, false
	}
	sel := *c.active
	sel.Messages = make([]model.Message, len(c.active.Messages))
	copy(sel.Messages, c.active.Messages)
	return sel, true
}

// HandleIncoming processes one live message-created event: append to the
// active thread if it matches, and always forward to the conversation store
// so the sidebar preview updates even when another thread is selected.
// Returns true if the message was appended to the active thread.
func (c *MessageChannel) HandleIncoming(msg model.Message) bool {
	appended := c.appendIfNew(msg)
	c.store.ApplyIncomingMessage(msg.ConversationID, msg)
	return appended
}

// AppendLocal appends a just-persisted message to the active thread. This is
// the optimistic path; if the live push already delivered the same message id
// the append is suppressed.
func (c *MessageChannel) AppendLocal(msg model.Message) bool {
	return c.appendIfNew(msg)
}

// AdoptSaved transitions an unsaved placeholder selection to a persisted
// conversation id. Once real, the id never reverts.
func (c *MessageChannel) AdoptSaved(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.Unsaved {
		c.active.Preview.ID = conversationID
		c.active.Unsaved = false
	}
}

func (c *MessageChannel) appendIfNew(msg model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.Unsaved || c.active.Preview.ID != msg.ConversationID {
		return false
	}
	for _, m := range c.active.Messages {
		if m.ID == msg.ID {
			metrics.DuplicateAppendsSuppressed.Inc()
			return false
		}
	}
	c.active.Messages = insertByTimestamp(c.active.Messages, msg)
	return true
}

// insertByTimestamp keeps the thread in creation-timestamp order even if the
// transport delivers out of order. Appending at the tail is the common case.
func insertByTimestamp(msgs []model.Message, msg model.Message) []model.Message {
	if len(msgs) == 0 || !msg.CreatedAt.Before(msgs[len(msgs)-1].CreatedAt) {
		return append(msgs, msg)
	}
	i := len(msgs)
	for i > 0 && msg.CreatedAt.Before(msgs[i-1].CreatedAt) {
		i--
	}
	msgs = append(msgs, model.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs
}
