package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
)

// SubjectMessageCreated carries one event per persisted message, platform
// wide. Subscribers filter client-side.
const SubjectMessageCreated = "marketplace.messages.created"

// Bus publishes and subscribes to message-created events. Core NATS delivery
// is order-preserving per connection, which is the ordering contract the
// messaging subsystem assumes.
type Bus struct {
	client *Client
	logger *logger.Logger
}

// NewBus creates a bus over an established NATS connection.
func NewBus(client *Client, log *logger.Logger) *Bus {
	return &Bus{client: client, logger: log}
}

var _ messaging.MessageFeed = (*Bus)(nil)

// MessageCreated publishes the event for a newly persisted message.
func (b *Bus) MessageCreated(ctx context.Context, msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message event: %w", err)
	}
	if err := b.client.Conn().Publish(SubjectMessageCreated, data); err != nil {
		return fmt.Errorf("publish message event: %w", err)
	}
	return nil
}

// SubscribeCreated registers a handler for message-created events and returns
// the release function that drops the subscription.
func (b *Bus) SubscribeCreated(handler func(model.Message)) (func(), error) {
	sub, err := b.client.Conn().Subscribe(SubjectMessageCreated, func(m *nats.Msg) {
		var msg model.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.logger.Warn("dropping malformed message event", zap.Error(err))
			return
		}
		handler(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", SubjectMessageCreated, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}, nil
}
