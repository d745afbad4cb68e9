package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
)

// EventPublisher receives one event per persisted message. This is the
// platform's insert-notification behavior: every subscriber, in every
// session, observes the same event.
type EventPublisher interface {
	MessageCreated(ctx context.Context, msg model.Message) error
}

// Messages is the Postgres-backed messages collection.
type Messages struct {
	pool   *pgxpool.Pool
	events EventPublisher
	log    *logger.Logger
}

// NewMessages creates the collection. events may be nil when no realtime
// delivery is wanted.
func NewMessages(pool *pgxpool.Pool, events EventPublisher, log *logger.Logger) *Messages {
	return &Messages{pool: pool, events: events, log: log}
}

var _ messaging.MessageRecords = (*Messages)(nil)

// ListByConversation returns a conversation's history ordered by creation
// timestamp ascending.
func (m *Messages) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT id::text, conversation_id::text, sender_id::text, receiver_id::text, content, listing_id::text, created_at
		FROM messages
		WHERE conversation_id = $1::uuid
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// LatestPerConversation returns the newest message for each given
// conversation id in a single query.
func (m *Messages) LatestPerConversation(ctx context.Context, conversationIDs []string) (map[string]model.Message, error) {
	if len(conversationIDs) == 0 {
		return map[string]model.Message{}, nil
	}

	rows, err := m.pool.Query(ctx, `
		SELECT DISTINCT ON (conversation_id)
			id::text, conversation_id::text, sender_id::text, receiver_id::text, content, listing_id::text, created_at
		FROM messages
		WHERE conversation_id = ANY($1::uuid[])
		ORDER BY conversation_id, created_at DESC
	`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]model.Message, len(msgs))
	for _, msg := range msgs {
		latest[msg.ConversationID] = msg
	}
	return latest, nil
}

// Insert persists a message and publishes its created event. A publish
// failure does not fail the insert; subscribers fall back to reload.
func (m *Messages) Insert(ctx context.Context, msg model.Message) (model.Message, error) {
	msg.ID = uuid.Must(uuid.NewV7()).String()
	err := m.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, listing_id)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5, $6::uuid)
		RETURNING created_at
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Content, msg.ListingID).Scan(&msg.CreatedAt)
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if m.events != nil {
		if err := m.events.MessageCreated(ctx, msg); err != nil {
			m.log.Warn("message event publish failed",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	return msg, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows rowScanner) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.ListingID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
