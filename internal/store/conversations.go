package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/model"
)

// Conversations is the Postgres-backed conversations collection.
type Conversations struct {
	pool *pgxpool.Pool
}

// NewConversations creates the collection over a pool.
func NewConversations(pool *pgxpool.Pool) *Conversations {
	return &Conversations{pool: pool}
}

var _ messaging.ConversationRecords = (*Conversations)(nil)

// ListForUser returns every conversation where the user is either
// participant, most recently created first.
func (c *Conversations) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id::text, user1::text, user2::text, listing_id::text, created_at
		FROM conversations
		WHERE user1 = $1::uuid OR user2 = $1::uuid
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.User1, &conv.User2, &conv.ListingID, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Create persists a new conversation with a fresh id and server-assigned
// creation timestamp.
func (c *Conversations) Create(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	conv.ID = uuid.Must(uuid.NewV7()).String()
	err := c.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, user1, user2, listing_id)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid)
		RETURNING created_at
	`, conv.ID, conv.User1, conv.User2, conv.ListingID).Scan(&conv.CreatedAt)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}
