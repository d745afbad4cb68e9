// Package messaging implements the realtime messaging subsystem: the
// conversation list with previews, the active thread with live delivery,
// navigation-intent resolution, and the send path with lazy conversation
// creation. Platform concerns (storage, realtime transport, auth) are
// consumed through the narrow interfaces below.
package messaging

import (
	"context"
	"errors"

	"github.com/tradepost/marketplace-messaging/internal/model"
)

// ErrNotFound is returned by record lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ConversationRecords is the conversations collection of the relational store.
type ConversationRecords interface {
	// ListForUser returns every conversation where the user is either
	// participant, ordered by creation time descending.
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	// Create persists a new conversation and returns it with its assigned
	// id and creation timestamp.
	Create(ctx context.Context, conv model.Conversation) (model.Conversation, error)
}

// MessageRecords is the messages collection of the relational store.
type MessageRecords interface {
	// ListByConversation returns the full history of a conversation ordered
	// by creation timestamp ascending.
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	// LatestPerConversation returns the most recent message for each of the
	// given conversation ids; conversations without messages are absent from
	// the result.
	LatestPerConversation(ctx context.Context, conversationIDs []string) (map[string]model.Message, error)
	// Insert persists a message and returns it with its assigned id and
	// server-assigned creation timestamp.
	Insert(ctx context.Context, msg model.Message) (model.Message, error)
}

// ProfileDirectory resolves user ids to display profiles.
type ProfileDirectory interface {
	Get(ctx context.Context, userID string) (model.Profile, error)
}

// ListingCatalog resolves listing ids to listings.
type ListingCatalog interface {
	Get(ctx context.Context, listingID string) (model.Listing, error)
}

// MessageFeed delivers message-created events for all conversations.
// Delivery is at-least-once and order-preserving per subscription.
type MessageFeed interface {
	// SubscribeCreated registers a handler and returns a release function.
	// The release function must be called when the owning view goes away so
	// handlers do not accumulate across re-subscriptions.
	SubscribeCreated(handler func(model.Message)) (func(), error)
}
