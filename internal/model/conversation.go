// Package model defines data structures for the marketplace messaging service.
package model

import (
	"strings"
	"time"
)

// FallbackName is substituted when a participant's profile row is missing.
const FallbackName = "Unknown User"

// Conversation is a persisted thread between exactly two participants,
// optionally scoped to one listing. At most one conversation exists for a
// given pair of participants and listing value.
type Conversation struct {
	ID        string    `json:"id"`
	User1     string    `json:"user1"`
	User2     string    `json:"user2"`
	ListingID *string   `json:"listing_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.User1 == userID {
		return c.User2
	}
	return c.User1
}

// ConversationPreview is the denormalized sidebar entry for a conversation:
// the other participant, the related listing, and the latest message.
// It is recomputed from message events and never persisted.
type ConversationPreview struct {
	ID            string    `json:"id"`
	OtherUserID   string    `json:"other_user_id"`
	Name          string    `json:"name"`
	Initials      string    `json:"initials"`
	ListingID     *string   `json:"listing_id,omitempty"`
	ListingName   string    `json:"listing_name,omitempty"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Initials derives a two-letter avatar label from a display name.
func Initials(name string) string {
	if name == "" {
		name = "User"
	}
	runes := []rune(name)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.ToUpper(string(runes))
}

// ResolveIntent carries navigation input for conversation selection: either an
// explicit conversation id, or a counterparty with an optional listing.
type ResolveIntent struct {
	ConversationID string
	CounterpartyID string
	ListingID      string
}

// Empty reports whether the intent carries no selection input at all.
func (i ResolveIntent) Empty() bool {
	return i.ConversationID == "" && i.CounterpartyID == ""
}
