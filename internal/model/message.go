package model

import (
	"time"
)

// Message is a single chat message. Messages are immutable once created and
// ordered by server-assigned creation timestamp within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	ListingID      *string   `json:"listing_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SendMessageRequest is the request to send a new message. Either
// ConversationID targets an existing thread, or CounterpartyID (plus an
// optional ListingID) targets a thread that may not exist yet.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	CounterpartyID string `json:"to,omitempty"`
	ListingID      string `json:"listing_id,omitempty"`
	Content        string `json:"content"`
}

// SendMessageResponse is the response after sending a message.
type SendMessageResponse struct {
	Message        Message `json:"message"`
	ConversationID string  `json:"conversation_id"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationPreview `json:"conversations"`
}

// ListMessagesResponse is the response for a conversation's message history.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
