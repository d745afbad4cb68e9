package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
	"github.com/tradepost/marketplace-messaging/pkg/metrics"
)

// Deps bundles the platform collaborators a session consumes.
type Deps struct {
	Conversations ConversationRecords
	Messages      MessageRecords
	Profiles      ProfileDirectory
	Listings      ListingCatalog
	Feed          MessageFeed
	Logger        *logger.Logger
}

// Session is one mounted messaging view for one user. It wires the store,
// channel, resolver and coordinator together and uniquely owns the live
// subscription for its lifetime: opened by Start, released by Close.
// Sessions are independent; two sessions for the same user reconcile only
// through the backing store and the feed.
type Session struct {
	userID string
	deps   Deps

	Store       *ConversationStore
	Channel     *MessageChannel
	Resolver    *Resolver
	Coordinator *SendCoordinator

	mu          sync.Mutex
	unsubscribe func()
	observer    func(model.Message)
}

// NewSession builds a session for the given user.
func NewSession(userID string, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	store := NewConversationStore(userID, deps.Conversations, deps.Messages, deps.Profiles, deps.Listings, deps.Logger)
	channel := NewMessageChannel(deps.Messages, store, deps.Logger)
	return &Session{
		userID:      userID,
		deps:        deps,
		Store:       store,
		Channel:     channel,
		Resolver:    NewResolver(store, deps.Profiles, deps.Listings, deps.Logger),
		Coordinator: NewSendCoordinator(userID, deps.Conversations, deps.Messages, store, channel, deps.Logger),
	}
}

// Observe registers a callback for live message-created events involving this
// session's user. Must be called before Start.
func (s *Session) Observe(fn func(model.Message)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Start loads the conversation list and opens the live subscription. Calling
// Start on an already started session does not open a second subscription.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Store.LoadAll(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return nil
	}
	unsub, err := s.deps.Feed.SubscribeCreated(s.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe to message feed: %w", err)
	}
	s.unsubscribe = unsub
	return nil
}

// Close releases the live subscription. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Select resolves the intent and adopts the result as the active selection,
// loading its history when the conversation is persisted.
func (s *Session) Select(ctx context.Context, intent model.ResolveIntent) (Selection, error) {
	target, err := s.Resolver.Resolve(ctx, intent)
	if err != nil {
		return Selection{}, err
	}
	if err := s.Channel.Select(ctx, target); err != nil {
		return Selection{}, err
	}
	active, _ := s.Channel.Active()
	return active, nil
}

// Send submits content to the active selection.
func (s *Session) Send(ctx context.Context, content string) (model.Message, error) {
	return s.Coordinator.Send(ctx, content)
}

// handleEvent processes one live event: the channel appends it to the active
// thread if it matches (idempotently) and forwards it to the store's preview
// update. The observer only sees events the session's user participates in;
// the feed itself is scoped platform-wide and filtered here.
func (s *Session) handleEvent(msg model.Message) {
	metrics.LiveEventsDelivered.Inc()
	s.Channel.HandleIncoming(msg)

	if msg.SenderID != s.userID && msg.ReceiverID != s.userID {
		return
	}
	s.mu.Lock()
	fn := s.observer
	s.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}
