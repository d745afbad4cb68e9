package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tradepost/marketplace-messaging/internal/model"
)

// fakeBackend is an in-memory stand-in for the platform: record collections
// plus the message-created feed. When publishOnInsert is set, Insert delivers
// the live event synchronously before returning, which is the worst-case
// ordering for the optimistic path (live push wins the race).
type fakeBackend struct {
	mu              sync.Mutex
	conversations   []model.Conversation
	messages        []model.Message
	profiles        map[string]model.Profile
	listings        map[string]model.Listing
	subscribers     map[int]func(model.Message)
	nextSub         int
	seq             int
	clock           time.Time
	publishOnInsert bool

	failListConversations error
	failInsertMessage     error
	failLatest            error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		profiles:    make(map[string]model.Profile),
		listings:    make(map[string]model.Listing),
		subscribers: make(map[int]func(model.Message)),
		clock:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBackend) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeBackend) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeBackend) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListConversations != nil {
		return nil, f.failListConversations
	}
	var out []model.Conversation
	for _, c := range f.conversations {
		if c.User1 == userID || c.User2 == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeBackend) Create(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv.ID = f.nextID("conv")
	conv.CreatedAt = f.tick()
	f.conversations = append(f.conversations, conv)
	return conv, nil
}

func (f *fakeBackend) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeBackend) LatestPerConversation(ctx context.Context, conversationIDs []string) (map[string]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLatest != nil {
		return nil, f.failLatest
	}
	wanted := make(map[string]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = true
	}
	latest := make(map[string]model.Message)
	for _, m := range f.messages {
		if !wanted[m.ConversationID] {
			continue
		}
		if cur, ok := latest[m.ConversationID]; !ok || m.CreatedAt.After(cur.CreatedAt) {
			latest[m.ConversationID] = m
		}
	}
	return latest, nil
}

func (f *fakeBackend) Insert(ctx context.Context, msg model.Message) (model.Message, error) {
	f.mu.Lock()
	if f.failInsertMessage != nil {
		err := f.failInsertMessage
		f.mu.Unlock()
		return model.Message{}, err
	}
	msg.ID = f.nextID("msg")
	msg.CreatedAt = f.tick()
	f.messages = append(f.messages, msg)
	publish := f.publishOnInsert
	f.mu.Unlock()

	if publish {
		f.publish(msg)
	}
	return msg, nil
}

func (f *fakeBackend) Get(ctx context.Context, id string) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return model.Profile{}, ErrNotFound
}

// listingCatalog adapts fakeBackend to the ListingCatalog port; Get is taken
// by the profile directory.
type listingCatalog struct{ f *fakeBackend }

func (l listingCatalog) Get(ctx context.Context, id string) (model.Listing, error) {
	l.f.mu.Lock()
	defer l.f.mu.Unlock()
	if lst, ok := l.f.listings[id]; ok {
		return lst, nil
	}
	return model.Listing{}, ErrNotFound
}

func (f *fakeBackend) SubscribeCreated(handler func(model.Message)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subscribers[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subscribers, id)
	}, nil
}

func (f *fakeBackend) publish(msg model.Message) {
	f.mu.Lock()
	handlers := make([]func(model.Message), 0, len(f.subscribers))
	for _, h := range f.subscribers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (f *fakeBackend) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *fakeBackend) conversationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}

func (f *fakeBackend) deps() Deps {
	return Deps{
		Conversations: f,
		Messages:      f,
		Profiles:      f,
		Listings:      listingCatalog{f},
		Feed:          f,
	}
}

// seedConversation inserts a conversation row directly.
func (f *fakeBackend) seedConversation(user1, user2 string, listingID *string) model.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := model.Conversation{
		ID:        f.nextID("conv"),
		User1:     user1,
		User2:     user2,
		ListingID: listingID,
		CreatedAt: f.tick(),
	}
	f.conversations = append(f.conversations, conv)
	return conv
}

// seedMessage inserts a message row directly, without a feed event.
func (f *fakeBackend) seedMessage(conversationID, sender, receiver, content string) model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := model.Message{
		ID:             f.nextID("msg"),
		ConversationID: conversationID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        content,
		CreatedAt:      f.tick(),
	}
	f.messages = append(f.messages, msg)
	return msg
}

func strptr(s string) *string {
	return &s
}
