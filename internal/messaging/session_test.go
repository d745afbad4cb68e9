package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/tradepost/marketplace-messaging/internal/model"
)

func startedSession(t *testing.T, fb *fakeBackend, userID string) *Session {
	t.Helper()
	sess := NewSession(userID, fb.deps())
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start(%s): %v", userID, err)
	}
	t.Cleanup(sess.Close)
	return sess
}

// A buyer opens a listing contact link with no prior conversation: the first
// send creates the conversation record, the thread adopts the real id, and the
// sidebar gains the new entry at the head.
func TestFirstMessageCreatesConversation(t *testing.T) {
	fb := newFakeBackend()
	fb.publishOnInsert = true
	fb.profiles["seller"] = model.Profile{ID: "seller", FullName: "Sam Seller"}
	fb.listings["lst-1"] = model.Listing{ID: "lst-1", SellerID: "seller", Name: "Oak Table"}

	sess := startedSession(t, fb, "buyer")

	sel, err := sess.Select(context.Background(), model.ResolveIntent{CounterpartyID: "seller", ListingID: "lst-1"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.Unsaved {
		t.Fatal("expected an unsaved placeholder before the first send")
	}

	msg, err := sess.Send(context.Background(), "Is the table still available?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if fb.conversationCount() != 1 {
		t.Fatalf("got %d conversation records, want 1", fb.conversationCount())
	}
	active, _ := sess.Channel.Active()
	if active.Unsaved {
		t.Error("selection still unsaved after the first send")
	}
	if active.Preview.ID != msg.ConversationID {
		t.Errorf("active id %q != message conversation %q", active.Preview.ID, msg.ConversationID)
	}
	// Insert publishes the live event before the optimistic append runs, so
	// the thread must still hold the message exactly once.
	if len(active.Messages) != 1 || active.Messages[0].ID != msg.ID {
		t.Fatalf("thread: %+v, want exactly [%s]", active.Messages, msg.ID)
	}

	previews := sess.Store.Snapshot()
	if len(previews) != 1 {
		t.Fatalf("sidebar has %d entries, want 1", len(previews))
	}
	p := previews[0]
	if p.ID != msg.ConversationID || p.Name != "Sam Seller" || p.ListingName != "Oak Table" {
		t.Errorf("sidebar entry: %+v", p)
	}
	if p.LastMessage != "Is the table still available?" {
		t.Errorf("sidebar last message: %q", p.LastMessage)
	}
}

func TestSecondSendReusesConversation(t *testing.T) {
	fb := newFakeBackend()
	fb.publishOnInsert = true
	sess := startedSession(t, fb, "buyer")

	if _, err := sess.Select(context.Background(), model.ResolveIntent{CounterpartyID: "seller"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	first, err := sess.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	second, err := sess.Send(context.Background(), "anyone there?")
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}

	if fb.conversationCount() != 1 {
		t.Fatalf("got %d conversation records, want 1", fb.conversationCount())
	}
	if first.ConversationID != second.ConversationID {
		t.Errorf("messages landed in different conversations: %q vs %q", first.ConversationID, second.ConversationID)
	}
	active, _ := sess.Channel.Active()
	if len(active.Messages) != 2 {
		t.Fatalf("thread has %d messages, want 2", len(active.Messages))
	}
}

// Re-resolving the same intent after the lazy creation must find the persisted
// conversation instead of minting a second placeholder.
func TestResolveAfterCreationFindsPersisted(t *testing.T) {
	fb := newFakeBackend()
	fb.publishOnInsert = true
	sess := startedSession(t, fb, "buyer")

	intent := model.ResolveIntent{CounterpartyID: "seller", ListingID: "lst-1"}
	if _, err := sess.Select(context.Background(), intent); err != nil {
		t.Fatalf("Select: %v", err)
	}
	msg, err := sess.Send(context.Background(), "first")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	sel, err := sess.Select(context.Background(), intent)
	if err != nil {
		t.Fatalf("second Select: %v", err)
	}
	if sel.Unsaved || sel.Preview.ID != msg.ConversationID {
		t.Errorf("got unsaved=%v id=%q, want persisted %q", sel.Unsaved, sel.Preview.ID, msg.ConversationID)
	}
	if fb.conversationCount() != 1 {
		t.Errorf("got %d conversation records, want 1", fb.conversationCount())
	}
}

func TestSendValidation(t *testing.T) {
	fb := newFakeBackend()
	sess := startedSession(t, fb, "buyer")

	if _, err := sess.Send(context.Background(), "hi"); !errors.Is(err, ErrNoSelection) {
		t.Errorf("send without selection: got %v, want ErrNoSelection", err)
	}

	if _, err := sess.Select(context.Background(), model.ResolveIntent{CounterpartyID: "seller"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := sess.Send(context.Background(), "   \n\t "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("whitespace-only send: got %v, want ErrEmptyContent", err)
	}
	if fb.conversationCount() != 0 {
		t.Errorf("rejected send created %d conversation records", fb.conversationCount())
	}
}

func TestSendFailureLeavesThreadUntouched(t *testing.T) {
	fb := newFakeBackend()
	conv := fb.seedConversation("buyer", "seller", nil)
	fb.seedMessage(conv.ID, "buyer", "seller", "earlier")
	sess := startedSession(t, fb, "buyer")

	if _, err := sess.Select(context.Background(), model.ResolveIntent{ConversationID: conv.ID}); err != nil {
		t.Fatalf("Select: %v", err)
	}

	fb.failInsertMessage = errors.New("deadline exceeded")
	if _, err := sess.Send(context.Background(), "will not persist"); err == nil {
		t.Fatal("expected send failure")
	}

	active, _ := sess.Channel.Active()
	if len(active.Messages) != 1 {
		t.Fatalf("thread has %d messages after failed send, want 1", len(active.Messages))
	}
	got, _ := sess.Store.FindByID(conv.ID)
	if got.LastMessage != "earlier" {
		t.Errorf("preview changed after failed send: %q", got.LastMessage)
	}
}

func TestSendUpdatesExistingPreview(t *testing.T) {
	fb := newFakeBackend()
	conv := fb.seedConversation("buyer", "seller", nil)
	sess := startedSession(t, fb, "buyer")

	if _, err := sess.Select(context.Background(), model.ResolveIntent{ConversationID: conv.ID}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	msg, err := sess.Send(context.Background(), "bumping this")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, _ := sess.Store.FindByID(conv.ID)
	if got.LastMessage != "bumping this" || !got.LastMessageAt.Equal(msg.CreatedAt) {
		t.Errorf("preview: %q at %v, want %q at %v", got.LastMessage, got.LastMessageAt, "bumping this", msg.CreatedAt)
	}
}

// Two sessions on the same feed: a send in one must show up live in the other,
// both in its open thread and in its sidebar preview.
func TestLiveDeliveryAcrossSessions(t *testing.T) {
	fb := newFakeBackend()
	fb.publishOnInsert = true
	fb.profiles["alice"] = model.Profile{ID: "alice", FullName: "Alice"}
	fb.profiles["bob"] = model.Profile{ID: "bob", FullName: "Bob"}
	conv := fb.seedConversation("alice", "bob", nil)

	alice := startedSession(t, fb, "alice")
	bob := startedSession(t, fb, "bob")

	var observed []model.Message
	bob.Observe(func(m model.Message) { observed = append(observed, m) })
	// Observe after Start is fine here: delivery in these tests is
	// synchronous with Insert.

	if _, err := alice.Select(context.Background(), model.ResolveIntent{ConversationID: conv.ID}); err != nil {
		t.Fatalf("alice Select: %v", err)
	}
	if _, err := bob.Select(context.Background(), model.ResolveIntent{ConversationID: conv.ID}); err != nil {
		t.Fatalf("bob Select: %v", err)
	}

	msg, err := alice.Send(context.Background(), "are we still on?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, sess := range []*Session{alice, bob} {
		active, _ := sess.Channel.Active()
		if len(active.Messages) != 1 || active.Messages[0].ID != msg.ID {
			t.Errorf("session %s thread: %+v", sess.userID, active.Messages)
		}
		p, _ := sess.Store.FindByID(conv.ID)
		if p.LastMessage != "are we still on?" {
			t.Errorf("session %s preview: %q", sess.userID, p.LastMessage)
		}
	}
	if len(observed) != 1 || observed[0].ID != msg.ID {
		t.Errorf("bob observer saw %+v", observed)
	}
}

// Two sessions for the same user, both viewing the same thread (two browser
// tabs): a send from one appears in the other exactly once, no refresh.
func TestSameUserTwoSessions(t *testing.T) {
	fb := newFakeBackend()
	fb.publishOnInsert = true
	conv := fb.seedConversation("me", "alice", nil)

	tab1 := startedSession(t, fb, "me")
	tab2 := startedSession(t, fb, "me")
	for _, tab := range []*Session{tab1, tab2} {
		if _, err := tab.Select(context.Background(), model.ResolveIntent{ConversationID: conv.ID}); err != nil {
			t.Fatalf("Select: %v", err)
		}
	}

	msg, err := tab1.Send(context.Background(), "from tab one")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	active, _ := tab2.Channel.Active()
	if len(active.Messages) != 1 || active.Messages[0].ID != msg.ID {
		t.Fatalf("tab 2 thread: %+v, want exactly [%s]", active.Messages, msg.ID)
	}
	p, _ := tab2.Store.FindByID(conv.ID)
	if p.LastMessage != "from tab one" {
		t.Errorf("tab 2 preview: %q", p.LastMessage)
	}
}

func TestObserverIgnoresUnrelatedUsers(t *testing.T) {
	fb := newFakeBackend()
	carol := startedSession(t, fb, "carol")

	var observed []model.Message
	carol.Observe(func(m model.Message) { observed = append(observed, m) })

	fb.publish(model.Message{ID: "msg-1", ConversationID: "conv-1", SenderID: "alice", ReceiverID: "bob", Content: "private"})
	if len(observed) != 0 {
		t.Errorf("observer received an event for other users: %+v", observed)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	fb := newFakeBackend()
	conv := fb.seedConversation("me", "alice", nil)
	sess := startedSession(t, fb, "me")

	if _, err := sess.Select(context.Background(), model.ResolveIntent{ConversationID: conv.ID}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	sess.Close()
	sess.Close() // idempotent

	if fb.subscriberCount() != 0 {
		t.Fatalf("%d subscribers left after Close", fb.subscriberCount())
	}
	fb.publish(model.Message{ID: "msg-1", ConversationID: conv.ID, SenderID: "alice", ReceiverID: "me", Content: "late"})
	active, _ := sess.Channel.Active()
	if len(active.Messages) != 0 {
		t.Errorf("closed session still received a message")
	}
}

func TestStartTwiceKeepsSingleSubscription(t *testing.T) {
	fb := newFakeBackend()
	sess := startedSession(t, fb, "me")

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if fb.subscriberCount() != 1 {
		t.Errorf("got %d subscriptions, want 1", fb.subscriberCount())
	}
}
