package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
)

// ConversationStore holds the authoritative in-memory conversation list for
// one user, each entry annotated with a denormalized preview. It is the single
// producer of the sidebar view; previews change only in response to load
// completion, a send, or a live push.
type ConversationStore struct {
	userID        string
	conversations ConversationRecords
	messages      MessageRecords
	profiles      ProfileDirectory
	listings      ListingCatalog
	log           *logger.Logger

	mu       sync.RWMutex
	loaded   bool
	previews []model.ConversationPreview
}

// NewConversationStore creates an empty store for the given user.
func NewConversationStore(
	userID string,
	conversations ConversationRecords,
	messages MessageRecords,
	profiles ProfileDirectory,
	listings ListingCatalog,
	log *logger.Logger,
) *ConversationStore {
	return &ConversationStore{
		userID:        userID,
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		listings:      listings,
		log:           log,
	}
}

// LoadAll fetches every conversation for the user, joins the other
// participant's profile and the listing name, and populates last-message
// previews with a single id-set query. A missing profile degrades to a
// generic name; a failed conversation or last-message fetch fails the load.
func (s *ConversationStore) LoadAll(ctx context.Context) error {
	convs, err := s.conversations.ListForUser(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	previews := make([]model.ConversationPreview, 0, len(convs))
	ids := make([]string, 0, len(convs))
	for _, conv := range convs {
		otherID := conv.Other(s.userID)

		name := model.FallbackName
		profile, err := s.profiles.Get(ctx, otherID)
		switch {
		case err == nil:
			name = profile.FullName
			if name == "" {
				name = "User"
			}
		case !errors.Is(err, ErrNotFound):
			s.log.Warn("profile lookup failed, using fallback name",
				zap.String("user_id", otherID), zap.Error(err))
		}

		listingName := ""
		if conv.ListingID != nil {
			if listing, err := s.listings.Get(ctx, *conv.ListingID); err == nil {
				listingName = listing.Name
			} else if !errors.Is(err, ErrNotFound) {
				s.log.Warn("listing lookup failed",
					zap.String("listing_id", *conv.ListingID), zap.Error(err))
			}
		}

		previews = append(previews, model.ConversationPreview{
			ID:          conv.ID,
			OtherUserID: otherID,
			Name:        name,
			Initials:    model.Initials(name),
			ListingID:   conv.ListingID,
			ListingName: listingName,
			CreatedAt:   conv.CreatedAt,
		})
		ids = append(ids, conv.ID)
	}

	if len(ids) > 0 {
		latest, err := s.messages.LatestPerConversation(ctx, ids)
		if err != nil {
			return fmt.Errorf("load last messages: %w", err)
		}
		for i := range previews {
			if msg, ok := latest[previews[i].ID]; ok {
				previews[i].LastMessage = msg.Content
				previews[i].LastMessageAt = msg.CreatedAt
			}
		}
	}

	s.mu.Lock()
	s.previews = previews
	s.loaded = true
	s.mu.Unlock()

	return nil
}

// Loaded reports whether the initial load has completed.
func (s *ConversationStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns a copy of the current preview list.
func (s *ConversationStore) Snapshot() []model.ConversationPreview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ConversationPreview, len(s.previews))
	copy(out, s.previews)
	return out
}

// ApplyIncomingMessage updates the last-message fields of the preview for the
// message's conversation. Unknown conversation ids are a no-op; the message
// may belong to a conversation created in another session and not yet listed.
func (s *ConversationStore) ApplyIncomingMessage(conversationID string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.previews {
		if s.previews[i].ID == conversationID {
			s.previews[i].LastMessage = msg.Content
			s.previews[i].LastMessageAt = msg.CreatedAt
			return
		}
	}
}

// PrependNew inserts a freshly created conversation's preview at the head of
// the list. Used right after lazy creation instead of a full reload.
func (s *ConversationStore) PrependNew(preview model.ConversationPreview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews = append([]model.ConversationPreview{preview}, s.previews...)
}

// FindByID returns the preview with the given conversation id.
func (s *ConversationStore) FindByID(conversationID string) (model.ConversationPreview, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.previews {
		if p.ID == conversationID {
			return p, true
		}
	}
	return model.ConversationPreview{}, false
}

// FindByCounterparty returns the first conversation with the given
// counterparty. When listingID is set the match is constrained to that
// listing; otherwise any conversation with the counterparty matches,
// regardless of listing.
func (s *ConversationStore) FindByCounterparty(counterpartyID, listingID string) (model.ConversationPreview, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.previews {
		if p.OtherUserID != counterpartyID {
			continue
		}
		if listingID != "" {
			if p.ListingID == nil || *p.ListingID != listingID {
				continue
			}
		}
		return p, true
	}
	return model.ConversationPreview{}, false
}
