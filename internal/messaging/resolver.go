package messaging

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
)

var (
	// ErrEmptyIntent is returned when the navigation intent carries neither a
	// conversation id nor a counterparty.
	ErrEmptyIntent = errors.New("messaging: empty navigation intent")

	// ErrStoreNotLoaded is returned when resolution is attempted before the
	// conversation store's initial load has completed. Resolving against an
	// empty list would misclassify real conversations as absent and create
	// duplicate placeholders.
	ErrStoreNotLoaded = errors.New("messaging: conversation store not loaded")
)

// Resolver maps a navigation intent to an existing conversation or to a
// not-yet-persisted placeholder selection.
type Resolver struct {
	store    *ConversationStore
	profiles ProfileDirectory
	listings ListingCatalog
	log      *logger.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(store *ConversationStore, profiles ProfileDirectory, listings ListingCatalog, log *logger.Logger) *Resolver {
	return &Resolver{
		store:    store,
		profiles: profiles,
		listings: listings,
		log:      log,
	}
}

// Resolve selects the conversation the intent points at.
//
// An explicit conversation id wins if it is present in the store. Otherwise a
// counterparty match is attempted, constrained to the intent's listing when
// one is given and to the counterparty alone when not. If nothing matches, a
// placeholder selection is synthesized from the counterparty's profile; the
// store is not touched until the first message persists.
func (r *Resolver) Resolve(ctx context.Context, intent model.ResolveIntent) (Selection, error) {
	if !r.store.Loaded() {
		return Selection{}, ErrStoreNotLoaded
	}
	if intent.Empty() {
		return Selection{}, ErrEmptyIntent
	}

	if intent.ConversationID != "" {
		if preview, ok := r.store.FindByID(intent.ConversationID); ok {
			return Selection{Preview: preview}, nil
		}
		if intent.CounterpartyID == "" {
			return Selection{}, ErrNotFound
		}
	}

	if preview, ok := r.store.FindByCounterparty(intent.CounterpartyID, intent.ListingID); ok {
		return Selection{Preview: preview}, nil
	}

	return r.placeholder(ctx, intent)
}

func (r *Resolver) placeholder(ctx context.Context, intent model.ResolveIntent) (Selection, error) {
	name := "User"
	profile, err := r.profiles.Get(ctx, intent.CounterpartyID)
	switch {
	case err == nil:
		if profile.FullName != "" {
			name = profile.FullName
		}
	case !errors.Is(err, ErrNotFound):
		r.log.Warn("counterparty profile lookup failed",
			zap.String("user_id", intent.CounterpartyID), zap.Error(err))
	}

	var listingID *string
	listingName := ""
	if intent.ListingID != "" {
		id := intent.ListingID
		listingID = &id
		listingName = "New Inquiry"
		if listing, err := r.listings.Get(ctx, intent.ListingID); err == nil {
			listingName = listing.Name
		}
	}

	return Selection{
		Unsaved: true,
		Preview: model.ConversationPreview{
			OtherUserID: intent.CounterpartyID,
			Name:        name,
			Initials:    model.Initials(name),
			ListingID:   listingID,
			ListingName: listingName,
		},
	}, nil
}
