package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/model"
)

// Profiles is the Postgres-backed profiles collection.
type Profiles struct {
	pool *pgxpool.Pool
}

// NewProfiles creates the collection over a pool.
func NewProfiles(pool *pgxpool.Pool) *Profiles {
	return &Profiles{pool: pool}
}

var _ messaging.ProfileDirectory = (*Profiles)(nil)

// Get returns the profile for a user id, or messaging.ErrNotFound.
func (p *Profiles) Get(ctx context.Context, userID string) (model.Profile, error) {
	var profile model.Profile
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, full_name, email, created_at
		FROM profiles
		WHERE id = $1::uuid
	`, userID).Scan(&profile.ID, &profile.FullName, &profile.Email, &profile.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Profile{}, messaging.ErrNotFound
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// Listings is the Postgres-backed listings collection. Read-only here:
// listing lifecycle belongs to the listings service.
type Listings struct {
	pool *pgxpool.Pool
}

// NewListings creates the collection over a pool.
func NewListings(pool *pgxpool.Pool) *Listings {
	return &Listings{pool: pool}
}

var _ messaging.ListingCatalog = (*Listings)(nil)

// Get returns the listing for an id, or messaging.ErrNotFound.
func (l *Listings) Get(ctx context.Context, listingID string) (model.Listing, error) {
	var listing model.Listing
	err := l.pool.QueryRow(ctx, `
		SELECT id::text, seller_id::text, name, created_at
		FROM listings
		WHERE id = $1::uuid
	`, listingID).Scan(&listing.ID, &listing.SellerID, &listing.Name, &listing.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, messaging.ErrNotFound
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}
