package storage

import (
	"context"
	"errors"

	"mintExchange/internal/model"
)

// ErrNotFound is returned when a write targets a row that does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract of the sync pipeline. Every write that
// creates an identity-bearing row is an insert-if-absent on its natural key and
// returns the existing row on conflict.
type Store interface {
	ListingStore
	OfferStore
	ActivityStore
	CursorStore
	UserStore
}

// ListingStore persists listings keyed by native id or order hash.
type ListingStore interface {
	// InsertListingIfAbsent returns the stored row and whether this call created it.
	InsertListingIfAbsent(ctx context.Context, listing model.Listing) (model.Listing, bool, error)
	GetListing(ctx context.Context, key model.ListingKey) (model.Listing, bool, error)
	// MarkListingSold applies the sale only while the listing is neither sold nor
	// cancelled. It returns the current row and whether this call applied it.
	MarkListingSold(ctx context.Context, key model.ListingKey, sale model.Sale) (model.Listing, bool, error)
	MarkListingCancelled(ctx context.Context, key model.ListingKey, cancel model.Cancellation) (model.Listing, bool, error)
}

// OfferStore persists offers keyed by native id.
type OfferStore interface {
	InsertOfferIfAbsent(ctx context.Context, offer model.Offer) (model.Offer, bool, error)
	GetOffer(ctx context.Context, offerID string) (model.Offer, bool, error)
	MarkOfferAccepted(ctx context.Context, offerID string, accept model.Acceptance) (model.Offer, bool, error)
	MarkOfferCancelled(ctx context.Context, offerID string, cancel model.Cancellation) (model.Offer, bool, error)
}

// ActivityStore appends activity rows, deduplicated on (tx hash, type, subject).
type ActivityStore interface {
	InsertActivityIfAbsent(ctx context.Context, activity model.Activity) (bool, error)
}

// CursorStore persists the last fully applied block per cursor name.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (uint64, bool, error)
	// AdvanceCursor never moves a cursor backward.
	AdvanceCursor(ctx context.Context, name string, block uint64) error
}

// UserStore caches resolved profiles by address.
type UserStore interface {
	UpsertUser(ctx context.Context, user model.User) error
}
