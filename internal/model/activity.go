package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityType names a row in the activity feed.
type ActivityType string

const (
	ActivityListingCreated   ActivityType = "listing_created"
	ActivitySale             ActivityType = "sale"
	ActivityListingCancelled ActivityType = "listing_cancelled"
	ActivityOfferMade        ActivityType = "offer_made"
	ActivityOfferAccepted    ActivityType = "offer_accepted"
	ActivityOfferCancelled   ActivityType = "offer_cancelled"
)

// Activity is an append-only audit row for one applied marketplace action.
type Activity struct {
	ID      string
	Type    ActivityType
	Subject string

	ActorAddress  string
	ActorIdentity *IdentityRef
	NFTContract   string
	TokenID       string
	Price         decimal.NullDecimal
	Metadata      map[string]string

	TxHash      string
	BlockNumber uint64
	LogIndex    uint64
	CreatedAt   time.Time
}

// ActivityKey is the natural key activities are deduplicated on.
type ActivityKey struct {
	TxHash  string
	Type    ActivityType
	Subject string
}

// Key returns the natural key of the activity.
func (a Activity) Key() ActivityKey {
	return ActivityKey{TxHash: NormalizeHex(a.TxHash), Type: a.Type, Subject: a.Subject}
}
