package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventType is the closed set of marketplace events the pipeline understands.
type EventType int

const (
	EventUnknown EventType = iota
	EventListingCreated
	EventListingSold
	EventListingCancelled
	EventOfferMade
	EventOfferAccepted
	EventOfferCancelled
	EventOrderFulfilled
	EventOrderCancelled
	EventOrdersMatched
)

// AllEventTypes lists every known event type. Extend it together with the handler table.
var AllEventTypes = []EventType{
	EventListingCreated,
	EventListingSold,
	EventListingCancelled,
	EventOfferMade,
	EventOfferAccepted,
	EventOfferCancelled,
	EventOrderFulfilled,
	EventOrderCancelled,
	EventOrdersMatched,
}

func (t EventType) String() string {
	switch t {
	case EventListingCreated:
		return "ListingCreated"
	case EventListingSold:
		return "ListingSold"
	case EventListingCancelled:
		return "ListingCancelled"
	case EventOfferMade:
		return "OfferMade"
	case EventOfferAccepted:
		return "OfferAccepted"
	case EventOfferCancelled:
		return "OfferCancelled"
	case EventOrderFulfilled:
		return "OrderFulfilled"
	case EventOrderCancelled:
		return "OrderCancelled"
	case EventOrdersMatched:
		return "OrdersMatched"
	default:
		return "Unknown"
	}
}

// ParseEventType maps a wire name back to its EventType.
func ParseEventType(name string) EventType {
	for _, t := range AllEventTypes {
		if t.String() == name {
			return t
		}
	}
	return EventUnknown
}

// Args is the protocol-specific payload of a decoded event.
// Only the payload types in this file implement it.
type Args interface {
	eventType() EventType
}

// ListingCreatedArgs is the decoded native ListingCreated payload.
type ListingCreatedArgs struct {
	ListingID   *big.Int
	Seller      common.Address
	NFTContract common.Address
	TokenID     *big.Int
	Amount      *big.Int
	Price       *big.Int
	MetadataURI string
}

// ListingSoldArgs is the decoded native ListingSold payload.
type ListingSoldArgs struct {
	ListingID *big.Int
	Buyer     common.Address
	Price     *big.Int
}

// ListingCancelledArgs is the decoded native ListingCancelled payload.
type ListingCancelledArgs struct {
	ListingID *big.Int
}

// OfferMadeArgs is the decoded native OfferMade payload.
type OfferMadeArgs struct {
	OfferID     *big.Int
	Buyer       common.Address
	NFTContract common.Address
	TokenID     *big.Int
	Amount      *big.Int
	Price       *big.Int
	ExpiresAt   *big.Int
}

// OfferAcceptedArgs is the decoded native OfferAccepted payload.
type OfferAcceptedArgs struct {
	OfferID *big.Int
	Seller  common.Address
}

// OfferCancelledArgs is the decoded native OfferCancelled payload.
type OfferCancelledArgs struct {
	OfferID *big.Int
}

// OrderFulfilledArgs is an order-protocol fulfillment reduced to its NFT leg.
type OrderFulfilledArgs struct {
	OrderHash    common.Hash
	Offerer      common.Address
	Zone         common.Address
	Recipient    common.Address
	Buyer        common.Address
	NFTContract  common.Address
	TokenID      *big.Int
	Amount       *big.Int
	ItemKind     uint8
	PaymentToken common.Address
	Price        *big.Int
}

// OrderCancelledArgs is the decoded order-protocol cancellation.
type OrderCancelledArgs struct {
	OrderHash common.Hash
	Offerer   common.Address
	Zone      common.Address
}

// OrdersMatchedArgs carries the order hashes of a match. Informational only.
type OrdersMatchedArgs struct {
	OrderHashes []common.Hash
}

func (ListingCreatedArgs) eventType() EventType   { return EventListingCreated }
func (ListingSoldArgs) eventType() EventType      { return EventListingSold }
func (ListingCancelledArgs) eventType() EventType { return EventListingCancelled }
func (OfferMadeArgs) eventType() EventType        { return EventOfferMade }
func (OfferAcceptedArgs) eventType() EventType    { return EventOfferAccepted }
func (OfferCancelledArgs) eventType() EventType   { return EventOfferCancelled }
func (OrderFulfilledArgs) eventType() EventType   { return EventOrderFulfilled }
func (OrderCancelledArgs) eventType() EventType   { return EventOrderCancelled }
func (OrdersMatchedArgs) eventType() EventType    { return EventOrdersMatched }
