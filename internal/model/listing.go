package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractType tells which protocol a listing or order lives on.
type ContractType string

const (
	ContractTypeNative  ContractType = "native"
	ContractTypeSeaport ContractType = "seaport"
)

// IdentityRef is the off-chain profile attached to an address on a row.
type IdentityRef struct {
	FID      int64  `json:"fid"`
	Username string `json:"username"`
}

// ListingKey identifies a listing either by native id or by order hash.
type ListingKey struct {
	NativeID  string
	OrderHash string
}

func (k ListingKey) String() string {
	if k.NativeID != "" {
		return "listing:" + k.NativeID
	}
	return "order:" + k.OrderHash
}

// Listing is one sell-side offer for one NFT on one protocol.
type Listing struct {
	ContractType        ContractType
	BlockchainListingID *string
	OrderHash           *string

	SellerAddress  string
	SellerIdentity *IdentityRef
	NFTContract    string
	TokenID        string
	Amount         string
	Price          decimal.Decimal

	MetadataURI string
	Name        string
	Description string
	ImageURL    string

	ExpiresAt     time.Time
	CreatedAt     time.Time
	CreatedTxHash string

	SoldAt        *time.Time
	CancelledAt   *time.Time
	BuyerAddress  *string
	BuyerIdentity *IdentityRef
	SaleTxHash    *string
	CancelTxHash  *string
}

// Key returns the natural key of the listing.
func (l Listing) Key() ListingKey {
	if l.BlockchainListingID != nil {
		return ListingKey{NativeID: *l.BlockchainListingID}
	}
	if l.OrderHash != nil {
		return ListingKey{OrderHash: *l.OrderHash}
	}
	return ListingKey{}
}

// Closed reports whether the listing has been sold or cancelled.
func (l Listing) Closed() bool {
	return l.SoldAt != nil || l.CancelledAt != nil
}

// Sale is the effect of a sale on a listing.
type Sale struct {
	At            time.Time
	BuyerAddress  string
	BuyerIdentity *IdentityRef
	TxHash        string
}

// Cancellation is the effect of a cancellation on a listing or offer.
type Cancellation struct {
	At     time.Time
	TxHash string
}
