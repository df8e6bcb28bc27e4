package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer is a buy-side proposal for one NFT.
type Offer struct {
	BlockchainOfferID string

	BuyerAddress  string
	BuyerIdentity *IdentityRef
	NFTContract   string
	TokenID       string
	Amount        string
	Price         decimal.Decimal

	ExpiresAt     time.Time
	CreatedAt     time.Time
	CreatedTxHash string

	AcceptedAt     *time.Time
	SellerAddress  *string
	SellerIdentity *IdentityRef
	AcceptTxHash   *string
	CancelledAt    *time.Time
	CancelTxHash   *string
}

// Closed reports whether the offer has been accepted or cancelled.
func (o Offer) Closed() bool {
	return o.AcceptedAt != nil || o.CancelledAt != nil
}

// Acceptance is the effect of a seller accepting an offer.
type Acceptance struct {
	At             time.Time
	SellerAddress  string
	SellerIdentity *IdentityRef
	TxHash         string
}
