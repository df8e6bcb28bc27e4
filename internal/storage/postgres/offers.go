package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"mintExchange/internal/model"
	"mintExchange/internal/storage"
)

const offerColumns = `
	blockchain_offer_id, buyer_address, buyer_fid, buyer_username,
	nft_contract, token_id, amount, price::text,
	expires_at, created_at, created_tx_hash,
	accepted_at, seller_address, seller_fid, seller_username, accept_tx_hash,
	cancelled_at, cancel_tx_hash`

func scanOffer(row pgx.Row) (model.Offer, error) {
	var (
		o                             model.Offer
		price                         string
		buyerFID, sellerFID           *int64
		buyerUsername, sellerUsername *string
	)
	err := row.Scan(
		&o.BlockchainOfferID, &o.BuyerAddress, &buyerFID, &buyerUsername,
		&o.NFTContract, &o.TokenID, &o.Amount, &price,
		&o.ExpiresAt, &o.CreatedAt, &o.CreatedTxHash,
		&o.AcceptedAt, &o.SellerAddress, &sellerFID, &sellerUsername, &o.AcceptTxHash,
		&o.CancelledAt, &o.CancelTxHash,
	)
	if err != nil {
		return model.Offer{}, err
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return model.Offer{}, fmt.Errorf("parse offer price %q: %w", price, err)
	}
	o.Price = parsed
	o.BuyerIdentity = identityFromColumns(buyerFID, buyerUsername)
	o.SellerIdentity = identityFromColumns(sellerFID, sellerUsername)
	return o, nil
}

func (s *Store) InsertOfferIfAbsent(ctx context.Context, o model.Offer) (model.Offer, bool, error) {
	if o.BlockchainOfferID == "" {
		return model.Offer{}, false, fmt.Errorf("offer id required")
	}
	buyerFID, buyerUsername := identityColumns(o.BuyerIdentity)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO offers (
			blockchain_offer_id, buyer_address, buyer_fid, buyer_username,
			nft_contract, token_id, amount, price,
			expires_at, created_at, created_tx_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::text::numeric,$9,$10,$11)
		ON CONFLICT (blockchain_offer_id) DO NOTHING
		RETURNING `+offerColumns,
		o.BlockchainOfferID,
		o.BuyerAddress,
		buyerFID,
		buyerUsername,
		o.NFTContract,
		o.TokenID,
		o.Amount,
		o.Price.String(),
		o.ExpiresAt,
		o.CreatedAt,
		model.NormalizeHex(o.CreatedTxHash),
	)
	stored, err := scanOffer(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Offer{}, false, err
	}

	existing, ok, err := s.GetOffer(ctx, o.BlockchainOfferID)
	if err != nil {
		return model.Offer{}, false, err
	}
	if !ok {
		return model.Offer{}, false, fmt.Errorf("offer %s conflicted but was not found", o.BlockchainOfferID)
	}
	return existing, false, nil
}

func (s *Store) GetOffer(ctx context.Context, offerID string) (model.Offer, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE blockchain_offer_id = $1`, offerID)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Offer{}, false, nil
		}
		return model.Offer{}, false, err
	}
	return o, true, nil
}

func (s *Store) MarkOfferAccepted(ctx context.Context, offerID string, accept model.Acceptance) (model.Offer, bool, error) {
	sellerFID, sellerUsername := identityColumns(accept.SellerIdentity)
	row := s.pool.QueryRow(ctx, `
		UPDATE offers SET
			accepted_at = $2,
			seller_address = $3,
			seller_fid = $4,
			seller_username = $5,
			accept_tx_hash = $6,
			updated_at = now()
		WHERE blockchain_offer_id = $1 AND accepted_at IS NULL AND cancelled_at IS NULL
		RETURNING `+offerColumns,
		offerID,
		accept.At,
		accept.SellerAddress,
		sellerFID,
		sellerUsername,
		model.NormalizeHex(accept.TxHash),
	)
	return s.finishOfferUpdate(ctx, offerID, row)
}

func (s *Store) MarkOfferCancelled(ctx context.Context, offerID string, cancel model.Cancellation) (model.Offer, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE offers SET
			cancelled_at = $2,
			cancel_tx_hash = $3,
			updated_at = now()
		WHERE blockchain_offer_id = $1 AND accepted_at IS NULL AND cancelled_at IS NULL
		RETURNING `+offerColumns,
		offerID,
		cancel.At,
		model.NormalizeHex(cancel.TxHash),
	)
	return s.finishOfferUpdate(ctx, offerID, row)
}

func (s *Store) finishOfferUpdate(ctx context.Context, offerID string, row pgx.Row) (model.Offer, bool, error) {
	updated, err := scanOffer(row)
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Offer{}, false, err
	}
	current, ok, err := s.GetOffer(ctx, offerID)
	if err != nil {
		return model.Offer{}, false, err
	}
	if !ok {
		return model.Offer{}, false, storage.ErrNotFound
	}
	return current, false, nil
}
