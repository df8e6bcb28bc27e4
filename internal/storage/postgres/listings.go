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

const listingColumns = `
	contract_type, blockchain_listing_id, order_hash,
	seller_address, seller_fid, seller_username,
	nft_contract, token_id, amount, price::text,
	metadata_uri, name, description, image_url,
	expires_at, created_at, created_tx_hash,
	sold_at, cancelled_at, buyer_address, buyer_fid, buyer_username,
	sale_tx_hash, cancel_tx_hash`

func scanListing(row pgx.Row) (model.Listing, error) {
	var (
		l                             model.Listing
		contractType, price           string
		sellerFID, buyerFID           *int64
		sellerUsername, buyerUsername *string
	)
	err := row.Scan(
		&contractType, &l.BlockchainListingID, &l.OrderHash,
		&l.SellerAddress, &sellerFID, &sellerUsername,
		&l.NFTContract, &l.TokenID, &l.Amount, &price,
		&l.MetadataURI, &l.Name, &l.Description, &l.ImageURL,
		&l.ExpiresAt, &l.CreatedAt, &l.CreatedTxHash,
		&l.SoldAt, &l.CancelledAt, &l.BuyerAddress, &buyerFID, &buyerUsername,
		&l.SaleTxHash, &l.CancelTxHash,
	)
	if err != nil {
		return model.Listing{}, err
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return model.Listing{}, fmt.Errorf("parse listing price %q: %w", price, err)
	}
	l.ContractType = model.ContractType(contractType)
	l.Price = parsed
	l.SellerIdentity = identityFromColumns(sellerFID, sellerUsername)
	l.BuyerIdentity = identityFromColumns(buyerFID, buyerUsername)
	return l, nil
}

// listingKeyClause returns the column and value a key matches on.
func listingKeyClause(key model.ListingKey) (string, string, error) {
	switch {
	case key.NativeID != "":
		return "blockchain_listing_id", key.NativeID, nil
	case key.OrderHash != "":
		return "order_hash", model.NormalizeHex(key.OrderHash), nil
	default:
		return "", "", fmt.Errorf("empty listing key")
	}
}

func (s *Store) InsertListingIfAbsent(ctx context.Context, l model.Listing) (model.Listing, bool, error) {
	key := l.Key()
	if key == (model.ListingKey{}) {
		return model.Listing{}, false, fmt.Errorf("listing has neither native id nor order hash")
	}
	sellerFID, sellerUsername := identityColumns(l.SellerIdentity)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO listings (
			contract_type, blockchain_listing_id, order_hash,
			seller_address, seller_fid, seller_username,
			nft_contract, token_id, amount, price,
			metadata_uri, name, description, image_url,
			expires_at, created_at, created_tx_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::text::numeric,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT DO NOTHING
		RETURNING `+listingColumns,
		string(l.ContractType),
		l.BlockchainListingID,
		l.OrderHash,
		l.SellerAddress,
		sellerFID,
		sellerUsername,
		l.NFTContract,
		l.TokenID,
		l.Amount,
		l.Price.String(),
		l.MetadataURI,
		l.Name,
		l.Description,
		l.ImageURL,
		l.ExpiresAt,
		l.CreatedAt,
		model.NormalizeHex(l.CreatedTxHash),
	)
	stored, err := scanListing(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, false, err
	}

	existing, ok, err := s.GetListing(ctx, key)
	if err != nil {
		return model.Listing{}, false, err
	}
	if !ok {
		return model.Listing{}, false, fmt.Errorf("listing %s conflicted but was not found", key)
	}
	return existing, false, nil
}

func (s *Store) GetListing(ctx context.Context, key model.ListingKey) (model.Listing, bool, error) {
	column, value, err := listingKeyClause(key)
	if err != nil {
		return model.Listing{}, false, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE `+column+` = $1`, value)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Listing{}, false, nil
		}
		return model.Listing{}, false, err
	}
	return l, true, nil
}

func (s *Store) MarkListingSold(ctx context.Context, key model.ListingKey, sale model.Sale) (model.Listing, bool, error) {
	column, value, err := listingKeyClause(key)
	if err != nil {
		return model.Listing{}, false, err
	}
	buyerFID, buyerUsername := identityColumns(sale.BuyerIdentity)

	row := s.pool.QueryRow(ctx, `
		UPDATE listings SET
			sold_at = $2,
			buyer_address = $3,
			buyer_fid = $4,
			buyer_username = $5,
			sale_tx_hash = $6,
			updated_at = now()
		WHERE `+column+` = $1 AND sold_at IS NULL AND cancelled_at IS NULL
		RETURNING `+listingColumns,
		value,
		sale.At,
		sale.BuyerAddress,
		buyerFID,
		buyerUsername,
		model.NormalizeHex(sale.TxHash),
	)
	return s.finishListingUpdate(ctx, key, row)
}

func (s *Store) MarkListingCancelled(ctx context.Context, key model.ListingKey, cancel model.Cancellation) (model.Listing, bool, error) {
	column, value, err := listingKeyClause(key)
	if err != nil {
		return model.Listing{}, false, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE listings SET
			cancelled_at = $2,
			cancel_tx_hash = $3,
			updated_at = now()
		WHERE `+column+` = $1 AND sold_at IS NULL AND cancelled_at IS NULL
		RETURNING `+listingColumns,
		value,
		cancel.At,
		model.NormalizeHex(cancel.TxHash),
	)
	return s.finishListingUpdate(ctx, key, row)
}

// finishListingUpdate distinguishes an applied update from a closed or missing row.
func (s *Store) finishListingUpdate(ctx context.Context, key model.ListingKey, row pgx.Row) (model.Listing, bool, error) {
	updated, err := scanListing(row)
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, false, err
	}
	current, ok, err := s.GetListing(ctx, key)
	if err != nil {
		return model.Listing{}, false, err
	}
	if !ok {
		return model.Listing{}, false, storage.ErrNotFound
	}
	return current, false, nil
}
