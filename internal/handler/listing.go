package handler

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"mintExchange/internal/model"
)

func (h *Handlers) listingCreated(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.ListingCreatedArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}

	listingID := bigString(args.ListingID)
	key := model.ListingKey{NativeID: listingID}
	seller := model.NormalizeAddress(args.Seller)
	nft := model.NormalizeAddress(args.NFTContract)
	tokenID := bigString(args.TokenID)
	price := h.price(args.Price)

	existing, found, err := h.store.GetListing(ctx, key)
	if err != nil {
		return fmt.Errorf("load listing %s: %w", key, err)
	}

	listing := existing
	if !found {
		created := h.eventTime(event)
		listing = model.Listing{
			ContractType:        model.ContractTypeNative,
			BlockchainListingID: &listingID,
			SellerAddress:       seller,
			SellerIdentity:      h.identity(ctx, seller),
			NFTContract:         nft,
			TokenID:             tokenID,
			Amount:              bigString(args.Amount),
			Price:               price,
			MetadataURI:         args.MetadataURI,
			ExpiresAt:           created.Add(h.listingTTL),
			CreatedAt:           created,
			CreatedTxHash:       model.NormalizeHex(event.TxHash),
		}
		h.enrich(ctx, &listing)

		stored, inserted, err := h.store.InsertListingIfAbsent(ctx, listing)
		if err != nil {
			return fmt.Errorf("insert listing %s: %w", key, err)
		}
		listing = stored
		if inserted {
			h.logger.Info("listing created", zap.String("listing", key.String()), zap.String("tx_hash", event.TxHash))
		}
	} else {
		h.logger.Debug("listing already exists", zap.String("listing", key.String()))
	}

	if err := h.recordActivity(ctx, event, model.Activity{
		Type:          model.ActivityListingCreated,
		Subject:       key.String(),
		ActorAddress:  listing.SellerAddress,
		ActorIdentity: listing.SellerIdentity,
		NFTContract:   listing.NFTContract,
		TokenID:       listing.TokenID,
		Price:         nullPrice(listing.Price),
		Metadata: map[string]string{
			"protocol":   string(event.Protocol),
			"listing_id": listingID,
			"name":       listing.Name,
		},
	}); err != nil {
		return err
	}

	h.enqueueProfile(seller)
	return nil
}

// enrich merges NFT metadata into a new listing. Missing metadata is not an error.
func (h *Handlers) enrich(ctx context.Context, listing *model.Listing) {
	if h.metadata == nil {
		return
	}
	meta, err := h.metadata.Fetch(ctx, listing.NFTContract, listing.TokenID, listing.MetadataURI)
	if err != nil {
		h.logger.Warn("metadata fetch failed",
			zap.String("address", listing.NFTContract),
			zap.String("token_id", listing.TokenID),
			zap.Error(err),
		)
		return
	}
	listing.Name = meta.Name
	listing.Description = meta.Description
	listing.ImageURL = meta.Image
	if listing.MetadataURI == "" {
		listing.MetadataURI = meta.TokenURI
	}
}

func (h *Handlers) listingSold(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.ListingSoldArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}
	key := model.ListingKey{NativeID: bigString(args.ListingID)}
	return h.applySale(ctx, event, key, model.NormalizeAddress(args.Buyer), args.Price, "")
}

// applySale marks a listing sold and records the sale activity. When seller is
// set it must match the stored seller.
func (h *Handlers) applySale(ctx context.Context, event model.Event, key model.ListingKey, buyer string, rawPrice *big.Int, seller string) error {
	listing, found, err := h.store.GetListing(ctx, key)
	if err != nil {
		return fmt.Errorf("load listing %s: %w", key, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMissingReference, key)
	}
	if seller != "" && listing.SellerAddress != seller {
		return fmt.Errorf("%w: %s seller %s, event offerer %s", ErrConflict, key, listing.SellerAddress, seller)
	}

	buyerIdentity := h.identity(ctx, buyer)
	listing, applied, err := h.store.MarkListingSold(ctx, key, model.Sale{
		At:            h.eventTime(event),
		BuyerAddress:  buyer,
		BuyerIdentity: buyerIdentity,
		TxHash:        event.TxHash,
	})
	if err != nil {
		return fmt.Errorf("mark listing %s sold: %w", key, err)
	}
	if !applied {
		if err := checkUnapplied(key.String(), "sold", listing.CancelledAt != nil, listing.SaleTxHash, event.TxHash); err != nil {
			return err
		}
	} else {
		h.logger.Info("listing sold", zap.String("listing", key.String()), zap.String("tx_hash", event.TxHash))
	}

	price := listing.Price
	if rawPrice != nil && rawPrice.Sign() > 0 {
		price = h.price(rawPrice)
	}

	if err := h.recordActivity(ctx, event, model.Activity{
		Type:          model.ActivitySale,
		Subject:       key.String(),
		ActorAddress:  buyer,
		ActorIdentity: buyerIdentity,
		NFTContract:   listing.NFTContract,
		TokenID:       listing.TokenID,
		Price:         nullPrice(price),
		Metadata: map[string]string{
			"protocol": string(event.Protocol),
			"seller":   listing.SellerAddress,
		},
	}); err != nil {
		return err
	}

	h.enqueueProfile(buyer)
	return nil
}

func (h *Handlers) listingCancelled(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.ListingCancelledArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}
	return h.applyCancel(ctx, event, model.ListingKey{NativeID: bigString(args.ListingID)}, "")
}

// applyCancel marks a listing cancelled. When seller is set it must match the stored seller.
func (h *Handlers) applyCancel(ctx context.Context, event model.Event, key model.ListingKey, seller string) error {
	listing, found, err := h.store.GetListing(ctx, key)
	if err != nil {
		return fmt.Errorf("load listing %s: %w", key, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMissingReference, key)
	}
	if seller != "" && listing.SellerAddress != seller {
		return fmt.Errorf("%w: %s seller %s, event offerer %s", ErrConflict, key, listing.SellerAddress, seller)
	}

	listing, applied, err := h.store.MarkListingCancelled(ctx, key, model.Cancellation{
		At:     h.eventTime(event),
		TxHash: event.TxHash,
	})
	if err != nil {
		return fmt.Errorf("mark listing %s cancelled: %w", key, err)
	}
	if !applied {
		if err := checkUnapplied(key.String(), "cancelled", listing.SoldAt != nil, listing.CancelTxHash, event.TxHash); err != nil {
			return err
		}
	} else {
		h.logger.Info("listing cancelled", zap.String("listing", key.String()), zap.String("tx_hash", event.TxHash))
	}

	return h.recordActivity(ctx, event, model.Activity{
		Type:          model.ActivityListingCancelled,
		Subject:       key.String(),
		ActorAddress:  listing.SellerAddress,
		ActorIdentity: listing.SellerIdentity,
		NFTContract:   listing.NFTContract,
		TokenID:       listing.TokenID,
		Price:         nullPrice(listing.Price),
		Metadata:      map[string]string{"protocol": string(event.Protocol)},
	})
}
