package handler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mintExchange/internal/model"
)

func offerSubject(offerID string) string {
	return "offer:" + offerID
}

func (h *Handlers) offerMade(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.OfferMadeArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}

	offerID := bigString(args.OfferID)
	buyer := model.NormalizeAddress(args.Buyer)

	offer, found, err := h.store.GetOffer(ctx, offerID)
	if err != nil {
		return fmt.Errorf("load offer %s: %w", offerID, err)
	}
	if !found {
		created := h.eventTime(event)
		expires := created.Add(h.listingTTL)
		if args.ExpiresAt != nil && args.ExpiresAt.Sign() > 0 && args.ExpiresAt.IsInt64() {
			expires = time.Unix(args.ExpiresAt.Int64(), 0).UTC()
		}
		offer = model.Offer{
			BlockchainOfferID: offerID,
			BuyerAddress:      buyer,
			BuyerIdentity:     h.identity(ctx, buyer),
			NFTContract:       model.NormalizeAddress(args.NFTContract),
			TokenID:           bigString(args.TokenID),
			Amount:            bigString(args.Amount),
			Price:             h.price(args.Price),
			ExpiresAt:         expires,
			CreatedAt:         created,
			CreatedTxHash:     model.NormalizeHex(event.TxHash),
		}
		stored, inserted, err := h.store.InsertOfferIfAbsent(ctx, offer)
		if err != nil {
			return fmt.Errorf("insert offer %s: %w", offerID, err)
		}
		offer = stored
		if inserted {
			h.logger.Info("offer made", zap.String("offer_id", offerID), zap.String("tx_hash", event.TxHash))
		}
	}

	if err := h.recordActivity(ctx, event, model.Activity{
		Type:          model.ActivityOfferMade,
		Subject:       offerSubject(offerID),
		ActorAddress:  offer.BuyerAddress,
		ActorIdentity: offer.BuyerIdentity,
		NFTContract:   offer.NFTContract,
		TokenID:       offer.TokenID,
		Price:         nullPrice(offer.Price),
		Metadata: map[string]string{
			"protocol":   string(event.Protocol),
			"expires_at": offer.ExpiresAt.Format(time.RFC3339),
		},
	}); err != nil {
		return err
	}

	h.enqueueProfile(buyer)
	return nil
}

func (h *Handlers) offerAccepted(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.OfferAcceptedArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}

	offerID := bigString(args.OfferID)
	seller := model.NormalizeAddress(args.Seller)

	_, found, err := h.store.GetOffer(ctx, offerID)
	if err != nil {
		return fmt.Errorf("load offer %s: %w", offerID, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMissingReference, offerSubject(offerID))
	}

	sellerIdentity := h.identity(ctx, seller)
	offer, applied, err := h.store.MarkOfferAccepted(ctx, offerID, model.Acceptance{
		At:             h.eventTime(event),
		SellerAddress:  seller,
		SellerIdentity: sellerIdentity,
		TxHash:         event.TxHash,
	})
	if err != nil {
		return fmt.Errorf("mark offer %s accepted: %w", offerID, err)
	}
	if !applied {
		if err := checkUnapplied(offerSubject(offerID), "accepted", offer.CancelledAt != nil, offer.AcceptTxHash, event.TxHash); err != nil {
			return err
		}
	} else {
		h.logger.Info("offer accepted", zap.String("offer_id", offerID), zap.String("tx_hash", event.TxHash))
	}

	if err := h.recordActivity(ctx, event, model.Activity{
		Type:          model.ActivityOfferAccepted,
		Subject:       offerSubject(offerID),
		ActorAddress:  seller,
		ActorIdentity: sellerIdentity,
		NFTContract:   offer.NFTContract,
		TokenID:       offer.TokenID,
		Price:         nullPrice(offer.Price),
		Metadata: map[string]string{
			"protocol": string(event.Protocol),
			"buyer":    offer.BuyerAddress,
		},
	}); err != nil {
		return err
	}

	h.enqueueProfile(seller)
	return nil
}

func (h *Handlers) offerCancelled(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.OfferCancelledArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}

	offerID := bigString(args.OfferID)
	_, found, err := h.store.GetOffer(ctx, offerID)
	if err != nil {
		return fmt.Errorf("load offer %s: %w", offerID, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMissingReference, offerSubject(offerID))
	}

	offer, applied, err := h.store.MarkOfferCancelled(ctx, offerID, model.Cancellation{
		At:     h.eventTime(event),
		TxHash: event.TxHash,
	})
	if err != nil {
		return fmt.Errorf("mark offer %s cancelled: %w", offerID, err)
	}
	if !applied {
		if err := checkUnapplied(offerSubject(offerID), "cancelled", offer.AcceptedAt != nil, offer.CancelTxHash, event.TxHash); err != nil {
			return err
		}
	}

	return h.recordActivity(ctx, event, model.Activity{
		Type:          model.ActivityOfferCancelled,
		Subject:       offerSubject(offerID),
		ActorAddress:  offer.BuyerAddress,
		ActorIdentity: offer.BuyerIdentity,
		NFTContract:   offer.NFTContract,
		TokenID:       offer.TokenID,
		Price:         nullPrice(offer.Price),
		Metadata:      map[string]string{"protocol": string(event.Protocol)},
	})
}
