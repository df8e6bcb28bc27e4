package handler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"mintExchange/internal/model"
)

func orderKey(hash common.Hash) model.ListingKey {
	return model.ListingKey{OrderHash: model.NormalizeHex(hash.Hex())}
}

func (h *Handlers) orderFulfilled(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.OrderFulfilledArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}
	return h.applySale(ctx, event, orderKey(args.OrderHash), model.NormalizeAddress(args.Buyer), args.Price, model.NormalizeAddress(args.Offerer))
}

func (h *Handlers) orderCancelled(ctx context.Context, event model.Event) error {
	args, ok := event.Args.(model.OrderCancelledArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}
	return h.applyCancel(ctx, event, orderKey(args.OrderHash), model.NormalizeAddress(args.Offerer))
}

// ordersMatched is informational; the accompanying OrderFulfilled events carry the sale.
func (h *Handlers) ordersMatched(_ context.Context, event model.Event) error {
	args, ok := event.Args.(model.OrdersMatchedArgs)
	if !ok {
		return fmt.Errorf("unexpected args %T for %s", event.Args, event.Type)
	}
	h.logger.Debug("orders matched",
		zap.String("tx_hash", event.TxHash),
		zap.Int("orders", len(args.OrderHashes)),
	)
	return nil
}
