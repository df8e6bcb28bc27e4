package handler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mintExchange/internal/model"
	"mintExchange/internal/storage"
)

var (
	// ErrMissingReference means the listing or offer an event refers to has not been observed.
	ErrMissingReference = errors.New("referenced row not observed")
	// ErrConflict means the event contradicts the stored state.
	ErrConflict = errors.New("inconsistent precondition")
)

const defaultListingTTL = 30 * 24 * time.Hour

// IdentityResolver maps an address to its off-chain profiles.
type IdentityResolver interface {
	Resolve(ctx context.Context, address string) ([]model.Identity, error)
}

// MetadataFetcher loads NFT metadata.
type MetadataFetcher interface {
	Fetch(ctx context.Context, contract, tokenID, uriHint string) (model.Metadata, error)
}

// ProfileQueue accepts addresses for background profile refresh.
type ProfileQueue interface {
	Enqueue(address string) bool
}

// Deps are the collaborators handlers write through. Only Store is required.
type Deps struct {
	Store           storage.Store
	Identities      IdentityResolver
	Metadata        MetadataFetcher
	Profiles        ProfileQueue
	Logger          *zap.Logger
	PaymentDecimals int32
	ListingTTL      time.Duration
	Now             func() time.Time
}

// Func applies one decoded event.
type Func func(ctx context.Context, event model.Event) error

// Handlers applies decoded events to the store.
type Handlers struct {
	store      storage.Store
	identities IdentityResolver
	metadata   MetadataFetcher
	profiles   ProfileQueue
	logger     *zap.Logger
	decimals   int32
	listingTTL time.Duration
	now        func() time.Time
}

func New(deps Deps) (*Handlers, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	h := &Handlers{
		store:      deps.Store,
		identities: deps.Identities,
		metadata:   deps.Metadata,
		profiles:   deps.Profiles,
		logger:     deps.Logger,
		decimals:   deps.PaymentDecimals,
		listingTTL: deps.ListingTTL,
		now:        deps.Now,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.listingTTL <= 0 {
		h.listingTTL = defaultListingTTL
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h, nil
}

// Table returns the handler for every event type. Extend it together with model.AllEventTypes.
func (h *Handlers) Table() map[model.EventType]Func {
	return map[model.EventType]Func{
		model.EventListingCreated:   h.listingCreated,
		model.EventListingSold:      h.listingSold,
		model.EventListingCancelled: h.listingCancelled,
		model.EventOfferMade:        h.offerMade,
		model.EventOfferAccepted:    h.offerAccepted,
		model.EventOfferCancelled:   h.offerCancelled,
		model.EventOrderFulfilled:   h.orderFulfilled,
		model.EventOrderCancelled:   h.orderCancelled,
		model.EventOrdersMatched:    h.ordersMatched,
	}
}

// eventTime is the block time of the event, or now when the log carried none.
func (h *Handlers) eventTime(event model.Event) time.Time {
	if event.Timestamp > 0 {
		return time.Unix(int64(event.Timestamp), 0).UTC()
	}
	return h.now().UTC()
}

func (h *Handlers) price(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -h.decimals)
}

// identity resolves an address best-effort; failures only cost the enrichment.
func (h *Handlers) identity(ctx context.Context, address string) *model.IdentityRef {
	if h.identities == nil {
		return nil
	}
	identities, err := h.identities.Resolve(ctx, address)
	if err != nil {
		h.logger.Warn("identity lookup failed", zap.String("address", address), zap.Error(err))
		return nil
	}
	if len(identities) == 0 {
		return nil
	}
	return identities[0].Ref()
}

func (h *Handlers) enqueueProfile(address string) {
	if h.profiles != nil {
		h.profiles.Enqueue(address)
	}
}

func (h *Handlers) recordActivity(ctx context.Context, event model.Event, activity model.Activity) error {
	activity.TxHash = model.NormalizeHex(event.TxHash)
	activity.BlockNumber = event.BlockNumber
	activity.LogIndex = event.LogIndex
	activity.CreatedAt = h.eventTime(event)

	inserted, err := h.store.InsertActivityIfAbsent(ctx, activity)
	if err != nil {
		return fmt.Errorf("insert %s activity: %w", activity.Type, err)
	}
	if !inserted {
		h.logger.Debug("activity already recorded",
			zap.String("type", string(activity.Type)),
			zap.String("subject", activity.Subject),
			zap.String("tx_hash", activity.TxHash),
		)
	}
	return nil
}

// checkUnapplied explains a conditional transition that did not apply. A replay
// of the transition already stored is fine; anything else is a conflict.
func checkUnapplied(subject, transition string, otherClosed bool, storedTx *string, txHash string) error {
	if otherClosed {
		return fmt.Errorf("%w: %s is closed, cannot mark %s", ErrConflict, subject, transition)
	}
	if storedTx != nil && *storedTx != model.NormalizeHex(txHash) {
		return fmt.Errorf("%w: %s already %s in %s", ErrConflict, subject, transition, *storedTx)
	}
	return nil
}

func nullPrice(price decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: price, Valid: true}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
