package handler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"mintExchange/internal/handler"
	"mintExchange/internal/market"
	"mintExchange/internal/market/markettest"
	"mintExchange/internal/model"
	"mintExchange/internal/storage"
)

var (
	seller = common.HexToAddress("0xAAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	buyer  = common.HexToAddress("0xBBbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	nft    = common.HexToAddress("0x4444444444444444444444444444444444444444")
	fees   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type stubIdentities struct {
	byAddress map[string][]model.Identity
	err       error
}

func (s stubIdentities) Resolve(_ context.Context, address string) ([]model.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byAddress[address], nil
}

type stubMetadata struct {
	meta model.Metadata
	err  error
}

func (s stubMetadata) Fetch(context.Context, string, string, string) (model.Metadata, error) {
	return s.meta, s.err
}

type recordingQueue struct {
	addresses []string
}

func (q *recordingQueue) Enqueue(address string) bool {
	q.addresses = append(q.addresses, address)
	return true
}

type harness struct {
	store   *storage.MemoryStore
	table   map[model.EventType]handler.Func
	queue   *recordingQueue
	native  *market.NativeDecoder
	seaport *market.SeaportDecoder
}

func newHarness(t *testing.T, mutate func(*handler.Deps)) *harness {
	t.Helper()

	store := storage.NewMemoryStore()
	queue := &recordingQueue{}
	deps := handler.Deps{
		Store: store,
		Identities: stubIdentities{byAddress: map[string][]model.Identity{
			model.NormalizeAddress(seller): {{FID: 11, Username: "seller"}},
			model.NormalizeAddress(buyer):  {{FID: 22, Username: "buyer"}},
		}},
		Metadata:        stubMetadata{meta: model.Metadata{Name: "Token #7", Image: "https://img/7.png"}},
		Profiles:        queue,
		PaymentDecimals: 6,
		ListingTTL:      24 * time.Hour,
		Now:             func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&deps)
	}

	h, err := handler.New(deps)
	require.NoError(t, err)

	native, err := market.NewNativeDecoder()
	require.NoError(t, err)
	seaport, err := market.NewSeaportDecoder(market.SeaportConfig{PaymentToken: markettest.PaymentToken})
	require.NoError(t, err)

	return &harness{store: store, table: h.Table(), queue: queue, native: native, seaport: seaport}
}

func (h *harness) apply(t *testing.T, log model.RawLog) error {
	t.Helper()

	decoder := market.Decoder(h.native)
	if log.Address == markettest.Seaport.Hex() {
		decoder = h.seaport
	}
	event, ok, err := decoder.Decode(log)
	require.NoError(t, err)
	require.True(t, ok)

	fn, ok := h.table[event.Type]
	require.True(t, ok, "no handler for %s", event.Type)
	return fn(context.Background(), event)
}

func (h *harness) activities(kind model.ActivityType) []model.Activity {
	var out []model.Activity
	for _, a := range h.store.Activities() {
		if a.Type == kind {
			out = append(out, a)
		}
	}
	return out
}

func listingCreated() model.RawLog {
	return markettest.At(
		markettest.ListingCreated(markettest.Marketplace, 42, seller, nft, 7, markettest.USDC(100), "ipfs://x"),
		100, 0, "0x01",
	)
}

func listingSold(tx string) model.RawLog {
	return markettest.At(markettest.ListingSold(markettest.Marketplace, 42, buyer, markettest.USDC(100)), 101, 0, tx)
}

func TestTableCoversAllEventTypes(t *testing.T) {
	h := newHarness(t, nil)
	for _, eventType := range model.AllEventTypes {
		require.Contains(t, h.table, eventType)
	}
	require.Len(t, h.table, len(model.AllEventTypes))
}

func TestNewRequiresStore(t *testing.T) {
	_, err := handler.New(handler.Deps{})
	require.Error(t, err)
}

func TestListingCreatedFreshListing(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, listingCreated()))

	listing, ok, err := h.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, listing.Price.Equal(decimal.NewFromInt(100)), "price %s", listing.Price)
	require.Equal(t, "42", *listing.BlockchainListingID)
	require.Nil(t, listing.SoldAt)
	require.Nil(t, listing.CancelledAt)
	require.Equal(t, model.ContractTypeNative, listing.ContractType)
	require.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", listing.SellerAddress)
	require.Equal(t, &model.IdentityRef{FID: 11, Username: "seller"}, listing.SellerIdentity)
	require.Equal(t, "7", listing.TokenID)
	require.Equal(t, "ipfs://x", listing.MetadataURI)
	require.Equal(t, "Token #7", listing.Name)
	require.Equal(t, fixedNow.Add(24*time.Hour), listing.ExpiresAt)

	created := h.activities(model.ActivityListingCreated)
	require.Len(t, created, 1)
	require.Equal(t, "listing:42", created[0].Subject)
	require.Equal(t, []string{listing.SellerAddress}, h.queue.addresses)
}

func TestListingCreatedIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, listingCreated()))
	require.NoError(t, h.apply(t, listingCreated()))

	require.Len(t, h.store.Listings(), 1)
	require.Len(t, h.activities(model.ActivityListingCreated), 1)
}

func TestListingSoldAfterCreation(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, listingCreated()))
	require.NoError(t, h.apply(t, listingSold("0x02")))

	listing, _, err := h.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)
	require.NotNil(t, listing.SoldAt)
	require.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", *listing.BuyerAddress)
	require.Equal(t, &model.IdentityRef{FID: 22, Username: "buyer"}, listing.BuyerIdentity)
	require.Equal(t, "0x02", *listing.SaleTxHash)

	sales := h.activities(model.ActivitySale)
	require.Len(t, sales, 1)
	require.True(t, sales[0].Price.Valid)
	require.True(t, sales[0].Price.Decimal.Equal(decimal.NewFromInt(100)))
	require.Equal(t, *listing.BuyerAddress, sales[0].ActorAddress)
}

func TestListingSoldIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, listingCreated()))
	require.NoError(t, h.apply(t, listingSold("0x02")))

	first, _, err := h.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)

	require.NoError(t, h.apply(t, listingSold("0x02")))

	second, _, err := h.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)
	require.Equal(t, *first.SoldAt, *second.SoldAt)
	require.Len(t, h.activities(model.ActivitySale), 1)
}

func TestListingSoldWithoutListingIsMissingReference(t *testing.T) {
	h := newHarness(t, nil)
	err := h.apply(t, listingSold("0x02"))
	require.ErrorIs(t, err, handler.ErrMissingReference)
	require.Empty(t, h.store.Listings())
	require.Empty(t, h.store.Activities())
}

func TestSoldAndCancelledAreMutuallyExclusive(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, listingCreated()))
	require.NoError(t, h.apply(t, markettest.At(markettest.ListingCancelled(markettest.Marketplace, 42), 101, 0, "0x03")))

	err := h.apply(t, listingSold("0x04"))
	require.ErrorIs(t, err, handler.ErrConflict)

	listing, _, err := h.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)
	require.NotNil(t, listing.CancelledAt)
	require.Nil(t, listing.SoldAt)
	require.Empty(t, h.activities(model.ActivitySale))
	require.Len(t, h.activities(model.ActivityListingCancelled), 1)
}

func TestEnrichmentFailuresAreNonFatal(t *testing.T) {
	h := newHarness(t, func(deps *handler.Deps) {
		deps.Identities = stubIdentities{err: errors.New("directory down")}
		deps.Metadata = stubMetadata{err: errors.New("gateway timeout")}
	})
	require.NoError(t, h.apply(t, listingCreated()))

	listing, ok, err := h.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, listing.SellerIdentity)
	require.Empty(t, listing.Name)
}

func TestEventTimestampDrivesLifecycleTimes(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, listingCreated()))

	sold := listingSold("0x02")
	sold.Timestamp = 1_700_000_000
	require.NoError(t, h.apply(t, sold))

	listing, _, err := h.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)
	require.Equal(t, time.Unix(1_700_000_000, 0).UTC(), *listing.SoldAt)
}

func TestOfferLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	expires := fixedNow.Add(48 * time.Hour).Unix()

	require.NoError(t, h.apply(t, markettest.At(
		markettest.OfferMade(markettest.Marketplace, 9, buyer, nft, 7, markettest.USDC(80), expires), 100, 0, "0x10")))
	require.NoError(t, h.apply(t, markettest.At(markettest.OfferAccepted(markettest.Marketplace, 9, seller), 101, 0, "0x11")))
	require.NoError(t, h.apply(t, markettest.At(markettest.OfferAccepted(markettest.Marketplace, 9, seller), 101, 0, "0x11")))

	offer, ok, err := h.store.GetOffer(context.Background(), "9")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Unix(expires, 0).UTC(), offer.ExpiresAt)
	require.True(t, offer.Price.Equal(decimal.NewFromInt(80)))
	require.NotNil(t, offer.AcceptedAt)
	require.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", *offer.SellerAddress)

	accepted := h.activities(model.ActivityOfferAccepted)
	require.Len(t, accepted, 1)
	require.Equal(t, "0x4444444444444444444444444444444444444444", accepted[0].NFTContract)
	require.Equal(t, "7", accepted[0].TokenID)

	err = h.apply(t, markettest.At(markettest.OfferCancelled(markettest.Marketplace, 9), 102, 0, "0x12"))
	require.ErrorIs(t, err, handler.ErrConflict)
	require.Empty(t, h.activities(model.ActivityOfferCancelled))
}

func TestOfferWithoutExpiryDefaultsToTTL(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, markettest.OfferMade(markettest.Marketplace, 3, buyer, nft, 7, markettest.USDC(1), 0)))

	offer, _, err := h.store.GetOffer(context.Background(), "3")
	require.NoError(t, err)
	require.Equal(t, fixedNow.Add(24*time.Hour), offer.ExpiresAt)
}

func TestOfferEventsWithoutOffer(t *testing.T) {
	h := newHarness(t, nil)
	require.ErrorIs(t, h.apply(t, markettest.OfferAccepted(markettest.Marketplace, 5, seller)), handler.ErrMissingReference)
	require.ErrorIs(t, h.apply(t, markettest.OfferCancelled(markettest.Marketplace, 5)), handler.ErrMissingReference)
	require.Empty(t, h.store.Activities())
}

func seedOrderListing(t *testing.T, store *storage.MemoryStore, orderHash common.Hash, owner common.Address) {
	t.Helper()
	hash := model.NormalizeHex(orderHash.Hex())
	_, created, err := store.InsertListingIfAbsent(context.Background(), model.Listing{
		ContractType:  model.ContractTypeSeaport,
		OrderHash:     &hash,
		SellerAddress: model.NormalizeAddress(owner),
		NFTContract:   model.NormalizeAddress(nft),
		TokenID:       "7",
		Amount:        "1",
		Price:         decimal.NewFromInt(100),
		CreatedAt:     fixedNow,
		ExpiresAt:     fixedNow.Add(time.Hour),
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestOrderFulfilledMarksListingSold(t *testing.T) {
	h := newHarness(t, nil)
	orderHash := common.HexToHash("0xfeed")
	seedOrderListing(t, h.store, orderHash, seller)

	offer, consideration := markettest.ListingSale(nft, 7, seller, markettest.USDC(95), markettest.USDC(5), fees)
	require.NoError(t, h.apply(t, markettest.At(
		markettest.OrderFulfilled(markettest.Seaport, orderHash, seller, buyer, offer, consideration), 200, 3, "0x20")))

	listing, _, err := h.store.GetListing(context.Background(), model.ListingKey{OrderHash: model.NormalizeHex(orderHash.Hex())})
	require.NoError(t, err)
	require.NotNil(t, listing.SoldAt)
	require.Equal(t, model.NormalizeAddress(buyer), *listing.BuyerAddress)

	sales := h.activities(model.ActivitySale)
	require.Len(t, sales, 1)
	require.True(t, sales[0].Price.Decimal.Equal(decimal.NewFromInt(95)))
	require.Equal(t, "seaport", sales[0].Metadata["protocol"])
}

func TestOrderFulfilledWithoutListing(t *testing.T) {
	h := newHarness(t, nil)
	offer, consideration := markettest.ListingSale(nft, 7, seller, markettest.USDC(95), markettest.USDC(5), fees)
	err := h.apply(t, markettest.OrderFulfilled(markettest.Seaport, common.HexToHash("0x01"), seller, buyer, offer, consideration))
	require.ErrorIs(t, err, handler.ErrMissingReference)
}

func TestOrderCancelledSellerMismatch(t *testing.T) {
	h := newHarness(t, nil)
	orderHash := common.HexToHash("0xbeef")
	seedOrderListing(t, h.store, orderHash, seller)

	err := h.apply(t, markettest.OrderCancelled(markettest.Seaport, orderHash, buyer))
	require.ErrorIs(t, err, handler.ErrConflict)

	listing, _, err := h.store.GetListing(context.Background(), model.ListingKey{OrderHash: model.NormalizeHex(orderHash.Hex())})
	require.NoError(t, err)
	require.Nil(t, listing.CancelledAt)
}

func TestOrderCancelledReplayRecordsOnce(t *testing.T) {
	h := newHarness(t, nil)
	orderHash := common.HexToHash("0xbeef")
	seedOrderListing(t, h.store, orderHash, seller)

	log := markettest.At(markettest.OrderCancelled(markettest.Seaport, orderHash, seller), 300, 1, "0x30")
	require.NoError(t, h.apply(t, log))
	require.NoError(t, h.apply(t, log))

	require.Len(t, h.activities(model.ActivityListingCancelled), 1)
}

func TestOrdersMatchedIsInformational(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.apply(t, markettest.OrdersMatched(markettest.Seaport, common.HexToHash("0x01"), common.HexToHash("0x02"))))
	require.Empty(t, h.store.Activities())
	require.Empty(t, h.store.Listings())
}
