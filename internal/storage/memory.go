package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mintExchange/internal/model"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu         sync.Mutex
	listings   map[model.ListingKey]*model.Listing
	offers     map[string]*model.Offer
	activities []model.Activity
	activityBy map[model.ActivityKey]struct{}
	cursors    map[string]uint64
	users      map[string]model.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:   make(map[model.ListingKey]*model.Listing),
		offers:     make(map[string]*model.Offer),
		activityBy: make(map[model.ActivityKey]struct{}),
		cursors:    make(map[string]uint64),
		users:      make(map[string]model.User),
	}
}

func (s *MemoryStore) InsertListingIfAbsent(_ context.Context, listing model.Listing) (model.Listing, bool, error) {
	key := listing.Key()
	if key == (model.ListingKey{}) {
		return model.Listing{}, false, fmt.Errorf("listing has neither native id nor order hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.listings[key]; ok {
		return *existing, false, nil
	}
	stored := listing
	s.listings[key] = &stored
	return stored, true, nil
}

func (s *MemoryStore) GetListing(_ context.Context, key model.ListingKey) (model.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[key]
	if !ok {
		return model.Listing{}, false, nil
	}
	return *listing, true, nil
}

func (s *MemoryStore) MarkListingSold(_ context.Context, key model.ListingKey, sale model.Sale) (model.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[key]
	if !ok {
		return model.Listing{}, false, ErrNotFound
	}
	if listing.Closed() {
		return *listing, false, nil
	}

	at := sale.At
	buyer := sale.BuyerAddress
	tx := model.NormalizeHex(sale.TxHash)
	listing.SoldAt = &at
	listing.BuyerAddress = &buyer
	listing.BuyerIdentity = sale.BuyerIdentity
	listing.SaleTxHash = &tx
	return *listing, true, nil
}

func (s *MemoryStore) MarkListingCancelled(_ context.Context, key model.ListingKey, cancel model.Cancellation) (model.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[key]
	if !ok {
		return model.Listing{}, false, ErrNotFound
	}
	if listing.Closed() {
		return *listing, false, nil
	}

	at := cancel.At
	tx := model.NormalizeHex(cancel.TxHash)
	listing.CancelledAt = &at
	listing.CancelTxHash = &tx
	return *listing, true, nil
}

func (s *MemoryStore) InsertOfferIfAbsent(_ context.Context, offer model.Offer) (model.Offer, bool, error) {
	if offer.BlockchainOfferID == "" {
		return model.Offer{}, false, fmt.Errorf("offer id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.offers[offer.BlockchainOfferID]; ok {
		return *existing, false, nil
	}
	stored := offer
	s.offers[offer.BlockchainOfferID] = &stored
	return stored, true, nil
}

func (s *MemoryStore) GetOffer(_ context.Context, offerID string) (model.Offer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return model.Offer{}, false, nil
	}
	return *offer, true, nil
}

func (s *MemoryStore) MarkOfferAccepted(_ context.Context, offerID string, accept model.Acceptance) (model.Offer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return model.Offer{}, false, ErrNotFound
	}
	if offer.Closed() {
		return *offer, false, nil
	}

	at := accept.At
	seller := accept.SellerAddress
	tx := model.NormalizeHex(accept.TxHash)
	offer.AcceptedAt = &at
	offer.SellerAddress = &seller
	offer.SellerIdentity = accept.SellerIdentity
	offer.AcceptTxHash = &tx
	return *offer, true, nil
}

func (s *MemoryStore) MarkOfferCancelled(_ context.Context, offerID string, cancel model.Cancellation) (model.Offer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return model.Offer{}, false, ErrNotFound
	}
	if offer.Closed() {
		return *offer, false, nil
	}

	at := cancel.At
	tx := model.NormalizeHex(cancel.TxHash)
	offer.CancelledAt = &at
	offer.CancelTxHash = &tx
	return *offer, true, nil
}

func (s *MemoryStore) InsertActivityIfAbsent(_ context.Context, activity model.Activity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activity.Key()
	if _, ok := s.activityBy[key]; ok {
		return false, nil
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	activity.TxHash = key.TxHash
	s.activityBy[key] = struct{}{}
	s.activities = append(s.activities, activity)
	return true, nil
}

func (s *MemoryStore) LoadCursor(_ context.Context, name string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.cursors[name]
	return block, ok, nil
}

func (s *MemoryStore) AdvanceCursor(_ context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.cursors[name]; ok && current >= block {
		return nil
	}
	s.cursors[name] = block
	return nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, user model.User) error {
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.users[user.Address] = user
	s.mu.Unlock()
	return nil
}

// Listings returns a snapshot of every stored listing.
func (s *MemoryStore) Listings() []model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Listing, 0, len(s.listings))
	for _, listing := range s.listings {
		out = append(out, *listing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out
}

// Activities returns the activity rows in insertion order.
func (s *MemoryStore) Activities() []model.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Activity, len(s.activities))
	copy(out, s.activities)
	return out
}

// User returns the cached profile of an address.
func (s *MemoryStore) User(address string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[address]
	return user, ok
}
