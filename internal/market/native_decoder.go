package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"mintExchange/internal/model"
)

// NativeDecoder decodes events of the primary marketplace contract.
type NativeDecoder struct {
	abi         abi.ABI
	topicToType map[common.Hash]model.EventType
}

// NewNativeDecoder builds a native marketplace decoder.
func NewNativeDecoder() (*NativeDecoder, error) {
	parsed, err := MarketplaceABI()
	if err != nil {
		return nil, fmt.Errorf("parse marketplace abi: %w", err)
	}

	topicToType := make(map[common.Hash]model.EventType)
	for _, typ := range []model.EventType{
		model.EventListingCreated,
		model.EventListingSold,
		model.EventListingCancelled,
		model.EventOfferMade,
		model.EventOfferAccepted,
		model.EventOfferCancelled,
	} {
		event, ok := parsed.Events[typ.String()]
		if !ok {
			return nil, fmt.Errorf("marketplace abi missing event %s", typ)
		}
		topicToType[event.ID] = typ
	}

	return &NativeDecoder{abi: parsed, topicToType: topicToType}, nil
}

func (d *NativeDecoder) Protocol() model.Protocol {
	return model.ProtocolNative
}

// CanDecode checks if the topic0 belongs to the marketplace schema.
func (d *NativeDecoder) CanDecode(topic0 string) bool {
	key, ok := topicKey(topic0)
	if !ok {
		return false
	}
	_, ok = d.topicToType[key]
	return ok
}

// Decode converts a raw log into a canonical event.
func (d *NativeDecoder) Decode(log model.RawLog) (model.Event, bool, error) {
	key, ok := topicKey(log.Topic0())
	if !ok {
		return model.Event{}, false, nil
	}
	typ, ok := d.topicToType[key]
	if !ok {
		return model.Event{}, false, nil
	}

	event := d.abi.Events[typ.String()]
	indexed, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Event{}, false, err
	}

	var args model.Args
	switch typ {
	case model.EventListingCreated:
		args, err = d.decodeListingCreated(event, indexed, log.Data)
	case model.EventListingSold:
		args, err = d.decodeListingSold(event, indexed, log.Data)
	case model.EventListingCancelled:
		var out struct{ ListingId *big.Int }
		err = parseTopicsInto(&out, event, indexed)
		args = model.ListingCancelledArgs{ListingID: out.ListingId}
	case model.EventOfferMade:
		args, err = d.decodeOfferMade(event, indexed, log.Data)
	case model.EventOfferAccepted:
		var out struct {
			OfferId *big.Int
			Seller  common.Address
		}
		err = parseTopicsInto(&out, event, indexed)
		args = model.OfferAcceptedArgs{OfferID: out.OfferId, Seller: out.Seller}
	case model.EventOfferCancelled:
		var out struct{ OfferId *big.Int }
		err = parseTopicsInto(&out, event, indexed)
		args = model.OfferCancelledArgs{OfferID: out.OfferId}
	default:
		return model.Event{}, false, fmt.Errorf("unsupported event type: %s", typ)
	}
	if err != nil {
		return model.Event{}, false, err
	}

	return model.NewEvent(model.ProtocolNative, log, args), true, nil
}

func (d *NativeDecoder) decodeListingCreated(event abi.Event, indexed []common.Hash, data string) (model.Args, error) {
	var topics struct {
		ListingId   *big.Int
		Seller      common.Address
		NftContract common.Address
	}
	if err := parseTopicsInto(&topics, event, indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected listing created values: %d", len(values))
	}
	nums, err := asBigInts(values[:3])
	if err != nil {
		return nil, err
	}
	uri, ok := values[3].(string)
	if !ok {
		return nil, fmt.Errorf("unsupported metadata uri type %T", values[3])
	}

	return model.ListingCreatedArgs{
		ListingID:   topics.ListingId,
		Seller:      topics.Seller,
		NFTContract: topics.NftContract,
		TokenID:     nums[0],
		Amount:      nums[1],
		Price:       nums[2],
		MetadataURI: uri,
	}, nil
}

func (d *NativeDecoder) decodeListingSold(event abi.Event, indexed []common.Hash, data string) (model.Args, error) {
	var topics struct {
		ListingId *big.Int
		Buyer     common.Address
	}
	if err := parseTopicsInto(&topics, event, indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected listing sold values: %d", len(values))
	}
	price, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}

	return model.ListingSoldArgs{ListingID: topics.ListingId, Buyer: topics.Buyer, Price: price}, nil
}

func (d *NativeDecoder) decodeOfferMade(event abi.Event, indexed []common.Hash, data string) (model.Args, error) {
	var topics struct {
		OfferId     *big.Int
		Buyer       common.Address
		NftContract common.Address
	}
	if err := parseTopicsInto(&topics, event, indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected offer made values: %d", len(values))
	}
	nums, err := asBigInts(values)
	if err != nil {
		return nil, err
	}

	return model.OfferMadeArgs{
		OfferID:     topics.OfferId,
		Buyer:       topics.Buyer,
		NFTContract: topics.NftContract,
		TokenID:     nums[0],
		Amount:      nums[1],
		Price:       nums[2],
		ExpiresAt:   nums[3],
	}, nil
}

func parseTopicsInto(out interface{}, event abi.Event, indexed []common.Hash) error {
	if err := abi.ParseTopics(out, indexedArguments(event.Inputs), indexed); err != nil {
		return fmt.Errorf("parse %s topics: %w", event.Name, err)
	}
	return nil
}
