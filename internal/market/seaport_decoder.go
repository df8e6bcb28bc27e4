package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"mintExchange/internal/model"
)

// Seaport item kinds.
const (
	ItemNative uint8 = iota
	ItemERC20
	ItemERC721
	ItemERC1155
	ItemERC721WithCriteria
	ItemERC1155WithCriteria
)

// IsNFTItem reports whether an item kind is ERC-721-like or ERC-1155-like.
func IsNFTItem(kind uint8) bool {
	switch kind {
	case ItemERC721, ItemERC1155, ItemERC721WithCriteria, ItemERC1155WithCriteria:
		return true
	default:
		return false
	}
}

// SpentItem is one entry of an order's offer array.
type SpentItem struct {
	ItemType   uint8
	Token      common.Address
	Identifier *big.Int
	Amount     *big.Int
}

// ReceivedItem is one entry of an order's consideration array.
type ReceivedItem struct {
	ItemType   uint8
	Token      common.Address
	Identifier *big.Int
	Amount     *big.Int
	Recipient  common.Address
}

// SeaportConfig configures the order-protocol decoder.
type SeaportConfig struct {
	PaymentToken common.Address
}

// SeaportDecoder decodes order-protocol events.
type SeaportDecoder struct {
	abi          abi.ABI
	paymentToken common.Address
	topicToType  map[common.Hash]model.EventType
}

// NewSeaportDecoder builds an order-protocol decoder.
func NewSeaportDecoder(cfg SeaportConfig) (*SeaportDecoder, error) {
	parsed, err := SeaportABI()
	if err != nil {
		return nil, fmt.Errorf("parse seaport abi: %w", err)
	}

	topicToType := make(map[common.Hash]model.EventType)
	for _, typ := range []model.EventType{
		model.EventOrderFulfilled,
		model.EventOrderCancelled,
		model.EventOrdersMatched,
	} {
		event, ok := parsed.Events[typ.String()]
		if !ok {
			return nil, fmt.Errorf("seaport abi missing event %s", typ)
		}
		topicToType[event.ID] = typ
	}

	return &SeaportDecoder{
		abi:          parsed,
		paymentToken: cfg.PaymentToken,
		topicToType:  topicToType,
	}, nil
}

func (d *SeaportDecoder) Protocol() model.Protocol {
	return model.ProtocolSeaport
}

// CanDecode checks if the topic0 belongs to the order-protocol schema.
func (d *SeaportDecoder) CanDecode(topic0 string) bool {
	key, ok := topicKey(topic0)
	if !ok {
		return false
	}
	_, ok = d.topicToType[key]
	return ok
}

// Decode converts a raw log into a canonical event. Fulfillments without an
// NFT leg are not applicable.
func (d *SeaportDecoder) Decode(log model.RawLog) (model.Event, bool, error) {
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
	case model.EventOrderFulfilled:
		fulfilled, applicable, err := d.decodeOrderFulfilled(event, indexed, log.Data)
		if err != nil || !applicable {
			return model.Event{}, false, err
		}
		args = fulfilled
	case model.EventOrderCancelled:
		args, err = d.decodeOrderCancelled(event, indexed, log.Data)
	case model.EventOrdersMatched:
		args, err = d.decodeOrdersMatched(event, log.Data)
	default:
		return model.Event{}, false, fmt.Errorf("unsupported event type: %s", typ)
	}
	if err != nil {
		return model.Event{}, false, err
	}

	return model.NewEvent(model.ProtocolSeaport, log, args), true, nil
}

type orderFulfilledData struct {
	OrderHash     [32]byte
	Recipient     common.Address
	Offer         []SpentItem
	Consideration []ReceivedItem
}

func (d *SeaportDecoder) decodeOrderFulfilled(event abi.Event, indexed []common.Hash, dataHex string) (model.OrderFulfilledArgs, bool, error) {
	var topics struct {
		Offerer common.Address
		Zone    common.Address
	}
	if err := parseTopicsInto(&topics, event, indexed); err != nil {
		return model.OrderFulfilledArgs{}, false, err
	}

	data, err := decodeData(dataHex)
	if err != nil {
		return model.OrderFulfilledArgs{}, false, err
	}
	var out orderFulfilledData
	if err := d.abi.UnpackIntoInterface(&out, event.Name, data); err != nil {
		return model.OrderFulfilledArgs{}, false, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	leg, ok := NFTLeg(out.Offer)
	if !ok {
		return model.OrderFulfilledArgs{}, false, nil
	}

	return model.OrderFulfilledArgs{
		OrderHash:    common.Hash(out.OrderHash),
		Offerer:      topics.Offerer,
		Zone:         topics.Zone,
		Recipient:    out.Recipient,
		Buyer:        BuyerFromFulfillment(topics.Offerer, out.Recipient, out.Consideration),
		NFTContract:  leg.Token,
		TokenID:      leg.Identifier,
		Amount:       leg.Amount,
		ItemKind:     leg.ItemType,
		PaymentToken: d.paymentToken,
		Price:        PaidToOfferer(topics.Offerer, d.paymentToken, out.Consideration),
	}, true, nil
}

func (d *SeaportDecoder) decodeOrderCancelled(event abi.Event, indexed []common.Hash, dataHex string) (model.Args, error) {
	var topics struct {
		Offerer common.Address
		Zone    common.Address
	}
	if err := parseTopicsInto(&topics, event, indexed); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, dataHex)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected order cancelled values: %d", len(values))
	}
	orderHash, err := asBytes32(values[0])
	if err != nil {
		return nil, err
	}

	return model.OrderCancelledArgs{OrderHash: orderHash, Offerer: topics.Offerer, Zone: topics.Zone}, nil
}

func (d *SeaportDecoder) decodeOrdersMatched(event abi.Event, dataHex string) (model.Args, error) {
	values, err := unpackNonIndexed(event, dataHex)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected orders matched values: %d", len(values))
	}
	raw, ok := values[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported order hashes type %T", values[0])
	}

	hashes := make([]common.Hash, 0, len(raw))
	for _, h := range raw {
		hashes = append(hashes, common.Hash(h))
	}
	return model.OrdersMatchedArgs{OrderHashes: hashes}, nil
}

// NFTLeg returns the first offer item whose kind is ERC-721-like or ERC-1155-like.
func NFTLeg(offer []SpentItem) (SpentItem, bool) {
	for _, item := range offer {
		if IsNFTItem(item.ItemType) {
			return item, true
		}
	}
	return SpentItem{}, false
}

// PaidToOfferer sums the consideration paid to the offerer in the payment token.
func PaidToOfferer(offerer, paymentToken common.Address, consideration []ReceivedItem) *big.Int {
	total := new(big.Int)
	for _, item := range consideration {
		if item.Recipient != offerer || item.Token != paymentToken || item.Amount == nil {
			continue
		}
		total.Add(total, item.Amount)
	}
	return total
}

// BuyerFromFulfillment guesses the buyer of a fulfilled order.
//
// Heuristic: the fulfillment recipient is the buyer unless it is the offerer
// itself, in which case the first consideration recipient other than the
// offerer is used. Multi-party fills can be misattributed.
func BuyerFromFulfillment(offerer, recipient common.Address, consideration []ReceivedItem) common.Address {
	if recipient != (common.Address{}) && recipient != offerer {
		return recipient
	}
	for _, item := range consideration {
		if item.Recipient != offerer && item.Recipient != (common.Address{}) {
			return item.Recipient
		}
	}
	return recipient
}
