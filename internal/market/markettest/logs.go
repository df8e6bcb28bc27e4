// Package markettest builds ABI-encoded marketplace logs for tests.
package markettest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"mintExchange/internal/market"
	"mintExchange/internal/model"
)

var (
	Marketplace  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	Seaport      = common.HexToAddress("0x0000000000000068F116a894984e2DB1123eB395")
	PaymentToken = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

// USDC converts whole units into 6-decimal base units.
func USDC(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}

// At sets the provenance fields of a log.
func At(log model.RawLog, block, index uint64, txHash string) model.RawLog {
	log.BlockNumber = block
	log.LogIndex = index
	log.TxHash = txHash
	return log
}

func ListingCreated(contract common.Address, listingID int64, seller, nft common.Address, tokenID int64, price *big.Int, uri string) model.RawLog {
	return native(contract, "ListingCreated",
		[]common.Hash{uintTopic(listingID), addressTopic(seller), addressTopic(nft)},
		big.NewInt(tokenID), big.NewInt(1), price, uri)
}

func ListingSold(contract common.Address, listingID int64, buyer common.Address, price *big.Int) model.RawLog {
	return native(contract, "ListingSold",
		[]common.Hash{uintTopic(listingID), addressTopic(buyer)},
		price)
}

func ListingCancelled(contract common.Address, listingID int64) model.RawLog {
	return native(contract, "ListingCancelled", []common.Hash{uintTopic(listingID)})
}

func OfferMade(contract common.Address, offerID int64, buyer, nft common.Address, tokenID int64, price *big.Int, expiresAt int64) model.RawLog {
	return native(contract, "OfferMade",
		[]common.Hash{uintTopic(offerID), addressTopic(buyer), addressTopic(nft)},
		big.NewInt(tokenID), big.NewInt(1), price, big.NewInt(expiresAt))
}

func OfferAccepted(contract common.Address, offerID int64, seller common.Address) model.RawLog {
	return native(contract, "OfferAccepted", []common.Hash{uintTopic(offerID), addressTopic(seller)})
}

func OfferCancelled(contract common.Address, offerID int64) model.RawLog {
	return native(contract, "OfferCancelled", []common.Hash{uintTopic(offerID)})
}

func OrderFulfilled(contract common.Address, orderHash common.Hash, offerer, recipient common.Address, offer []market.SpentItem, consideration []market.ReceivedItem) model.RawLog {
	return seaport(contract, "OrderFulfilled",
		[]common.Hash{addressTopic(offerer), addressTopic(common.Address{})},
		[32]byte(orderHash), recipient, offer, consideration)
}

func OrderCancelled(contract common.Address, orderHash common.Hash, offerer common.Address) model.RawLog {
	return seaport(contract, "OrderCancelled",
		[]common.Hash{addressTopic(offerer), addressTopic(common.Address{})},
		[32]byte(orderHash))
}

func OrdersMatched(contract common.Address, orderHashes ...common.Hash) model.RawLog {
	raw := make([][32]byte, 0, len(orderHashes))
	for _, h := range orderHashes {
		raw = append(raw, [32]byte(h))
	}
	return seaport(contract, "OrdersMatched", nil, raw)
}

// ListingSale builds offer/consideration arrays for an NFT sold for price,
// with fee paid to feeRecipient.
func ListingSale(nft common.Address, tokenID int64, seller common.Address, price, fee *big.Int, feeRecipient common.Address) ([]market.SpentItem, []market.ReceivedItem) {
	offer := []market.SpentItem{{
		ItemType:   market.ItemERC721,
		Token:      nft,
		Identifier: big.NewInt(tokenID),
		Amount:     big.NewInt(1),
	}}
	consideration := []market.ReceivedItem{
		{ItemType: market.ItemERC20, Token: PaymentToken, Identifier: new(big.Int), Amount: price, Recipient: seller},
		{ItemType: market.ItemERC20, Token: PaymentToken, Identifier: new(big.Int), Amount: fee, Recipient: feeRecipient},
	}
	return offer, consideration
}

func native(contract common.Address, name string, indexed []common.Hash, values ...interface{}) model.RawLog {
	parsed, err := market.MarketplaceABI()
	if err != nil {
		panic(err)
	}
	return build(parsed, contract, name, indexed, values...)
}

func seaport(contract common.Address, name string, indexed []common.Hash, values ...interface{}) model.RawLog {
	parsed, err := market.SeaportABI()
	if err != nil {
		panic(err)
	}
	return build(parsed, contract, name, indexed, values...)
}

func build(parsed abi.ABI, contract common.Address, name string, indexed []common.Hash, values ...interface{}) model.RawLog {
	event, ok := parsed.Events[name]
	if !ok {
		panic(fmt.Sprintf("unknown event %s", name))
	}
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", name, err))
	}

	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, event.ID.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.RawLog{
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    0,
		Address:     contract.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
	}
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func uintTopic(value int64) common.Hash {
	return common.BigToHash(big.NewInt(value))
}
