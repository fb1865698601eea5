package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"novamarket/core/types"
	"novamarket/crypto"
)

const (
	TypeMarketListed    = "market.listed"
	TypeMarketSold      = "market.sold"
	TypeMarketCancelled = "market.cancelled"
)

// MarketListed is emitted when an asset enters escrow.
type MarketListed struct {
	Asset    [32]byte
	Owner    [20]byte
	Vault    [20]byte
	Price    *big.Int
	ListedAt int64
}

func (MarketListed) EventType() string { return TypeMarketListed }

func (e MarketListed) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketListed,
		Attributes: map[string]string{
			"asset":    hex.EncodeToString(e.Asset[:]),
			"owner":    crypto.NewAddress(crypto.NovaPrefix, e.Owner[:]).String(),
			"vault":    crypto.NewAddress(crypto.NovaPrefix, e.Vault[:]).String(),
			"price":    formatAmount(e.Price),
			"listedAt": strconv.FormatInt(e.ListedAt, 10),
		},
	}
}

// MarketSold is emitted when a listing settles in favour of a buyer.
type MarketSold struct {
	Asset [32]byte
	Owner [20]byte
	Buyer [20]byte
	Price *big.Int
}

func (MarketSold) EventType() string { return TypeMarketSold }

func (e MarketSold) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketSold,
		Attributes: map[string]string{
			"asset": hex.EncodeToString(e.Asset[:]),
			"owner": crypto.NewAddress(crypto.NovaPrefix, e.Owner[:]).String(),
			"buyer": crypto.NewAddress(crypto.NovaPrefix, e.Buyer[:]).String(),
			"price": formatAmount(e.Price),
		},
	}
}

// MarketCancelled is emitted when a listing owner reclaims the escrowed
// asset.
type MarketCancelled struct {
	Asset [32]byte
	Owner [20]byte
}

func (MarketCancelled) EventType() string { return TypeMarketCancelled }

func (e MarketCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketCancelled,
		Attributes: map[string]string{
			"asset": hex.EncodeToString(e.Asset[:]),
			"owner": crypto.NewAddress(crypto.NovaPrefix, e.Owner[:]).String(),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
