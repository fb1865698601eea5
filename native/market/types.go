package market

import (
	"fmt"
	"math/big"
)

// Listing captures an active sale: the owner entitled to cancel and receive
// proceeds, the asset under escrow, the asking price and the derivation
// bump of the record's own address. One live instance exists per asset at
// most; the record is created by List and destroyed by exactly one of Buy
// or Cancel.
type Listing struct {
	Owner     [20]byte
	Asset     [32]byte
	Price     *big.Int
	Bump      uint8
	CreatedAt uint64
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates a stored listing record, returning a cloned
// instance with a non-nil price. The function does not mutate the original
// value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	clone := l.Clone()
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: listing price must be positive")
	}
	return clone, nil
}
