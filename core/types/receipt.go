package types

import (
	"encoding/binary"
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Receipt is the settlement reference returned for every applied state
// transition. The reference is the keccak256 hash of the operation, asset,
// acting address and the ledger's settlement sequence number, so it is
// unique per applied transition and reproducible from the ledger history.
type Receipt struct {
	Ref      [32]byte `json:"ref"`
	Op       MarketOp `json:"op"`
	Asset    [32]byte `json:"asset"`
	Sequence uint64   `json:"sequence"`
}

// NewReceipt computes the settlement reference for an applied operation.
func NewReceipt(op MarketOp, asset [32]byte, actor [20]byte, sequence uint64) *Receipt {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	ref := ethcrypto.Keccak256Hash([]byte("novamarket/receipt/v1"), []byte(op), asset[:], actor[:], seq[:])
	return &Receipt{Ref: ref, Op: op, Asset: asset, Sequence: sequence}
}

// RefHex renders the settlement reference for clients.
func (r *Receipt) RefHex() string {
	if r == nil {
		return ""
	}
	return hex.EncodeToString(r.Ref[:])
}
