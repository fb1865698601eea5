package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"novamarket/crypto"
)

// MarketOp names a protocol state transition.
type MarketOp string

const (
	OpList   MarketOp = "list"
	OpBuy    MarketOp = "buy"
	OpCancel MarketOp = "cancel"
)

// Valid reports whether the operation is one of the three supported
// transitions.
func (op MarketOp) Valid() bool {
	switch op {
	case OpList, OpBuy, OpCancel:
		return true
	default:
		return false
	}
}

var (
	ErrTxUnsigned     = errors.New("tx: missing signature")
	ErrTxBadSignature = errors.New("tx: signature verification failed")
)

// MarketTx is the signed request envelope submitted by clients. The signer
// recovered from PublicKey is the identity used for all authorization
// checks; Price is only meaningful for OpList.
type MarketTx struct {
	Op        MarketOp `json:"op"`
	Asset     [32]byte `json:"asset"`
	Price     *big.Int `json:"price,omitempty"`
	Nonce     uint64   `json:"nonce"`
	PublicKey []byte   `json:"publicKey"`
	Signature []byte   `json:"signature,omitempty"`
}

// SigningHash returns the canonical digest covered by the signature.
func (tx *MarketTx) SigningHash() [32]byte {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	price := []byte{}
	if tx.Price != nil {
		price = tx.Price.Bytes()
	}
	return ethcrypto.Keccak256Hash(
		[]byte("novamarket/tx/v1"),
		[]byte(tx.Op),
		tx.Asset[:],
		price,
		nonce[:],
		tx.PublicKey,
	)
}

// Sign populates PublicKey and Signature using the given key.
func (tx *MarketTx) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("tx: nil private key")
	}
	tx.PublicKey = key.PubKey().Bytes()
	hash := tx.SigningHash()
	tx.Signature = key.Sign(hash[:])
	return nil
}

// Verify checks the signature and returns the signer's ledger address.
func (tx *MarketTx) Verify() (crypto.Address, error) {
	if len(tx.Signature) == 0 {
		return crypto.Address{}, ErrTxUnsigned
	}
	pub, err := crypto.PublicKeyFromBytes(tx.PublicKey)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("tx: %w", err)
	}
	hash := tx.SigningHash()
	if !pub.Verify(hash[:], tx.Signature) {
		return crypto.Address{}, ErrTxBadSignature
	}
	return pub.Address(), nil
}
