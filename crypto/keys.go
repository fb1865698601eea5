package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"lukechampine.com/blake3"
)

// AddressPrefix defines the human-readable prefix used when rendering
// addresses for clients.
type AddressPrefix string

const NovaPrefix AddressPrefix = "nova"

// AddressLength is the raw byte length of every ledger address.
const AddressLength = 20

// Address represents a 20-byte novamarket address with a bech32 prefix.
// Externally-owned addresses are derived from an ed25519 public key;
// program-derived addresses come out of FindProgramAddress.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Raw returns the fixed-size array form used as a ledger key.
func (a Address) Raw() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("invalid address length: %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	ed25519.PrivateKey
}

type PublicKey struct {
	ed25519.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.PrivateKey...)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{k.PrivateKey.Public().(ed25519.PublicKey)}
}

// Sign produces an ed25519 signature over the given message.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.PrivateKey, msg)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length: %d", len(b))
	}
	return &PrivateKey{ed25519.PrivateKey(append([]byte(nil), b...))}, nil
}

func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: %d", len(b))
	}
	return &PublicKey{ed25519.PublicKey(append([]byte(nil), b...))}, nil
}

func (k *PublicKey) Bytes() []byte {
	return append([]byte(nil), k.PublicKey...)
}

// Verify reports whether sig is a valid signature of msg by this key.
func (k *PublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(k.PublicKey, msg, sig)
}

// Address derives the ledger address for the public key: the 20-byte tail
// of the blake3-256 digest of the raw key.
func (k *PublicKey) Address() Address {
	sum := blake3.Sum256(k.PublicKey)
	return NewAddress(NovaPrefix, sum[12:])
}
