package crypto

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"lukechampine.com/blake3"
)

// pdaMarker domain-separates program-derived digests from every other use
// of blake3 in the system.
const pdaMarker = "novamarket/pda/v1"

// ErrBumpExhausted is returned when no canonicalization byte produces an
// off-curve digest. The probability is negligible (~2^-256); hitting it
// indicates a broken namespace or seed, so callers treat it as fatal.
var ErrBumpExhausted = errors.New("crypto: program address bump exhausted")

// FindProgramAddress deterministically derives a program-controlled account
// digest for the given namespace and seed. The bump is searched downward
// from 255 until the candidate digest fails to decode as an edwards25519
// point. A digest that is not a curve point can never be an ed25519 public
// key, so no external signer can ever claim the derived account.
func FindProgramAddress(namespace string, seed []byte) ([32]byte, uint8, error) {
	for i := 255; i >= 0; i-- {
		bump := uint8(i)
		digest := programDigest(namespace, seed, bump)
		if !isCurvePoint(digest[:]) {
			return digest, bump, nil
		}
	}
	return [32]byte{}, 0, ErrBumpExhausted
}

// VerifyProgramAddress recomputes the digest using a stored bump and checks
// the off-curve property. It is the cheap validation path: no search, just
// one hash and one decode attempt.
func VerifyProgramAddress(namespace string, seed []byte, bump uint8) ([32]byte, error) {
	digest := programDigest(namespace, seed, bump)
	if isCurvePoint(digest[:]) {
		return [32]byte{}, fmt.Errorf("crypto: bump %d yields an on-curve digest for namespace %q", bump, namespace)
	}
	return digest, nil
}

// ProgramAddress converts a derived digest into a ledger address, the same
// 20-byte-tail convention used for key-derived addresses.
func ProgramAddress(digest [32]byte) Address {
	return NewAddress(NovaPrefix, digest[12:])
}

func programDigest(namespace string, seed []byte, bump uint8) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(namespace))
	h.Write(seed)
	h.Write([]byte{bump})
	h.Write([]byte(pdaMarker))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func isCurvePoint(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
