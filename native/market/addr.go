package market

import (
	"novamarket/crypto"
)

// Namespace tags for the two program-derived accounts attached to every
// asset. Distinct tags keep the listing record and the vault from ever
// colliding for the same asset identifier.
const (
	ListingNamespace = "listing"
	VaultNamespace   = "vault"
)

// DeriveListingAddress computes the canonical listing record address for an
// asset together with the bump stored in the record.
func DeriveListingAddress(asset [32]byte) ([20]byte, uint8, error) {
	digest, bump, err := crypto.FindProgramAddress(ListingNamespace, asset[:])
	if err != nil {
		return [20]byte{}, 0, err
	}
	return crypto.ProgramAddress(digest).Raw(), bump, nil
}

// DeriveVaultAddress computes the canonical custody address for an asset.
func DeriveVaultAddress(asset [32]byte) ([20]byte, uint8, error) {
	digest, bump, err := crypto.FindProgramAddress(VaultNamespace, asset[:])
	if err != nil {
		return [20]byte{}, 0, err
	}
	return crypto.ProgramAddress(digest).Raw(), bump, nil
}

// VerifyListingAddress re-derives the listing address from the bump stored
// in the record, without repeating the bump search.
func VerifyListingAddress(asset [32]byte, bump uint8) ([20]byte, error) {
	digest, err := crypto.VerifyProgramAddress(ListingNamespace, asset[:], bump)
	if err != nil {
		return [20]byte{}, err
	}
	return crypto.ProgramAddress(digest).Raw(), nil
}
