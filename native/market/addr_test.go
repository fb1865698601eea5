package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivedAddressesAreDeterministic(t *testing.T) {
	asset := newTestAsset(0x11)

	addr1, bump1, err := DeriveListingAddress(asset)
	require.NoError(t, err)
	addr2, bump2, err := DeriveListingAddress(asset)
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
	require.Equal(t, bump1, bump2)

	verified, err := VerifyListingAddress(asset, bump1)
	require.NoError(t, err)
	require.Equal(t, addr1, verified)
}

func TestListingAndVaultNeverCollide(t *testing.T) {
	for _, fill := range []byte{0x00, 0x01, 0x7f, 0xff} {
		asset := newTestAsset(fill)
		listingAddr, _, err := DeriveListingAddress(asset)
		require.NoError(t, err)
		vaultAddr, _, err := DeriveVaultAddress(asset)
		require.NoError(t, err)
		require.NotEqual(t, listingAddr, vaultAddr)
	}
}

func TestDistinctAssetsDeriveDistinctAddresses(t *testing.T) {
	seen := make(map[[20]byte]struct{})
	for i := 0; i < 64; i++ {
		asset := newTestAsset(byte(i))
		listingAddr, _, err := DeriveListingAddress(asset)
		require.NoError(t, err)
		vaultAddr, _, err := DeriveVaultAddress(asset)
		require.NoError(t, err)
		_, dup := seen[listingAddr]
		require.False(t, dup)
		seen[listingAddr] = struct{}{}
		_, dup = seen[vaultAddr]
		require.False(t, dup)
		seen[vaultAddr] = struct{}{}
	}
}
