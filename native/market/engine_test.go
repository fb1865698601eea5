package market

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"novamarket/core/events"
	"novamarket/core/types"
)

type mockState struct {
	listings map[[20]byte]*Listing
	accounts map[[20]byte]*types.Account
	assets   map[[32]byte][20]byte
	seq      uint64
}

func newMockState() *mockState {
	return &mockState{
		listings: make(map[[20]byte]*Listing),
		accounts: make(map[[20]byte]*types.Account),
		assets:   make(map[[32]byte][20]byte),
	}
}

func (m *mockState) ListingGet(addr [20]byte) (*Listing, bool, error) {
	listing, ok := m.listings[addr]
	if !ok {
		return nil, false, nil
	}
	return listing.Clone(), true, nil
}

func (m *mockState) ListingPut(addr [20]byte, listing *Listing) error {
	m.listings[addr] = listing.Clone()
	return nil
}

func (m *mockState) ListingClose(addr [20]byte) error {
	delete(m.listings, addr)
	return nil
}

func (m *mockState) AssetHolder(asset [32]byte) ([20]byte, bool, error) {
	holder, ok := m.assets[asset]
	return holder, ok, nil
}

func (m *mockState) SetAssetHolder(asset [32]byte, holder [20]byte) error {
	m.assets[asset] = holder
	return nil
}

func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	if account, ok := m.accounts[addr]; ok {
		return account.Clone(), nil
	}
	return &types.Account{Balance: big.NewInt(0)}, nil
}

func (m *mockState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func (m *mockState) NextSequence() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	if account, ok := m.accounts[addr]; ok && account.Balance != nil {
		return new(big.Int).Set(account.Balance)
	}
	return big.NewInt(0)
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestAsset(fill byte) [32]byte {
	var asset [32]byte
	copy(asset[:], bytes.Repeat([]byte{fill}, 32))
	return asset
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *capturingEmitter) {
	t.Helper()
	state := newMockState()
	emitter := &capturingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, state, emitter
}

// fund gives an account an initial balance.
func fund(state *mockState, addr [20]byte, amount int64) {
	state.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

// requireEscrowed asserts the central invariant: a listing record exists
// iff the vault holds the asset.
func requireEscrowed(t *testing.T, state *mockState, asset [32]byte, escrowed bool) {
	t.Helper()
	listingAddr, _, err := DeriveListingAddress(asset)
	require.NoError(t, err)
	vaultAddr, _, err := DeriveVaultAddress(asset)
	require.NoError(t, err)
	_, hasListing := state.listings[listingAddr]
	holder, hasHolder := state.assets[asset]
	inVault := hasHolder && holder == vaultAddr
	require.Equal(t, escrowed, hasListing, "listing record presence")
	require.Equal(t, escrowed, inVault, "vault custody")
}

func TestListEscrowsAsset(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	owner := newTestAddress(0x01)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	listing, receipt, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, types.OpList, receipt.Op)
	require.Equal(t, owner, listing.Owner)
	require.Equal(t, asset, listing.Asset)
	require.Zero(t, listing.Price.Cmp(big.NewInt(100)))

	requireEscrowed(t, state, asset, true)

	// Deposit moved from the owner onto the record address.
	listingAddr, _, err := DeriveListingAddress(asset)
	require.NoError(t, err)
	require.Zero(t, state.balance(owner).Cmp(big.NewInt(5_000)))
	require.Zero(t, state.balance(listingAddr).Cmp(DefaultListingRent))

	require.Len(t, emitter.events, 1)
	require.Equal(t, events.TypeMarketListed, emitter.events[0].EventType())
}

func TestListRejectsInvalidPrice(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, _, err = engine.List(owner, asset, nil)
	require.ErrorIs(t, err, ErrInvalidPrice)
	requireEscrowed(t, state, asset, false)
}

func TestListRejectsNonHolder(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	stranger := newTestAddress(0x02)
	asset := newTestAsset(0xA1)
	fund(state, stranger, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(stranger, asset, big.NewInt(100))
	require.ErrorIs(t, err, ErrNotOwner)
	requireEscrowed(t, state, asset, false)
}

func TestListSecondAttemptFailsUnchanged(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)

	balanceAfterFirst := state.balance(owner)
	_, _, err = engine.List(owner, asset, big.NewInt(250))
	require.ErrorIs(t, err, ErrAlreadyListed)

	// State is identical to the state after the first List alone.
	requireEscrowed(t, state, asset, true)
	require.Zero(t, state.balance(owner).Cmp(balanceAfterFirst))
	listingAddr, _, err := DeriveListingAddress(asset)
	require.NoError(t, err)
	require.Zero(t, state.listings[listingAddr].Price.Cmp(big.NewInt(100)))
}

func TestBuySettlesAtomically(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	owner := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	fund(state, buyer, 1_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)

	receipt, err := engine.Buy(buyer, asset)
	require.NoError(t, err)
	require.Equal(t, types.OpBuy, receipt.Op)

	// Payment moved, custody moved, record closed, deposit refunded.
	require.Zero(t, state.balance(owner).Cmp(big.NewInt(10_100)))
	require.Zero(t, state.balance(buyer).Cmp(big.NewInt(900)))
	holder, held, err := state.AssetHolder(asset)
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, buyer, holder)
	requireEscrowed(t, state, asset, false)

	require.Len(t, emitter.events, 2)
	require.Equal(t, events.TypeMarketSold, emitter.events[1].EventType())
}

func TestBuyRequiresSufficientBalance(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	fund(state, buyer, 99)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)

	_, err = engine.Buy(buyer, asset)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// The listing stays live and the buyer keeps their funds.
	requireEscrowed(t, state, asset, true)
	require.Zero(t, state.balance(buyer).Cmp(big.NewInt(99)))
}

func TestBuyOfSettledListingFails(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	first := newTestAddress(0x02)
	second := newTestAddress(0x03)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	fund(state, first, 1_000)
	fund(state, second, 1_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)

	_, err = engine.Buy(first, asset)
	require.NoError(t, err)

	// The loser of the race observes no record and pays nothing.
	_, err = engine.Buy(second, asset)
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, state.balance(second).Cmp(big.NewInt(1_000)))
	require.Zero(t, state.balance(owner).Cmp(big.NewInt(10_100)))
	holder, _, err := state.AssetHolder(asset)
	require.NoError(t, err)
	require.Equal(t, first, holder)
}

func TestCancelRequiresExactOwner(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	stranger := newTestAddress(0x02)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)

	_, err = engine.Cancel(stranger, asset)
	require.ErrorIs(t, err, ErrUnauthorized)
	requireEscrowed(t, state, asset, true)
}

func TestCancelReturnsAssetAndDeposit(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	owner := newTestAddress(0x01)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)

	receipt, err := engine.Cancel(owner, asset)
	require.NoError(t, err)
	require.Equal(t, types.OpCancel, receipt.Op)

	holder, held, err := state.AssetHolder(asset)
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, owner, holder)
	require.Zero(t, state.balance(owner).Cmp(big.NewInt(10_000)))
	requireEscrowed(t, state, asset, false)

	require.Len(t, emitter.events, 2)
	require.Equal(t, events.TypeMarketCancelled, emitter.events[1].EventType())
}

func TestRelistAfterCancel(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)
	_, err = engine.Cancel(owner, asset)
	require.NoError(t, err)

	listing, _, err := engine.List(owner, asset, big.NewInt(250))
	require.NoError(t, err)
	require.Zero(t, listing.Price.Cmp(big.NewInt(250)))
	requireEscrowed(t, state, asset, true)
}

func TestCancelAfterSaleFailsNotFound(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10_000)
	fund(state, buyer, 1_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	// Owner lists at 100, buyer takes it.
	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)
	_, err = engine.Buy(buyer, asset)
	require.NoError(t, err)

	require.Zero(t, state.balance(owner).Cmp(big.NewInt(10_100)))
	holder, _, err := state.AssetHolder(asset)
	require.NoError(t, err)
	require.Equal(t, buyer, holder)

	// The former owner can no longer cancel.
	_, err = engine.Cancel(owner, asset)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBuyAndCancelWithoutListing(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	buyer := newTestAddress(0x02)
	asset := newTestAsset(0xA1)

	_, err := engine.Buy(buyer, asset)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = engine.Cancel(buyer, asset)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListRequiresDepositBalance(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	asset := newTestAsset(0xA1)
	fund(state, owner, 10)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	requireEscrowed(t, state, asset, false)
}

func TestGetAuthenticatesRecord(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	asset := newTestAsset(0xA1)
	other := newTestAsset(0xB2)
	fund(state, owner, 10_000)
	require.NoError(t, state.SetAssetHolder(asset, owner))

	_, _, err := engine.List(owner, asset, big.NewInt(100))
	require.NoError(t, err)

	listing, err := engine.Get(asset)
	require.NoError(t, err)
	require.Equal(t, asset, listing.Asset)

	_, err = engine.Get(other)
	require.ErrorIs(t, err, ErrNotFound)

	// A record stored for a different asset must not authenticate.
	listingAddr, _, err := DeriveListingAddress(asset)
	require.NoError(t, err)
	tampered := state.listings[listingAddr].Clone()
	tampered.Asset = other
	state.listings[listingAddr] = tampered
	_, err = engine.Get(asset)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestErrorClassification(t *testing.T) {
	require.True(t, IsValidation(ErrInvalidPrice))
	require.True(t, IsValidation(ErrNotOwner))
	require.True(t, IsAuthorization(ErrUnauthorized))
	require.True(t, IsStateConflict(ErrAlreadyListed))
	require.True(t, IsStateConflict(ErrNotFound))
	require.True(t, IsSettlement(ErrInsufficientFunds))
	require.True(t, IsSettlement(ErrAssetUnavailable))
	require.False(t, IsValidation(ErrNotFound))
	require.False(t, IsStateConflict(ErrInvalidPrice))
}
