package market

import (
	"fmt"
	"math/big"
	"time"

	"novamarket/core/events"
	"novamarket/core/types"
)

// DefaultListingRent is the storage deposit debited from the owner when a
// listing record is created. The deposit sits on the record's own derived
// address while the listing is live and is returned to the owner when the
// record is closed by Buy or Cancel.
var DefaultListingRent = big.NewInt(5_000)

type engineState interface {
	ListingGet(addr [20]byte) (*Listing, bool, error)
	ListingPut(addr [20]byte, listing *Listing) error
	ListingClose(addr [20]byte) error
	AssetHolder(asset [32]byte) ([20]byte, bool, error)
	SetAssetHolder(asset [32]byte, holder [20]byte) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	NextSequence() (uint64, error)
}

// Engine implements the marketplace state machine: List moves an asset into
// escrow, Buy exchanges payment and custody atomically, Cancel returns the
// asset to its owner. The engine never partially applies an operation; it
// is intended to run inside a transactional ledger overlay whose commit is
// all-or-nothing.
type Engine struct {
	state   engineState
	emitter events.Emitter
	rent    *big.Int
	nowFn   func() int64
}

// NewEngine creates a market engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		rent:    new(big.Int).Set(DefaultListingRent),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRent overrides the listing storage deposit. Passing nil restores the
// default.
func (e *Engine) SetRent(rent *big.Int) {
	if rent == nil {
		e.rent = new(big.Int).Set(DefaultListingRent)
		return
	}
	if rent.Sign() < 0 {
		return
	}
	e.rent = new(big.Int).Set(rent)
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// List escrows an asset at the given price. The owner must currently hold
// the asset in an ordinary account and no listing record may exist at the
// derived address; record creation at an already-occupied address is the
// duplicate-listing guard. The storage deposit moves from the owner onto
// the record address in the same transition.
func (e *Engine) List(owner [20]byte, asset [32]byte, price *big.Int) (*Listing, *types.Receipt, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if price == nil || price.Sign() <= 0 {
		return nil, nil, ErrInvalidPrice
	}
	listingAddr, bump, err := DeriveListingAddress(asset)
	if err != nil {
		return nil, nil, err
	}
	if _, exists, err := e.state.ListingGet(listingAddr); err != nil {
		return nil, nil, err
	} else if exists {
		return nil, nil, ErrAlreadyListed
	}
	holder, held, err := e.state.AssetHolder(asset)
	if err != nil {
		return nil, nil, err
	}
	if !held || holder != owner {
		return nil, nil, ErrNotOwner
	}
	vaultAddr, _, err := DeriveVaultAddress(asset)
	if err != nil {
		return nil, nil, err
	}
	if err := e.transferValue(owner, listingAddr, e.rent); err != nil {
		return nil, nil, err
	}
	if err := e.state.SetAssetHolder(asset, vaultAddr); err != nil {
		return nil, nil, err
	}
	listing := &Listing{
		Owner:     owner,
		Asset:     asset,
		Price:     new(big.Int).Set(price),
		Bump:      bump,
		CreatedAt: uint64(e.now()),
	}
	if err := e.state.ListingPut(listingAddr, listing); err != nil {
		return nil, nil, err
	}
	receipt, err := e.receipt(types.OpList, asset, owner)
	if err != nil {
		return nil, nil, err
	}
	e.emit(events.MarketListed{
		Asset:    asset,
		Owner:    owner,
		Vault:    vaultAddr,
		Price:    new(big.Int).Set(price),
		ListedAt: int64(listing.CreatedAt),
	})
	return listing.Clone(), receipt, nil
}

// Buy settles a listing in favour of the buyer: the price moves from buyer
// to owner, custody moves from vault to buyer and the record is closed with
// its deposit returned to the owner. All three effects apply together or
// not at all.
func (e *Engine) Buy(buyer [20]byte, asset [32]byte) (*types.Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listingAddr, listing, err := e.authenticListing(asset)
	if err != nil {
		return nil, err
	}
	vaultAddr, _, err := DeriveVaultAddress(asset)
	if err != nil {
		return nil, err
	}
	holder, held, err := e.state.AssetHolder(asset)
	if err != nil {
		return nil, err
	}
	if !held || holder != vaultAddr {
		return nil, ErrAssetUnavailable
	}
	if err := e.transferValue(buyer, listing.Owner, listing.Price); err != nil {
		return nil, err
	}
	if err := e.state.SetAssetHolder(asset, buyer); err != nil {
		return nil, err
	}
	if err := e.closeListing(listingAddr, listing.Owner); err != nil {
		return nil, err
	}
	receipt, err := e.receipt(types.OpBuy, asset, buyer)
	if err != nil {
		return nil, err
	}
	e.emit(events.MarketSold{
		Asset: asset,
		Owner: listing.Owner,
		Buyer: buyer,
		Price: new(big.Int).Set(listing.Price),
	})
	return receipt, nil
}

// Cancel returns the escrowed asset to the listing owner and closes the
// record. Only the exact listing owner may cancel; there is no delegation.
func (e *Engine) Cancel(caller [20]byte, asset [32]byte) (*types.Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listingAddr, listing, err := e.authenticListing(asset)
	if err != nil {
		return nil, err
	}
	if caller != listing.Owner {
		return nil, ErrUnauthorized
	}
	vaultAddr, _, err := DeriveVaultAddress(asset)
	if err != nil {
		return nil, err
	}
	holder, held, err := e.state.AssetHolder(asset)
	if err != nil {
		return nil, err
	}
	if !held || holder != vaultAddr {
		return nil, ErrAssetUnavailable
	}
	if err := e.state.SetAssetHolder(asset, listing.Owner); err != nil {
		return nil, err
	}
	if err := e.closeListing(listingAddr, listing.Owner); err != nil {
		return nil, err
	}
	receipt, err := e.receipt(types.OpCancel, asset, caller)
	if err != nil {
		return nil, err
	}
	e.emit(events.MarketCancelled{Asset: asset, Owner: listing.Owner})
	return receipt, nil
}

// Get loads and authenticates the live listing for an asset.
func (e *Engine) Get(asset [32]byte) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	_, listing, err := e.authenticListing(asset)
	if err != nil {
		return nil, err
	}
	return listing.Clone(), nil
}

// authenticListing resolves the derived address for the asset, loads the
// record and checks it is the record for this asset rather than any record:
// the stored bump must re-derive to the same address and the stored asset
// must match.
func (e *Engine) authenticListing(asset [32]byte) ([20]byte, *Listing, error) {
	listingAddr, _, err := DeriveListingAddress(asset)
	if err != nil {
		return [20]byte{}, nil, err
	}
	listing, exists, err := e.state.ListingGet(listingAddr)
	if err != nil {
		return [20]byte{}, nil, err
	}
	if !exists {
		return [20]byte{}, nil, ErrNotFound
	}
	if listing.Asset != asset {
		return [20]byte{}, nil, fmt.Errorf("market: listing record asset mismatch")
	}
	derived, err := VerifyListingAddress(asset, listing.Bump)
	if err != nil {
		return [20]byte{}, nil, err
	}
	if derived != listingAddr {
		return [20]byte{}, nil, fmt.Errorf("market: listing record address mismatch")
	}
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return [20]byte{}, nil, err
	}
	return listingAddr, sanitized, nil
}

// closeListing deletes the record and returns its deposit balance to the
// recipient.
func (e *Engine) closeListing(listingAddr, recipient [20]byte) error {
	record, err := e.state.GetAccount(listingAddr)
	if err != nil {
		return err
	}
	if record.Balance != nil && record.Balance.Sign() > 0 {
		if err := e.transferValue(listingAddr, recipient, record.Balance); err != nil {
			return err
		}
	}
	return e.state.ListingClose(listingAddr)
}

func (e *Engine) receipt(op types.MarketOp, asset [32]byte, actor [20]byte) (*types.Receipt, error) {
	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, err
	}
	return types.NewReceipt(op, asset, actor, seq), nil
}

// transferValue moves value units between accounts, failing without side
// effects when the source balance is insufficient.
func (e *Engine) transferValue(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("market: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance == nil || fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	if toAcc.Balance == nil {
		toAcc.Balance = big.NewInt(0)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}
