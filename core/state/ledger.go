package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"novamarket/core/types"
	"novamarket/native/market"
	"novamarket/storage"
)

// Ledger is the consensus-ordered account store the protocol runs against.
// Every state transition is evaluated through Apply, which serialises
// transactions and guarantees all-or-nothing commits: a transition either
// lands as a whole or leaves the store untouched.
type Ledger struct {
	mu sync.Mutex
	db storage.Database
}

func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

// Apply evaluates fn against a transactional overlay of the store. Writes
// and deletes are buffered in the overlay and flushed only when fn returns
// nil; any error discards the overlay entirely. Transactions are strictly
// ordered, so a later transaction whose preconditions no longer hold fails
// in full rather than interleaving with an earlier one.
func (l *Ledger) Apply(fn func(*Txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn := newTxn(l.db)
	if err := fn(txn); err != nil {
		return err
	}
	return txn.commit()
}

// View evaluates fn against current committed state. Writes made through
// the overlay are discarded.
func (l *Ledger) View(fn func(*Txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(newTxn(l.db))
}

// Listings enumerates every live listing record in key order. It reads
// committed state only, matching what a client polling the feed observes.
func (l *Ledger) Listings() ([]*market.Listing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		out     []*market.Listing
		iterErr error
	)
	err := l.db.Iterate(listingPrefix, func(_, value []byte) bool {
		listing := new(market.Listing)
		if err := rlp.DecodeBytes(value, listing); err != nil {
			iterErr = fmt.Errorf("state: decode listing: %w", err)
			return false
		}
		out = append(out, listing)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

// Txn is a transactional overlay over the backing store. It implements the
// state interface consumed by the market engine.
type Txn struct {
	db      storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newTxn(db storage.Database) *Txn {
	return &Txn{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// commit flushes the overlay through a single batch write so the backing
// store never observes a partially applied transaction.
func (t *Txn) commit() error {
	if len(t.writes) == 0 && len(t.deletes) == 0 {
		return nil
	}
	batch := new(storage.Batch)
	for key := range t.deletes {
		batch.Delete([]byte(key))
	}
	for key, value := range t.writes {
		batch.Put([]byte(key), value)
	}
	return t.db.Write(batch)
}

func (t *Txn) get(key []byte) ([]byte, bool, error) {
	if _, ok := t.deletes[string(key)]; ok {
		return nil, false, nil
	}
	if value, ok := t.writes[string(key)]; ok {
		return value, true, nil
	}
	value, err := t.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *Txn) put(key, value []byte) {
	delete(t.deletes, string(key))
	t.writes[string(key)] = value
}

func (t *Txn) del(key []byte) {
	delete(t.writes, string(key))
	t.deletes[string(key)] = struct{}{}
}

// GetAccount loads the account stored at addr, returning a zeroed account
// when none exists yet.
func (t *Txn) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, ok, err := t.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return &types.Account{Nonce: stored.Nonce, Balance: new(big.Int).Set(stored.Balance)}, nil
}

func (t *Txn) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	raw, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: balance})
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	t.put(accountKey(addr), raw)
	return nil
}

// ListingGet loads the listing record stored at the derived address.
func (t *Txn) ListingGet(addr [20]byte) (*market.Listing, bool, error) {
	raw, ok, err := t.get(listingKey(addr))
	if err != nil || !ok {
		return nil, false, err
	}
	listing := new(market.Listing)
	if err := rlp.DecodeBytes(raw, listing); err != nil {
		return nil, false, fmt.Errorf("state: decode listing: %w", err)
	}
	return listing, true, nil
}

func (t *Txn) ListingPut(addr [20]byte, listing *market.Listing) error {
	if listing == nil {
		return fmt.Errorf("state: nil listing")
	}
	raw, err := rlp.EncodeToBytes(listing)
	if err != nil {
		return fmt.Errorf("state: encode listing: %w", err)
	}
	t.put(listingKey(addr), raw)
	return nil
}

// ListingClose removes the listing record at addr.
func (t *Txn) ListingClose(addr [20]byte) error {
	t.del(listingKey(addr))
	return nil
}

// AssetHolder resolves the address currently holding the asset unit.
func (t *Txn) AssetHolder(asset [32]byte) ([20]byte, bool, error) {
	raw, ok, err := t.get(assetKey(asset))
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	if len(raw) != 20 {
		return [20]byte{}, false, fmt.Errorf("state: corrupt asset holder record")
	}
	var holder [20]byte
	copy(holder[:], raw)
	return holder, true, nil
}

func (t *Txn) SetAssetHolder(asset [32]byte, holder [20]byte) error {
	t.put(assetKey(asset), holder[:])
	return nil
}

// NextSequence increments and returns the settlement sequence number used
// to derive receipt references.
func (t *Txn) NextSequence() (uint64, error) {
	raw, ok, err := t.get(sequenceKey)
	if err != nil {
		return 0, err
	}
	var seq uint64
	if ok {
		if len(raw) != 8 {
			return 0, fmt.Errorf("state: corrupt sequence record")
		}
		seq = binary.BigEndian.Uint64(raw)
	}
	seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	t.put(sequenceKey, buf[:])
	return seq, nil
}

// storedAccount is the canonical RLP shape for account records.
type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}
