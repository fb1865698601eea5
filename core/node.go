package core

import (
	"errors"
	"log/slog"
	"math/big"

	"novamarket/core/events"
	"novamarket/core/state"
	"novamarket/core/types"
	"novamarket/crypto"
	"novamarket/native/market"
	"novamarket/observability/metrics"
	"novamarket/storage"
)

// ErrInvalidNonce is returned when a transaction's nonce does not match the
// signer's account nonce. Replays of an already-applied transaction fail
// here before touching the market engine.
var ErrInvalidNonce = errors.New("core: transaction nonce mismatch")

// Node wires the ledger, the market engine and the event buffer into the
// surface consumed by the RPC server and the gateway.
type Node struct {
	ledger  *state.Ledger
	buffer  *events.Buffer
	metrics *metrics.MarketMetrics
	logger  *slog.Logger
}

func NewNode(db storage.Database) *Node {
	return &Node{
		ledger:  state.NewLedger(db),
		buffer:  events.NewBuffer(512),
		metrics: metrics.Market(),
		logger:  slog.Default(),
	}
}

// SetLogger overrides the node logger. Passing nil restores the default.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		n.logger = slog.Default()
		return
	}
	n.logger = logger
}

// Ledger exposes the underlying account store, primarily for genesis
// seeding and tests.
func (n *Node) Ledger() *state.Ledger { return n.ledger }

func (n *Node) newEngine(txn *state.Txn, emitter events.Emitter) *market.Engine {
	engine := market.NewEngine()
	engine.SetState(txn)
	engine.SetEmitter(emitter)
	return engine
}

// eventSink stages events emitted during a transition so they reach the
// node buffer only once the transition has committed.
type eventSink struct {
	pending []events.Event
}

func (s *eventSink) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	s.pending = append(s.pending, evt)
}

// SubmitMarketTx verifies the envelope signature, checks the signer nonce
// and applies the requested transition as one atomic ledger transaction.
func (n *Node) SubmitMarketTx(tx *types.MarketTx) (*types.Receipt, error) {
	if tx == nil {
		return nil, errors.New("core: nil transaction")
	}
	if !tx.Op.Valid() {
		return nil, errors.New("core: unknown market operation")
	}
	signer, err := tx.Verify()
	if err != nil {
		return nil, err
	}
	var (
		receipt *types.Receipt
		settled *big.Int
	)
	sink := new(eventSink)
	applyErr := n.ledger.Apply(func(txn *state.Txn) error {
		account, err := txn.GetAccount(signer.Raw())
		if err != nil {
			return err
		}
		if tx.Nonce != account.Nonce {
			return ErrInvalidNonce
		}
		engine := n.newEngine(txn, sink)
		switch tx.Op {
		case types.OpList:
			_, receipt, err = engine.List(signer.Raw(), tx.Asset, tx.Price)
		case types.OpBuy:
			if listing, lookupErr := engine.Get(tx.Asset); lookupErr == nil {
				settled = new(big.Int).Set(listing.Price)
			}
			receipt, err = engine.Buy(signer.Raw(), tx.Asset)
		case types.OpCancel:
			receipt, err = engine.Cancel(signer.Raw(), tx.Asset)
		}
		if err != nil {
			return err
		}
		refreshed, err := txn.GetAccount(signer.Raw())
		if err != nil {
			return err
		}
		refreshed.Nonce++
		return txn.PutAccount(signer.Raw(), refreshed)
	})
	n.observe(tx.Op, signer, applyErr)
	if applyErr != nil {
		return nil, applyErr
	}
	for _, evt := range sink.pending {
		n.buffer.Emit(evt)
	}
	if tx.Op == types.OpBuy && settled != nil {
		// Lossy above 2^53; tolerable for a monitoring counter.
		value, _ := new(big.Float).SetInt(settled).Float64()
		n.metrics.AddSettledValue(value)
	}
	return receipt, nil
}

// Listing resolves the live, authenticated listing for an asset.
func (n *Node) Listing(asset [32]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.ledger.View(func(txn *state.Txn) error {
		engine := n.newEngine(txn, nil)
		var inner error
		listing, inner = engine.Get(asset)
		return inner
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// Listings enumerates all live listing records for the feed view.
func (n *Node) Listings() ([]*market.Listing, error) {
	listings, err := n.ledger.Listings()
	if err != nil {
		return nil, err
	}
	n.metrics.SetLiveListings(len(listings))
	return listings, nil
}

// Account returns the balance-bearing record for an address so clients can
// check balances and the next transaction nonce.
func (n *Node) Account(addr crypto.Address) (*types.Account, error) {
	var account *types.Account
	err := n.ledger.View(func(txn *state.Txn) error {
		var inner error
		account, inner = txn.GetAccount(addr.Raw())
		return inner
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Events returns the recent protocol events, oldest first.
func (n *Node) Events() []*types.Event {
	recent := n.buffer.Recent()
	out := make([]*types.Event, 0, len(recent))
	for _, evt := range recent {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok {
			continue
		}
		if payload := carrier.Event(); payload != nil {
			out = append(out, payload)
		}
	}
	return out
}

func (n *Node) observe(op types.MarketOp, signer crypto.Address, err error) {
	result := "ok"
	switch {
	case err == nil:
	case market.IsValidation(err):
		result = "validation"
	case market.IsAuthorization(err):
		result = "unauthorized"
	case market.IsStateConflict(err) || errors.Is(err, ErrInvalidNonce):
		result = "conflict"
	case market.IsSettlement(err):
		result = "settlement"
	default:
		result = "error"
	}
	n.metrics.ObserveOperation(string(op), result)
	if err != nil {
		n.logger.Warn("market operation rejected", "op", string(op), "signer", signer.String(), "reason", err.Error())
		return
	}
	n.logger.Info("market operation applied", "op", string(op), "signer", signer.String())
}
