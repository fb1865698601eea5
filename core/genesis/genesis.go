package genesis

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"

	"github.com/BurntSushi/toml"

	"novamarket/core/state"
	"novamarket/crypto"
)

// Spec describes the initial ledger contents: funded accounts and minted
// assets. Assets enter the system only here; the protocol itself never
// creates new asset identifiers.
type Spec struct {
	Accounts []GenesisAccount `toml:"accounts"`
	Assets   []GenesisAsset   `toml:"assets"`
}

type GenesisAccount struct {
	Address string `toml:"address"`
	Balance string `toml:"balance"`
}

type GenesisAsset struct {
	ID    string `toml:"id"`
	Owner string `toml:"owner"`
}

// LoadFile parses a TOML genesis spec from disk.
func LoadFile(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	spec := new(Spec)
	if err := toml.Unmarshal(raw, spec); err != nil {
		return nil, fmt.Errorf("genesis: parse %s: %w", path, err)
	}
	return spec, nil
}

// Apply seeds the ledger with the spec contents. It is idempotent in the
// sense that re-applying the same spec overwrites identical records, so a
// restart against an initialised store is harmless.
func (s *Spec) Apply(ledger *state.Ledger) error {
	if s == nil || ledger == nil {
		return fmt.Errorf("genesis: nil spec or ledger")
	}
	return ledger.Apply(func(txn *state.Txn) error {
		for _, entry := range s.Accounts {
			addr, err := crypto.DecodeAddress(entry.Address)
			if err != nil {
				return fmt.Errorf("genesis: account %s: %w", entry.Address, err)
			}
			balance, ok := new(big.Int).SetString(entry.Balance, 10)
			if !ok || balance.Sign() < 0 {
				return fmt.Errorf("genesis: invalid balance %q for %s", entry.Balance, entry.Address)
			}
			account, err := txn.GetAccount(addr.Raw())
			if err != nil {
				return err
			}
			account.Balance = balance
			if err := txn.PutAccount(addr.Raw(), account); err != nil {
				return err
			}
		}
		for _, entry := range s.Assets {
			asset, err := ParseAssetID(entry.ID)
			if err != nil {
				return err
			}
			owner, err := crypto.DecodeAddress(entry.Owner)
			if err != nil {
				return fmt.Errorf("genesis: asset owner %s: %w", entry.Owner, err)
			}
			if err := txn.SetAssetHolder(asset, owner.Raw()); err != nil {
				return err
			}
		}
		return nil
	})
}

// ParseAssetID decodes a 32-byte hex asset identifier.
func ParseAssetID(id string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(id)
	if err != nil {
		return out, fmt.Errorf("genesis: invalid asset id %q: %w", id, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("genesis: asset id must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
