package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"flowvault/core/indexset"
	"flowvault/storage"
)

// Manager provides typed access to the engine's durable state over a raw
// key-value store. Values are RLP encoded; keys are prefixed and hashed with
// keccak256 before hitting the store.
type Manager struct {
	db storage.Database

	// ownerMu guards ownerSets and the cached sets themselves. Read
	// handlers hit the owner index from per-request goroutines, and even a
	// pure lookup may populate the cache.
	ownerMu sync.Mutex

	// ownerSets caches the per-owner id sets; the persisted dense list is
	// the durable form, the IndexedSet is the O(1) membership authority.
	ownerSets map[[20]byte]*indexset.Set
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, ownerSets: make(map[[20]byte]*indexset.Set)}
}

var balancePrefix = []byte("balance:")

func balanceKey(asset, holder [20]byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(asset)+1+len(holder))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], asset[:])
	buf[len(balancePrefix)+len(asset)] = ':'
	copy(buf[len(balancePrefix)+len(asset)+1:], holder[:])
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// get decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Balance retrieves the holder's balance for the asset, zero when absent.
func (m *Manager) Balance(asset, holder [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.get(balanceKey(asset, holder), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetBalance stores the holder's balance for the asset.
func (m *Manager) SetBalance(asset, holder [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative balance not allowed")
	}
	return m.put(balanceKey(asset, holder), amount)
}
