package bank

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNilStore          = errors.New("bank: balance store not configured")
	ErrZeroAddress       = errors.New("bank: zero address")
	ErrNegativeAmount    = errors.New("bank: negative transfer amount")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
)

// BalanceStore persists per-(asset, holder) balances.
type BalanceStore interface {
	Balance(asset, holder [20]byte) (*big.Int, error)
	SetBalance(asset, holder [20]byte, amount *big.Int) error
}

type journalEntry struct {
	asset  [20]byte
	holder [20]byte
	prev   *big.Int
}

// Ledger implements fungible-asset transfer semantics over a balance store.
// It doubles as the engine's custody boundary: the engine is the trusted
// operator, so no allowance bookkeeping happens here.
//
// The journal supports one active snapshot at a time, which matches the
// engine's serialized call model; taking a new snapshot discards undo history
// from earlier operations.
type Ledger struct {
	store   BalanceStore
	journal []journalEntry
}

// NewLedger creates a ledger over the provided store.
func NewLedger(store BalanceStore) *Ledger {
	return &Ledger{store: store}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// BalanceOf returns the holder's balance for the asset, zero when absent.
func (l *Ledger) BalanceOf(asset, holder [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	return l.store.Balance(asset, holder)
}

func (l *Ledger) setBalance(asset, holder [20]byte, next *big.Int) error {
	prev, err := l.store.Balance(asset, holder)
	if err != nil {
		return err
	}
	if err := l.store.SetBalance(asset, holder, next); err != nil {
		return err
	}
	l.journal = append(l.journal, journalEntry{asset: asset, holder: holder, prev: cloneBigInt(prev)})
	return nil
}

// Mint credits freshly issued units of the asset to the holder.
func (l *Ledger) Mint(asset, holder [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return ErrNilStore
	}
	if holder == ([20]byte{}) || asset == ([20]byte{}) {
		return ErrZeroAddress
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	balance, err := l.store.Balance(asset, holder)
	if err != nil {
		return err
	}
	return l.setBalance(asset, holder, new(big.Int).Add(balance, amt))
}

// Transfer moves amount of asset between holders. A zero amount is a no-op;
// moving more than the sender holds fails without mutation.
func (l *Ledger) Transfer(asset, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return ErrNilStore
	}
	if asset == ([20]byte{}) || from == ([20]byte{}) || to == ([20]byte{}) {
		return ErrZeroAddress
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	fromBalance, err := l.store.Balance(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBalance, amt)
	}
	toBalance, err := l.store.Balance(asset, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(asset, from, new(big.Int).Sub(fromBalance, amt)); err != nil {
		return err
	}
	return l.setBalance(asset, to, new(big.Int).Add(toBalance, amt))
}

// Snapshot starts a fresh undo journal and returns its base marker.
func (l *Ledger) Snapshot() int {
	l.journal = l.journal[:0]
	return 0
}

// RevertTo rewrites every balance recorded after the marker back to its prior
// value, most recent first.
func (l *Ledger) RevertTo(marker int) error {
	if l == nil || l.store == nil {
		return ErrNilStore
	}
	if marker < 0 || marker > len(l.journal) {
		return fmt.Errorf("bank: invalid journal marker %d", marker)
	}
	for i := len(l.journal) - 1; i >= marker; i-- {
		entry := l.journal[i]
		if err := l.store.SetBalance(entry.asset, entry.holder, entry.prev); err != nil {
			return err
		}
	}
	l.journal = l.journal[:marker]
	return nil
}
