// Package token is an ERC-20 style payment token ledger: balances,
// allowances and allowance-based pulls, held in memory and flushed to Pebble.
package token

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/app/core/journal"
	"github.com/uhyunpark/votebook/pkg/storage"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrNegativeAmount        = errors.New("token amount must not be negative")
)

// Key prefixes
const (
	prefixBalance   = "bal:"
	prefixAllowance = "alw:"
	keySupply       = "token-supply"
)

// balanceKey returns "bal:{address}"
func balanceKey(addr common.Address) []byte {
	return []byte(prefixBalance + addr.Hex())
}

// allowanceKey returns "alw:{owner}:{spender}"
func allowanceKey(owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixAllowance, owner.Hex(), spender.Hex()))
}

type allowanceID struct {
	owner, spender common.Address
}

type allowanceRecord struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

type balanceRecord struct {
	Address common.Address `json:"address"`
	Amount  *big.Int       `json:"amount"`
}

// Ledger is not safe for concurrent use; the exchange serializes access.
type Ledger struct {
	symbol   string
	decimals uint8

	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[allowanceID]*big.Int

	dirtyBalances   map[common.Address]struct{}
	dirtyAllowances map[allowanceID]struct{}
	dirtySupply     bool

	journal journal.Journal
}

// NewLedger creates a token with zero supply
func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:          symbol,
		decimals:        decimals,
		supply:          new(big.Int),
		balances:        make(map[common.Address]*big.Int),
		allowances:      make(map[allowanceID]*big.Int),
		dirtyBalances:   make(map[common.Address]struct{}),
		dirtyAllowances: make(map[allowanceID]struct{}),
	}
}

func (l *Ledger) Symbol() string  { return l.symbol }
func (l *Ledger) Decimals() uint8 { return l.decimals }

// TotalSupply returns a copy of the minted supply
func (l *Ledger) TotalSupply() *big.Int { return new(big.Int).Set(l.supply) }

// BalanceOf returns a copy of addr's balance
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Allowance returns how much spender may still pull from owner
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := l.allowances[allowanceID{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Mint creates amount new tokens for to
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.setSupply(new(big.Int).Add(l.supply, amount))
	l.setBalance(to, new(big.Int).Add(l.BalanceOf(to), amount))
	return nil
}

// Approve sets the amount spender may pull from owner, replacing any previous value
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.setAllowance(owner, spender, new(big.Int).Set(amount))
	return nil
}

// Transfer moves amount from from to to
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := l.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientBalance, "%s has %s, needs %s", from.Hex(), bal, amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	l.setBalance(from, bal.Sub(bal, amount))
	l.setBalance(to, new(big.Int).Add(l.BalanceOf(to), amount))
	return nil
}

// TransferFrom moves amount from from to to on behalf of spender, consuming allowance
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	allowed := l.Allowance(from, spender)
	if allowed.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientAllowance, "%s allows %s %s, needs %s", from.Hex(), spender.Hex(), allowed, amount)
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	if amount.Sign() > 0 {
		l.setAllowance(from, spender, allowed.Sub(allowed, amount))
	}
	return nil
}

func (l *Ledger) setSupply(v *big.Int) {
	prev, wasDirty := l.supply, l.dirtySupply
	l.supply = v
	l.dirtySupply = true
	l.journal.Append(func() {
		l.supply = prev
		l.dirtySupply = wasDirty
	})
}

func (l *Ledger) setBalance(addr common.Address, v *big.Int) {
	prev, existed := l.balances[addr]
	_, wasDirty := l.dirtyBalances[addr]
	l.balances[addr] = v
	l.dirtyBalances[addr] = struct{}{}
	l.journal.Append(func() {
		if existed {
			l.balances[addr] = prev
		} else {
			delete(l.balances, addr)
		}
		if !wasDirty {
			delete(l.dirtyBalances, addr)
		}
	})
}

func (l *Ledger) setAllowance(owner, spender common.Address, v *big.Int) {
	id := allowanceID{owner, spender}
	prev, existed := l.allowances[id]
	_, wasDirty := l.dirtyAllowances[id]
	l.allowances[id] = v
	l.dirtyAllowances[id] = struct{}{}
	l.journal.Append(func() {
		if existed {
			l.allowances[id] = prev
		} else {
			delete(l.allowances, id)
		}
		if !wasDirty {
			delete(l.dirtyAllowances, id)
		}
	})
}

func (l *Ledger) Snapshot() int { return l.journal.Snapshot() }

func (l *Ledger) RevertToSnapshot(id int) { l.journal.RevertToSnapshot(id) }

// Flush writes balances and allowances changed since the last Finalise into
// batch. Zero entries are deleted.
func (l *Ledger) Flush(batch *storage.Batch) error {
	if l.dirtySupply {
		if err := batch.SetJSON([]byte(keySupply), l.supply); err != nil {
			return err
		}
	}
	for addr := range l.dirtyBalances {
		key := balanceKey(addr)
		bal, ok := l.balances[addr]
		if !ok || bal.Sign() == 0 {
			if err := batch.Delete(key); err != nil {
				return errors.Wrapf(err, "delete %s", key)
			}
			continue
		}
		if err := batch.SetJSON(key, balanceRecord{addr, bal}); err != nil {
			return err
		}
	}
	for id := range l.dirtyAllowances {
		key := allowanceKey(id.owner, id.spender)
		amt, ok := l.allowances[id]
		if !ok || amt.Sign() == 0 {
			if err := batch.Delete(key); err != nil {
				return errors.Wrapf(err, "delete %s", key)
			}
			continue
		}
		if err := batch.SetJSON(key, allowanceRecord{id.owner, id.spender, amt}); err != nil {
			return err
		}
	}
	return nil
}

// Finalise clears the journal and dirty sets
func (l *Ledger) Finalise() {
	clear(l.dirtyBalances)
	clear(l.dirtyAllowances)
	l.dirtySupply = false
	l.journal.Reset()
}

// Load restores supply, balances and allowances from store
func (l *Ledger) Load(store *storage.PebbleStore) error {
	supply := new(big.Int)
	if _, err := store.GetJSON([]byte(keySupply), supply); err != nil {
		return err
	}
	l.supply = supply

	err := store.ScanPrefix([]byte(prefixBalance), func(key, value []byte) error {
		var rec balanceRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrapf(err, "decode %s", key)
		}
		l.balances[rec.Address] = rec.Amount
		return nil
	})
	if err != nil {
		return err
	}

	return store.ScanPrefix([]byte(prefixAllowance), func(key, value []byte) error {
		var rec allowanceRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrapf(err, "decode %s", key)
		}
		l.allowances[allowanceID{rec.Owner, rec.Spender}] = rec.Amount
		return nil
	})
}

// Format renders an amount as a whole-token decimal, e.g. "12.5 USDC"
func (l *Ledger) Format(amount *big.Int) string {
	if l.decimals == 0 {
		return amount.String() + " " + l.symbol
	}
	s := new(big.Int).Abs(amount).String()
	if len(s) <= int(l.decimals) {
		s = strings.Repeat("0", int(l.decimals)-len(s)+1) + s
	}
	whole, frac := s[:len(s)-int(l.decimals)], strings.TrimRight(s[len(s)-int(l.decimals):], "0")
	if amount.Sign() < 0 {
		whole = "-" + whole
	}
	if frac == "" {
		return whole + " " + l.symbol
	}
	return whole + "." + frac + " " + l.symbol
}
