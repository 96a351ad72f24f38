// Package shares is the share custody ledger: per (asset, holder) owned and
// listed share counts, with listed shares locked behind resting asks.
package shares

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/app/core/journal"
	"github.com/uhyunpark/votebook/pkg/storage"
)

var (
	ErrInsufficientUnlistedShares = errors.New("insufficient unlisted shares")
	ErrInsufficientListedShares   = errors.New("insufficient listed shares")
	ErrZeroAmount                 = errors.New("share amount must be positive")
	ErrOverflow                   = errors.New("share amount overflows")
)

// AssetChecker reports whether an asset is open for new orders
type AssetChecker interface {
	IsAssetTradable(assetID uint64) bool
}

type recordID struct {
	assetID uint64
	holder  common.Address
}

// Ledger holds share records in memory and persists changed records through
// Flush. It is not safe for concurrent use; the exchange serializes access.
type Ledger struct {
	assets  AssetChecker
	records map[recordID]*Record
	dirty   map[recordID]struct{}
	journal journal.Journal
}

// NewLedger creates an empty ledger
func NewLedger(assets AssetChecker) *Ledger {
	return &Ledger{
		assets:  assets,
		records: make(map[recordID]*Record),
		dirty:   make(map[recordID]struct{}),
	}
}

// IsAssetTradable delegates to the asset registry
func (l *Ledger) IsAssetTradable(assetID uint64) bool {
	return l.assets != nil && l.assets.IsAssetTradable(assetID)
}

// Record returns the holder's record, zero if the holder has none
func (l *Ledger) Record(assetID uint64, holder common.Address) Record {
	if r, ok := l.records[recordID{assetID, holder}]; ok {
		return *r
	}
	return Record{AssetID: assetID, Holder: holder}
}

// Mint issues new unlisted shares to holder
func (l *Ledger) Mint(assetID uint64, holder common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	r := l.Record(assetID, holder)
	if r.Owned > math.MaxUint64-amount {
		return errors.Wrapf(ErrOverflow, "mint %d to %s", amount, holder.Hex())
	}
	r.Owned += amount
	l.set(r)
	return nil
}

// Lock moves amount shares from unlisted to listed
func (l *Ledger) Lock(assetID uint64, holder common.Address, amount uint64) error {
	r := l.Record(assetID, holder)
	if r.Unlisted() < amount {
		return errors.Wrapf(ErrInsufficientUnlistedShares,
			"%s has %d unlisted shares of asset %d, needs %d", holder.Hex(), r.Unlisted(), assetID, amount)
	}
	r.Listed += amount
	l.set(r)
	return nil
}

// Unlock moves amount shares from listed back to unlisted
func (l *Ledger) Unlock(assetID uint64, holder common.Address, amount uint64) error {
	r := l.Record(assetID, holder)
	if r.Listed < amount {
		return errors.Wrapf(ErrInsufficientListedShares,
			"%s has %d listed shares of asset %d, unlock %d", holder.Hex(), r.Listed, assetID, amount)
	}
	r.Listed -= amount
	l.set(r)
	return nil
}

// Transfer settles a fill: the seller's owned and listed shares drop by
// amount, the buyer's owned (and so unlisted) shares grow by amount.
func (l *Ledger) Transfer(assetID uint64, from, to common.Address, amount uint64) error {
	seller := l.Record(assetID, from)
	if seller.Listed < amount {
		return errors.Wrapf(ErrInsufficientListedShares,
			"%s has %d listed shares of asset %d, transfer %d", from.Hex(), seller.Listed, assetID, amount)
	}
	seller.Owned -= amount
	seller.Listed -= amount
	l.set(seller)

	buyer := l.Record(assetID, to)
	if buyer.Owned > math.MaxUint64-amount {
		return errors.Wrapf(ErrOverflow, "transfer %d to %s", amount, to.Hex())
	}
	buyer.Owned += amount
	l.set(buyer)
	return nil
}

// set stores r and journals the previous value
func (l *Ledger) set(r Record) {
	id := recordID{r.AssetID, r.Holder}
	prev, existed := l.records[id]
	_, wasDirty := l.dirty[id]

	cp := r
	l.records[id] = &cp
	l.dirty[id] = struct{}{}

	l.journal.Append(func() {
		if existed {
			l.records[id] = prev
		} else {
			delete(l.records, id)
		}
		if !wasDirty {
			delete(l.dirty, id)
		}
	})
}

// Holders returns every non-empty record of an asset ordered by holder
func (l *Ledger) Holders(assetID uint64) []Record {
	var out []Record
	for id, r := range l.records {
		if id.assetID == assetID && !r.empty() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Holder[:], out[j].Holder[:]) < 0
	})
	return out
}

// Holdings returns every non-empty record of a holder ordered by asset
func (l *Ledger) Holdings(holder common.Address) []Record {
	var out []Record
	for id, r := range l.records {
		if id.holder == holder && !r.empty() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// Total returns the owned shares of an asset summed over all holders
func (l *Ledger) Total(assetID uint64) uint64 {
	var total uint64
	for id, r := range l.records {
		if id.assetID == assetID {
			total += r.Owned
		}
	}
	return total
}

func (l *Ledger) Snapshot() int { return l.journal.Snapshot() }

func (l *Ledger) RevertToSnapshot(id int) { l.journal.RevertToSnapshot(id) }

// Flush writes every record changed since the last Finalise into batch.
// Emptied records are deleted.
func (l *Ledger) Flush(batch *storage.Batch) error {
	for id := range l.dirty {
		key := recordKey(id.assetID, id.holder)
		r, ok := l.records[id]
		if !ok || r.empty() {
			if err := batch.Delete(key); err != nil {
				return errors.Wrapf(err, "delete %s", key)
			}
			continue
		}
		if err := r.Validate(); err != nil {
			return err
		}
		if err := batch.SetJSON(key, r); err != nil {
			return err
		}
	}
	return nil
}

// Finalise clears the journal and the dirty set
func (l *Ledger) Finalise() {
	clear(l.dirty)
	l.journal.Reset()
}

// Load restores all records from store
func (l *Ledger) Load(store *storage.PebbleStore) error {
	return store.ScanPrefix([]byte(prefixShares), func(key, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return errors.Wrapf(err, "decode %s", key)
		}
		if err := r.Validate(); err != nil {
			return err
		}
		l.records[recordID{r.AssetID, r.Holder}] = &r
		return nil
	})
}
