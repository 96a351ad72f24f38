// Package orderbook holds resting bids and asks and runs the single-maker
// crossing check that follows every placement or re-price.
//
// Orders live in two arenas, one per side, indexed by trade id. A removed
// order leaves a nil slot behind so ids stay stable and are never reused.
// Per-asset and per-creator indexes are id lists in creation order.
package orderbook

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/app/core/journal"
	"github.com/uhyunpark/votebook/pkg/storage"
)

// AssetChecker reports whether new orders may be placed for an asset
type AssetChecker interface {
	IsAssetTradable(assetID uint64) bool
}

// AssetCheckerFunc adapts a function to AssetChecker
type AssetCheckerFunc func(assetID uint64) bool

func (f AssetCheckerFunc) IsAssetTradable(assetID uint64) bool { return f(assetID) }

// Key layout
//
//	ord:b:{20-digit id} -> Order JSON (resting bids)
//	ord:a:{20-digit id} -> Order JSON (resting asks)
//	ord-next:b, ord-next:a -> next id of the side
var sidePrefix = [2]string{"ord:b:", "ord:a:"}

func orderKey(side Side, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", sidePrefix[side], id))
}

func nextIDKey(side Side) []byte {
	return []byte("ord-next:" + sidePrefix[side][4:5])
}

type orderRef struct {
	assetID uint64
	creator common.Address
}

type sideBook struct {
	orders    []*Order // slot i holds trade id i, nil once removed
	byAsset   map[uint64][]uint64
	byCreator map[common.Address][]uint64
	live      int

	dirty map[uint64]orderRef // ids changed since the last Finalise
}

func newSideBook() *sideBook {
	return &sideBook{
		byAsset:   make(map[uint64][]uint64),
		byCreator: make(map[common.Address][]uint64),
		dirty:     make(map[uint64]orderRef),
	}
}

func (s *sideBook) get(id uint64) *Order {
	if id >= uint64(len(s.orders)) {
		return nil
	}
	return s.orders[id]
}

func (s *sideBook) collect(ids []uint64) []Order {
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		if o := s.orders[id]; o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// Book is the order book store. It is not safe for concurrent use; the
// exchange serializes access.
type Book struct {
	assets  AssetChecker
	sides   [2]*sideBook
	journal journal.Journal
}

// NewBook creates an empty book. Both id counters start at 0.
func NewBook(assets AssetChecker) *Book {
	return &Book{
		assets: assets,
		sides:  [2]*sideBook{newSideBook(), newSideBook()},
	}
}

func (b *Book) side(s Side) *sideBook {
	if !s.valid() {
		panic(fmt.Sprintf("orderbook: invalid side %d", s))
	}
	return b.sides[s]
}

// Validate runs the placement checks of Insert without changing the book
func (b *Book) Validate(assetID, price, amount uint64) error {
	if b.assets == nil || !b.assets.IsAssetTradable(assetID) {
		return errors.Wrapf(ErrInvalidAsset, "asset %d", assetID)
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Insert appends a new resting order with the next id of its side
func (b *Book) Insert(side Side, creator common.Address, assetID, price, amount uint64) (Order, error) {
	if !side.valid() {
		return Order{}, errors.Wrapf(ErrInvalidSide, "%d", side)
	}
	if err := b.Validate(assetID, price, amount); err != nil {
		return Order{}, err
	}

	s := b.side(side)
	o := &Order{
		TradeID: uint64(len(s.orders)),
		Side:    side,
		Creator: creator,
		AssetID: assetID,
		Price:   price,
		Amount:  amount,
	}
	s.orders = append(s.orders, o)
	s.byAsset[assetID] = append(s.byAsset[assetID], o.TradeID)
	s.byCreator[creator] = append(s.byCreator[creator], o.TradeID)
	s.live++
	prevDirty, wasDirty := s.dirty[o.TradeID]
	s.dirty[o.TradeID] = orderRef{assetID, creator}

	b.journal.Append(func() {
		s.orders = s.orders[:o.TradeID]
		s.byAsset[assetID] = popLast(s.byAsset[assetID], assetID, s.byAsset)
		s.byCreator[creator] = popLastAddr(s.byCreator[creator], creator, s.byCreator)
		s.live--
		restoreDirty(s.dirty, o.TradeID, prevDirty, wasDirty)
	})
	return *o, nil
}

func popLast(ids []uint64, key uint64, m map[uint64][]uint64) []uint64 {
	ids = ids[:len(ids)-1]
	if len(ids) == 0 {
		delete(m, key)
		return nil
	}
	return ids
}

func popLastAddr(ids []uint64, key common.Address, m map[common.Address][]uint64) []uint64 {
	ids = ids[:len(ids)-1]
	if len(ids) == 0 {
		delete(m, key)
		return nil
	}
	return ids
}

func restoreDirty(dirty map[uint64]orderRef, id uint64, prev orderRef, was bool) {
	if was {
		dirty[id] = prev
	} else {
		delete(dirty, id)
	}
}

// Get returns a copy of a resting order
func (b *Book) Get(side Side, tradeID uint64) (Order, error) {
	if !side.valid() {
		return Order{}, errors.Wrapf(ErrInvalidSide, "%d", side)
	}
	o := b.side(side).get(tradeID)
	if o == nil {
		return Order{}, errors.Wrapf(ErrInvalidTradeID, "%s %d", side, tradeID)
	}
	return *o, nil
}

// Remove tombstones a resting order
func (b *Book) Remove(side Side, tradeID uint64) error {
	if !side.valid() {
		return errors.Wrapf(ErrInvalidSide, "%d", side)
	}
	s := b.side(side)
	o := s.get(tradeID)
	if o == nil {
		return errors.Wrapf(ErrInvalidTradeID, "%s %d", side, tradeID)
	}

	s.orders[tradeID] = nil
	s.live--
	prevDirty, wasDirty := s.dirty[tradeID]
	s.dirty[tradeID] = orderRef{o.AssetID, o.Creator}

	b.journal.Append(func() {
		s.orders[tradeID] = o
		s.live++
		restoreDirty(s.dirty, tradeID, prevDirty, wasDirty)
	})
	return nil
}

// SetAmount changes the remaining amount. Zero removes the order.
func (b *Book) SetAmount(side Side, tradeID, amount uint64) error {
	if amount == 0 {
		return b.Remove(side, tradeID)
	}
	return b.mutate(side, tradeID, func(o *Order) func() {
		prev := o.Amount
		o.Amount = amount
		return func() { o.Amount = prev }
	})
}

// SetPrice changes the price of a resting order in place
func (b *Book) SetPrice(side Side, tradeID, price uint64) error {
	if price == 0 {
		return ErrInvalidPrice
	}
	return b.mutate(side, tradeID, func(o *Order) func() {
		prev := o.Price
		o.Price = price
		return func() { o.Price = prev }
	})
}

func (b *Book) mutate(side Side, tradeID uint64, apply func(*Order) func()) error {
	if !side.valid() {
		return errors.Wrapf(ErrInvalidSide, "%d", side)
	}
	s := b.side(side)
	o := s.get(tradeID)
	if o == nil {
		return errors.Wrapf(ErrInvalidTradeID, "%s %d", side, tradeID)
	}

	undo := apply(o)
	prevDirty, wasDirty := s.dirty[tradeID]
	s.dirty[tradeID] = orderRef{o.AssetID, o.Creator}

	b.journal.Append(func() {
		undo()
		restoreDirty(s.dirty, tradeID, prevDirty, wasDirty)
	})
	return nil
}

// OrdersByAsset returns the resting orders of one asset and side in creation order
func (b *Book) OrdersByAsset(assetID uint64, side Side) []Order {
	if !side.valid() {
		return nil
	}
	s := b.side(side)
	return s.collect(s.byAsset[assetID])
}

// OrdersByCreator returns the resting orders of one creator and side in creation order
func (b *Book) OrdersByCreator(creator common.Address, side Side) []Order {
	if !side.valid() {
		return nil
	}
	s := b.side(side)
	return s.collect(s.byCreator[creator])
}

// Each calls fn for every resting order of a side in id order
func (b *Book) Each(side Side, fn func(Order)) {
	for _, o := range b.side(side).orders {
		if o != nil {
			fn(*o)
		}
	}
}

// NextID returns the id the next order on side will receive
func (b *Book) NextID(side Side) uint64 {
	return uint64(len(b.side(side).orders))
}

// Len returns the number of resting orders on side
func (b *Book) Len(side Side) int {
	return b.side(side).live
}

// Snapshot returns a revision id usable with RevertToSnapshot
func (b *Book) Snapshot() int { return b.journal.Snapshot() }

// RevertToSnapshot undoes every change made after the snapshot was taken
func (b *Book) RevertToSnapshot(id int) { b.journal.RevertToSnapshot(id) }

// Flush writes every order changed since the last Finalise into batch.
// Removed orders are deleted; the book itself is not modified.
func (b *Book) Flush(batch *storage.Batch) error {
	for side, s := range b.sides {
		if len(s.dirty) == 0 {
			continue
		}
		for id := range s.dirty {
			key := orderKey(Side(side), id)
			if o := s.get(id); o != nil {
				if err := batch.SetJSON(key, o); err != nil {
					return err
				}
				continue
			}
			if err := batch.Delete(key); err != nil {
				return errors.Wrapf(err, "delete %s", key)
			}
		}
		if err := batch.SetJSON(nextIDKey(Side(side)), uint64(len(s.orders))); err != nil {
			return err
		}
	}
	return nil
}

// Finalise makes all changes permanent: the journal is cleared and index
// entries of removed orders are dropped.
func (b *Book) Finalise() {
	for _, s := range b.sides {
		for id, ref := range s.dirty {
			if s.get(id) != nil {
				continue
			}
			s.byAsset[ref.assetID] = prune(s.byAsset[ref.assetID], s.orders)
			if len(s.byAsset[ref.assetID]) == 0 {
				delete(s.byAsset, ref.assetID)
			}
			s.byCreator[ref.creator] = prune(s.byCreator[ref.creator], s.orders)
			if len(s.byCreator[ref.creator]) == 0 {
				delete(s.byCreator, ref.creator)
			}
		}
		clear(s.dirty)
	}
	b.journal.Reset()
}

func prune(ids []uint64, orders []*Order) []uint64 {
	kept := ids[:0]
	for _, id := range ids {
		if orders[id] != nil {
			kept = append(kept, id)
		}
	}
	return kept
}

// Load restores both sides from store into an empty book
func (b *Book) Load(store *storage.PebbleStore) error {
	for side, s := range b.sides {
		if len(s.orders) != 0 {
			return errors.New("orderbook: load into non-empty book")
		}

		var next uint64
		if _, err := store.GetJSON(nextIDKey(Side(side)), &next); err != nil {
			return err
		}
		s.orders = make([]*Order, next)

		err := store.ScanPrefix([]byte(sidePrefix[side]), func(key, value []byte) error {
			var o Order
			if err := json.Unmarshal(value, &o); err != nil {
				return errors.Wrapf(err, "decode %s", key)
			}
			if o.TradeID >= next {
				return errors.Newf("order %s %d beyond counter %d", Side(side), o.TradeID, next)
			}
			s.orders[o.TradeID] = &o
			s.byAsset[o.AssetID] = append(s.byAsset[o.AssetID], o.TradeID)
			s.byCreator[o.Creator] = append(s.byCreator[o.Creator], o.TradeID)
			s.live++
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
