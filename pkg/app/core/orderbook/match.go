package orderbook

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Fill is the result of one crossing check. Taker and Maker are the orders
// as they were before the fill.
type Fill struct {
	Taker Order
	Maker Order
	Price uint64 // settlement price, always the maker's
	Qty   uint64
}

// Bid returns whichever of the two orders is the bid
func (f Fill) Bid() Order {
	if f.Taker.Side == Bid {
		return f.Taker
	}
	return f.Maker
}

// Ask returns whichever of the two orders is the ask
func (f Fill) Ask() Order {
	if f.Taker.Side == Ask {
		return f.Taker
	}
	return f.Maker
}

func (f Fill) Buyer() common.Address  { return f.Bid().Creator }
func (f Fill) Seller() common.Address { return f.Ask().Creator }
func (f Fill) AssetID() uint64        { return f.Maker.AssetID }

// TakerDone reports whether the fill consumed the whole taker order
func (f Fill) TakerDone() bool { return f.Qty == f.Taker.Amount }

// MakerDone reports whether the fill consumed the whole maker order
func (f Fill) MakerDone() bool { return f.Qty == f.Maker.Amount }

// BestMaker returns the opposing order a taker would trade against: the
// lowest crossing ask for a bid, the highest crossing bid for an ask.
// Equal prices go to the earliest order.
func (b *Book) BestMaker(taker Order) (Order, bool) {
	s := b.side(taker.Side.Opposite())

	var best *Order
	for _, id := range s.byAsset[taker.AssetID] {
		o := s.orders[id]
		if o == nil || !taker.Crosses(o) {
			continue
		}
		if best == nil || better(taker.Side, o.Price, best.Price) {
			best = o
		}
	}
	if best == nil {
		return Order{}, false
	}
	return *best, true
}

func better(takerSide Side, candidate, current uint64) bool {
	if takerSide == Bid {
		return candidate < current
	}
	return candidate > current
}

// Match runs the crossing check for a resting taker order. At most one maker
// is filled. Both orders are reduced by the fill quantity and removed when
// they reach zero. ok is false when nothing crosses.
func (b *Book) Match(side Side, takerID uint64) (fill Fill, ok bool, err error) {
	taker, err := b.Get(side, takerID)
	if err != nil {
		return Fill{}, false, err
	}

	maker, found := b.BestMaker(taker)
	if !found {
		return Fill{}, false, nil
	}

	qty := min(taker.Amount, maker.Amount)
	if err := b.SetAmount(taker.Side, taker.TradeID, taker.Amount-qty); err != nil {
		return Fill{}, false, errors.Wrap(err, "reduce taker")
	}
	if err := b.SetAmount(maker.Side, maker.TradeID, maker.Amount-qty); err != nil {
		return Fill{}, false, errors.Wrap(err, "reduce maker")
	}

	return Fill{
		Taker: taker,
		Maker: maker,
		Price: maker.Price,
		Qty:   qty,
	}, true, nil
}

// PriceLevel aggregates the resting amount at one price
type PriceLevel struct {
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
	Orders int    `json:"orders"`
}

// Levels returns the depth of one asset and side, best price first
func (b *Book) Levels(assetID uint64, side Side) []PriceLevel {
	byPrice := make(map[uint64]*PriceLevel)
	for _, o := range b.OrdersByAsset(assetID, side) {
		lvl, ok := byPrice[o.Price]
		if !ok {
			lvl = &PriceLevel{Price: o.Price}
			byPrice[o.Price] = lvl
		}
		lvl.Amount += o.Amount
		lvl.Orders++
	}

	levels := make([]PriceLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		levels = append(levels, *lvl)
	}
	sort.Slice(levels, func(i, j int) bool {
		if side == Bid {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}
