package exchange

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
)

type EventType string

const (
	EventBidPlaced    EventType = "bid_placed"
	EventAskPlaced    EventType = "ask_placed"
	EventPriceUpdated EventType = "price_updated"
	EventOrderClosed  EventType = "order_closed"
	EventTrade        EventType = "trade"
)

// Event is emitted once per committed state change. A placement or amendment
// that fills emits its own event followed by one trade event.
type Event struct {
	Type    EventType      `json:"type"`
	Side    orderbook.Side `json:"side"`
	TradeID uint64         `json:"tradeId"`
	AssetID uint64         `json:"assetId"`
	Creator common.Address `json:"creator"`
	Price   uint64         `json:"price,omitempty"`
	Amount  uint64         `json:"amount,omitempty"` // placed amount
	Filled  uint64         `json:"filled"`
	Trade   *Trade         `json:"trade,omitempty"`
	Time    int64          `json:"time"` // unix millis
}

// Accounts returns the addresses an event concerns
func (ev Event) Accounts() []common.Address {
	if ev.Trade != nil {
		if ev.Trade.Buyer == ev.Trade.Seller {
			return []common.Address{ev.Trade.Buyer}
		}
		return []common.Address{ev.Trade.Buyer, ev.Trade.Seller}
	}
	return []common.Address{ev.Creator}
}

// Placement is the observable result of Bid and Ask
type Placement struct {
	TradeID uint64         `json:"tradeId"`
	Side    orderbook.Side `json:"side"`
	Creator common.Address `json:"creator"`
	AssetID uint64         `json:"assetId"`
	Price   uint64         `json:"price"`
	Amount  uint64         `json:"amount"`
	Filled  uint64         `json:"filled"` // 0 when the order rested untouched
}

// Amendment is the observable result of UpdatePrice
type Amendment struct {
	TradeID  uint64         `json:"tradeId"`
	NewPrice uint64         `json:"newPrice"`
	Filled   uint64         `json:"filled"`
	Side     orderbook.Side `json:"side"`
}

// Closure is the observable result of CloseBidAsk
type Closure struct {
	TradeID uint64         `json:"tradeId"`
	Side    orderbook.Side `json:"side"`
}

// txn collects what one call produces until it commits
type txn struct {
	at     time.Time
	events []Event
	trades []Trade
}

func (tx *txn) emit(ev Event) {
	ev.Time = tx.at.UnixMilli()
	tx.events = append(tx.events, ev)
}
