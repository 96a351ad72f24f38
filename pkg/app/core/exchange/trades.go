package exchange

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/storage"
)

// Trade records one settled fill
type Trade struct {
	ID        uint64         `json:"id"`
	AssetID   uint64         `json:"assetId"`
	BidID     uint64         `json:"bidId"`
	AskID     uint64         `json:"askId"`
	Buyer     common.Address `json:"buyer"`
	Seller    common.Address `json:"seller"`
	TakerSide orderbook.Side `json:"takerSide"`
	Price     uint64         `json:"price"`  // maker's price
	Amount    uint64         `json:"amount"` // shares
	Paid      *big.Int       `json:"paid"`   // to the seller
	Refund    *big.Int       `json:"refund"` // surplus escrow returned to the buyer
	Time      int64          `json:"time"`   // unix nanos
}

const (
	prefixTrade  = "trade:"
	keyTradeNext = "trade-next"

	// trades kept per asset when running without a store
	memoryTrades = 1000
)

// tradeKey returns the key for a trade
// Format: "trade:{asset id}:{timestamp}:{trade id}", all 20-digit zero padded
// so a reverse scan of one asset yields the newest trades first
func tradeKey(t *Trade) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d:%020d", prefixTrade, t.AssetID, t.Time, t.ID))
}

func tradePrefix(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefixTrade, assetID))
}

type tradeLog struct {
	store  *storage.PebbleStore
	next   uint64
	memory map[uint64][]Trade
}

func newTradeLog(store *storage.PebbleStore) *tradeLog {
	return &tradeLog{store: store, memory: make(map[uint64][]Trade)}
}

func (l *tradeLog) load() error {
	if l.store == nil {
		return nil
	}
	_, err := l.store.GetJSON([]byte(keyTradeNext), &l.next)
	return err
}

func (l *tradeLog) snapshot() uint64 { return l.next }
func (l *tradeLog) revert(next uint64) { l.next = next }

// assign gives t the next trade id
func (l *tradeLog) assign(t *Trade) {
	t.ID = l.next
	l.next++
}

func (l *tradeLog) flush(batch *storage.Batch, trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	for i := range trades {
		if err := batch.SetJSON(tradeKey(&trades[i]), &trades[i]); err != nil {
			return errors.Wrap(err, "write trade")
		}
	}
	return batch.SetJSON([]byte(keyTradeNext), l.next)
}

func (l *tradeLog) finalise(trades []Trade) {
	if l.store != nil {
		return
	}
	for _, t := range trades {
		list := append(l.memory[t.AssetID], t)
		if len(list) > memoryTrades {
			list = list[len(list)-memoryTrades:]
		}
		l.memory[t.AssetID] = list
	}
}

func (l *tradeLog) recent(assetID uint64, limit int) ([]Trade, error) {
	if limit <= 0 {
		return nil, nil
	}
	if l.store == nil {
		list := l.memory[assetID]
		n := min(limit, len(list))
		out := make([]Trade, 0, n)
		for i := len(list) - 1; i >= len(list)-n; i-- {
			out = append(out, list[i])
		}
		return out, nil
	}

	var out []Trade
	err := l.store.ScanPrefixReverse(tradePrefix(assetID), func(key, value []byte) (bool, error) {
		var t Trade
		if err := json.Unmarshal(value, &t); err != nil {
			return false, errors.Wrapf(err, "decode %s", key)
		}
		out = append(out, t)
		return len(out) < limit, nil
	})
	return out, err
}

// RecentTrades returns up to limit trades of an asset, newest first
func (e *Exchange) RecentTrades(assetID uint64, limit int) ([]Trade, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trades.recent(assetID, limit)
}
