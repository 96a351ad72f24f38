package exchange

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/app/core/price"
)

// StateHash returns a keccak256 digest of the book and the escrow it holds.
// Two nodes that applied the same calls in the same order agree on it.
//
// Hashed in order:
//  1. next bid id, next ask id
//  2. every resting bid, then every resting ask, by trade id:
//     trade id, asset id, creator, price, amount
//  3. escrow held for all resting bids
func (e *Exchange) StateHash() common.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	putUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	putUint(e.book.NextID(orderbook.Bid))
	putUint(e.book.NextID(orderbook.Ask))

	escrow := new(big.Int)
	for _, side := range []orderbook.Side{orderbook.Bid, orderbook.Ask} {
		e.book.Each(side, func(o orderbook.Order) {
			putUint(o.TradeID)
			putUint(o.AssetID)
			h.Write(o.Creator.Bytes())
			putUint(o.Price)
			putUint(o.Amount)
			if side == orderbook.Bid {
				escrow.Add(escrow, price.FundsOwed(o.Price, o.Amount, e.token.Decimals()))
			}
		})
	}

	h.Write(common.BigToHash(escrow).Bytes())
	return common.BytesToHash(h.Sum(nil))
}
