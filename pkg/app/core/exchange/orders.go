package exchange

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/app/core/price"
)

// Bid escrows price*amount from caller, rests a bid and crosses it against
// the lowest ask priced at or below it
func (e *Exchange) Bid(caller common.Address, assetID, px, amount uint64) (Placement, error) {
	return e.place(orderbook.Bid, caller, assetID, px, amount)
}

// Ask locks amount of caller's unlisted shares, rests an ask and crosses it
// against the highest bid priced at or above it
func (e *Exchange) Ask(caller common.Address, assetID, px, amount uint64) (Placement, error) {
	return e.place(orderbook.Ask, caller, assetID, px, amount)
}

func (e *Exchange) place(side orderbook.Side, caller common.Address, assetID, px, amount uint64) (Placement, error) {
	var res Placement
	_, err := e.apply(func(tx *txn) error {
		if err := e.book.Validate(assetID, px, amount); err != nil {
			return err
		}

		if side == orderbook.Bid {
			escrow := price.FundsOwed(px, amount, e.token.Decimals())
			if err := e.token.PullTransfer(caller, e.token.Address(), escrow); err != nil {
				return errors.Wrap(err, "escrow bid funds")
			}
		} else {
			if err := e.shares.Lock(assetID, caller, amount); err != nil {
				return errors.Wrap(err, "lock ask shares")
			}
		}

		o, err := e.book.Insert(side, caller, assetID, px, amount)
		if err != nil {
			return err
		}
		filled, err := e.match(tx, side, o.TradeID)
		if err != nil {
			return err
		}

		res = Placement{
			TradeID: o.TradeID,
			Side:    side,
			Creator: caller,
			AssetID: assetID,
			Price:   px,
			Amount:  amount,
			Filled:  filled,
		}
		// the placement event goes ahead of its trade
		tx.events = append([]Event{{
			Type:    placedEvent(side),
			Side:    side,
			TradeID: o.TradeID,
			AssetID: assetID,
			Creator: caller,
			Price:   px,
			Amount:  amount,
			Filled:  filled,
			Time:    tx.at.UnixMilli(),
		}}, tx.events...)
		return nil
	})
	if err != nil {
		e.logger.Warnw("order_rejected", "op", side.String(), "creator", caller.Hex(),
			"asset_id", assetID, "price", px, "amount", amount, "error", err)
		return Placement{}, err
	}

	e.logger.Infow(string(placedEvent(side)), "trade_id", res.TradeID, "creator", caller.Hex(),
		"asset_id", assetID, "price", px, "amount", amount, "filled", res.Filled)
	return res, nil
}

func placedEvent(side orderbook.Side) EventType {
	if side == orderbook.Ask {
		return EventAskPlaced
	}
	return EventBidPlaced
}

// UpdatePrice re-prices a resting order and re-runs the crossing check.
// A bid's escrow follows the new price: the creator pays the difference on a
// raise and is refunded on a cut. Asks carry no funds.
func (e *Exchange) UpdatePrice(caller common.Address, tradeID, newPrice uint64, side orderbook.Side) (Amendment, error) {
	var res Amendment
	_, err := e.apply(func(tx *txn) error {
		o, err := e.owned(caller, side, tradeID)
		if err != nil {
			return err
		}
		if newPrice == 0 {
			return orderbook.ErrInvalidPrice
		}

		if side == orderbook.Bid {
			delta := price.Reprice(o.Price, newPrice, o.Amount, e.token.Decimals())
			switch delta.Sign() {
			case 1:
				if err := e.token.PullTransfer(caller, e.token.Address(), delta); err != nil {
					return errors.Wrap(err, "escrow price increase")
				}
			case -1:
				if err := e.token.PushTransfer(caller, delta.Neg(delta)); err != nil {
					return errors.Wrap(err, "refund price decrease")
				}
			}
		}

		if err := e.book.SetPrice(side, tradeID, newPrice); err != nil {
			return err
		}
		tx.emit(Event{
			Type:    EventPriceUpdated,
			Side:    side,
			TradeID: tradeID,
			AssetID: o.AssetID,
			Creator: caller,
			Price:   newPrice,
			Amount:  o.Amount,
		})
		idx := len(tx.events) - 1

		filled, err := e.match(tx, side, tradeID)
		if err != nil {
			return err
		}
		tx.events[idx].Filled = filled

		res = Amendment{TradeID: tradeID, NewPrice: newPrice, Filled: filled, Side: side}
		return nil
	})
	if err != nil {
		e.logger.Warnw("amendment_rejected", "trade_id", tradeID, "side", side.String(),
			"caller", caller.Hex(), "new_price", newPrice, "error", err)
		return Amendment{}, err
	}

	e.logger.Infow("price_updated", "trade_id", tradeID, "side", side.String(),
		"new_price", newPrice, "filled", res.Filled)
	return res, nil
}

// CloseBidAsk cancels a resting order. A bid's remaining escrow is refunded,
// an ask's remaining shares are unlocked.
func (e *Exchange) CloseBidAsk(caller common.Address, tradeID uint64, side orderbook.Side) (Closure, error) {
	_, err := e.apply(func(tx *txn) error {
		o, err := e.owned(caller, side, tradeID)
		if err != nil {
			return err
		}

		if side == orderbook.Bid {
			refund := price.FundsOwed(o.Price, o.Amount, e.token.Decimals())
			if err := e.token.PushTransfer(caller, refund); err != nil {
				return errors.Wrap(err, "refund bid escrow")
			}
		} else {
			if err := e.shares.Unlock(o.AssetID, caller, o.Amount); err != nil {
				return errors.Wrap(err, "unlock ask shares")
			}
		}

		if err := e.book.Remove(side, tradeID); err != nil {
			return err
		}
		tx.emit(Event{
			Type:    EventOrderClosed,
			Side:    side,
			TradeID: tradeID,
			AssetID: o.AssetID,
			Creator: caller,
			Price:   o.Price,
			Amount:  o.Amount,
		})
		return nil
	})
	if err != nil {
		e.logger.Warnw("close_rejected", "trade_id", tradeID, "side", side.String(),
			"caller", caller.Hex(), "error", err)
		return Closure{}, err
	}

	e.logger.Infow("order_closed", "trade_id", tradeID, "side", side.String(), "creator", caller.Hex())
	return Closure{TradeID: tradeID, Side: side}, nil
}

// owned loads an order and checks that caller created it
func (e *Exchange) owned(caller common.Address, side orderbook.Side, tradeID uint64) (orderbook.Order, error) {
	o, err := e.book.Get(side, tradeID)
	if err != nil {
		return orderbook.Order{}, err
	}
	if o.Creator != caller {
		return orderbook.Order{}, errors.Wrapf(ErrNoPermission, "%s %d belongs to %s", side, tradeID, o.Creator.Hex())
	}
	return o, nil
}

// match crosses the order against the best opposing one and settles the fill
func (e *Exchange) match(tx *txn, side orderbook.Side, tradeID uint64) (uint64, error) {
	fill, ok, err := e.book.Match(side, tradeID)
	if err != nil || !ok {
		return 0, err
	}
	if err := e.settle(tx, fill); err != nil {
		return 0, err
	}
	return fill.Qty, nil
}

// settle moves shares from seller to buyer and pays the seller out of the
// bid's escrow at the maker's price. When a bid takes a cheaper ask the
// escrow released exceeds the payment and the surplus goes back to the buyer.
func (e *Exchange) settle(tx *txn, fill orderbook.Fill) error {
	bid := fill.Bid()
	dec := e.token.Decimals()

	released := price.Released(bid.Price, bid.Amount, bid.Amount-fill.Qty, dec)
	paid := price.FundsOwed(fill.Price, fill.Qty, dec)
	if paid.Cmp(released) > 0 {
		paid.Set(released)
	}
	refund := new(big.Int).Sub(released, paid)

	if err := e.shares.Transfer(fill.AssetID(), fill.Seller(), fill.Buyer(), fill.Qty); err != nil {
		return errors.Wrap(err, "transfer shares")
	}
	if err := e.token.PushTransfer(fill.Seller(), paid); err != nil {
		return errors.Wrap(err, "pay seller")
	}
	if refund.Sign() > 0 {
		if err := e.token.PushTransfer(fill.Buyer(), refund); err != nil {
			return errors.Wrap(err, "refund buyer")
		}
	}

	t := Trade{
		AssetID:   fill.AssetID(),
		BidID:     bid.TradeID,
		AskID:     fill.Ask().TradeID,
		Buyer:     fill.Buyer(),
		Seller:    fill.Seller(),
		TakerSide: fill.Taker.Side,
		Price:     fill.Price,
		Amount:    fill.Qty,
		Paid:      paid,
		Refund:    refund,
		Time:      tx.at.UnixNano(),
	}
	e.trades.assign(&t)
	tx.trades = append(tx.trades, t)
	tx.emit(Event{
		Type:    EventTrade,
		Side:    fill.Taker.Side,
		TradeID: fill.Taker.TradeID,
		AssetID: t.AssetID,
		Creator: fill.Taker.Creator,
		Price:   t.Price,
		Amount:  t.Amount,
		Filled:  t.Amount,
		Trade:   &t,
	})
	return nil
}
