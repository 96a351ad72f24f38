// Package price converts order prices into payment-token amounts.
//
// A price is an integer number of thousandths of one payment-token unit per
// share: price 550 means 0.55 tokens per share. Token amounts are raw integer
// units scaled by the token's decimals, so with 18 decimals one share at price
// 550 costs 550 * 10^18 / 1000 raw units.
package price

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
)

// PerShareDenominator is the number of price units in one token unit.
const PerShareDenominator = 1000

var denominator = big.NewInt(PerShareDenominator)

// Unit returns 10^decimals, the raw amount of one whole token.
func Unit(decimals uint8) *big.Int {
	return math.BigPow(10, int64(decimals))
}

// FundsOwed returns price * amount * 10^decimals / 1000, truncated.
func FundsOwed(price, amount uint64, decimals uint8) *big.Int {
	out := new(big.Int).SetUint64(price)
	out.Mul(out, new(big.Int).SetUint64(amount))
	out.Mul(out, Unit(decimals))
	return out.Quo(out, denominator)
}

// Released returns how much escrow an order of the given price frees when its
// remaining amount drops from before to after.
// Computing the difference of two escrows, rather than FundsOwed of the
// filled quantity, keeps the custodian balance equal to the sum of resting
// escrows even when 10^decimals is not a multiple of 1000.
func Released(price, before, after uint64, decimals uint8) *big.Int {
	out := FundsOwed(price, before, decimals)
	return out.Sub(out, FundsOwed(price, after, decimals))
}

// Reprice returns the escrow change of moving remaining shares from oldPrice
// to newPrice. Positive means the creator owes more, negative means a refund.
func Reprice(oldPrice, newPrice, remaining uint64, decimals uint8) *big.Int {
	out := FundsOwed(newPrice, remaining, decimals)
	return out.Sub(out, FundsOwed(oldPrice, remaining, decimals))
}
