package orderbook

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAsset   = errors.New("invalid asset")
	ErrInvalidPrice   = errors.New("invalid price")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidTradeID = errors.New("invalid trade id")
	ErrInvalidSide    = errors.New("invalid side")
)

// Side selects one of the two independent order collections
type Side int8

const (
	Bid Side = iota // resting buy, funds escrowed
	Ask             // resting sell, shares locked
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Opposite returns the side a taker on s matches against
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// IsBid mirrors the isBid flag used by callers
func (s Side) IsBid() bool { return s == Bid }

// SideFromBool maps an isBid flag to a Side
func SideFromBool(isBid bool) Side {
	if isBid {
		return Bid
	}
	return Ask
}

// ParseSide accepts "bid"/"buy" and "ask"/"sell" in any case
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	default:
		return 0, errors.Wrapf(ErrInvalidSide, "%q", s)
	}
}

func (s Side) valid() bool { return s == Bid || s == Ask }

func (s Side) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, errors.Wrapf(ErrInvalidSide, "%d", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Order is a resting bid or ask
type Order struct {
	TradeID uint64         `json:"tradeId"` // unique within its side, never reused
	Side    Side           `json:"side"`
	Creator common.Address `json:"creator"` // only the creator may re-price or close
	AssetID uint64         `json:"assetId"`
	Price   uint64         `json:"price"`  // thousandths of a token unit per share, > 0
	Amount  uint64         `json:"amount"` // remaining unfilled shares, > 0 while resting
}

// Crosses reports whether o, as a taker at its price, trades against maker
func (o *Order) Crosses(maker *Order) bool {
	if o.AssetID != maker.AssetID || o.Side == maker.Side {
		return false
	}
	if o.Side == Bid {
		return maker.Price <= o.Price
	}
	return maker.Price >= o.Price
}
