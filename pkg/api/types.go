package api

import (
	"github.com/uhyunpark/votebook/pkg/app/core/asset"
	"github.com/uhyunpark/votebook/pkg/app/core/exchange"
	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/app/core/shares"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// AssetInfo represents an asset and its trading status
type AssetInfo struct {
	ID          uint64 `json:"id"`
	Creator     string `json:"creator"`
	URI         string `json:"uri"`
	TotalShares uint64 `json:"totalShares"`
	Status      string `json:"status"` // "Pending", "Enabled", "Disabled"
	Tradable    bool   `json:"tradable"`
}

func assetInfo(a asset.Asset) AssetInfo {
	return AssetInfo{
		ID:          a.ID,
		Creator:     a.Creator.Hex(),
		URI:         a.URI,
		TotalShares: a.TotalShares,
		Status:      a.Status.String(),
		Tradable:    a.Tradable(),
	}
}

// AssetDetail adds depth and escrow to AssetInfo
type AssetDetail struct {
	AssetInfo
	Bids      []orderbook.PriceLevel `json:"bids"`     // Sorted high to low
	Asks      []orderbook.PriceLevel `json:"asks"`     // Sorted low to high
	Escrowed  string                 `json:"escrowed"` // Payment token base units held for bids
	Timestamp int64                  `json:"timestamp"`
}

// OrderInfo represents a resting order
type OrderInfo struct {
	TradeID uint64 `json:"tradeId"`
	Side    string `json:"side"` // "bid" or "ask"
	Creator string `json:"creator"`
	AssetID uint64 `json:"assetId"`
	Price   uint64 `json:"price"`  // Payment units per 1000 shares
	Amount  uint64 `json:"amount"` // Remaining shares
}

func orderInfo(o orderbook.Order) OrderInfo {
	return OrderInfo{
		TradeID: o.TradeID,
		Side:    o.Side.String(),
		Creator: o.Creator.Hex(),
		AssetID: o.AssetID,
		Price:   o.Price,
		Amount:  o.Amount,
	}
}

func orderInfos(orders []orderbook.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	return out
}

// TradeInfo represents a settled fill
type TradeInfo struct {
	ID        uint64 `json:"id"`
	AssetID   uint64 `json:"assetId"`
	BidID     uint64 `json:"bidId"`
	AskID     uint64 `json:"askId"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	TakerSide string `json:"takerSide"`
	Price     uint64 `json:"price"`
	Amount    uint64 `json:"amount"`
	Paid      string `json:"paid"`
	Refund    string `json:"refund"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

func tradeInfo(t exchange.Trade) TradeInfo {
	return TradeInfo{
		ID:        t.ID,
		AssetID:   t.AssetID,
		BidID:     t.BidID,
		AskID:     t.AskID,
		Buyer:     t.Buyer.Hex(),
		Seller:    t.Seller.Hex(),
		TakerSide: t.TakerSide.String(),
		Price:     t.Price,
		Amount:    t.Amount,
		Paid:      t.Paid.String(),
		Refund:    t.Refund.String(),
		Timestamp: t.Time / 1e6,
	}
}

// ShareInfo represents one holder's shares of one asset
type ShareInfo struct {
	AssetID  uint64 `json:"assetId"`
	Holder   string `json:"holder"`
	Owned    uint64 `json:"owned"`
	Listed   uint64 `json:"listed"`   // Locked behind resting asks
	Unlisted uint64 `json:"unlisted"` // Free to sell
}

func shareInfo(r shares.Record) ShareInfo {
	return ShareInfo{
		AssetID:  r.AssetID,
		Holder:   r.Holder.Hex(),
		Owned:    r.Owned,
		Listed:   r.Listed,
		Unlisted: r.Unlisted(),
	}
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the envelope for every pushed message
type WSMessage struct {
	Channel string         `json:"channel"` // "asset:1", "account:0x..."
	Event   exchange.Event `json:"event"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["asset:1", "account:0x..."]
}

// ==============================
// REST Request Types
// ==============================

// NOTE: every POST body is a transaction.SignedRequest (EIP-712 signed).
// The caller is the recovered signer, never a field of the body.

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
