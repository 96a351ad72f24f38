package transaction

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/crypto"
)

// RequestType is the kind of signed request
type RequestType string

const (
	TypePlace RequestType = "place" // Bid or ask (signed)
	TypePrice RequestType = "price" // Re-price a resting order (signed)
	TypeClose RequestType = "close" // Cancel a resting order (signed)
)

var ErrInvalidRequest = errors.New("invalid request")

// SignedRequest is the body of every mutating API call. Exactly one payload
// matches Type; Signature is the owner's EIP-712 signature over it.
type SignedRequest struct {
	Type      RequestType         `json:"type"`
	Place     *crypto.PlaceOrder  `json:"place,omitempty"`
	Price     *crypto.UpdatePrice `json:"price,omitempty"`
	Close     *crypto.CloseOrder  `json:"close,omitempty"`
	Signature string              `json:"signature"` // 0x-prefixed, 65 bytes
}

// NewSignedRequest wraps a payload and its signature
func NewSignedRequest(r crypto.Request, sig []byte) (*SignedRequest, error) {
	req := &SignedRequest{Signature: "0x" + common.Bytes2Hex(sig)}
	switch p := r.(type) {
	case *crypto.PlaceOrder:
		req.Type, req.Place = TypePlace, p
	case *crypto.UpdatePrice:
		req.Type, req.Price = TypePrice, p
	case *crypto.CloseOrder:
		req.Type, req.Close = TypeClose, p
	default:
		return nil, errors.Wrapf(ErrInvalidRequest, "unsupported payload %T", r)
	}
	return req, nil
}

// Payload returns the typed message for Type
func (r *SignedRequest) Payload() (crypto.Request, error) {
	switch r.Type {
	case TypePlace:
		if r.Place != nil {
			return r.Place, nil
		}
	case TypePrice:
		if r.Price != nil {
			return r.Price, nil
		}
	case TypeClose:
		if r.Close != nil {
			return r.Close, nil
		}
	case "":
		return nil, errors.Wrap(ErrInvalidRequest, "missing request type")
	default:
		return nil, errors.Wrapf(ErrInvalidRequest, "unknown request type: %s", r.Type)
	}
	return nil, errors.Wrapf(ErrInvalidRequest, "%s request requires %s payload", r.Type, r.Type)
}

// Validate performs structural checks only; amounts and prices are left to
// the exchange so rejections carry its errors
func (r *SignedRequest) Validate() error {
	p, err := r.Payload()
	if err != nil {
		return err
	}
	if r.Signature == "" {
		return errors.Wrap(ErrInvalidRequest, "missing signature")
	}
	if p.Signer() == (common.Address{}) {
		return errors.Wrap(ErrInvalidRequest, "missing owner")
	}
	if side := sideOf(p); side != crypto.SideBid && side != crypto.SideAsk {
		return errors.Wrapf(ErrInvalidRequest, "invalid side %d", side)
	}
	return nil
}

func sideOf(p crypto.Request) uint8 {
	switch v := p.(type) {
	case *crypto.PlaceOrder:
		return v.Side
	case *crypto.UpdatePrice:
		return v.Side
	case *crypto.CloseOrder:
		return v.Side
	}
	return 0xff
}

// Serialize converts the request to JSON bytes
func (r *SignedRequest) Serialize() ([]byte, error) {
	return json.Marshal(r)
}

// Parse decodes and validates a JSON request body
func Parse(data []byte) (*SignedRequest, error) {
	var req SignedRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "decode: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Example body:
//   {
//     "type": "place",
//     "place": {
//       "assetId": 1,
//       "side": 0,
//       "price": 550,
//       "amount": 200,
//       "nonce": 42,
//       "owner": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
//     },
//     "signature": "0x1234567890abcdef..."
//   }
