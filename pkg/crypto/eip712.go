package crypto

import (
	"math/big"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrSignerMismatch is returned when a signature recovers to an address
// other than the request's owner
var ErrSignerMismatch = errors.New("signature does not match request owner")

// Side values as signed; they match orderbook.Side
const (
	SideBid uint8 = 0
	SideAsk uint8 = 1
)

// Domain is the EIP-712 domain separator. It pins signatures to one
// deployment so they cannot be replayed against another.
type Domain struct {
	Name              string         // Protocol name
	Version           string         // Protocol version
	ChainID           *big.Int       // 1337 for local dev
	VerifyingContract common.Address // Custodian address
}

// DefaultDomain returns the local development domain
func DefaultDomain() Domain {
	return Domain{
		Name:    "Votebook",
		Version: "1",
		ChainID: big.NewInt(1337),
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Request is a typed message users sign to act on the book
type Request interface {
	PrimaryType() string
	Fields() []apitypes.Type
	Message() apitypes.TypedDataMessage
	Signer() common.Address
	RequestNonce() uint64
}

// PlaceOrder signs a bid or ask placement
type PlaceOrder struct {
	AssetID uint64         `json:"assetId"`
	Side    uint8          `json:"side"` // 0 = bid, 1 = ask
	Price   uint64         `json:"price"`
	Amount  uint64         `json:"amount"`
	Nonce   uint64         `json:"nonce"`
	Owner   common.Address `json:"owner"`
}

func (*PlaceOrder) PrimaryType() string { return "PlaceOrder" }

func (*PlaceOrder) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "assetId", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "price", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
}

func (r *PlaceOrder) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"assetId": u64(r.AssetID),
		"side":    u64(uint64(r.Side)),
		"price":   u64(r.Price),
		"amount":  u64(r.Amount),
		"nonce":   u64(r.Nonce),
		"owner":   r.Owner.Hex(),
	}
}

func (r *PlaceOrder) Signer() common.Address { return r.Owner }
func (r *PlaceOrder) RequestNonce() uint64   { return r.Nonce }

// UpdatePrice signs a re-price of a resting order
type UpdatePrice struct {
	TradeID  uint64         `json:"tradeId"`
	Side     uint8          `json:"side"`
	NewPrice uint64         `json:"newPrice"`
	Nonce    uint64         `json:"nonce"`
	Owner    common.Address `json:"owner"`
}

func (*UpdatePrice) PrimaryType() string { return "UpdatePrice" }

func (*UpdatePrice) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "tradeId", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "newPrice", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
}

func (r *UpdatePrice) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"tradeId":  u64(r.TradeID),
		"side":     u64(uint64(r.Side)),
		"newPrice": u64(r.NewPrice),
		"nonce":    u64(r.Nonce),
		"owner":    r.Owner.Hex(),
	}
}

func (r *UpdatePrice) Signer() common.Address { return r.Owner }
func (r *UpdatePrice) RequestNonce() uint64   { return r.Nonce }

// CloseOrder signs a cancellation
type CloseOrder struct {
	TradeID uint64         `json:"tradeId"`
	Side    uint8          `json:"side"`
	Nonce   uint64         `json:"nonce"`
	Owner   common.Address `json:"owner"`
}

func (*CloseOrder) PrimaryType() string { return "CloseOrder" }

func (*CloseOrder) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "tradeId", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
}

func (r *CloseOrder) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"tradeId": u64(r.TradeID),
		"side":    u64(uint64(r.Side)),
		"nonce":   u64(r.Nonce),
		"owner":   r.Owner.Hex(),
	}
}

func (r *CloseOrder) Signer() common.Address { return r.Owner }
func (r *CloseOrder) RequestNonce() uint64   { return r.Nonce }

// apitypes parses integers from decimal strings
func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// TypedData builds the eth_signTypedData_v4 payload for r. It marshals to
// the JSON wallets expect.
func (d Domain) TypedData(r Request) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":  domainType,
			r.PrimaryType(): r.Fields(),
		},
		PrimaryType: r.PrimaryType(),
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: r.Message(),
	}
}

// Hash returns keccak256("\x19\x01" || domainSeparator || hashStruct(r))
func (d Domain) Hash(r Request) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(d.TypedData(r))
	if err != nil {
		return nil, errors.Wrapf(err, "hash %s", r.PrimaryType())
	}
	return hash, nil
}

// Sign signs r with s
func (d Domain) Sign(s *Signer, r Request) ([]byte, error) {
	hash, err := d.Hash(r)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

// Recover returns the address that signed r
func (d Domain) Recover(r Request, signature []byte) (common.Address, error) {
	hash, err := d.Hash(r)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// Verify checks that r was signed by its owner
func (d Domain) Verify(r Request, signature []byte) error {
	addr, err := d.Recover(r, signature)
	if err != nil {
		return err
	}
	if addr != r.Signer() {
		return errors.Wrapf(ErrSignerMismatch, "recovered %s, owner %s", addr.Hex(), r.Signer().Hex())
	}
	return nil
}
