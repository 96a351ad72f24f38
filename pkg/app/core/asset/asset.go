package asset

import "github.com/ethereum/go-ethereum/common"

// Status defines whether an asset's shares may be listed on the book
type Status int8

const (
	Pending  Status = iota // Minted, waiting for approval
	Enabled                // Trading enabled
	Disabled               // Trading halted; resting orders may still be re-priced or closed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Enabled:
		return "Enabled"
	case Disabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// Asset is a fractionalized item whose shares ("votes") trade on the book
type Asset struct {
	ID          uint64         // Asset id, assigned from 1
	Creator     common.Address // Minter; receives the initial share supply
	URI         string         // Off-chain metadata location
	TotalShares uint64         // Shares issued at mint
	Status      Status
}

// Tradable reports whether new orders may be placed for the asset
func (a *Asset) Tradable() bool {
	return a.Status == Enabled
}
