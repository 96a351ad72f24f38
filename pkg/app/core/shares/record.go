package shares

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Record tracks one holder's shares of one asset
// Owned counts every share held; Listed is the part locked behind resting asks
type Record struct {
	AssetID uint64         `json:"assetId"`
	Holder  common.Address `json:"holder"`
	Owned   uint64         `json:"owned"`
	Listed  uint64         `json:"listed"`
}

// Unlisted returns shares free to sell or withdraw
// Formula: Owned - Listed
func (r Record) Unlisted() uint64 {
	return r.Owned - r.Listed
}

// Validate checks 0 <= Listed <= Owned
func (r Record) Validate() error {
	if r.Listed > r.Owned {
		return errors.Newf("listed %d exceeds owned %d for %s on asset %d", r.Listed, r.Owned, r.Holder.Hex(), r.AssetID)
	}
	return nil
}

func (r Record) empty() bool { return r.Owned == 0 && r.Listed == 0 }
