package shares

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key prefixes
const prefixShares = "shr:"

// recordKey returns the key for a share record
// Format: "shr:{20-digit asset id}:{address}"
// Example: "shr:00000000000000000001:0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb"
func recordKey(assetID uint64, holder common.Address) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixShares, assetID, holder.Hex()))
}
