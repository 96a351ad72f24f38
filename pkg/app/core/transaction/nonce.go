package transaction

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/storage"
)

var ErrNonceTooLow = errors.New("nonce too low")

const prefixNonce = "nonce:"

func nonceKey(addr common.Address) []byte {
	return []byte(prefixNonce + addr.Hex())
}

// NonceStore tracks the last nonce used by each address. Nonces must
// strictly increase; gaps are allowed.
type NonceStore struct {
	mu    sync.Mutex
	last  map[common.Address]uint64
	store *storage.PebbleStore // nil = memory only
}

func NewNonceStore(store *storage.PebbleStore) *NonceStore {
	return &NonceStore{
		last:  make(map[common.Address]uint64),
		store: store,
	}
}

// Load restores persisted nonces
func (n *NonceStore) Load() error {
	if n.store == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.store.ScanPrefix([]byte(prefixNonce), func(key, value []byte) error {
		hex := strings.TrimPrefix(string(key), prefixNonce)
		if !common.IsHexAddress(hex) {
			return errors.Newf("bad nonce key %q", key)
		}
		var nonce uint64
		if err := json.Unmarshal(value, &nonce); err != nil {
			return errors.Wrapf(err, "decode nonce %q", key)
		}
		n.last[common.HexToAddress(hex)] = nonce
		return nil
	})
}

// Last returns the last nonce used by addr
func (n *NonceStore) Last(addr common.Address) (uint64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.last[addr]
	return v, ok
}

// Use consumes nonce for addr. It fails if nonce is not above the last one.
func (n *NonceStore) Use(addr common.Address, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if last, ok := n.last[addr]; ok && nonce <= last {
		return errors.Wrapf(ErrNonceTooLow, "%s: got %d, last %d", addr.Hex(), nonce, last)
	}

	if n.store != nil {
		batch := n.store.NewBatch()
		if err := batch.SetJSON(nonceKey(addr), nonce); err != nil {
			batch.Close()
			return err
		}
		if err := batch.Commit(); err != nil {
			return err
		}
	}
	n.last[addr] = nonce
	return nil
}
