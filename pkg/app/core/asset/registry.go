package asset

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/votebook/pkg/storage"
)

var (
	ErrNotFound          = errors.New("asset not found")
	ErrInvalidTransition = errors.New("invalid asset status transition")
)

const (
	prefixAsset = "asset:"
	keyNextID   = "asset-next"
)

// assetKey returns the key for an asset
// Format: "asset:{20-digit id}" (zero-padded for ordered scans)
func assetKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixAsset, id))
}

// Registry manages all tradable assets in a thread-safe manner
// Supports registration, lookup and status updates
type Registry struct {
	mu     sync.RWMutex
	assets map[uint64]*Asset
	nextID uint64
	store  *storage.PebbleStore // nil = memory only
}

// NewRegistry creates an empty asset registry. Ids start at 1.
func NewRegistry(store *storage.PebbleStore) *Registry {
	return &Registry{
		assets: make(map[uint64]*Asset),
		nextID: 1,
		store:  store,
	}
}

// Load restores persisted assets
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var next uint64
	if ok, err := r.store.GetJSON([]byte(keyNextID), &next); err != nil {
		return err
	} else if ok {
		r.nextID = next
	}

	return r.store.ScanPrefix([]byte(prefixAsset), func(_, value []byte) error {
		var a Asset
		if err := json.Unmarshal(value, &a); err != nil {
			return err
		}
		r.assets[a.ID] = &a
		return nil
	})
}

// Register adds a new asset in Pending status and returns its id
func (r *Registry) Register(creator common.Address, uri string, totalShares uint64) (*Asset, error) {
	if totalShares == 0 {
		return nil, errors.New("total shares must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a := &Asset{
		ID:          r.nextID,
		Creator:     creator,
		URI:         uri,
		TotalShares: totalShares,
		Status:      Pending,
	}
	r.nextID++
	r.assets[a.ID] = a

	if err := r.persistLocked(a); err != nil {
		delete(r.assets, a.ID)
		r.nextID--
		return nil, err
	}
	cp := *a
	return &cp, nil
}

// Get retrieves a copy of an asset by id
func (r *Registry) Get(id uint64) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return Asset{}, errors.Wrapf(ErrNotFound, "asset %d", id)
	}
	return *a, nil
}

// List returns all assets ordered by id
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enable opens an asset for trading
func (r *Registry) Enable(id uint64) error {
	return r.setStatus(id, Enabled)
}

// Disable halts new orders for an asset
func (r *Registry) Disable(id uint64) error {
	return r.setStatus(id, Disabled)
}

func (r *Registry) setStatus(id uint64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "asset %d", id)
	}

	// Pending → Enabled, Enabled ↔ Disabled. Nothing returns to Pending.
	if status == Pending || (a.Status == Pending && status == Disabled) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", a.Status, status)
	}

	prev := a.Status
	a.Status = status
	if err := r.persistLocked(a); err != nil {
		a.Status = prev
		return err
	}
	return nil
}

// IsAssetTradable reports whether new orders may be placed for id
func (r *Registry) IsAssetTradable(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	return ok && a.Tradable()
}

// Exists checks if an asset is registered
func (r *Registry) Exists(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.assets[id]
	return ok
}

// Count returns the total number of registered assets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

func (r *Registry) persistLocked(a *Asset) error {
	if r.store == nil {
		return nil
	}
	b := r.store.NewBatch()
	if err := b.SetJSON(assetKey(a.ID), a); err != nil {
		b.Close()
		return err
	}
	if err := b.SetJSON([]byte(keyNextID), r.nextID); err != nil {
		b.Close()
		return err
	}
	return b.Commit()
}
