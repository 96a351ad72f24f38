package shares

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/votebook/pkg/storage"
)

var (
	seller = common.HexToAddress("0x5E11E50000000000000000000000000000000000")
	buyer  = common.HexToAddress("0xB0B1000000000000000000000000000000000000")
)

type tradable map[uint64]bool

func (t tradable) IsAssetTradable(id uint64) bool { return t[id] }

func checkInvariant(t *testing.T, r Record) {
	t.Helper()
	require.NoError(t, r.Validate())
	assert.Equal(t, r.Owned-r.Listed, r.Unlisted())
}

func TestLockUnlock(t *testing.T) {
	l := NewLedger(tradable{1: true})
	require.NoError(t, l.Mint(1, seller, 100))

	require.NoError(t, l.Lock(1, seller, 60))
	r := l.Record(1, seller)
	assert.Equal(t, uint64(100), r.Owned)
	assert.Equal(t, uint64(60), r.Listed)
	assert.Equal(t, uint64(40), r.Unlisted())
	checkInvariant(t, r)

	err := l.Lock(1, seller, 41)
	assert.True(t, errors.Is(err, ErrInsufficientUnlistedShares), "err = %v", err)

	require.NoError(t, l.Unlock(1, seller, 60))
	assert.Equal(t, uint64(100), l.Record(1, seller).Unlisted())

	err = l.Unlock(1, seller, 1)
	assert.True(t, errors.Is(err, ErrInsufficientListedShares), "err = %v", err)
}

func TestTransferMovesListedToBuyerUnlisted(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(1, seller, 100)
	l.Lock(1, seller, 100)

	require.NoError(t, l.Transfer(1, seller, buyer, 30))

	s := l.Record(1, seller)
	assert.Equal(t, uint64(70), s.Owned)
	assert.Equal(t, uint64(70), s.Listed)
	checkInvariant(t, s)

	b := l.Record(1, buyer)
	assert.Equal(t, uint64(30), b.Owned)
	assert.Equal(t, uint64(30), b.Unlisted())
	checkInvariant(t, b)

	assert.Equal(t, uint64(100), l.Total(1))

	err := l.Transfer(1, buyer, seller, 1)
	assert.True(t, errors.Is(err, ErrInsufficientListedShares), "unlisted shares cannot be transferred")
}

func TestSelfTransferUnlocks(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(1, seller, 10)
	l.Lock(1, seller, 10)

	require.NoError(t, l.Transfer(1, seller, seller, 4))
	r := l.Record(1, seller)
	assert.Equal(t, uint64(10), r.Owned)
	assert.Equal(t, uint64(6), r.Listed)
}

func TestMintRejectsZero(t *testing.T) {
	l := NewLedger(nil)
	assert.True(t, errors.Is(l.Mint(1, seller, 0), ErrZeroAmount))
}

func TestIsAssetTradable(t *testing.T) {
	l := NewLedger(tradable{1: true})
	assert.True(t, l.IsAssetTradable(1))
	assert.False(t, l.IsAssetTradable(2))
	assert.False(t, NewLedger(nil).IsAssetTradable(1))
}

func TestRevertToSnapshot(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(1, seller, 100)
	l.Finalise()

	snap := l.Snapshot()
	l.Lock(1, seller, 50)
	l.Transfer(1, seller, buyer, 20)
	l.RevertToSnapshot(snap)

	assert.Equal(t, Record{AssetID: 1, Holder: seller, Owned: 100}, l.Record(1, seller))
	assert.Equal(t, Record{AssetID: 1, Holder: buyer}, l.Record(1, buyer))
	assert.Len(t, l.Holders(1), 1)
	assert.Empty(t, l.dirty)
}

func TestHoldersAndHoldings(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(2, seller, 5)
	l.Mint(1, seller, 5)
	l.Mint(1, buyer, 7)

	holdings := l.Holdings(seller)
	require.Len(t, holdings, 2)
	assert.Equal(t, uint64(1), holdings[0].AssetID)
	assert.Equal(t, uint64(2), holdings[1].AssetID)

	assert.Len(t, l.Holders(1), 2)
}

func TestFlushAndLoad(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()

	l := NewLedger(nil)
	l.Mint(1, seller, 100)
	l.Lock(1, seller, 40)
	l.Transfer(1, seller, buyer, 10)

	batch := store.NewBatch()
	require.NoError(t, l.Flush(batch))
	require.NoError(t, batch.Commit())
	l.Finalise()

	reloaded := NewLedger(nil)
	require.NoError(t, reloaded.Load(store))
	assert.Equal(t, l.Record(1, seller), reloaded.Record(1, seller))
	assert.Equal(t, l.Record(1, buyer), reloaded.Record(1, buyer))
	assert.Equal(t, uint64(100), reloaded.Total(1))
}
