package orderbook

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
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000000")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000000")
)

// onlyAsset1 treats asset 1 as enabled and everything else as unknown
var onlyAsset1 = AssetCheckerFunc(func(id uint64) bool { return id == 1 })

func TestInsertValidation(t *testing.T) {
	tests := []struct {
		name    string
		assetID uint64
		price   uint64
		amount  uint64
		wantErr error
	}{
		{"valid order", 1, 550, 200, nil},
		{"asset not tradable", 2, 550, 200, ErrInvalidAsset},
		{"zero price", 1, 0, 200, ErrInvalidPrice},
		{"zero amount", 1, 550, 0, ErrInvalidAmount},
		{"asset checked before price", 2, 0, 0, ErrInvalidAsset},
		{"price checked before amount", 1, 0, 0, ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBook(onlyAsset1)
			_, err := b.Insert(Bid, alice, tt.assetID, tt.price, tt.amount)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 1, b.Len(Bid))
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "err = %v, want %v", err, tt.wantErr)
			assert.Equal(t, 0, b.Len(Bid))
			assert.Equal(t, uint64(0), b.NextID(Bid), "rejected insert must not consume an id")
		})
	}
}

func TestSidesHaveIndependentCounters(t *testing.T) {
	b := NewBook(onlyAsset1)

	bid0, _ := b.Insert(Bid, alice, 1, 500, 10)
	bid1, _ := b.Insert(Bid, alice, 1, 510, 10)
	ask0, _ := b.Insert(Ask, bob, 1, 900, 10)

	assert.Equal(t, uint64(0), bid0.TradeID)
	assert.Equal(t, uint64(1), bid1.TradeID)
	assert.Equal(t, uint64(0), ask0.TradeID)
	assert.Equal(t, uint64(2), b.NextID(Bid))
	assert.Equal(t, uint64(1), b.NextID(Ask))
}

func TestRemovedIDsAreNeverReused(t *testing.T) {
	b := NewBook(onlyAsset1)
	o, _ := b.Insert(Bid, alice, 1, 500, 10)
	require.NoError(t, b.Remove(Bid, o.TradeID))
	b.Finalise()

	_, err := b.Get(Bid, o.TradeID)
	assert.True(t, errors.Is(err, ErrInvalidTradeID))
	assert.True(t, errors.Is(b.Remove(Bid, o.TradeID), ErrInvalidTradeID))

	next, _ := b.Insert(Bid, alice, 1, 500, 10)
	assert.Equal(t, uint64(1), next.TradeID)
}

func TestSetAmountZeroRemoves(t *testing.T) {
	b := NewBook(onlyAsset1)
	o, _ := b.Insert(Ask, bob, 1, 700, 5)

	require.NoError(t, b.SetAmount(Ask, o.TradeID, 2))
	got, _ := b.Get(Ask, o.TradeID)
	assert.Equal(t, uint64(2), got.Amount)

	require.NoError(t, b.SetAmount(Ask, o.TradeID, 0))
	_, err := b.Get(Ask, o.TradeID)
	assert.True(t, errors.Is(err, ErrInvalidTradeID))
	assert.Empty(t, b.OrdersByAsset(1, Ask))
}

func TestSetPrice(t *testing.T) {
	b := NewBook(onlyAsset1)
	o, _ := b.Insert(Ask, bob, 1, 700, 5)

	require.NoError(t, b.SetPrice(Ask, o.TradeID, 650))
	got, _ := b.Get(Ask, o.TradeID)
	assert.Equal(t, uint64(650), got.Price)

	assert.True(t, errors.Is(b.SetPrice(Ask, o.TradeID, 0), ErrInvalidPrice))
	assert.True(t, errors.Is(b.SetPrice(Bid, o.TradeID, 650), ErrInvalidTradeID))
}

func TestQueriesKeepCreationOrder(t *testing.T) {
	assets := AssetCheckerFunc(func(id uint64) bool { return id == 1 || id == 2 })
	b := NewBook(assets)

	b.Insert(Bid, alice, 1, 300, 1) // 0
	b.Insert(Bid, bob, 1, 900, 1)   // 1
	b.Insert(Bid, alice, 2, 100, 1) // 2
	b.Insert(Bid, alice, 1, 600, 1) // 3
	b.Remove(Bid, 0)

	ids := func(orders []Order) []uint64 {
		out := make([]uint64, len(orders))
		for i, o := range orders {
			out[i] = o.TradeID
		}
		return out
	}

	assert.Equal(t, []uint64{1, 3}, ids(b.OrdersByAsset(1, Bid)))
	assert.Equal(t, []uint64{2, 3}, ids(b.OrdersByCreator(alice, Bid)))
	assert.Empty(t, b.OrdersByAsset(1, Ask))

	b.Finalise()
	assert.Equal(t, []uint64{1, 3}, ids(b.OrdersByAsset(1, Bid)))
	assert.Equal(t, []uint64{2, 3}, ids(b.OrdersByCreator(alice, Bid)))
}

func TestRevertRestoresBook(t *testing.T) {
	b := NewBook(onlyAsset1)
	keep, _ := b.Insert(Bid, alice, 1, 500, 10)
	b.Finalise()

	snap := b.Snapshot()
	b.SetPrice(Bid, keep.TradeID, 800)
	b.SetAmount(Bid, keep.TradeID, 3)
	b.Insert(Bid, bob, 1, 400, 7)
	b.Insert(Ask, bob, 1, 900, 7)
	b.Remove(Bid, keep.TradeID)
	b.RevertToSnapshot(snap)

	got, err := b.Get(Bid, keep.TradeID)
	require.NoError(t, err)
	assert.Equal(t, keep, got)
	assert.Equal(t, uint64(1), b.NextID(Bid), "reverted insert must give its id back")
	assert.Equal(t, uint64(0), b.NextID(Ask))
	assert.Equal(t, 1, b.Len(Bid))
	assert.Equal(t, 0, b.Len(Ask))
	assert.Len(t, b.OrdersByCreator(bob, Bid), 0)
	assert.Len(t, b.OrdersByAsset(1, Bid), 1)
}

func TestFlushAndLoad(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()

	b := NewBook(onlyAsset1)
	b.Insert(Bid, alice, 1, 550, 200)
	b.Insert(Bid, bob, 1, 560, 10)
	b.Insert(Ask, bob, 1, 900, 5)
	b.SetAmount(Bid, 0, 150)
	b.Remove(Bid, 1)

	batch := store.NewBatch()
	require.NoError(t, b.Flush(batch))
	require.NoError(t, batch.Commit())
	b.Finalise()

	reloaded := NewBook(onlyAsset1)
	require.NoError(t, reloaded.Load(store))

	assert.Equal(t, uint64(2), reloaded.NextID(Bid))
	assert.Equal(t, uint64(1), reloaded.NextID(Ask))
	assert.Equal(t, b.OrdersByAsset(1, Bid), reloaded.OrdersByAsset(1, Bid))
	assert.Equal(t, b.OrdersByAsset(1, Ask), reloaded.OrdersByAsset(1, Ask))

	_, err = reloaded.Get(Bid, 1)
	assert.True(t, errors.Is(err, ErrInvalidTradeID))

	o, _ := reloaded.Insert(Bid, alice, 1, 1, 1)
	assert.Equal(t, uint64(2), o.TradeID)
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"bid": Bid, "BUY": Bid, "ask": Ask, "Sell": Ask} {
		got, err := ParseSide(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSide("both")
	assert.True(t, errors.Is(err, ErrInvalidSide))
}
