package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSelectsBestCrossingMaker(t *testing.T) {
	tests := []struct {
		name      string
		makerSide Side
		makers    []uint64 // prices, inserted in order
		taker     uint64
		wantMaker uint64 // trade id
		wantFill  bool
	}{
		{"bid takes lowest ask", Ask, []uint64{700, 500, 600}, 650, 1, true},
		{"bid ignores asks above its price", Ask, []uint64{700, 800}, 650, 0, false},
		{"bid crosses ask at equal price", Ask, []uint64{650}, 650, 0, true},
		{"ask takes highest bid", Bid, []uint64{400, 600, 500}, 450, 1, true},
		{"ask ignores bids below its price", Bid, []uint64{400, 300}, 450, 0, false},
		{"tie goes to earliest order", Ask, []uint64{600, 500, 500}, 650, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBook(onlyAsset1)
			for _, p := range tt.makers {
				_, err := b.Insert(tt.makerSide, bob, 1, p, 10)
				require.NoError(t, err)
			}
			taker, err := b.Insert(tt.makerSide.Opposite(), alice, 1, tt.taker, 4)
			require.NoError(t, err)

			fill, ok, err := b.Match(taker.Side, taker.TradeID)
			require.NoError(t, err)
			require.Equal(t, tt.wantFill, ok)
			if !ok {
				assert.Equal(t, len(tt.makers), b.Len(tt.makerSide))
				return
			}
			assert.Equal(t, tt.wantMaker, fill.Maker.TradeID)
			assert.Equal(t, fill.Maker.Price, fill.Price, "settles at the maker's price")
			assert.Equal(t, uint64(4), fill.Qty)
		})
	}
}

func TestMatchIgnoresOtherAssets(t *testing.T) {
	b := NewBook(AssetCheckerFunc(func(uint64) bool { return true }))
	b.Insert(Ask, bob, 2, 100, 10)
	taker, _ := b.Insert(Bid, alice, 1, 900, 10)

	_, ok, err := b.Match(Bid, taker.TradeID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchFillsOneMakerOnly(t *testing.T) {
	b := NewBook(onlyAsset1)
	b.Insert(Ask, bob, 1, 500, 3)
	b.Insert(Ask, bob, 1, 510, 3)
	taker, _ := b.Insert(Bid, alice, 1, 600, 10)

	fill, ok, err := b.Match(Bid, taker.TradeID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, uint64(3), fill.Qty)
	assert.True(t, fill.MakerDone())
	assert.False(t, fill.TakerDone())

	rest, err := b.Get(Bid, taker.TradeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rest.Amount, "no sweep into the second ask")

	asks := b.OrdersByAsset(1, Ask)
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(1), asks[0].TradeID)
}

func TestMatchRemovesBothWhenEqual(t *testing.T) {
	b := NewBook(onlyAsset1)
	b.Insert(Bid, alice, 1, 550, 100)
	taker, _ := b.Insert(Ask, bob, 1, 550, 100)

	fill, ok, err := b.Match(Ask, taker.TradeID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fill.TakerDone())
	assert.True(t, fill.MakerDone())
	assert.Equal(t, 0, b.Len(Bid))
	assert.Equal(t, 0, b.Len(Ask))
	assert.Equal(t, alice, fill.Buyer())
	assert.Equal(t, bob, fill.Seller())
}

func TestMatchRevert(t *testing.T) {
	b := NewBook(onlyAsset1)
	b.Insert(Bid, alice, 1, 550, 200)
	b.Finalise()

	snap := b.Snapshot()
	taker, _ := b.Insert(Ask, bob, 1, 450, 100)
	_, ok, _ := b.Match(Ask, taker.TradeID)
	require.True(t, ok)
	b.RevertToSnapshot(snap)

	bid, err := b.Get(Bid, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bid.Amount)
	assert.Equal(t, uint64(0), b.NextID(Ask))
}

func TestLevels(t *testing.T) {
	b := NewBook(onlyAsset1)
	b.Insert(Bid, alice, 1, 500, 10)
	b.Insert(Bid, bob, 1, 520, 5)
	b.Insert(Bid, bob, 1, 500, 1)

	assert.Equal(t, []PriceLevel{
		{Price: 520, Amount: 5, Orders: 1},
		{Price: 500, Amount: 11, Orders: 2},
	}, b.Levels(1, Bid))
	assert.Empty(t, b.Levels(1, Ask))
}

// BenchmarkMatch measures a crossing check against a deep side
func BenchmarkMatch(b *testing.B) {
	book := NewBook(onlyAsset1)
	for i := 0; i < 1000; i++ {
		book.Insert(Ask, bob, 1, uint64(1000+i), 1_000_000)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap := book.Snapshot()
		taker, err := book.Insert(Bid, alice, 1, 1500, 1)
		if err != nil {
			b.Fatal(err)
		}
		book.Match(Bid, taker.TradeID)
		book.RevertToSnapshot(snap)
	}
}
