package token

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/votebook/pkg/storage"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	recipient = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	vault     = common.HexToAddress("0x0000000000000000000000000000000000000E5C")
)

func TestMintAndTransfer(t *testing.T) {
	l := NewLedger("USDC", 6)
	require.NoError(t, l.Mint(owner, big.NewInt(1000)))

	require.NoError(t, l.Transfer(owner, recipient, big.NewInt(300)))
	assert.Equal(t, big.NewInt(700), l.BalanceOf(owner))
	assert.Equal(t, big.NewInt(300), l.BalanceOf(recipient))
	assert.Equal(t, big.NewInt(1000), l.TotalSupply())

	err := l.Transfer(recipient, owner, big.NewInt(301))
	assert.True(t, errors.Is(err, ErrInsufficientBalance), "err = %v", err)
	assert.True(t, errors.Is(l.Transfer(owner, recipient, big.NewInt(-1)), ErrNegativeAmount))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewLedger("USDC", 6)
	l.Mint(owner, big.NewInt(1000))
	l.Approve(owner, vault, big.NewInt(400))

	require.NoError(t, l.TransferFrom(vault, owner, vault, big.NewInt(250)))
	assert.Equal(t, big.NewInt(150), l.Allowance(owner, vault))
	assert.Equal(t, big.NewInt(250), l.BalanceOf(vault))

	err := l.TransferFrom(vault, owner, vault, big.NewInt(151))
	assert.True(t, errors.Is(err, ErrInsufficientAllowance), "err = %v", err)

	l.Approve(owner, vault, big.NewInt(5000))
	err = l.TransferFrom(vault, owner, vault, big.NewInt(751))
	assert.True(t, errors.Is(err, ErrInsufficientBalance), "err = %v", err)
	assert.Equal(t, big.NewInt(5000), l.Allowance(owner, vault), "failed pull leaves allowance untouched")
}

func TestCustodian(t *testing.T) {
	l := NewLedger("USDC", 6)
	c := l.Spender(vault)
	l.Mint(owner, big.NewInt(100))
	l.Approve(owner, vault, big.NewInt(100))

	require.NoError(t, c.PullTransfer(owner, vault, big.NewInt(60)))
	assert.Equal(t, big.NewInt(60), c.Balance())

	require.NoError(t, c.PushTransfer(recipient, big.NewInt(45)))
	assert.Equal(t, big.NewInt(15), c.Balance())
	assert.Equal(t, big.NewInt(45), l.BalanceOf(recipient))
	assert.Equal(t, uint8(6), c.Decimals())

	err := c.PushTransfer(recipient, big.NewInt(16))
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestRevertToSnapshot(t *testing.T) {
	l := NewLedger("USDC", 6)
	l.Mint(owner, big.NewInt(100))
	l.Approve(owner, vault, big.NewInt(100))
	l.Finalise()

	snap := l.Snapshot()
	l.TransferFrom(vault, owner, vault, big.NewInt(70))
	l.Mint(recipient, big.NewInt(5))
	l.RevertToSnapshot(snap)

	assert.Equal(t, big.NewInt(100), l.BalanceOf(owner))
	assert.Equal(t, big.NewInt(0), l.BalanceOf(vault))
	assert.Equal(t, big.NewInt(100), l.Allowance(owner, vault))
	assert.Equal(t, big.NewInt(100), l.TotalSupply())
	assert.Empty(t, l.dirtyBalances)
	assert.False(t, l.dirtySupply)
}

func TestFlushAndLoad(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()

	l := NewLedger("USDC", 6)
	l.Mint(owner, big.NewInt(1000))
	l.Approve(owner, vault, big.NewInt(600))
	l.TransferFrom(vault, owner, vault, big.NewInt(600))

	batch := store.NewBatch()
	require.NoError(t, l.Flush(batch))
	require.NoError(t, batch.Commit())
	l.Finalise()

	reloaded := NewLedger("USDC", 6)
	require.NoError(t, reloaded.Load(store))
	assert.Equal(t, big.NewInt(400), reloaded.BalanceOf(owner))
	assert.Equal(t, big.NewInt(600), reloaded.BalanceOf(vault))
	assert.Equal(t, big.NewInt(0), reloaded.Allowance(owner, vault))
	assert.Equal(t, big.NewInt(1000), reloaded.TotalSupply())
}

func TestFormat(t *testing.T) {
	l := NewLedger("USDC", 6)
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 USDC"},
		{1, "0.000001 USDC"},
		{12_500_000, "12.5 USDC"},
		{3_000_000, "3 USDC"},
		{-1_500_000, "-1.5 USDC"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.Format(big.NewInt(tt.in)))
	}
}
