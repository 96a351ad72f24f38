package main

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/votebook/pkg/app/core/asset"
	"github.com/uhyunpark/votebook/pkg/app/core/exchange"
	"github.com/uhyunpark/votebook/pkg/app/core/price"
	"github.com/uhyunpark/votebook/pkg/app/core/shares"
	"github.com/uhyunpark/votebook/pkg/app/core/token"
	"github.com/uhyunpark/votebook/pkg/crypto"
)

// Well-known local devnet keys (anvil/hardhat accounts 0 and 1). Public;
// never fund them anywhere real.
var devKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
}

const (
	devShares = 1000
	devFunds  = 1_000_000
)

// devSeed registers and enables one asset owned by the first dev account,
// gives it the share supply, and funds every dev account with an unlimited
// allowance to the custodian. It does nothing when assets already exist.
func devSeed(ex *exchange.Exchange, registry *asset.Registry, shareLedger *shares.Ledger, payment *token.Ledger, sugar *zap.SugaredLogger) error {
	if registry.Count() > 0 {
		sugar.Infow("dev_seed_skipped", "assets", registry.Count())
		return nil
	}

	accounts := make([]common.Address, len(devKeys))
	for i, k := range devKeys {
		s, err := crypto.FromPrivateKeyHex(k)
		if err != nil {
			return err
		}
		accounts[i] = s.Address()
	}

	a, err := registry.Register(accounts[0], "ipfs://votebook-dev-asset", devShares)
	if err != nil {
		return err
	}
	if err := registry.Enable(a.ID); err != nil {
		return err
	}

	funds := new(big.Int).Mul(big.NewInt(devFunds), price.Unit(payment.Decimals()))
	unlimited := new(big.Int).Sub(new(big.Int).Lsh(common.Big1, 256), common.Big1)
	err = ex.Admin("dev_seed", func() error {
		if err := shareLedger.Mint(a.ID, accounts[0], a.TotalShares); err != nil {
			return err
		}
		for _, addr := range accounts {
			if err := payment.Mint(addr, funds); err != nil {
				return err
			}
			if err := payment.Approve(addr, ex.Custodian(), unlimited); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, addr := range accounts {
		sugar.Infow("dev_account_funded", "address", addr.Hex(), "balance", payment.Format(payment.BalanceOf(addr)))
	}
	sugar.Infow("dev_asset_seeded", "asset_id", a.ID, "creator", accounts[0].Hex(), "shares", a.TotalShares)
	return nil
}
