package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Custodian is the ledger seen from one address that holds escrowed funds.
// Pulls spend the allowance users grant to that address; pushes pay out of
// its balance.
type Custodian struct {
	*Ledger
	addr common.Address
}

// Spender binds the ledger to the custodian address
func (l *Ledger) Spender(addr common.Address) *Custodian {
	return &Custodian{Ledger: l, addr: addr}
}

// Address returns the custodian address
func (c *Custodian) Address() common.Address { return c.addr }

// Balance returns the funds currently held in custody
func (c *Custodian) Balance() *big.Int { return c.BalanceOf(c.addr) }

// PullTransfer moves amount from from to to using from's allowance to the custodian
func (c *Custodian) PullTransfer(from, to common.Address, amount *big.Int) error {
	return c.TransferFrom(c.addr, from, to, amount)
}

// PushTransfer pays amount from custody to to
func (c *Custodian) PushTransfer(to common.Address, amount *big.Int) error {
	return c.Transfer(c.addr, to, amount)
}
