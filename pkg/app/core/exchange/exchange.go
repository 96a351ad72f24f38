// Package exchange runs the public order operations. Each call moves funds
// and shares in step with the book: it reserves escrow, places or amends the
// order, settles at most one fill and commits everything in one Pebble batch.
// A failed call is rolled back in all three components.
package exchange

import (
	"math/big"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/app/core/price"
	"github.com/uhyunpark/votebook/pkg/app/core/shares"
	"github.com/uhyunpark/votebook/pkg/storage"
	"github.com/uhyunpark/votebook/pkg/util"
)

var ErrNoPermission = errors.New("caller is not the order creator")

// Journaled state can be rolled back to a snapshot and written into a batch
type Journaled interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Flush(batch *storage.Batch) error
	Finalise()
}

// ShareLedger locks, unlocks and transfers shares per (asset, holder)
type ShareLedger interface {
	Journaled
	Record(assetID uint64, holder common.Address) shares.Record
	Lock(assetID uint64, holder common.Address, amount uint64) error
	Unlock(assetID uint64, holder common.Address, amount uint64) error
	Transfer(assetID uint64, from, to common.Address, amount uint64) error
	IsAssetTradable(assetID uint64) bool
}

// PaymentToken moves payment funds in and out of custody
type PaymentToken interface {
	Journaled
	Address() common.Address // the custodian holding bid escrow
	Decimals() uint8
	PullTransfer(from, to common.Address, amount *big.Int) error
	PushTransfer(to common.Address, amount *big.Int) error
}

// Option configures an Exchange
type Option func(*Exchange)

// WithStore persists every committed change to store
func WithStore(store *storage.PebbleStore) Option {
	return func(e *Exchange) { e.store = store }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Exchange) { e.logger = logger }
}

func WithClock(clock util.Clock) Option {
	return func(e *Exchange) { e.clock = clock }
}

// WithEventHandler registers fn to receive events of committed calls, in
// commit order. fn runs after the exchange lock is released.
func WithEventHandler(fn func(Event)) Option {
	return func(e *Exchange) { e.handlers = append(e.handlers, fn) }
}

type Exchange struct {
	mu sync.RWMutex

	book   *orderbook.Book
	shares ShareLedger
	token  PaymentToken

	store  *storage.PebbleStore // nil = memory only
	logger *zap.SugaredLogger
	clock  util.Clock

	trades   *tradeLog
	handlers []func(Event)
	emitMu   sync.Mutex // keeps handler delivery in commit order
}

// New wires the book to its collaborators
func New(book *orderbook.Book, shareLedger ShareLedger, token PaymentToken, opts ...Option) *Exchange {
	e := &Exchange{
		book:   book,
		shares: shareLedger,
		token:  token,
		logger: zap.NewNop().Sugar(),
		clock:  util.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.trades = newTradeLog(e.store)
	return e
}

// Load restores the trade counter. Book, shares and token are loaded by
// their owners before New.
func (e *Exchange) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trades.load()
}

// Custodian returns the address holding bid escrow
func (e *Exchange) Custodian() common.Address { return e.token.Address() }

// Decimals returns the payment token's decimals
func (e *Exchange) Decimals() uint8 { return e.token.Decimals() }

// apply runs fn atomically. On error every change fn made to the book, the
// share ledger and the token is reverted. On success the changes are flushed
// into one batch and committed, then events are delivered.
func (e *Exchange) apply(fn func(tx *txn) error) ([]Event, error) {
	e.mu.Lock()

	bookSnap := e.book.Snapshot()
	sharesSnap := e.shares.Snapshot()
	tokenSnap := e.token.Snapshot()
	tradeSnap := e.trades.snapshot()

	tx := &txn{at: e.clock.Now()}
	err := fn(tx)
	if err == nil {
		err = e.commit(tx)
	}
	if err != nil {
		e.token.RevertToSnapshot(tokenSnap)
		e.shares.RevertToSnapshot(sharesSnap)
		e.book.RevertToSnapshot(bookSnap)
		e.trades.revert(tradeSnap)
		e.mu.Unlock()
		return nil, err
	}

	e.book.Finalise()
	e.shares.Finalise()
	e.token.Finalise()
	e.trades.finalise(tx.trades)

	// take the emit lock before releasing state so handlers see commit order
	e.emitMu.Lock()
	e.mu.Unlock()
	for _, ev := range tx.events {
		for _, h := range e.handlers {
			h(ev)
		}
	}
	e.emitMu.Unlock()
	return tx.events, nil
}

func (e *Exchange) commit(tx *txn) error {
	if e.store == nil {
		return nil
	}
	batch := e.store.NewBatch()
	flush := func() error {
		if err := e.book.Flush(batch); err != nil {
			return errors.Wrap(err, "flush book")
		}
		if err := e.shares.Flush(batch); err != nil {
			return errors.Wrap(err, "flush shares")
		}
		if err := e.token.Flush(batch); err != nil {
			return errors.Wrap(err, "flush token")
		}
		return e.trades.flush(batch, tx.trades)
	}
	if err := flush(); err != nil {
		batch.Close()
		return err
	}
	return batch.Commit()
}

// Admin runs fn with the same atomicity as an order operation. cmd/node
// uses it to mint shares and tokens and to set allowances.
func (e *Exchange) Admin(op string, fn func() error) error {
	_, err := e.apply(func(*txn) error { return fn() })
	if err != nil {
		e.logger.Warnw("admin_failed", "op", op, "error", err)
		return err
	}
	e.logger.Infow("admin_applied", "op", op)
	return nil
}

// View runs fn under the read lock so it sees committed state only
func (e *Exchange) View(fn func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn()
}

// OrdersByAsset returns resting orders of one asset and side in creation order
func (e *Exchange) OrdersByAsset(assetID uint64, side orderbook.Side) []orderbook.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.OrdersByAsset(assetID, side)
}

// OrdersByCreator returns resting orders of one creator and side in creation order
func (e *Exchange) OrdersByCreator(creator common.Address, side orderbook.Side) []orderbook.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.OrdersByCreator(creator, side)
}

// Order returns one resting order or orderbook.ErrInvalidTradeID
func (e *Exchange) Order(side orderbook.Side, tradeID uint64) (orderbook.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Get(side, tradeID)
}

// NextID returns the id the next order on side will get
func (e *Exchange) NextID(side orderbook.Side) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.NextID(side)
}

// Levels returns the aggregated depth of one asset and side
func (e *Exchange) Levels(assetID uint64, side orderbook.Side) []orderbook.PriceLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Levels(assetID, side)
}

// ShareRecord returns a holder's share record
func (e *Exchange) ShareRecord(assetID uint64, holder common.Address) shares.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.shares.Record(assetID, holder)
}

// Escrowed returns the funds held for the resting bids of an asset
func (e *Exchange) Escrowed(assetID uint64) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.escrowed(assetID)
}

func (e *Exchange) escrowed(assetID uint64) *big.Int {
	total := new(big.Int)
	for _, o := range e.book.OrdersByAsset(assetID, orderbook.Bid) {
		total.Add(total, price.FundsOwed(o.Price, o.Amount, e.token.Decimals()))
	}
	return total
}

// TotalEscrowed returns the funds held for every resting bid
func (e *Exchange) TotalEscrowed() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	total := new(big.Int)
	e.book.Each(orderbook.Bid, func(o orderbook.Order) {
		total.Add(total, price.FundsOwed(o.Price, o.Amount, e.token.Decimals()))
	})
	return total
}
