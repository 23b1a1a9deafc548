// Package orderbook implements the limit-order book: order creation and
// cancellation, price-ordered linked lists of resting orders per trade
// pair, ring-buffer staging queues for pending admission, and the batch
// matching engine that crosses them.
//
// Order amounts are quote-token notionals; creating an order freezes that
// amount of the pair's quote token regardless of side. Orders are staged
// into a side-specific ring buffer at creation and enter the book when the
// matching engine drains the queues.
//
// The book is not safe for concurrent use; callers serialize access.
package orderbook

import (
	"errors"
	"math"
	"math/bits"
	"time"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
)

var (
	// ErrNoMatchingTradePair is returned when the trade pair is unknown.
	ErrNoMatchingTradePair = errors.New("orderbook: no matching trade pair")

	// ErrBoundsCheckFailed is returned when price or amount is out of
	// bounds, or the caller's quote balance does not cover price*amount.
	ErrBoundsCheckFailed = errors.New("orderbook: bounds check failed")

	// ErrNoMatchingOrder is returned when the order ID is unknown.
	ErrNoMatchingOrder = errors.New("orderbook: no matching order")

	// ErrCanOnlyCancelOwnOrder is returned when the caller does not own the
	// order being canceled.
	ErrCanOnlyCancelOwnOrder = errors.New("orderbook: can only cancel own order")

	// ErrCanOnlyCancelNotFinishedOrder is returned when the order is
	// already filled or canceled.
	ErrCanOnlyCancelNotFinishedOrder = errors.New("orderbook: can only cancel not finished order")
)

// TokenLedger is the slice of the token ledger the book needs. Escrow is
// the quote-token freeze taken at order creation; settlement moves funds
// between the two owners with plain transfers.
type TokenLedger interface {
	BalanceOf(account model.AccountID, tokenID model.DID) uint64
	FreeBalanceOf(account model.AccountID, tokenID model.DID) uint64
	FrozenBalanceOf(account model.AccountID, tokenID model.DID) uint64
	EnsureFreeBalance(account model.AccountID, tokenID model.DID, amount uint64) error
	Freeze(account model.AccountID, tokenID model.DID, amount uint64) error
	Unfreeze(account model.AccountID, tokenID model.DID, amount uint64) error
	Transfer(caller model.AccountID, tokenID model.DID, to model.AccountID, amount uint64, memo string) error
}

// PairRegistry resolves trade pairs and receives fill stats.
type PairRegistry interface {
	Pair(id model.DID) (model.TradePair, bool)
	RecordFill(id model.DID, price, quoteVolume uint64) error
}

type ownerPair struct {
	Owner model.AccountID
	Pair  model.DID
}

// Book holds all order-book state across trade pairs. The two staging
// queues are global, shared by every pair, exactly one per side.
type Book struct {
	gen    *did.Generator
	ledger TokenLedger
	pairs  PairRegistry
	now    func() time.Time

	nonce      uint64
	orderIndex uint32

	orders    map[model.DID]model.LimitOrder
	idByIndex map[uint32]model.DID

	ownedOpened map[ownerPair][]model.DID
	ownedClosed map[ownerPair][]model.DID
	pairOrders  map[model.DID][]model.DID

	books     map[model.DID]*priceList
	buyQueue  *stagingQueue
	sellQueue *stagingQueue
}

// NewBook returns an empty book backed by the given collaborators.
func NewBook(gen *did.Generator, ledger TokenLedger, pairs PairRegistry) *Book {
	return &Book{
		gen:         gen,
		ledger:      ledger,
		pairs:       pairs,
		now:         time.Now,
		orders:      make(map[model.DID]model.LimitOrder),
		idByIndex:   make(map[uint32]model.DID),
		ownedOpened: make(map[ownerPair][]model.DID),
		ownedClosed: make(map[ownerPair][]model.DID),
		pairOrders:  make(map[model.DID][]model.DID),
		books:       make(map[model.DID]*priceList),
		buyQueue:    newStagingQueue(),
		sellQueue:   newStagingQueue(),
	}
}

// SetClock overrides the book's time source, for tests.
func (b *Book) SetClock(now func() time.Time) { b.now = now }

// CreateLimitOrder validates and freezes the quote escrow, records the
// order with its full amount remaining, and stages it into the side's ring
// buffer for the next matching round.
func (b *Book) CreateLimitOrder(caller model.AccountID, pairID model.DID, side model.OrderSide, price, amount uint64) (model.LimitOrder, error) {
	pair, ok := b.pairs.Pair(pairID)
	if !ok {
		return model.LimitOrder{}, ErrNoMatchingTradePair
	}

	if price == 0 || price == math.MaxUint64 || amount == 0 {
		return model.LimitOrder{}, ErrBoundsCheckFailed
	}
	hi, notional := bits.Mul64(amount, price)
	if hi != 0 || b.ledger.BalanceOf(caller, pair.Quote) < notional {
		return model.LimitOrder{}, ErrBoundsCheckFailed
	}
	if err := b.ledger.EnsureFreeBalance(caller, pair.Quote, amount); err != nil {
		return model.LimitOrder{}, err
	}
	if err := b.ledger.Freeze(caller, pair.Quote, amount); err != nil {
		return model.LimitOrder{}, err
	}

	id, err := b.gen.Next(caller, b.nonce)
	if err != nil {
		_ = b.ledger.Unfreeze(caller, pair.Quote, amount)
		return model.LimitOrder{}, err
	}
	b.nonce++

	order := model.LimitOrder{
		ID:             id,
		PairID:         pairID,
		Owner:          caller,
		Price:          price,
		Amount:         amount,
		CreatedAt:      b.now(),
		RemainedAmount: amount,
		Side:           side,
		Status:         model.OrderCreated,
		Index:          b.orderIndex,
	}
	b.orders[id] = order
	b.idByIndex[b.orderIndex] = id
	b.orderIndex++

	b.stage(order)

	key := ownerPair{caller, pairID}
	b.ownedOpened[key] = append([]model.DID{id}, b.ownedOpened[key]...)
	b.pairOrders[pairID] = append(b.pairOrders[pairID], id)
	return order, nil
}

func (b *Book) stage(order model.LimitOrder) {
	q := b.sellQueue
	if order.Side == model.Buy {
		q = b.buyQueue
	}
	t := q.transient()
	defer t.Close()
	t.Push(model.StagedOrder{OrderIndex: order.Index, Live: true})
}

// CancelLimitOrder cancels a not-finished order owned by the caller,
// removes it from its price level if it is resting, and unfreezes the
// remaining quote escrow.
func (b *Book) CancelLimitOrder(caller model.AccountID, orderID model.DID) (model.LimitOrder, error) {
	order, ok := b.orders[orderID]
	if !ok {
		return model.LimitOrder{}, ErrNoMatchingOrder
	}
	if order.Owner != caller {
		return model.LimitOrder{}, ErrCanOnlyCancelOwnOrder
	}
	if order.Finished() {
		return model.LimitOrder{}, ErrCanOnlyCancelNotFinishedOrder
	}
	pair, ok := b.pairs.Pair(order.PairID)
	if !ok {
		return model.LimitOrder{}, ErrNoMatchingTradePair
	}

	if book, ok := b.books[order.PairID]; ok && book.contains(order.Price, orderID) {
		book.removeOrder(order.Price, orderID, order.RemainedAmount, order.Side)
	}

	order.Status = model.OrderCanceled
	b.orders[orderID] = order
	b.closeOrder(order)

	if err := b.ledger.Unfreeze(caller, pair.Quote, order.RemainedAmount); err != nil {
		return model.LimitOrder{}, err
	}
	return order, nil
}

// closeOrder moves an order from the opened to the closed list of its
// (owner, pair).
func (b *Book) closeOrder(order model.LimitOrder) {
	key := ownerPair{order.Owner, order.PairID}
	opened := b.ownedOpened[key]
	for i, id := range opened {
		if id == order.ID {
			b.ownedOpened[key] = append(opened[:i], opened[i+1:]...)
			break
		}
	}
	for _, id := range b.ownedClosed[key] {
		if id == order.ID {
			return
		}
	}
	b.ownedClosed[key] = append([]model.DID{order.ID}, b.ownedClosed[key]...)
}

// Order returns the order record for id.
func (b *Book) Order(id model.DID) (model.LimitOrder, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// OpenedOrders returns an account's open orders on a pair, newest first.
func (b *Book) OpenedOrders(owner model.AccountID, pairID model.DID) []model.LimitOrder {
	return b.collect(b.ownedOpened[ownerPair{owner, pairID}])
}

// ClosedOrders returns an account's finished orders on a pair, newest
// first.
func (b *Book) ClosedOrders(owner model.AccountID, pairID model.DID) []model.LimitOrder {
	return b.collect(b.ownedClosed[ownerPair{owner, pairID}])
}

// OrdersByPair returns every order ever created on a pair in creation
// order.
func (b *Book) OrdersByPair(pairID model.DID) []model.LimitOrder {
	return b.collect(b.pairOrders[pairID])
}

func (b *Book) collect(ids []model.DID) []model.LimitOrder {
	out := make([]model.LimitOrder, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.orders[id])
	}
	return out
}

// DepthLevel is one price level of the book as seen from outside.
type DepthLevel struct {
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
	Orders int    `json:"orders"`
}

// Depth returns the resting buy levels (best first, descending price) and
// sell levels (best first, ascending price) of a pair.
func (b *Book) Depth(pairID model.DID) (buys, sells []DepthLevel) {
	book, ok := b.books[pairID]
	if !ok {
		return nil, nil
	}
	for key := book.bestKey(model.Buy); !isSentinel(key); {
		node := book.nodes[key]
		buys = append(buys, DepthLevel{Price: node.key.price, Amount: node.buyAmount, Orders: len(node.orders)})
		key = node.prev
	}
	for key := book.bestKey(model.Sell); !isSentinel(key); {
		node := book.nodes[key]
		sells = append(sells, DepthLevel{Price: node.key.price, Amount: node.sellAmount, Orders: len(node.orders)})
		key = node.next
	}
	return buys, sells
}

// PruneSide drains finished orders from every level of one side of a
// pair's book, unlinking levels that empty out. Levels holding an
// unfinished order are left as they are.
func (b *Book) PruneSide(pairID model.DID, side model.OrderSide) {
	book, ok := b.books[pairID]
	if !ok {
		return
	}
	key := book.bestKey(side)
	for !isSentinel(key) {
		node := book.nodes[key]
		next := node.prev
		if side == model.Sell {
			next = node.next
		}
		b.pruneLevel(book, node, side)
		key = next
	}
}

func (b *Book) pruneLevel(book *priceList, node *priceLevel, side model.OrderSide) {
	kept := node.orders[:0]
	for _, id := range node.orders {
		order, ok := b.orders[id]
		if ok && !order.Finished() {
			kept = append(kept, id)
		}
	}
	node.orders = kept
	if len(node.orders) == 0 {
		book.removeLevel(node.key)
	}
}

func (b *Book) pairBook(pairID model.DID) *priceList {
	book, ok := b.books[pairID]
	if !ok {
		book = newPriceList()
		b.books[pairID] = book
	}
	return book
}
