// Package amm implements the constant-product liquidity-pool engine: pool
// initialization, liquidity provisioning and removal, and swap execution
// with fee and price-extremes tracking.
//
// Conventions: token0 is the pair's base token and token1 the quote; swap
// prices are truncated token0/token1 ratios; the share unit of account is
// the quote token (adding n shares costs swapPrice*n of token0 and n of
// token1). The swap divisor embeds a fixed 30x input penalty in place of a
// percentage fee.
//
// All arithmetic is checked uint64; overflow, underflow and division by
// zero fail with ErrArithmeticOverflow before any state is touched. Pool
// reserves live in the token ledger's pool-custody balances, so every
// reserve update is matched by a custody transfer.
//
// The engine is not safe for concurrent use; callers serialize access.
package amm

import (
	"errors"
	"math/bits"
	"time"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
)

// FeeFactor is the fixed multiplier applied to the input amount inside the
// swap divisor.
const FeeFactor = 30

var (
	// ErrNoMatchingTradePair is returned when the trade pair is unknown.
	ErrNoMatchingTradePair = errors.New("amm: no matching trade pair")

	// ErrTradePairMethod is returned when the pair is not registered for
	// AMM trading.
	ErrTradePairMethod = errors.New("amm: trade pair method is not amm")

	// ErrNoMatchingPool is returned when the pool is unknown, or when the
	// traded tokens do not belong to the pool's pair.
	ErrNoMatchingPool = errors.New("amm: no matching liquidity pool")

	// ErrBalanceNotEnough is returned when the caller's ledger balance does
	// not cover the required amounts.
	ErrBalanceNotEnough = errors.New("amm: balance is not enough")

	// ErrShareNotEnough is returned when a removal exceeds the caller's
	// recorded share.
	ErrShareNotEnough = errors.New("amm: liquidity share is not enough")

	// ErrPoolTokenNotEnough is returned when the input-side reserve does
	// not strictly exceed the trade amount.
	ErrPoolTokenNotEnough = errors.New("amm: pool token is not enough")

	// ErrArithmeticOverflow is returned when a pool computation would
	// overflow, underflow or divide by zero.
	ErrArithmeticOverflow = errors.New("amm: arithmetic overflow")
)

// TokenLedger is the slice of the token ledger the engine needs. Reserves
// are held as pool-custody balances.
type TokenLedger interface {
	BalanceOf(account model.AccountID, tokenID model.DID) uint64
	FreeBalanceOf(account model.AccountID, tokenID model.DID) uint64
	StaticTransferIn(account model.AccountID, poolID, tokenID model.DID, amount uint64) error
	StaticTransferOut(poolID model.DID, account model.AccountID, tokenID model.DID, amount uint64) error
}

// PairRegistry resolves trade pairs by ID and by token orientation.
type PairRegistry interface {
	Pair(id model.DID) (model.TradePair, bool)
	PairByTokens(base, quote model.DID) (model.TradePair, bool)
}

type shareKey struct {
	Account model.AccountID
	Pool    model.DID
}

// Engine holds all liquidity-pool state.
type Engine struct {
	gen        *did.Generator
	ledger     TokenLedger
	pairs      PairRegistry
	now        func() time.Time
	legacyWrap bool

	nonce   uint64
	pools   map[model.DID]model.LiquidityPool
	poolIDs []model.DID

	providers  map[model.DID][]model.AccountID
	ownedPools map[model.AccountID][]model.DID
	shares     map[shareKey]uint64

	orderIndex  uint64
	orders      map[model.DID]model.AmmOrder
	ownedOrders map[model.AccountID][]model.DID
	poolOrders  map[model.DID][]model.DID
}

// NewEngine returns an empty engine backed by the given collaborators.
func NewEngine(gen *did.Generator, ledger TokenLedger, pairs PairRegistry) *Engine {
	return &Engine{
		gen:         gen,
		ledger:      ledger,
		pairs:       pairs,
		now:         time.Now,
		pools:       make(map[model.DID]model.LiquidityPool),
		providers:   make(map[model.DID][]model.AccountID),
		ownedPools:  make(map[model.AccountID][]model.DID),
		shares:      make(map[shareKey]uint64),
		orders:      make(map[model.DID]model.AmmOrder),
		ownedOrders: make(map[model.AccountID][]model.DID),
		poolOrders:  make(map[model.DID][]model.DID),
	}
}

// SetClock overrides the engine's time source, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetLegacyWraparound switches pool arithmetic to wrap modulo 2^64 instead
// of failing with ErrArithmeticOverflow. With checked arithmetic the swap
// divisor (reserveIn + in - FeeFactor*in) rejects every positive-output
// trade, so the wraparound mode is the one under which the swap formula
// completes: a trade with FeeFactor*in > reserveIn+in wraps the divisor,
// truncates the output reserve to zero and pays out the entire opposite
// reserve. Division by zero still aborts in either mode.
func (e *Engine) SetLegacyWraparound(on bool) { e.legacyWrap = on }

// InitLiquidityPool creates a pool for an AMM trade pair, seeds the reserves
// from the caller's balances and credits the initial share
// (baseAmount / swapPrice) to the caller.
func (e *Engine) InitLiquidityPool(caller model.AccountID, pairID model.DID, baseAmount, quoteAmount uint64) (model.LiquidityPool, error) {
	pair, ok := e.pairs.Pair(pairID)
	if !ok {
		return model.LiquidityPool{}, ErrNoMatchingTradePair
	}
	if pair.Method != model.MethodAMM {
		return model.LiquidityPool{}, ErrTradePairMethod
	}

	k, err := e.mul(baseAmount, quoteAmount)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	price, err := e.div(baseAmount, quoteAmount)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	share, err := e.div(baseAmount, price)
	if err != nil {
		return model.LiquidityPool{}, err
	}

	if e.ledger.BalanceOf(caller, pair.Base) < baseAmount ||
		e.ledger.FreeBalanceOf(caller, pair.Base) < baseAmount {
		return model.LiquidityPool{}, ErrBalanceNotEnough
	}
	if e.ledger.BalanceOf(caller, pair.Quote) < quoteAmount ||
		e.ledger.FreeBalanceOf(caller, pair.Quote) < quoteAmount {
		return model.LiquidityPool{}, ErrBalanceNotEnough
	}

	id, err := e.gen.Next(caller, e.nonce)
	if err != nil {
		return model.LiquidityPool{}, err
	}

	if err := e.ledger.StaticTransferIn(caller, id, pair.Base, baseAmount); err != nil {
		return model.LiquidityPool{}, err
	}
	if err := e.ledger.StaticTransferIn(caller, id, pair.Quote, quoteAmount); err != nil {
		_ = e.ledger.StaticTransferOut(id, caller, pair.Base, baseAmount)
		return model.LiquidityPool{}, err
	}

	pool := model.LiquidityPool{
		ID:               id,
		PairID:           pairID,
		Token0:           pair.Base,
		Token1:           pair.Quote,
		Token0Amount:     baseAmount,
		Token1Amount:     quoteAmount,
		KLast:            k,
		SwapPriceLast:    price,
		SwapPriceHighest: price,
		SwapPriceLowest:  price,
	}
	e.pools[id] = pool
	e.poolIDs = append(e.poolIDs, id)
	e.nonce++

	e.addProvider(id, caller)
	e.addOwnedPool(caller, id)
	e.shares[shareKey{caller, id}] += share
	return pool, nil
}

// AddLiquidity deposits swapPrice*share of token0 and share of token1 from
// the caller into the pool and credits the share.
func (e *Engine) AddLiquidity(caller model.AccountID, poolID model.DID, share uint64) (model.LiquidityPool, error) {
	pool, ok := e.pools[poolID]
	if !ok {
		return model.LiquidityPool{}, ErrNoMatchingPool
	}

	need0, err := e.mul(pool.SwapPriceLast, share)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	need1 := share

	newAmount0, err := e.add(pool.Token0Amount, need0)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	newAmount1, err := e.add(pool.Token1Amount, need1)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	newK, err := e.mul(newAmount0, newAmount1)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	newShare, err := e.add(e.shares[shareKey{caller, poolID}], share)
	if err != nil {
		return model.LiquidityPool{}, err
	}

	if e.ledger.BalanceOf(caller, pool.Token0) < need0 ||
		e.ledger.FreeBalanceOf(caller, pool.Token0) < need0 {
		return model.LiquidityPool{}, ErrBalanceNotEnough
	}
	if e.ledger.BalanceOf(caller, pool.Token1) < need1 ||
		e.ledger.FreeBalanceOf(caller, pool.Token1) < need1 {
		return model.LiquidityPool{}, ErrBalanceNotEnough
	}

	if err := e.ledger.StaticTransferIn(caller, poolID, pool.Token0, need0); err != nil {
		return model.LiquidityPool{}, err
	}
	if err := e.ledger.StaticTransferIn(caller, poolID, pool.Token1, need1); err != nil {
		_ = e.ledger.StaticTransferOut(poolID, caller, pool.Token0, need0)
		return model.LiquidityPool{}, err
	}

	pool.Token0Amount = newAmount0
	pool.Token1Amount = newAmount1
	pool.KLast = newK
	e.pools[poolID] = pool

	e.addProvider(poolID, caller)
	e.addOwnedPool(caller, poolID)
	e.shares[shareKey{caller, poolID}] = newShare
	return pool, nil
}

// Trade swaps haveAmount of tokenHave for tokenWant against the pool. The
// output follows the constant-product formula with the fee baked into the
// divisor:
//
//	newReserveOut = k / (reserveIn + in - FeeFactor*in)
//	out           = reserveOut - newReserveOut
//
// The realized price (token0 per token1) becomes the new last price; the
// highest or lowest watermark moves depending on how it compares to the
// price before the trade. Each successful trade produces an immutable
// AmmOrder record.
func (e *Engine) Trade(caller model.AccountID, poolID, tokenHave model.DID, haveAmount uint64, tokenWant model.DID) (model.AmmOrder, model.LiquidityPool, error) {
	pool, ok := e.pools[poolID]
	if !ok {
		return model.AmmOrder{}, model.LiquidityPool{}, ErrNoMatchingPool
	}

	if !e.pairMatches(pool.PairID, tokenHave, tokenWant) {
		return model.AmmOrder{}, model.LiquidityPool{}, ErrNoMatchingPool
	}

	var reserveIn, reserveOut uint64
	switch tokenHave {
	case pool.Token0:
		reserveIn, reserveOut = pool.Token0Amount, pool.Token1Amount
	default:
		reserveIn, reserveOut = pool.Token1Amount, pool.Token0Amount
	}

	if reserveIn <= haveAmount {
		return model.AmmOrder{}, model.LiquidityPool{}, ErrPoolTokenNotEnough
	}
	if e.ledger.BalanceOf(caller, tokenHave) < haveAmount ||
		e.ledger.FreeBalanceOf(caller, tokenHave) < haveAmount {
		return model.AmmOrder{}, model.LiquidityPool{}, ErrBalanceNotEnough
	}

	newReserveIn, err := e.add(reserveIn, haveAmount)
	if err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}
	fee, err := e.mul(haveAmount, FeeFactor)
	if err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}
	divisor, err := e.sub(newReserveIn, fee)
	if err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}
	newReserveOut, err := e.div(pool.KLast, divisor)
	if err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}
	wantAmount, err := e.sub(reserveOut, newReserveOut)
	if err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}
	newK, err := e.mul(newReserveIn, newReserveOut)
	if err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}

	// Realized price, always as token0 per token1.
	var price uint64
	if tokenHave == pool.Token0 {
		price, err = e.div(haveAmount, wantAmount)
	} else {
		price, err = e.div(wantAmount, haveAmount)
	}
	if err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}

	priceBefore := pool.SwapPriceLast
	if tokenHave == pool.Token0 {
		vol0, verr := e.add(pool.Token0VolumeTotal, haveAmount)
		if verr != nil {
			return model.AmmOrder{}, model.LiquidityPool{}, verr
		}
		vol1, verr := e.add(pool.Token1VolumeTotal, wantAmount)
		if verr != nil {
			return model.AmmOrder{}, model.LiquidityPool{}, verr
		}
		pool.Token0Amount = newReserveIn
		pool.Token1Amount = newReserveOut
		pool.Token0VolumeTotal = vol0
		pool.Token1VolumeTotal = vol1
	} else {
		vol0, verr := e.add(pool.Token0VolumeTotal, wantAmount)
		if verr != nil {
			return model.AmmOrder{}, model.LiquidityPool{}, verr
		}
		vol1, verr := e.add(pool.Token1VolumeTotal, haveAmount)
		if verr != nil {
			return model.AmmOrder{}, model.LiquidityPool{}, verr
		}
		pool.Token1Amount = newReserveIn
		pool.Token0Amount = newReserveOut
		pool.Token0VolumeTotal = vol0
		pool.Token1VolumeTotal = vol1
	}
	pool.KLast = newK
	pool.SwapPriceLast = price
	if price >= priceBefore {
		pool.SwapPriceHighest = price
	} else {
		pool.SwapPriceLowest = price
	}

	if err := e.ledger.StaticTransferIn(caller, poolID, tokenHave, haveAmount); err != nil {
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}
	if err := e.ledger.StaticTransferOut(poolID, caller, tokenWant, wantAmount); err != nil {
		_ = e.ledger.StaticTransferOut(poolID, caller, tokenHave, haveAmount)
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}

	orderID, err := e.gen.Next(caller, e.nonce)
	if err != nil {
		_ = e.ledger.StaticTransferIn(caller, poolID, tokenWant, wantAmount)
		_ = e.ledger.StaticTransferOut(poolID, caller, tokenHave, haveAmount)
		return model.AmmOrder{}, model.LiquidityPool{}, err
	}
	e.nonce++

	order := model.AmmOrder{
		ID:              orderID,
		PoolID:          poolID,
		Owner:           caller,
		TokenHave:       tokenHave,
		TokenHaveAmount: haveAmount,
		TokenWant:       tokenWant,
		TokenWantAmount: wantAmount,
		SwapPrice:       price,
		Index:           e.orderIndex,
		Timestamp:       e.now(),
	}
	e.orders[orderID] = order
	e.ownedOrders[caller] = append(e.ownedOrders[caller], orderID)
	e.poolOrders[poolID] = append(e.poolOrders[poolID], orderID)
	e.orderIndex++

	e.pools[poolID] = pool
	return order, pool, nil
}

// RemoveLiquidity withdraws swapPrice*share of token0 and share of token1
// from the pool back to the caller and debits the share.
func (e *Engine) RemoveLiquidity(caller model.AccountID, poolID model.DID, share uint64) (model.LiquidityPool, error) {
	pool, ok := e.pools[poolID]
	if !ok {
		return model.LiquidityPool{}, ErrNoMatchingPool
	}

	owned := e.shares[shareKey{caller, poolID}]
	if owned < share {
		return model.LiquidityPool{}, ErrShareNotEnough
	}

	out0, err := e.mul(pool.SwapPriceLast, share)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	out1 := share

	newAmount0, err := e.sub(pool.Token0Amount, out0)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	newAmount1, err := e.sub(pool.Token1Amount, out1)
	if err != nil {
		return model.LiquidityPool{}, err
	}
	newK, err := e.mul(newAmount0, newAmount1)
	if err != nil {
		return model.LiquidityPool{}, err
	}

	if err := e.ledger.StaticTransferOut(poolID, caller, pool.Token0, out0); err != nil {
		return model.LiquidityPool{}, err
	}
	if err := e.ledger.StaticTransferOut(poolID, caller, pool.Token1, out1); err != nil {
		_ = e.ledger.StaticTransferIn(caller, poolID, pool.Token0, out0)
		return model.LiquidityPool{}, err
	}

	pool.Token0Amount = newAmount0
	pool.Token1Amount = newAmount1
	pool.KLast = newK
	e.pools[poolID] = pool
	e.shares[shareKey{caller, poolID}] = owned - share
	return pool, nil
}

// Pool returns the pool record for id.
func (e *Engine) Pool(id model.DID) (model.LiquidityPool, bool) {
	p, ok := e.pools[id]
	return p, ok
}

// Pools returns all pools in creation order.
func (e *Engine) Pools() []model.LiquidityPool {
	out := make([]model.LiquidityPool, 0, len(e.poolIDs))
	for _, id := range e.poolIDs {
		out = append(out, e.pools[id])
	}
	return out
}

// Providers returns the provider accounts of a pool in first-seen order.
func (e *Engine) Providers(poolID model.DID) []model.AccountID {
	ps := e.providers[poolID]
	out := make([]model.AccountID, len(ps))
	copy(out, ps)
	return out
}

// OwnedPools returns the pools an account has provided liquidity to.
func (e *Engine) OwnedPools(account model.AccountID) []model.DID {
	ids := e.ownedPools[account]
	out := make([]model.DID, len(ids))
	copy(out, ids)
	return out
}

// ShareOf returns the account's recorded share in a pool.
func (e *Engine) ShareOf(account model.AccountID, poolID model.DID) uint64 {
	return e.shares[shareKey{account, poolID}]
}

// Order returns the swap record for id.
func (e *Engine) Order(id model.DID) (model.AmmOrder, bool) {
	o, ok := e.orders[id]
	return o, ok
}

// OrdersByOwner returns an account's swap records in execution order.
func (e *Engine) OrdersByOwner(account model.AccountID) []model.AmmOrder {
	return e.collectOrders(e.ownedOrders[account])
}

// OrdersByPool returns a pool's swap records in execution order.
func (e *Engine) OrdersByPool(poolID model.DID) []model.AmmOrder {
	return e.collectOrders(e.poolOrders[poolID])
}

func (e *Engine) collectOrders(ids []model.DID) []model.AmmOrder {
	out := make([]model.AmmOrder, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.orders[id])
	}
	return out
}

func (e *Engine) pairMatches(pairID, tokenHave, tokenWant model.DID) bool {
	if p, ok := e.pairs.PairByTokens(tokenHave, tokenWant); ok && p.ID == pairID {
		return true
	}
	if p, ok := e.pairs.PairByTokens(tokenWant, tokenHave); ok && p.ID == pairID {
		return true
	}
	return false
}

func (e *Engine) addProvider(poolID model.DID, account model.AccountID) {
	for _, p := range e.providers[poolID] {
		if p == account {
			return
		}
	}
	e.providers[poolID] = append(e.providers[poolID], account)
}

func (e *Engine) addOwnedPool(account model.AccountID, poolID model.DID) {
	for _, id := range e.ownedPools[account] {
		if id == poolID {
			return
		}
	}
	e.ownedPools[account] = append(e.ownedPools[account], poolID)
}

func (e *Engine) add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 && !e.legacyWrap {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func (e *Engine) sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 && !e.legacyWrap {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

func (e *Engine) mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 && !e.legacyWrap {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// Division by zero aborts in both modes.
func (e *Engine) div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrArithmeticOverflow
	}
	return a / b, nil
}
