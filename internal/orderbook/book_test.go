package orderbook

import (
	"errors"
	"testing"
	"time"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
	"github.com/dnft/swap-engine/internal/token"
	"github.com/dnft/swap-engine/internal/tradepair"
)

type testEnv struct {
	ledger *token.Ledger
	pairs  *tradepair.Registry
	book   *Book

	base  model.DID
	quote model.DID
	pair  model.TradePair
}

// newTestEnv issues a base and a quote token owned by alice and registers
// an order-book pair over them.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gen := did.NewGeneratorWithSeed([32]byte{4})
	ledger := token.NewLedger(gen)
	pairs := tradepair.NewRegistry(gen, ledger)
	book := NewBook(gen, ledger, pairs)
	book.SetClock(func() time.Time { return time.Unix(1700000000, 0).UTC() })

	baseTok, err := ledger.Issue("alice", "BASE", 1_000_000)
	if err != nil {
		t.Fatalf("issue base: %v", err)
	}
	quoteTok, err := ledger.Issue("alice", "QUOTE", 1_000_000)
	if err != nil {
		t.Fatalf("issue quote: %v", err)
	}
	pair, err := pairs.Create("alice", baseTok.ID, quoteTok.ID, model.MethodOrderBook)
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	return &testEnv{
		ledger: ledger,
		pairs:  pairs,
		book:   book,
		base:   baseTok.ID,
		quote:  quoteTok.ID,
		pair:   pair,
	}
}

// fund moves quote and base from alice to an account.
func (env *testEnv) fund(t *testing.T, account model.AccountID, baseAmount, quoteAmount uint64) {
	t.Helper()
	if baseAmount > 0 {
		if err := env.ledger.Transfer("alice", env.base, account, baseAmount, ""); err != nil {
			t.Fatalf("fund %s base: %v", account, err)
		}
	}
	if quoteAmount > 0 {
		if err := env.ledger.Transfer("alice", env.quote, account, quoteAmount, ""); err != nil {
			t.Fatalf("fund %s quote: %v", account, err)
		}
	}
}

func (env *testEnv) createOrder(t *testing.T, owner model.AccountID, side model.OrderSide, price, amount uint64) model.LimitOrder {
	t.Helper()
	order, err := env.book.CreateLimitOrder(owner, env.pair.ID, side, price, amount)
	if err != nil {
		t.Fatalf("CreateLimitOrder(%s %s %d@%d): %v", owner, side, amount, price, err)
	}
	return order
}

func TestCreateLimitOrder(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)

	order := env.createOrder(t, "bob", model.Buy, 10, 50)

	if order.RemainedAmount != 50 {
		t.Errorf("RemainedAmount = %d, want 50 (the full amount)", order.RemainedAmount)
	}
	if order.Status != model.OrderCreated {
		t.Errorf("Status = %v, want created", order.Status)
	}
	if order.Index != 0 {
		t.Errorf("Index = %d, want 0", order.Index)
	}

	// The quote escrow is frozen.
	if frozen := env.ledger.FrozenBalanceOf("bob", env.quote); frozen != 50 {
		t.Errorf("frozen quote = %d, want 50", frozen)
	}
	if free := env.ledger.FreeBalanceOf("bob", env.quote); free != 550 {
		t.Errorf("free quote = %d, want 550", free)
	}

	opened := env.book.OpenedOrders("bob", env.pair.ID)
	if len(opened) != 1 || opened[0].ID != order.ID {
		t.Errorf("opened orders = %v", opened)
	}

	if v, ok := env.book.buyQueue.oldest(); !ok || v.OrderIndex != order.Index {
		t.Errorf("staged = %+v, %v", v, ok)
	}
}

func TestCreateLimitOrderErrors(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)

	if _, err := env.book.CreateLimitOrder("bob", model.DID{9}, model.Buy, 10, 5); !errors.Is(err, ErrNoMatchingTradePair) {
		t.Errorf("unknown pair: got %v, want ErrNoMatchingTradePair", err)
	}
	if _, err := env.book.CreateLimitOrder("bob", env.pair.ID, model.Buy, 0, 5); !errors.Is(err, ErrBoundsCheckFailed) {
		t.Errorf("zero price: got %v, want ErrBoundsCheckFailed", err)
	}
	if _, err := env.book.CreateLimitOrder("bob", env.pair.ID, model.Buy, 10, 0); !errors.Is(err, ErrBoundsCheckFailed) {
		t.Errorf("zero amount: got %v, want ErrBoundsCheckFailed", err)
	}
	// Balance must cover price*amount, not only the frozen amount.
	if _, err := env.book.CreateLimitOrder("bob", env.pair.ID, model.Buy, 100, 10); !errors.Is(err, ErrBoundsCheckFailed) {
		t.Errorf("balance below notional: got %v, want ErrBoundsCheckFailed", err)
	}
	if _, err := env.book.CreateLimitOrder("carol", env.pair.ID, model.Buy, 10, 5); !errors.Is(err, ErrBoundsCheckFailed) {
		t.Errorf("unfunded caller: got %v, want ErrBoundsCheckFailed", err)
	}
	if frozen := env.ledger.FrozenBalanceOf("bob", env.quote); frozen != 0 {
		t.Errorf("failed creates froze funds: %d", frozen)
	}
}

func TestCancelLimitOrderRestoresEscrow(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)

	order := env.createOrder(t, "bob", model.Buy, 10, 50)

	canceled, err := env.book.CancelLimitOrder("bob", order.ID)
	if err != nil {
		t.Fatalf("CancelLimitOrder: %v", err)
	}
	if canceled.Status != model.OrderCanceled {
		t.Errorf("Status = %v, want canceled", canceled.Status)
	}

	// Free and frozen balances return to their pre-order values.
	if free := env.ledger.FreeBalanceOf("bob", env.quote); free != 600 {
		t.Errorf("free quote = %d, want 600", free)
	}
	if frozen := env.ledger.FrozenBalanceOf("bob", env.quote); frozen != 0 {
		t.Errorf("frozen quote = %d, want 0", frozen)
	}

	if opened := env.book.OpenedOrders("bob", env.pair.ID); len(opened) != 0 {
		t.Errorf("opened orders = %v", opened)
	}
	closed := env.book.ClosedOrders("bob", env.pair.ID)
	if len(closed) != 1 || closed[0].ID != order.ID {
		t.Errorf("closed orders = %v", closed)
	}
}

func TestCancelLimitOrderErrors(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)

	order := env.createOrder(t, "bob", model.Buy, 10, 50)

	if _, err := env.book.CancelLimitOrder("bob", model.DID{8}); !errors.Is(err, ErrNoMatchingOrder) {
		t.Errorf("unknown order: got %v, want ErrNoMatchingOrder", err)
	}
	if _, err := env.book.CancelLimitOrder("carol", order.ID); !errors.Is(err, ErrCanOnlyCancelOwnOrder) {
		t.Errorf("foreign cancel: got %v, want ErrCanOnlyCancelOwnOrder", err)
	}

	if _, err := env.book.CancelLimitOrder("bob", order.ID); err != nil {
		t.Fatalf("CancelLimitOrder: %v", err)
	}
	// Canceling twice is an error, not a no-op.
	if _, err := env.book.CancelLimitOrder("bob", order.ID); !errors.Is(err, ErrCanOnlyCancelNotFinishedOrder) {
		t.Errorf("double cancel: got %v, want ErrCanOnlyCancelNotFinishedOrder", err)
	}
}

func TestCancelRestingOrderLeavesBook(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)
	env.fund(t, "carol", 0, 600)

	o1 := env.createOrder(t, "bob", model.Buy, 10, 20)
	o2 := env.createOrder(t, "carol", model.Buy, 10, 30)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	buys, _ := env.book.Depth(env.pair.ID)
	if len(buys) != 1 || buys[0].Amount != 50 || buys[0].Orders != 2 {
		t.Fatalf("depth before cancel = %+v", buys)
	}

	if _, err := env.book.CancelLimitOrder("bob", o1.ID); err != nil {
		t.Fatalf("CancelLimitOrder: %v", err)
	}
	buys, _ = env.book.Depth(env.pair.ID)
	if len(buys) != 1 || buys[0].Amount != 30 || buys[0].Orders != 1 {
		t.Errorf("depth after cancel = %+v", buys)
	}

	if _, err := env.book.CancelLimitOrder("carol", o2.ID); err != nil {
		t.Fatalf("CancelLimitOrder: %v", err)
	}
	buys, _ = env.book.Depth(env.pair.ID)
	if len(buys) != 0 {
		t.Errorf("depth after both cancels = %+v", buys)
	}
}

func TestSamePriceLevelIsFIFO(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)
	env.fund(t, "carol", 0, 600)

	o1 := env.createOrder(t, "bob", model.Buy, 10, 20)
	o2 := env.createOrder(t, "carol", model.Buy, 10, 30)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	node := env.book.books[env.pair.ID].nodes[priceKey(10)]
	if node == nil {
		t.Fatal("level 10 missing")
	}
	if len(node.orders) != 2 || node.orders[0] != o1.ID || node.orders[1] != o2.ID {
		t.Errorf("level orders = %v, want [%s %s]", node.orders, o1.ID, o2.ID)
	}
}

func TestPruneSideDrainsFinishedOrders(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)
	env.fund(t, "carol", 0, 600)

	o1 := env.createOrder(t, "bob", model.Sell, 10, 20)
	o2 := env.createOrder(t, "carol", model.Sell, 12, 30)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	// Force o1 into a terminal state without going through cancel, then
	// prune.
	order := env.book.orders[o1.ID]
	order.Status = model.OrderCanceled
	env.book.orders[o1.ID] = order

	env.book.PruneSide(env.pair.ID, model.Sell)

	_, sells := env.book.Depth(env.pair.ID)
	if len(sells) != 1 || sells[0].Price != 12 {
		t.Errorf("depth after prune = %+v", sells)
	}
	if !env.book.books[env.pair.ID].contains(12, o2.ID) {
		t.Error("unfinished order pruned")
	}
}
