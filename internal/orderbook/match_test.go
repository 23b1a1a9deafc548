package orderbook

import (
	"testing"

	"github.com/dnft/swap-engine/internal/model"
)

func TestMatchRestsWhenNothingCrosses(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)
	env.fund(t, "carol", 1000, 600)

	buy := env.createOrder(t, "bob", model.Buy, 8, 20)
	sell := env.createOrder(t, "carol", model.Sell, 12, 30)

	trades, err := env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("trades = %v, want none", trades)
	}

	buys, sells := env.book.Depth(env.pair.ID)
	if len(buys) != 1 || buys[0].Price != 8 || buys[0].Amount != 20 {
		t.Errorf("buy depth = %+v", buys)
	}
	if len(sells) != 1 || sells[0].Price != 12 || sells[0].Amount != 30 {
		t.Errorf("sell depth = %+v", sells)
	}

	for _, o := range []model.LimitOrder{buy, sell} {
		got, _ := env.book.Order(o.ID)
		if got.Status != model.OrderCreated || got.RemainedAmount != o.Amount {
			t.Errorf("order %s = %+v, want untouched", o.ID, got)
		}
	}
}

func TestMatchFullFill(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)
	env.fund(t, "carol", 1000, 600)

	buy := env.createOrder(t, "bob", model.Buy, 10, 50)
	sell := env.createOrder(t, "carol", model.Sell, 10, 50)

	trades, err := env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %v, want 1", trades)
	}
	tr := trades[0]
	if tr.Buyer != "bob" || tr.Seller != "carol" || tr.TakerSide != model.Sell {
		t.Errorf("trade parties = %+v", tr)
	}
	if tr.Price != 10 || tr.QuoteAmount != 50 || tr.BaseAmount != 500 {
		t.Errorf("trade legs = %+v", tr)
	}
	if tr.ID == "" {
		t.Error("trade has no ID")
	}

	// Settlement: 50 quote bob -> carol, 500 base carol -> bob, both
	// escrows released.
	if got := env.ledger.BalanceOf("bob", env.quote); got != 550 {
		t.Errorf("bob quote = %d, want 550", got)
	}
	if got := env.ledger.BalanceOf("bob", env.base); got != 500 {
		t.Errorf("bob base = %d, want 500", got)
	}
	if got := env.ledger.BalanceOf("carol", env.quote); got != 650 {
		t.Errorf("carol quote = %d, want 650", got)
	}
	if got := env.ledger.BalanceOf("carol", env.base); got != 500 {
		t.Errorf("carol base = %d, want 500", got)
	}
	if frozen := env.ledger.FrozenBalanceOf("bob", env.quote); frozen != 0 {
		t.Errorf("bob frozen = %d, want 0", frozen)
	}
	if frozen := env.ledger.FrozenBalanceOf("carol", env.quote); frozen != 0 {
		t.Errorf("carol frozen = %d, want 0", frozen)
	}

	for _, id := range []model.DID{buy.ID, sell.ID} {
		got, _ := env.book.Order(id)
		if got.Status != model.OrderFilled || got.RemainedAmount != 0 {
			t.Errorf("order %s = %+v, want filled", id, got)
		}
	}
	if opened := env.book.OpenedOrders("bob", env.pair.ID); len(opened) != 0 {
		t.Errorf("bob opened = %v", opened)
	}
	if closed := env.book.ClosedOrders("carol", env.pair.ID); len(closed) != 1 {
		t.Errorf("carol closed = %v", closed)
	}

	buys, sells := env.book.Depth(env.pair.ID)
	if len(buys) != 0 || len(sells) != 0 {
		t.Errorf("depth = %v / %v, want empty", buys, sells)
	}

	pair, _ := env.pairs.Pair(env.pair.ID)
	if pair.MatchedPrice != 10 || pair.OneDayTradeVolume != 50 {
		t.Errorf("pair stats = %+v", pair)
	}
}

func TestMatchPartialFillRestingPriceGoverns(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)
	env.fund(t, "carol", 1000, 600)

	sell := env.createOrder(t, "carol", model.Sell, 10, 50)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	// Bob bids 12 but fills at the resting price of 10.
	buy := env.createOrder(t, "bob", model.Buy, 12, 30)
	trades, err := env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %v, want 1", trades)
	}
	if trades[0].Price != 10 || trades[0].QuoteAmount != 30 || trades[0].BaseAmount != 300 {
		t.Errorf("trade = %+v", trades[0])
	}
	if trades[0].TakerSide != model.Buy {
		t.Errorf("taker side = %v, want buy", trades[0].TakerSide)
	}

	gotBuy, _ := env.book.Order(buy.ID)
	if gotBuy.Status != model.OrderFilled || gotBuy.RemainedAmount != 0 {
		t.Errorf("buy = %+v, want filled", gotBuy)
	}
	gotSell, _ := env.book.Order(sell.ID)
	if gotSell.Status != model.OrderPartialFilled || gotSell.RemainedAmount != 20 {
		t.Errorf("sell = %+v, want partial 20", gotSell)
	}

	_, sells := env.book.Depth(env.pair.ID)
	if len(sells) != 1 || sells[0].Amount != 20 {
		t.Errorf("sell depth = %+v", sells)
	}
	if frozen := env.ledger.FrozenBalanceOf("carol", env.quote); frozen != 20 {
		t.Errorf("carol frozen = %d, want 20", frozen)
	}
	if got := env.ledger.BalanceOf("bob", env.base); got != 300 {
		t.Errorf("bob base = %d, want 300", got)
	}
}

func TestMatchPriceTimePriority(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "carol", 1000, 600)
	env.fund(t, "dave", 1000, 600)
	env.fund(t, "eve", 0, 600)

	env.createOrder(t, "carol", model.Sell, 10, 20)
	env.createOrder(t, "dave", model.Sell, 8, 20)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	env.createOrder(t, "eve", model.Buy, 12, 30)
	trades, err := env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %v, want 2", trades)
	}
	// Best price first: dave's 8 before carol's 10.
	if trades[0].Seller != "dave" || trades[0].Price != 8 || trades[0].QuoteAmount != 20 {
		t.Errorf("first trade = %+v", trades[0])
	}
	if trades[1].Seller != "carol" || trades[1].Price != 10 || trades[1].QuoteAmount != 10 {
		t.Errorf("second trade = %+v", trades[1])
	}

	// eve paid 20 + 10 quote, received 20*8 + 10*10 base.
	if got := env.ledger.BalanceOf("eve", env.base); got != 260 {
		t.Errorf("eve base = %d, want 260", got)
	}
	if got := env.ledger.BalanceOf("eve", env.quote); got != 570 {
		t.Errorf("eve quote = %d, want 570", got)
	}
}

func TestMatchFIFOWithinLevel(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "carol", 1000, 600)
	env.fund(t, "dave", 1000, 600)
	env.fund(t, "eve", 0, 600)

	env.createOrder(t, "carol", model.Sell, 10, 20)
	env.createOrder(t, "dave", model.Sell, 10, 20)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	env.createOrder(t, "eve", model.Buy, 10, 25)
	trades, err := env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %v, want 2", trades)
	}
	if trades[0].Seller != "carol" || trades[0].QuoteAmount != 20 {
		t.Errorf("first trade = %+v", trades[0])
	}
	if trades[1].Seller != "dave" || trades[1].QuoteAmount != 5 {
		t.Errorf("second trade = %+v", trades[1])
	}
}

func TestMatchSkipsSellerWithoutBase(t *testing.T) {
	env := newTestEnv(t)
	// frank has quote for the escrow but no base to deliver.
	env.fund(t, "frank", 0, 600)
	env.fund(t, "carol", 1000, 600)
	env.fund(t, "eve", 0, 600)

	frankSell := env.createOrder(t, "frank", model.Sell, 10, 20)
	env.createOrder(t, "carol", model.Sell, 10, 20)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	env.createOrder(t, "eve", model.Buy, 10, 20)
	trades, err := env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %v, want 1", trades)
	}
	if trades[0].Seller != "carol" {
		t.Errorf("seller = %s, want carol", trades[0].Seller)
	}

	// The skipped order stays in the book untouched.
	got, _ := env.book.Order(frankSell.ID)
	if got.Status != model.OrderCreated || got.RemainedAmount != 20 {
		t.Errorf("frank's order = %+v, want untouched", got)
	}
	if !env.book.books[env.pair.ID].contains(10, frankSell.ID) {
		t.Error("frank's order left the book")
	}
	if frozen := env.ledger.FrozenBalanceOf("frank", env.quote); frozen != 20 {
		t.Errorf("frank frozen = %d, want 20", frozen)
	}
}

func TestQuoteConservationAcrossMatchCycle(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "bob", 0, 600)
	env.fund(t, "carol", 1000, 600)

	total := func() uint64 {
		var sum uint64
		for _, acct := range []model.AccountID{"alice", "bob", "carol"} {
			sum += env.ledger.BalanceOf(acct, env.quote)
		}
		return sum
	}
	before := total()

	env.createOrder(t, "bob", model.Buy, 10, 50)
	env.createOrder(t, "carol", model.Sell, 10, 30)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	if after := total(); after != before {
		t.Errorf("quote supply changed: %d -> %d", before, after)
	}
}

// A price level can end up holding both sides: a buy whose counterparty at
// that price was skipped merges into the sell-segment node. Such co-resting
// same-side orders must never cross each other, and the merged order must
// still be fillable by a later opposite order at that price.
func TestMatchMixedSidesAtOneLevel(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "frank", 0, 250) // quote only, no base to deliver
	env.fund(t, "bob", 0, 250)
	env.fund(t, "carol", 0, 250)
	env.fund(t, "dave", 250, 250)

	env.createOrder(t, "frank", model.Sell, 25, 10)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	// bob skips the unfunded seller and rests into the same level.
	buy := env.createOrder(t, "bob", model.Buy, 25, 10)
	if _, err := env.book.MatchOrders(); err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}

	// carol's buy must not cross bob's resting buy.
	buy2 := env.createOrder(t, "carol", model.Buy, 25, 10)
	trades, err := env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("buy-buy trades = %+v, want none", trades)
	}
	for _, o := range []model.LimitOrder{buy, buy2} {
		got, _ := env.book.Order(o.ID)
		if got.Status != model.OrderCreated || got.RemainedAmount != o.Amount {
			t.Errorf("order %s = %+v, want untouched", o.ID, got)
		}
	}
	if got := env.ledger.BalanceOf("bob", env.base); got != 0 {
		t.Errorf("bob base = %d, want 0", got)
	}
	if frozen := env.ledger.FrozenBalanceOf("bob", env.quote); frozen != 10 {
		t.Errorf("bob frozen = %d, want 10", frozen)
	}

	// dave's funded sell reaches the buy resting inside the sell-segment
	// node and fills it.
	env.createOrder(t, "dave", model.Sell, 25, 10)
	trades, err = env.book.MatchOrders()
	if err != nil {
		t.Fatalf("MatchOrders: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %+v, want 1", trades)
	}
	tr := trades[0]
	if tr.Buyer != "bob" || tr.Seller != "dave" || tr.TakerSide != model.Sell {
		t.Errorf("trade parties = %+v", tr)
	}
	if tr.Price != 25 || tr.QuoteAmount != 10 || tr.BaseAmount != 250 {
		t.Errorf("trade legs = %+v", tr)
	}

	if got := env.ledger.BalanceOf("bob", env.base); got != 250 {
		t.Errorf("bob base = %d, want 250", got)
	}
	if got := env.ledger.BalanceOf("bob", env.quote); got != 240 {
		t.Errorf("bob quote = %d, want 240", got)
	}
	if got := env.ledger.BalanceOf("dave", env.quote); got != 260 {
		t.Errorf("dave quote = %d, want 260", got)
	}
	if got := env.ledger.BalanceOf("dave", env.base); got != 0 {
		t.Errorf("dave base = %d, want 0", got)
	}

	filled, _ := env.book.Order(buy.ID)
	if filled.Status != model.OrderFilled {
		t.Errorf("bob order = %+v, want filled", filled)
	}

	// frank and carol still rest at the level, escrow intact.
	_, sells := env.book.Depth(env.pair.ID)
	if len(sells) != 1 || sells[0].Price != 25 || sells[0].Amount != 10 || sells[0].Orders != 2 {
		t.Errorf("sell depth = %+v", sells)
	}
	for _, acct := range []model.AccountID{"frank", "carol"} {
		if frozen := env.ledger.FrozenBalanceOf(acct, env.quote); frozen != 10 {
			t.Errorf("%s frozen = %d, want 10", acct, frozen)
		}
	}
}
