package orderbook

import (
	"math/rand"
	"testing"

	"github.com/dnft/swap-engine/internal/model"
)

func orderDID(n byte) model.DID { return model.DID{n} }

// walk returns the prices visited from the bottom sentinel to the top via
// next pointers, excluding sentinels, and fails the test on a broken or
// cyclic chain.
func walk(t *testing.T, l *priceList) []uint64 {
	t.Helper()
	var prices []uint64
	key := l.read(bottomKey).next
	for steps := 0; key != topKey; steps++ {
		if steps > len(l.nodes)+3 {
			t.Fatal("walk did not terminate")
		}
		node, ok := l.nodes[key]
		if !ok {
			t.Fatalf("dangling pointer to %+v", key)
		}
		if key != headKey {
			if len(node.orders) == 0 {
				t.Errorf("level %d has no orders", node.key.price)
			}
			prices = append(prices, node.key.price)
		}
		key = node.next
	}
	return prices
}

func TestSentinelsLazilyCreated(t *testing.T) {
	l := newPriceList()
	head := l.head()
	if head.prev != bottomKey || head.next != topKey {
		t.Errorf("empty head links = %+v -> %+v", head.prev, head.next)
	}
	bottom := l.read(bottomKey)
	if bottom.prev != topKey || bottom.next != headKey {
		t.Errorf("bottom links = %+v -> %+v", bottom.prev, bottom.next)
	}
	top := l.read(topKey)
	if top.prev != headKey || top.next != bottomKey {
		t.Errorf("top links = %+v -> %+v", top.prev, top.next)
	}
}

func TestAppendOrdersSides(t *testing.T) {
	l := newPriceList()
	l.append(8, orderDID(1), 10, model.Buy)
	l.append(6, orderDID(2), 5, model.Buy)
	l.append(12, orderDID(3), 7, model.Sell)
	l.append(10, orderDID(4), 3, model.Sell)

	got := walk(t, l)
	want := []uint64{6, 8, 10, 12}
	if len(got) != len(want) {
		t.Fatalf("walk = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("walk = %v, want %v", got, want)
		}
	}

	if l.bestKey(model.Buy) != priceKey(8) {
		t.Errorf("best buy = %+v, want price 8", l.bestKey(model.Buy))
	}
	if l.bestKey(model.Sell) != priceKey(10) {
		t.Errorf("best sell = %+v, want price 10", l.bestKey(model.Sell))
	}
}

func TestAppendSamePriceIsFIFO(t *testing.T) {
	l := newPriceList()
	l.append(8, orderDID(1), 1, model.Buy)
	l.append(8, orderDID(2), 5, model.Buy)
	l.append(8, orderDID(3), 2, model.Buy)

	node := l.nodes[priceKey(8)]
	if node == nil {
		t.Fatal("level 8 missing")
	}
	want := []model.DID{orderDID(1), orderDID(2), orderDID(3)}
	if len(node.orders) != len(want) {
		t.Fatalf("orders = %v", node.orders)
	}
	for i := range want {
		if node.orders[i] != want[i] {
			t.Errorf("orders[%d] = %s, want %s", i, node.orders[i], want[i])
		}
	}
	if node.buyAmount != 8 {
		t.Errorf("buyAmount = %d, want 8", node.buyAmount)
	}
}

func TestRemoveOrderUnlinksEmptyLevel(t *testing.T) {
	l := newPriceList()
	l.append(8, orderDID(1), 10, model.Buy)
	l.append(9, orderDID(2), 4, model.Buy)

	if !l.removeOrder(9, orderDID(2), 4, model.Buy) {
		t.Fatal("removeOrder returned false")
	}
	if _, ok := l.nodes[priceKey(9)]; ok {
		t.Error("empty level 9 not unlinked")
	}
	got := walk(t, l)
	if len(got) != 1 || got[0] != 8 {
		t.Errorf("walk = %v, want [8]", got)
	}

	if l.removeOrder(9, orderDID(2), 4, model.Buy) {
		t.Error("removing from a missing level succeeded")
	}
}

func TestWalkIntegrityUnderRandomChurn(t *testing.T) {
	l := newPriceList()
	rng := rand.New(rand.NewSource(42))

	type live struct {
		price uint64
		id    model.DID
		side  model.OrderSide
	}
	var lives []live
	var n uint16

	for i := 0; i < 500; i++ {
		if len(lives) > 0 && rng.Intn(3) == 0 {
			j := rng.Intn(len(lives))
			v := lives[j]
			if !l.removeOrder(v.price, v.id, 1, v.side) {
				t.Fatalf("removeOrder(%d) failed", v.price)
			}
			lives = append(lives[:j], lives[j+1:]...)
		} else {
			n++
			side := model.Buy
			price := uint64(rng.Intn(50) + 1)
			if rng.Intn(2) == 0 {
				side = model.Sell
				price = uint64(rng.Intn(50) + 51)
			}
			id := model.DID{byte(n >> 8), byte(n)}
			l.append(price, id, 1, side)
			lives = append(lives, live{price, id, side})
		}

		prices := walk(t, l)
		for j := 1; j < len(prices); j++ {
			if prices[j] <= prices[j-1] {
				t.Fatalf("prices not strictly increasing: %v", prices)
			}
		}
	}
}
