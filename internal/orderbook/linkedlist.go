package orderbook

import (
	"math"

	"github.com/dnft/swap-engine/internal/model"
)

// nodeKey addresses one node of a pair's price list. The zero value is the
// head sentinel, which carries no price; every other node is keyed by its
// limit price.
type nodeKey struct {
	hasPrice bool
	price    uint64
}

var (
	headKey   = nodeKey{}
	bottomKey = nodeKey{hasPrice: true, price: 0}
	topKey    = nodeKey{hasPrice: true, price: math.MaxUint64}
)

func priceKey(p uint64) nodeKey { return nodeKey{hasPrice: true, price: p} }

// priceLevel is one node of the doubly-linked price list: the resting order
// IDs at one limit price in FIFO order, with aggregate remaining notionals
// per side.
type priceLevel struct {
	key        nodeKey
	prev       nodeKey
	next       nodeKey
	buyAmount  uint64
	sellAmount uint64
	orders     []model.DID
}

// priceList is the per-pair order book structure. Walking from the bottom
// sentinel via next visits buy levels in ascending price order, then the
// head sentinel, then sell levels in ascending order, then the top
// sentinel. The best buy is head.prev, the best sell head.next.
type priceList struct {
	nodes map[nodeKey]*priceLevel
}

func newPriceList() *priceList {
	return &priceList{nodes: make(map[nodeKey]*priceLevel)}
}

// read returns the node at key, lazily creating the three sentinels on
// first access.
func (l *priceList) read(key nodeKey) *priceLevel {
	if len(l.nodes) == 0 {
		l.nodes[bottomKey] = &priceLevel{key: bottomKey, prev: topKey, next: headKey}
		l.nodes[headKey] = &priceLevel{key: headKey, prev: bottomKey, next: topKey}
		l.nodes[topKey] = &priceLevel{key: topKey, prev: headKey, next: bottomKey}
	}
	return l.nodes[key]
}

func (l *priceList) head() *priceLevel { return l.read(headKey) }

// append merges an order into the level at price, creating and splicing a
// new node when the level does not exist yet. New buy levels are found by
// scanning forward from the bottom sentinel, new sell levels forward from
// the head, stopping before the first level with a greater price.
func (l *priceList) append(price uint64, orderID model.DID, amount uint64, side model.OrderSide) {
	key := priceKey(price)
	if node := l.read(key); node != nil {
		node.orders = append(node.orders, orderID)
		node.addAmount(side, amount)
		return
	}

	var start, end nodeKey
	if side == model.Buy {
		start, end = bottomKey, headKey
	} else {
		start, end = headKey, topKey
	}

	node := l.read(start)
	for node.next != end {
		next := l.nodes[node.next]
		if next.key.hasPrice && price < next.key.price {
			break
		}
		node = next
	}

	succ := l.nodes[node.next]
	level := &priceLevel{
		key:    key,
		prev:   node.key,
		next:   succ.key,
		orders: []model.DID{orderID},
	}
	level.addAmount(side, amount)
	node.next = key
	succ.prev = key
	l.nodes[key] = level
}

// removeOrder takes one order out of its level and decrements the side
// aggregate; an emptied level is unlinked.
func (l *priceList) removeOrder(price uint64, orderID model.DID, amount uint64, side model.OrderSide) bool {
	key := priceKey(price)
	node := l.read(key)
	if node == nil {
		return false
	}
	found := false
	for i, id := range node.orders {
		if id == orderID {
			node.orders = append(node.orders[:i], node.orders[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}
	node.subAmount(side, amount)
	if len(node.orders) == 0 {
		l.removeLevel(key)
	}
	return true
}

// removeLevel unlinks a node and repairs its neighbors.
func (l *priceList) removeLevel(key nodeKey) {
	node, ok := l.nodes[key]
	if !ok || key == headKey || key == bottomKey || key == topKey {
		return
	}
	if prev, ok := l.nodes[node.prev]; ok {
		prev.next = node.next
	}
	if next, ok := l.nodes[node.next]; ok {
		next.prev = node.prev
	}
	delete(l.nodes, key)
}

// contains reports whether the order rests at the given price level.
func (l *priceList) contains(price uint64, orderID model.DID) bool {
	node, ok := l.nodes[priceKey(price)]
	if !ok {
		return false
	}
	for _, id := range node.orders {
		if id == orderID {
			return true
		}
	}
	return false
}

// bestKey returns the best level of a side: the highest buy or the lowest
// sell.
func (l *priceList) bestKey(side model.OrderSide) nodeKey {
	h := l.head()
	if side == model.Buy {
		return h.prev
	}
	return h.next
}

func (lv *priceLevel) addAmount(side model.OrderSide, amount uint64) {
	if side == model.Buy {
		lv.buyAmount += amount
	} else {
		lv.sellAmount += amount
	}
}

func (lv *priceLevel) subAmount(side model.OrderSide, amount uint64) {
	if side == model.Buy {
		lv.buyAmount -= amount
	} else {
		lv.sellAmount -= amount
	}
}

func isSentinel(key nodeKey) bool {
	return key == headKey || key == bottomKey || key == topKey
}
