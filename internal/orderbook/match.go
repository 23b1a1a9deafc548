package orderbook

import (
	"math/bits"

	"github.com/google/uuid"

	"github.com/dnft/swap-engine/internal/model"
)

// MatchOrders runs one batch matching round: it drains the buy staging
// queue and then the sell staging queue oldest-first, crossing each live
// staged order against the opposite side of its pair's book in price-time
// priority. Any unfilled remainder rests in the book at its limit price.
//
// The resting order's price governs every fill. A fill of q (quote
// notional) at level price px moves q quote from buyer to seller and q*px
// base from seller to buyer, releasing each side's own q escrow first. A
// resting order whose owner cannot cover the base leg is skipped for the
// round; price levels beyond it are still considered.
func (b *Book) MatchOrders() ([]model.Trade, error) {
	var trades []model.Trade
	for _, q := range []*stagingQueue{b.buyQueue, b.sellQueue} {
		fills, err := b.drainQueue(q)
		trades = append(trades, fills...)
		if err != nil {
			return trades, err
		}
	}
	return trades, nil
}

func (b *Book) drainQueue(q *stagingQueue) ([]model.Trade, error) {
	t := q.transient()
	defer t.Close()

	var trades []model.Trade
	for {
		staged, ok := t.Pop()
		if !ok {
			return trades, nil
		}
		if !staged.Live {
			continue
		}
		id, ok := b.idByIndex[staged.OrderIndex]
		if !ok {
			continue
		}
		order, ok := b.orders[id]
		// Orders canceled while staged have already released their escrow.
		if !ok || order.Finished() {
			continue
		}

		fills, err := b.matchIncoming(&order)
		trades = append(trades, fills...)
		if err != nil {
			return trades, err
		}

		if !order.Finished() {
			b.pairBook(order.PairID).append(order.Price, order.ID, order.RemainedAmount, order.Side)
		}
	}
}

// matchIncoming crosses one incoming order against the opposite side of
// its pair's book, mutating both the incoming order and the book.
func (b *Book) matchIncoming(order *model.LimitOrder) ([]model.Trade, error) {
	pair, ok := b.pairs.Pair(order.PairID)
	if !ok {
		return nil, ErrNoMatchingTradePair
	}
	book := b.pairBook(order.PairID)
	opposite := order.Side.Opposite()

	var trades []model.Trade
	ownKey := priceKey(order.Price)
	ownSeen := false
	key := book.bestKey(opposite)
	for order.RemainedAmount > 0 && !isSentinel(key) {
		node := book.nodes[key]
		px := node.key.price
		if order.Side == model.Buy && px > order.Price {
			break
		}
		if order.Side == model.Sell && px < order.Price {
			break
		}
		if key == ownKey {
			ownSeen = true
		}
		// Deeper into the opposite side before the node can be unlinked.
		nextKey := node.next
		if opposite == model.Buy {
			nextKey = node.prev
		}

		fills, err := b.matchAtLevel(order, node, pair)
		trades = append(trades, fills...)
		if err != nil {
			return trades, err
		}

		if len(node.orders) == 0 {
			book.removeLevel(key)
		}
		key = nextKey
	}

	// A level can hold both sides when a remainder merged into a node of
	// the other segment after its counterparties were skipped. Such a node
	// sits off the opposite segment's walk, so cross the incoming order
	// against its own price level explicitly.
	if order.RemainedAmount > 0 && !ownSeen {
		if node, ok := book.nodes[ownKey]; ok {
			fills, err := b.matchAtLevel(order, node, pair)
			trades = append(trades, fills...)
			if err != nil {
				return trades, err
			}
			if len(node.orders) == 0 {
				book.removeLevel(ownKey)
			}
		}
	}
	return trades, nil
}

// matchAtLevel crosses one incoming order against the opposite-side orders
// resting at one price level, FIFO. Same-side orders at the level are left
// alone.
func (b *Book) matchAtLevel(order *model.LimitOrder, node *priceLevel, pair model.TradePair) ([]model.Trade, error) {
	px := node.key.price
	var trades []model.Trade

	i := 0
	for i < len(node.orders) && order.RemainedAmount > 0 {
		restingID := node.orders[i]
		resting := b.orders[restingID]
		if resting.Finished() {
			node.orders = append(node.orders[:i], node.orders[i+1:]...)
			continue
		}
		if resting.Side == order.Side {
			i++
			continue
		}

		q := min(order.RemainedAmount, resting.RemainedAmount)

		var buyer, seller model.AccountID
		if order.Side == model.Buy {
			buyer, seller = order.Owner, resting.Owner
		} else {
			buyer, seller = resting.Owner, order.Owner
		}

		hi, baseAmt := bits.Mul64(q, px)
		if hi != 0 ||
			b.ledger.FreeBalanceOf(seller, pair.Base) < baseAmt ||
			b.ledger.FrozenBalanceOf(buyer, pair.Quote) < q ||
			b.ledger.FrozenBalanceOf(seller, pair.Quote) < q {
			i++
			continue
		}

		if err := b.settle(buyer, seller, pair, q, baseAmt); err != nil {
			return trades, err
		}

		resting.RemainedAmount -= q
		node.subAmount(resting.Side, q)
		if resting.RemainedAmount == 0 {
			resting.Status = model.OrderFilled
			node.orders = append(node.orders[:i], node.orders[i+1:]...)
			b.closeOrder(resting)
		} else {
			resting.Status = model.OrderPartialFilled
			i++
		}
		b.orders[restingID] = resting

		order.RemainedAmount -= q
		if order.RemainedAmount == 0 {
			order.Status = model.OrderFilled
			b.closeOrder(*order)
		} else {
			order.Status = model.OrderPartialFilled
		}
		b.orders[order.ID] = *order

		trades = append(trades, model.Trade{
			ID:          uuid.NewString(),
			PairID:      order.PairID,
			Buyer:       buyer,
			Seller:      seller,
			TakerSide:   order.Side,
			Price:       px,
			BaseAmount:  baseAmt,
			QuoteAmount: q,
			Timestamp:   b.now(),
		})
		if err := b.pairs.RecordFill(order.PairID, px, q); err != nil {
			return trades, err
		}
	}
	return trades, nil
}

// settle moves one fill's funds: both escrows are released, then the quote
// leg and the base leg are transferred.
func (b *Book) settle(buyer, seller model.AccountID, pair model.TradePair, q, baseAmt uint64) error {
	if err := b.ledger.Unfreeze(buyer, pair.Quote, q); err != nil {
		return err
	}
	if err := b.ledger.Unfreeze(seller, pair.Quote, q); err != nil {
		return err
	}
	if err := b.ledger.Transfer(buyer, pair.Quote, seller, q, ""); err != nil {
		return err
	}
	if err := b.ledger.Transfer(seller, pair.Base, buyer, baseAmt, ""); err != nil {
		return err
	}
	return nil
}
