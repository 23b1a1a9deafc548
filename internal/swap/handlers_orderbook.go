package swap

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dnft/swap-engine/internal/metrics"
	"github.com/dnft/swap-engine/internal/model"
	"github.com/dnft/swap-engine/internal/orderbook"
)

// CreateOrderRequest is the JSON body for POST /api/v1/orders.
type CreateOrderRequest struct {
	Caller model.AccountID `json:"caller"`
	PairID model.DID       `json:"pair_id"`
	Side   string          `json:"side"`
	Price  uint64          `json:"price"`
	Amount uint64          `json:"amount"`
}

// CreateOrderResponse is the JSON body returned from POST /api/v1/orders:
// the accepted order plus any fills produced by the matching round it
// triggered.
type CreateOrderResponse struct {
	Order  model.LimitOrder `json:"order"`
	Trades []model.Trade    `json:"trades"`
}

// CancelOrderRequest is the JSON body for POST /api/v1/orders/{orderID}/cancel.
type CancelOrderRequest struct {
	Caller model.AccountID `json:"caller"`
}

// DepthResponse is the JSON body returned from the depth route.
type DepthResponse struct {
	Buys  []orderbook.DepthLevel `json:"buys"`
	Sells []orderbook.DepthLevel `json:"sells"`
}

// CreateLimitOrder handles POST /api/v1/orders
// Stages the order, then runs one matching round so fills settle before the
// response is written.
func (s *Service) CreateLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}
	side, err := model.ParseOrderSide(req.Side)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.book.CreateLimitOrder(req.Caller, req.PairID, side, req.Price, req.Amount)
	if err != nil {
		rejected(w, "create_limit_order", err)
		return
	}

	ctx := r.Context()
	s.emit(ctx, model.EventLimitOrderCreated, req.Caller, order.ID, order)
	metrics.OrdersTotal.WithLabelValues(side.String()).Inc()
	slog.Info("limit order created",
		"order", order.ID,
		"pair", req.PairID,
		"owner", req.Caller,
		"side", side.String(),
		"price", req.Price,
		"amount", req.Amount,
	)

	trades, err := s.book.MatchOrders()
	s.recordTrades(r, trades)
	if err != nil {
		slog.Error("matching round failed", "err", err)
		writeError(w, "matching failed", http.StatusInternalServerError)
		return
	}

	// Return the post-match view of the order.
	if updated, ok := s.book.Order(order.ID); ok {
		order = updated
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{Order: order, Trades: trades})
}

// recordTrades persists and broadcasts the fills of one matching round.
func (s *Service) recordTrades(r *http.Request, trades []model.Trade) {
	ctx := r.Context()
	for i := range trades {
		t := &trades[i]
		if err := s.store.InsertTrade(ctx, t); err != nil {
			slog.Warn("trade insert failed", "trade", t.ID, "err", err)
		}
		s.emit(ctx, model.EventOrderMatched, t.Buyer, t.PairID, t)
		metrics.TradesTotal.WithLabelValues(t.TakerSide.String()).Inc()
		slog.Info("orders matched",
			"trade", t.ID,
			"pair", t.PairID,
			"price", t.Price,
			"quote_amount", t.QuoteAmount,
			"taker_side", t.TakerSide.String(),
		)

		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:   "order_matched",
				PairID: t.PairID.String(),
				Price:  u64s(t.Price),
				Amount: u64s(t.QuoteAmount),
				Side:   t.TakerSide.String(),
			})
		}
	}
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := urlDID(w, r, "orderID")
	if !ok {
		return
	}
	order, ok := s.book.Order(orderID)
	if !ok {
		writeError(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelLimitOrder handles POST /api/v1/orders/{orderID}/cancel
func (s *Service) CancelLimitOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := urlDID(w, r, "orderID")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.book.CancelLimitOrder(req.Caller, orderID)
	if err != nil {
		rejected(w, "cancel_limit_order", err)
		return
	}

	s.emit(r.Context(), model.EventOrderCanceled, req.Caller, order.ID, order)
	slog.Info("limit order canceled",
		"order", order.ID,
		"owner", req.Caller,
		"remained", order.RemainedAmount,
	)

	writeJSON(w, http.StatusOK, order)
}

// GetPairTrades handles GET /api/v1/pairs/{pairID}/trades
func (s *Service) GetPairTrades(w http.ResponseWriter, r *http.Request) {
	pairID, ok := urlDID(w, r, "pairID")
	if !ok {
		return
	}
	trades, err := s.store.TradesByPair(r.Context(), pairID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetDepth handles GET /api/v1/pairs/{pairID}/depth
func (s *Service) GetDepth(w http.ResponseWriter, r *http.Request) {
	pairID, ok := urlDID(w, r, "pairID")
	if !ok {
		return
	}
	if _, ok := s.pairs.Pair(pairID); !ok {
		writeError(w, "trade pair not found", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	buys, sells := s.book.Depth(pairID)
	s.mu.Unlock()

	if buys == nil {
		buys = []orderbook.DepthLevel{}
	}
	if sells == nil {
		sells = []orderbook.DepthLevel{}
	}
	writeJSON(w, http.StatusOK, DepthResponse{Buys: buys, Sells: sells})
}
