package swap

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dnft/swap-engine/internal/metrics"
	"github.com/dnft/swap-engine/internal/model"
)

// InitPoolRequest is the JSON body for POST /api/v1/pools.
type InitPoolRequest struct {
	Caller      model.AccountID `json:"caller"`
	PairID      model.DID       `json:"pair_id"`
	BaseAmount  uint64          `json:"base_amount"`
	QuoteAmount uint64          `json:"quote_amount"`
}

// LiquidityRequest is the JSON body for the liquidity and withdraw routes.
type LiquidityRequest struct {
	Caller model.AccountID `json:"caller"`
	Share  uint64          `json:"share"`
}

// SwapRequest is the JSON body for POST /api/v1/swap.
type SwapRequest struct {
	Caller    model.AccountID `json:"caller"`
	PoolID    model.DID       `json:"pool_id"`
	TokenHave model.DID       `json:"token_have"`
	Amount    uint64          `json:"amount"`
	TokenWant model.DID       `json:"token_want"`
}

// SwapResponse is the JSON body returned from POST /api/v1/swap.
type SwapResponse struct {
	Order model.AmmOrder      `json:"order"`
	Pool  model.LiquidityPool `json:"pool"`
}

// InitLiquidityPool handles POST /api/v1/pools
func (s *Service) InitLiquidityPool(w http.ResponseWriter, r *http.Request) {
	var req InitPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pools.InitLiquidityPool(req.Caller, req.PairID, req.BaseAmount, req.QuoteAmount)
	if err != nil {
		rejected(w, "init_liquidity_pool", err)
		return
	}

	ctx := r.Context()
	if err := s.store.UpsertPoolSnapshot(ctx, &pool); err != nil {
		slog.Warn("pool snapshot failed", "pool", pool.ID, "err", err)
	}
	s.emit(ctx, model.EventPoolInitialized, req.Caller, pool.ID, pool)
	metrics.ActivePools.Inc()
	slog.Info("liquidity pool initialized",
		"id", pool.ID,
		"pair", req.PairID,
		"token0_amount", pool.Token0Amount,
		"token1_amount", pool.Token1Amount,
		"k", pool.KLast,
	)

	writeJSON(w, http.StatusCreated, pool)
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools := s.pools.Pools()
	if pools == nil {
		pools = []model.LiquidityPool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	poolID, ok := urlDID(w, r, "poolID")
	if !ok {
		return
	}
	pool, ok := s.pools.Pool(poolID)
	if !ok {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// AddLiquidity handles POST /api/v1/pools/{poolID}/liquidity
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	poolID, ok := urlDID(w, r, "poolID")
	if !ok {
		return
	}
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pools.AddLiquidity(req.Caller, poolID, req.Share)
	if err != nil {
		rejected(w, "add_liquidity", err)
		return
	}

	ctx := r.Context()
	if err := s.store.UpsertPoolSnapshot(ctx, &pool); err != nil {
		slog.Warn("pool snapshot failed", "pool", pool.ID, "err", err)
	}
	s.emit(ctx, model.EventLiquidityAdded, req.Caller, pool.ID, pool)
	slog.Info("liquidity added",
		"pool", pool.ID,
		"provider", req.Caller,
		"share", req.Share,
	)

	writeJSON(w, http.StatusOK, pool)
}

// RemoveLiquidity handles POST /api/v1/pools/{poolID}/withdraw
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	poolID, ok := urlDID(w, r, "poolID")
	if !ok {
		return
	}
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pools.RemoveLiquidity(req.Caller, poolID, req.Share)
	if err != nil {
		rejected(w, "remove_liquidity", err)
		return
	}

	ctx := r.Context()
	if err := s.store.UpsertPoolSnapshot(ctx, &pool); err != nil {
		slog.Warn("pool snapshot failed", "pool", pool.ID, "err", err)
	}
	s.emit(ctx, model.EventLiquidityRemoved, req.Caller, pool.ID, pool)
	slog.Info("liquidity removed",
		"pool", pool.ID,
		"provider", req.Caller,
		"share", req.Share,
	)

	writeJSON(w, http.StatusOK, pool)
}

// Swap handles POST /api/v1/swap
// Executes one constant-product trade against a pool.
func (s *Service) Swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}
	if req.Amount == 0 {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, pool, err := s.pools.Trade(req.Caller, req.PoolID, req.TokenHave, req.Amount, req.TokenWant)
	if err != nil {
		rejected(w, "swap", err)
		return
	}

	ctx := r.Context()
	if err := s.store.InsertSwapRecord(ctx, &order); err != nil {
		slog.Warn("swap record insert failed", "order", order.ID, "err", err)
	}
	if err := s.store.UpsertPoolSnapshot(ctx, &pool); err != nil {
		slog.Warn("pool snapshot failed", "pool", pool.ID, "err", err)
	}
	s.emit(ctx, model.EventTradeExecuted, req.Caller, order.ID, order)
	metrics.SwapsTotal.Inc()
	slog.Info("swap executed",
		"order", order.ID,
		"pool", pool.ID,
		"owner", req.Caller,
		"have_amount", order.TokenHaveAmount,
		"want_amount", order.TokenWantAmount,
		"price", order.SwapPrice,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:   "swap_executed",
			PoolID: pool.ID.String(),
			Price:  u64s(order.SwapPrice),
			Amount: u64s(order.TokenHaveAmount),
		})
	}

	writeJSON(w, http.StatusOK, SwapResponse{Order: order, Pool: pool})
}

// GetPoolSwaps handles GET /api/v1/pools/{poolID}/swaps
func (s *Service) GetPoolSwaps(w http.ResponseWriter, r *http.Request) {
	poolID, ok := urlDID(w, r, "poolID")
	if !ok {
		return
	}
	swaps, err := s.store.SwapRecordsByPool(r.Context(), poolID)
	if err != nil {
		writeError(w, "failed to load swap records", http.StatusInternalServerError)
		return
	}
	if swaps == nil {
		swaps = []model.AmmOrder{}
	}
	writeJSON(w, http.StatusOK, swaps)
}
