// Package swap provides the HTTP handlers and wiring for the swap engine:
// token issuance, trade pairs, constant-product liquidity pools, the limit
// order book, auctions, and DAO proposals.
//
// The engines themselves are single-writer; the Service serializes all
// mutating calls behind one mutex (single-instance). For horizontal
// scaling, replace with distributed locking.
package swap

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dnft/swap-engine/internal/amm"
	"github.com/dnft/swap-engine/internal/auction"
	"github.com/dnft/swap-engine/internal/dao"
	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/metrics"
	"github.com/dnft/swap-engine/internal/model"
	"github.com/dnft/swap-engine/internal/orderbook"
	"github.com/dnft/swap-engine/internal/store"
	"github.com/dnft/swap-engine/internal/token"
	"github.com/dnft/swap-engine/internal/tradepair"
)

// Service owns every engine and handles all API operations. Callers are
// identified by the `caller` field in request bodies; the host in front of
// this service authenticates them.
type Service struct {
	store     store.Store
	ledger    *token.Ledger
	pairs     *tradepair.Registry
	pools     *amm.Engine
	book      *orderbook.Book
	auctions  *auction.Engine
	proposals *dao.Engine
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
	mu        sync.Mutex
}

// NewService wires the ledger, registries, and engines around one DID
// generator. Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(gen *did.Generator, st store.Store, hub *WSHub) *Service {
	ledger := token.NewLedger(gen)
	pairs := tradepair.NewRegistry(gen, ledger)
	return &Service{
		store:     st,
		ledger:    ledger,
		pairs:     pairs,
		pools:     amm.NewEngine(gen, ledger, pairs),
		book:      orderbook.NewBook(gen, ledger, pairs),
		auctions:  auction.NewEngine(gen),
		proposals: dao.NewEngine(gen),
		wsHub:     hub,
	}
}

// SetLegacyWraparound switches the AMM fee formula to wrapping arithmetic.
func (s *Service) SetLegacyWraparound(on bool) {
	s.pools.SetLegacyWraparound(on)
}

// RegisterNFTManager binds an NFT backend for auction settlement.
func (s *Service) RegisterNFTManager(t model.NFTType, m auction.NFTManager) {
	s.auctions.RegisterNFTManager(t, m)
}

// Routes returns the chi router with every API endpoint mounted.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		if s.wsHub != nil {
			r.Get("/ws", s.wsHub.HandleWS)
		}

		// Tokens and balances.
		r.Post("/tokens", s.IssueToken)
		r.Post("/tokens/{tokenID}/transfer", s.TransferToken)
		r.Get("/accounts/{account}/balances/{tokenID}", s.GetBalance)

		// Trade pairs.
		r.Post("/pairs", s.CreateTradePair)
		r.Get("/pairs/{pairID}", s.GetTradePair)
		r.Get("/pairs/{pairID}/trades", s.GetPairTrades)
		r.Get("/pairs/{pairID}/depth", s.GetDepth)

		// Liquidity pools.
		r.Post("/pools", s.InitLiquidityPool)
		r.Get("/pools", s.ListPools)
		r.Get("/pools/{poolID}", s.GetPool)
		r.Post("/pools/{poolID}/liquidity", s.AddLiquidity)
		r.Post("/pools/{poolID}/withdraw", s.RemoveLiquidity)
		r.Get("/pools/{poolID}/swaps", s.GetPoolSwaps)
		r.Post("/swap", s.Swap)

		// Limit orders.
		r.Post("/orders", s.CreateLimitOrder)
		r.Get("/orders/{orderID}", s.GetOrder)
		r.Post("/orders/{orderID}/cancel", s.CancelLimitOrder)

		// Auctions.
		r.Post("/auctions", s.LaunchAuction)
		r.Post("/auctions/{auctionID}/bids", s.BidAuction)
		r.Post("/auctions/{auctionID}/confirm", s.ConfirmAuction)
		r.Post("/auctions/{auctionID}/cancel", s.CancelAuction)

		// DAO.
		r.Post("/proposals", s.CreateProposal)
		r.Post("/proposals/{proposalID}/votes", s.VoteProposal)
	})

	return r
}

// emit appends one entry to the event log. The in-memory mutation already
// happened, so a failed append is logged rather than surfaced.
func (s *Service) emit(ctx context.Context, kind string, caller model.AccountID, entity model.DID, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("event payload marshal failed", "kind", kind, "err", err)
		} else {
			raw = data
		}
	}
	event := &model.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Caller:    caller,
		Entity:    entity,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendEvent(ctx, event); err != nil {
		slog.Warn("event append failed", "kind", kind, "err", err)
	}
}

// urlDID parses a DID from a chi URL parameter. A false return means the
// handler already wrote the error response.
func urlDID(w http.ResponseWriter, r *http.Request, param string) (model.DID, bool) {
	id, err := model.ParseDID(chi.URLParam(r, param))
	if err != nil {
		writeError(w, "invalid "+param, http.StatusBadRequest)
		return model.DID{}, false
	}
	return id, true
}

// errStatus maps engine errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, token.ErrNoMatchingToken),
		errors.Is(err, tradepair.ErrNoMatchingTradePair),
		errors.Is(err, amm.ErrNoMatchingPool),
		errors.Is(err, amm.ErrNoMatchingTradePair),
		errors.Is(err, orderbook.ErrNoMatchingTradePair),
		errors.Is(err, orderbook.ErrNoMatchingOrder),
		errors.Is(err, auction.ErrAuctionNotExist),
		errors.Is(err, dao.ErrProposalNotExist):
		return http.StatusNotFound

	case errors.Is(err, tradepair.ErrNotTokenOwner),
		errors.Is(err, orderbook.ErrCanOnlyCancelOwnOrder),
		errors.Is(err, auction.ErrNotAuctionOwner):
		return http.StatusForbidden

	case errors.Is(err, token.ErrBalanceNotEnough),
		errors.Is(err, token.ErrSenderHasNoToken),
		errors.Is(err, tradepair.ErrTradePairExists),
		errors.Is(err, amm.ErrBalanceNotEnough),
		errors.Is(err, amm.ErrShareNotEnough),
		errors.Is(err, amm.ErrPoolTokenNotEnough),
		errors.Is(err, amm.ErrArithmeticOverflow),
		errors.Is(err, orderbook.ErrCanOnlyCancelNotFinishedOrder),
		errors.Is(err, auction.ErrAuctionFinished),
		errors.Is(err, dao.ErrAlreadyVoted),
		errors.Is(err, dao.ErrVoteClosed):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

// rejected writes the error response for a failed engine call and counts it.
func rejected(w http.ResponseWriter, operation string, err error) {
	metrics.RejectedOperations.WithLabelValues(operation).Inc()
	writeError(w, err.Error(), errStatus(err))
}

func u64s(v uint64) string { return strconv.FormatUint(v, 10) }

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
