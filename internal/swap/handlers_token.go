package swap

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dnft/swap-engine/internal/model"
)

// IssueTokenRequest is the JSON body for POST /api/v1/tokens.
type IssueTokenRequest struct {
	Caller      model.AccountID `json:"caller"`
	Symbol      string          `json:"symbol"`
	TotalSupply uint64          `json:"total_supply"`
}

// TransferTokenRequest is the JSON body for POST /api/v1/tokens/{tokenID}/transfer.
type TransferTokenRequest struct {
	Caller model.AccountID `json:"caller"`
	To     model.AccountID `json:"to"`
	Amount uint64          `json:"amount"`
	Memo   string          `json:"memo,omitempty"`
}

// BalanceResponse is the JSON body returned from balance queries.
type BalanceResponse struct {
	Account model.AccountID `json:"account"`
	TokenID model.DID       `json:"token_id"`
	Balance uint64          `json:"balance"`
	Free    uint64          `json:"free"`
	Frozen  uint64          `json:"frozen"`
}

// CreateTradePairRequest is the JSON body for POST /api/v1/pairs.
type CreateTradePairRequest struct {
	Caller model.AccountID `json:"caller"`
	Base   model.DID       `json:"base"`
	Quote  model.DID       `json:"quote"`
	Method string          `json:"method"`
}

// IssueToken handles POST /api/v1/tokens
func (s *Service) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" || req.Symbol == "" {
		writeError(w, "caller and symbol are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.ledger.Issue(req.Caller, req.Symbol, req.TotalSupply)
	if err != nil {
		rejected(w, "issue_token", err)
		return
	}

	s.emit(r.Context(), model.EventTokenIssued, req.Caller, tok.ID, tok)
	slog.Info("token issued",
		"id", tok.ID,
		"owner", req.Caller,
		"symbol", req.Symbol,
		"supply", req.TotalSupply,
	)

	writeJSON(w, http.StatusCreated, tok)
}

// TransferToken handles POST /api/v1/tokens/{tokenID}/transfer
func (s *Service) TransferToken(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := urlDID(w, r, "tokenID")
	if !ok {
		return
	}
	var req TransferTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" || req.To == "" {
		writeError(w, "caller and to are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Transfer(req.Caller, tokenID, req.To, req.Amount, req.Memo); err != nil {
		rejected(w, "transfer_token", err)
		return
	}

	s.emit(r.Context(), model.EventTokenTransferred, req.Caller, tokenID, req)
	slog.Info("token transferred",
		"token", tokenID,
		"from", req.Caller,
		"to", req.To,
		"amount", req.Amount,
	)

	writeJSON(w, http.StatusOK, BalanceResponse{
		Account: req.Caller,
		TokenID: tokenID,
		Balance: s.ledger.BalanceOf(req.Caller, tokenID),
		Free:    s.ledger.FreeBalanceOf(req.Caller, tokenID),
		Frozen:  s.ledger.FrozenBalanceOf(req.Caller, tokenID),
	})
}

// GetBalance handles GET /api/v1/accounts/{account}/balances/{tokenID}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := model.AccountID(chi.URLParam(r, "account"))
	tokenID, ok := urlDID(w, r, "tokenID")
	if !ok {
		return
	}
	if _, ok := s.ledger.Token(tokenID); !ok {
		writeError(w, "token not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		Account: account,
		TokenID: tokenID,
		Balance: s.ledger.BalanceOf(account, tokenID),
		Free:    s.ledger.FreeBalanceOf(account, tokenID),
		Frozen:  s.ledger.FrozenBalanceOf(account, tokenID),
	})
}

// CreateTradePair handles POST /api/v1/pairs
func (s *Service) CreateTradePair(w http.ResponseWriter, r *http.Request) {
	var req CreateTradePairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	method, err := model.ParseTradeMethod(req.Method)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.pairs.Create(req.Caller, req.Base, req.Quote, method)
	if err != nil {
		rejected(w, "create_trade_pair", err)
		return
	}

	s.emit(r.Context(), model.EventTradePairCreated, req.Caller, pair.ID, pair)
	slog.Info("trade pair created",
		"id", pair.ID,
		"base", pair.Base,
		"quote", pair.Quote,
		"method", method.String(),
	)

	writeJSON(w, http.StatusCreated, pair)
}

// GetTradePair handles GET /api/v1/pairs/{pairID}
func (s *Service) GetTradePair(w http.ResponseWriter, r *http.Request) {
	pairID, ok := urlDID(w, r, "pairID")
	if !ok {
		return
	}
	pair, ok := s.pairs.Pair(pairID)
	if !ok {
		writeError(w, "trade pair not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
