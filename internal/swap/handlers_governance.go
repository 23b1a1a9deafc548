package swap

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dnft/swap-engine/internal/model"
)

// LaunchAuctionRequest is the JSON body for POST /api/v1/auctions.
type LaunchAuctionRequest struct {
	Caller    model.AccountID `json:"caller"`
	NFTType   string          `json:"nft_type"`
	NFTID     model.DID       `json:"nft_id"`
	BasePrice uint64          `json:"base_price"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
}

// BidRequest is the JSON body for POST /api/v1/auctions/{auctionID}/bids.
type BidRequest struct {
	Caller model.AccountID `json:"caller"`
	Price  uint64          `json:"price"`
}

// ConfirmAuctionRequest is the JSON body for the confirm route.
type ConfirmAuctionRequest struct {
	Caller model.AccountID `json:"caller"`
	Winner model.AccountID `json:"winner"`
}

// CancelAuctionRequest is the JSON body for the auction cancel route.
type CancelAuctionRequest struct {
	Caller model.AccountID `json:"caller"`
}

// CreateProposalRequest is the JSON body for POST /api/v1/proposals.
type CreateProposalRequest struct {
	Caller       model.AccountID `json:"caller"`
	Name         string          `json:"name"`
	Content      string          `json:"content"`
	MinToSucceed uint64          `json:"min_to_succeed"`
	Deadline     time.Time       `json:"deadline"`
}

// VoteRequest is the JSON body for POST /api/v1/proposals/{proposalID}/votes.
type VoteRequest struct {
	Caller  model.AccountID `json:"caller"`
	Approve bool            `json:"approve"`
}

// VoteResponse is the JSON body returned from a vote: the updated proposal
// and whether it has reached its threshold.
type VoteResponse struct {
	Proposal  model.Proposal `json:"proposal"`
	Succeeded bool           `json:"succeeded"`
}

// LaunchAuction handles POST /api/v1/auctions
func (s *Service) LaunchAuction(w http.ResponseWriter, r *http.Request) {
	var req LaunchAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	nftType, err := model.ParseNFTType(req.NFTType)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.auctions.LaunchAuction(req.Caller, nftType, req.NFTID, req.BasePrice, req.StartTime, req.EndTime)
	if err != nil {
		rejected(w, "launch_auction", err)
		return
	}

	s.emit(r.Context(), model.EventAuctionLaunched, req.Caller, a.ID, a)
	slog.Info("auction launched",
		"id", a.ID,
		"owner", req.Caller,
		"nft_type", req.NFTType,
		"nft", req.NFTID,
	)

	writeJSON(w, http.StatusCreated, a)
}

// BidAuction handles POST /api/v1/auctions/{auctionID}/bids
func (s *Service) BidAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := urlDID(w, r, "auctionID")
	if !ok {
		return
	}
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bid, err := s.auctions.Bid(req.Caller, auctionID, req.Price)
	if err != nil {
		rejected(w, "bid", err)
		return
	}

	s.emit(r.Context(), model.EventAuctionBid, req.Caller, auctionID, bid)
	slog.Info("auction bid", "auction", auctionID, "bidder", req.Caller, "price", req.Price)

	writeJSON(w, http.StatusCreated, bid)
}

// ConfirmAuction handles POST /api/v1/auctions/{auctionID}/confirm
func (s *Service) ConfirmAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := urlDID(w, r, "auctionID")
	if !ok {
		return
	}
	var req ConfirmAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Winner == "" {
		writeError(w, "winner is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.auctions.ConfirmBidResult(req.Caller, auctionID, req.Winner)
	if err != nil {
		rejected(w, "confirm_bid_result", err)
		return
	}

	s.emit(r.Context(), model.EventAuctionConfirmed, req.Caller, a.ID, a)
	slog.Info("auction confirmed", "auction", a.ID, "winner", req.Winner)

	writeJSON(w, http.StatusOK, a)
}

// CancelAuction handles POST /api/v1/auctions/{auctionID}/cancel
func (s *Service) CancelAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := urlDID(w, r, "auctionID")
	if !ok {
		return
	}
	var req CancelAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.auctions.CancelBid(req.Caller, auctionID)
	if err != nil {
		rejected(w, "cancel_bid", err)
		return
	}

	s.emit(r.Context(), model.EventAuctionCanceled, req.Caller, a.ID, a)
	slog.Info("auction canceled", "auction", a.ID)

	writeJSON(w, http.StatusOK, a)
}

// CreateProposal handles POST /api/v1/proposals
func (s *Service) CreateProposal(w http.ResponseWriter, r *http.Request) {
	var req CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" || req.Name == "" {
		writeError(w, "caller and name are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.proposals.CreateProposal(req.Caller, req.Name, req.Content, req.MinToSucceed, req.Deadline)
	if err != nil {
		rejected(w, "create_proposal", err)
		return
	}

	s.emit(r.Context(), model.EventProposalCreated, req.Caller, p.ID, p)
	slog.Info("proposal created",
		"id", p.ID,
		"owner", req.Caller,
		"name", req.Name,
		"min_to_succeed", req.MinToSucceed,
	)

	writeJSON(w, http.StatusCreated, p)
}

// VoteProposal handles POST /api/v1/proposals/{proposalID}/votes
func (s *Service) VoteProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := urlDID(w, r, "proposalID")
	if !ok {
		return
	}
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.proposals.Vote(req.Caller, proposalID, req.Approve)
	if err != nil {
		rejected(w, "vote", err)
		return
	}
	succeeded, _ := s.proposals.Succeeded(proposalID)

	s.emit(r.Context(), model.EventProposalVoted, req.Caller, p.ID, p)
	slog.Info("proposal voted",
		"proposal", p.ID,
		"voter", req.Caller,
		"approve", req.Approve,
		"yes", p.VoteYes,
		"no", p.VoteNo,
	)

	writeJSON(w, http.StatusOK, VoteResponse{Proposal: p, Succeeded: succeeded})
}
