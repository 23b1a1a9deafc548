// Package auction implements the NFT auction state machine. An auction
// moves Created -> Confirmed or Created -> Canceled and both end states are
// terminal. Bids are an append-only log with no escrow or screening; the
// winner is named by the owner at confirmation time.
//
// The engine is not safe for concurrent use. Callers serialize access.
package auction

import (
	"errors"
	"time"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
)

var (
	// ErrAuctionNotExist is returned when an auction ID resolves to nothing.
	ErrAuctionNotExist = errors.New("auction: auction does not exist")

	// ErrNotAuctionOwner is returned when a caller confirms or cancels an
	// auction they do not own.
	ErrNotAuctionOwner = errors.New("auction: caller is not the auction owner")

	// ErrAuctionFinished is returned when a confirm or cancel targets an
	// auction already in a terminal state.
	ErrAuctionFinished = errors.New("auction: auction already finished")

	// ErrUnsupportedNFTType is returned when no manager is registered for
	// the auction's NFT type.
	ErrUnsupportedNFTType = errors.New("auction: unsupported nft type")
)

// NFTManager moves a single NFT between accounts. One implementation is
// registered per supported NFT backend.
type NFTManager interface {
	TransferSingleNFT(from, to model.AccountID, nftID model.DID) error
}

// Engine holds all auctions and their bid logs.
type Engine struct {
	gen      *did.Generator
	now      func() time.Time
	managers map[model.NFTType]NFTManager

	nonce      uint64
	auctions   map[model.DID]model.Auction
	auctionIDs []model.DID
	bids       map[model.DID][]model.BidInfo
}

func NewEngine(gen *did.Generator) *Engine {
	return &Engine{
		gen:      gen,
		now:      time.Now,
		managers: make(map[model.NFTType]NFTManager),
		auctions: make(map[model.DID]model.Auction),
		bids:     make(map[model.DID][]model.BidInfo),
	}
}

// SetClock overrides the time source. Tests use this.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// RegisterNFTManager binds a manager to an NFT type. Confirming an auction
// whose type has no manager fails with ErrUnsupportedNFTType.
func (e *Engine) RegisterNFTManager(t model.NFTType, m NFTManager) {
	e.managers[t] = m
}

// LaunchAuction creates a new auction in the Created state. Start and end
// times are recorded but no transition enforces them.
func (e *Engine) LaunchAuction(caller model.AccountID, nftType model.NFTType, nftID model.DID, basePrice uint64, startTime, endTime time.Time) (model.Auction, error) {
	id, err := e.gen.Next(caller, e.nonce)
	if err != nil {
		return model.Auction{}, err
	}
	e.nonce++

	a := model.Auction{
		ID:        id,
		Owner:     caller,
		NFTType:   nftType,
		NFTID:     nftID,
		BasePrice: basePrice,
		StartTime: startTime,
		EndTime:   endTime,
		Status:    model.AuctionCreated,
	}
	e.auctions[id] = a
	e.auctionIDs = append(e.auctionIDs, id)
	return a, nil
}

// Bid appends a bid to the auction's log. Nothing is escrowed and no price
// or time ordering is checked.
func (e *Engine) Bid(caller model.AccountID, auctionID model.DID, price uint64) (model.BidInfo, error) {
	if _, ok := e.auctions[auctionID]; !ok {
		return model.BidInfo{}, ErrAuctionNotExist
	}
	bid := model.BidInfo{
		Bidder: caller,
		Price:  price,
		Time:   e.now(),
	}
	e.bids[auctionID] = append(e.bids[auctionID], bid)
	return bid, nil
}

// ConfirmBidResult closes the auction as Confirmed and hands the NFT to the
// winner through the manager matching the auction's NFT type. Owner only.
func (e *Engine) ConfirmBidResult(caller model.AccountID, auctionID model.DID, winner model.AccountID) (model.Auction, error) {
	a, ok := e.auctions[auctionID]
	if !ok {
		return model.Auction{}, ErrAuctionNotExist
	}
	if a.Owner != caller {
		return model.Auction{}, ErrNotAuctionOwner
	}
	if a.Status != model.AuctionCreated {
		return model.Auction{}, ErrAuctionFinished
	}
	m, ok := e.managers[a.NFTType]
	if !ok {
		return model.Auction{}, ErrUnsupportedNFTType
	}
	if err := m.TransferSingleNFT(caller, winner, a.NFTID); err != nil {
		return model.Auction{}, err
	}

	a.Status = model.AuctionConfirmed
	e.auctions[auctionID] = a
	return a, nil
}

// CancelBid closes the auction as Canceled. Owner only.
func (e *Engine) CancelBid(caller model.AccountID, auctionID model.DID) (model.Auction, error) {
	a, ok := e.auctions[auctionID]
	if !ok {
		return model.Auction{}, ErrAuctionNotExist
	}
	if a.Owner != caller {
		return model.Auction{}, ErrNotAuctionOwner
	}
	if a.Status != model.AuctionCreated {
		return model.Auction{}, ErrAuctionFinished
	}
	a.Status = model.AuctionCanceled
	e.auctions[auctionID] = a
	return a, nil
}

// Auction returns one auction by ID.
func (e *Engine) Auction(id model.DID) (model.Auction, bool) {
	a, ok := e.auctions[id]
	return a, ok
}

// Auctions returns all auctions in creation order.
func (e *Engine) Auctions() []model.Auction {
	out := make([]model.Auction, 0, len(e.auctionIDs))
	for _, id := range e.auctionIDs {
		out = append(out, e.auctions[id])
	}
	return out
}

// Bids returns the bid log for an auction, oldest first.
func (e *Engine) Bids(auctionID model.DID) []model.BidInfo {
	src := e.bids[auctionID]
	out := make([]model.BidInfo, len(src))
	copy(out, src)
	return out
}
