// Package model defines the core domain types shared across the swap engine.
// All on-ledger amounts and prices are unsigned 64-bit integers; division
// truncates toward zero. Decimal values appear only in read-side views.
package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DID is an opaque 32-byte identifier derived from (seed, caller, nonce).
// It is the primary key for tokens, trade pairs, pools, orders, auctions
// and proposals. Comparable, so usable directly as a map key.
type DID [32]byte

// ParseDID decodes a 64-character hex string into a DID.
func ParseDID(s string) (DID, error) {
	var d DID
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("model: invalid did %q: %w", s, err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("model: invalid did length %d", len(b))
	}
	copy(d[:], b)
	return d, nil
}

func (d DID) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether the DID is the zero value (no identifier).
func (d DID) IsZero() bool { return d == DID{} }

func (d DID) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DID) UnmarshalText(b []byte) error {
	parsed, err := ParseDID(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AccountID identifies an authenticated caller. Authentication itself is the
// host's responsibility; the engine trusts the value it is handed.
type AccountID string

// TradeMethod is the trading mechanism a pair is registered with.
type TradeMethod uint8

const (
	MethodAuction TradeMethod = iota
	MethodAMM
	MethodOrderBook
	MethodP2P
)

func (m TradeMethod) String() string {
	switch m {
	case MethodAuction:
		return "auction"
	case MethodAMM:
		return "amm"
	case MethodOrderBook:
		return "orderbook"
	case MethodP2P:
		return "p2p"
	}
	return fmt.Sprintf("method(%d)", uint8(m))
}

// ParseTradeMethod maps a method name to a TradeMethod.
func ParseTradeMethod(s string) (TradeMethod, error) {
	switch s {
	case "auction":
		return MethodAuction, nil
	case "amm":
		return MethodAMM, nil
	case "orderbook":
		return MethodOrderBook, nil
	case "p2p":
		return MethodP2P, nil
	}
	return 0, fmt.Errorf("model: invalid trade method %q", s)
}

// OrderSide is the direction of a limit order.
type OrderSide uint8

const (
	Buy OrderSide = iota
	Sell
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s OrderSide) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// ParseOrderSide maps "buy"/"sell" to an OrderSide.
func ParseOrderSide(s string) (OrderSide, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("model: invalid order side %q", s)
}

// OrderStatus is the lifecycle state of a limit order.
type OrderStatus uint8

const (
	OrderCreated OrderStatus = iota
	OrderPartialFilled
	OrderFilled
	OrderCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderCreated:
		return "created"
	case OrderPartialFilled:
		return "partial_filled"
	case OrderFilled:
		return "filled"
	case OrderCanceled:
		return "canceled"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Token is a registered fungible token. Balances live in separate ledger
// maps, not on the token record.
type Token struct {
	ID          DID       `json:"id"`
	Owner       AccountID `json:"owner"`
	Symbol      string    `json:"symbol"`
	TotalSupply uint64    `json:"total_supply"`
}

// TradePair registers a (base, quote) token pair with a trading method and
// rolling aggregate stats maintained by the matcher.
type TradePair struct {
	ID                 DID         `json:"id"`
	Base               DID         `json:"base"`
	Quote              DID         `json:"quote"`
	Method             TradeMethod `json:"method"`
	MatchedPrice       uint64      `json:"matched_price"`
	OneDayTradeVolume  uint64      `json:"one_day_trade_volume"`
	OneDayHighestPrice uint64      `json:"one_day_highest_price"`
	OneDayLowestPrice  uint64      `json:"one_day_lowest_price"`
}

// LiquidityPool holds the state of one constant-product pool. Prices are
// truncated base/quote ratios; KLast is the reserve product after the most
// recent operation.
type LiquidityPool struct {
	ID                DID    `json:"id"`
	PairID            DID    `json:"pair_id"`
	Token0            DID    `json:"token0"`
	Token1            DID    `json:"token1"`
	Token0Amount      uint64 `json:"token0_amount"`
	Token1Amount      uint64 `json:"token1_amount"`
	KLast             uint64 `json:"k_last"`
	SwapPriceLast     uint64 `json:"swap_price_last"`
	SwapPriceHighest  uint64 `json:"swap_price_highest"`
	SwapPriceLowest   uint64 `json:"swap_price_lowest"`
	Token0VolumeTotal uint64 `json:"token0_volume_total"`
	Token1VolumeTotal uint64 `json:"token1_volume_total"`
}

// SpotPrice returns the exact (untruncated) reserve ratio token0/token1 for
// display. The on-ledger SwapPriceLast keeps the truncated integer ratio.
func (p *LiquidityPool) SpotPrice() decimal.Decimal {
	if p.Token1Amount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(p.Token0Amount).
		Div(decimal.NewFromUint64(p.Token1Amount))
}

// AmmOrder is the immutable record of one executed swap.
type AmmOrder struct {
	ID              DID       `json:"id"`
	PoolID          DID       `json:"pool_id"`
	Owner           AccountID `json:"owner"`
	TokenHave       DID       `json:"token_have"`
	TokenHaveAmount uint64    `json:"token_have_amount"`
	TokenWant       DID       `json:"token_want"`
	TokenWantAmount uint64    `json:"token_want_amount"`
	SwapPrice       uint64    `json:"swap_price"`
	Index           uint64    `json:"index"`
	Timestamp       time.Time `json:"timestamp"`
}

// LimitOrder is a resting or staged order on the book. Amount and
// RemainedAmount are quote-token notionals (the quote leg is what gets
// frozen at creation time).
type LimitOrder struct {
	ID             DID         `json:"id"`
	PairID         DID         `json:"pair_id"`
	Owner          AccountID   `json:"owner"`
	Price          uint64      `json:"price"`
	Amount         uint64      `json:"amount"`
	CreatedAt      time.Time   `json:"created_at"`
	RemainedAmount uint64      `json:"remained_amount"`
	Side           OrderSide   `json:"side"`
	Status         OrderStatus `json:"status"`
	Index          uint32      `json:"index"`
}

// Finished reports whether the order is in a terminal state: fully filled
// or canceled.
func (o *LimitOrder) Finished() bool {
	return (o.RemainedAmount == 0 && o.Status == OrderFilled) ||
		o.Status == OrderCanceled
}

// StagedOrder is the value held in a ring-buffer staging queue: the index of
// a limit order awaiting admission into the book.
type StagedOrder struct {
	OrderIndex uint32 `json:"order_index"`
	Live       bool   `json:"live"`
}

// Trade is the record of one matched fill between a buy and a sell order.
type Trade struct {
	ID          string    `json:"id"`
	PairID      DID       `json:"pair_id"`
	Buyer       AccountID `json:"buyer"`
	Seller      AccountID `json:"seller"`
	TakerSide   OrderSide `json:"taker_side"`
	Price       uint64    `json:"price"`
	BaseAmount  uint64    `json:"base_amount"`
	QuoteAmount uint64    `json:"quote_amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus uint8

const (
	AuctionCreated AuctionStatus = iota
	AuctionConfirmed
	AuctionCanceled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionCreated:
		return "created"
	case AuctionConfirmed:
		return "confirmed"
	case AuctionCanceled:
		return "canceled"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// NFTType selects which NFT manager backend an auction settles through.
type NFTType uint8

const (
	NFT721 NFTType = iota
	NFT1155
	NFT2006
)

// ParseNFTType maps a backend name to an NFTType.
func ParseNFTType(s string) (NFTType, error) {
	switch s {
	case "nft721":
		return NFT721, nil
	case "nft1155":
		return NFT1155, nil
	case "nft2006":
		return NFT2006, nil
	}
	return 0, fmt.Errorf("model: invalid nft type %q", s)
}

// Auction is one NFT auction record. Start and end times are stored but not
// enforced by any transition.
type Auction struct {
	ID        DID           `json:"id"`
	Owner     AccountID     `json:"owner"`
	NFTType   NFTType       `json:"nft_type"`
	NFTID     DID           `json:"nft_id"`
	BasePrice uint64        `json:"base_price"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Status    AuctionStatus `json:"status"`
}

// BidInfo is one appended bid. Bids are an unscreened log; no escrow or
// monotonicity is enforced at bid time.
type BidInfo struct {
	Bidder AccountID `json:"bidder"`
	Price  uint64    `json:"price"`
	Time   time.Time `json:"time"`
}

// Proposal is one DAO proposal with running vote tallies.
type Proposal struct {
	ID           DID       `json:"id"`
	Owner        AccountID `json:"owner"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	MinToSucceed uint64    `json:"min_to_succeed"`
	VoteYes      uint64    `json:"vote_yes"`
	VoteNo       uint64    `json:"vote_no"`
	Deadline     time.Time `json:"deadline"`
}

// Event is one entry of the append-only event log every state transition
// emits.
type Event struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Caller    AccountID       `json:"caller"`
	Entity    DID             `json:"entity"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event kinds emitted by the engine.
const (
	EventTokenIssued       = "token_issued"
	EventTokenTransferred  = "token_transferred"
	EventTradePairCreated  = "trade_pair_created"
	EventPoolInitialized   = "pool_initialized"
	EventLiquidityAdded    = "liquidity_added"
	EventTradeExecuted     = "trade_executed"
	EventLiquidityRemoved  = "liquidity_removed"
	EventLimitOrderCreated = "limit_order_created"
	EventOrderCanceled     = "order_canceled"
	EventOrderMatched      = "order_matched"
	EventAuctionLaunched   = "auction_launched"
	EventAuctionBid        = "auction_bid"
	EventAuctionConfirmed  = "auction_confirmed"
	EventAuctionCanceled   = "auction_canceled"
	EventProposalCreated   = "proposal_created"
	EventProposalVoted     = "proposal_voted"
)
