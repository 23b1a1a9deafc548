// Package tradepair implements the trade-pair registry: each (base, quote)
// token pair is registered once with a trading method and carries aggregate
// stats maintained by the matching engine.
package tradepair

import (
	"errors"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
)

var (
	// ErrBaseEqualsQuote is returned when a pair is created over a single
	// token.
	ErrBaseEqualsQuote = errors.New("tradepair: base and quote are the same token")

	// ErrTokenOwnerNotFound is returned when neither token of the pair is
	// registered.
	ErrTokenOwnerNotFound = errors.New("tradepair: token owner not found")

	// ErrNotTokenOwner is returned when the caller owns neither the base
	// nor the quote token.
	ErrNotTokenOwner = errors.New("tradepair: caller is not a token owner")

	// ErrTradePairExists is returned when the pair is already registered in
	// either orientation.
	ErrTradePairExists = errors.New("tradepair: trade pair already exists")

	// ErrNoMatchingTradePair is returned when the pair ID is unknown.
	ErrNoMatchingTradePair = errors.New("tradepair: no matching trade pair")
)

// TokenOwners is the slice of the token ledger the registry needs.
type TokenOwners interface {
	OwnerOf(id model.DID) (model.AccountID, bool)
}

type tokenPair struct {
	Base  model.DID
	Quote model.DID
}

// Registry holds all registered trade pairs.
type Registry struct {
	gen    *did.Generator
	owners TokenOwners
	nonce  uint64

	pairs    map[model.DID]model.TradePair
	byTokens map[tokenPair]model.DID
}

// NewRegistry returns an empty registry.
func NewRegistry(gen *did.Generator, owners TokenOwners) *Registry {
	return &Registry{
		gen:      gen,
		owners:   owners,
		pairs:    make(map[model.DID]model.TradePair),
		byTokens: make(map[tokenPair]model.DID),
	}
}

// Create registers a (base, quote) pair with a trading method. The caller
// must own at least one of the two tokens, and the pair must not already
// exist in either orientation.
func (r *Registry) Create(caller model.AccountID, base, quote model.DID, method model.TradeMethod) (model.TradePair, error) {
	if base == quote {
		return model.TradePair{}, ErrBaseEqualsQuote
	}

	baseOwner, baseOK := r.owners.OwnerOf(base)
	quoteOwner, quoteOK := r.owners.OwnerOf(quote)
	if !baseOK && !quoteOK {
		return model.TradePair{}, ErrTokenOwnerNotFound
	}
	if !(baseOK && baseOwner == caller) && !(quoteOK && quoteOwner == caller) {
		return model.TradePair{}, ErrNotTokenOwner
	}

	if _, ok := r.byTokens[tokenPair{base, quote}]; ok {
		return model.TradePair{}, ErrTradePairExists
	}
	if _, ok := r.byTokens[tokenPair{quote, base}]; ok {
		return model.TradePair{}, ErrTradePairExists
	}

	id, err := r.gen.Next(caller, r.nonce)
	if err != nil {
		return model.TradePair{}, err
	}

	pair := model.TradePair{
		ID:     id,
		Base:   base,
		Quote:  quote,
		Method: method,
	}
	r.pairs[id] = pair
	r.byTokens[tokenPair{base, quote}] = id
	r.nonce++
	return pair, nil
}

// Pair returns the pair record for id.
func (r *Registry) Pair(id model.DID) (model.TradePair, bool) {
	p, ok := r.pairs[id]
	return p, ok
}

// PairByTokens returns the pair registered for (base, quote) in that
// orientation.
func (r *Registry) PairByTokens(base, quote model.DID) (model.TradePair, bool) {
	id, ok := r.byTokens[tokenPair{base, quote}]
	if !ok {
		return model.TradePair{}, false
	}
	return r.pairs[id], true
}

// Pairs returns all registered pairs.
func (r *Registry) Pairs() []model.TradePair {
	out := make([]model.TradePair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	return out
}

// RecordFill folds one matched fill into the pair's aggregate stats. The
// first fill seeds both the high and the low.
func (r *Registry) RecordFill(id model.DID, price, quoteVolume uint64) error {
	p, ok := r.pairs[id]
	if !ok {
		return ErrNoMatchingTradePair
	}

	p.MatchedPrice = price
	p.OneDayTradeVolume += quoteVolume
	if p.OneDayHighestPrice == 0 || price > p.OneDayHighestPrice {
		p.OneDayHighestPrice = price
	}
	if p.OneDayLowestPrice == 0 || price < p.OneDayLowestPrice {
		p.OneDayLowestPrice = price
	}

	r.pairs[id] = p
	return nil
}
