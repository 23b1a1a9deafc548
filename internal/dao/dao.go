// Package dao implements proposal creation and voting. Each account votes
// at most once per proposal and votes count one each; a proposal succeeds
// once its yes tally reaches the threshold set at creation.
//
// The engine is not safe for concurrent use. Callers serialize access.
package dao

import (
	"errors"
	"time"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
)

var (
	// ErrProposalNotExist is returned when a proposal ID resolves to nothing.
	ErrProposalNotExist = errors.New("dao: proposal does not exist")

	// ErrAlreadyVoted is returned when an account votes twice on one proposal.
	ErrAlreadyVoted = errors.New("dao: account already voted on proposal")

	// ErrVoteClosed is returned when a vote arrives past the proposal deadline.
	ErrVoteClosed = errors.New("dao: voting deadline has passed")
)

type voteKey struct {
	Proposal model.DID
	Voter    model.AccountID
}

// Engine holds all proposals and the per-account vote record.
type Engine struct {
	gen *did.Generator
	now func() time.Time

	nonce       uint64
	proposals   map[model.DID]model.Proposal
	proposalIDs []model.DID
	voted       map[voteKey]bool
}

func NewEngine(gen *did.Generator) *Engine {
	return &Engine{
		gen:       gen,
		now:       time.Now,
		proposals: make(map[model.DID]model.Proposal),
		voted:     make(map[voteKey]bool),
	}
}

// SetClock overrides the time source. Tests use this.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// CreateProposal registers a new proposal with zeroed tallies.
func (e *Engine) CreateProposal(caller model.AccountID, name, content string, minToSucceed uint64, deadline time.Time) (model.Proposal, error) {
	id, err := e.gen.Next(caller, e.nonce)
	if err != nil {
		return model.Proposal{}, err
	}
	e.nonce++

	p := model.Proposal{
		ID:           id,
		Owner:        caller,
		Name:         name,
		Content:      content,
		MinToSucceed: minToSucceed,
		Deadline:     deadline,
	}
	e.proposals[id] = p
	e.proposalIDs = append(e.proposalIDs, id)
	return p, nil
}

// Vote records one yes or no vote. Every account gets a single vote per
// proposal and votes past the deadline are rejected.
func (e *Engine) Vote(voter model.AccountID, proposalID model.DID, approve bool) (model.Proposal, error) {
	p, ok := e.proposals[proposalID]
	if !ok {
		return model.Proposal{}, ErrProposalNotExist
	}
	key := voteKey{Proposal: proposalID, Voter: voter}
	if e.voted[key] {
		return model.Proposal{}, ErrAlreadyVoted
	}
	if e.now().After(p.Deadline) {
		return model.Proposal{}, ErrVoteClosed
	}

	if approve {
		p.VoteYes++
	} else {
		p.VoteNo++
	}
	e.proposals[proposalID] = p
	e.voted[key] = true
	return p, nil
}

// Succeeded reports whether the proposal's yes tally has reached its
// threshold.
func (e *Engine) Succeeded(proposalID model.DID) (bool, error) {
	p, ok := e.proposals[proposalID]
	if !ok {
		return false, ErrProposalNotExist
	}
	return p.VoteYes >= p.MinToSucceed, nil
}

// Proposal returns one proposal by ID.
func (e *Engine) Proposal(id model.DID) (model.Proposal, bool) {
	p, ok := e.proposals[id]
	return p, ok
}

// Proposals returns all proposals in creation order.
func (e *Engine) Proposals() []model.Proposal {
	out := make([]model.Proposal, 0, len(e.proposalIDs))
	for _, id := range e.proposalIDs {
		out = append(out, e.proposals[id])
	}
	return out
}

// HasVoted reports whether an account already voted on a proposal.
func (e *Engine) HasVoted(voter model.AccountID, proposalID model.DID) bool {
	return e.voted[voteKey{Proposal: proposalID, Voter: voter}]
}
