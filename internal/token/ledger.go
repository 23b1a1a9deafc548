// Package token implements the fungible-token ledger: token registration and
// per-(account, token) balance, free and frozen maps, plus the pool-custody
// balances that hold AMM reserves inside the same ledger.
//
// Every account satisfies balance = free + frozen per token; each mutation
// moves matched amounts so the identity holds by construction. All amounts
// use checked uint64 arithmetic and fail with ErrAmountOverflow rather than
// wrapping.
//
// The ledger is not safe for concurrent use; callers serialize access.
package token

import (
	"errors"
	"math/bits"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
)

// MaxMemoBytes caps the memo attached to a transfer.
const MaxMemoBytes = 512

var (
	// ErrNoMatchingToken is returned when the token ID is not registered.
	ErrNoMatchingToken = errors.New("token: no matching token")

	// ErrSenderHasNoToken is returned when the sender holds no balance at
	// all for the token being transferred.
	ErrSenderHasNoToken = errors.New("token: sender does not have the token")

	// ErrBalanceNotEnough is returned when balance or free balance does not
	// cover the requested amount.
	ErrBalanceNotEnough = errors.New("token: balance is not enough")

	// ErrMemoTooLong is returned when a transfer memo exceeds MaxMemoBytes.
	ErrMemoTooLong = errors.New("token: memo length exceeds limit")

	// ErrAmountOverflow is returned when a balance update would overflow
	// uint64.
	ErrAmountOverflow = errors.New("token: amount overflow")
)

type balanceKey struct {
	Account model.AccountID
	Token   model.DID
}

type custodyKey struct {
	Pool  model.DID
	Token model.DID
}

// Ledger holds all token state.
type Ledger struct {
	gen   *did.Generator
	nonce uint64

	tokens      map[model.DID]model.Token
	ownedTokens map[model.AccountID][]model.DID

	balances map[balanceKey]uint64
	free     map[balanceKey]uint64
	frozen   map[balanceKey]uint64
	custody  map[custodyKey]uint64
}

// NewLedger returns an empty ledger deriving token IDs from gen.
func NewLedger(gen *did.Generator) *Ledger {
	return &Ledger{
		gen:         gen,
		tokens:      make(map[model.DID]model.Token),
		ownedTokens: make(map[model.AccountID][]model.DID),
		balances:    make(map[balanceKey]uint64),
		free:        make(map[balanceKey]uint64),
		frozen:      make(map[balanceKey]uint64),
		custody:     make(map[custodyKey]uint64),
	}
}

// Issue registers a new token and credits the full supply to the issuer as
// free balance.
func (l *Ledger) Issue(caller model.AccountID, symbol string, totalSupply uint64) (model.Token, error) {
	id, err := l.gen.Next(caller, l.nonce)
	if err != nil {
		return model.Token{}, err
	}

	tok := model.Token{
		ID:          id,
		Owner:       caller,
		Symbol:      symbol,
		TotalSupply: totalSupply,
	}
	l.tokens[id] = tok
	l.ownedTokens[caller] = append(l.ownedTokens[caller], id)
	l.nonce++

	k := balanceKey{caller, id}
	l.balances[k] = totalSupply
	l.free[k] = totalSupply
	return tok, nil
}

// Transfer moves amount of tokenID from the caller to another account. The
// frozen portion of the sender's balance never moves.
func (l *Ledger) Transfer(caller model.AccountID, tokenID model.DID, to model.AccountID, amount uint64, memo string) error {
	if len(memo) > MaxMemoBytes {
		return ErrMemoTooLong
	}
	if _, ok := l.tokens[tokenID]; !ok {
		return ErrNoMatchingToken
	}

	from := balanceKey{caller, tokenID}
	if l.balances[from] == 0 {
		return ErrSenderHasNoToken
	}
	if l.balances[from] < amount || l.free[from] < amount {
		return ErrBalanceNotEnough
	}
	// A self-transfer is a validated no-op: debiting and crediting the same
	// key must not change the balance.
	if to == caller {
		return nil
	}

	dst := balanceKey{to, tokenID}
	newBal, err := checkedAdd(l.balances[dst], amount)
	if err != nil {
		return err
	}
	newFree, err := checkedAdd(l.free[dst], amount)
	if err != nil {
		return err
	}

	l.balances[from] -= amount
	l.free[from] -= amount
	l.balances[dst] = newBal
	l.free[dst] = newFree
	return nil
}

// Freeze moves amount of the account's free balance into its frozen balance.
func (l *Ledger) Freeze(account model.AccountID, tokenID model.DID, amount uint64) error {
	if _, ok := l.tokens[tokenID]; !ok {
		return ErrNoMatchingToken
	}
	k := balanceKey{account, tokenID}
	if l.free[k] < amount {
		return ErrBalanceNotEnough
	}
	newFrozen, err := checkedAdd(l.frozen[k], amount)
	if err != nil {
		return err
	}
	l.free[k] -= amount
	l.frozen[k] = newFrozen
	return nil
}

// Unfreeze moves amount of the account's frozen balance back to free.
func (l *Ledger) Unfreeze(account model.AccountID, tokenID model.DID, amount uint64) error {
	if _, ok := l.tokens[tokenID]; !ok {
		return ErrNoMatchingToken
	}
	k := balanceKey{account, tokenID}
	if l.frozen[k] < amount {
		return ErrBalanceNotEnough
	}
	newFree, err := checkedAdd(l.free[k], amount)
	if err != nil {
		return err
	}
	l.frozen[k] -= amount
	l.free[k] = newFree
	return nil
}

// StaticTransferIn moves amount from an account's free balance into a pool's
// custody balance.
func (l *Ledger) StaticTransferIn(account model.AccountID, poolID, tokenID model.DID, amount uint64) error {
	if _, ok := l.tokens[tokenID]; !ok {
		return ErrNoMatchingToken
	}
	k := balanceKey{account, tokenID}
	if l.balances[k] < amount || l.free[k] < amount {
		return ErrBalanceNotEnough
	}
	ck := custodyKey{poolID, tokenID}
	newCustody, err := checkedAdd(l.custody[ck], amount)
	if err != nil {
		return err
	}
	l.balances[k] -= amount
	l.free[k] -= amount
	l.custody[ck] = newCustody
	return nil
}

// StaticTransferOut moves amount from a pool's custody balance to an
// account's free balance.
func (l *Ledger) StaticTransferOut(poolID model.DID, account model.AccountID, tokenID model.DID, amount uint64) error {
	if _, ok := l.tokens[tokenID]; !ok {
		return ErrNoMatchingToken
	}
	ck := custodyKey{poolID, tokenID}
	if l.custody[ck] < amount {
		return ErrBalanceNotEnough
	}
	k := balanceKey{account, tokenID}
	newBal, err := checkedAdd(l.balances[k], amount)
	if err != nil {
		return err
	}
	newFree, err := checkedAdd(l.free[k], amount)
	if err != nil {
		return err
	}
	l.custody[ck] -= amount
	l.balances[k] = newBal
	l.free[k] = newFree
	return nil
}

// Token returns the token record for id.
func (l *Ledger) Token(id model.DID) (model.Token, bool) {
	tok, ok := l.tokens[id]
	return tok, ok
}

// OwnerOf returns the issuing account of a token.
func (l *Ledger) OwnerOf(id model.DID) (model.AccountID, bool) {
	tok, ok := l.tokens[id]
	return tok.Owner, ok
}

// OwnedTokens returns the token IDs issued by an account.
func (l *Ledger) OwnedTokens(account model.AccountID) []model.DID {
	ids := l.ownedTokens[account]
	out := make([]model.DID, len(ids))
	copy(out, ids)
	return out
}

// BalanceOf returns the total balance of an account for a token.
func (l *Ledger) BalanceOf(account model.AccountID, tokenID model.DID) uint64 {
	return l.balances[balanceKey{account, tokenID}]
}

// FreeBalanceOf returns the unlocked balance of an account for a token.
func (l *Ledger) FreeBalanceOf(account model.AccountID, tokenID model.DID) uint64 {
	return l.free[balanceKey{account, tokenID}]
}

// FrozenBalanceOf returns the frozen balance of an account for a token.
func (l *Ledger) FrozenBalanceOf(account model.AccountID, tokenID model.DID) uint64 {
	return l.frozen[balanceKey{account, tokenID}]
}

// StaticBalanceOf returns a pool's custody balance for a token.
func (l *Ledger) StaticBalanceOf(poolID, tokenID model.DID) uint64 {
	return l.custody[custodyKey{poolID, tokenID}]
}

// EnsureFreeBalance checks that both the total and free balances cover
// amount.
func (l *Ledger) EnsureFreeBalance(account model.AccountID, tokenID model.DID, amount uint64) error {
	if _, ok := l.tokens[tokenID]; !ok {
		return ErrNoMatchingToken
	}
	k := balanceKey{account, tokenID}
	if l.balances[k] < amount || l.free[k] < amount {
		return ErrBalanceNotEnough
	}
	return nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrAmountOverflow
	}
	return sum, nil
}
