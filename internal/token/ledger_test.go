package token

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/dnft/swap-engine/internal/did"
	"github.com/dnft/swap-engine/internal/model"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(did.NewGeneratorWithSeed([32]byte{1}))
}

func issue(t *testing.T, l *Ledger, owner model.AccountID, symbol string, supply uint64) model.Token {
	t.Helper()
	tok, err := l.Issue(owner, symbol, supply)
	if err != nil {
		t.Fatalf("Issue(%s): %v", symbol, err)
	}
	return tok
}

func TestIssueCreditsFullSupply(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 1000)

	if got := l.BalanceOf("alice", tok.ID); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}
	if got := l.FreeBalanceOf("alice", tok.ID); got != 1000 {
		t.Errorf("free = %d, want 1000", got)
	}
	if got := l.FrozenBalanceOf("alice", tok.ID); got != 0 {
		t.Errorf("frozen = %d, want 0", got)
	}
	if owner, ok := l.OwnerOf(tok.ID); !ok || owner != "alice" {
		t.Errorf("OwnerOf = %q, %v", owner, ok)
	}
	if owned := l.OwnedTokens("alice"); len(owned) != 1 || owned[0] != tok.ID {
		t.Errorf("OwnedTokens = %v", owned)
	}
}

func TestIssueDistinctIDs(t *testing.T) {
	l := newTestLedger(t)
	a := issue(t, l, "alice", "AAA", 1)
	b := issue(t, l, "alice", "BBB", 1)
	if a.ID == b.ID {
		t.Errorf("two issues produced the same token ID %s", a.ID)
	}
}

func TestTransfer(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 1000)

	if err := l.Transfer("alice", tok.ID, "bob", 400, "payment"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := l.BalanceOf("alice", tok.ID); got != 600 {
		t.Errorf("alice balance = %d, want 600", got)
	}
	if got := l.FreeBalanceOf("bob", tok.ID); got != 400 {
		t.Errorf("bob free = %d, want 400", got)
	}
}

func TestTransferToSelfKeepsBalance(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 100)

	if err := l.Transfer("alice", tok.ID, "alice", 40, ""); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := l.BalanceOf("alice", tok.ID); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
	if got := l.FreeBalanceOf("alice", tok.ID); got != 100 {
		t.Errorf("free = %d, want 100", got)
	}

	// Still validated: a self-transfer beyond the balance is rejected.
	if err := l.Transfer("alice", tok.ID, "alice", 101, ""); !errors.Is(err, ErrBalanceNotEnough) {
		t.Errorf("over balance: got %v, want ErrBalanceNotEnough", err)
	}
}

func TestTransferErrors(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 100)

	if err := l.Transfer("alice", model.DID{9}, "bob", 1, ""); !errors.Is(err, ErrNoMatchingToken) {
		t.Errorf("unknown token: got %v, want ErrNoMatchingToken", err)
	}
	if err := l.Transfer("carol", tok.ID, "bob", 1, ""); !errors.Is(err, ErrSenderHasNoToken) {
		t.Errorf("no holdings: got %v, want ErrSenderHasNoToken", err)
	}
	if err := l.Transfer("alice", tok.ID, "bob", 101, ""); !errors.Is(err, ErrBalanceNotEnough) {
		t.Errorf("over balance: got %v, want ErrBalanceNotEnough", err)
	}
	if err := l.Transfer("alice", tok.ID, "bob", 1, strings.Repeat("x", MaxMemoBytes+1)); !errors.Is(err, ErrMemoTooLong) {
		t.Errorf("long memo: got %v, want ErrMemoTooLong", err)
	}
	// Failed transfers must not move anything.
	if got := l.BalanceOf("alice", tok.ID); got != 100 {
		t.Errorf("alice balance after failures = %d, want 100", got)
	}
}

func TestTransferFrozenFundsStay(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 100)
	if err := l.Freeze("alice", tok.ID, 60); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if err := l.Transfer("alice", tok.ID, "bob", 50, ""); !errors.Is(err, ErrBalanceNotEnough) {
		t.Errorf("transfer exceeding free: got %v, want ErrBalanceNotEnough", err)
	}
	if err := l.Transfer("alice", tok.ID, "bob", 40, ""); err != nil {
		t.Fatalf("transfer within free: %v", err)
	}
}

func TestFreezeUnfreezeSymmetry(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 100)

	if err := l.Freeze("alice", tok.ID, 70); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if free, frozen := l.FreeBalanceOf("alice", tok.ID), l.FrozenBalanceOf("alice", tok.ID); free != 30 || frozen != 70 {
		t.Errorf("after freeze: free=%d frozen=%d, want 30/70", free, frozen)
	}
	if bal := l.BalanceOf("alice", tok.ID); bal != 100 {
		t.Errorf("total balance changed on freeze: %d", bal)
	}

	if err := l.Unfreeze("alice", tok.ID, 70); err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	if free, frozen := l.FreeBalanceOf("alice", tok.ID), l.FrozenBalanceOf("alice", tok.ID); free != 100 || frozen != 0 {
		t.Errorf("after unfreeze: free=%d frozen=%d, want 100/0", free, frozen)
	}

	if err := l.Freeze("alice", tok.ID, 101); !errors.Is(err, ErrBalanceNotEnough) {
		t.Errorf("overfreeze: got %v, want ErrBalanceNotEnough", err)
	}
	if err := l.Unfreeze("alice", tok.ID, 1); !errors.Is(err, ErrBalanceNotEnough) {
		t.Errorf("overunfreeze: got %v, want ErrBalanceNotEnough", err)
	}
}

func TestStaticTransferRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 1000)
	pool := model.DID{0xAA}

	if err := l.StaticTransferIn("alice", pool, tok.ID, 300); err != nil {
		t.Fatalf("StaticTransferIn: %v", err)
	}
	if got := l.StaticBalanceOf(pool, tok.ID); got != 300 {
		t.Errorf("custody = %d, want 300", got)
	}
	if got := l.BalanceOf("alice", tok.ID); got != 700 {
		t.Errorf("alice balance = %d, want 700", got)
	}

	if err := l.StaticTransferOut(pool, "bob", tok.ID, 200); err != nil {
		t.Fatalf("StaticTransferOut: %v", err)
	}
	if got := l.StaticBalanceOf(pool, tok.ID); got != 100 {
		t.Errorf("custody = %d, want 100", got)
	}
	if got := l.FreeBalanceOf("bob", tok.ID); got != 200 {
		t.Errorf("bob free = %d, want 200", got)
	}

	if err := l.StaticTransferOut(pool, "bob", tok.ID, 101); !errors.Is(err, ErrBalanceNotEnough) {
		t.Errorf("custody overdraw: got %v, want ErrBalanceNotEnough", err)
	}
}

func TestCheckedAdd(t *testing.T) {
	if got, err := checkedAdd(1, 2); err != nil || got != 3 {
		t.Errorf("checkedAdd(1, 2) = %d, %v", got, err)
	}
	if got, err := checkedAdd(math.MaxUint64, 0); err != nil || got != math.MaxUint64 {
		t.Errorf("checkedAdd(max, 0) = %d, %v", got, err)
	}
	if _, err := checkedAdd(math.MaxUint64, 1); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("checkedAdd(max, 1): got %v, want ErrAmountOverflow", err)
	}
}

func TestEnsureFreeBalance(t *testing.T) {
	l := newTestLedger(t)
	tok := issue(t, l, "alice", "ABC", 100)
	if err := l.Freeze("alice", tok.ID, 40); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	if err := l.EnsureFreeBalance("alice", tok.ID, 60); err != nil {
		t.Errorf("EnsureFreeBalance(60): %v", err)
	}
	if err := l.EnsureFreeBalance("alice", tok.ID, 61); !errors.Is(err, ErrBalanceNotEnough) {
		t.Errorf("EnsureFreeBalance(61): got %v, want ErrBalanceNotEnough", err)
	}
	if err := l.EnsureFreeBalance("alice", model.DID{7}, 1); !errors.Is(err, ErrNoMatchingToken) {
		t.Errorf("unknown token: got %v, want ErrNoMatchingToken", err)
	}
}
