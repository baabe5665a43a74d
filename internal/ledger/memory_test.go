package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/bridgectl/internal/account"
	"github.com/holiman/uint256"
)

var (
	alice   = account.MustParseAddress("0xa11ce00000000000000000000000000000000001")
	bob     = account.MustParseAddress("0xb0b0000000000000000000000000000000000002")
	lockbox = account.MustParseAddress("0x10c0000000000000000000000000000000000003")
	feeSink = account.MustParseAddress("0xfee0000000000000000000000000000000000004")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestMintBurnDebitCredit(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(MemoryConfig{Mode: ModeMintBurn})
	l.Mint(alice, u(1000))

	actual, err := l.Debit(ctx, alice, u(400))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if actual.Uint64() != 400 {
		t.Fatalf("unexpected actual: %s", actual.Dec())
	}
	if l.TotalSupply().Uint64() != 600 || l.BalanceOf(alice).Uint64() != 600 {
		t.Fatalf("unexpected supply=%s balance=%s", l.TotalSupply().Dec(), l.BalanceOf(alice).Dec())
	}

	if _, err := l.Credit(ctx, bob, u(250)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if l.BalanceOf(bob).Uint64() != 250 || l.TotalSupply().Uint64() != 850 {
		t.Fatalf("unexpected bob=%s supply=%s", l.BalanceOf(bob).Dec(), l.TotalSupply().Dec())
	}

	if _, err := l.Debit(ctx, bob, u(251)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if l.BalanceOf(bob).Uint64() != 250 {
		t.Fatalf("failed debit changed balance: %s", l.BalanceOf(bob).Dec())
	}
}

func TestLockboxFeeOnTransferReportsActual(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(MemoryConfig{Mode: ModeLockbox, Lockbox: lockbox, FeeBps: 100, FeeCollector: feeSink})
	l.Mint(alice, u(10_000))

	actual, err := l.Debit(ctx, alice, u(1_000))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if actual.Uint64() != 990 {
		t.Fatalf("expected 1%% fee on lock, got actual=%s", actual.Dec())
	}
	if l.BalanceOf(lockbox).Uint64() != 990 || l.BalanceOf(feeSink).Uint64() != 10 {
		t.Fatalf("unexpected lockbox=%s fee=%s", l.BalanceOf(lockbox).Dec(), l.BalanceOf(feeSink).Dec())
	}
	if l.Outbound().Uint64() != 990 {
		t.Fatalf("unexpected outbound: %s", l.Outbound().Dec())
	}
	if l.TotalSupply().Uint64() != 10_000 || l.CirculatingSupply().Uint64() != 9_010 {
		t.Fatalf("unexpected supply=%s circulating=%s", l.TotalSupply().Dec(), l.CirculatingSupply().Dec())
	}

	credited, err := l.Credit(ctx, bob, u(500))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if credited.Uint64() != 495 || l.BalanceOf(bob).Uint64() != 495 {
		t.Fatalf("unexpected credited=%s bob=%s", credited.Dec(), l.BalanceOf(bob).Dec())
	}
	if l.Outbound().Uint64() != 490 {
		t.Fatalf("unexpected outbound after release: %s", l.Outbound().Dec())
	}
}

func TestLockboxOutboundCap(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(MemoryConfig{Mode: ModeLockbox, Lockbox: lockbox, OutboundCap: u(100)})
	l.Mint(alice, u(1_000))

	if _, err := l.Debit(ctx, alice, u(100)); err != nil {
		t.Fatalf("debit at cap: %v", err)
	}
	if _, err := l.Debit(ctx, alice, u(1)); !errors.Is(err, ErrOutboundOverflow) {
		t.Fatalf("expected ErrOutboundOverflow, got %v", err)
	}
	if l.BalanceOf(alice).Uint64() != 900 || l.BalanceOf(lockbox).Uint64() != 100 {
		t.Fatalf("rejected debit leaked: alice=%s lockbox=%s", l.BalanceOf(alice).Dec(), l.BalanceOf(lockbox).Dec())
	}
}

func TestSnapshotRevertAndDiscard(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(MemoryConfig{})
	l.Mint(alice, u(100))

	snap := l.Snapshot()
	if _, err := l.Transfer(ctx, alice, bob, u(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	inner := l.Snapshot()
	if _, err := l.Transfer(ctx, bob, alice, u(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := l.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if l.BalanceOf(alice).Uint64() != 100 || l.BalanceOf(bob).Uint64() != 0 {
		t.Fatalf("revert incomplete: alice=%s bob=%s", l.BalanceOf(alice).Dec(), l.BalanceOf(bob).Dec())
	}
	if err := l.RevertToSnapshot(inner); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected nested snapshot invalidated, got %v", err)
	}

	keep := l.Snapshot()
	if _, err := l.Transfer(ctx, alice, bob, u(5)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	l.DiscardSnapshot(keep)
	if err := l.RevertToSnapshot(keep); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected discarded snapshot invalid, got %v", err)
	}
	if l.BalanceOf(bob).Uint64() != 5 {
		t.Fatalf("discard must keep changes, bob=%s", l.BalanceOf(bob).Dec())
	}
}
