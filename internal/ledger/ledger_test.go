package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb)
}

func TestClaimConsumesOneToken(t *testing.T) {
	ldg := newTestLedger(t)
	ctx := context.Background()
	if err := ldg.Grant(ctx, "user-1", 3); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	if err := ldg.Claim(ctx, "user-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	balance, err := ldg.Balance(ctx, "user-1")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance != 2 {
		t.Fatalf("expected balance 2, got %d", balance)
	}
	processing, err := ldg.Processing(ctx, "user-1")
	if err != nil {
		t.Fatalf("processing failed: %v", err)
	}
	if !processing {
		t.Fatal("expected processing flag to be set")
	}
}

func TestClaimInsufficientBalance(t *testing.T) {
	ldg := newTestLedger(t)
	ctx := context.Background()

	err := ldg.Claim(ctx, "user-1")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("unexpected error: %v", err)
	}

	// 残高は負にならず、フラグも立たない
	balance, _ := ldg.Balance(ctx, "user-1")
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
	processing, _ := ldg.Processing(ctx, "user-1")
	if processing {
		t.Fatal("expected processing flag to stay clear")
	}
}

func TestClaimRejectsWhileProcessing(t *testing.T) {
	ldg := newTestLedger(t)
	ctx := context.Background()
	if err := ldg.Grant(ctx, "user-1", 2); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	if err := ldg.Claim(ctx, "user-1"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	err := ldg.Claim(ctx, "user-1")
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("unexpected error: %v", err)
	}

	// 拒否された要求はトークンを消費しない
	balance, _ := ldg.Balance(ctx, "user-1")
	if balance != 1 {
		t.Fatalf("expected balance 1, got %d", balance)
	}
}

func TestReleaseAllowsNextClaim(t *testing.T) {
	ldg := newTestLedger(t)
	ctx := context.Background()
	if err := ldg.Grant(ctx, "user-1", 2); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	if err := ldg.Claim(ctx, "user-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := ldg.Release(ctx, "user-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := ldg.Claim(ctx, "user-1"); err != nil {
		t.Fatalf("claim after release failed: %v", err)
	}
}

func TestRefundRestoresToken(t *testing.T) {
	ldg := newTestLedger(t)
	ctx := context.Background()
	if err := ldg.Grant(ctx, "user-1", 1); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	if err := ldg.Claim(ctx, "user-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := ldg.Refund(ctx, "user-1"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	balance, _ := ldg.Balance(ctx, "user-1")
	if balance != 1 {
		t.Fatalf("expected balance 1, got %d", balance)
	}
}

func TestLedgerIsPerUser(t *testing.T) {
	ldg := newTestLedger(t)
	ctx := context.Background()
	if err := ldg.Grant(ctx, "user-1", 1); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if err := ldg.Grant(ctx, "user-2", 1); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	if err := ldg.Claim(ctx, "user-1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	// 別ユーザーの single-flight には影響しない
	if err := ldg.Claim(ctx, "user-2"); err != nil {
		t.Fatalf("claim for other user failed: %v", err)
	}
}
