package oracle

import (
	"context"
	"testing"
	"time"

	"solana-copy-trader/internal/solana/stub"
)

const (
	testOwner = "AVAZvHLR2PcWpDf8BXY4rVxNHYRBytycHkcB5z5QNXYm"
	testMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestCachedOracle_ServesFromCacheWithinTTL(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOwner, testMint, 100, 6)

	now := time.Unix(0, 0)
	o := NewCachedOracle(rpc, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	bal, err := o.TokenBalance(ctx, testOwner, testMint)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal.Amount != 100 || bal.Decimals != 6 {
		t.Fatalf("unexpected balance: %+v", bal)
	}

	// Balance changes on chain, but the cache is still fresh.
	rpc.SetBalance(testOwner, testMint, 50, 6)
	now = now.Add(1 * time.Second)

	bal, err = o.TokenBalance(ctx, testOwner, testMint)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal.Amount != 100 {
		t.Fatalf("expected cached amount 100, got %f", bal.Amount)
	}
	if rpc.BalanceCalls != 1 {
		t.Fatalf("expected 1 RPC call, got %d", rpc.BalanceCalls)
	}
}

func TestCachedOracle_RefetchesAfterTTL(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOwner, testMint, 100, 6)

	now := time.Unix(0, 0)
	o := NewCachedOracle(rpc, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := o.TokenBalance(ctx, testOwner, testMint); err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}

	rpc.SetBalance(testOwner, testMint, 50, 6)
	now = now.Add(DefaultCacheTTL)

	bal, err := o.TokenBalance(ctx, testOwner, testMint)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal.Amount != 50 {
		t.Fatalf("expected refreshed amount 50, got %f", bal.Amount)
	}
	if rpc.BalanceCalls != 2 {
		t.Fatalf("expected 2 RPC calls, got %d", rpc.BalanceCalls)
	}
}

func TestCachedOracle_InvalidateForcesRefetch(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOwner, testMint, 100, 6)

	o := NewCachedOracle(rpc)
	ctx := context.Background()

	if _, err := o.TokenBalance(ctx, testOwner, testMint); err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}

	rpc.SetBalance(testOwner, testMint, 75, 6)
	o.Invalidate(testOwner, testMint)

	bal, err := o.TokenBalance(ctx, testOwner, testMint)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal.Amount != 75 {
		t.Fatalf("expected refetched amount 75, got %f", bal.Amount)
	}
}

func TestCachedOracle_KeysAreIndependent(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBalance(testOwner, "MintA", 1, 6)
	rpc.SetBalance(testOwner, "MintB", 2, 9)

	o := NewCachedOracle(rpc)
	ctx := context.Background()

	a, err := o.TokenBalance(ctx, testOwner, "MintA")
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	b, err := o.TokenBalance(ctx, testOwner, "MintB")
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if a.Amount != 1 || b.Amount != 2 || b.Decimals != 9 {
		t.Fatalf("cache keys collided: a=%+v b=%+v", a, b)
	}
	if rpc.BalanceCalls != 2 {
		t.Fatalf("expected 2 RPC calls, got %d", rpc.BalanceCalls)
	}
}

func TestCachedOracle_ZeroBalanceForUnknownAccount(t *testing.T) {
	rpc := stub.NewRPCClient()
	o := NewCachedOracle(rpc)

	bal, err := o.TokenBalance(context.Background(), testOwner, "NeverHeld")
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if bal.Amount != 0 || bal.Decimals != 0 {
		t.Fatalf("expected zero balance, got %+v", bal)
	}
}
