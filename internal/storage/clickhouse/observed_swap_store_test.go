package clickhouse_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage/clickhouse"
)

func sampleObservedSwap(sig string, ts int64) *domain.ObservedSwap {
	return &domain.ObservedSwap{
		TxSignature:  sig,
		Wallet:       "AVAZvHLR2PcWpDf8BXY4rVxNHYRBytycHkcB5z5QNXYm",
		TokenInMint:  "So11111111111111111111111111111111111111112",
		TokenOutMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		AmountIn:     1.5,
		AmountOut:    3210.75,
		Pool:         ptr("58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"),
		Mode:         domain.ModePush,
		Slot:         250000000,
		Timestamp:    ts,
	}
}

func TestObservedSwapStore_InsertAndGetByWallet(t *testing.T) {
	conn, cleanup := setupTestClickhouse(t)
	defer cleanup()

	store := clickhouse.NewObservedSwapStore(conn)
	ctx := context.Background()

	swap := sampleObservedSwap("sig-1", 1700000000000)
	require.NoError(t, store.Insert(ctx, swap))

	got, err := store.GetByWallet(ctx, swap.Wallet, 1700000000000, 1700000000000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, swap, got[0])
}

func TestObservedSwapStore_InsertBulkOrdered(t *testing.T) {
	conn, cleanup := setupTestClickhouse(t)
	defer cleanup()

	store := clickhouse.NewObservedSwapStore(conn)
	ctx := context.Background()

	base := int64(1700000000000)
	var swaps []*domain.ObservedSwap
	for i := 0; i < 5; i++ {
		sw := sampleObservedSwap(fmt.Sprintf("sig-%d", i), base+int64(i)*1000)
		swaps = append(swaps, sw)
	}
	require.NoError(t, store.InsertBulk(ctx, swaps))

	got, err := store.GetByWallet(ctx, swaps[0].Wallet, base+1000, base+3000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "sig-1", got[0].TxSignature)
	assert.Equal(t, "sig-3", got[2].TxSignature)
}

func TestObservedSwapStore_NilPoolRoundTrip(t *testing.T) {
	conn, cleanup := setupTestClickhouse(t)
	defer cleanup()

	store := clickhouse.NewObservedSwapStore(conn)
	ctx := context.Background()

	swap := sampleObservedSwap("sig-nopool", 1700000000000)
	swap.Pool = nil
	swap.Mode = domain.ModePoll
	require.NoError(t, store.Insert(ctx, swap))

	got, err := store.GetByWallet(ctx, swap.Wallet, 1700000000000, 1700000000000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Pool)
	assert.Equal(t, domain.ModePoll, got[0].Mode)
}

func TestObservedSwapStore_InsertBulkEmpty(t *testing.T) {
	conn, cleanup := setupTestClickhouse(t)
	defer cleanup()

	store := clickhouse.NewObservedSwapStore(conn)
	require.NoError(t, store.InsertBulk(context.Background(), nil))
}

func TestObservedSwapStore_GetByWalletNoMatches(t *testing.T) {
	conn, cleanup := setupTestClickhouse(t)
	defer cleanup()

	store := clickhouse.NewObservedSwapStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleObservedSwap("sig-1", 1700000000000)))

	got, err := store.GetByWallet(ctx, "some-other-wallet", 0, 2000000000000)
	require.NoError(t, err)
	assert.Empty(t, got)
}
