package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

func sampleTrade(id string, executedAt int64) *domain.CopyTrade {
	return &domain.CopyTrade{
		TradeID:         id,
		SourceSignature: "sig-source",
		Side:            domain.SideBuy,
		TokenInMint:     "So11111111111111111111111111111111111111112",
		TokenOutMint:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		AmountIn:        0.25,
		ExecutedAt:      executedAt,
		CreatedAt:       executedAt,
	}
}

func TestMemoryCopyTradeStore_InsertAndGet(t *testing.T) {
	store := NewCopyTradeStore()
	ctx := context.Background()

	trade := sampleTrade("t1", 1000)
	require.NoError(t, store.Insert(ctx, trade))

	got, err := store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, trade, got)

	// Returned value is a copy.
	got.AmountIn = 999
	again, err := store.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, again.AmountIn)
}

func TestMemoryCopyTradeStore_Duplicate(t *testing.T) {
	store := NewCopyTradeStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleTrade("t1", 1000)))
	assert.ErrorIs(t, store.Insert(ctx, sampleTrade("t1", 2000)), storage.ErrDuplicateKey)
}

func TestMemoryCopyTradeStore_InvalidInput(t *testing.T) {
	store := NewCopyTradeStore()
	assert.ErrorIs(t, store.Insert(context.Background(), &domain.CopyTrade{}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
}

func TestMemoryCopyTradeStore_NotFound(t *testing.T) {
	store := NewCopyTradeStore()
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryCopyTradeStore_GetBySourceSignatureOrdered(t *testing.T) {
	store := NewCopyTradeStore()
	ctx := context.Background()

	// Insert out of order; reads come back sorted by executed_at.
	for _, i := range []int{3, 1, 2} {
		require.NoError(t, store.Insert(ctx, sampleTrade(fmt.Sprintf("t%d", i), int64(i*1000))))
	}

	trades, err := store.GetBySourceSignature(ctx, "sig-source")
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "t1", trades[0].TradeID)
	assert.Equal(t, "t3", trades[2].TradeID)
}

func TestMemoryCopyTradeStore_GetByTimeRange(t *testing.T) {
	store := NewCopyTradeStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Insert(ctx, sampleTrade(fmt.Sprintf("t%d", i), int64(i*1000))))
	}

	trades, err := store.GetByTimeRange(ctx, 2000, 4000)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "t2", trades[0].TradeID)
	assert.Equal(t, "t4", trades[2].TradeID)
}
