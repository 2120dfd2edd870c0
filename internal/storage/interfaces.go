package storage

import (
	"context"

	"solana-copy-trader/internal/domain"
)

// CopyTradeStore provides access to copy_trades storage: the
// write-after-the-fact audit log of executed copies. Never decision-bearing.
type CopyTradeStore interface {
	// Insert adds an executed trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.CopyTrade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.CopyTrade, error)

	// GetBySourceSignature retrieves all trades copied from one counterparty
	// transaction, ordered by executed_at ASC.
	GetBySourceSignature(ctx context.Context, signature string) ([]*domain.CopyTrade, error)

	// GetByTimeRange retrieves trades executed within [start, end] (inclusive,
	// Unix ms), ordered by executed_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.CopyTrade, error)
}

// ObservedSwapStore archives every detected counterparty swap, including
// ones the engine skipped. High-volume event stream.
type ObservedSwapStore interface {
	// Insert adds an observed swap.
	Insert(ctx context.Context, s *domain.ObservedSwap) error

	// InsertBulk adds multiple swaps in one batch.
	InsertBulk(ctx context.Context, swaps []*domain.ObservedSwap) error

	// GetByWallet retrieves swaps observed for a wallet within [start, end]
	// (inclusive, Unix ms), ordered by timestamp ASC.
	GetByWallet(ctx context.Context, wallet string, start, end int64) ([]*domain.ObservedSwap, error)
}
