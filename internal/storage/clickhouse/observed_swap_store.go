package clickhouse

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// ObservedSwapStore implements storage.ObservedSwapStore using ClickHouse.
// MergeTree does not enforce uniqueness; the detection layer's dedup set is
// the only duplicate protection, which is acceptable for an analysis archive.
type ObservedSwapStore struct {
	conn *Conn
}

// NewObservedSwapStore creates a new ObservedSwapStore.
func NewObservedSwapStore(conn *Conn) *ObservedSwapStore {
	return &ObservedSwapStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ObservedSwapStore = (*ObservedSwapStore)(nil)

// Insert adds an observed swap.
func (s *ObservedSwapStore) Insert(ctx context.Context, swap *domain.ObservedSwap) error {
	return s.InsertBulk(ctx, []*domain.ObservedSwap{swap})
}

// InsertBulk adds multiple swaps in one batch.
func (s *ObservedSwapStore) InsertBulk(ctx context.Context, swaps []*domain.ObservedSwap) error {
	if len(swaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO observed_swaps (
			tx_signature, wallet, token_in_mint, token_out_mint,
			amount_in, amount_out, pool, mode, slot, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sw := range swaps {
		pool := ""
		if sw.Pool != nil {
			pool = *sw.Pool
		}
		err = batch.Append(
			sw.TxSignature, sw.Wallet, sw.TokenInMint, sw.TokenOutMint,
			sw.AmountIn, sw.AmountOut, pool, sw.Mode,
			uint64(sw.Slot), uint64(sw.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWallet retrieves swaps observed for a wallet within [start, end]
// (inclusive), ordered by timestamp ASC.
func (s *ObservedSwapStore) GetByWallet(ctx context.Context, wallet string, start, end int64) ([]*domain.ObservedSwap, error) {
	query := `
		SELECT tx_signature, wallet, token_in_mint, token_out_mint,
		       amount_in, amount_out, pool, mode, slot, timestamp_ms
		FROM observed_swaps
		WHERE wallet = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by wallet: %w", err)
	}
	defer rows.Close()

	var swaps []*domain.ObservedSwap
	for rows.Next() {
		var (
			sw          domain.ObservedSwap
			pool        string
			slot, tsVal uint64
		)
		err := rows.Scan(
			&sw.TxSignature, &sw.Wallet, &sw.TokenInMint, &sw.TokenOutMint,
			&sw.AmountIn, &sw.AmountOut, &pool, &sw.Mode, &slot, &tsVal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observed swap row: %w", err)
		}
		if pool != "" {
			p := pool
			sw.Pool = &p
		}
		sw.Slot = int64(slot)
		sw.Timestamp = int64(tsVal)
		swaps = append(swaps, &sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observed swap rows: %w", err)
	}
	return swaps, nil
}
