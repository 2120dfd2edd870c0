package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// ObservedSwapStore implements storage.ObservedSwapStore in memory.
type ObservedSwapStore struct {
	mu    sync.RWMutex
	swaps []*domain.ObservedSwap
}

// NewObservedSwapStore creates a new in-memory ObservedSwapStore.
func NewObservedSwapStore() *ObservedSwapStore {
	return &ObservedSwapStore{}
}

// Compile-time interface check.
var _ storage.ObservedSwapStore = (*ObservedSwapStore)(nil)

// Insert adds an observed swap.
func (s *ObservedSwapStore) Insert(ctx context.Context, swap *domain.ObservedSwap) error {
	return s.InsertBulk(ctx, []*domain.ObservedSwap{swap})
}

// InsertBulk adds multiple swaps.
func (s *ObservedSwapStore) InsertBulk(_ context.Context, swaps []*domain.ObservedSwap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sw := range swaps {
		if sw == nil || sw.TxSignature == "" {
			return storage.ErrInvalidInput
		}
		cp := *sw
		s.swaps = append(s.swaps, &cp)
	}
	return nil
}

// GetByWallet retrieves swaps observed for a wallet within [start, end]
// (inclusive), ordered by timestamp ASC.
func (s *ObservedSwapStore) GetByWallet(_ context.Context, wallet string, start, end int64) ([]*domain.ObservedSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ObservedSwap
	for _, sw := range s.swaps {
		if sw.Wallet == wallet && sw.Timestamp >= start && sw.Timestamp <= end {
			cp := *sw
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
