// Package memory provides in-memory storage implementations for tests and
// setups running without databases.
package memory

import (
	"context"
	"sort"
	"sync"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// CopyTradeStore implements storage.CopyTradeStore in memory.
type CopyTradeStore struct {
	mu     sync.RWMutex
	trades map[string]*domain.CopyTrade // keyed by trade_id
}

// NewCopyTradeStore creates a new in-memory CopyTradeStore.
func NewCopyTradeStore() *CopyTradeStore {
	return &CopyTradeStore{trades: make(map[string]*domain.CopyTrade)}
}

// Compile-time interface check.
var _ storage.CopyTradeStore = (*CopyTradeStore)(nil)

// Insert adds an executed trade. Returns ErrDuplicateKey if trade_id exists.
func (s *CopyTradeStore) Insert(_ context.Context, t *domain.CopyTrade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *t
	s.trades[t.TradeID] = &cp
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *CopyTradeStore) GetByID(_ context.Context, tradeID string) (*domain.CopyTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[tradeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// GetBySourceSignature retrieves all trades copied from one counterparty
// transaction, ordered by executed_at ASC.
func (s *CopyTradeStore) GetBySourceSignature(_ context.Context, signature string) ([]*domain.CopyTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CopyTrade
	for _, t := range s.trades {
		if t.SourceSignature == signature {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTrades(out)
	return out, nil
}

// GetByTimeRange retrieves trades executed within [start, end] (inclusive).
func (s *CopyTradeStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.CopyTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CopyTrade
	for _, t := range s.trades {
		if t.ExecutedAt >= start && t.ExecutedAt <= end {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortTrades(out)
	return out, nil
}

func sortTrades(trades []*domain.CopyTrade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].ExecutedAt != trades[j].ExecutedAt {
			return trades[i].ExecutedAt < trades[j].ExecutedAt
		}
		return trades[i].TradeID < trades[j].TradeID
	})
}
