package holdings

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"solana-copy-trader/internal/domain"
)

// FileStore implements Store backed by a JSON file.
// Write-through on every mutation: trade frequency is low enough that
// correctness beats throughput here.
type FileStore struct {
	path   string
	logger *log.Logger

	mu       sync.Mutex
	holdings map[string]*domain.Holding // keyed by mint
}

// NewFileStore creates a file-backed holdings store.
// log.Default() is used when logger is nil.
func NewFileStore(path string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{
		path:     path,
		logger:   logger,
		holdings: make(map[string]*domain.Holding),
	}
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// Load reads persisted state. A missing file is empty state, not an error.
func (s *FileStore) Load(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.holdings = make(map[string]*domain.Holding)
			return nil
		}
		return fmt.Errorf("read holdings file: %w", err)
	}

	var list []*domain.Holding
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("unmarshal holdings file: %w", err)
	}

	s.holdings = make(map[string]*domain.Holding, len(list))
	for _, h := range list {
		if h.Mint == "" || h.Amount < 0 {
			s.logger.Printf("[holdings] Skipping invalid record: mint=%q amount=%f", h.Mint, h.Amount)
			continue
		}
		s.holdings[h.Mint] = h
	}

	s.logger.Printf("[holdings] Loaded %d holdings from %s", len(s.holdings), s.path)
	return nil
}

// All returns a snapshot copy of every tracked holding, ordered by mint.
func (s *FileStore) All(_ context.Context) ([]*domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		holdingCopy := *h
		result = append(result, &holdingCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Mint < result[j].Mint
	})
	return result, nil
}

// Get returns the holding for a mint. Returns nil when not tracked.
func (s *FileStore) Get(_ context.Context, mint string) (*domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holdings[mint]
	if !ok {
		return nil, nil
	}
	holdingCopy := *h
	return &holdingCopy, nil
}

// AddHolding decimal-adjusts and merges a confirmed buy into the position
// for the mint, then persists.
func (s *FileStore) AddHolding(_ context.Context, mint string, amountBaseUnits uint64, decimals int, targetAmount float64) error {
	if mint == "" {
		return fmt.Errorf("empty mint")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	amount := DecimalAdjust(amountBaseUnits, decimals)

	if existing, ok := s.holdings[mint]; ok {
		existing.Amount += amount
		existing.Decimals = decimals
		existing.TargetAmount = targetAmount
	} else {
		s.holdings[mint] = &domain.Holding{
			Mint:         mint,
			Amount:       amount,
			Decimals:     decimals,
			TargetAmount: targetAmount,
		}
	}

	return s.saveLocked()
}

// ReduceAmount subtracts a sold quantity, removing the position at zero.
func (s *FileStore) ReduceAmount(_ context.Context, mint string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holdings[mint]
	if !ok {
		return nil
	}

	h.Amount -= amount
	if h.Amount <= 0 {
		delete(s.holdings, mint)
	}

	return s.saveLocked()
}

// UpdateTarget records the last-observed counterparty balance for the mint.
func (s *FileStore) UpdateTarget(_ context.Context, mint string, targetAmount float64, checkedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holdings[mint]
	if !ok {
		return nil
	}

	h.TargetAmount = targetAmount
	h.LastChecked = checkedAt

	return s.saveLocked()
}

// Remove deletes the position for a mint.
func (s *FileStore) Remove(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holdings[mint]; !ok {
		return nil
	}
	delete(s.holdings, mint)

	return s.saveLocked()
}

// saveLocked overwrites the file with current state. Caller holds s.mu.
// A write failure leaves in-memory state authoritative until the next
// successful save.
func (s *FileStore) saveLocked() error {
	list := make([]*domain.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		list = append(list, h)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Mint < list[j].Mint
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal holdings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create holdings directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write holdings file: %w", err)
	}

	return nil
}
