package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
)

// DefaultPendingInterval is how often the reconciliation pass retries
// pending sells.
const DefaultPendingInterval = 1 * time.Minute

// PendingQueue is a best-effort durable retry queue for sells whose normal
// and emergency paths both failed. One entry per mint; the on-disk format
// is a JSON array overwritten wholesale on each mutation.
type PendingQueue struct {
	path   string
	logger *log.Logger

	mu      sync.Mutex
	entries map[string]*domain.PendingSell // keyed by mint
}

// NewPendingQueue creates a file-backed pending sell queue.
// log.Default() is used when logger is nil.
func NewPendingQueue(path string, logger *log.Logger) *PendingQueue {
	if logger == nil {
		logger = log.Default()
	}
	return &PendingQueue{
		path:    path,
		logger:  logger,
		entries: make(map[string]*domain.PendingSell),
	}
}

// Load reads persisted entries. A missing file is empty state, not an error.
func (q *PendingQueue) Load(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			q.entries = make(map[string]*domain.PendingSell)
			return nil
		}
		return fmt.Errorf("read pending sells file: %w", err)
	}

	var list []*domain.PendingSell
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("unmarshal pending sells file: %w", err)
	}

	q.entries = make(map[string]*domain.PendingSell, len(list))
	for _, p := range list {
		if p == nil || p.Mint == "" {
			continue
		}
		q.entries[p.Mint] = p
	}
	observability.UpdatePendingSellDepth(len(q.entries))
	return nil
}

// All returns a snapshot copy of every entry, sorted by mint.
func (q *PendingQueue) All(_ context.Context) []*domain.PendingSell {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*domain.PendingSell, 0, len(q.entries))
	for _, p := range q.entries {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out
}

// Add records a failed sell for the reconciliation pass. An existing entry
// for the mint keeps its attempt count.
func (q *PendingQueue) Add(_ context.Context, mint string, amount float64, targetWallet string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.entries[mint]; ok {
		existing.Amount = amount
		existing.LastAttempt = time.Now().UnixMilli()
		return q.saveLocked()
	}

	q.entries[mint] = &domain.PendingSell{
		Mint:         mint,
		Amount:       amount,
		Attempts:     1,
		LastAttempt:  time.Now().UnixMilli(),
		TargetWallet: targetWallet,
	}
	observability.UpdatePendingSellDepth(len(q.entries))
	return q.saveLocked()
}

// Remove deletes the entry for a mint after a successful liquidation.
func (q *PendingQueue) Remove(_ context.Context, mint string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[mint]; !ok {
		return nil
	}
	delete(q.entries, mint)
	observability.UpdatePendingSellDepth(len(q.entries))
	return q.saveLocked()
}

// IncrementAttempt bumps the attempt count after a failed retry.
func (q *PendingQueue) IncrementAttempt(_ context.Context, mint string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.entries[mint]
	if !ok {
		return nil
	}
	p.Attempts++
	p.LastAttempt = time.Now().UnixMilli()
	return q.saveLocked()
}

// Len returns the number of queued entries.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *PendingQueue) saveLocked() error {
	list := make([]*domain.PendingSell, 0, len(q.entries))
	for _, p := range q.entries {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Mint < list[j].Mint })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pending sells: %w", err)
	}
	if dir := filepath.Dir(q.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pending sells dir: %w", err)
		}
	}
	if err := os.WriteFile(q.path, data, 0o644); err != nil {
		// In-memory state stays authoritative until the next write succeeds.
		q.logger.Printf("[pending] persist failed: %v", err)
		return fmt.Errorf("write pending sells file: %w", err)
	}
	return nil
}

// RunPendingSells retries queued sells on a timer until ctx is cancelled.
// Entries over the attempts cap are logged as critical and retained for
// manual intervention.
func (e *Engine) RunPendingSells(ctx context.Context, interval time.Duration) {
	if e.pending == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultPendingInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reconcilePendingSells(ctx)
		}
	}
}

func (e *Engine) reconcilePendingSells(ctx context.Context) {
	for _, p := range e.pending.All(ctx) {
		if p.Attempts >= domain.MaxPendingSellAttempts {
			e.logger.Printf("[pending] CRITICAL: sell for %s over attempts cap (%d), manual intervention required",
				p.Mint, p.Attempts)
			continue
		}

		amount, err := e.emergencySell(ctx, p.Mint)
		if err != nil {
			e.logger.Printf("[pending] retry failed for %s (amount=%f): %v", p.Mint, amount, err)
			if qerr := e.pending.IncrementAttempt(ctx, p.Mint); qerr != nil {
				e.logger.Printf("[pending] failed to bump attempts for %s: %v", p.Mint, qerr)
			}
			continue
		}

		e.logger.Printf("[pending] sell for %s cleared", p.Mint)
		e.reduceHolding(ctx, p.Mint, amount)
		if qerr := e.pending.Remove(ctx, p.Mint); qerr != nil {
			e.logger.Printf("[pending] failed to remove %s: %v", p.Mint, qerr)
		}
	}
}
