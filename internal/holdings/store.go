// Package holdings persists the follower's tracked positions across process
// restarts. The on-disk format is a human-readable JSON array, overwritten
// wholesale on each save.
package holdings

import (
	"context"
	"math"

	"solana-copy-trader/internal/domain"
)

// Store provides access to the follower's tracked positions.
// Implementations must serialize mutations: the push and poll detectors can
// be active against the same store concurrently.
type Store interface {
	// Load reads persisted state. A missing file is empty state, not an error.
	Load(ctx context.Context) error

	// All returns a snapshot copy of every tracked holding.
	All(ctx context.Context) ([]*domain.Holding, error)

	// Get returns the holding for a mint. Returns nil when not tracked.
	Get(ctx context.Context, mint string) (*domain.Holding, error)

	// AddHolding decimal-adjusts a confirmed buy's received base units and
	// merges it into the position for the mint, persisting immediately.
	AddHolding(ctx context.Context, mint string, amountBaseUnits uint64, decimals int, targetAmount float64) error

	// ReduceAmount subtracts a sold quantity from the position, removing it
	// when it reaches zero. Persists immediately.
	ReduceAmount(ctx context.Context, mint string, amount float64) error

	// UpdateTarget records the last-observed counterparty balance for the
	// mint and stamps the reconciliation time. Persists immediately.
	UpdateTarget(ctx context.Context, mint string, targetAmount float64, checkedAt int64) error

	// Remove deletes the position for a mint. Persists immediately.
	Remove(ctx context.Context, mint string) error
}

// DecimalAdjust converts base units to human units for a decimal precision.
func DecimalAdjust(amountBaseUnits uint64, decimals int) float64 {
	return float64(amountBaseUnits) / math.Pow10(decimals)
}

// ToBaseUnits converts human units back to base units, truncating.
func ToBaseUnits(amount float64, decimals int) uint64 {
	return uint64(amount * math.Pow10(decimals))
}
