// Package oracle answers on-chain token balance queries with a short-lived
// cache that bounds RPC request rate during tight polling loops.
package oracle

import (
	"context"
	"sync"
	"time"

	"solana-copy-trader/internal/solana"
)

// DefaultCacheTTL bounds how stale a cached balance may be.
const DefaultCacheTTL = 3 * time.Second

// Balance is one decimal-adjusted token balance.
type Balance struct {
	Amount   float64
	Decimals int
}

// BalanceOracle queries current token balances for (owner, mint) pairs.
type BalanceOracle interface {
	// TokenBalance returns the owner's current balance for a mint.
	TokenBalance(ctx context.Context, owner, mint string) (*Balance, error)

	// Invalidate drops any cached balance for (owner, mint) so the next
	// TokenBalance call hits the chain.
	Invalidate(owner, mint string)
}

type cacheKey struct {
	Owner string
	Mint  string
}

type cacheEntry struct {
	balance   Balance
	fetchedAt time.Time
}

// CachedOracle implements BalanceOracle over the RPC client with a TTL cache.
type CachedOracle struct {
	rpc solana.RPCClient
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// OracleOption configures CachedOracle.
type OracleOption func(*CachedOracle)

// WithTTL overrides the cache TTL.
func WithTTL(d time.Duration) OracleOption {
	return func(o *CachedOracle) {
		o.ttl = d
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) OracleOption {
	return func(o *CachedOracle) {
		o.now = now
	}
}

// NewCachedOracle creates a caching balance oracle.
func NewCachedOracle(rpc solana.RPCClient, opts ...OracleOption) *CachedOracle {
	o := &CachedOracle{
		rpc:   rpc,
		ttl:   DefaultCacheTTL,
		now:   time.Now,
		cache: make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Compile-time interface check.
var _ BalanceOracle = (*CachedOracle)(nil)

// TokenBalance returns the owner's current balance for a mint, served from
// cache when fresher than the TTL.
func (o *CachedOracle) TokenBalance(ctx context.Context, owner, mint string) (*Balance, error) {
	key := cacheKey{Owner: owner, Mint: mint}

	o.mu.Lock()
	entry, ok := o.cache[key]
	o.mu.Unlock()

	if ok && o.now().Sub(entry.fetchedAt) < o.ttl {
		balance := entry.balance
		return &balance, nil
	}

	amount, decimals, err := o.rpc.GetTokenBalance(ctx, owner, mint)
	if err != nil {
		return nil, err
	}

	balance := Balance{Amount: amount, Decimals: decimals}

	o.mu.Lock()
	o.cache[key] = cacheEntry{balance: balance, fetchedAt: o.now()}
	o.mu.Unlock()

	return &balance, nil
}

// Invalidate drops the cached balance for an (owner, mint) pair, forcing the
// next query to hit RPC. Called after the follower's own trades settle.
func (o *CachedOracle) Invalidate(owner, mint string) {
	o.mu.Lock()
	delete(o.cache, cacheKey{Owner: owner, Mint: mint})
	o.mu.Unlock()
}
