// Package engine orchestrates a single copy trade: guards, proportional
// sizing, slippage and priority fee escalation across retries, and the
// emergency sell fallback for exhausted sells.
package engine

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/holdings"
	"solana-copy-trader/internal/jupiter"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/oracle"
	"solana-copy-trader/internal/wallet"
)

// Gateway is the quote and execution surface the engine trades through.
type Gateway interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amountBaseUnits uint64, slippageBps int) (*jupiter.Quote, error)
	GetPriorityFee(ctx context.Context) (*jupiter.PriorityFee, error)
	BuildSwap(ctx context.Context, quote *jupiter.Quote, userPublicKey string, feeMicroLamports uint64, wrapUnwrapSOL bool) (*jupiter.SwapTransactions, error)
	SignSubmitAll(ctx context.Context, kp *wallet.Keypair, bundle *jupiter.SwapTransactions) ([]string, error)
	EnsureAssociatedAccount(ctx context.Context, kp *wallet.Keypair, mint string) error
}

// Compile-time interface check.
var _ Gateway = (*jupiter.Gateway)(nil)

// Config holds the engine's trading policy.
type Config struct {
	BaseSlippageBps      int // first attempt slippage
	SlippageIncrementBps int // added per retry
	MaxSlippageBps       int // escalation ceiling
	EmergencySlippageBps int // fixed, above MaxSlippageBps

	MaxRetries int // retries after the initial attempt

	MinSellPct        float64 // counterparty sell percentage below this is noise
	MinTradeValueSOL  float64 // dust floor, SOL-equivalent
	MaxPriceImpactPct float64 // non-retryable abort above this

	// BuyFeeFraction scales the medium priority fee percentile for buys.
	// Sells pay medium on the first attempt and high on retries.
	BuyFeeFraction float64

	BackoffBase time.Duration // doubled per retry

	EnableBuy  bool
	EnableSell bool
}

// DefaultConfig returns the default trading policy with both sides enabled.
func DefaultConfig() Config {
	return Config{
		BaseSlippageBps:      100,
		SlippageIncrementBps: 250,
		MaxSlippageBps:       1000,
		EmergencySlippageBps: 2500,
		MaxRetries:           3,
		MinSellPct:           5,
		MinTradeValueSOL:     0.001,
		MaxPriceImpactPct:    100,
		BuyFeeFraction:       0.5,
		BackoffBase:          time.Second,
		EnableBuy:            true,
		EnableSell:           true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseSlippageBps == 0 {
		c.BaseSlippageBps = d.BaseSlippageBps
	}
	if c.SlippageIncrementBps == 0 {
		c.SlippageIncrementBps = d.SlippageIncrementBps
	}
	if c.MaxSlippageBps == 0 {
		c.MaxSlippageBps = d.MaxSlippageBps
	}
	if c.EmergencySlippageBps == 0 {
		c.EmergencySlippageBps = d.EmergencySlippageBps
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.MinSellPct == 0 {
		c.MinSellPct = d.MinSellPct
	}
	if c.MinTradeValueSOL == 0 {
		c.MinTradeValueSOL = d.MinTradeValueSOL
	}
	if c.MaxPriceImpactPct == 0 {
		c.MaxPriceImpactPct = d.MaxPriceImpactPct
	}
	if c.BuyFeeFraction == 0 {
		c.BuyFeeFraction = d.BuyFeeFraction
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = d.BackoffBase
	}
	return c
}

// Options configures a new Engine.
type Options struct {
	Gateway  Gateway
	Holdings holdings.Store
	Oracle   oracle.BalanceOracle
	Keypair  *wallet.Keypair
	Pending  *PendingQueue // optional, disables the pending sell queue when nil
	Config   Config
	Logger   *log.Logger
}

// Engine executes one copy trade at a time. Callers must serialize
// ExecuteSwap: the engine shares the signing key and the holdings store.
type Engine struct {
	gateway  Gateway
	holdings holdings.Store
	oracle   oracle.BalanceOracle
	keypair  *wallet.Keypair
	pending  *PendingQueue
	cfg      Config
	logger   *log.Logger

	enableBuy  atomic.Bool
	enableSell atomic.Bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	bg sync.WaitGroup
}

// New creates an Engine from Options.
func New(opts Options) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if opts.Holdings == nil {
		return nil, fmt.Errorf("holdings store is required")
	}
	if opts.Oracle == nil {
		return nil, fmt.Errorf("balance oracle is required")
	}
	if opts.Keypair == nil {
		return nil, fmt.Errorf("keypair is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	e := &Engine{
		gateway:  opts.Gateway,
		holdings: opts.Holdings,
		oracle:   opts.Oracle,
		keypair:  opts.Keypair,
		pending:  opts.Pending,
		cfg:      opts.Config.withDefaults(),
		logger:   opts.Logger,
		sleep:    sleepCtx,
	}
	e.enableBuy.Store(e.cfg.EnableBuy)
	e.enableSell.Store(e.cfg.EnableSell)
	return e, nil
}

// SetBuyEnabled toggles the buy side circuit breaker.
func (e *Engine) SetBuyEnabled(v bool) { e.enableBuy.Store(v) }

// SetSellEnabled toggles the sell side circuit breaker.
func (e *Engine) SetSellEnabled(v bool) { e.enableSell.Store(v) }

// Wait blocks until all fire-and-forget emergency sells finish.
func (e *Engine) Wait() { e.bg.Wait() }

// ExecuteSwap runs one copy trade end to end. It returns nil on any guard
// rejection or after exhausting retries; errors never propagate to callers
// so a failed trade cannot take the process down.
//
// targetWallet is the counterparty address; for sells it drives the
// proportional resize against the counterparty's remaining balance.
func (e *Engine) ExecuteSwap(ctx context.Context, tokenInMint, tokenOutMint string, amountIn float64, targetWallet string, isSell bool) *domain.SwapResult {
	side := domain.SideBuy
	if isSell {
		side = domain.SideSell
	}

	if isSell && !e.enableSell.Load() {
		e.rejectGuard(side, tokenInMint, "circuit_breaker", "selling disabled")
		return nil
	}
	if !isSell && !e.enableBuy.Load() {
		e.rejectGuard(side, tokenOutMint, "circuit_breaker", "buying disabled")
		return nil
	}

	var decimals int
	if isSell {
		holding, err := e.holdings.Get(ctx, tokenInMint)
		if err != nil {
			e.logger.Printf("[engine] holdings lookup failed for %s: %v", tokenInMint, err)
			return nil
		}
		if holding == nil || holding.Amount <= 0 {
			e.rejectGuard(side, tokenInMint, "no_holding", "no tracked balance")
			return nil
		}
		decimals = holding.Decimals

		if targetWallet != "" {
			resized, ok := e.resizeSell(ctx, holding, amountIn, targetWallet)
			if !ok {
				return nil
			}
			amountIn = resized
		} else if amountIn > holding.Amount {
			amountIn = holding.Amount
		}
	} else {
		var err error
		decimals, err = e.inputDecimals(ctx, tokenInMint)
		if err != nil {
			e.logger.Printf("[engine] decimals lookup failed for %s: %v", tokenInMint, err)
			return nil
		}
	}

	amountBase := holdings.ToBaseUnits(amountIn, decimals)
	if amountBase == 0 {
		e.rejectGuard(side, tokenInMint, "zero_amount", "amount rounds to zero base units")
		return nil
	}

	if err := e.gateway.EnsureAssociatedAccount(ctx, e.keypair, tokenOutMint); err != nil {
		e.logger.Printf("[engine] associated account bootstrap failed for %s: %v", tokenOutMint, err)
		return nil
	}

	// Snapshot the output balance so a confirmed buy can be registered at
	// the amount actually received, not the quoted amount.
	var balanceBefore float64
	if !isSell {
		e.oracle.Invalidate(e.keypair.PublicKey(), tokenOutMint)
		if bal, err := e.oracle.TokenBalance(ctx, e.keypair.PublicKey(), tokenOutMint); err == nil {
			balanceBefore = bal.Amount
		}
	}

	start := time.Now()
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		slippageBps := e.slippageForAttempt(attempt)

		result, quotedOut, outcome := e.attempt(ctx, side, tokenInMint, tokenOutMint, amountBase, slippageBps, attempt)
		if result != nil {
			result.Attempts = attempt + 1
			result.SlippageBps = slippageBps
			result.AmountIn = amountIn
			if isSell {
				e.reduceHolding(ctx, tokenInMint, amountIn)
			} else {
				result.AmountOut = e.receivedAmount(ctx, tokenOutMint, balanceBefore, quotedOut)
				e.registerBuy(ctx, tokenOutMint, result.AmountOut, targetWallet)
			}
			observability.RecordTradeExecuted(side, time.Since(start).Seconds(), slippageBps)
			e.logger.Printf("[engine] %s confirmed mint=%s amount=%f sig=%s attempts=%d slippage=%dbps",
				side, tokenOutMint, amountIn, result.Signature(), result.Attempts, slippageBps)
			return result
		}
		if outcome == abortTrade {
			// Quote guard rejection, not a failure: no retries, no fallback.
			return nil
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		observability.DefaultMetrics.RetriesTotal.Inc()
		if outcome == retryNow {
			// Escalated slippage addresses the cause; skip the backoff.
			continue
		}
		if err := e.sleep(ctx, e.backoffDelay(attempt)); err != nil {
			e.logger.Printf("[engine] %s aborted during backoff: %v", side, err)
			return nil
		}
	}

	observability.RecordTradeFailure(side)
	if isSell {
		e.logger.Printf("[engine] sell retries exhausted for %s, triggering emergency sell", tokenInMint)
		e.fireEmergencySell(tokenInMint, targetWallet)
	} else {
		e.logger.Printf("[engine] buy retries exhausted for %s, giving up", tokenOutMint)
	}
	return nil
}

// attemptOutcome classifies a failed attempt for the retry loop.
type attemptOutcome int

const (
	retryBackoff attemptOutcome = iota // transient failure, back off first
	retryNow                           // slippage pattern, retry immediately
	abortTrade                         // quote guard, not retryable
)

// attempt runs one quote-build-sign-submit-confirm pass. On success the
// quoted out amount (base units) is returned alongside the result for the
// buy path's received-amount fallback.
func (e *Engine) attempt(ctx context.Context, side, tokenInMint, tokenOutMint string, amountBase uint64, slippageBps, attempt int) (*domain.SwapResult, uint64, attemptOutcome) {
	quote, err := e.gateway.GetQuote(ctx, tokenInMint, tokenOutMint, amountBase, slippageBps)
	if err != nil {
		e.logger.Printf("[engine] quote failed (attempt %d): %v", attempt+1, err)
		return nil, 0, retryBackoff
	}

	if impact, err := strconv.ParseFloat(quote.PriceImpactPct, 64); err == nil && impact > e.cfg.MaxPriceImpactPct {
		// Raising slippage cannot fix an illiquid market.
		e.rejectGuard(side, tokenInMint, "price_impact", fmt.Sprintf("price impact %.2f%% over ceiling", impact))
		return nil, 0, abortTrade
	}

	if value := e.solEquivalent(tokenInMint, tokenOutMint, amountBase, quote); value < e.cfg.MinTradeValueSOL {
		e.rejectGuard(side, tokenInMint, "dust", fmt.Sprintf("trade value %.6f SOL under floor", value))
		return nil, 0, abortTrade
	}

	fees, err := e.gateway.GetPriorityFee(ctx)
	if err != nil {
		e.logger.Printf("[engine] priority fee lookup failed (attempt %d): %v", attempt+1, err)
		return nil, 0, retryBackoff
	}
	feeMicro := e.feeForAttempt(side, attempt, fees)

	bundle, err := e.gateway.BuildSwap(ctx, quote, e.keypair.PublicKey(), feeMicro, true)
	if err != nil {
		e.logger.Printf("[engine] swap build failed (attempt %d): %v", attempt+1, err)
		return nil, 0, retryBackoff
	}

	sigs, err := e.gateway.SignSubmitAll(ctx, e.keypair, bundle)
	if err != nil {
		if isSlippageError(err) {
			e.logger.Printf("[engine] slippage exceeded (attempt %d): %v", attempt+1, err)
			return nil, 0, retryNow
		}
		e.logger.Printf("[engine] submit failed (attempt %d): %v", attempt+1, err)
		return nil, 0, retryBackoff
	}

	quotedOut, _ := strconv.ParseUint(quote.OutAmount, 10, 64)
	return &domain.SwapResult{Signatures: sigs}, quotedOut, retryBackoff
}

// resizeSell mirrors the counterparty's sell percentage onto the follower's
// holding. Returns false when the trade should be skipped.
func (e *Engine) resizeSell(ctx context.Context, holding *domain.Holding, counterpartyDelta float64, targetWallet string) (float64, bool) {
	bal, err := e.oracle.TokenBalance(ctx, targetWallet, holding.Mint)
	if err != nil {
		e.logger.Printf("[engine] counterparty balance lookup failed for %s: %v", holding.Mint, err)
		return 0, false
	}

	// Balance before the counterparty's sell.
	before := bal.Amount + counterpartyDelta
	if before <= 0 {
		e.rejectGuard(domain.SideSell, holding.Mint, "zero_baseline", "counterparty baseline is zero")
		return 0, false
	}

	pct := counterpartyDelta / before * 100
	if pct < e.cfg.MinSellPct {
		e.rejectGuard(domain.SideSell, holding.Mint, "below_min_pct", fmt.Sprintf("sell of %.2f%% under minimum", pct))
		return 0, false
	}
	if pct > 100 {
		pct = 100
	}

	amount := holding.Amount * pct / 100
	if amount > holding.Amount {
		amount = holding.Amount
	}
	return amount, true
}

// registerBuy records a confirmed buy in the holdings store at the actual
// received amount.
func (e *Engine) registerBuy(ctx context.Context, mint string, received float64, targetWallet string) {
	bal, err := e.oracle.TokenBalance(ctx, e.keypair.PublicKey(), mint)
	if err != nil {
		e.logger.Printf("[engine] post-buy balance lookup failed for %s: %v", mint, err)
		return
	}

	var target float64
	if targetWallet != "" {
		if tb, err := e.oracle.TokenBalance(ctx, targetWallet, mint); err == nil {
			target = tb.Amount
		}
	}

	base := holdings.ToBaseUnits(received, bal.Decimals)
	if err := e.holdings.AddHolding(ctx, mint, base, bal.Decimals, target); err != nil {
		e.logger.Printf("[engine] failed to register holding for %s: %v", mint, err)
	}
}

// reduceHolding writes a confirmed sell back to the holdings store. The
// store removes the position when the remainder hits zero, so a full sell
// stops being polled.
func (e *Engine) reduceHolding(ctx context.Context, mint string, amount float64) {
	if amount <= 0 {
		return
	}
	if err := e.holdings.ReduceAmount(ctx, mint, amount); err != nil {
		e.logger.Printf("[engine] failed to reduce holding for %s: %v", mint, err)
	}
}

// receivedAmount measures what a buy actually received via the balance delta,
// falling back to the quoted out amount when the delta is unusable.
func (e *Engine) receivedAmount(ctx context.Context, mint string, before float64, quotedOut uint64) float64 {
	e.oracle.Invalidate(e.keypair.PublicKey(), mint)
	bal, err := e.oracle.TokenBalance(ctx, e.keypair.PublicKey(), mint)
	if err != nil {
		e.logger.Printf("[engine] post-buy balance lookup failed for %s: %v", mint, err)
		return 0
	}
	if bal.Amount > before {
		return bal.Amount - before
	}
	e.logger.Printf("[engine] balance delta unusable for %s, falling back to quoted amount", mint)
	return holdings.DecimalAdjust(quotedOut, bal.Decimals)
}

// fireEmergencySell liquidates the full current balance of mint as a
// detached task. Failure lands in the pending sell queue.
func (e *Engine) fireEmergencySell(mint, targetWallet string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		amount, err := e.emergencySell(ctx, mint)
		if err != nil {
			e.logger.Printf("[engine] CRITICAL: emergency sell failed for %s: %v", mint, err)
			observability.RecordEmergencySell(false)
			if e.pending != nil {
				if qerr := e.pending.Add(ctx, mint, amount, targetWallet); qerr != nil {
					e.logger.Printf("[engine] failed to queue pending sell for %s: %v", mint, qerr)
				}
			}
			return
		}
		observability.RecordEmergencySell(true)
		e.reduceHolding(ctx, mint, amount)
	}()
}

// emergencySell is a single quote-build-submit pass at the emergency
// slippage ceiling, no retry wrapper. Returns the amount it tried to sell.
func (e *Engine) emergencySell(ctx context.Context, mint string) (float64, error) {
	owner := e.keypair.PublicKey()
	e.oracle.Invalidate(owner, mint)
	bal, err := e.oracle.TokenBalance(ctx, owner, mint)
	if err != nil {
		return 0, fmt.Errorf("balance lookup: %w", err)
	}
	if bal.Amount <= 0 {
		e.logger.Printf("[engine] emergency sell for %s skipped, nothing held", mint)
		return 0, nil
	}

	amountBase := holdings.ToBaseUnits(bal.Amount, bal.Decimals)
	quote, err := e.gateway.GetQuote(ctx, mint, wallet.WSOLMint, amountBase, e.cfg.EmergencySlippageBps)
	if err != nil {
		return bal.Amount, fmt.Errorf("quote: %w", err)
	}

	var feeMicro uint64
	if fees, err := e.gateway.GetPriorityFee(ctx); err == nil {
		feeMicro = fees.High
	}

	bundle, err := e.gateway.BuildSwap(ctx, quote, owner, feeMicro, true)
	if err != nil {
		return bal.Amount, fmt.Errorf("build: %w", err)
	}

	sigs, err := e.gateway.SignSubmitAll(ctx, e.keypair, bundle)
	if err != nil {
		return bal.Amount, fmt.Errorf("submit: %w", err)
	}

	e.logger.Printf("[engine] emergency sell confirmed mint=%s amount=%f sig=%s", mint, bal.Amount, sigs[0])
	return bal.Amount, nil
}

func (e *Engine) slippageForAttempt(attempt int) int {
	s := e.cfg.BaseSlippageBps + attempt*e.cfg.SlippageIncrementBps
	if s > e.cfg.MaxSlippageBps {
		return e.cfg.MaxSlippageBps
	}
	return s
}

func (e *Engine) feeForAttempt(side string, attempt int, fees *jupiter.PriorityFee) uint64 {
	if side == domain.SideBuy {
		return uint64(float64(fees.Medium) * e.cfg.BuyFeeFraction)
	}
	if attempt == 0 {
		return fees.Medium
	}
	return fees.High
}

func (e *Engine) backoffDelay(attempt int) time.Duration {
	return e.cfg.BackoffBase << uint(attempt)
}

// inputDecimals resolves the decimal precision of the spent asset for buys.
func (e *Engine) inputDecimals(ctx context.Context, mint string) (int, error) {
	if mint == wallet.WSOLMint {
		return 9, nil
	}
	bal, err := e.oracle.TokenBalance(ctx, e.keypair.PublicKey(), mint)
	if err != nil {
		return 0, err
	}
	return bal.Decimals, nil
}

// solEquivalent values the trade in SOL for the dust guard. Trades with no
// SOL leg cannot be valued and pass through.
func (e *Engine) solEquivalent(tokenInMint, tokenOutMint string, amountBase uint64, quote *jupiter.Quote) float64 {
	if tokenInMint == wallet.WSOLMint {
		return holdings.DecimalAdjust(amountBase, 9)
	}
	if tokenOutMint == wallet.WSOLMint {
		if out, err := strconv.ParseUint(quote.OutAmount, 10, 64); err == nil {
			return holdings.DecimalAdjust(out, 9)
		}
	}
	return e.cfg.MinTradeValueSOL
}

func (e *Engine) rejectGuard(side, mint, reason, detail string) {
	observability.RecordGuardRejection(reason)
	e.logger.Printf("[engine] %s for %s skipped (%s): %s", side, mint, reason, detail)
}

// isSlippageError matches the quote service's slippage tolerance failures.
// 0x1771 is the on-chain SlippageToleranceExceeded custom error code.
func isSlippageError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "slippage") || strings.Contains(msg, "0x1771")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
