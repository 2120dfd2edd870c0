// Package orchestrator wires trade detection into the swap engine.
// It owns the follower signing key and the copy-trading lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/engine"
	"solana-copy-trader/internal/idhash"
	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/wallet"
)

// IntentSource is a running detector delivering trade intents.
type IntentSource interface {
	Intents() <-chan domain.TradeIntent
	Run(ctx context.Context) error
}

// Executor runs copy trades. Satisfied by *engine.Engine.
type Executor interface {
	ExecuteSwap(ctx context.Context, tokenInMint, tokenOutMint string, amountIn float64, targetWallet string, isSell bool) *domain.SwapResult
	RunPendingSells(ctx context.Context, interval time.Duration)
	Wait()
}

// Compile-time interface check.
var _ Executor = (*engine.Engine)(nil)

// Options for creating Orchestrator.
type Options struct {
	Engine       Executor
	Keypair      *wallet.Keypair // follower signing key, owned here
	TargetWallet string

	Push IntentSource // optional, at least one source required
	Poll IntentSource // optional

	// Fatal delivers unrecoverable connectivity errors (WS client).
	// Run terminates when it fires.
	Fatal <-chan error

	// Audit stores, both optional. Writes are after-the-fact and never
	// decision-bearing; failures are logged and swallowed.
	Trades storage.CopyTradeStore
	Swaps  storage.ObservedSwapStore

	// BuyScale multiplies the counterparty's buy amount to size follower
	// buys. Defaults to 1.0 (mirror the counterparty).
	BuyScale float64
	// MaxBuySOL caps a single buy in SOL. Zero means uncapped.
	MaxBuySOL float64

	PendingInterval time.Duration // pending sell reconciliation, default 1m
	Logger          *log.Logger
}

// Orchestrator coordinates detectors, engine and audit storage.
// A single mutex serializes trade execution: one trade in flight per wallet.
type Orchestrator struct {
	engine  Executor
	keypair *wallet.Keypair
	target  string

	push  IntentSource
	poll  IntentSource
	fatal <-chan error

	trades storage.CopyTradeStore
	swaps  storage.ObservedSwapStore

	buyScale        float64
	maxBuySOL       float64
	pendingInterval time.Duration
	logger          *log.Logger

	mu sync.Mutex // serializes ExecuteSwap

	now func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Keypair == nil {
		return nil, fmt.Errorf("keypair is required")
	}
	if opts.TargetWallet == "" {
		return nil, fmt.Errorf("target wallet is required")
	}
	if opts.Push == nil && opts.Poll == nil {
		return nil, fmt.Errorf("at least one intent source is required")
	}
	if opts.BuyScale <= 0 {
		opts.BuyScale = 1.0
	}
	if opts.PendingInterval <= 0 {
		opts.PendingInterval = engine.DefaultPendingInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Orchestrator{
		engine:          opts.Engine,
		keypair:         opts.Keypair,
		target:          opts.TargetWallet,
		push:            opts.Push,
		poll:            opts.Poll,
		fatal:           opts.Fatal,
		trades:          opts.Trades,
		swaps:           opts.Swaps,
		buyScale:        opts.BuyScale,
		maxBuySOL:       opts.MaxBuySOL,
		pendingInterval: opts.PendingInterval,
		logger:          opts.Logger,
		now:             time.Now,
	}, nil
}

// Run starts the detectors and forwards intents into the engine. It blocks
// until ctx is cancelled (returns nil) or an unrecoverable error arrives on
// the fatal channel or from a detector (returns the error).
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srcErrs := make(chan error, 2)
	var wg sync.WaitGroup

	runSource := func(name string, src IntentSource) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				srcErrs <- fmt.Errorf("%s detector: %w", name, err)
			}
		}()
	}
	if o.push != nil {
		runSource("push", o.push)
	}
	if o.poll != nil {
		runSource("poll", o.poll)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.engine.RunPendingSells(ctx, o.pendingInterval)
	}()

	pushIntents := sourceIntents(o.push)
	pollIntents := sourceIntents(o.poll)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-o.fatal:
			runErr = fmt.Errorf("connection lost: %w", err)
			break loop
		case err := <-srcErrs:
			runErr = err
			break loop
		case intent := <-pushIntents:
			o.handleIntent(ctx, intent, domain.ModePush)
		case intent := <-pollIntents:
			o.handleIntent(ctx, intent, domain.ModePoll)
		}
	}

	cancel()
	wg.Wait()
	o.engine.Wait()
	return runErr
}

func sourceIntents(src IntentSource) <-chan domain.TradeIntent {
	if src == nil {
		return nil
	}
	return src.Intents()
}

// handleIntent executes one trade end to end and writes the audit trail.
func (o *Orchestrator) handleIntent(ctx context.Context, intent domain.TradeIntent, mode string) {
	// Poll sells carry only the token side; the counter asset is native.
	if intent.IsSell && intent.TokenOutMint == "" {
		intent.TokenOutMint = wallet.WSOLMint
	}

	amount := intent.AmountIn
	if !intent.IsSell {
		amount *= o.buyScale
		if o.maxBuySOL > 0 && amount > o.maxBuySOL {
			amount = o.maxBuySOL
		}
	}

	o.logger.Printf("[orchestrator] %s intent (%s): %s -> %s amount=%f sig=%s",
		intent.Side(), mode, intent.TokenInMint, intent.TokenOutMint, amount, intent.SourceSignature)

	o.archiveObserved(ctx, &intent, mode)

	o.mu.Lock()
	result := o.engine.ExecuteSwap(ctx, intent.TokenInMint, intent.TokenOutMint, amount, o.target, intent.IsSell)
	o.mu.Unlock()

	if result == nil {
		return
	}
	o.recordTrade(ctx, &intent, result)
}

// archiveObserved writes the detection event to the analysis archive.
func (o *Orchestrator) archiveObserved(ctx context.Context, intent *domain.TradeIntent, mode string) {
	if o.swaps == nil {
		return
	}

	swap := &domain.ObservedSwap{
		TxSignature:  intent.SourceSignature,
		Wallet:       o.target,
		TokenInMint:  intent.TokenInMint,
		TokenOutMint: intent.TokenOutMint,
		AmountIn:     intent.AmountIn,
		Pool:         intent.Pool,
		Mode:         mode,
		Slot:         intent.Slot,
		Timestamp:    intent.Timestamp,
	}
	if err := o.swaps.Insert(ctx, swap); err != nil {
		o.logger.Printf("[orchestrator] observed swap archive failed for %s: %v", intent.SourceSignature, err)
	}
}

// recordTrade writes the executed copy to the audit store.
func (o *Orchestrator) recordTrade(ctx context.Context, intent *domain.TradeIntent, result *domain.SwapResult) {
	if o.trades == nil {
		return
	}

	executedAt := o.now().UnixMilli()
	trade := &domain.CopyTrade{
		TradeID:         idhash.ComputeTradeID(intent.SourceSignature, intent.Side(), intent.TokenInMint, intent.TokenOutMint, executedAt),
		SourceSignature: intent.SourceSignature,
		Side:            intent.Side(),
		TokenInMint:     intent.TokenInMint,
		TokenOutMint:    intent.TokenOutMint,
		AmountIn:        result.AmountIn,
		AmountOut:       result.AmountOut,
		SlippageBps:     result.SlippageBps,
		Attempts:        result.Attempts,
		Signature:       result.Signature(),
		ExecutedAt:      executedAt,
		CreatedAt:       executedAt,
	}

	err := o.trades.Insert(ctx, trade)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		o.logger.Printf("[orchestrator] duplicate trade record %s", trade.TradeID)
	case err != nil:
		o.logger.Printf("[orchestrator] trade record write failed for %s: %v", intent.SourceSignature, err)
	}
}
