package detector

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/wallet"
)

// DefaultDebounce is the minimum spacing between handled notifications.
// Earlier arrivals are dropped, not queued.
const DefaultDebounce = 500 * time.Millisecond

const intentBuffer = 16

// PushOptions configures a Push detector.
type PushOptions struct {
	WS           solana.WSClient
	RPC          solana.RPCClient
	TargetWallet string
	Debounce     time.Duration // DefaultDebounce when zero
	DedupTTL     time.Duration
	Logger       *log.Logger
}

// Push detects counterparty swaps from a log subscription scoped to the
// target wallet.
type Push struct {
	ws       solana.WSClient
	rpc      solana.RPCClient
	target   string
	debounce time.Duration
	logger   *log.Logger

	seen        *seenSet
	lastHandled time.Time
	intents     chan domain.TradeIntent
}

// NewPush creates a push-mode detector.
func NewPush(opts PushOptions) (*Push, error) {
	if opts.WS == nil {
		return nil, fmt.Errorf("ws client is required")
	}
	if opts.RPC == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if opts.TargetWallet == "" {
		return nil, fmt.Errorf("target wallet is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Push{
		ws:       opts.WS,
		rpc:      opts.RPC,
		target:   opts.TargetWallet,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		seen:     newSeenSet(opts.DedupTTL, 0),
		intents:  make(chan domain.TradeIntent, intentBuffer),
	}, nil
}

// Intents returns the channel detected trade intents are delivered on.
func (p *Push) Intents() <-chan domain.TradeIntent {
	return p.intents
}

// Run subscribes and processes notifications until ctx is cancelled.
func (p *Push) Run(ctx context.Context) error {
	ch, err := p.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{p.target}})
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	p.logger.Printf("[detector] push mode watching %s", p.target)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-ch:
			if !ok {
				return fmt.Errorf("log subscription closed")
			}
			p.handleNotification(ctx, notif)
		}
	}
}

func (p *Push) handleNotification(ctx context.Context, notif solana.LogNotification) {
	if notif.Err != nil {
		// Failed transaction, nothing was swapped.
		return
	}

	now := time.Now()
	if now.Sub(p.lastHandled) < p.debounce {
		observability.DefaultMetrics.NotificationsDropped.Inc()
		return
	}
	p.lastHandled = now

	if p.seen.Seen(notif.Signature) {
		observability.DefaultMetrics.DuplicateSignatures.Inc()
		p.logger.Printf("[detector] duplicate signature %s dropped", notif.Signature)
		return
	}

	tx, err := p.rpc.GetTransaction(ctx, notif.Signature)
	if err != nil {
		observability.RecordDetectionError(domain.ModePush, "tx_fetch")
		p.logger.Printf("[detector] transaction fetch failed for %s: %v", notif.Signature, err)
		return
	}
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return
	}

	deltas := ComputeDeltas(tx.Meta, p.target)
	in, out, ok := ClassifySwap(deltas)
	if !ok {
		return
	}

	var pool *string
	if tx.Message != nil {
		if info, err := ExtractPool(tx.Message.AccountKeys); err == nil {
			pool = &info.Address
		}
	}

	intent := domain.TradeIntent{
		TokenInMint:     in.Mint,
		TokenOutMint:    out.Mint,
		AmountIn:        -in.Delta,
		SourceSignature: notif.Signature,
		Pool:            pool,
		Slot:            tx.Slot,
		Timestamp:       tx.BlockTime * 1000,
		IsSell:          in.Mint != wallet.WSOLMint,
	}

	select {
	case p.intents <- intent:
		observability.RecordSwapDetected(domain.ModePush)
		observability.DefaultMetrics.LastTradeDetected.SetToCurrentTime()
		p.logger.Printf("[detector] swap detected sig=%s %s %f %s -> %s",
			intent.SourceSignature, intent.Side(), intent.AmountIn, intent.TokenInMint, intent.TokenOutMint)
	default:
		observability.DefaultMetrics.NotificationsDropped.Inc()
		p.logger.Printf("[detector] intent buffer full, dropping %s", notif.Signature)
	}
}
