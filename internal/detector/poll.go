package detector

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/holdings"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/oracle"
)

// Poll pacing defaults.
const (
	DefaultMintSpacing = 500 * time.Millisecond
	DefaultHeartbeat   = 1 * time.Minute
)

// PollOptions configures a Poll detector.
type PollOptions struct {
	Holdings     holdings.Store
	Oracle       oracle.BalanceOracle
	TargetWallet string
	MintSpacing  time.Duration // sleep between mint checks
	Heartbeat    time.Duration // holdings-vs-counterparty log cadence
	Logger       *log.Logger
}

// Poll detects counterparty sells by diffing tracked holdings against the
// counterparty's current balances. It runs a tight loop with inter-mint
// spacing, not a fixed interval.
type Poll struct {
	holdings  holdings.Store
	oracle    oracle.BalanceOracle
	target    string
	spacing   time.Duration
	heartbeat time.Duration
	logger    *log.Logger

	intents chan domain.TradeIntent
}

// NewPoll creates a poll-mode detector.
func NewPoll(opts PollOptions) (*Poll, error) {
	if opts.Holdings == nil {
		return nil, fmt.Errorf("holdings store is required")
	}
	if opts.Oracle == nil {
		return nil, fmt.Errorf("balance oracle is required")
	}
	if opts.TargetWallet == "" {
		return nil, fmt.Errorf("target wallet is required")
	}
	if opts.MintSpacing <= 0 {
		opts.MintSpacing = DefaultMintSpacing
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Poll{
		holdings:  opts.Holdings,
		oracle:    opts.Oracle,
		target:    opts.TargetWallet,
		spacing:   opts.MintSpacing,
		heartbeat: opts.Heartbeat,
		logger:    opts.Logger,
		intents:   make(chan domain.TradeIntent, intentBuffer),
	}, nil
}

// Intents returns the channel detected trade intents are delivered on.
func (p *Poll) Intents() <-chan domain.TradeIntent {
	return p.intents
}

// Run loops over tracked holdings until ctx is cancelled.
func (p *Poll) Run(ctx context.Context) error {
	p.logger.Printf("[detector] poll mode watching %s", p.target)
	lastHeartbeat := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		list, err := p.holdings.All(ctx)
		if err != nil {
			observability.RecordDetectionError(domain.ModePoll, "holdings_read")
			p.logger.Printf("[detector] holdings read failed: %v", err)
			if err := sleepCtx(ctx, p.spacing); err != nil {
				return err
			}
			continue
		}
		observability.UpdateHoldingsTracked(len(list))

		beat := time.Since(lastHeartbeat) >= p.heartbeat
		if beat {
			lastHeartbeat = time.Now()
			p.logger.Printf("[detector] heartbeat: %d holdings tracked", len(list))
		}

		for _, h := range list {
			p.checkHolding(ctx, h, beat)
			if err := sleepCtx(ctx, p.spacing); err != nil {
				return err
			}
		}

		if len(list) == 0 {
			if err := sleepCtx(ctx, p.spacing); err != nil {
				return err
			}
		}
	}
}

// checkHolding compares one holding's stored counterparty baseline against
// the counterparty's current balance and emits a sell intent on decrease.
func (p *Poll) checkHolding(ctx context.Context, h *domain.Holding, beat bool) {
	bal, err := p.oracle.TokenBalance(ctx, p.target, h.Mint)
	if err != nil {
		observability.RecordDetectionError(domain.ModePoll, "balance_fetch")
		p.logger.Printf("[detector] counterparty balance fetch failed for %s: %v", h.Mint, err)
		return
	}
	current := bal.Amount

	if beat {
		p.logger.Printf("[detector] %s: holding=%f counterparty=%f baseline=%f",
			h.Mint, h.Amount, current, h.TargetAmount)
	}

	if current < h.TargetAmount {
		delta := h.TargetAmount - current
		intent := domain.TradeIntent{
			TokenInMint:     h.Mint,
			TokenOutMint:    "", // filled by the orchestrator with the quote asset
			AmountIn:        delta,
			SourceSignature: fmt.Sprintf("poll-%s-%d", h.Mint, time.Now().UnixMilli()),
			Timestamp:       time.Now().UnixMilli(),
			IsSell:          true,
		}
		if current == 0 {
			p.logger.Printf("[detector] counterparty fully exited %s", h.Mint)
		} else {
			p.logger.Printf("[detector] counterparty sold %f of %s (%.2f%%)",
				delta, h.Mint, delta/h.TargetAmount*100)
		}

		select {
		case p.intents <- intent:
			observability.RecordSwapDetected(domain.ModePoll)
			observability.DefaultMetrics.LastTradeDetected.SetToCurrentTime()
		default:
			// Keep the stale baseline so the decrease is re-detected on
			// the next pass instead of being lost.
			p.logger.Printf("[detector] intent buffer full, deferring sell for %s", h.Mint)
			return
		}
	}

	if current != h.TargetAmount {
		if err := p.holdings.UpdateTarget(ctx, h.Mint, current, time.Now().UnixMilli()); err != nil {
			p.logger.Printf("[detector] baseline update failed for %s: %v", h.Mint, err)
		}
	}
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
