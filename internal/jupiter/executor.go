package jupiter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/wallet"
)

// Confirmation defaults.
const (
	DefaultConfirmTimeout = 30 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// Confirmation errors. Both are retryable: the transaction can be rebuilt
// against a fresh blockhash and resubmitted.
var (
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrBlockhashExpired    = errors.New("blockhash expired before confirmation")
)

// Executor signs, submits, and confirms swap transaction bundles.
type Executor struct {
	rpc            solana.RPCClient
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *log.Logger
}

// ExecutorOption configures Executor.
type ExecutorOption func(*Executor)

// WithConfirmTimeout sets the per-transaction confirmation deadline.
func WithConfirmTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.confirmTimeout = d
	}
}

// WithPollInterval sets the confirmation polling interval.
func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.pollInterval = d
	}
}

// WithLogger sets the executor logger.
func WithLogger(l *log.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates a new transaction executor.
func NewExecutor(rpc solana.RPCClient, opts ...ExecutorOption) *Executor {
	e := &Executor{
		rpc:            rpc,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SignSubmitAll decodes, signs, submits, and confirms every transaction in a
// bundle, in order. Returns the confirmed signatures. A failure stops the
// bundle; earlier confirmed signatures are returned alongside the error.
func (e *Executor) SignSubmitAll(ctx context.Context, kp *wallet.Keypair, bundle *SwapTransactions) ([]string, error) {
	var signatures []string

	for i, encoded := range bundle.Transactions {
		tx, err := wallet.DecodeTransactionBase64(encoded)
		if err != nil {
			return signatures, fmt.Errorf("decode transaction %d/%d: %w", i+1, len(bundle.Transactions), err)
		}

		if err := tx.Sign(kp); err != nil {
			return signatures, fmt.Errorf("sign transaction %d/%d: %w", i+1, len(bundle.Transactions), err)
		}

		sig, err := e.SubmitAndConfirm(ctx, tx)
		if err != nil {
			return signatures, fmt.Errorf("submit transaction %d/%d: %w", i+1, len(bundle.Transactions), err)
		}
		signatures = append(signatures, sig)
	}

	return signatures, nil
}

// SubmitAndConfirm submits a signed transaction with preflight skipped and
// polls for confirmation. The blockhash expiry reference is fetched
// immediately before submission.
func (e *Executor) SubmitAndConfirm(ctx context.Context, tx *wallet.DecodedTransaction) (string, error) {
	// Fresh expiry reference right before submission
	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}

	sig, err := e.rpc.SendTransaction(ctx, tx.SerializeBase64())
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	if err := e.awaitConfirmation(ctx, sig, blockhash.LastValidBlockHeight); err != nil {
		return "", err
	}

	return sig, nil
}

// awaitConfirmation polls signature status until confirmed, expired, or
// timed out. Expiry and timeout are retryable failures, not hangs.
func (e *Executor) awaitConfirmation(ctx context.Context, signature string, lastValidHeight int64) error {
	deadline := time.Now().Add(e.confirmTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.pollInterval):
		}

		statuses, err := e.rpc.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			e.logger.Printf("[confirm] Status query failed for %s: %v", signature, err)
		} else if len(statuses) > 0 && statuses[0] != nil {
			status := statuses[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", signature, status.Err)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		height, err := e.rpc.GetBlockHeight(ctx)
		if err == nil && height > lastValidHeight {
			return fmt.Errorf("%w: signature %s", ErrBlockhashExpired, signature)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: signature %s after %s", ErrConfirmationTimeout, signature, e.confirmTimeout)
		}
	}
}

// EnsureAssociatedAccount creates the wallet's associated token account for
// a mint when it does not exist yet. Blocking: the swap it unblocks must not
// be submitted before the account is confirmed.
func (e *Executor) EnsureAssociatedAccount(ctx context.Context, kp *wallet.Keypair, mint string) error {
	if mint == wallet.WSOLMint {
		return nil // native asset, wrapped automatically by the swap API
	}

	ata, err := wallet.DeriveAssociatedTokenAccount(kp.PublicKey(), mint)
	if err != nil {
		return fmt.Errorf("derive associated account: %w", err)
	}

	info, err := e.rpc.GetAccountInfo(ctx, ata)
	if err != nil {
		return fmt.Errorf("check associated account: %w", err)
	}
	if info != nil {
		return nil
	}

	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return fmt.Errorf("get blockhash for account creation: %w", err)
	}

	tx, err := wallet.BuildCreateAssociatedAccountTransaction(kp.PublicKey(), mint, blockhash.Blockhash)
	if err != nil {
		return fmt.Errorf("build account creation: %w", err)
	}

	if err := tx.Sign(kp); err != nil {
		return fmt.Errorf("sign account creation: %w", err)
	}

	sig, err := e.SubmitAndConfirm(ctx, tx)
	if err != nil {
		return fmt.Errorf("create associated account for %s: %w", mint, err)
	}

	e.logger.Printf("[ata] Created associated account %s for mint %s (sig %s)", ata, mint, sig)
	return nil
}
