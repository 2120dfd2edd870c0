package jupiter

import (
	"context"

	"solana-copy-trader/internal/wallet"
)

// Gateway bundles the quote API client and the on-chain executor behind a
// single surface the swap engine consumes.
type Gateway struct {
	client *Client
	exec   *Executor
}

// NewGateway creates a Gateway from a quote API client and an executor.
func NewGateway(client *Client, exec *Executor) *Gateway {
	return &Gateway{client: client, exec: exec}
}

// GetQuote requests a swap quote.
func (g *Gateway) GetQuote(ctx context.Context, inputMint, outputMint string, amountBaseUnits uint64, slippageBps int) (*Quote, error) {
	return g.client.GetQuote(ctx, inputMint, outputMint, amountBaseUnits, slippageBps)
}

// GetPriorityFee requests the current priority fee percentiles.
func (g *Gateway) GetPriorityFee(ctx context.Context) (*PriorityFee, error) {
	return g.client.GetPriorityFee(ctx)
}

// BuildSwap requests an unsigned transaction bundle for a quote.
func (g *Gateway) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string, feeMicroLamports uint64, wrapUnwrapSOL bool) (*SwapTransactions, error) {
	return g.client.BuildSwap(ctx, quote, userPublicKey, feeMicroLamports, wrapUnwrapSOL)
}

// SignSubmitAll signs, submits and confirms every transaction in a bundle.
func (g *Gateway) SignSubmitAll(ctx context.Context, kp *wallet.Keypair, bundle *SwapTransactions) ([]string, error) {
	return g.exec.SignSubmitAll(ctx, kp, bundle)
}

// EnsureAssociatedAccount creates the wallet's associated token account for
// mint when it does not exist yet.
func (g *Gateway) EnsureAssociatedAccount(ctx context.Context, kp *wallet.Keypair, mint string) error {
	return g.exec.EnsureAssociatedAccount(ctx, kp, mint)
}
