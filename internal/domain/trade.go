package domain

// TradeIntent is the normalized signal produced by trade detection.
// Created once per detected counterparty transaction, immutable, consumed
// exactly once by the swap engine.
type TradeIntent struct {
	TokenInMint     string  // mint the counterparty spent
	TokenOutMint    string  // mint the counterparty received
	AmountIn        float64 // counterparty's absolute amount moved (human units)
	SourceSignature string  // originating ledger transaction signature
	Pool            *string // venue/pool hint when determinable
	Slot            int64   // slot of the source transaction
	Timestamp       int64   // Unix timestamp in milliseconds
	IsSell          bool    // sell of a tracked holding vs fresh buy
}

// Trade side constants.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Side returns the trade side implied by the intent.
func (i *TradeIntent) Side() string {
	if i.IsSell {
		return SideSell
	}
	return SideBuy
}

// SwapResult holds transaction identifiers produced by a successful swap.
// A nil *SwapResult signals total failure after exhausting retries.
type SwapResult struct {
	Signatures  []string
	AmountIn    float64 // follower amount actually traded (human units)
	AmountOut   float64 // actual received amount (human units)
	SlippageBps int     // slippage of the winning attempt
	Attempts    int     // total attempts including the successful one
}

// Signature returns the primary confirmed signature, or "" when empty.
func (r *SwapResult) Signature() string {
	if r == nil || len(r.Signatures) == 0 {
		return ""
	}
	return r.Signatures[0]
}

// CopyTrade is the write-after-the-fact audit record of one executed copy.
// Corresponds to copy_trades table in PostgreSQL. Never decision-bearing.
type CopyTrade struct {
	TradeID         string // deterministic hash
	SourceSignature string // counterparty transaction that triggered the copy
	Side            string // "buy" | "sell"
	TokenInMint     string
	TokenOutMint    string
	AmountIn        float64 // follower amount actually traded (human units)
	AmountOut       float64 // actual received amount (human units)
	SlippageBps     int     // slippage of the winning attempt
	Attempts        int     // total attempts including the successful one
	Signature       string  // follower's confirmed transaction signature
	ExecutedAt      int64   // Unix timestamp in milliseconds
	CreatedAt       int64   // record creation timestamp (ms)
}
