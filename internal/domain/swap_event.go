package domain

// ObservedSwap is one counterparty swap as seen by a detector, before any
// sizing decision. Archived to ClickHouse for after-the-fact analysis.
type ObservedSwap struct {
	TxSignature  string  // counterparty transaction signature
	Wallet       string  // target wallet the swap was observed on
	TokenInMint  string  // mint whose balance decreased
	TokenOutMint string  // mint whose balance increased
	AmountIn     float64 // observed input delta (human units)
	AmountOut    float64 // observed output delta (human units)
	Pool         *string // extracted pool address (nullable)
	Mode         string  // "push" | "poll"
	Slot         int64   // Solana slot number
	Timestamp    int64   // Unix timestamp in milliseconds
}

// Detection mode constants.
const (
	ModePush = "push"
	ModePoll = "poll"
)
