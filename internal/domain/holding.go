package domain

// Holding is the persistent record of one tracked position.
// Amount is decimal-adjusted to human units; invariant: Amount >= 0.
// A holding is removed once fully liquidated.
type Holding struct {
	Mint         string  `json:"mint"`
	Amount       float64 `json:"amount"`        // follower's locally tracked quantity
	Decimals     int     `json:"decimals"`      // asset decimal precision
	TargetAmount float64 `json:"target_amount"` // last-observed counterparty balance
	LastChecked  int64   `json:"last_checked"`  // Unix ms of last reconciliation
}

// PendingSell is a best-effort durable retry entry for a sell whose normal
// retries exhausted. Entries beyond MaxPendingSellAttempts are logged as
// critical and retained for manual intervention, never silently dropped.
type PendingSell struct {
	Mint         string  `json:"mint"`
	Amount       float64 `json:"amount"`
	Attempts     int     `json:"attempts"`
	LastAttempt  int64   `json:"last_attempt"` // Unix ms
	TargetWallet string  `json:"target_wallet"`
}

// MaxPendingSellAttempts caps total retry attempts for a pending sell.
const MaxPendingSellAttempts = 5
