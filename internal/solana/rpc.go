package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the bot.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature, including
	// pre/post token balance snapshots needed for delta computation.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetTokenBalance returns the owner's balance for a mint in human units,
	// along with the mint's decimal precision. Returns 0, 0 when the owner
	// holds no account for the mint.
	GetTokenBalance(ctx context.Context, owner, mint string) (float64, int, error)

	// GetLatestBlockhash returns a fresh blockhash and its last valid height.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context) (int64, error)

	// SendTransaction submits a signed, base64-encoded transaction.
	// Preflight checks are skipped.
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)

	// GetSignatureStatuses returns confirmation status per signature.
	// A nil entry means the signature is not yet known to the cluster.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string // base64 encoded
	Executable bool
	RentEpoch  uint64
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// TokenBalance is one entry of a pre/post token balance snapshot.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       float64 // decimal-adjusted (uiAmount)
	Decimals     int
}

// Blockhash pairs a recent blockhash with its expiry height.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight int64
}

// SignatureStatus reports cluster-side confirmation state.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64
	ConfirmationStatus string // "processed" | "confirmed" | "finalized"
	Err                interface{}
}
