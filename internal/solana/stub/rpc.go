// Package stub provides in-memory fakes of the solana interfaces for testing.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-copy-trader/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// balanceKey identifies one (owner, mint) balance.
type balanceKey struct {
	Owner string
	Mint  string
}

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	Balances     map[balanceKey]float64
	Decimals     map[balanceKey]int
	Statuses     map[string]*solana.SignatureStatus
	Accounts     map[string]*solana.AccountInfo

	BlockhashValue *solana.Blockhash
	BlockHeight    int64

	// SendErr, when set, fails every SendTransaction call.
	SendErr error

	// Sent records every submitted transaction payload.
	Sent []string

	// BalanceCalls counts GetTokenBalance invocations (cache tests).
	BalanceCalls int

	sendSeq int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Balances:     make(map[balanceKey]float64),
		Decimals:     make(map[balanceKey]int),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Accounts:     make(map[string]*solana.AccountInfo),
		BlockhashValue: &solana.Blockhash{
			Blockhash:            "StubBlockhash11111111111111111111",
			LastValidBlockHeight: 1000,
		},
		BlockHeight: 1,
	}
}

// SetBalance sets the stubbed balance for an (owner, mint) pair.
func (c *RPCClient) SetBalance(owner, mint string, amount float64, decimals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := balanceKey{Owner: owner, Mint: mint}
	c.Balances[k] = amount
	c.Decimals[k] = decimals
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetTokenBalance returns the stubbed balance for an (owner, mint) pair.
func (c *RPCClient) GetTokenBalance(_ context.Context, owner, mint string) (float64, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BalanceCalls++
	k := balanceKey{Owner: owner, Mint: mint}
	return c.Balances[k], c.Decimals[k], nil
}

// GetLatestBlockhash returns the stubbed blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BlockhashValue, nil
}

// GetBlockHeight returns the stubbed block height.
func (c *RPCClient) GetBlockHeight(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BlockHeight, nil
}

// SendTransaction records the payload and returns a synthetic signature.
// Confirmation is pre-seeded so SubmitAndConfirm succeeds immediately.
func (c *RPCClient) SendTransaction(_ context.Context, signedTxBase64 string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, signedTxBase64)
	c.sendSeq++
	sig := fmt.Sprintf("StubSig%d", c.sendSeq)
	c.Statuses[sig] = &solana.SignatureStatus{
		Slot:               int64(c.sendSeq),
		ConfirmationStatus: "confirmed",
	}
	return sig, nil
}

// GetSignatureStatuses returns pre-seeded statuses; nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	statuses := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		statuses[i] = c.Statuses[sig]
	}
	return statuses, nil
}

// GetAccountInfo returns the stubbed account; nil when absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)
