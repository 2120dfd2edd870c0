package detector

import (
	"errors"

	"solana-copy-trader/internal/wallet"
)

// Known venue program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// ErrUnrecognizedLayout means the transaction's account list does not match
// any known venue layout. Callers must treat the pool as unknown rather
// than guessing.
var ErrUnrecognizedLayout = errors.New("unrecognized account layout")

// PoolInfo identifies the venue a swap executed on.
type PoolInfo struct {
	Program string // venue program ID
	Address string // pool / AMM account
}

// Positional offsets of the pool account in each venue's static key list.
const (
	raydiumPoolOffset = 2
	pumpFunPoolOffset = 3
)

// ExtractPool recovers the venue pool account from a transaction's account
// keys by fixed positional offset, keyed by the venue program present in
// the list. Returns ErrUnrecognizedLayout when no known venue is present
// or the offset does not hold a plausible account address.
func ExtractPool(accountKeys []string) (*PoolInfo, error) {
	for _, key := range accountKeys {
		switch key {
		case RaydiumAMMV4:
			return poolAt(accountKeys, RaydiumAMMV4, raydiumPoolOffset)
		case PumpFun:
			return poolAt(accountKeys, PumpFun, pumpFunPoolOffset)
		}
	}
	return nil, ErrUnrecognizedLayout
}

func poolAt(accountKeys []string, program string, offset int) (*PoolInfo, error) {
	if offset >= len(accountKeys) {
		return nil, ErrUnrecognizedLayout
	}
	addr := accountKeys[offset]
	if !plausibleAccount(addr) {
		return nil, ErrUnrecognizedLayout
	}
	return &PoolInfo{Program: program, Address: addr}, nil
}

// plausibleAccount rejects obviously wrong extractions: system accounts,
// known programs and strings outside base58 pubkey length.
func plausibleAccount(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	switch addr {
	case RaydiumAMMV4, PumpFun,
		wallet.SystemProgram, wallet.TokenProgram,
		wallet.AssociatedTokenProgram, wallet.WSOLMint:
		return false
	}
	return true
}
