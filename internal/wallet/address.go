package wallet

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program IDs.
const (
	// SystemProgram is the Solana system program.
	SystemProgram = "11111111111111111111111111111111"
	// TokenProgram is the SPL token program.
	TokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	// AssociatedTokenProgram is the SPL associated token account program.
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	// WSOLMint is the wrapped-SOL mint (the native asset).
	WSOLMint = "So11111111111111111111111111111111111111112"
)

// ValidateAddress checks that s decodes to a 32-byte ed25519 public key on
// the curve. PDAs fail this check; wallet addresses pass.
func ValidateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address must decode to 32 bytes, got %d", len(raw))
	}
	if !isOnCurve(raw) {
		return fmt.Errorf("address is not a valid ed25519 point")
	}
	return nil
}

// DeriveAssociatedTokenAccount derives the associated token account address
// for an (owner, mint) pair.
func DeriveAssociatedTokenAccount(owner, mint string) (string, error) {
	ownerBytes, err := base58.Decode(owner)
	if err != nil {
		return "", fmt.Errorf("decode owner: %w", err)
	}
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}
	tokenProgBytes, err := base58.Decode(TokenProgram)
	if err != nil {
		return "", fmt.Errorf("decode token program: %w", err)
	}
	ataProgBytes, err := base58.Decode(AssociatedTokenProgram)
	if err != nil {
		return "", fmt.Errorf("decode ata program: %w", err)
	}

	addr := derivePDA([][]byte{ownerBytes, tokenProgBytes, mintBytes}, ataProgBytes)
	if addr == "" {
		return "", fmt.Errorf("no valid bump seed for (%s, %s)", owner, mint)
	}
	return addr, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm.
func derivePDA(seeds [][]byte, programID []byte) string {
	// PDA derivation: concatenate seeds with a bump, append the program ID
	// and the "ProgramDerivedAddress" marker, SHA256, and keep the first
	// bump whose hash lands off the ed25519 curve.
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
