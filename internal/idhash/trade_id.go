// Package idhash provides deterministic ID generation for audit records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(source_signature|side|token_in_mint|token_out_mint|executed_at)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	sourceSignature string,
	side string,
	tokenInMint string,
	tokenOutMint string,
	executedAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		sourceSignature,
		side,
		tokenInMint,
		tokenOutMint,
		executedAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
